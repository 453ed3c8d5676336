package retrieval

import (
	"strings"

	"github.com/openjuris/lexsearch/pkg/models"
)

var (
	statuteHints    = []string{"section", "act", "statute", "provision"}
	caseLawHints    = []string{"case", "judgement", "ruling", "precedent", "held"}
	regulationHints = []string{"rule", "regulation", "guideline"}
)

// InferCategories guesses which document categories a query is about
// from keyword hints. Matches are additive; a query that matches
// nothing searches everything, so the result is never empty. This is an
// advisory narrowing for the retriever, not a hard filter.
func InferCategories(query string) []models.Category {
	lower := strings.ToLower(query)

	var cats []models.Category
	if containsAny(lower, statuteHints) {
		cats = append(cats, models.CategoryStatute)
	}
	if containsAny(lower, caseLawHints) {
		cats = append(cats, models.CategoryCaseLaw, models.CategoryJudgement)
	}
	if containsAny(lower, regulationHints) {
		cats = append(cats, models.CategoryRegulation)
	}

	if len(cats) == 0 {
		return models.AllCategories()
	}
	return cats
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
