package retrieval

import "github.com/openjuris/lexsearch/pkg/models"

// excerptLen bounds how much fragment content a citation carries.
const excerptLen = 200

// BuildCitations projects a ranked fragment list into display citations,
// keeping at most one citation per distinct source document. First seen
// wins, so the highest-ranked fragment determines its document's
// citation. Input order is preserved.
func BuildCitations(ranked []models.ScoredFragment) []models.Citation {
	citations := make([]models.Citation, 0, len(ranked))
	seen := make(map[string]struct{}, len(ranked))

	for _, r := range ranked {
		f := r.Fragment
		if _, ok := seen[f.DocumentID]; ok {
			continue
		}
		seen[f.DocumentID] = struct{}{}

		citations = append(citations, models.Citation{
			DocumentID:     f.DocumentID,
			DocumentTitle:  f.DocumentTitle,
			Category:       f.Category,
			CitationText:   f.Citation,
			SectionRef:     f.SectionRef,
			RelevanceScore: r.EffectiveScore(),
			Excerpt:        excerpt(f.Content),
		})
	}
	return citations
}

func excerpt(content string) string {
	if len(content) > excerptLen {
		return content[:excerptLen] + "..."
	}
	return content
}
