package retrieval

import "github.com/openjuris/lexsearch/pkg/models"

// EstimateTokens approximates the token cost of a fragment's content.
// One token per four characters, rounded up.
func EstimateTokens(content string) int {
	return (len(content) + 3) / 4
}

// Compress trims a ranked fragment list to an evidence token budget. It
// walks the list in order, keeping fragments while they fit, and stops
// at the first fragment whose cost would push the total past maxBudget.
// No reordering; the result is always a prefix of the input. May be
// empty if even the first fragment is over budget.
func Compress(ranked []models.ScoredFragment, maxBudget int) []models.ScoredFragment {
	compressed := make([]models.ScoredFragment, 0, len(ranked))
	total := 0

	for _, f := range ranked {
		cost := EstimateTokens(f.Fragment.Content)
		if total+cost > maxBudget {
			break
		}
		compressed = append(compressed, f)
		total += cost
	}
	return compressed
}
