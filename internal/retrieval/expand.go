package retrieval

import "strings"

// historyWindow is how many prior user turns feed into query context.
const historyWindow = 3

// legalSynonyms maps legal terms to expansion synonyms. Kept as an
// ordered table so expansion output is deterministic.
var legalSynonyms = []struct {
	term     string
	synonyms []string
}{
	{"contract", []string{"agreement", "covenant", "understanding"}},
	{"breach", []string{"violation", "infringement", "non-compliance"}},
	{"damages", []string{"compensation", "reparation", "remedy"}},
	{"liability", []string{"responsibility", "obligation", "accountability"}},
	{"consumer", []string{"buyer", "purchaser", "customer"}},
	{"seller", []string{"vendor", "merchant", "supplier"}},
	{"goods", []string{"products", "merchandise", "items"}},
	{"services", []string{"provisions", "offerings"}},
}

// WithHistory prepends the last few prior user turns to the query so
// follow-up questions carry their conversational context. The history
// slice is never mutated; with no history the query comes back as-is.
func WithHistory(query string, history []string) string {
	if len(history) == 0 {
		return query
	}
	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	return strings.Join(recent, " ") + " " + query
}

// ExpandQuery appends domain synonyms for every legal term found in the
// query (case-insensitive substring match). Matched terms accumulate
// their synonyms in table order; repeats are not deduplicated. A query
// matching nothing is returned unchanged.
func ExpandQuery(query string) string {
	lower := strings.ToLower(query)

	var expanded []string
	for _, e := range legalSynonyms {
		if strings.Contains(lower, e.term) {
			expanded = append(expanded, e.synonyms...)
		}
	}

	if len(expanded) == 0 {
		return query
	}
	return query + " " + strings.Join(expanded, " ")
}
