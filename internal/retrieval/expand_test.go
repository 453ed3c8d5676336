package retrieval

import "testing"

func TestWithHistory(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		history  []string
		expected string
	}{
		{
			name:     "no history returns query unchanged",
			query:    "what is consideration?",
			history:  nil,
			expected: "what is consideration?",
		},
		{
			name:     "empty history returns query unchanged",
			query:    "what is consideration?",
			history:  []string{},
			expected: "what is consideration?",
		},
		{
			name:     "single prior turn is prepended",
			query:    "and the penalty?",
			history:  []string{"tell me about section 10"},
			expected: "tell me about section 10 and the penalty?",
		},
		{
			name:     "only the last three turns are used",
			query:    "what next?",
			history:  []string{"one", "two", "three", "four", "five"},
			expected: "three four five what next?",
		},
		{
			name:     "exactly three turns all used",
			query:    "q",
			history:  []string{"a", "b", "c"},
			expected: "a b c q",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WithHistory(tt.query, tt.history)
			if got != tt.expected {
				t.Errorf("WithHistory() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestWithHistoryDoesNotMutateHistory(t *testing.T) {
	history := []string{"a", "b", "c", "d"}
	_ = WithHistory("q", history)
	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if history[i] != want[i] {
			t.Fatalf("history mutated at %d: %q", i, history[i])
		}
	}
}

func TestExpandQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{
			name:     "no legal terms returns query unchanged",
			query:    "weather in mumbai",
			expected: "weather in mumbai",
		},
		{
			name:     "single term appends its synonyms",
			query:    "breach of trust",
			expected: "breach of trust violation infringement non-compliance",
		},
		{
			name:     "match is case-insensitive",
			query:    "BREACH of trust",
			expected: "BREACH of trust violation infringement non-compliance",
		},
		{
			name:     "multiple terms accumulate in table order",
			query:    "damages for breach of contract",
			expected: "damages for breach of contract agreement covenant understanding violation infringement non-compliance compensation reparation remedy",
		},
		{
			name:     "substring match counts",
			query:    "subcontracting",
			expected: "subcontracting agreement covenant understanding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandQuery(tt.query)
			if got != tt.expected {
				t.Errorf("ExpandQuery() = %q, want %q", got, tt.expected)
			}
		})
	}
}
