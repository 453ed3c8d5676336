package models

import "time"

// Category partitions the index into kinds of legal documents. Every
// fragment and every index collection belongs to exactly one.
type Category string

const (
	CategoryStatute    Category = "statute"
	CategoryCaseLaw    Category = "case_law"
	CategoryRegulation Category = "regulation"
	CategoryJudgement  Category = "judgement"
)

// AllCategories returns the full category enumeration in a fixed order.
func AllCategories() []Category {
	return []Category{CategoryStatute, CategoryCaseLaw, CategoryRegulation, CategoryJudgement}
}

// ParseCategory maps a string onto the enumeration. Unknown values fall
// back to statute so a bad row never fails a whole query.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryStatute, CategoryCaseLaw, CategoryRegulation, CategoryJudgement:
		return Category(s)
	default:
		return CategoryStatute
	}
}

// Fragment is the atomic retrievable unit: one chunk of a source
// document. Created once during ingestion, read-only afterwards.
type Fragment struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	Content        string    `json:"content"`
	DocumentTitle  string    `json:"document_title"`
	Category       Category  `json:"category"`
	Citation       string    `json:"citation,omitempty"`
	SectionRef     string    `json:"section_reference,omitempty"`
	ChunkIndex     int       `json:"chunk_index"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ScoredFragment pairs a fragment with its retrieval score. RerankScore
// is set only after a cross-encoder pass; when present it takes
// precedence over Score for ordering.
type ScoredFragment struct {
	Fragment    Fragment `json:"fragment"`
	Score       float64  `json:"score"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// EffectiveScore returns the rerank score when populated, else the
// primary similarity score.
func (s ScoredFragment) EffectiveScore() float64 {
	if s.RerankScore != nil {
		return *s.RerankScore
	}
	return s.Score
}

// Citation is the display-oriented projection of a scored fragment: at
// most one per distinct source document in any citation list.
type Citation struct {
	DocumentID     string   `json:"document_id"`
	DocumentTitle  string   `json:"document_title"`
	Category       Category `json:"category"`
	CitationText   string   `json:"citation_text,omitempty"`
	SectionRef     string   `json:"section_reference,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
	Excerpt        string   `json:"excerpt"`
}
