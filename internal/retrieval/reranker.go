package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openjuris/lexsearch/pkg/models"
)

// Reranker is a second-stage scorer: it pairs the query with each
// candidate fragment's content and scores the pairs with a
// cross-encoder model. On error callers fall back to primary scores.
type Reranker interface {
	Rerank(ctx context.Context, query string, frags []models.ScoredFragment) ([]models.ScoredFragment, error)
	Model() string
}

// HTTPReranker scores (query, passage) pairs through a hosted
// cross-encoder service speaking the text-embeddings-inference rerank
// protocol: POST /rerank {"query": ..., "texts": [...]} returning
// [{"index": i, "score": s}, ...].
type HTTPReranker struct {
	url   string
	model string
	http  *http.Client
}

// NewHTTPReranker builds a reranker client for the given endpoint. An
// empty URL is an initialization failure; the caller is expected to
// degrade to primary-score ranking.
func NewHTTPReranker(url, model string) (*HTTPReranker, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("rerank URL unset")
	}
	return &HTTPReranker{
		url:   strings.TrimRight(url, "/"),
		model: model,
		http:  &http.Client{Timeout: 20 * time.Second},
	}, nil
}

func (r *HTTPReranker) Model() string {
	return r.model
}

// Rerank writes a rerank score onto every fragment and reorders the
// result by that score, descending. The primary similarity score is
// kept so downstream code can still fall back to it. Ties keep their
// pre-rerank relative order.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, frags []models.ScoredFragment) ([]models.ScoredFragment, error) {
	if len(frags) == 0 {
		return frags, nil
	}

	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Fragment.Content
	}

	payload := map[string]any{
		"query": query,
		"texts": texts,
	}
	if r.model != "" {
		payload["model"] = r.model
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/rerank", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank service returned %s", resp.Status)
	}

	var scored []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&scored); err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, errors.New("rerank service returned no scores")
	}

	out := make([]models.ScoredFragment, len(frags))
	copy(out, frags)
	for _, sc := range scored {
		if sc.Index < 0 || sc.Index >= len(out) {
			return nil, fmt.Errorf("rerank index %d out of range", sc.Index)
		}
		s := sc.Score
		out[sc.Index].RerankScore = &s
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveScore() > out[j].EffectiveScore()
	})
	return out, nil
}
