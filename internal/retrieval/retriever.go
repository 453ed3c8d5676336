package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openjuris/lexsearch/internal/ai"
	"github.com/openjuris/lexsearch/internal/store"
	"github.com/openjuris/lexsearch/pkg/models"
)

// Index is the slice of the document-index capability the retriever
// itself needs: one bounded nearest-neighbor search per category.
type Index interface {
	Search(ctx context.Context, category models.Category, queryVec []float32, limit int, opt store.QueryOpts) ([]models.ScoredFragment, error)
}

// Retriever turns a query into a ranked, bounded set of evidence
// fragments. Reranker may be nil; the retriever then ranks on primary
// similarity scores only.
type Retriever struct {
	Index    Index
	Client   ai.Client
	Reranker Reranker
	TopK     int
}

// NewRetriever creates a retriever with the provided collaborators.
func NewRetriever(index Index, client ai.Client, reranker Reranker, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		Index:    index,
		Client:   client,
		Reranker: reranker,
		TopK:     topK,
	}
}

// Retrieve searches the selected categories for the query and returns
// at most k fragments ordered by descending relevance. With categories
// nil every category is searched. A fully empty result is a normal
// "nothing found" outcome, not an error.
func (r *Retriever) Retrieve(
	ctx context.Context,
	query string,
	k int,
	categories []models.Category,
	useRerank bool,
	opt store.QueryOpts,
) []models.ScoredFragment {
	query = strings.TrimSpace(query)
	if k <= 0 {
		k = r.TopK
	}
	if len(categories) == 0 {
		categories = models.AllCategories()
	}

	// Overfetch so the cross-encoder has candidates worth reordering.
	initialK := k
	if useRerank && r.Reranker != nil {
		initialK = k * 3
	}

	head, err := r.Client.Embed(query)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("query embedding failed, proceeding with empty vector")
		head = nil
	}

	// One index search per category, fanned out concurrently. Each
	// goroutine owns its slot so the merged pool order stays
	// deterministic (category order, then index order).
	perCategory := make([][]models.ScoredFragment, len(categories))
	var wg sync.WaitGroup
	for i, cat := range categories {
		wg.Add(1)
		go func(i int, cat models.Category) {
			defer wg.Done()
			res, err := r.Index.Search(ctx, cat, head, initialK, opt)
			if err != nil {
				log.Warn().Err(err).Str("category", string(cat)).Msg("category search failed, skipping")
				return
			}
			perCategory[i] = res
		}(i, cat)
	}
	wg.Wait()

	var pool []models.ScoredFragment
	for _, res := range perCategory {
		pool = append(pool, res...)
	}
	if len(pool) == 0 {
		return []models.ScoredFragment{}
	}

	// Scores from different categories are compared directly; the
	// collections share an embedding space so no per-category
	// calibration is applied.
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Score > pool[j].Score
	})

	// The whole merged pool feeds the reranker; only the final result
	// is cut down to k.
	if useRerank && r.Reranker != nil {
		reranked, err := r.Reranker.Rerank(ctx, query, pool)
		if err != nil {
			log.Warn().Err(err).Msg("rerank failed, keeping similarity order")
		} else {
			pool = reranked
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].EffectiveScore() > pool[j].EffectiveScore()
	})
	if len(pool) > k {
		pool = pool[:k]
	}
	return pool
}

// RetrieveWithContext augments the query with recent conversation turns
// and domain synonyms, routes it to the inferred categories, and
// retrieves. This is the composition the chat front-end uses.
func (r *Retriever) RetrieveWithContext(
	ctx context.Context,
	query string,
	history []string,
	k int,
	useRerank bool,
) []models.ScoredFragment {
	enhanced := ExpandQuery(WithHistory(query, history))
	cats := InferCategories(query)
	return r.Retrieve(ctx, enhanced, k, cats, useRerank, store.QueryOpts{})
}
