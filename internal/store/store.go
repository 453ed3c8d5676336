package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"github.com/openjuris/lexsearch/pkg/models"
)

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// FragmentIndex defines the document-index capability the retrieval
// core and the ingester depend on.
type FragmentIndex interface {
	Migrate(ctx context.Context, embedDim int) error
	InsertFragments(ctx context.Context, frags []models.Fragment, vecs [][]float32) error
	Search(ctx context.Context, category models.Category, queryVec []float32, limit int, opt QueryOpts) ([]models.ScoredFragment, error)
	CategoryCounts(ctx context.Context) (map[models.Category]int, error)
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Migrate applies necessary database migrations and schema setup.
func (s *Store) Migrate(ctx context.Context, embedDim int) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS fragments (
  id              TEXT PRIMARY KEY,
  document_id     TEXT NOT NULL,
  document_title  TEXT NOT NULL DEFAULT '',
  category        TEXT NOT NULL,
  content         TEXT NOT NULL DEFAULT '',
  citation        TEXT NOT NULL DEFAULT '',
  section_ref     TEXT NOT NULL DEFAULT '',
  chunk_index     INT NOT NULL DEFAULT 0,
  embedding_model TEXT NOT NULL DEFAULT '',
  embedding       vector(%d),
  created_at      TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS fragments_category_idx
  ON fragments (category);

CREATE INDEX IF NOT EXISTS fragments_document_idx
  ON fragments (document_id, chunk_index);

CREATE INDEX IF NOT EXISTS fragments_embedding_idx
  ON fragments USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, embedDim))
	return err
}

// InsertFragments writes a batch of fragments with their embeddings.
// vecs[i] belongs to frags[i]; a nil vector leaves the embedding column
// NULL so the row is invisible to similarity search.
func (s *Store) InsertFragments(ctx context.Context, frags []models.Fragment, vecs [][]float32) error {
	if len(vecs) != len(frags) {
		return fmt.Errorf("fragment/vector count mismatch: %d != %d", len(frags), len(vecs))
	}

	const q = `
		INSERT INTO fragments (
			id, document_id, document_title, category, content,
			citation, section_ref, chunk_index, embedding_model, embedding, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		ON CONFLICT (id) DO UPDATE SET
			content         = EXCLUDED.content,
			citation        = EXCLUDED.citation,
			section_ref     = EXCLUDED.section_ref,
			embedding_model = EXCLUDED.embedding_model,
			embedding       = COALESCE(EXCLUDED.embedding, fragments.embedding),
			created_at      = fragments.created_at;`

	batch := &pgx.Batch{}
	for i, f := range frags {
		var ev any
		if vecs[i] != nil {
			ev = pgvector.NewVector(vecs[i])
		} else {
			ev = (*pgvector.Vector)(nil)
		}
		batch.Queue(q,
			f.ID, f.DocumentID, f.DocumentTitle, string(f.Category), f.Content,
			f.Citation, f.SectionRef, f.ChunkIndex, f.EmbeddingModel, ev,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range frags {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert fragment batch: %w", err)
		}
	}
	return nil
}

// QueryOpts narrows a similarity search with optional metadata filters.
type QueryOpts struct {
	DocumentID    string // optional: restrict to a single source document
	TitleContains string // optional substring filter on the document title
}

// Search runs a nearest-neighbor query against one category collection.
// Scores are cosine similarities clamped to [0,1], higher = more relevant.
func (s *Store) Search(
	ctx context.Context,
	category models.Category,
	queryVec []float32,
	limit int,
	opt QueryOpts,
) ([]models.ScoredFragment, error) {
	if len(queryVec) == 0 {
		return []models.ScoredFragment{}, nil
	}

	args := []any{pgvector.NewVector(queryVec), string(category)}
	ai := 3

	where := "category = $2 AND embedding IS NOT NULL"
	if opt.DocumentID != "" {
		where += fmt.Sprintf(" AND document_id = $%d", ai)
		args = append(args, opt.DocumentID)
		ai++
	}
	if opt.TitleContains != "" {
		where += fmt.Sprintf(" AND document_title ILIKE '%%' || $%d || '%%'", ai)
		args = append(args, opt.TitleContains)
	}

	q := fmt.Sprintf(`
SELECT
  id,
  COALESCE(document_id, ''),
  COALESCE(document_title, ''),
  COALESCE(category, ''),
  COALESCE(content, ''),
  COALESCE(citation, ''),
  COALESCE(section_ref, ''),
  COALESCE(chunk_index, 0),
  COALESCE(embedding_model, ''),
  COALESCE(created_at, now()),
  LEAST(GREATEST(1.0 - (embedding <=> $1::vector), 0), 1) AS score
FROM fragments
WHERE %s
ORDER BY embedding <=> $1::vector
LIMIT %d;
`, where, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredFragment
	for rows.Next() {
		var f models.Fragment
		var cat string
		var score float64
		if err := rows.Scan(
			&f.ID, &f.DocumentID, &f.DocumentTitle, &cat, &f.Content,
			&f.Citation, &f.SectionRef, &f.ChunkIndex, &f.EmbeddingModel, &f.CreatedAt,
			&score,
		); err != nil {
			return nil, err
		}
		if f.DocumentID == "" || cat == "" {
			log.Warn().Str("fragment", f.ID).Msg("fragment row missing metadata, substituting defaults")
		}
		f.Category = models.ParseCategory(cat)
		out = append(out, models.ScoredFragment{Fragment: f, Score: score})
	}
	return out, rows.Err()
}

// CategoryCounts returns the number of fragments per category. Used by
// bootstrap logic to decide whether ingestion is needed.
func (s *Store) CategoryCounts(ctx context.Context) (map[models.Category]int, error) {
	counts := make(map[models.Category]int, len(models.AllCategories()))
	for _, c := range models.AllCategories() {
		counts[c] = 0
	}

	rows, err := s.pool.Query(ctx, `SELECT category, COUNT(*) FROM fragments GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[models.ParseCategory(cat)] += n
	}
	return counts, rows.Err()
}

// Documents returns distinct document titles for a category, ordered.
func (s *Store) Documents(ctx context.Context, category models.Category) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT document_title FROM fragments WHERE category = $1 ORDER BY document_title`,
		string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// HasDocument reports whether any fragment for the document id exists.
func (s *Store) HasDocument(ctx context.Context, documentID string) (bool, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM fragments WHERE document_id = $1 LIMIT 1`, documentID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
