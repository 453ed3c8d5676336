package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/openjuris/lexsearch/internal/ai"
	"github.com/openjuris/lexsearch/internal/auth"
	"github.com/openjuris/lexsearch/internal/config"
	"github.com/openjuris/lexsearch/internal/retrieval"
	"github.com/openjuris/lexsearch/internal/store"
	"github.com/openjuris/lexsearch/pkg/models"
)

type Simple struct {
	DocumentID    string   `json:"document_id"`
	DocumentTitle string   `json:"document_title"`
	Category      string   `json:"category"`
	SectionRef    string   `json:"section_reference,omitempty"`
	Citation      string   `json:"citation,omitempty"`
	Score         float64  `json:"score"`
	RerankScore   *float64 `json:"rerank_score,omitempty"`
	Content       string   `json:"content"`
}

type SearchResponse struct {
	Query     string            `json:"query"`
	Fragments []Simple          `json:"fragments"`
	Citations []models.Citation `json:"citations"`
}

func output(res []models.ScoredFragment) (out []Simple) {
	out = make([]Simple, 0, len(res))
	for _, r := range res {
		score := r.Score
		if math.IsNaN(score) || math.IsInf(score, 0) {
			score = 0
		}
		out = append(out, Simple{
			DocumentID:    r.Fragment.DocumentID,
			DocumentTitle: r.Fragment.DocumentTitle,
			Category:      string(r.Fragment.Category),
			SectionRef:    r.Fragment.SectionRef,
			Citation:      r.Fragment.Citation,
			Score:         score,
			RerankScore:   r.RerankScore,
			Content:       r.Fragment.Content,
		})
	}
	return out
}

func buildClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Provider:   ai.ProviderOpenAI,
		}, nil
	case "vertexai", "google":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Location:   cfg.Location,
			Provider:   ai.ProviderVertexAI,
		}, nil
	case "stub":
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("lexsearch-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting lexsearch api")

	clientConfig, err := buildClientConfig(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	auth.InitializeAuth(cfg.Auth.JwtSecret, cfg.Auth.APIKey, cfg.Auth.Enabled)

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	// The index is the only hard dependency; without it there is
	// nothing to serve.
	if err := st.Ping(ctx); err != nil {
		log.Fatalf("Document index unreachable: %v", err)
	}

	c, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}

	dim := c.Dim()
	logger.Info().Int("embedding_dim", dim).Str("embed_model", clientConfig.EmbedModel).Msg("embedding client initialized")

	if err := st.Migrate(ctx, dim); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Reranker availability is a soft capability: initialization
	// failure downgrades to similarity-only ranking, logged once.
	var reranker retrieval.Reranker
	if cfg.Reranker.Enabled {
		rr, err := retrieval.NewHTTPReranker(cfg.Reranker.URL, cfg.Reranker.Model)
		if err != nil {
			logger.Warn().Err(err).Msg("reranker unavailable, falling back to similarity-only ranking")
		} else {
			reranker = rr
			logger.Info().Str("model", rr.Model()).Msg("cross-encoder reranker initialized")
		}
	}

	retriever := retrieval.NewRetriever(st, c, reranker, cfg.TopK)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	// Auth status endpoint (always available)
	mux.HandleFunc("/auth/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]bool{"enabled": auth.IsAuthEnabled()})
		if err != nil {
			http.Error(w, "Failed to encode response", 500)
		}
	})

	if auth.IsAuthEnabled() {
		log.Println("Authentication is ENABLED")

		mux.HandleFunc("/auth/token", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "POST" {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}

			var body struct {
				APIKey string `json:"api_key"`
				Client string `json:"client"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}

			token, err := auth.ExchangeAPIKey(body.APIKey, body.Client)
			if err != nil {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(auth.TokenResponse{Token: token}); err != nil {
				http.Error(w, "Failed to encode response", 500)
			}
		})
	} else {
		log.Println("Authentication is DISABLED - running in open mode")
	}

	mux.HandleFunc("/categories", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		counts, err := st.CategoryCounts(ctx)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(counts); err != nil {
			http.Error(w, "Failed to encode categories", 500)
		}
	}))

	mux.HandleFunc("/documents", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		cat := r.URL.Query().Get("category")
		if cat == "" {
			http.Error(w, "missing query parameter category", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		titles, err := st.Documents(ctx, models.ParseCategory(cat))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if titles == nil {
			titles = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(titles); err != nil {
			http.Error(w, "Failed to encode documents", 500)
		}
	}))

	mux.HandleFunc("/search", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		q := r.URL.Query().Get("q")
		if q == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}

		k := cfg.TopK
		if v := r.URL.Query().Get("k"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				k = n
			}
		}

		useRerank := true
		if v := r.URL.Query().Get("rerank"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				useRerank = b
			}
		}

		history := r.URL.Query()["history"]

		// The augmenter transforms are independent; this endpoint
		// prepends conversation context first, then appends synonyms.
		enhanced := retrieval.ExpandQuery(retrieval.WithHistory(q, history))

		var cats []models.Category
		if v := r.URL.Query().Get("categories"); v != "" {
			for _, part := range strings.Split(v, ",") {
				part = strings.TrimSpace(part)
				if part != "" {
					cats = append(cats, models.ParseCategory(part))
				}
			}
		} else {
			cats = retrieval.InferCategories(q)
		}

		opt := store.QueryOpts{
			DocumentID:    r.URL.Query().Get("document_id"),
			TitleContains: r.URL.Query().Get("title_contains"),
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		res := retriever.Retrieve(ctx, enhanced, k, cats, useRerank, opt)

		if v := r.URL.Query().Get("max_tokens"); v != "" {
			if budget, err := strconv.Atoi(v); err == nil {
				res = retrieval.Compress(res, budget)
			}
		}

		citations := retrieval.BuildCitations(res)

		w.Header().Set("Content-Type", "application/json")
		resp := SearchResponse{
			Query:     q,
			Fragments: output(res),
			Citations: citations,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("failed to encode response: %v", err)
			_, _ = w.Write([]byte("{}"))
		}

		hlog.FromRequest(r).Info().Str("path", "/search").Str("q", q).Int("k", k).Bool("rerank", useRerank).Int("results", len(res)).Dur("dur", time.Since(start)).Msg("served")
	}))

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}
