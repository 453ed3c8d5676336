package main

import (
	"context"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/openjuris/lexsearch/internal/ai"
	"github.com/openjuris/lexsearch/internal/config"
	"github.com/openjuris/lexsearch/internal/ingest"
	"github.com/openjuris/lexsearch/internal/store"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("lexsearch-ingest", pflag.ExitOnError)
	fs.Bool("force", false, "Ingest even when the index is already populated")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage
	force, _ := fs.GetBool("force")

	provider := strings.ToLower(cfg.Provider)
	log.Printf("using provider: %s", provider)
	var clientConfig *ai.ClientConfig
	switch provider {
	case "openai":
		clientConfig = &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Provider:   ai.ProviderOpenAI,
		}
	case "vertexai":
		clientConfig = &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Location:   cfg.Location,
			Provider:   ai.ProviderVertexAI,
		}
	case "stub":
		clientConfig = &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}
	default:
		log.Fatalf("unsupported provider: %s", provider)
	}

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	client, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatal(err)
	}
	if client.Dim() == 0 {
		log.Fatal("embedding dimension must be set")
	}

	if err := st.Migrate(ctx, client.Dim()); err != nil {
		log.Fatal(err)
	}

	// A populated index is not re-ingested unless forced.
	counts, err := st.CategoryCounts(ctx)
	if err != nil {
		log.Fatal(err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total > 0 && !force {
		log.Printf("index already holds %d fragments, skipping ingestion (use --force to override)", total)
		return
	}

	manifest, err := ingest.LoadManifest(cfg.ManifestPath)
	if err != nil {
		log.Printf("no corpus manifest (%v), relying on corpus directory layout", err)
	}

	ix := ingest.New(st, client, cfg.CorpusDir, cfg.ChunkSize, cfg.ChunkOverlap)
	if err := ix.Run(ctx, manifest); err != nil {
		log.Fatal(err)
	}
}
