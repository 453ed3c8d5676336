package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/openjuris/lexsearch/internal/ai"
	"github.com/openjuris/lexsearch/internal/store"
	"github.com/openjuris/lexsearch/pkg/models"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Manifest describes the corpus: which files to ingest and the legal
// metadata that cannot be derived from the files themselves.
type Manifest struct {
	Documents []ManifestDocument `yaml:"documents"`
}

// ManifestDocument is one corpus entry. Path is relative to the corpus
// root.
type ManifestDocument struct {
	Title    string `yaml:"title"`
	Path     string `yaml:"path"`
	Category string `yaml:"category"`
	Citation string `yaml:"citation"`
	Year     int    `yaml:"year"`
}

// LoadManifest reads a corpus manifest from a YAML file.
func LoadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Ingester chunks, embeds and indexes the legal corpus.
type Ingester struct {
	Store        store.FragmentIndex
	Client       ai.Client
	CorpusDir    string
	ChunkSize    int
	ChunkOverlap int
	Walker       FileSystemWalker
	FileReader   FileReader
}

// New creates an Ingester with default filesystem dependencies.
func New(s store.FragmentIndex, client ai.Client, corpusDir string, chunkSize, chunkOverlap int) *Ingester {
	return &Ingester{
		Store:        s,
		Client:       client,
		CorpusDir:    corpusDir,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Walker:       &DefaultFileSystemWalker{},
		FileReader:   &DefaultFileReader{},
	}
}

// documentID derives a stable id from the corpus-relative path so
// re-ingesting a document upserts rather than duplicates.
func documentID(relPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(relPath)).String()
}

func fragmentID(relPath string, idx int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(relPath+"#"+strconv.Itoa(idx))).String()
}

// processDocument extracts, chunks, embeds and inserts one document.
func (ix *Ingester) processDocument(ctx context.Context, doc ManifestDocument) error {
	full := filepath.Join(ix.CorpusDir, doc.Path)
	raw, err := ix.FileReader.ReadFile(full)
	if err != nil {
		return fmt.Errorf("read %s: %w", doc.Path, err)
	}

	text, err := ExtractText(full, raw)
	if err != nil {
		return fmt.Errorf("extract %s: %w", doc.Path, err)
	}

	pieces := ChunkText(text, ix.ChunkSize, ix.ChunkOverlap)
	if len(pieces) == 0 {
		log.Warn().Str("path", doc.Path).Msg("document produced no fragments")
		return nil
	}

	docID := documentID(doc.Path)
	category := models.ParseCategory(doc.Category)

	citation := doc.Citation
	if citation == "" && doc.Year != 0 {
		citation = fmt.Sprintf("%s (%d)", doc.Title, doc.Year)
	}

	frags := make([]models.Fragment, 0, len(pieces))
	vecs := make([][]float32, 0, len(pieces))
	for i, piece := range pieces {
		vec, err := ix.Client.Embed(piece)
		if err != nil {
			log.Warn().Err(err).Str("path", doc.Path).Int("chunk", i).Msg("embedding failed, indexing without vector")
			vec = nil
		}
		frags = append(frags, models.Fragment{
			ID:             fragmentID(doc.Path, i),
			DocumentID:     docID,
			DocumentTitle:  doc.Title,
			Category:       category,
			Content:        piece,
			Citation:       citation,
			ChunkIndex:     i,
			EmbeddingModel: ix.Client.Model(),
		})
		vecs = append(vecs, vec)
	}

	log.Info().Str("title", doc.Title).Str("category", string(category)).Int("fragments", len(frags)).Msg("indexing document")
	if err := ix.Store.InsertFragments(ctx, frags, vecs); err != nil {
		return fmt.Errorf("insert %s: %w", doc.Path, err)
	}
	return nil
}

// Run ingests every manifest document plus any loose supported files
// found under per-category corpus subdirectories.
func (ix *Ingester) Run(ctx context.Context, manifest Manifest) error {
	docs := append([]ManifestDocument(nil), manifest.Documents...)

	extra, err := ix.discoverLoose(manifest)
	if err != nil {
		log.Warn().Err(err).Msg("corpus walk failed, ingesting manifest documents only")
	} else {
		docs = append(docs, extra...)
	}

	if len(docs) == 0 {
		log.Warn().Str("dir", ix.CorpusDir).Msg("nothing to ingest")
		return nil
	}

	// Worker pool capped to keep embedding API pressure sane.
	numWorkers := runtime.NumCPU()
	if numWorkers > 8 {
		numWorkers = 8
	}
	log.Info().Int("workers", numWorkers).Int("documents", len(docs)).Msg("starting concurrent ingestion")

	workChan := make(chan ManifestDocument, numWorkers*2)
	errorChan := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("worker started")

			for doc := range workChan {
				if err := ix.processDocument(ctx, doc); err != nil {
					select {
					case errorChan <- err:
					default:
						log.Error().Err(err).Str("path", doc.Path).Msg("worker processing error")
					}
				}
			}

			log.Debug().Int("worker", workerID).Msg("worker finished")
		}(i)
	}

	var sendErr error
	for _, doc := range docs {
		select {
		case workChan <- doc:
		case <-ctx.Done():
			sendErr = ctx.Err()
		}
		if sendErr != nil {
			break
		}
	}
	close(workChan)
	wg.Wait()
	close(errorChan)

	if sendErr != nil {
		return sendErr
	}
	if err := <-errorChan; err != nil {
		return err
	}
	return nil
}

// discoverLoose walks the corpus directory for supported files not
// listed in the manifest. Files under a top-level directory named after
// a category are ingested into that category with the filename as the
// title.
func (ix *Ingester) discoverLoose(manifest Manifest) ([]ManifestDocument, error) {
	listed := make(map[string]struct{}, len(manifest.Documents))
	for _, d := range manifest.Documents {
		listed[filepath.Clean(d.Path)] = struct{}{}
	}

	known := make(map[string]models.Category, len(models.AllCategories()))
	for _, c := range models.AllCategories() {
		known[string(c)] = c
	}

	var extra []ManifestDocument
	err := ix.Walker.Walk(ix.CorpusDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			if !supportedExt(path) {
				return nil
			}

			rel, err := filepath.Rel(ix.CorpusDir, path)
			if err != nil {
				return nil
			}
			rel = filepath.Clean(rel)
			if _, ok := listed[rel]; ok {
				return nil
			}

			parts := strings.Split(rel, string(os.PathSeparator))
			if len(parts) < 2 {
				return nil
			}
			cat, ok := known[parts[0]]
			if !ok {
				log.Warn().Str("path", rel).Msg("loose file outside a category directory, skipping")
				return nil
			}

			base := filepath.Base(rel)
			title := strings.TrimSuffix(base, filepath.Ext(base))
			extra = append(extra, ManifestDocument{
				Title:    title,
				Path:     rel,
				Category: string(cat),
			})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return extra, nil
}
