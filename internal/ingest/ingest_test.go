package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/karrick/godirwalk"

	"github.com/openjuris/lexsearch/internal/store"
	"github.com/openjuris/lexsearch/pkg/models"
)

// MockFragmentIndex implements store.FragmentIndex for testing
type MockFragmentIndex struct {
	mu          sync.Mutex
	Inserted    []models.Fragment
	InsertedVec [][]float32
	InsertFunc  func(ctx context.Context, frags []models.Fragment, vecs [][]float32) error
}

func (m *MockFragmentIndex) Migrate(ctx context.Context, embedDim int) error { return nil }

func (m *MockFragmentIndex) InsertFragments(ctx context.Context, frags []models.Fragment, vecs [][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, frags, vecs)
	}
	m.Inserted = append(m.Inserted, frags...)
	m.InsertedVec = append(m.InsertedVec, vecs...)
	return nil
}

func (m *MockFragmentIndex) Search(ctx context.Context, category models.Category, queryVec []float32, limit int, opt store.QueryOpts) ([]models.ScoredFragment, error) {
	return []models.ScoredFragment{}, nil
}

func (m *MockFragmentIndex) CategoryCounts(ctx context.Context) (map[models.Category]int, error) {
	return map[models.Category]int{}, nil
}

// MockEmbedClient implements the ai.Client interface for testing
type MockEmbedClient struct {
	EmbedFunc func(text string) ([]float32, error)
}

func (m *MockEmbedClient) Embed(text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(text)
	}
	return []float32{0.1, 0.2}, nil
}

func (m *MockEmbedClient) Dim() int      { return 2 }
func (m *MockEmbedClient) Model() string { return "mock-embed" }

// MockWalker implements FileSystemWalker for testing
type MockWalker struct {
	Paths []string
}

func (m *MockWalker) Walk(root string, options *godirwalk.Options) error {
	for _, p := range m.Paths {
		if err := options.Callback(p, nil); err != nil {
			return err
		}
	}
	return nil
}

// MockFileReader implements FileReader for testing
type MockFileReader struct {
	Files map[string]string
}

func (m *MockFileReader) ReadFile(filename string) ([]byte, error) {
	if content, ok := m.Files[filename]; ok {
		return []byte(content), nil
	}
	return nil, errors.New("file not found: " + filename)
}

func newTestIngester(idx *MockFragmentIndex, reader *MockFileReader, walker *MockWalker) *Ingester {
	ix := New(idx, &MockEmbedClient{}, "/corpus", 1000, 200)
	ix.FileReader = reader
	if walker != nil {
		ix.Walker = walker
	} else {
		ix.Walker = &MockWalker{}
	}
	return ix
}

func TestIngesterProcessesManifestDocuments(t *testing.T) {
	idx := &MockFragmentIndex{}
	reader := &MockFileReader{Files: map[string]string{
		"/corpus/statute/contract_act.txt": "Every agreement and promise enforceable by law is a contract.",
	}}
	ix := newTestIngester(idx, reader, nil)

	manifest := Manifest{Documents: []ManifestDocument{{
		Title:    "Indian Contract Act, 1872",
		Path:     "statute/contract_act.txt",
		Category: "statute",
		Citation: "Act 9 of 1872",
	}}}

	if err := ix.Run(context.Background(), manifest); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(idx.Inserted) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(idx.Inserted))
	}
	f := idx.Inserted[0]
	if f.DocumentTitle != "Indian Contract Act, 1872" {
		t.Errorf("title = %q", f.DocumentTitle)
	}
	if f.Category != models.CategoryStatute {
		t.Errorf("category = %q", f.Category)
	}
	if f.Citation != "Act 9 of 1872" {
		t.Errorf("citation = %q", f.Citation)
	}
	if f.ChunkIndex != 0 {
		t.Errorf("chunk index = %d", f.ChunkIndex)
	}
	if f.EmbeddingModel != "mock-embed" {
		t.Errorf("embedding model = %q", f.EmbeddingModel)
	}
	if len(idx.InsertedVec) != 1 || idx.InsertedVec[0] == nil {
		t.Error("fragment inserted without embedding vector")
	}
}

func TestIngesterCitationFallsBackToTitleAndYear(t *testing.T) {
	idx := &MockFragmentIndex{}
	reader := &MockFileReader{Files: map[string]string{
		"/corpus/statute/act.txt": "some statutory text",
	}}
	ix := newTestIngester(idx, reader, nil)

	manifest := Manifest{Documents: []ManifestDocument{{
		Title:    "Indian Contract Act",
		Path:     "statute/act.txt",
		Category: "statute",
		Year:     1872,
	}}}
	if err := ix.Run(context.Background(), manifest); err != nil {
		t.Fatal(err)
	}

	if len(idx.Inserted) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(idx.Inserted))
	}
	if got := idx.Inserted[0].Citation; got != "Indian Contract Act (1872)" {
		t.Errorf("citation = %q, want synthesized title/year", got)
	}
}

func TestIngesterStableIDsAcrossRuns(t *testing.T) {
	reader := &MockFileReader{Files: map[string]string{
		"/corpus/statute/act.txt": "some statutory text",
	}}
	manifest := Manifest{Documents: []ManifestDocument{{
		Title: "An Act", Path: "statute/act.txt", Category: "statute",
	}}}

	var ids [2]string
	for run := 0; run < 2; run++ {
		idx := &MockFragmentIndex{}
		ix := newTestIngester(idx, reader, nil)
		if err := ix.Run(context.Background(), manifest); err != nil {
			t.Fatal(err)
		}
		if len(idx.Inserted) != 1 {
			t.Fatalf("run %d: expected 1 fragment", run)
		}
		ids[run] = idx.Inserted[0].ID
	}
	if ids[0] != ids[1] {
		t.Errorf("fragment ids differ across runs: %s vs %s", ids[0], ids[1])
	}
}

func TestIngesterEmbeddingFailureStillIndexes(t *testing.T) {
	idx := &MockFragmentIndex{}
	reader := &MockFileReader{Files: map[string]string{
		"/corpus/statute/act.txt": "text",
	}}
	ix := newTestIngester(idx, reader, nil)
	ix.Client = &MockEmbedClient{
		EmbedFunc: func(text string) ([]float32, error) {
			return nil, errors.New("provider down")
		},
	}

	manifest := Manifest{Documents: []ManifestDocument{{
		Title: "An Act", Path: "statute/act.txt", Category: "statute",
	}}}
	if err := ix.Run(context.Background(), manifest); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(idx.Inserted) != 1 {
		t.Fatalf("expected fragment despite embed failure, got %d", len(idx.Inserted))
	}
	if idx.InsertedVec[0] != nil {
		t.Error("expected nil vector after embed failure")
	}
}

func TestIngesterUnreadableFileFails(t *testing.T) {
	idx := &MockFragmentIndex{}
	ix := newTestIngester(idx, &MockFileReader{Files: map[string]string{}}, nil)

	manifest := Manifest{Documents: []ManifestDocument{{
		Title: "Missing", Path: "statute/missing.txt", Category: "statute",
	}}}
	if err := ix.Run(context.Background(), manifest); err == nil {
		t.Error("expected error for unreadable manifest document")
	}
}

func TestDiscoverLooseFiles(t *testing.T) {
	idx := &MockFragmentIndex{}
	reader := &MockFileReader{Files: map[string]string{
		"/corpus/regulation/it_rules.txt": "intermediary guidelines text",
		"/corpus/statute/listed.txt":      "already in the manifest",
	}}
	walker := &MockWalker{Paths: []string{
		"/corpus/regulation/it_rules.txt",
		"/corpus/statute/listed.txt",
		"/corpus/regulation/image.png",
		"/corpus/readme.txt",
		"/corpus/unknown_dir/doc.txt",
	}}
	ix := newTestIngester(idx, reader, walker)

	manifest := Manifest{Documents: []ManifestDocument{{
		Title: "Listed", Path: "statute/listed.txt", Category: "statute",
	}}}

	extra, err := ix.discoverLoose(manifest)
	if err != nil {
		t.Fatalf("discoverLoose() error: %v", err)
	}

	if len(extra) != 1 {
		t.Fatalf("expected 1 loose document, got %d: %v", len(extra), extra)
	}
	got := extra[0]
	if got.Path != "regulation/it_rules.txt" {
		t.Errorf("path = %q", got.Path)
	}
	if got.Category != string(models.CategoryRegulation) {
		t.Errorf("category = %q", got.Category)
	}
	if got.Title != "it_rules" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestExtractTextPlain(t *testing.T) {
	got, err := ExtractText("/corpus/statute/act.txt", []byte("plain contents"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "plain contents" {
		t.Errorf("ExtractText() = %q", got)
	}
}

func TestSupportedExt(t *testing.T) {
	for path, want := range map[string]bool{
		"a.txt":  true,
		"a.md":   true,
		"a.PDF":  true,
		"a.png":  false,
		"a.docx": false,
		"a":      false,
	} {
		if got := supportedExt(path); got != want {
			t.Errorf("supportedExt(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestIngesterMultipleChunks(t *testing.T) {
	idx := &MockFragmentIndex{}
	long := strings.TrimSpace(strings.Repeat("statutory provision text ", 200))
	reader := &MockFileReader{Files: map[string]string{
		"/corpus/statute/long.txt": long,
	}}
	ix := newTestIngester(idx, reader, nil)
	ix.ChunkSize = 500
	ix.ChunkOverlap = 100

	manifest := Manifest{Documents: []ManifestDocument{{
		Title: "Long Act", Path: "statute/long.txt", Category: "statute",
	}}}
	if err := ix.Run(context.Background(), manifest); err != nil {
		t.Fatal(err)
	}

	if len(idx.Inserted) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(idx.Inserted))
	}
	seen := map[int]bool{}
	docID := idx.Inserted[0].DocumentID
	for _, f := range idx.Inserted {
		if f.DocumentID != docID {
			t.Error("fragments from one file should share a document id")
		}
		seen[f.ChunkIndex] = true
	}
	for i := 0; i < len(idx.Inserted); i++ {
		if !seen[i] {
			t.Errorf("missing chunk index %d", i)
		}
	}
}
