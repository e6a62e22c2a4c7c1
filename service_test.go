package codeindex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/codeindex/embedding"
	"github.com/flarexio/codeindex/grammar"
	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/persistence/bolt"
	"github.com/flarexio/codeindex/persistence/chromem"
	"github.com/flarexio/codeindex/segment"
	"github.com/flarexio/codeindex/vector"
)

const mathJS = "function add(a,b){\n return a+b;\n}\n\nfunction sub(a,b){\n return a-b;\n}"

// bagOfBytes embeds a text as a byte histogram.
func bagOfBytes(ctx context.Context, model string, text string) ([]float32, error) {
	v := make([]float32, 8)
	v[0] = 1
	for _, b := range []byte(text) {
		v[b%8]++
	}
	return v, nil
}

type countingEmbedder struct {
	embedding.Embedder
	mu    sync.Mutex
	calls int
	fail  func(text string) bool
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	return e.Embedder.Embed(ctx, texts, model)
}

func newCountingEmbedder(fail func(text string) bool) *countingEmbedder {
	e := &countingEmbedder{fail: fail}
	e.Embedder = embedding.NewClient(func(ctx context.Context, model, text string) ([]float32, error) {
		if e.fail != nil && e.fail(text) {
			return nil, errors.New("embedding provider unavailable")
		}
		return bagOfBytes(ctx, model, text)
	})
	return e
}

type recordingStore struct {
	vector.Store
	mu       sync.Mutex
	ensured  []int
	upserts  []int
	limits   []int
	filters  []vector.Filter
	ensureFn func() error
}

func (s *recordingStore) EnsureCollection(ctx context.Context, size int, distance vector.Distance) error {
	s.mu.Lock()
	s.ensured = append(s.ensured, size)
	s.mu.Unlock()

	if s.ensureFn != nil {
		return s.ensureFn()
	}

	return s.Store.EnsureCollection(ctx, size, distance)
}

func (s *recordingStore) Upsert(ctx context.Context, points []vector.Point) error {
	s.mu.Lock()
	s.upserts = append(s.upserts, len(points))
	s.mu.Unlock()

	return s.Store.Upsert(ctx, points)
}

func (s *recordingStore) Search(ctx context.Context, v []float32, limit int, filter vector.Filter) ([]vector.Hit, error) {
	s.mu.Lock()
	s.limits = append(s.limits, limit)
	s.filters = append(s.filters, filter)
	s.mu.Unlock()

	return s.Store.Search(ctx, v, limit, filter)
}

type codeIndexTestSuite struct {
	suite.Suite
	ctx      context.Context
	cfg      Config
	embedder *countingEmbedder
	store    *recordingStore
	files    manifest.Manifest
	svc      Service
}

func (suite *codeIndexTestSuite) SetupTest() {
	suite.ctx = context.Background()

	suite.cfg = Config{
		Embedding: embedding.Config{
			Model: "nomic-embed-text",
		},
		Vector: vector.Config{
			Provider:   vector.ProviderChromem,
			Collection: "code_chunks",
		},
	}

	suite.newService(nil)
}

func (suite *codeIndexTestSuite) newService(fail func(string) bool) {
	store, err := chromem.NewStore(suite.cfg.Vector)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	files, err := bolt.NewManifest(filepath.Join(suite.T().TempDir(), "manifest.db"))
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	loader := grammar.NewLoader(grammar.WithLanguages(grammar.JavaScript, grammar.Python))
	segmenter := segment.NewSegmenter(loader, nil)

	suite.embedder = newCountingEmbedder(fail)
	suite.store = &recordingStore{Store: store}
	suite.files = files

	svc, err := NewService(suite.cfg, segmenter, suite.embedder, suite.store, files)
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.svc = svc
}

func (suite *codeIndexTestSuite) TearDownTest() {
	if suite.svc != nil {
		suite.svc.Close()
	}
}

func (suite *codeIndexTestSuite) TestIndexFile() {
	result, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal("src/math.js", result.FilePath)
	suite.Equal("javascript", result.Language)
	suite.Equal(2, result.ChunkCount)
	suite.Equal(2, result.Indexed)
	suite.Equal([]string{"src/math.js:1-3", "src/math.js:5-7"}, result.PointIDs)

	suite.Equal([]int{8}, suite.store.ensured)
	suite.Equal([]int{2}, suite.store.upserts)

	hits, err := suite.svc.FindSimilar(suite.ctx, "function add(a,b){\n return a+b;\n}", 5)
	if !suite.NoError(err) || !suite.Len(hits, 2) {
		return
	}

	suite.Equal("src/math.js:1-3", hits[0].ID)
	suite.Equal("function", hits[0].Payload.Type)
	suite.Equal(1, hits[0].Payload.StartLine)
	suite.Equal(3, hits[0].Payload.EndLine)
	suite.GreaterOrEqual(hits[0].Score, hits[1].Score)
}

func (suite *codeIndexTestSuite) TestIndexEmptyFile() {
	result, err := suite.svc.IndexFile(suite.ctx, "empty.ts", "", "typescript")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal(0, result.ChunkCount)
	suite.Equal([]int{DefaultVectorSize}, suite.store.ensured)
	suite.Equal([]int{0}, suite.store.upserts)
	suite.Equal(0, suite.embedder.calls)
}

func (suite *codeIndexTestSuite) TestIndexFileIsIdempotent() {
	first, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")
	suite.NoError(err)

	second, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")
	suite.NoError(err)

	suite.Equal(first.PointIDs, second.PointIDs)

	hits, err := suite.svc.Query(suite.ctx, "add two numbers", MaxSearchResults)
	suite.NoError(err)
	suite.Len(hits, 2)
}

func (suite *codeIndexTestSuite) TestIndexFileValidation() {
	_, err := suite.svc.IndexFile(suite.ctx, "  ", mathJS, "javascript")
	suite.ErrorIs(err, ErrValidation)

	suite.Empty(suite.store.ensured)
	suite.Equal(0, suite.embedder.calls)
}

func (suite *codeIndexTestSuite) TestIndexFileCapsChunks() {
	var b strings.Builder
	for i := range 250 {
		fmt.Fprintf(&b, "paragraph %d\n\n", i)
	}

	result, err := suite.svc.IndexFile(suite.ctx, "notes.txt", b.String(), "text")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal(DefaultMaxChunks, result.ChunkCount)
	suite.Equal(DefaultMaxChunks, result.Indexed)
}

func (suite *codeIndexTestSuite) TestEnsureFailureIsNotFatal() {
	suite.store.ensureFn = func() error {
		return errors.New("collection create failed")
	}

	result, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "js")
	suite.NoError(err)
	suite.Equal(2, result.Indexed)
}

func (suite *codeIndexTestSuite) TestSkipFailedEmbeddings() {
	suite.newService(func(text string) bool {
		return strings.Contains(text, "sub")
	})

	result, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")
	if err != nil {
		suite.Fail(err.Error())
		return
	}

	suite.Equal(2, result.ChunkCount)
	suite.Equal(1, result.Indexed)
	suite.Equal(1, result.Skipped)
	suite.Equal([]string{"src/math.js:1-3"}, result.PointIDs)
}

func (suite *codeIndexTestSuite) TestAllEmbeddingsFailed() {
	suite.newService(func(text string) bool {
		return true
	})

	_, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")

	var depErr *DependencyError
	suite.ErrorAs(err, &depErr)
	suite.Equal(DependencyEmbedding, depErr.Dependency)
	suite.ErrorIs(err, ErrNothingEmbedded)
	suite.Empty(suite.store.upserts)
}

func (suite *codeIndexTestSuite) TestAbortOnEmbeddingFailure() {
	suite.cfg.Index.OnEmbedError = PolicyAbort
	suite.newService(func(text string) bool {
		return strings.Contains(text, "sub")
	})

	_, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")

	var depErr *DependencyError
	suite.ErrorAs(err, &depErr)

	var batchErr *embedding.BatchError
	suite.ErrorAs(err, &batchErr)
	suite.True(batchErr.Failed(1))
	suite.Empty(suite.store.upserts)
}

func (suite *codeIndexTestSuite) TestSearchLimits() {
	_, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")
	suite.NoError(err)

	suite.svc.FindSimilar(suite.ctx, "a+b", 100)
	suite.svc.FindSimilar(suite.ctx, "a+b", 0)
	suite.svc.FindSimilar(suite.ctx, "a+b", 3)
	suite.svc.Query(suite.ctx, "sum", 0)
	suite.svc.Query(suite.ctx, "sum", 51)

	suite.Equal([]int{MaxSearchResults, DefaultTopK, 3, DefaultMaxResults, MaxSearchResults}, suite.store.limits)
}

func (suite *codeIndexTestSuite) TestSearchValidation() {
	_, err := suite.svc.FindSimilar(suite.ctx, " \n", 5)
	suite.ErrorIs(err, ErrValidation)

	_, err = suite.svc.Query(suite.ctx, "", 5)
	suite.ErrorIs(err, ErrValidation)

	suite.Equal(0, suite.embedder.calls)
	suite.Empty(suite.store.limits)
}

func (suite *codeIndexTestSuite) TestSearchEmptyCollection() {
	hits, err := suite.svc.Query(suite.ctx, "anything", 5)
	suite.NoError(err)
	suite.NotNil(hits)
	suite.Empty(hits)
}

func (suite *codeIndexTestSuite) TestSearchByLanguage() {
	_, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")
	suite.NoError(err)

	_, err = suite.svc.IndexFile(suite.ctx, "util.py", "def add(a, b):\n    return a + b\n", "py")
	suite.NoError(err)

	hits, err := suite.svc.FindSimilar(suite.ctx, "add", 10, "python")
	if !suite.NoError(err) || !suite.Len(hits, 1) {
		return
	}

	suite.Equal("util.py", hits[0].Payload.FilePath)
	suite.Equal("python", hits[0].Payload.Language)

	hits, err = suite.svc.FindSimilar(suite.ctx, "add", 10, "js")
	suite.NoError(err)
	suite.Len(hits, 2)
	suite.Equal(vector.Filter{"language": "javascript"}, suite.store.filters[1])
}

func (suite *codeIndexTestSuite) TestRemoveAndListFiles() {
	_, err := suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "javascript")
	suite.NoError(err)

	_, err = suite.svc.IndexFile(suite.ctx, "README.md", "# Title\nhello\n", "markdown")
	suite.NoError(err)

	files, err := suite.svc.ListFiles(suite.ctx)
	if !suite.NoError(err) || !suite.Len(files, 2) {
		return
	}

	suite.Equal("README.md", files[0].FilePath)
	suite.Equal("src/math.js", files[1].FilePath)
	suite.Equal(2, files[1].ChunkCount)

	suite.NoError(suite.svc.RemoveFile(suite.ctx, "src/math.js"))

	files, err = suite.svc.ListFiles(suite.ctx)
	suite.NoError(err)
	suite.Len(files, 1)

	hits, err := suite.svc.Query(suite.ctx, "add", 10)
	if suite.NoError(err) && suite.Len(hits, 1) {
		suite.Equal("README.md", hits[0].Payload.FilePath)
	}

	suite.ErrorIs(suite.svc.RemoveFile(suite.ctx, ""), ErrValidation)
}

func (suite *codeIndexTestSuite) TestStats() {
	stats, err := suite.svc.Stats(suite.ctx)
	if !suite.NoError(err) {
		return
	}

	suite.Equal(0, stats.IndexedFiles)
	suite.Equal(0.0, stats.AverageChunksPerFile)
	suite.Empty(stats.Languages)

	_, err = suite.svc.IndexFile(suite.ctx, "src/math.js", mathJS, "js")
	suite.NoError(err)

	_, err = suite.svc.IndexFile(suite.ctx, "util.py", "def add(a, b):\n    return a + b\n", "py")
	suite.NoError(err)

	_, err = suite.svc.IndexFile(suite.ctx, "src/more.js", mathJS, "javascript")
	suite.NoError(err)

	stats, err = suite.svc.Stats(suite.ctx)
	if !suite.NoError(err) {
		return
	}

	suite.Equal(3, stats.IndexedFiles)
	suite.Equal(5, stats.TotalChunks)
	suite.Equal([]string{"javascript", "python"}, stats.Languages)
	suite.InDelta(5.0/3.0, stats.AverageChunksPerFile, 1e-9)
}

func (suite *codeIndexTestSuite) TestHealth() {
	status, err := suite.svc.Health(suite.ctx)
	if !suite.NoError(err) {
		return
	}

	suite.Equal("ok", status.Status)
	suite.Equal(string(vector.ProviderChromem), status.Vector)
	suite.Equal([]string{grammar.JavaScript, grammar.Python}, status.Languages)
}

func TestCodeIndexTestSuite(t *testing.T) {
	suite.Run(t, new(codeIndexTestSuite))
}

func TestServiceWithoutManifest(t *testing.T) {
	store, _ := chromem.NewStore(vector.Config{Collection: "code_chunks"})
	segmenter := segment.NewSegmenter(grammar.NewLoader(), nil)

	svc, err := NewService(Config{}, segmenter, newCountingEmbedder(nil), store, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.ListFiles(context.Background())
	if !errors.Is(err, ErrManifestDisabled) {
		t.Errorf("ListFiles() = %v, want %v", err, ErrManifestDisabled)
	}

	_, err = svc.Stats(context.Background())
	if !errors.Is(err, ErrManifestDisabled) {
		t.Errorf("Stats() = %v, want %v", err, ErrManifestDisabled)
	}
}

func TestNewServiceRejectsUnknownPolicy(t *testing.T) {
	store, _ := chromem.NewStore(vector.Config{Collection: "code_chunks"})
	segmenter := segment.NewSegmenter(grammar.NewLoader(), nil)

	cfg := Config{}
	cfg.Index.OnEmbedError = "retry"

	_, err := NewService(cfg, segmenter, newCountingEmbedder(nil), store, nil)
	if !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("NewService() = %v, want %v", err, ErrUnknownPolicy)
	}
}
