package codeindex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flarexio/codeindex/embedding"
	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/segment"
	"github.com/flarexio/codeindex/vector"
)

// Service defines the core logic of codeindex.
type Service interface {

	// Close releases the vector store and the file manifest.
	Close() error

	// IndexFile segments, embeds and stores one file.
	IndexFile(ctx context.Context, filePath string, content string, language string) (*IndexResult, error)

	// RemoveFile deletes every stored chunk of a file.
	RemoveFile(ctx context.Context, filePath string) error

	// ListFiles returns the indexed files ordered by path.
	ListFiles(ctx context.Context) ([]manifest.FileRecord, error)

	// FindSimilar returns the chunks closest to a code snippet.
	FindSimilar(ctx context.Context, code string, topK int, language ...string) ([]vector.Hit, error)

	// Query returns the chunks closest to a natural-language question.
	Query(ctx context.Context, query string, maxResults int, language ...string) ([]vector.Hit, error)

	// Stats summarises the indexed files.
	Stats(ctx context.Context) (*IndexStats, error)

	// Health reports whether the vector store is reachable.
	Health(ctx context.Context) (*HealthStatus, error)
}

type ServiceMiddleware func(Service) Service

// Segmenter splits file content into chunks.
type Segmenter interface {
	Chunk(ctx context.Context, content string, language string) []segment.Chunk
	Languages() []string
}

// NewService wires the pipeline. files may be nil, which disables the
// manifest backed operations.
func NewService(cfg Config, segmenter Segmenter, embedder embedding.Embedder, store vector.Store, files manifest.Manifest) (Service, error) {
	cfg.Defaults()

	switch cfg.Index.OnEmbedError {
	case PolicySkip, PolicyAbort:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, cfg.Index.OnEmbedError)
	}

	if segmenter == nil || embedder == nil || store == nil {
		return nil, errors.New("segmenter, embedder and store are required")
	}

	log := zap.L().With(
		zap.String("service", "codeindex"),
	)

	return &service{
		cfg:       cfg,
		segmenter: segmenter,
		embedder:  embedder,
		store:     store,
		files:     files,
		log:       log,
	}, nil
}

type service struct {
	cfg       Config
	segmenter Segmenter
	embedder  embedding.Embedder
	store     vector.Store
	files     manifest.Manifest
	log       *zap.Logger
}

func (svc *service) Close() error {
	var errs []error

	if err := svc.store.Close(); err != nil {
		errs = append(errs, err)
	}

	if svc.files != nil {
		if err := svc.files.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (svc *service) IndexFile(ctx context.Context, filePath string, content string, language string) (*IndexResult, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, ErrInvalidFilePath
	}

	log := svc.log.With(
		zap.String("action", "index_file"),
		zap.String("file_path", filePath),
		zap.String("language", language),
	)

	if timeout := svc.cfg.Index.Timeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	chunks := svc.segmenter.Chunk(ctx, content, language)

	if maxChunks := svc.cfg.Index.MaxChunks; len(chunks) > maxChunks {
		log.Debug("chunk limit reached",
			zap.Int("chunks", len(chunks)),
			zap.Int("dropped", len(chunks)-maxChunks),
		)

		chunks = chunks[:maxChunks]
	}

	var (
		texts     []string
		positions []int
	)

	for i, chunk := range chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			continue
		}

		texts = append(texts, chunk.Text)
		positions = append(positions, i)
	}

	var (
		vectors [][]float32
		err     error
	)

	if len(texts) > 0 {
		vectors, err = svc.embedder.Embed(ctx, texts, svc.cfg.Embedding.Model)
	}

	skipped := 0
	if err != nil {
		var batchErr *embedding.BatchError
		if !errors.As(err, &batchErr) || svc.cfg.Index.OnEmbedError == PolicyAbort {
			return nil, dependencyError(DependencyEmbedding, "embed", err)
		}

		if len(batchErr.Errors) == len(texts) {
			return nil, dependencyError(DependencyEmbedding, "embed",
				fmt.Errorf("%w: %w", ErrNothingEmbedded, err))
		}

		skipped = len(batchErr.Errors)
		log.Warn("skipping chunks without embedding",
			zap.Int("skipped", skipped),
			zap.Error(err),
		)
	}

	size := svc.cfg.Index.DefaultVectorSize
	for _, v := range vectors {
		if len(v) > 0 {
			size = len(v)
			break
		}
	}

	if err := svc.store.EnsureCollection(ctx, size, svc.cfg.Vector.Distance); err != nil {
		log.Warn("ensure collection failed", zap.Int("size", size), zap.Error(err))
	}

	points := make([]vector.Point, 0, len(vectors))
	seen := make(map[string]int)

	for j, v := range vectors {
		if len(v) == 0 {
			continue
		}

		i := positions[j]
		chunk := chunks[i]

		lang := chunk.Language
		if lang == "" {
			lang = language
		}

		point := vector.Point{
			ID:     vector.PointID(filePath, chunk.StartLine, chunk.EndLine),
			Vector: v,
			Payload: vector.Payload{
				FilePath:   filePath,
				Language:   lang,
				ChunkIndex: i,
				StartLine:  chunk.StartLine,
				EndLine:    chunk.EndLine,
				Type:       string(chunk.Type),
				Text:       chunk.Text,
			},
		}

		// Chunks sharing a line range share an id; the later one wins.
		if k, ok := seen[point.ID]; ok {
			points[k] = point
			continue
		}

		seen[point.ID] = len(points)
		points = append(points, point)
	}

	if err := svc.store.Upsert(ctx, points); err != nil {
		return nil, dependencyError(DependencyVector, "upsert", err)
	}

	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}

	if svc.files != nil {
		lang := language
		if id, ok := segment.Resolve(language); ok {
			lang = id
		}

		record := manifest.FileRecord{
			FilePath:   filePath,
			Language:   lang,
			ChunkCount: len(chunks),
			PointIDs:   ids,
			IndexedAt:  time.Now().UTC(),
		}

		if err := svc.files.Put(ctx, record); err != nil {
			log.Warn("manifest update failed", zap.Error(err))
		}
	}

	log.Debug("file indexed",
		zap.Int("chunks", len(chunks)),
		zap.Int("points", len(points)),
	)

	return &IndexResult{
		FilePath:   filePath,
		Language:   language,
		ChunkCount: len(chunks),
		Indexed:    len(points),
		Skipped:    skipped,
		PointIDs:   ids,
	}, nil
}

func (svc *service) RemoveFile(ctx context.Context, filePath string) error {
	if strings.TrimSpace(filePath) == "" {
		return ErrInvalidFilePath
	}

	if err := svc.store.DeleteByFile(ctx, filePath); err != nil {
		return dependencyError(DependencyVector, "delete", err)
	}

	if svc.files == nil {
		return nil
	}

	if err := svc.files.Delete(ctx, filePath); err != nil {
		return dependencyError(DependencyManifest, "delete", err)
	}

	return nil
}

func (svc *service) ListFiles(ctx context.Context) ([]manifest.FileRecord, error) {
	if svc.files == nil {
		return nil, ErrManifestDisabled
	}

	records, err := svc.files.List(ctx)
	if err != nil {
		return nil, dependencyError(DependencyManifest, "list", err)
	}

	return records, nil
}

func (svc *service) Stats(ctx context.Context) (*IndexStats, error) {
	if svc.files == nil {
		return nil, ErrManifestDisabled
	}

	records, err := svc.files.List(ctx)
	if err != nil {
		return nil, dependencyError(DependencyManifest, "list", err)
	}

	stats := &IndexStats{
		IndexedFiles: len(records),
		Languages:    []string{},
	}

	seen := make(map[string]struct{})
	for _, record := range records {
		stats.TotalChunks += record.ChunkCount

		if record.Language == "" {
			continue
		}

		if _, ok := seen[record.Language]; !ok {
			seen[record.Language] = struct{}{}
			stats.Languages = append(stats.Languages, record.Language)
		}
	}

	slices.Sort(stats.Languages)

	if stats.IndexedFiles > 0 {
		stats.AverageChunksPerFile = float64(stats.TotalChunks) / float64(stats.IndexedFiles)
	}

	return stats, nil
}

func (svc *service) FindSimilar(ctx context.Context, code string, topK int, language ...string) ([]vector.Hit, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidCode
	}

	return svc.search(ctx, code, limit(topK, DefaultTopK), language...)
}

func (svc *service) Query(ctx context.Context, query string, maxResults int, language ...string) ([]vector.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQueryText
	}

	return svc.search(ctx, query, limit(maxResults, DefaultMaxResults), language...)
}

func limit(n int, fallback int) int {
	if n <= 0 {
		return fallback
	}

	return min(n, MaxSearchResults)
}

func (svc *service) search(ctx context.Context, text string, limit int, language ...string) ([]vector.Hit, error) {
	vectors, err := svc.embedder.Embed(ctx, []string{text}, svc.cfg.Embedding.Model)
	if err != nil {
		return nil, dependencyError(DependencyEmbedding, "embed", err)
	}

	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, dependencyError(DependencyEmbedding, "embed", embedding.ErrMissingEmbedding)
	}

	var filter vector.Filter
	if len(language) > 0 && strings.TrimSpace(language[0]) != "" {
		lang := language[0]
		if id, ok := segment.Resolve(lang); ok {
			lang = id
		}

		filter = vector.Filter{"language": lang}
	}

	hits, err := svc.store.Search(ctx, vectors[0], limit, filter)
	if err != nil {
		return nil, dependencyError(DependencyVector, "search", err)
	}

	if hits == nil {
		hits = []vector.Hit{}
	}

	return hits, nil
}

func (svc *service) Health(ctx context.Context) (*HealthStatus, error) {
	if err := svc.store.Health(ctx); err != nil {
		return nil, dependencyError(DependencyVector, "health", err)
	}

	return &HealthStatus{
		Status:    "ok",
		Vector:    string(svc.cfg.Vector.Provider),
		Languages: svc.segmenter.Languages(),
	}, nil
}
