package chromem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/flarexio/codeindex/vector"
)

var ErrNoEmbeddingFunc = errors.New("documents must carry precomputed embeddings")

func NewStore(cfg vector.Config) (vector.Store, error) {
	if cfg.Collection == "" {
		return nil, errors.New("collection is required")
	}

	var db *chromem.DB
	if !cfg.Persistent {
		db = chromem.NewDB()
	} else {
		d, err := chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, err
		}

		db = d
	}

	return &store{
		db:   db,
		name: cfg.Collection,
	}, nil
}

type store struct {
	db   *chromem.DB
	name string
}

// Vectors are always computed by the embedding client, never by chromem.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNoEmbeddingFunc
}

func (s *store) collection() (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection(s.name, nil, noEmbedding)
}

func (s *store) EnsureCollection(ctx context.Context, size int, distance vector.Distance) error {
	if distance != "" && distance != vector.Cosine {
		return fmt.Errorf("%w: chromem supports Cosine only, got %s",
			vector.ErrUnsupportedDistance, distance)
	}

	_, err := s.collection()
	return err
}

func (s *store) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	c, err := s.collection()
	if err != nil {
		return err
	}

	for _, p := range points {
		doc := chromem.Document{
			ID:        p.ID,
			Metadata:  encodePayload(p.Payload),
			Embedding: p.Vector,
			Content:   p.Payload.Text,
		}

		if err := c.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add %s: %w", p.ID, err)
		}
	}

	return nil
}

func (s *store) Search(ctx context.Context, v []float32, limit int, filter vector.Filter) ([]vector.Hit, error) {
	c, err := s.collection()
	if err != nil {
		return nil, err
	}

	if limit > c.Count() {
		limit = c.Count()
	}

	if limit <= 0 {
		return []vector.Hit{}, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}

	results, err := c.QueryEmbedding(ctx, v, limit, where, nil)
	if err != nil {
		return nil, err
	}

	hits := make([]vector.Hit, len(results))
	for i, result := range results {
		payload := decodePayload(result.Metadata)
		payload.Text = result.Content

		hits[i] = vector.Hit{
			ID:      result.ID,
			Score:   result.Similarity,
			Payload: payload,
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	return hits, nil
}

func (s *store) DeleteByFile(ctx context.Context, filePath string) error {
	c, err := s.collection()
	if err != nil {
		return err
	}

	where := map[string]string{
		"file_path": filePath,
	}

	return c.Delete(ctx, where, nil)
}

func (s *store) Health(ctx context.Context) error {
	_, err := s.collection()
	return err
}

func (s *store) Close() error {
	return nil
}

func encodePayload(p vector.Payload) map[string]string {
	return map[string]string{
		"file_path":   p.FilePath,
		"language":    p.Language,
		"chunk_index": strconv.Itoa(p.ChunkIndex),
		"start_line":  strconv.Itoa(p.StartLine),
		"end_line":    strconv.Itoa(p.EndLine),
		"type":        p.Type,
	}
}

func decodePayload(m map[string]string) vector.Payload {
	chunkIndex, _ := strconv.Atoi(m["chunk_index"])
	startLine, _ := strconv.Atoi(m["start_line"])
	endLine, _ := strconv.Atoi(m["end_line"])

	return vector.Payload{
		FilePath:   m["file_path"],
		Language:   m["language"],
		ChunkIndex: chunkIndex,
		StartLine:  startLine,
		EndLine:    endLine,
		Type:       m["type"],
	}
}
