package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnsupportedDistance = errors.New("unsupported distance")
	ErrUnknownProvider     = errors.New("unknown vector provider")
)

type Provider string

const (
	ProviderQdrant  Provider = "qdrant"
	ProviderChromem Provider = "chromem"
)

type Config struct {
	Provider   Provider      `yaml:"provider" env:"VECTOR_PROVIDER"`
	URL        string        `yaml:"url" env:"QDRANT_URL"`
	Collection string        `yaml:"collection" env:"VECTOR_COLLECTION"`
	Distance   Distance      `yaml:"distance" env:"VECTOR_DISTANCE"`
	Persistent bool          `yaml:"persistent"`
	Path       string        `yaml:"path"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Distance string

const (
	Cosine Distance = "Cosine"
	Euclid Distance = "Euclid"
	Dot    Distance = "Dot"
)

// ParseDistance accepts the metric name in any case.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "euclid", "euclidean":
		return Euclid, nil
	case "dot":
		return Dot, nil
	default:
		return "", ErrUnsupportedDistance
	}
}

// UnmarshalText normalises configured names, so "cosine" from a YAML file
// or the environment becomes Cosine.
func (d *Distance) UnmarshalText(text []byte) error {
	distance, err := ParseDistance(string(text))
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(text))
	}

	*d = distance
	return nil
}

// Payload is the metadata stored with every point.
type Payload struct {
	FilePath   string `json:"file_path"`
	Language   string `json:"language"`
	ChunkIndex int    `json:"chunk_index"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Type       string `json:"type"`
	Text       string `json:"text"`
}

// PointID derives the deterministic id of a chunk. Re-indexing the same
// range of the same file yields the same id, so the write overwrites.
func PointID(filePath string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d-%d", filePath, startLine, endLine)
}

type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

type Hit struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Payload Payload `json:"payload"`
}

// Filter matches payload fields exactly; all entries must match.
type Filter map[string]string

type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, size int, distance Distance) error

	// Upsert writes points; existing ids are overwritten.
	Upsert(ctx context.Context, points []Point) error

	// Search returns at most limit hits ordered by descending score.
	Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]Hit, error)

	// DeleteByFile removes every point whose payload file_path matches.
	DeleteByFile(ctx context.Context, filePath string) error

	Health(ctx context.Context) error
	Close() error
}
