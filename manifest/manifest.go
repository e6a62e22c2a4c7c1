package manifest

import (
	"context"
	"time"
)

// FileRecord describes the last successful indexing of a file.
type FileRecord struct {
	FilePath   string    `json:"file_path"`
	Language   string    `json:"language"`
	ChunkCount int       `json:"chunk_count"`
	PointIDs   []string  `json:"point_ids"`
	IndexedAt  time.Time `json:"indexed_at"`
}

type Config struct {
	Enabled *bool  `yaml:"enabled" env:"MANIFEST_ENABLED"`
	Path    string `yaml:"path"`
}

// IsEnabled reports whether the manifest is on. An unset value counts as on.
func (cfg Config) IsEnabled() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}

type Manifest interface {
	Put(ctx context.Context, record FileRecord) error
	Delete(ctx context.Context, filePath string) error

	// List returns every record ordered by file path.
	List(ctx context.Context) ([]FileRecord, error)

	Close() error
}
