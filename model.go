package codeindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flarexio/codeindex/embedding"
	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/vector"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrUnknownPolicy    = errors.New("unknown embed error policy")
	ErrNothingEmbedded  = errors.New("no chunk could be embedded")
	ErrManifestDisabled = errors.New("file manifest disabled")
	ErrInvalidFilePath  = fmt.Errorf("%w: file_path is required", ErrValidation)
	ErrInvalidContent   = fmt.Errorf("%w: content is required", ErrValidation)
	ErrInvalidCode      = fmt.Errorf("%w: code is required", ErrValidation)
	ErrInvalidQueryText = fmt.Errorf("%w: query is required", ErrValidation)
)

type ContextKey string

const (
	RequestID ContextKey = "request_id"
)

const (
	DefaultMaxChunks  = 200
	DefaultVectorSize = 768
	DefaultTopK       = 10
	DefaultMaxResults = 5
	MaxSearchResults  = 50
)

type Dependency string

const (
	DependencyEmbedding Dependency = "embedding"
	DependencyVector    Dependency = "vector_store"
	DependencyManifest  Dependency = "manifest"
)

// DependencyError marks a failure of a remote collaborator, as opposed to a
// bad request or an empty result.
type DependencyError struct {
	Dependency Dependency
	Op         string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Dependency, e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

func dependencyError(dep Dependency, op string, err error) error {
	return &DependencyError{dep, op, err}
}

type EmbedErrorPolicy string

const (
	// PolicySkip drops chunks that fail to embed and indexes the rest.
	PolicySkip EmbedErrorPolicy = "skip"

	// PolicyAbort fails the whole file on the first embedding failure.
	PolicyAbort EmbedErrorPolicy = "abort"
)

func (p *EmbedErrorPolicy) UnmarshalText(text []byte) error {
	switch policy := EmbedErrorPolicy(strings.ToLower(string(text))); policy {
	case "", PolicySkip:
		*p = PolicySkip
	case PolicyAbort:
		*p = policy
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, string(text))
	}

	return nil
}

type Config struct {
	Embedding embedding.Config `yaml:"embedding"`
	Vector    vector.Config    `yaml:"vector"`
	Index     IndexConfig      `yaml:"index"`
	Grammar   GrammarConfig    `yaml:"grammar"`
	Manifest  manifest.Config  `yaml:"manifest"`
	Server    ServerConfig     `yaml:"server"`
}

type ServerConfig struct {
	// RequestTimeout bounds every transport request. It should exceed
	// index.timeout.
	RequestTimeout Duration `yaml:"requestTimeout" env:"REQUEST_TIMEOUT"`
}

type IndexConfig struct {
	MaxChunks         int              `yaml:"maxChunks" env:"INDEX_MAX_CHUNKS"`
	DefaultVectorSize int              `yaml:"defaultVectorSize" env:"INDEX_DEFAULT_VECTOR_SIZE"`
	OnEmbedError      EmbedErrorPolicy `yaml:"onEmbedError" env:"INDEX_ON_EMBED_ERROR"`
	Timeout           Duration         `yaml:"timeout" env:"INDEX_TIMEOUT"`
}

type GrammarConfig struct {
	Languages []string `yaml:"languages" env:"GRAMMAR_LANGUAGES" envSeparator:","`
}

// Defaults fills unset fields.
func (cfg *Config) Defaults() {
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = "http://localhost:11434"
	}

	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}

	if cfg.Embedding.Concurrency <= 0 {
		cfg.Embedding.Concurrency = 4
	}

	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}

	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = vector.ProviderQdrant
	}

	if cfg.Vector.Provider == vector.ProviderQdrant && cfg.Vector.URL == "" {
		cfg.Vector.URL = "http://localhost:6333"
	}

	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "code_chunks"
	}

	if distance, err := vector.ParseDistance(string(cfg.Vector.Distance)); err == nil {
		cfg.Vector.Distance = distance
	}

	if cfg.Vector.Timeout <= 0 {
		cfg.Vector.Timeout = 10 * time.Second
	}

	if cfg.Index.MaxChunks <= 0 {
		cfg.Index.MaxChunks = DefaultMaxChunks
	}

	if cfg.Index.DefaultVectorSize <= 0 {
		cfg.Index.DefaultVectorSize = DefaultVectorSize
	}

	if cfg.Index.OnEmbedError == "" {
		cfg.Index.OnEmbedError = PolicySkip
	}

	if cfg.Index.Timeout <= 0 {
		cfg.Index.Timeout = Duration(2 * time.Minute)
	}

	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = cfg.Index.Timeout + Duration(30*time.Second)
	}
}

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	return d.UnmarshalText([]byte(str))
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	return d.UnmarshalText([]byte(str))
}

// UnmarshalText lets environment overrides use the same notation.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

// IndexResult reports the outcome of indexing one file.
type IndexResult struct {
	FilePath   string   `json:"file_path"`
	Language   string   `json:"language"`
	ChunkCount int      `json:"chunk_count"`
	Indexed    int      `json:"indexed"`
	Skipped    int      `json:"skipped"`
	PointIDs   []string `json:"point_ids,omitempty"`
}

// IndexStats summarises the file manifest.
type IndexStats struct {
	IndexedFiles         int      `json:"indexed_files"`
	TotalChunks          int      `json:"total_chunks"`
	Languages            []string `json:"languages"`
	AverageChunksPerFile float64  `json:"average_chunks_per_file"`
}

// HealthStatus reports the reachability of collaborators.
type HealthStatus struct {
	Status    string   `json:"status"`
	Vector    string   `json:"vector_store"`
	Languages []string `json:"languages"`
}
