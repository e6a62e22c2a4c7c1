package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrMissingEmbedding = errors.New("response has no embedding")
	ErrEmptyModel       = errors.New("embedding model not set")
)

type Config struct {
	URL         string        `yaml:"url" env:"OLLAMA_URL"`
	Model       string        `yaml:"model" env:"EMBEDDING_MODEL"`
	Timeout     time.Duration `yaml:"timeout" env:"EMBEDDING_TIMEOUT"`
	Concurrency int           `yaml:"concurrency" env:"EMBEDDING_CONCURRENCY"`
}

// Embedder maps texts onto vectors. The result always has len(texts)
// entries and out[i] belongs to texts[i].
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Func embeds one text.
type Func func(ctx context.Context, model string, text string) ([]float32, error)

// BatchError reports the positions that failed to embed. The vectors of the
// other positions are still returned alongside it.
type BatchError struct {
	Total  int
	Errors map[int]error
}

func (e *BatchError) Error() string {
	indices := make([]int, 0, len(e.Errors))
	for i := range e.Errors {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	first := e.Errors[indices[0]]
	return fmt.Sprintf("embedding failed for %d of %d texts (first at %d: %v)",
		len(e.Errors), e.Total, indices[0], first)
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}
	return errs
}

// Failed reports whether the text at index i has no vector.
func (e *BatchError) Failed(i int) bool {
	_, ok := e.Errors[i]
	return ok
}

type Option func(*Client)

// WithConcurrency bounds the number of in-flight requests.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client fans a batch out into independent single-text requests.
type Client struct {
	embed       Func
	concurrency int
	log         *zap.Logger
}

func NewClient(fn Func, opts ...Option) *Client {
	c := &Client{
		embed:       fn,
		concurrency: 4,
		log:         zap.L(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With(
		zap.String("component", "embedding"),
	)

	return c
}

func (c *Client) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	if strings.TrimSpace(model) == "" {
		return nil, ErrEmptyModel
	}

	errs := make([]error, len(texts))

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, text := range texts {
		g.Go(func() error {
			vector, err := c.embed(ctx, model, text)
			if err == nil && len(vector) == 0 {
				err = ErrMissingEmbedding
			}

			if err != nil {
				errs[i] = err
				return nil
			}

			vectors[i] = vector
			return nil
		})
	}

	g.Wait()

	failed := make(map[int]error)
	for i, err := range errs {
		if err != nil {
			failed[i] = err
		}
	}

	if len(failed) == 0 {
		return vectors, nil
	}

	c.log.Warn("embedding batch incomplete",
		zap.String("action", "embed"),
		zap.String("model", model),
		zap.Int("total", len(texts)),
		zap.Int("failed", len(failed)),
	)

	return vectors, &BatchError{
		Total:  len(texts),
		Errors: failed,
	}
}
