package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flarexio/codeindex/vector"
)

// Qdrant only accepts unsigned integers or UUIDs as point keys, so logical
// ids are mapped into this namespace.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("codeindex.flarexio.com"))

// PointKey returns the Qdrant key for a logical point id.
func PointKey(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

type Option func(*store)

func WithHTTPClient(client *http.Client) Option {
	return func(s *store) {
		s.client = client
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *store) {
		s.log = log
	}
}

func NewStore(cfg vector.Config, opts ...Option) (vector.Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}

	if cfg.Collection == "" {
		return nil, errors.New("collection is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &store{
		endpoint:   strings.TrimSuffix(cfg.URL, "/"),
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		log:        zap.L(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With(
		zap.String("store", "qdrant"),
		zap.String("collection", s.collection),
	)

	return s, nil
}

type store struct {
	endpoint   string
	collection string
	client     *http.Client
	log        *zap.Logger

	mu      sync.Mutex
	ensured bool
}

type qdrantPayload struct {
	vector.Payload
	PointID string `json:"point_id"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

type matchCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type filter struct {
	Must []matchCondition `json:"must"`
}

func newFilter(f vector.Filter) *filter {
	if len(f) == 0 {
		return nil
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]matchCondition, len(keys))
	for i, k := range keys {
		must[i].Key = k
		must[i].Match.Value = f[k]
	}

	return &filter{must}
}

func (s *store) collectionURL(suffix string) string {
	return s.endpoint + "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *store) do(ctx context.Context, method string, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return s.client.Do(req)
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("qdrant %s failed: %s %s", op, resp.Status, string(b))
}

func (s *store) EnsureCollection(ctx context.Context, size int, distance vector.Distance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured {
		return nil
	}

	if size <= 0 {
		return fmt.Errorf("invalid vector size %d", size)
	}

	if distance == "" {
		distance = vector.Cosine
	}

	resp, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		s.ensured = true
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": string(distance),
		},
	}

	resp, err = s.do(ctx, http.MethodPut, s.collectionURL(""), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Another writer created it first.
	if resp.StatusCode == http.StatusConflict {
		s.ensured = true
		return nil
	}

	if resp.StatusCode >= 300 {
		return statusError("create collection", resp)
	}

	s.log.Info("collection created",
		zap.String("action", "ensure_collection"),
		zap.Int("size", size),
		zap.String("distance", string(distance)),
	)

	s.ensured = true
	return nil
}

func (s *store) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	body := struct {
		Points []qdrantPoint `json:"points"`
	}{
		Points: make([]qdrantPoint, len(points)),
	}

	for i, p := range points {
		body.Points[i] = qdrantPoint{
			ID:     PointKey(p.ID),
			Vector: p.Vector,
			Payload: qdrantPayload{
				Payload: p.Payload,
				PointID: p.ID,
			},
		}
	}

	resp, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError("upsert", resp)
	}

	return nil
}

func (s *store) Search(ctx context.Context, v []float32, limit int, f vector.Filter) ([]vector.Hit, error) {
	if limit <= 0 {
		return []vector.Hit{}, nil
	}

	body := struct {
		Vector      []float32 `json:"vector"`
		Limit       int       `json:"limit"`
		Filter      *filter   `json:"filter,omitempty"`
		WithPayload bool      `json:"with_payload"`
	}{
		Vector:      v,
		Limit:       limit,
		Filter:      newFilter(f),
		WithPayload: true,
	}

	resp, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Nothing has been indexed yet.
	if resp.StatusCode == http.StatusNotFound {
		return []vector.Hit{}, nil
	}

	if resp.StatusCode >= 300 {
		return nil, statusError("search", resp)
	}

	var result struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float32         `json:"score"`
			Payload qdrantPayload   `json:"payload"`
		} `json:"result"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]vector.Hit, 0, len(result.Result))
	for _, r := range result.Result {
		id := r.Payload.PointID
		if id == "" {
			id = strings.Trim(string(r.ID), `"`)
		}

		hits = append(hits, vector.Hit{
			ID:      id,
			Score:   r.Score,
			Payload: r.Payload.Payload,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

func (s *store) DeleteByFile(ctx context.Context, filePath string) error {
	body := map[string]any{
		"filter": newFilter(vector.Filter{"file_path": filePath}),
	}

	resp, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}

	if resp.StatusCode >= 300 {
		return statusError("delete", resp)
	}

	return nil
}

func (s *store) Health(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, s.endpoint+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant unhealthy: %s", resp.Status)
	}

	return nil
}

func (s *store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
