package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flarexio/codeindex/vector"
)

type recorder struct {
	sync.Mutex
	requests []string
	bodies   map[string]map[string]any
}

func (r *recorder) record(req *http.Request) map[string]any {
	r.Lock()
	defer r.Unlock()

	key := req.Method + " " + req.URL.Path
	r.requests = append(r.requests, key)

	var body map[string]any
	if req.Body != nil {
		json.NewDecoder(req.Body).Decode(&body)
	}

	if r.bodies == nil {
		r.bodies = make(map[string]map[string]any)
	}
	r.bodies[key] = body

	return body
}

func (r *recorder) count(key string) int {
	r.Lock()
	defer r.Unlock()

	n := 0
	for _, req := range r.requests {
		if req == key {
			n++
		}
	}
	return n
}

func newTestStore(t *testing.T, h http.HandlerFunc) vector.Store {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s, err := NewStore(vector.Config{
		URL:        srv.URL,
		Collection: "code_chunks",
	})
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func TestNewStoreRequiresURL(t *testing.T) {
	_, err := NewStore(vector.Config{Collection: "code_chunks"})
	assert.Error(t, err)
}

func TestEnsureCollectionCreatesOnce(t *testing.T) {
	assert := assert.New(t)

	var rec recorder
	var created bool
	var mu sync.Mutex

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		body := rec.record(r)

		mu.Lock()
		defer mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			if !created {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)

		case http.MethodPut:
			vectors := body["vectors"].(map[string]any)
			assert.Equal(float64(768), vectors["size"])
			assert.Equal("Cosine", vectors["distance"])

			created = true
			w.WriteHeader(http.StatusOK)
		}
	})

	ctx := context.Background()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(s.EnsureCollection(ctx, 768, vector.Cosine))
		}()
	}
	wg.Wait()

	assert.Equal(1, rec.count("PUT /collections/code_chunks"))
	assert.Equal(1, rec.count("GET /collections/code_chunks"))
}

func TestEnsureCollectionConflictIsSuccess(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusConflict)
	})

	assert.NoError(t, s.EnsureCollection(context.Background(), 768, vector.Cosine))
}

func TestEnsureCollectionFailureIsRetried(t *testing.T) {
	assert := assert.New(t)

	var rec recorder
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx := context.Background()
	assert.Error(s.EnsureCollection(ctx, 768, vector.Cosine))
	assert.Error(s.EnsureCollection(ctx, 768, vector.Cosine))
	assert.Equal(2, rec.count("PUT /collections/code_chunks"))
}

func TestUpsertEmptyMakesNoRequest(t *testing.T) {
	var rec recorder
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
	})

	assert.NoError(t, s.Upsert(context.Background(), nil))
	assert.Empty(t, rec.requests)
}

func TestUpsertMapsIDs(t *testing.T) {
	assert := assert.New(t)

	var rec recorder
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		assert.Equal("true", r.URL.Query().Get("wait"))
		w.WriteHeader(http.StatusOK)
	})

	points := []vector.Point{
		{
			ID:     "src/a.js:1-3",
			Vector: []float32{0.1, 0.2},
			Payload: vector.Payload{
				FilePath:   "src/a.js",
				Language:   "javascript",
				ChunkIndex: 0,
				StartLine:  1,
				EndLine:    3,
				Type:       "function",
				Text:       "function a() {}",
			},
		},
	}

	if !assert.NoError(s.Upsert(context.Background(), points)) {
		return
	}

	body := rec.bodies["PUT /collections/code_chunks/points"]
	sent := body["points"].([]any)
	if !assert.Len(sent, 1) {
		return
	}

	point := sent[0].(map[string]any)
	assert.Equal(PointKey("src/a.js:1-3"), point["id"])

	payload := point["payload"].(map[string]any)
	assert.Equal("src/a.js:1-3", payload["point_id"])
	assert.Equal("src/a.js", payload["file_path"])
	assert.Equal(float64(1), payload["start_line"])
	assert.Equal("function", payload["type"])
}

func TestPointKeyIsDeterministic(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(PointKey("a.go:1-2"), PointKey("a.go:1-2"))
	assert.NotEqual(PointKey("a.go:1-2"), PointKey("a.go:1-3"))
}

func TestSearch(t *testing.T) {
	assert := assert.New(t)

	var rec recorder
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		body := rec.record(r)

		assert.Equal(float64(2), body["limit"])
		assert.Equal(true, body["with_payload"])

		filter := body["filter"].(map[string]any)
		must := filter["must"].([]any)
		cond := must[0].(map[string]any)
		assert.Equal("language", cond["key"])
		assert.Equal("go", cond["match"].(map[string]any)["value"])

		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"id": "x", "score": 0.5, "payload": map[string]any{"point_id": "b.go:1-2", "file_path": "b.go"}},
				{"id": "y", "score": 0.9, "payload": map[string]any{"point_id": "a.go:4-9", "file_path": "a.go", "start_line": 4}},
				{"id": "z", "score": 0.1, "payload": map[string]any{"point_id": "c.go:1-1"}},
			},
		})
	})

	hits, err := s.Search(context.Background(), []float32{1, 0}, 2, vector.Filter{"language": "go"})
	if !assert.NoError(err) || !assert.Len(hits, 2) {
		return
	}

	assert.Equal("a.go:4-9", hits[0].ID)
	assert.Equal(float32(0.9), hits[0].Score)
	assert.Equal(4, hits[0].Payload.StartLine)
	assert.Equal("b.go:1-2", hits[1].ID)
}

func TestSearchMissingCollection(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	hits, err := s.Search(context.Background(), []float32{1}, 5, nil)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchServerError(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := s.Search(context.Background(), []float32{1}, 5, nil)
	assert.ErrorContains(t, err, "boom")
}

func TestDeleteByFile(t *testing.T) {
	assert := assert.New(t)

	var rec recorder
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusOK)
	})

	if !assert.NoError(s.DeleteByFile(context.Background(), "src/a.js")) {
		return
	}

	body := rec.bodies["POST /collections/code_chunks/points/delete"]
	must := body["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	assert.Equal("file_path", cond["key"])
	assert.Equal("src/a.js", cond["match"].(map[string]any)["value"])
}

func TestHealth(t *testing.T) {
	healthy := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, healthy.Health(context.Background()))

	unhealthy := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.Error(t, unhealthy.Health(context.Background()))
}
