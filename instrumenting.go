package codeindex

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/vector"
)

// Metrics groups the instruments recorded by InstrumentingMiddleware.
type Metrics struct {
	RequestCount   metrics.Counter
	RequestLatency metrics.Histogram
	ChunksIndexed  metrics.Counter
	ChunksSkipped  metrics.Counter
}

// NewMetrics registers the service instruments with the default Prometheus
// registry. It must be called once per process.
func NewMetrics() *Metrics {
	labels := []string{"method", "error"}

	return &Metrics{
		RequestCount: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "codeindex",
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Number of requests received.",
		}, labels),
		RequestLatency: kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: "codeindex",
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "Total duration of requests in seconds.",
			Buckets:   stdprometheus.ExponentialBuckets(0.005, 2, 14),
		}, labels),
		ChunksIndexed: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "codeindex",
			Subsystem: "index",
			Name:      "chunks_indexed_total",
			Help:      "Number of chunks written to the vector store.",
		}, []string{"language"}),
		ChunksSkipped: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "codeindex",
			Subsystem: "index",
			Name:      "chunks_skipped_total",
			Help:      "Number of chunks dropped because embedding failed.",
		}, []string{"language"}),
	}
}

func InstrumentingMiddleware(m *Metrics) ServiceMiddleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{
			metrics: m,
			next:    next,
		}
	}
}

type instrumentingMiddleware struct {
	metrics *Metrics
	next    Service
}

func (mw *instrumentingMiddleware) observe(method string, begin time.Time, err error) {
	lvs := []string{"method", method, "error", strconv.FormatBool(err != nil)}
	mw.metrics.RequestCount.With(lvs...).Add(1)
	mw.metrics.RequestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func (mw *instrumentingMiddleware) Close() error {
	return mw.next.Close()
}

func (mw *instrumentingMiddleware) IndexFile(ctx context.Context, filePath string, content string, language string) (result *IndexResult, err error) {
	defer func(begin time.Time) {
		mw.observe("index_file", begin, err)

		if err == nil {
			mw.metrics.ChunksIndexed.With("language", language).Add(float64(result.Indexed))
			mw.metrics.ChunksSkipped.With("language", language).Add(float64(result.Skipped))
		}
	}(time.Now())

	return mw.next.IndexFile(ctx, filePath, content, language)
}

func (mw *instrumentingMiddleware) RemoveFile(ctx context.Context, filePath string) (err error) {
	defer func(begin time.Time) {
		mw.observe("remove_file", begin, err)
	}(time.Now())

	return mw.next.RemoveFile(ctx, filePath)
}

func (mw *instrumentingMiddleware) ListFiles(ctx context.Context) (files []manifest.FileRecord, err error) {
	defer func(begin time.Time) {
		mw.observe("list_files", begin, err)
	}(time.Now())

	return mw.next.ListFiles(ctx)
}

func (mw *instrumentingMiddleware) FindSimilar(ctx context.Context, code string, topK int, language ...string) (hits []vector.Hit, err error) {
	defer func(begin time.Time) {
		mw.observe("find_similar", begin, err)
	}(time.Now())

	return mw.next.FindSimilar(ctx, code, topK, language...)
}

func (mw *instrumentingMiddleware) Query(ctx context.Context, query string, maxResults int, language ...string) (hits []vector.Hit, err error) {
	defer func(begin time.Time) {
		mw.observe("query", begin, err)
	}(time.Now())

	return mw.next.Query(ctx, query, maxResults, language...)
}

func (mw *instrumentingMiddleware) Stats(ctx context.Context) (stats *IndexStats, err error) {
	defer func(begin time.Time) {
		mw.observe("stats", begin, err)
	}(time.Now())

	return mw.next.Stats(ctx)
}

func (mw *instrumentingMiddleware) Health(ctx context.Context) (status *HealthStatus, err error) {
	defer func(begin time.Time) {
		mw.observe("health", begin, err)
	}(time.Now())

	return mw.next.Health(ctx)
}
