package codeindex

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/vector"
)

// TracingMiddleware opens one span per operation on the globally registered
// tracer provider. Without a registered provider the spans are no-ops.
func TracingMiddleware() ServiceMiddleware {
	tracer := otel.Tracer("github.com/flarexio/codeindex")

	return func(next Service) Service {
		return &tracingMiddleware{
			tracer: tracer,
			next:   next,
		}
	}
}

type tracingMiddleware struct {
	tracer trace.Tracer
	next   Service
}

func (mw *tracingMiddleware) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if requestID, ok := ctx.Value(RequestID).(string); ok {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}

	return mw.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

func (mw *tracingMiddleware) Close() error {
	return mw.next.Close()
}

func (mw *tracingMiddleware) IndexFile(ctx context.Context, filePath string, content string, language string) (result *IndexResult, err error) {
	ctx, span := mw.start(ctx, "codeindex.IndexFile",
		attribute.String("file_path", filePath),
		attribute.String("language", language),
	)
	defer func() {
		if err == nil {
			span.SetAttributes(
				attribute.Int("chunk_count", result.ChunkCount),
				attribute.Int("indexed", result.Indexed),
			)
		}

		end(span, err)
	}()

	return mw.next.IndexFile(ctx, filePath, content, language)
}

func (mw *tracingMiddleware) RemoveFile(ctx context.Context, filePath string) (err error) {
	ctx, span := mw.start(ctx, "codeindex.RemoveFile",
		attribute.String("file_path", filePath),
	)
	defer func() { end(span, err) }()

	return mw.next.RemoveFile(ctx, filePath)
}

func (mw *tracingMiddleware) ListFiles(ctx context.Context) (files []manifest.FileRecord, err error) {
	ctx, span := mw.start(ctx, "codeindex.ListFiles")
	defer func() { end(span, err) }()

	return mw.next.ListFiles(ctx)
}

func (mw *tracingMiddleware) FindSimilar(ctx context.Context, code string, topK int, language ...string) (hits []vector.Hit, err error) {
	ctx, span := mw.start(ctx, "codeindex.FindSimilar",
		attribute.Int("top_k", topK),
	)
	defer func() {
		span.SetAttributes(attribute.Int("hits", len(hits)))
		end(span, err)
	}()

	return mw.next.FindSimilar(ctx, code, topK, language...)
}

func (mw *tracingMiddleware) Query(ctx context.Context, query string, maxResults int, language ...string) (hits []vector.Hit, err error) {
	ctx, span := mw.start(ctx, "codeindex.Query",
		attribute.Int("max_results", maxResults),
	)
	defer func() {
		span.SetAttributes(attribute.Int("hits", len(hits)))
		end(span, err)
	}()

	return mw.next.Query(ctx, query, maxResults, language...)
}

func (mw *tracingMiddleware) Stats(ctx context.Context) (stats *IndexStats, err error) {
	ctx, span := mw.start(ctx, "codeindex.Stats")
	defer func() {
		if err == nil {
			span.SetAttributes(attribute.Int("indexed_files", stats.IndexedFiles))
		}

		end(span, err)
	}()

	return mw.next.Stats(ctx)
}

func (mw *tracingMiddleware) Health(ctx context.Context) (status *HealthStatus, err error) {
	ctx, span := mw.start(ctx, "codeindex.Health")
	defer func() { end(span, err) }()

	return mw.next.Health(ctx)
}
