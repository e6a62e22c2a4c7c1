package codeindex

import (
	"context"

	"go.uber.org/zap"

	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/vector"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "codeindex"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) logger(ctx context.Context, action string) *zap.Logger {
	log := mw.log.With(
		zap.String("action", action),
	)

	requestID, ok := ctx.Value(RequestID).(string)
	if ok {
		log = log.With(
			zap.String("request_id", requestID),
		)
	}

	return log
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) IndexFile(ctx context.Context, filePath string, content string, language string) (*IndexResult, error) {
	log := mw.logger(ctx, "index_file").With(
		zap.String("file_path", filePath),
		zap.String("language", language),
		zap.Int("size", len(content)),
	)

	result, err := mw.next.IndexFile(ctx, filePath, content, language)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("file indexed",
		zap.Int("chunks", result.ChunkCount),
		zap.Int("indexed", result.Indexed),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

func (mw *loggingMiddleware) RemoveFile(ctx context.Context, filePath string) error {
	log := mw.logger(ctx, "remove_file").With(
		zap.String("file_path", filePath),
	)

	err := mw.next.RemoveFile(ctx, filePath)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("file removed")
	return nil
}

func (mw *loggingMiddleware) ListFiles(ctx context.Context) ([]manifest.FileRecord, error) {
	log := mw.logger(ctx, "list_files")

	files, err := mw.next.ListFiles(ctx)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("files listed", zap.Int("count", len(files)))
	return files, nil
}

func (mw *loggingMiddleware) FindSimilar(ctx context.Context, code string, topK int, language ...string) ([]vector.Hit, error) {
	log := mw.logger(ctx, "find_similar").With(
		zap.Int("top_k", topK),
	)

	if len(language) > 0 && language[0] != "" {
		log = log.With(
			zap.String("language", language[0]),
		)
	}

	hits, err := mw.next.FindSimilar(ctx, code, topK, language...)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("similar code found", zap.Int("count", len(hits)))
	return hits, nil
}

func (mw *loggingMiddleware) Query(ctx context.Context, query string, maxResults int, language ...string) ([]vector.Hit, error) {
	log := mw.logger(ctx, "query").With(
		zap.String("query", query),
		zap.Int("max_results", maxResults),
	)

	if len(language) > 0 && language[0] != "" {
		log = log.With(
			zap.String("language", language[0]),
		)
	}

	hits, err := mw.next.Query(ctx, query, maxResults, language...)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("query answered", zap.Int("count", len(hits)))
	return hits, nil
}

func (mw *loggingMiddleware) Stats(ctx context.Context) (*IndexStats, error) {
	log := mw.logger(ctx, "stats")

	stats, err := mw.next.Stats(ctx)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("stats collected",
		zap.Int("files", stats.IndexedFiles),
		zap.Int("chunks", stats.TotalChunks),
	)

	return stats, nil
}

func (mw *loggingMiddleware) Health(ctx context.Context) (*HealthStatus, error) {
	log := mw.logger(ctx, "health")

	status, err := mw.next.Health(ctx)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Debug("service healthy")
	return status, nil
}
