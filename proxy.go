package codeindex

import (
	"context"
	"errors"

	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/vector"
)

// ProxyMiddleware serves the Service interface from remote endpoints. The
// wrapped service is ignored.
func ProxyMiddleware(endpoints EndpointSet) ServiceMiddleware {
	return func(next Service) Service {
		return &proxyMiddleware{
			endpoints: endpoints,
		}
	}
}

type proxyMiddleware struct {
	endpoints EndpointSet
}

func (mw *proxyMiddleware) Close() error {
	return errors.New("method not implemented")
}

func (mw *proxyMiddleware) IndexFile(ctx context.Context, filePath string, content string, language string) (*IndexResult, error) {
	req := IndexFileRequest{
		FilePath: filePath,
		Content:  &content,
		Language: language,
	}

	resp, err := mw.endpoints.IndexFile(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp.(*IndexResult)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return result, nil
}

func (mw *proxyMiddleware) RemoveFile(ctx context.Context, filePath string) error {
	_, err := mw.endpoints.RemoveFile(ctx, filePath)
	return err
}

func (mw *proxyMiddleware) ListFiles(ctx context.Context) ([]manifest.FileRecord, error) {
	resp, err := mw.endpoints.ListFiles(ctx, nil)
	if err != nil {
		return nil, err
	}

	files, ok := resp.([]manifest.FileRecord)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return files, nil
}

func (mw *proxyMiddleware) FindSimilar(ctx context.Context, code string, topK int, language ...string) ([]vector.Hit, error) {
	req := FindSimilarRequest{
		Code: code,
		TopK: topK,
	}

	if len(language) > 0 {
		req.Language = language[0]
	}

	resp, err := mw.endpoints.FindSimilar(ctx, req)
	if err != nil {
		return nil, err
	}

	return Hits(resp)
}

func (mw *proxyMiddleware) Query(ctx context.Context, query string, maxResults int, language ...string) ([]vector.Hit, error) {
	req := QueryRequest{
		Query:      query,
		MaxResults: maxResults,
	}

	if len(language) > 0 {
		req.Language = language[0]
	}

	resp, err := mw.endpoints.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	return Hits(resp)
}

func (mw *proxyMiddleware) Stats(ctx context.Context) (*IndexStats, error) {
	resp, err := mw.endpoints.Stats(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats, ok := resp.(*IndexStats)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return stats, nil
}

func (mw *proxyMiddleware) Health(ctx context.Context) (*HealthStatus, error) {
	resp, err := mw.endpoints.Health(ctx, nil)
	if err != nil {
		return nil, err
	}

	status, ok := resp.(*HealthStatus)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return status, nil
}
