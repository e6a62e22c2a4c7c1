package codeindex

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/vector"
)

type EndpointSet struct {
	IndexFile   endpoint.Endpoint
	RemoveFile  endpoint.Endpoint
	ListFiles   endpoint.Endpoint
	FindSimilar endpoint.Endpoint
	Query       endpoint.Endpoint
	Stats       endpoint.Endpoint
	Health      endpoint.Endpoint
}

func MakeEndpoints(svc Service) EndpointSet {
	return EndpointSet{
		IndexFile:   IndexFileEndpoint(svc),
		RemoveFile:  RemoveFileEndpoint(svc),
		ListFiles:   ListFilesEndpoint(svc),
		FindSimilar: FindSimilarEndpoint(svc),
		Query:       QueryEndpoint(svc),
		Stats:       StatsEndpoint(svc),
		Health:      HealthEndpoint(svc),
	}
}

// Middleware applies an endpoint middleware to every endpoint of the set.
func (set EndpointSet) Middleware(mw endpoint.Middleware) EndpointSet {
	return EndpointSet{
		IndexFile:   mw(set.IndexFile),
		RemoveFile:  mw(set.RemoveFile),
		ListFiles:   mw(set.ListFiles),
		FindSimilar: mw(set.FindSimilar),
		Query:       mw(set.Query),
		Stats:       mw(set.Stats),
		Health:      mw(set.Health),
	}
}

// IndexFileRequest keeps Content as a pointer so that a missing field can be
// told apart from an empty file.
type IndexFileRequest struct {
	FilePath string  `json:"file_path"`
	Content  *string `json:"content"`
	Language string  `json:"language"`
}

func IndexFileEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(IndexFileRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		if req.Content == nil {
			return nil, ErrInvalidContent
		}

		return svc.IndexFile(ctx, req.FilePath, *req.Content, req.Language)
	}
}

func RemoveFileEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		filePath, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		err := svc.RemoveFile(ctx, filePath)
		return nil, err
	}
}

func ListFilesEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		files, err := svc.ListFiles(ctx)
		if err != nil {
			return nil, err
		}

		if files == nil {
			files = []manifest.FileRecord{}
		}

		return files, nil
	}
}

type FindSimilarRequest struct {
	Code     string `json:"code"`
	TopK     int    `json:"top_k,omitempty"`
	Language string `json:"language,omitempty"`
}

func FindSimilarEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(FindSimilarRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.FindSimilar(ctx, req.Code, req.TopK, req.Language)
	}
}

type QueryRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Language   string `json:"language,omitempty"`
}

func QueryEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(QueryRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Query(ctx, req.Query, req.MaxResults, req.Language)
	}
}

func StatsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Stats(ctx)
	}
}

// TimeoutMiddleware bounds the context of every request passing through.
func TimeoutMiddleware(timeout time.Duration) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			if timeout <= 0 {
				return next(ctx, request)
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return next(ctx, request)
		}
	}
}

func HealthEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.Health(ctx)
	}
}

// Hits narrows an endpoint response to search hits.
func Hits(resp any) ([]vector.Hit, error) {
	hits, ok := resp.([]vector.Hit)
	if !ok {
		return nil, errors.New("invalid response type")
	}

	return hits, nil
}
