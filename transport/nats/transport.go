package nats

import (
	"context"
	"encoding/json"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"github.com/flarexio/codeindex"
	"github.com/flarexio/codeindex/manifest"
)

func requestContext(r micro.Request) context.Context {
	ctx := context.Background()

	requestID := r.Headers().Get(RequestIDHeader)
	if requestID != "" {
		ctx = context.WithValue(ctx, codeindex.RequestID, requestID)
	}

	return ctx
}

func IndexFileHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req codeindex.IndexFileRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := requestContext(r)
		resp, err := endpoint(ctx, req)
		if err != nil {
			respondError(r, err)
			return
		}

		result, ok := resp.(*codeindex.IndexResult)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(result)
	}
}

func RemoveFileHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		filePath := string(r.Data())
		if filePath == "" {
			r.Error("400", codeindex.ErrInvalidFilePath.Error(), nil)
			return
		}

		ctx := requestContext(r)
		_, err := endpoint(ctx, filePath)
		if err != nil {
			respondError(r, err)
			return
		}

		r.Respond([]byte("OK"))
	}
}

func ListFilesHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		ctx := requestContext(r)
		resp, err := endpoint(ctx, nil)
		if err != nil {
			respondError(r, err)
			return
		}

		files, ok := resp.([]manifest.FileRecord)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(&files)
	}
}

func FindSimilarHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req codeindex.FindSimilarRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := requestContext(r)
		resp, err := endpoint(ctx, req)
		if err != nil {
			respondError(r, err)
			return
		}

		hits, err := codeindex.Hits(resp)
		if err != nil {
			r.Error("500", err.Error(), nil)
			return
		}

		r.RespondJSON(&hits)
	}
}

func QueryHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req codeindex.QueryRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := requestContext(r)
		resp, err := endpoint(ctx, req)
		if err != nil {
			respondError(r, err)
			return
		}

		hits, err := codeindex.Hits(resp)
		if err != nil {
			r.Error("500", err.Error(), nil)
			return
		}

		r.RespondJSON(&hits)
	}
}

func StatsHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		ctx := requestContext(r)
		resp, err := endpoint(ctx, nil)
		if err != nil {
			respondError(r, err)
			return
		}

		stats, ok := resp.(*codeindex.IndexStats)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(stats)
	}
}

func HealthHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		ctx := requestContext(r)
		resp, err := endpoint(ctx, nil)
		if err != nil {
			respondError(r, err)
			return
		}

		status, ok := resp.(*codeindex.HealthStatus)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(status)
	}
}
