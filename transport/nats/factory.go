package nats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"

	"github.com/flarexio/codeindex"
	"github.com/flarexio/codeindex/manifest"
	"github.com/flarexio/codeindex/vector"
)

// DefaultTimeout bounds requests whose context carries no deadline. Indexing
// waits on the embedding provider, so the nats default is too short.
var DefaultTimeout = 60 * time.Second

func MakeEndpoints(nc *nats.Conn, prefix string) codeindex.EndpointSet {
	return codeindex.EndpointSet{
		IndexFile:   IndexFileEndpoint(nc, prefix+".index_file"),
		RemoveFile:  RemoveFileEndpoint(nc, prefix+".remove_file"),
		ListFiles:   ListFilesEndpoint(nc, prefix+".list_files"),
		FindSimilar: FindSimilarEndpoint(nc, prefix+".find_similar"),
		Query:       QueryEndpoint(nc, prefix+".query"),
		Stats:       StatsEndpoint(nc, prefix+".stats"),
		Health:      HealthEndpoint(nc, prefix+".health"),
	}
}

func requestMsg(ctx context.Context, nc *nats.Conn, topic string, data []byte) (*nats.Msg, error) {
	msg := nats.NewMsg(topic)
	msg.Data = data

	if requestID, ok := ctx.Value(codeindex.RequestID).(string); ok {
		msg.Header.Set(RequestIDHeader, requestID)
	}

	var (
		resp *nats.Msg
		err  error
	)

	if _, ok := ctx.Deadline(); ok {
		resp, err = nc.RequestMsgWithContext(ctx, msg)
	} else {
		resp, err = nc.RequestMsg(msg, DefaultTimeout)
	}

	if err != nil {
		return nil, err
	}

	if err := Error(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func IndexFileEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(codeindex.IndexFileRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var result *codeindex.IndexResult
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func RemoveFileEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		filePath, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestMsg(ctx, nc, topic, []byte(filePath))
		if err != nil {
			return nil, err
		}

		return string(resp.Data), nil
	}
}

func ListFilesEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		resp, err := requestMsg(ctx, nc, topic, nil)
		if err != nil {
			return nil, err
		}

		var files []manifest.FileRecord
		if err := json.Unmarshal(resp.Data, &files); err != nil {
			return nil, err
		}

		return files, nil
	}
}

func FindSimilarEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(codeindex.FindSimilarRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var hits []vector.Hit
		if err := json.Unmarshal(resp.Data, &hits); err != nil {
			return nil, err
		}

		return hits, nil
	}
}

func QueryEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(codeindex.QueryRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		data, err := json.Marshal(&req)
		if err != nil {
			return nil, err
		}

		resp, err := requestMsg(ctx, nc, topic, data)
		if err != nil {
			return nil, err
		}

		var hits []vector.Hit
		if err := json.Unmarshal(resp.Data, &hits); err != nil {
			return nil, err
		}

		return hits, nil
	}
}

func StatsEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		resp, err := requestMsg(ctx, nc, topic, nil)
		if err != nil {
			return nil, err
		}

		var stats *codeindex.IndexStats
		if err := json.Unmarshal(resp.Data, &stats); err != nil {
			return nil, err
		}

		return stats, nil
	}
}

func HealthEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		resp, err := requestMsg(ctx, nc, topic, nil)
		if err != nil {
			return nil, err
		}

		var status *codeindex.HealthStatus
		if err := json.Unmarshal(resp.Data, &status); err != nil {
			return nil, err
		}

		return status, nil
	}
}
