package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	mcpE "github.com/flarexio/codeindex/mcp"
)

type StdioMCPServer interface {
	AddEndpoint(method mcp.MCPMethod, endpoint mcpE.MCPEndpoint) error
	Listen(ctx context.Context) error
}

func NewStdioMCPServer(in io.Reader, out io.Writer, log *zap.Logger) StdioMCPServer {
	return &stdioMCPServer{
		in:        in,
		out:       out,
		log:       log,
		endpoints: make(map[mcp.MCPMethod]mcpE.MCPEndpoint),
	}
}

type stdioMCPServer struct {
	in  io.Reader
	out io.Writer
	log *zap.Logger

	endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint
	sync.Mutex
}

func (s *stdioMCPServer) Listen(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lines := make(chan string)
	errs := make(chan error, 1)

	go func(ctx context.Context, lines chan<- string, errs chan<- error) {
		defer close(lines)

		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			errs <- err
		}
	}(ctx, lines, errs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errs:
			return scanError(err)

		case line, ok := <-lines:
			if !ok {
				// The reader reports its error before closing lines.
				select {
				case err := <-errs:
					return scanError(err)
				default:
					return nil
				}
			}

			if line == "" {
				continue
			}

			var req mcpE.JSONRPCRequest
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				s.write(mcpE.ParseError())
				continue
			}

			if req.ID.IsNil() {
				continue
			}

			var resp mcp.JSONRPCMessage

			endpoint, ok := s.endpoints[req.Method]
			if ok {
				resp = endpoint(ctx, req)
			} else {
				resp = mcpE.MethodNotFound(req.ID)
			}

			s.write(resp)
		}
	}
}

func scanError(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

func (s *stdioMCPServer) write(resp mcp.JSONRPCMessage) {
	bs, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal response failed", zap.Error(err))
		return
	}

	s.Lock()
	defer s.Unlock()

	fmt.Fprintf(s.out, "%s\n", bs)
}

func (s *stdioMCPServer) AddEndpoint(method mcp.MCPMethod, endpoint mcpE.MCPEndpoint) error {
	_, ok := s.endpoints[method]
	if ok {
		return errors.New("endpoint already exists")
	}

	s.endpoints[method] = endpoint
	return nil
}
