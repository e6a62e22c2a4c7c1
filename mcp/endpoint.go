package mcp

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/codeindex"
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestId   `json:"id"`
	Method  mcp.MCPMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func errorResponse(id mcp.RequestId, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error: struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data,omitempty"`
		}{
			Code:    code,
			Message: message,
		},
	}
}

// MethodNotFound answers a request for an unregistered method.
func MethodNotFound(id mcp.RequestId) mcp.JSONRPCMessage {
	return errorResponse(id, mcp.METHOD_NOT_FOUND, "method not found")
}

// ParseError answers a message that is not valid JSON-RPC.
func ParseError() mcp.JSONRPCMessage {
	return errorResponse(mcp.NewRequestId(nil), mcp.PARSE_ERROR, "parse error")
}

type MCPEndpoint func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage

const MCPSERVER_INSTRUCTIONS string = `codeindex keeps a semantic index of source files, providing:

1. **Indexing**: Split a file into functions, classes or paragraphs and store their embeddings
2. **Similar Code**: Find indexed chunks that resemble a code snippet
3. **Code Search**: Find indexed chunks relevant to a natural-language question

Available tools:
- index_file: Index or re-index one file
- find_similar: Find chunks similar to a snippet
- query_code: Search chunks with a question

Results carry the file path and line range of every chunk.`

const (
	ToolIndexFile   = "index_file"
	ToolFindSimilar = "find_similar"
	ToolQueryCode   = "query_code"
)

func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolIndexFile,
			mcp.WithDescription("Index a source file so that its functions and classes become searchable."),
			mcp.WithString("file_path",
				mcp.Required(),
				mcp.Description("Path identifying the file, used in chunk ids."),
			),
			mcp.WithString("content",
				mcp.Required(),
				mcp.Description("Full text of the file."),
			),
			mcp.WithString("language",
				mcp.Description("Language name or alias, e.g. javascript, py, go."),
			),
		),
		mcp.NewTool(ToolFindSimilar,
			mcp.WithDescription("Find indexed code chunks similar to a snippet."),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Code snippet to compare against."),
			),
			mcp.WithNumber("top_k",
				mcp.Description("Number of results, at most 50. Defaults to 10."),
			),
			mcp.WithString("language",
				mcp.Description("Only return chunks of this language."),
			),
		),
		mcp.NewTool(ToolQueryCode,
			mcp.WithDescription("Search indexed code chunks with a natural-language question."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("The question to search for."),
			),
			mcp.WithNumber("max_results",
				mcp.Description("Number of results, at most 50. Defaults to 5."),
			),
			mcp.WithString("language",
				mcp.Description("Only return chunks of this language."),
			),
		),
	}
}

func InitializeEndpoint(svc codeindex.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		protocolVersion := mcp.LATEST_PROTOCOL_VERSION
		if clientVersion := params.ProtocolVersion; clientVersion != "" {
			if slices.Contains(mcp.ValidProtocolVersions, clientVersion) {
				protocolVersion = clientVersion
			}
		}

		result := &mcp.InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{},
			},
			ServerInfo: mcp.Implementation{
				Name:    "codeindex",
				Version: "1.0.0",
			},
			Instructions: MCPSERVER_INSTRUCTIONS,
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func PingEndpoint(svc codeindex.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  struct{}{}, // empty response
		}
	}
}

func ListToolsEndpoint(svc codeindex.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		result := &mcp.ListToolsResult{
			Tools: Tools(),
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func CallToolEndpoint(svc codeindex.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		callToolReq := mcp.CallToolRequest{
			Request: mcp.Request{
				Method: string(req.Method),
			},
			Params: params,
		}

		var (
			resp any
			err  error
		)

		args := arguments(callToolReq.GetArguments())

		switch params.Name {
		case ToolIndexFile:
			content, ok := args.lookup("content")
			if !ok {
				err = codeindex.ErrInvalidContent
				break
			}

			resp, err = svc.IndexFile(ctx,
				args.text("file_path"),
				content,
				args.text("language"),
			)

		case ToolFindSimilar:
			resp, err = svc.FindSimilar(ctx,
				args.text("code"),
				args.number("top_k"),
				args.text("language"),
			)

		case ToolQueryCode:
			resp, err = svc.Query(ctx,
				args.text("query"),
				args.number("max_results"),
				args.text("language"),
			)

		default:
			return errorResponse(req.ID, mcp.INVALID_PARAMS, "unknown tool: "+params.Name)
		}

		var result *mcp.CallToolResult
		if err != nil {
			result = mcp.NewToolResultError(err.Error())
		} else {
			bs, err := json.Marshal(resp)
			if err != nil {
				return errorResponse(req.ID, mcp.INTERNAL_ERROR, err.Error())
			}

			result = mcp.NewToolResultText(string(bs))
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

// MakeEndpoints registers the JSON-RPC methods served by codeindex.
func MakeEndpoints(svc codeindex.Service) map[mcp.MCPMethod]MCPEndpoint {
	endpoints := make(map[mcp.MCPMethod]MCPEndpoint)
	endpoints[mcp.MethodInitialize] = InitializeEndpoint(svc)
	endpoints[mcp.MethodPing] = PingEndpoint(svc)
	endpoints[mcp.MethodToolsList] = ListToolsEndpoint(svc)
	endpoints[mcp.MethodToolsCall] = CallToolEndpoint(svc)
	return endpoints
}

type arguments map[string]any

func (a arguments) lookup(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

func (a arguments) text(key string) string {
	s, _ := a.lookup(key)
	return s
}

// number accepts JSON numbers and numeric strings.
func (a arguments) number(key string) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		var n int
		if err := json.Unmarshal([]byte(v), &n); err == nil {
			return n
		}
	}

	return 0
}
