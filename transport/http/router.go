package http

import (
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flarexio/codeindex"

	mcpE "github.com/flarexio/codeindex/mcp"
)

func AddRouters(r *gin.Engine, endpoints codeindex.EndpointSet) {
	// RESTful API routes
	api := r.Group("/api/v1", RequestID())
	{
		api.POST("/index/file", IndexFileHandler(endpoints.IndexFile))
		api.DELETE("/index/file", RemoveFileHandler(endpoints.RemoveFile))
		api.GET("/index/files", ListFilesHandler(endpoints.ListFiles))
		api.POST("/similar", FindSimilarHandler(endpoints.FindSimilar))
		api.POST("/query", QueryHandler(endpoints.Query))
		api.GET("/stats", StatsHandler(endpoints.Stats))
		api.GET("/health", HealthHandler(endpoints.Health))
	}
}

func AddMetricsRouter(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func AddStreamableRouters(r *gin.Engine, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) {
	mcp := r.Group("/mcp", RequestID())
	{
		mcp.POST("/", MCPStreamableHandler(endpoints))
	}
}
