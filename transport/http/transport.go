package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/codeindex"
	"github.com/flarexio/codeindex/manifest"
)

// StatusCode maps a service error onto an HTTP status.
func StatusCode(err error) int {
	var depErr *codeindex.DependencyError

	switch {
	case errors.Is(err, codeindex.ErrValidation):
		return http.StatusBadRequest
	case errors.As(err, &depErr):
		return http.StatusBadGateway
	default:
		return http.StatusExpectationFailed
	}
}

func fail(c *gin.Context, status int, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"success":    false,
		"message":    err.Error(),
		"request_id": c.GetString(RequestIDKey),
	})
}

func IndexFileHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req codeindex.IndexFileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			fail(c, StatusCode(err), err)
			return
		}

		result, ok := resp.(*codeindex.IndexResult)
		if !ok {
			fail(c, http.StatusInternalServerError, errors.New("invalid response type"))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"message":     "file indexed",
			"file_path":   result.FilePath,
			"language":    result.Language,
			"chunk_count": result.ChunkCount,
			"indexed":     result.Indexed,
			"skipped":     result.Skipped,
		})
	}
}

func RemoveFileHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		filePath := c.Query("file_path")
		if filePath == "" {
			fail(c, http.StatusBadRequest, codeindex.ErrInvalidFilePath)
			return
		}

		ctx := c.Request.Context()
		_, err := endpoint(ctx, filePath)
		if err != nil {
			fail(c, StatusCode(err), err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "file removed",
			"file_path": filePath,
		})
	}
}

func ListFilesHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			fail(c, StatusCode(err), err)
			return
		}

		files, ok := resp.([]manifest.FileRecord)
		if !ok {
			fail(c, http.StatusInternalServerError, errors.New("invalid response type"))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"files":   files,
		})
	}
}

func FindSimilarHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req codeindex.FindSimilarRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			fail(c, StatusCode(err), err)
			return
		}

		hits, err := codeindex.Hits(resp)
		if err != nil {
			fail(c, http.StatusInternalServerError, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"similar": hits,
		})
	}
}

func QueryHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req codeindex.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			fail(c, StatusCode(err), err)
			return
		}

		hits, err := codeindex.Hits(resp)
		if err != nil {
			fail(c, http.StatusInternalServerError, err)
			return
		}

		// response is left to an answer generator outside this service.
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"query":       req.Query,
			"response":    "",
			"results":     hits,
			"max_results": req.MaxResults,
		})
	}
}

func StatsHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			fail(c, StatusCode(err), err)
			return
		}

		stats, ok := resp.(*codeindex.IndexStats)
		if !ok {
			fail(c, http.StatusInternalServerError, errors.New("invalid response type"))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":                 true,
			"indexed_files":           stats.IndexedFiles,
			"total_chunks":            stats.TotalChunks,
			"languages":               stats.Languages,
			"average_chunks_per_file": stats.AverageChunksPerFile,
		})
	}
}

func HealthHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			fail(c, StatusCode(err), err)
			return
		}

		status, ok := resp.(*codeindex.HealthStatus)
		if !ok {
			fail(c, http.StatusInternalServerError, errors.New("invalid response type"))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"status":       status.Status,
			"vector_store": status.Vector,
			"languages":    status.Languages,
		})
	}
}
