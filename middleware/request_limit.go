package middleware

import (
	"net/http"

	"document-processing-platform/utils"

	"github.com/gin-gonic/gin"
)

// RequestSizeLimit rejects requests whose declared body exceeds maxSize
// before any handler buffers the payload. Per-file limits are enforced
// again at the upload handler, this cap bounds the whole batch.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size":    maxSize,
					"received":    c.Request.ContentLength,
					"max_size_mb": maxSize / (1024 * 1024),
				})
			c.Abort()
			return
		}
		c.Next()
	}
}
