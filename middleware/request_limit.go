package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-document-platform/utils"
)

// multipartOverhead leaves room for form boundaries and the title field.
const multipartOverhead = 1 << 20

// RequestSizeLimit rejects bodies that declare more than maxSize bytes and
// caps the bytes read from the rest.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxSize + multipartOverhead
		if c.Request.ContentLength > limit {
			utils.RespondWithError(c, http.StatusBadRequest,
				"file_too_large",
				"File size exceeds maximum limit",
				gin.H{
					"max_size":    maxSize,
					"received":    c.Request.ContentLength,
					"max_size_mb": maxSize / (1024 * 1024),
				})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
