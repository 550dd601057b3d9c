package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jdfresh/backend/internal/interfaces/http/dto"
)

// BodyLimit caps request body size. Order payloads are a handful of
// cart lines and delivery proofs are base64 images, so anything past
// the cap is rejected before a handler reads it.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeRequestTooLarge, "Request body exceeds the maximum allowed size"))
			return
		}

		// Chunked requests carry no Content-Length; the limited reader
		// catches those while streaming.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
