package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/abac-auth-service/internal/infra/logger"
)

const (
	requestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 128
)

// RequestID propagates the caller's X-Request-ID, or a fresh uuid when it is absent or
// oversized, into the response headers and the request context used by the loggers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.NewString()
		}

		c.Header(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), reqID))
		c.Next()
	}
}
