package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/arklim/abac-auth-service/internal/infra/logger"
)

// Logger emits access logs for every HTTP request with correlation identifiers and masked PII.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		requestID := appLogger.RequestIDFromContext(c.Request.Context())
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", requestID),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
		}

		if userID, ok := GetAuthenticatedUserID(c); ok {
			fields = append(fields, zap.String("user_id", userID))
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}

		if len(c.Errors) > 0 {
			log.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}

		log.Info("request completed", fields...)
	}
}
