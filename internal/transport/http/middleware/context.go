package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// UserIDKey is the context key for authenticated user ID
	UserIDKey = "user_id"
	// AccessDataKey holds the cached credential of the authenticated caller.
	AccessDataKey = "access_data"
	// SessionIDKey holds the web session id once the session middleware resolved it.
	SessionIDKey = "session_id"
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID   string
	UserID    string
	IP        string
	UserAgent string
}

// EnrichContext adds trace ID and request context to each request
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		reqCtx := &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		c.Set("request_context", reqCtx)

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get("request_context"); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}

// SetAccessData records the authenticated caller on the request.
func SetAccessData(c *gin.Context, data domain.AccessData) {
	c.Set(AccessDataKey, data)
	c.Set(UserIDKey, data.UserID)
	if reqCtx := GetRequestContext(c); reqCtx != nil {
		reqCtx.UserID = data.UserID
	}
}

// GetAccessData returns the credential stored by the bearer or session middleware.
func GetAccessData(c *gin.Context) (domain.AccessData, bool) {
	value, exists := c.Get(AccessDataKey)
	if !exists {
		return domain.AccessData{}, false
	}
	data, ok := value.(domain.AccessData)
	return data, ok
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok && id != "" {
		return id, true
	}

	return "", false
}
