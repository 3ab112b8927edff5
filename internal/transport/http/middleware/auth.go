package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/infra/security"
	"github.com/arklim/abac-auth-service/internal/repository"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// TokenResolver looks up the cached credential behind a bearer token.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (domain.AccessData, error)
}

var _ TokenResolver = (*usecase.AuthService)(nil)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireBearer authenticates the request against the credential cache. Missing or
// unknown tokens answer 401; an unreachable cache answers 503.
func RequireBearer(resolver TokenResolver, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "missing authorization header"))
			return
		}

		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		data, err := resolver.ResolveToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrAccessDataNotFound):
				log.Warn("unauthenticated request",
					zap.String("path", c.Request.URL.Path),
					zap.String("token_fp", security.Fingerprint(token)),
					zap.String("trace_id", GetTraceID(c)),
				)
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid or expired access token"))
			case errors.Is(err, repository.ErrUnavailable):
				log.Error("credential cache unavailable", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "authentication temporarily unavailable"))
			default:
				log.Error("resolve access token", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
			}
			return
		}

		SetAccessData(c, data)
		c.Next()
	}
}

// RequireRole checks if the authenticated user has any of the specified roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := GetAccessData(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
			return
		}

		if !hasAnyRole(data.RoleNames(), roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

func hasAnyRole(userRoles []string, requiredRoles []string) bool {
	roleMap := make(map[string]bool, len(userRoles))
	for _, role := range userRoles {
		roleMap[role] = true
	}

	for _, required := range requiredRoles {
		if roleMap[required] {
			return true
		}
	}
	return false
}
