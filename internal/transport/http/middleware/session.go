package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/repository"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// SessionResolver follows a web session to the cached credential it points at.
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (domain.AccessData, error)
}

var _ SessionResolver = (*usecase.WebSessionService)(nil)

// RequireSession authenticates browser requests by their session cookie. Missing or
// stale sessions are redirected to loginRedirect.
func RequireSession(resolver SessionResolver, cookieName, loginRedirect string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		sessionID, _ := c.Cookie(cookieName)

		data, err := resolver.Resolve(c.Request.Context(), sessionID)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrSessionNotFound):
				c.Redirect(http.StatusFound, loginRedirect)
				c.Abort()
			case errors.Is(err, repository.ErrUnavailable):
				log.Error("session store unavailable", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "session temporarily unavailable"))
			default:
				log.Error("resolve session", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "session lookup failed"))
			}
			return
		}

		c.Set(SessionIDKey, sessionID)
		SetAccessData(c, data)
		c.Next()
	}
}
