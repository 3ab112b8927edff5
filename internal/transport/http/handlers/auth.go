package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/infra/logger"
	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// AuthHandler exposes the bearer token endpoints.
type AuthHandler struct {
	auth   *usecase.AuthService
	logger *zap.Logger
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{auth: auth, logger: log}
}

// Login exchanges HTTP Basic credentials for a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	email, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="abac"`)
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "basic credentials required"))
		return
	}

	data, err := h.auth.Login(c.Request.Context(), email, password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			h.logger.Warn("login rejected",
				zap.String("email", logger.MaskEmail(email)),
				zap.String("client_ip", logger.MaskIP(c.ClientIP())),
			)
			c.Header("WWW-Authenticate", `Basic realm="abac"`)
		}
		respondError(c, err, "login failed",
			ErrorCase{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		)
		return
	}

	c.JSON(http.StatusOK, data.WithoutPassword())
}

// Logout revokes the bearer token of the caller.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing access token"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err, "logout failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// AccessData returns the public user cached under the posted token.
func (h *AuthHandler) AccessData(c *gin.Context) {
	var req AccessDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, "access data")
		return
	}

	data, err := h.auth.ResolveToken(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err, "failed to resolve access data",
			ErrorCase{Err: usecase.ErrAccessDataNotFound, Status: http.StatusUnauthorized, Message: "unknown or expired token"},
		)
		return
	}

	c.JSON(http.StatusOK, data.Public())
}
