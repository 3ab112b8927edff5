package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/infra/logger"
	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/abac-auth-service/internal/usecase"
)

// WebCookieConfig describes the session cookie of the web tier.
type WebCookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// WebHandler serves the cookie based session endpoints.
type WebHandler struct {
	web    *usecase.WebSessionService
	cookie WebCookieConfig
	logger *zap.Logger
}

// NewWebHandler constructs WebHandler.
func NewWebHandler(web *usecase.WebSessionService, cookie WebCookieConfig, log *zap.Logger) *WebHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebHandler{web: web, cookie: cookie, logger: log}
}

// Login accepts form or JSON credentials and opens a session.
func (h *WebHandler) Login(c *gin.Context) {
	var req WebLoginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, "login")
		return
	}

	sessionID, data, err := h.web.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCredentials) {
			h.logger.Warn("web login rejected", zap.String("email", logger.MaskEmail(req.Email)))
		}
		respondError(c, err, "login failed",
			ErrorCase{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, sessionID, int(h.cookie.MaxAge.Seconds()), "/", "", h.cookie.Secure, true)
	c.JSON(http.StatusOK, data.Public())
}

// Logout ends the session and revokes its token.
func (h *WebHandler) Logout(c *gin.Context) {
	sessionID, _ := c.Cookie(h.cookie.Name)
	if err := h.web.Logout(c.Request.Context(), sessionID); err != nil {
		respondError(c, err, "logout failed")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	c.Status(http.StatusNoContent)
}

// Me returns the user of the session resolved by RequireSession.
func (h *WebHandler) Me(c *gin.Context) {
	data, ok := middleware.GetAccessData(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "session required"))
		return
	}
	c.JSON(http.StatusOK, data.Public())
}
