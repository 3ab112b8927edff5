package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck pings one dependency.
type ReadinessCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// HealthOption configures the health handler.
type HealthOption func(*HealthHandler)

// WithReadinessCheck adds a dependency that must answer before the service reports ready.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandler) {
		if check != nil {
			h.checks = append(h.checks, namedCheck{name: name, check: check})
		}
	}
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    []namedCheck
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{startedAt: time.Now().UTC()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Status answers the liveness probe.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
		Timestamp: time.Now().UTC(),
	})
}

// Readiness pings every dependency and answers 503 if any of them fails.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}

	for _, nc := range h.checks {
		if err := nc.check(ctx); err != nil {
			resp.Checks[nc.name] = "error: " + err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[nc.name] = "ok"
	}

	resp.Timestamp = time.Now().UTC()
	c.JSON(status, resp)
}
