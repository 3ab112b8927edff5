package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/port"
	appLogger "github.com/arklim/abac-auth-service/internal/infra/logger"
)

const (
	rateLimitProblemType  = "urn:abac-auth-service:errors:rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter enforces sliding-window rules backed by a RateLimitStore.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

type ruleResult struct {
	allowed    bool
	limit      int
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// BasicAuthEmailIdentifier scopes a rule to the lower-cased email of HTTP Basic credentials.
func BasicAuthEmailIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		email, _, ok := c.Request.BasicAuth()
		email = strings.ToLower(strings.TrimSpace(email))
		return email, ok && email != ""
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules. Store failures are
// logged and the rule is skipped.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var tightest *ruleResult

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			res, err := rl.evaluate(c, rule, fmt.Sprintf("%s:%s", rule.Name, identifier), now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("identifier", appLogger.MaskString(identifier)),
					zap.Error(err),
				)
				continue
			}

			if !res.allowed {
				rl.applyHeaders(c, res)
				rl.respondRateLimited(c, res)
				return
			}
			if tightest == nil || res.remaining < tightest.remaining ||
				(res.remaining == tightest.remaining && res.reset.Before(tightest.reset)) {
				snapshot := res
				tightest = &snapshot
			}
		}

		if tightest != nil {
			rl.applyHeaders(c, *tightest)
		}

		c.Next()
	}
}

func (rl *RateLimiter) evaluate(c *gin.Context, rule RateLimitRule, key string, now time.Time) (ruleResult, error) {
	ctx := c.Request.Context()

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return ruleResult{}, err
	}

	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return ruleResult{}, err
	}

	oldest, hasAttempts, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return ruleResult{}, err
	}

	result := ruleResult{
		allowed: true,
		limit:   rule.Limit,
		reset:   now.Add(rule.Window),
	}
	if hasAttempts {
		result.reset = oldest.Add(rule.Window)
	}
	result.retryAfter = max(result.reset.Sub(now), 0)

	if count >= rule.Limit {
		result.allowed = false
		return result, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return ruleResult{}, err
	}
	result.remaining = max(rule.Limit-count-1, 0)

	return result, nil
}

func (rl *RateLimiter) applyHeaders(c *gin.Context, res ruleResult) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(res.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(res.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.reset.Unix(), 10))

	if !res.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(res.retryAfter)))
	}
}

func (rl *RateLimiter) respondRateLimited(c *gin.Context, res ruleResult) {
	seconds := retrySeconds(res.retryAfter)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}

func retrySeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 0)
}
