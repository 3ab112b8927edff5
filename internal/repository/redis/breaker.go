package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

// BreakerSettings tunes the circuit breaker guarding cache reads.
type BreakerSettings struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// GuardedCache wraps a credential cache with a circuit breaker. Reads fail fast with
// repository.ErrUnavailable while the breaker is open. Writes are passed through.
type GuardedCache struct {
	port.CredentialCache
	cb *gobreaker.CircuitBreaker[any]
}

// NewGuardedCache wraps inner with a breaker configured from settings.
func NewGuardedCache(inner port.CredentialCache, settings BreakerSettings, logger *zap.Logger) *GuardedCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := settings.Name
	if name == "" {
		name = "credential-cache"
	}
	threshold := settings.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("credential cache breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, repository.ErrNotFound)
		},
	})

	return &GuardedCache{CredentialCache: inner, cb: cb}
}

// State exposes the breaker state for readiness reporting.
func (g *GuardedCache) State() gobreaker.State {
	return g.cb.State()
}

// Get reads through the breaker.
func (g *GuardedCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	found, err := guard(g, func() (bool, error) {
		return g.CredentialCache.Get(ctx, key, dest)
	})
	return found, err
}

// GetExistingKeys reads through the breaker.
func (g *GuardedCache) GetExistingKeys(ctx context.Context, keys []string) ([][]byte, error) {
	return guard(g, func() ([][]byte, error) {
		return g.CredentialCache.GetExistingKeys(ctx, keys)
	})
}

// TimeToLive reads through the breaker.
func (g *GuardedCache) TimeToLive(ctx context.Context, key string) (time.Duration, error) {
	return guard(g, func() (time.Duration, error) {
		return g.CredentialCache.TimeToLive(ctx, key)
	})
}

// Exists reads through the breaker.
func (g *GuardedCache) Exists(ctx context.Context, keys ...string) (int64, error) {
	return guard(g, func() (int64, error) {
		return g.CredentialCache.Exists(ctx, keys...)
	})
}

// GetHash reads through the breaker.
func (g *GuardedCache) GetHash(ctx context.Context, key, field string, dest any) (bool, error) {
	return guard(g, func() (bool, error) {
		return g.CredentialCache.GetHash(ctx, key, field, dest)
	})
}

func guard[T any](g *GuardedCache, fn func() (T, error)) (T, error) {
	var zero T
	result, err := g.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
		}
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

var _ port.CredentialCache = (*GuardedCache)(nil)
