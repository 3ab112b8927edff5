package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/abac-auth-service/internal/core/port"
)

var errNonPositiveWindow = errors.New("window must be positive")

// SlidingWindowConfig defines key layout and retention of login attempts.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository records attempts per identifier in a sorted set scored by time.
type RateLimitRepository struct {
	client *red.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *red.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt adds one attempt and refreshes the key retention in a single round trip.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)
	nanos := at.UnixNano()

	_, err := r.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.ZAdd(ctx, key, red.Z{Score: float64(nanos), Member: strconv.FormatInt(nanos, 10)})
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, key, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// CountAttempts returns the attempts inside (reference-window, reference].
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	lo, hi, err := bounds(window, reference)
	if err != nil {
		return 0, err
	}

	count, err := r.client.ZCount(ctx, r.key(identifier), lo, hi).Result()
	if err != nil {
		return 0, fmt.Errorf("count login attempts: %w", err)
	}
	return int(count), nil
}

// TrimWindow drops attempts that fell out of the window.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	lo, _, err := bounds(window, reference)
	if err != nil {
		return err
	}

	if err := r.client.ZRemRangeByScore(ctx, r.key(identifier), "-inf", "("+lo).Err(); err != nil {
		return fmt.Errorf("trim login attempts: %w", err)
	}
	return nil
}

// OldestAttempt returns the earliest attempt still inside the window.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	lo, hi, err := bounds(window, reference)
	if err != nil {
		return time.Time{}, false, err
	}

	members, err := r.client.ZRangeByScore(ctx, r.key(identifier), &red.ZRangeBy{Min: lo, Max: hi, Count: 1}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest login attempt: %w", err)
	}
	if len(members) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse attempt timestamp: %w", err)
	}
	return time.Unix(0, nanos), true, nil
}

func bounds(window time.Duration, reference time.Time) (string, string, error) {
	if window <= 0 {
		return "", "", errNonPositiveWindow
	}
	lo := strconv.FormatInt(reference.Add(-window).UnixNano(), 10)
	hi := strconv.FormatInt(reference.UnixNano(), 10)
	return lo, hi, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
