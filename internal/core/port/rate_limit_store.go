package port

import (
	"context"
	"time"
)

// RateLimitStore keeps login attempts per identifier (client IP or Basic email) so the
// login endpoints can apply a sliding window.
type RateLimitStore interface {
	// RecordAttempt appends one attempt at the given instant.
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	// TrimWindow drops attempts older than reference-window.
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	// OldestAttempt reports the earliest attempt still inside the window; false when there is none.
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
