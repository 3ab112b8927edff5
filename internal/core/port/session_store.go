package port

import (
	"context"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

// SessionStore keeps browser session data in the credential cache.
type SessionStore interface {
	CreateSession(ctx context.Context, data domain.SessionData) (string, error)
	ReadSession(ctx context.Context, id string) (domain.SessionData, error)
	UpdateSession(ctx context.Context, id string, data domain.SessionData) error
	DeleteSession(ctx context.Context, id string) error
	// UnlinkToken removes the session bound to the given bearer token, if any.
	UnlinkToken(ctx context.Context, token string) error
}
