package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/infra/security"
	"github.com/arklim/abac-auth-service/internal/repository"
)

const (
	defaultSessionPrefix   = "session"
	defaultSessionIndexKey = "session-index"
)

// SessionConfig controls session key layout and lifetime.
type SessionConfig struct {
	KeyPrefix string
	IndexKey  string
	TTL       time.Duration
}

// SessionRepository keeps browser sessions in the credential cache. Each bearer token
// bound to a session gets a link key "<IndexKey>:<token>" holding the session id so
// logout through the API can unlink it. Link keys share the session TTL.
type SessionRepository struct {
	cache port.CredentialCache
	cfg   SessionConfig
	newID func() (string, error)
}

const sessionIDBytes = 32

func newSessionID() (string, error) {
	return security.GenerateSecureToken(sessionIDBytes)
}

// NewSessionRepository constructs a session store on top of cache.
func NewSessionRepository(cache port.CredentialCache, cfg SessionConfig) *SessionRepository {
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = defaultSessionPrefix
	}
	if strings.TrimSpace(cfg.IndexKey) == "" {
		cfg.IndexKey = defaultSessionIndexKey
	}
	return &SessionRepository{cache: cache, cfg: cfg, newID: newSessionID}
}

// CreateSession stores data under a fresh session id.
func (r *SessionRepository) CreateSession(ctx context.Context, data domain.SessionData) (string, error) {
	id, err := r.newID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	if err := r.write(ctx, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// ReadSession returns the session data or repository.ErrNotFound.
func (r *SessionRepository) ReadSession(ctx context.Context, id string) (domain.SessionData, error) {
	if strings.TrimSpace(id) == "" {
		return nil, repository.ErrNotFound
	}

	var data domain.SessionData
	found, err := r.cache.Get(ctx, r.key(id), &data)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	if !found {
		return nil, repository.ErrNotFound
	}
	return data, nil
}

// UpdateSession replaces the session data and restarts its lifetime.
func (r *SessionRepository) UpdateSession(ctx context.Context, id string, data domain.SessionData) error {
	previous, err := r.ReadSession(ctx, id)
	if err != nil {
		return err
	}
	if token := previous.AccessToken(); token != "" && token != data.AccessToken() {
		if _, err := r.cache.Delete(ctx, r.linkKey(token)); err != nil {
			return fmt.Errorf("unlink previous token: %w", err)
		}
	}
	return r.write(ctx, id, data)
}

// DeleteSession removes the session and its token link.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	data, err := r.ReadSession(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if token := data.AccessToken(); token != "" {
		if _, err := r.cache.Delete(ctx, r.linkKey(token)); err != nil {
			return fmt.Errorf("unlink session token: %w", err)
		}
	}
	if _, err := r.cache.Delete(ctx, r.key(id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UnlinkToken drops the session bound to token, if there is one.
func (r *SessionRepository) UnlinkToken(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}

	var id string
	found, err := r.cache.Get(ctx, r.linkKey(token), &id)
	if err != nil {
		return fmt.Errorf("lookup session by token: %w", err)
	}
	if !found {
		return nil
	}

	if _, err := r.cache.DeleteKeys(ctx, []string{r.key(id), r.linkKey(token)}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) write(ctx context.Context, id string, data domain.SessionData) error {
	if data == nil {
		data = domain.SessionData{}
	}

	if err := r.cache.SaveWithExpiration(ctx, r.key(id), data, r.cfg.TTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if token := data.AccessToken(); token != "" {
		if err := r.cache.SaveWithExpiration(ctx, r.linkKey(token), id, r.cfg.TTL); err != nil {
			return fmt.Errorf("link session token: %w", err)
		}
	}
	return nil
}

func (r *SessionRepository) key(id string) string {
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, id)
}

func (r *SessionRepository) linkKey(token string) string {
	return fmt.Sprintf("%s:%s", r.cfg.IndexKey, token)
}

var _ port.SessionStore = (*SessionRepository)(nil)
