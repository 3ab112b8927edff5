package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

// ErrSessionNotFound indicates the browser session is unknown or no longer points at a live token.
var ErrSessionNotFound = errors.New("session not found")

// WebSessionService binds browser sessions to bearer tokens.
type WebSessionService struct {
	auth     *AuthService
	sessions port.SessionStore
	logger   *zap.Logger
}

func NewWebSessionService(auth *AuthService, sessions port.SessionStore, log *zap.Logger) *WebSessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSessionService{auth: auth, sessions: sessions, logger: log}
}

// Login authenticates the user and opens a new session pointing at the issued token.
func (s *WebSessionService) Login(ctx context.Context, email, password string) (string, domain.AccessData, error) {
	data, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return "", domain.AccessData{}, err
	}

	sessionID, err := s.sessions.CreateSession(ctx, domain.SessionData{domain.SessionAccessTokenKey: data.Token})
	if err != nil {
		return "", domain.AccessData{}, fmt.Errorf("create session: %w", err)
	}
	return sessionID, data, nil
}

// Resolve follows the session to its cached AccessData.
func (s *WebSessionService) Resolve(ctx context.Context, sessionID string) (domain.AccessData, error) {
	if sessionID == "" {
		return domain.AccessData{}, ErrSessionNotFound
	}

	data, err := s.sessions.ReadSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.AccessData{}, ErrSessionNotFound
		}
		return domain.AccessData{}, fmt.Errorf("read session: %w", err)
	}

	access, err := s.auth.ResolveToken(ctx, data.AccessToken())
	if err != nil {
		if errors.Is(err, ErrAccessDataNotFound) {
			return domain.AccessData{}, ErrSessionNotFound
		}
		return domain.AccessData{}, err
	}
	return access, nil
}

// Me returns the public user behind the session.
func (s *WebSessionService) Me(ctx context.Context, sessionID string) (domain.PublicUser, error) {
	access, err := s.Resolve(ctx, sessionID)
	if err != nil {
		return domain.PublicUser{}, err
	}
	return access.Public(), nil
}

// Logout deletes the session and revokes the token it points at.
func (s *WebSessionService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	data, err := s.sessions.ReadSession(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("read session: %w", err)
	}

	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if token := data.AccessToken(); token != "" {
		if err := s.auth.Logout(ctx, token); err != nil {
			return err
		}
	}
	return nil
}
