package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/infra/logger"
	"github.com/arklim/abac-auth-service/internal/infra/security"
	"github.com/arklim/abac-auth-service/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput indicates a request payload failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultAccessTokenBytes = 32
	defaultAccessTokenTTL   = 259200 * time.Second
)

// AuthConfig tunes issued bearer tokens.
type AuthConfig struct {
	TokenBytes int
	TokenTTL   time.Duration
}

// AuthService logs users in and out and resolves bearer tokens to cached AccessData.
type AuthService struct {
	users    port.UserRepository
	roles    port.RoleRepository
	access   accessCache
	hasher   PasswordHasher
	newToken TokenGenerator
	cfg      AuthConfig
	logger   *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users port.UserRepository,
	roles port.RoleRepository,
	cache port.CredentialCache,
	sessions port.SessionStore,
	hasher PasswordHasher,
	newToken TokenGenerator,
	cfg AuthConfig,
	log *zap.Logger,
) *AuthService {
	if cfg.TokenBytes <= 0 {
		cfg.TokenBytes = defaultAccessTokenBytes
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultAccessTokenTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		users:    users,
		roles:    roles,
		access:   accessCache{cache: cache, sessions: sessions, logger: log},
		hasher:   hasher,
		newToken: newToken,
		cfg:      cfg,
		logger:   log,
	}
}

// Login verifies the credentials and issues a fresh bearer token. A previous token of
// the user that is still live is revoked first.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.AccessData, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.AccessData{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.AccessData{}, ErrInvalidCredentials
		}
		return domain.AccessData{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return domain.AccessData{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return domain.AccessData{}, ErrInvalidCredentials
	}

	roles, err := s.roles.ListByUser(ctx, user.ID)
	if err != nil {
		return domain.AccessData{}, fmt.Errorf("load roles: %w", err)
	}

	if err := s.revokePrevious(ctx, *user); err != nil {
		return domain.AccessData{}, err
	}

	token, err := s.newToken(s.cfg.TokenBytes)
	if err != nil {
		return domain.AccessData{}, fmt.Errorf("generate access token: %w", err)
	}

	if err := s.users.SetCachedAccessToken(ctx, user.ID, &token); err != nil {
		return domain.AccessData{}, fmt.Errorf("store access token: %w", err)
	}

	data := domain.AccessData{
		Token:  token,
		UserID: user.ID,
		UserData: domain.UserData{
			User:  cachedUser(*user, token),
			Roles: roles,
		},
	}

	if err := s.access.cache.SaveWithExpiration(ctx, token, data, s.cfg.TokenTTL); err != nil {
		return domain.AccessData{}, fmt.Errorf("cache access data: %w", err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
		zap.String("token_fp", security.Fingerprint(token)),
		zap.Strings("roles", domain.RoleNames(roles)),
	)

	return data, nil
}

func (s *AuthService) revokePrevious(ctx context.Context, user domain.User) error {
	if user.CachedAccessToken == nil || *user.CachedAccessToken == "" {
		return nil
	}
	previous := *user.CachedAccessToken

	live, err := s.access.cache.GetExistingKeys(ctx, []string{previous})
	if err != nil {
		return fmt.Errorf("check previous token: %w", err)
	}
	if len(live) == 0 {
		return nil
	}

	if err := s.access.revoke(ctx, previous); err != nil {
		return fmt.Errorf("revoke previous token: %w", err)
	}
	return nil
}

// Logout revokes the bearer token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.access.revoke(ctx, token)
}

// ResolveToken returns the AccessData cached under token.
func (s *AuthService) ResolveToken(ctx context.Context, token string) (domain.AccessData, error) {
	return s.access.lookup(ctx, strings.TrimSpace(token))
}
