package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/infra/security"
)

// ErrAccessDataNotFound indicates the bearer token is unknown or expired.
var ErrAccessDataNotFound = errors.New("access data not found")

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// TokenGenerator produces a random token from byteLength random bytes.
type TokenGenerator func(byteLength int) (string, error)

// accessCache keeps the cached AccessData of logged-in users consistent with the database.
type accessCache struct {
	cache    port.CredentialCache
	sessions port.SessionStore
	logger   *zap.Logger
}

func (a accessCache) lookup(ctx context.Context, token string) (domain.AccessData, error) {
	var data domain.AccessData
	if token == "" {
		return data, ErrAccessDataNotFound
	}

	found, err := a.cache.Get(ctx, token, &data)
	if err != nil {
		return domain.AccessData{}, fmt.Errorf("read access data: %w", err)
	}
	if !found {
		return domain.AccessData{}, ErrAccessDataNotFound
	}
	return data, nil
}

// revoke removes the token and any web session bound to it.
func (a accessCache) revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	removed, err := a.cache.Delete(ctx, token)
	if err != nil {
		return fmt.Errorf("delete access token: %w", err)
	}
	if removed > 0 {
		a.logger.Debug("access token revoked", zap.String("token_fp", security.Fingerprint(token)))
	}
	if a.sessions != nil {
		if err := a.sessions.UnlinkToken(ctx, token); err != nil {
			return fmt.Errorf("unlink session: %w", err)
		}
	}
	return nil
}

// rewrite applies mutate to the AccessData cached for user, if the user holds a live
// token. The entry is replaced in place so its remaining TTL is kept, and a token that
// was revoked meanwhile is not brought back.
func (a accessCache) rewrite(ctx context.Context, user domain.User, mutate func(*domain.AccessData)) error {
	if user.CachedAccessToken == nil || *user.CachedAccessToken == "" {
		return nil
	}
	token := *user.CachedAccessToken

	data, err := a.lookup(ctx, token)
	if err != nil {
		if errors.Is(err, ErrAccessDataNotFound) {
			return nil
		}
		return err
	}

	mutate(&data)
	data = data.WithoutPassword()

	replaced, err := a.cache.Replace(ctx, token, data)
	if err != nil {
		return fmt.Errorf("save access data: %w", err)
	}
	if !replaced {
		a.logger.Debug("access token revoked during rewrite, skipping",
			zap.String("user_id", user.ID),
			zap.String("token_fp", security.Fingerprint(token)),
		)
		return nil
	}

	a.logger.Debug("cached access data rewritten",
		zap.String("user_id", user.ID),
		zap.String("token_fp", security.Fingerprint(token)),
	)
	return nil
}

func (a accessCache) rewriteRoles(ctx context.Context, user domain.User, roles []domain.Role) error {
	return a.rewrite(ctx, user, func(data *domain.AccessData) {
		data.UserData.Roles = append([]domain.Role(nil), roles...)
	})
}

func cachedUser(user domain.User, token string) domain.CachedUser {
	return domain.CachedUser{
		ID:                user.ID,
		Name:              user.Name,
		Email:             user.Email,
		CachedAccessToken: token,
	}
}
