package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/infra/logger"
	"github.com/arklim/abac-auth-service/internal/repository"
)

var (
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when another user already owns the email.
	ErrEmailTaken = errors.New("email already registered")
)

// UserInput carries the user fields accepted on create and update.
// Empty fields are left untouched on update.
type UserInput struct {
	Name     string
	Email    string
	Password string
}

// UserService manages users and keeps their cached AccessData in step with role changes.
type UserService struct {
	users  port.UserRepository
	roles  port.RoleRepository
	access accessCache
	hasher PasswordHasher
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewUserService constructs a UserService.
func NewUserService(
	users port.UserRepository,
	roles port.RoleRepository,
	cache port.CredentialCache,
	sessions port.SessionStore,
	hasher PasswordHasher,
	log *zap.Logger,
) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{
		users:  users,
		roles:  roles,
		access: accessCache{cache: cache, sessions: sessions, logger: log},
		hasher: hasher,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// List returns every user.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Create registers a user with a hashed password.
func (s *UserService) Create(ctx context.Context, input UserInput) (domain.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(input.Email)
	if name == "" || email == "" || input.Password == "" {
		return domain.User{}, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}

	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("email", logger.MaskEmail(email)))
	return user, nil
}

// Update changes the user profile. A logged-in user sees the new profile in its cached AccessData.
func (s *UserService) Update(ctx context.Context, id string, input UserInput) (*domain.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		user.Name = name
	}
	if email := strings.TrimSpace(input.Email); email != "" && !strings.EqualFold(email, user.Email) {
		if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if input.Password != "" {
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, *user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	updated := *user
	if err := s.access.rewrite(ctx, updated, func(data *domain.AccessData) {
		data.UserData.User.Name = updated.Name
		data.UserData.User.Email = updated.Email
	}); err != nil {
		return nil, err
	}

	return user, nil
}

// Delete removes the user and revokes its cached token.
func (s *UserService) Delete(ctx context.Context, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if user.CachedAccessToken != nil {
		if err := s.access.revoke(ctx, *user.CachedAccessToken); err != nil {
			return err
		}
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

// Roles lists the roles held by the user.
func (s *UserService) Roles(ctx context.Context, id string) ([]domain.Role, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	roles, err := s.roles.ListByUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return roles, nil
}

// AddRole assigns the role and rewrites the cached role list of a logged-in user.
func (s *UserService) AddRole(ctx context.Context, userID, roleID string) ([]domain.Role, error) {
	user, role, err := s.userAndRole(ctx, userID, roleID)
	if err != nil {
		return nil, err
	}

	if err := s.roles.Assign(ctx, user.ID, role.ID); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}

	return s.syncRoles(ctx, *user)
}

// RemoveRole unassigns the role and rewrites the cached role list of a logged-in user.
func (s *UserService) RemoveRole(ctx context.Context, userID, roleID string) ([]domain.Role, error) {
	user, role, err := s.userAndRole(ctx, userID, roleID)
	if err != nil {
		return nil, err
	}

	if err := s.roles.Unassign(ctx, user.ID, role.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("unassign role: %w", err)
	}

	return s.syncRoles(ctx, *user)
}

func (s *UserService) syncRoles(ctx context.Context, user domain.User) ([]domain.Role, error) {
	roles, err := s.roles.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	if err := s.access.rewriteRoles(ctx, user, roles); err != nil {
		return nil, err
	}
	s.logger.Info("user roles changed",
		zap.String("user_id", user.ID),
		zap.Strings("roles", domain.RoleNames(roles)),
	)
	return roles, nil
}

func (s *UserService) userAndRole(ctx context.Context, userID, roleID string) (*domain.User, *domain.Role, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrRoleNotFound
		}
		return nil, nil, fmt.Errorf("get role: %w", err)
	}
	return user, role, nil
}

func (s *UserService) ensureEmailFree(ctx context.Context, email, ownerID string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("lookup email: %w", err)
	case existing.ID != ownerID:
		return ErrEmailTaken
	}
	return nil
}
