package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

var (
	// ErrRoleNotFound is returned for unknown role ids.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists is returned when a role name is already taken.
	ErrRoleExists = errors.New("role already exists")
)

// RoleService manages roles. Renaming or deleting a role rewrites the cached
// AccessData of every logged-in holder.
type RoleService struct {
	roles  port.RoleRepository
	access accessCache
	logger *zap.Logger
	newID  func() string
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles port.RoleRepository, cache port.CredentialCache, log *zap.Logger) *RoleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleService{
		roles:  roles,
		access: accessCache{cache: cache, logger: log},
		logger: log,
		newID:  uuid.NewString,
	}
}

func (s *RoleService) List(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

func (s *RoleService) Get(ctx context.Context, id string) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// Create adds a role with a unique name.
func (s *RoleService) Create(ctx context.Context, name string) (domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if err := s.ensureNameFree(ctx, name); err != nil {
		return domain.Role{}, err
	}

	role := domain.Role{ID: s.newID(), Name: name}
	if err := s.roles.Create(ctx, role); err != nil {
		return domain.Role{}, fmt.Errorf("create role: %w", err)
	}
	return role, nil
}

// Update renames a role.
func (s *RoleService) Update(ctx context.Context, id, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}

	role, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.Name == name {
		return role, nil
	}
	if err := s.ensureNameFree(ctx, name); err != nil {
		return nil, err
	}

	role.Name = name
	if err := s.roles.Update(ctx, *role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}

	renamed := *role
	if err := s.rewriteHolders(ctx, role.ID, func(data *domain.AccessData) {
		for i := range data.UserData.Roles {
			if data.UserData.Roles[i].ID == renamed.ID {
				data.UserData.Roles[i].Name = renamed.Name
			}
		}
	}); err != nil {
		return nil, err
	}

	return role, nil
}

// Delete removes a role and drops it from the cached role list of every holder.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	holders, err := s.roles.ListUsers(ctx, id)
	if err != nil {
		return fmt.Errorf("list role users: %w", err)
	}

	if err := s.roles.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("delete role: %w", err)
	}

	for _, holder := range holders {
		if err := s.access.rewrite(ctx, holder, func(data *domain.AccessData) {
			kept := data.UserData.Roles[:0]
			for _, r := range data.UserData.Roles {
				if r.ID != id {
					kept = append(kept, r)
				}
			}
			data.UserData.Roles = kept
		}); err != nil {
			return err
		}
	}
	return nil
}

// Users lists the holders of a role.
func (s *RoleService) Users(ctx context.Context, id string) ([]domain.User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	users, err := s.roles.ListUsers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list role users: %w", err)
	}
	return users, nil
}

func (s *RoleService) rewriteHolders(ctx context.Context, roleID string, mutate func(*domain.AccessData)) error {
	holders, err := s.roles.ListUsers(ctx, roleID)
	if err != nil {
		return fmt.Errorf("list role users: %w", err)
	}
	for _, holder := range holders {
		if err := s.access.rewrite(ctx, holder, mutate); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoleService) ensureNameFree(ctx context.Context, name string) error {
	_, err := s.roles.GetByName(ctx, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("lookup role: %w", err)
	}
	return ErrRoleExists
}
