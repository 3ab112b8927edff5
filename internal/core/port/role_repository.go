package port

import (
	"context"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

// RoleRepository handles role CRUD and user assignments.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	List(ctx context.Context) ([]domain.Role, error)
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	Update(ctx context.Context, role domain.Role) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)
	ListUsers(ctx context.Context, roleID string) ([]domain.User, error)
	Assign(ctx context.Context, userID, roleID string) error
	Unassign(ctx context.Context, userID, roleID string) error
}
