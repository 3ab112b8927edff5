package port

import (
	"context"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	List(ctx context.Context) ([]domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user domain.User) error
	SetCachedAccessToken(ctx context.Context, id string, token *string) error
	Delete(ctx context.Context, id string) error
}
