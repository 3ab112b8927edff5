package port

import (
	"context"

	"github.com/arklim/abac-auth-service/internal/core/domain"
)

// TodoRepository persists per-user todos.
type TodoRepository interface {
	Create(ctx context.Context, todo domain.Todo) error
	ListByUser(ctx context.Context, userID string) ([]domain.Todo, error)
	GetByID(ctx context.Context, id string) (*domain.Todo, error)
	Delete(ctx context.Context, id string) error
}
