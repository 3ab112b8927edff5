package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

// ErrTodoNotFound is returned for unknown todo ids.
var ErrTodoNotFound = errors.New("todo not found")

// TodoService manages per-user todos. Ownership is enforced by access conditions on ownerId.
type TodoService struct {
	todos port.TodoRepository
	now   func() time.Time
	newID func() string
}

func NewTodoService(todos port.TodoRepository) *TodoService {
	return &TodoService{
		todos: todos,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// List returns the todos owned by userID.
func (s *TodoService) List(ctx context.Context, userID string) ([]domain.Todo, error) {
	todos, err := s.todos.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}

// Create adds a todo owned by userID.
func (s *TodoService) Create(ctx context.Context, userID, title string) (domain.Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Todo{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	todo := domain.Todo{ID: s.newID(), Title: title, UserID: userID, CreatedAt: s.now()}
	if err := s.todos.Create(ctx, todo); err != nil {
		return domain.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	return todo, nil
}

func (s *TodoService) Get(ctx context.Context, id string) (*domain.Todo, error) {
	todo, err := s.todos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTodoNotFound
		}
		return nil, fmt.Errorf("get todo: %w", err)
	}
	return todo, nil
}

func (s *TodoService) Delete(ctx context.Context, id string) error {
	if err := s.todos.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTodoNotFound
		}
		return fmt.Errorf("delete todo: %w", err)
	}
	return nil
}
