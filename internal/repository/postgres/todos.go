package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

var todoColumns = []string{"id", "title", "user_id", "created_at"}

// TodoRepository implements port.TodoRepository using PostgreSQL.
type TodoRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTodoRepository wires a PostgreSQL-backed todo repository.
func NewTodoRepository(exec pgExecutor) *TodoRepository {
	return &TodoRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a todo.
func (r *TodoRepository) Create(ctx context.Context, todo domain.Todo) error {
	stmt, args, err := r.builder.Insert(todosTable).
		Columns(todoColumns...).
		Values(todo.ID, todo.Title, todo.UserID, todo.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert todo sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}

	return nil
}

// ListByUser returns the todos owned by userID, oldest first.
func (r *TodoRepository) ListByUser(ctx context.Context, userID string) ([]domain.Todo, error) {
	stmt, args, err := r.builder.Select(todoColumns...).
		From(todosTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list todos sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	todos := make([]domain.Todo, 0)
	for rows.Next() {
		var todo domain.Todo
		if err := rows.Scan(&todo.ID, &todo.Title, &todo.UserID, &todo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, todo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}

	return todos, nil
}

// GetByID retrieves a todo.
func (r *TodoRepository) GetByID(ctx context.Context, id string) (*domain.Todo, error) {
	stmt, args, err := r.builder.Select(todoColumns...).
		From(todosTable).
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select todo sql: %w", err)
	}

	var todo domain.Todo
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&todo.ID, &todo.Title, &todo.UserID, &todo.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan todo: %w", err)
	}

	return &todo, nil
}

// Delete removes a todo.
func (r *TodoRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(todosTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete todo sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.TodoRepository = (*TodoRepository)(nil)
