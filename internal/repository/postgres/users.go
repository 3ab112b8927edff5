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

var userColumns = []string{"id", "name", "email", "password_hash", "cached_access_token", "created_at"}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{exec: tx, builder: r.builder}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(user.ID, user.Name, user.Email, user.PasswordHash, user.CachedAccessToken, user.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// List returns every user ordered by email.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		OrderBy("email ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Expr("LOWER(email) = LOWER(?)", email))
}

func (r *UserRepository) getOne(ctx context.Context, pred any) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From(usersTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// Update persists name, email and password hash.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("name", user.Name).
		Set("email", user.Email).
		Set("password_hash", user.PasswordHash).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetCachedAccessToken records the bearer token issued at the last login. Nil clears it.
func (r *UserRepository) SetCachedAccessToken(ctx context.Context, id string, token *string) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("cached_access_token", token).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update cached token sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update cached token: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a user; role assignments and todos cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(usersTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CachedAccessToken, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
