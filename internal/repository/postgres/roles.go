package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

// RoleRepository implements role persistence operations.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewRoleRepository constructs a PostgreSQL-backed role repository.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *RoleRepository) WithTx(tx pgx.Tx) *RoleRepository {
	if tx == nil {
		return r
	}
	return &RoleRepository{exec: tx, builder: r.builder, now: r.now}
}

// Create inserts a new role.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Insert(rolesTable).
		Columns("id", "name").
		Values(role.ID, role.Name).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// List retrieves all roles sorted by name.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	return r.queryRoles(ctx, r.builder.Select("id", "name").
		From(rolesTable).
		OrderBy("name ASC"))
}

// GetByName retrieves a role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"name": name})
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *RoleRepository) getOne(ctx context.Context, pred squirrel.Eq) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "name").
		From(rolesTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	var role domain.Role
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}

	return &role, nil
}

// Update renames an existing role.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Update(rolesTable).
		Set("name", role.Name).
		Where(squirrel.Eq{"id": role.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a role by ID (cascades to users_roles via FK).
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(rolesTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListByUser returns roles assigned to the specified user.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]domain.Role, error) {
	return r.queryRoles(ctx, r.builder.Select("r.id", "r.name").
		From(rolesTable+" r").
		Join(userRolesTable+" ur ON ur.role_id = r.id").
		Where(squirrel.Eq{"ur.user_id": userID}).
		OrderBy("r.name ASC"))
}

// ListUsers returns the users holding the role.
func (r *RoleRepository) ListUsers(ctx context.Context, roleID string) ([]domain.User, error) {
	stmt, args, err := r.builder.Select("u.id", "u.name", "u.email", "u.password_hash", "u.cached_access_token", "u.created_at").
		From(usersTable+" u").
		Join(userRolesTable+" ur ON ur.user_id = u.id").
		Where(squirrel.Eq{"ur.role_id": roleID}).
		OrderBy("u.email ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role users: %w", err)
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
		return nil, fmt.Errorf("iterate role users: %w", err)
	}

	return users, nil
}

// Assign links the role to the user. Assigning twice is a no-op.
func (r *RoleRepository) Assign(ctx context.Context, userID, roleID string) error {
	stmt, args, err := r.builder.Insert(userRolesTable).
		Columns("user_id", "role_id", "assigned_at").
		Values(userID, roleID, r.now()).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	return nil
}

// Unassign removes the role from the user.
func (r *RoleRepository) Unassign(ctx context.Context, userID, roleID string) error {
	stmt, args, err := r.builder.Delete(userRolesTable).
		Where(squirrel.Eq{"user_id": userID, "role_id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unassign role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("unassign role: %w", err)
	}

	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *RoleRepository) queryRoles(ctx context.Context, query squirrel.SelectBuilder) ([]domain.Role, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
