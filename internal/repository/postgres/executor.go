package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	usersTable      = "abac.users"
	rolesTable      = "abac.roles"
	userRolesTable  = "abac.users_roles"
	todosTable      = "abac.todos"
	policiesTable   = "abac.abac_auth_policies"
	conditionsTable = "abac.abac_conditions"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txStarter is satisfied by pools and by transactions (nested begin uses a savepoint).
type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
