package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Execer runs a statement without returning rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the service tables when they are missing. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, db Execer, log *zap.Logger) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	log.Info("database schema ensured")
	return nil
}
