// Package postgres runs tenant schema DDL against the tenant database.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// SchemaAdmin implements domain.SchemaAdmin over a pgx pool.
type SchemaAdmin struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ domain.SchemaAdmin = (*SchemaAdmin)(nil)

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*SchemaAdmin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing tenant database dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening tenant database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging tenant database: %w", err)
	}

	logger.Info("connected to tenant database")
	return &SchemaAdmin{pool: pool, logger: logger}, nil
}

// Close releases pool resources.
func (a *SchemaAdmin) Close() {
	if a != nil && a.pool != nil {
		a.pool.Close()
	}
}

// CreateSchema creates the schema if it does not exist yet.
func (a *SchemaAdmin) CreateSchema(ctx context.Context, name string) error {
	if _, err := a.pool.Exec(ctx, createSchemaSQL(name)); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	a.logger.Info("schema created", zap.String("schema", name))
	return nil
}

// DropSchema drops the schema and everything in it. A missing schema is not
// an error.
func (a *SchemaAdmin) DropSchema(ctx context.Context, name string) error {
	if _, err := a.pool.Exec(ctx, dropSchemaSQL(name)); err != nil {
		return fmt.Errorf("dropping schema: %w", err)
	}
	a.logger.Info("schema dropped", zap.String("schema", name))
	return nil
}

// Identifiers cannot be bound as parameters, so they are quoted instead.
func createSchemaSQL(name string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{name}.Sanitize()
}

func dropSchemaSQL(name string) string {
	return "DROP SCHEMA IF EXISTS " + pgx.Identifier{name}.Sanitize() + " CASCADE"
}
