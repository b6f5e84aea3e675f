package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kumahost/portal/wordpress-service/internal/config"
)

// NewPool creates a pgx connection pool for the registry database.
func NewPool(cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	schema := cfg.Database.Schema
	if _, err := pool.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema)); err != nil {
		return nil, fmt.Errorf("set search_path: %w", err)
	}

	log.Info("connected to registry database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
		zap.String("schema", schema))

	return pool, nil
}

// EnsureSchema creates the registry tables when missing. The UNIQUE
// constraints on site_name, domain and database_name are the hard backstop
// behind the saga's advisory pre-checks: a concurrent create that slips past
// the checks fails at insert/commit with a unique violation.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.sites (
				id            UUID PRIMARY KEY,
				site_name     TEXT NOT NULL,
				domain        TEXT NOT NULL,
				database_name TEXT NOT NULL,
				php_version   TEXT NOT NULL,
				enabled       BOOLEAN NOT NULL DEFAULT TRUE,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
				CONSTRAINT sites_site_name_key     UNIQUE (site_name),
				CONSTRAINT sites_domain_key        UNIQUE (domain),
				CONSTRAINT sites_database_name_key UNIQUE (database_name)
			)`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.site_audit_logs (
				id         UUID PRIMARY KEY,
				site_id    UUID NOT NULL,
				action     TEXT NOT NULL,
				status     TEXT NOT NULL,
				message    TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, schema),
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
