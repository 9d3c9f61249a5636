package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID is a PostgreSQL advisory lock ID coordinating schema
// migrations across instances. Value: 0x706f7274616c ("portal" in ASCII hex).
const migrationLockID = 0x706f7274616c

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected", "min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS published_app (
			id TEXT PRIMARY KEY,
			slug VARCHAR(100) NOT NULL,
			function_id UUID NOT NULL,
			function_version_id UUID NOT NULL,
			title VARCHAR(100) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			version VARCHAR(50) NOT NULL,
			image VARCHAR(255) NOT NULL DEFAULT '',
			icon VARCHAR(255) NOT NULL DEFAULT '',
			category VARCHAR(150) NOT NULL DEFAULT '',
			product_area VARCHAR(150) NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ DEFAULT NOW(),
			authentication_type VARCHAR(100) DEFAULT 'NONE',
			UNIQUE (function_id, function_version_id)
		)`,
		`CREATE TABLE IF NOT EXISTS session (
			id TEXT PRIMARY KEY,
			function_id UUID NOT NULL,
			function_version_id UUID NOT NULL,
			app_id TEXT REFERENCES published_app(id) ON DELETE SET NULL,
			user_id VARCHAR(200) NOT NULL,
			user_name VARCHAR(200) NOT NULL,
			status VARCHAR(50) NOT NULL,
			start_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			end_date TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_status ON session(status)`,
		`CREATE INDEX IF NOT EXISTS idx_session_user ON session(user_id, function_id, function_version_id)`,
		`CREATE TABLE IF NOT EXISTS published_page (
			name VARCHAR(200) PRIMARY KEY,
			url VARCHAR(255) NOT NULL,
			sort_order INT NOT NULL DEFAULT 0
		)`,
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migrations: %w", err)
	}
	defer conn.Release()

	// Serialize migrations across instances sharing the database.
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, migrationLockID); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}()

	for _, migration := range migrations {
		if _, err := conn.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	slog.Info("Database migrations completed successfully")
	return nil
}
