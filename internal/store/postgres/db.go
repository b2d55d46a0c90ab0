// Package postgres provides PostgreSQL-based implementations of the store interfaces.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"signalcraft-go/internal/config"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, cfg *config.PostgresConfig) (*DB, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
		cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// RunMigrations creates the required database tables.
func (db *DB) RunMigrations(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS alert_groups (
			id VARCHAR(36) PRIMARY KEY,
			workspace_id VARCHAR(64) NOT NULL,
			fingerprint VARCHAR(512) NOT NULL,
			title TEXT NOT NULL,
			project VARCHAR(255) NOT NULL DEFAULT '',
			environment VARCHAR(100) NOT NULL DEFAULT 'unknown',
			severity VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			count INTEGER NOT NULL DEFAULT 1,
			first_seen_at TIMESTAMP WITH TIME ZONE NOT NULL,
			last_seen_at TIMESTAMP WITH TIME ZONE NOT NULL,
			snooze_until TIMESTAMP WITH TIME ZONE,
			resolved_at TIMESTAMP WITH TIME ZONE,
			resolution_notes TEXT NOT NULL DEFAULT '',
			last_resolved_by VARCHAR(64) NOT NULL DEFAULT '',
			avg_resolution_mins INTEGER,
			assignee_user_id VARCHAR(64) NOT NULL DEFAULT '',
			velocity_per_hour DOUBLE PRECISION,
			user_count INTEGER
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_active_fingerprint
			ON alert_groups(workspace_id, fingerprint)
			WHERE status <> 'RESOLVED';
		CREATE INDEX IF NOT EXISTS idx_groups_workspace_status ON alert_groups(workspace_id, status);
		CREATE INDEX IF NOT EXISTS idx_groups_last_seen ON alert_groups(workspace_id, last_seen_at DESC);

		CREATE TABLE IF NOT EXISTS alert_events (
			id VARCHAR(36) PRIMARY KEY,
			workspace_id VARCHAR(64) NOT NULL,
			alert_group_id VARCHAR(36) NOT NULL,
			source VARCHAR(64) NOT NULL,
			source_event_id VARCHAR(255) NOT NULL,
			fingerprint VARCHAR(512) NOT NULL,
			title TEXT NOT NULL,
			severity VARCHAR(20) NOT NULL,
			environment VARCHAR(100) NOT NULL DEFAULT 'unknown',
			project VARCHAR(255) NOT NULL DEFAULT '',
			raw_payload JSONB,
			occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
			received_at TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (workspace_id, source, source_event_id)
		);

		CREATE INDEX IF NOT EXISTS idx_events_group ON alert_events(workspace_id, alert_group_id, received_at DESC);

		CREATE TABLE IF NOT EXISTS routing_rules (
			id VARCHAR(36) PRIMARY KEY,
			workspace_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			conditions JSONB NOT NULL,
			actions JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rules_workspace_priority ON routing_rules(workspace_id, priority);
	`

	_, err := db.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
