package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Documents are stored whole in doc; the other columns are projections used
// for constraints and lookups and are rewritten on every put.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory_items (
		id             TEXT PRIMARY KEY,
		inventory_id   BIGINT NOT NULL,
		serial         TEXT NOT NULL,
		status         TEXT NOT NULL,
		listed         BOOLEAN NOT NULL DEFAULT FALSE,
		order_id       TEXT,
		sell_price_aud NUMERIC(12,2) NOT NULL DEFAULT 0,
		doc            JSONB NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT inventory_listed_matches_status CHECK (listed = (status = 'listed'))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS inventory_items_serial_key ON inventory_items (lower(serial))`,
	`CREATE TABLE IF NOT EXISTS orders (
		id             TEXT PRIMARY KEY,
		order_number   BIGINT NOT NULL UNIQUE,
		status         TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		total_aud      NUMERIC(12,2) NOT NULL DEFAULT 0,
		doc            JSONB NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_pending_created_idx ON orders (created_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS counters (
		name  TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		ref TEXT PRIMARY KEY,
		doc JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS upsells (
		id  TEXT PRIMARY KEY,
		doc JSONB NOT NULL
	)`,
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
