package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Statements are idempotent so Setup can run on every process start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS external_entity (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL,
		entity_type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product (
		sku BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		descr TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		order_type TEXT NOT NULL,
		entity_id BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_line (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id),
		position INTEGER NOT NULL,
		sku BIGINT NOT NULL,
		qty_ordered DOUBLE PRECISION NOT NULL,
		qty_delivered DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (order_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		position_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		sku BIGINT NOT NULL,
		qty DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		actor TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		meta JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		module TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Setup creates the schema when it does not exist yet.
func Setup(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("platform/db: setup schema: %w", err)
		}
	}
	return nil
}
