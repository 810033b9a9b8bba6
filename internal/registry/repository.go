package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateEntity inserts an external entity and returns its id.
func (r *Repository) CreateEntity(ctx context.Context, name string, entityType EntityType) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO external_entity (name, entity_type) VALUES ($1, $2) RETURNING id`,
		name, string(entityType)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("registry: create entity: %w", err)
	}
	return id, nil
}

// CreateSKU inserts a product and returns its sku.
func (r *Repository) CreateSKU(ctx context.Context, description string) (int64, error) {
	var sku int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO product (descr) VALUES ($1) RETURNING sku`, description).Scan(&sku)
	if err != nil {
		return 0, fmt.Errorf("registry: create sku: %w", err)
	}
	return sku, nil
}

// GetEntity returns one external entity.
func (r *Repository) GetEntity(ctx context.Context, id int64) (Entity, error) {
	var e Entity
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, entity_type FROM external_entity WHERE id=$1`, id).
		Scan(&e.ID, &e.Name, &e.Type)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, ErrNotFound
		}
		return Entity{}, err
	}
	return e, nil
}

// EntityExists reports whether an external entity is registered.
func (r *Repository) EntityExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM external_entity WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("registry: entity exists: %w", err)
	}
	return exists, nil
}

// SKUExists reports whether a product is registered.
func (r *Repository) SKUExists(ctx context.Context, sku int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM product WHERE sku=$1)`, sku).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("registry: sku exists: %w", err)
	}
	return exists, nil
}
