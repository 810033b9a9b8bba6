package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore exposes transactional operations used during order creation.
type TxStore interface {
	CreateOrder(ctx context.Context, orderType OrderType, entityID int64) (int64, error)
	InsertLines(ctx context.Context, lines []OrderLine) (int64, error)
}

type txStore struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("orders: begin tx: %w", err)
	}
	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *txStore) CreateOrder(ctx context.Context, orderType OrderType, entityID int64) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx,
		`INSERT INTO orders (order_type, entity_id) VALUES ($1, $2) RETURNING id`,
		string(orderType), entityID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("orders: create order: %w", err)
	}
	return id, nil
}

func (s *txStore) InsertLines(ctx context.Context, lines []OrderLine) (int64, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(
			`INSERT INTO order_line (order_id, position, sku, qty_ordered, qty_delivered) VALUES ($1, $2, $3, $4, $5)`,
			line.OrderID, line.Position, line.SKU, line.QtyOrdered, line.QtyDelivered)
	}
	results := s.tx.SendBatch(ctx, batch)
	defer results.Close()
	var inserted int64
	for range lines {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("orders: insert line: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// GetOrder returns the order header with lines ordered by position.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var ord Order
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_type, entity_id FROM orders WHERE id=$1`, id).
		Scan(&ord.ID, &ord.Type, &ord.EntityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("orders: get order: %w", err)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, position, sku, qty_ordered, qty_delivered FROM order_line WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return Order{}, fmt.Errorf("orders: get order lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.Position, &line.SKU, &line.QtyOrdered, &line.QtyDelivered); err != nil {
			return Order{}, err
		}
		ord.Lines = append(ord.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}
	return ord, nil
}

// SetDeliveredQtyTx applies absolute delivered quantities in one batch on an
// existing transaction, so callers can commit them together with the stock
// movement they belong to.
func SetDeliveredQtyTx(ctx context.Context, tx pgx.Tx, changes []DeliveredQty) error {
	if len(changes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, change := range changes {
		batch.Queue(`UPDATE order_line SET qty_delivered=$1 WHERE id=$2`, change.QtyDelivered, change.LineID)
	}
	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range changes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("orders: set delivered qty: %w", err)
		}
	}
	return nil
}
