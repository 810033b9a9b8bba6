package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbackbone/stockbackbone/internal/ledger"
	"github.com/stockbackbone/stockbackbone/internal/orders"
)

// Repository runs settlements against PostgreSQL. The ledger mutation and
// the delivered-quantity update of one fulfillment share a transaction; a
// failure on either side rolls back both.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Settle wraps the callback in one serializable transaction spanning the
// inventory ledger and the order lines.
func (r *Repository) Settle(ctx context.Context, fn func(context.Context, SettlementTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("reconcile: begin settlement: %w", err)
	}
	if err := fn(ctx, &settlementTx{TxLedger: ledger.Tx(tx), tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type settlementTx struct {
	ledger.TxLedger
	tx pgx.Tx
}

func (s *settlementTx) SetDeliveredQty(ctx context.Context, changes []orders.DeliveredQty) error {
	return orders.SetDeliveredQtyTx(ctx, s.tx, changes)
}
