package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for stock positions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxLedger exposes transactional ledger operations. Reads lock the selected
// rows so the snapshot stays consistent until the changes commit.
type TxLedger interface {
	GetPositions(ctx context.Context, skus []int64) ([]StockPosition, error)
	InsertPositions(ctx context.Context, positions []StockPosition) (int64, error)
	UpdatePositions(ctx context.Context, changes []StockChange) error
}

// Tx binds ledger operations to an existing transaction, letting the caller
// commit them together with writes from other stores.
func Tx(tx pgx.Tx) TxLedger {
	return &txLedger{tx: tx}
}

type txLedger struct {
	tx pgx.Tx
}

// GetPositions reads current positions for the given SKUs without locking.
func (r *Repository) GetPositions(ctx context.Context, skus []int64) ([]StockPosition, error) {
	return queryPositions(ctx, r.pool, skus, false)
}

func (l *txLedger) GetPositions(ctx context.Context, skus []int64) ([]StockPosition, error) {
	return queryPositions(ctx, l.tx, skus, true)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryPositions(ctx context.Context, q querier, skus []int64, forUpdate bool) ([]StockPosition, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	sql := `SELECT position_id, sku, qty FROM inventory WHERE sku = ANY($1) ORDER BY position_id`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, skus)
	if err != nil {
		return nil, fmt.Errorf("ledger: get positions: %w", err)
	}
	defer rows.Close()
	var positions []StockPosition
	for rows.Next() {
		var pos StockPosition
		if err := rows.Scan(&pos.PositionID, &pos.SKU, &pos.Qty); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}

func (l *txLedger) InsertPositions(ctx context.Context, positions []StockPosition) (int64, error) {
	if len(positions) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, pos := range positions {
		batch.Queue(`INSERT INTO inventory (sku, qty) VALUES ($1, $2)`, pos.SKU, pos.Qty)
	}
	results := l.tx.SendBatch(ctx, batch)
	defer results.Close()
	var inserted int64
	for range positions {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("ledger: insert position: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func (l *txLedger) UpdatePositions(ctx context.Context, changes []StockChange) error {
	for _, change := range changes {
		if _, err := l.tx.Exec(ctx,
			`UPDATE inventory SET qty=$1 WHERE position_id=$2`, change.Qty, change.PositionID); err != nil {
			return fmt.Errorf("ledger: update position: %w", err)
		}
	}
	return nil
}
