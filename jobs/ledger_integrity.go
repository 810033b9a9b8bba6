package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// LedgerIntegrityJob detects invariant violations in the inventory ledger:
// SKUs held by more than one stock position, and negative quantities.
// Findings are reported, never repaired automatically.
type LedgerIntegrityJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLedgerIntegrityJob constructs the job.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{pool: pool, logger: logger}
}

type duplicateFinding struct {
	SKU       int64
	Positions int64
}

type negativeFinding struct {
	PositionID int64
	SKU        int64
	Qty        float64
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	limit := payload.MaxFindings
	if limit <= 0 {
		limit = 100
	}

	var duplicates []duplicateFinding
	var negatives []negativeFinding

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := j.pool.Query(ctx,
			`SELECT sku, COUNT(*) FROM inventory GROUP BY sku HAVING COUNT(*) > 1 LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f duplicateFinding
			if err := rows.Scan(&f.SKU, &f.Positions); err != nil {
				return err
			}
			duplicates = append(duplicates, f)
		}
		return rows.Err()
	})
	g.Go(func() error {
		rows, err := j.pool.Query(ctx,
			`SELECT position_id, sku, qty FROM inventory WHERE qty < 0 LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f negativeFinding
			if err := rows.Scan(&f.PositionID, &f.SKU, &f.Qty); err != nil {
				return err
			}
			negatives = append(negatives, f)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, f := range duplicates {
		j.logger.Error("ledger invariant violated: multiple positions per sku",
			slog.Int64("sku", f.SKU), slog.Int64("positions", f.Positions))
	}
	for _, f := range negatives {
		j.logger.Error("ledger invariant violated: negative quantity",
			slog.Int64("position_id", f.PositionID), slog.Int64("sku", f.SKU), slog.Float64("qty", f.Qty))
	}
	if len(duplicates) == 0 && len(negatives) == 0 {
		j.logger.Info("ledger integrity scan clean", slog.String("job", "ledger_integrity"))
	}
	return nil
}
