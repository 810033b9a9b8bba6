package ledger

// StockPosition is one ledger row holding the current quantity on hand for
// a single SKU. One position per SKU is a ledger invariant enforced by the
// reconcile engine, not by a schema constraint.
type StockPosition struct {
	PositionID int64
	SKU        int64
	Qty        float64
}

// StockChange updates an existing position to a new absolute quantity. The
// creation and update variants are separate types so they can never be
// confused by shape.
type StockChange struct {
	PositionID int64
	Qty        float64
}
