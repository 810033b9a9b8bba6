package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/stockbackbone/stockbackbone/internal/ledger"
	"github.com/stockbackbone/stockbackbone/internal/orders"
	"github.com/stockbackbone/stockbackbone/internal/shared"
)

// EntityRegistry resolves order counterparties.
type EntityRegistry interface {
	EntityExists(ctx context.Context, id int64) (bool, error)
}

// SKURegistry resolves product types.
type SKURegistry interface {
	SKUExists(ctx context.Context, sku int64) (bool, error)
}

// OrderStore abstracts the order persistence used by the engine.
type OrderStore interface {
	WithTx(ctx context.Context, fn func(context.Context, orders.TxStore) error) error
	GetOrder(ctx context.Context, id int64) (orders.Order, error)
}

// SettlementTx exposes everything one fulfillment writes: the inventory
// ledger plus the delivered-quantity bookkeeping on the order lines.
type SettlementTx interface {
	ledger.TxLedger
	SetDeliveredQty(ctx context.Context, changes []orders.DeliveredQty) error
}

// SettlementStore runs one fulfillment's writes in a single transaction, so
// stock movement and delivered quantities commit or roll back together.
type SettlementStore interface {
	Settle(ctx context.Context, fn func(context.Context, SettlementTx) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the order fulfillment and inventory reconciliation engine. It
// owns no persistent state; it orchestrates the order store and the ledger.
type Service struct {
	store       OrderStore
	settlements SettlementStore
	entities    EntityRegistry
	skus        SKURegistry
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	locker      *shared.Locker
	cache       *ledger.Cache
}

// NewService builds Service. Audit, idempotency, locker and cache may be nil
// in tests.
func NewService(store OrderStore, settlements SettlementStore, entities EntityRegistry, skus SKURegistry,
	audit AuditPort, idem *shared.IdempotencyStore, locker *shared.Locker, cache *ledger.Cache) *Service {
	return &Service{
		store:       store,
		settlements: settlements,
		entities:    entities,
		skus:        skus,
		audit:       audit,
		idempotency: idem,
		locker:      locker,
		cache:       cache,
	}
}

// OrderLineInput is one requested (sku, quantity) pair. The quantity arrives
// as text and is validated by the engine.
type OrderLineInput struct {
	SKU int64
	Qty string
}

// MakePurchaseOrder validates and persists a purchase order against a
// supplier, returning the new order id.
func (s *Service) MakePurchaseOrder(ctx context.Context, supplierID int64, lines []OrderLineInput) (int64, error) {
	return s.makeOrder(ctx, orders.OrderTypePurchase, "supplier", supplierID, lines)
}

// MakeSaleOrder validates and persists a sale order against a customer,
// returning the new order id.
func (s *Service) MakeSaleOrder(ctx context.Context, customerID int64, lines []OrderLineInput) (int64, error) {
	return s.makeOrder(ctx, orders.OrderTypeSale, "customer", customerID, lines)
}

func (s *Service) makeOrder(ctx context.Context, orderType orders.OrderType, role string, entityID int64, lines []OrderLineInput) (int64, error) {
	if len(lines) == 0 {
		return 0, ErrEmptyOrder
	}

	ok, err := s.entities.EntityExists(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("reconcile: resolve %s: %w", role, err)
	}
	if !ok {
		return 0, &EntityNotFoundError{Role: role, EntityID: entityID}
	}

	for _, line := range lines {
		ok, err := s.skus.SKUExists(ctx, line.SKU)
		if err != nil {
			return 0, fmt.Errorf("reconcile: resolve sku: %w", err)
		}
		if !ok {
			return 0, &SKUNotFoundError{SKU: line.SKU}
		}
	}

	built := make([]orders.OrderLine, 0, len(lines))
	for i, line := range lines {
		qty, err := strconv.ParseFloat(line.Qty, 64)
		if err != nil || math.IsNaN(qty) || math.IsInf(qty, 0) || qty <= 0 {
			return 0, &InvalidQuantityError{OrderType: orderType, SKU: line.SKU, Qty: line.Qty}
		}
		built = append(built, orders.OrderLine{
			Position:   i + 1,
			SKU:        line.SKU,
			QtyOrdered: qty,
		})
	}

	var orderID int64
	err = s.store.WithTx(ctx, func(ctx context.Context, tx orders.TxStore) error {
		id, err := tx.CreateOrder(ctx, orderType, entityID)
		if err != nil {
			return err
		}
		for i := range built {
			built[i].OrderID = id
		}
		inserted, err := tx.InsertLines(ctx, built)
		if err != nil {
			return err
		}
		if inserted != int64(len(built)) {
			return fmt.Errorf("%w: %d lines created, expected %d", ErrFault, inserted, len(built))
		}
		orderID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return orderID, nil
}

// GetOrder returns the order header with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	return s.store.GetOrder(ctx, id)
}

type skuDemand struct {
	sku int64
	qty float64
}

// aggregateBySKU sums quantities per sku preserving first-seen order, so an
// order with duplicate-sku lines is settled against their combined demand.
func aggregateBySKU(lines []orders.OrderLine, qty func(orders.OrderLine) float64) []skuDemand {
	index := make(map[int64]int, len(lines))
	demands := make([]skuDemand, 0, len(lines))
	for _, line := range lines {
		if at, ok := index[line.SKU]; ok {
			demands[at].qty += qty(line)
			continue
		}
		index[line.SKU] = len(demands)
		demands = append(demands, skuDemand{sku: line.SKU, qty: qty(line)})
	}
	return demands
}

// ReceivePurchaseOrder settles a purchase order in full: stock for every
// line is added to the ledger and the lines are marked delivered. Both
// writes commit in one settlement transaction, so the operation is
// all-or-nothing at the order level.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, orderID int64, mode string) error {
	if mode != ModeFullDelivery {
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.Type != orders.OrderTypePurchase {
		return &WrongOrderTypeError{OrderID: orderID, Want: orders.OrderTypePurchase, Got: ord.Type}
	}

	key := fmt.Sprintf("receive:%d", orderID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "reconcile"); err != nil {
		return err
	}

	err = s.withLedgerLock(ctx, func(ctx context.Context) error {
		return s.settlements.Settle(ctx, func(ctx context.Context, tx SettlementTx) error {
			increases := aggregateBySKU(ord.Lines, func(l orders.OrderLine) float64 { return l.QtyOrdered })
			if err := applyIncrease(ctx, tx, increases); err != nil {
				if errors.Is(err, ErrFault) {
					return err
				}
				return fmt.Errorf("%w: %w", ErrInventoryUpdate, err)
			}
			return markDelivered(ctx, tx, ord)
		})
	})
	if err != nil {
		// Nothing committed, so the key can be freed for a retry.
		_ = s.idempotency.Delete(ctx, key)
		return err
	}

	_ = s.cache.Bump(ctx)
	s.recordAudit(ctx, "RECEIVE_PO", ord)
	return nil
}

// IssueSaleOrder ships a sale order in full. Stock sufficiency is evaluated
// against a single snapshot read inside the settlement transaction, so the
// order either fully ships or leaves inventory and order state untouched.
func (s *Service) IssueSaleOrder(ctx context.Context, orderID int64, mode string) error {
	if mode != ModeShipFull {
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	ord, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.Type != orders.OrderTypeSale {
		return &WrongOrderTypeError{OrderID: orderID, Want: orders.OrderTypeSale, Got: ord.Type}
	}

	key := fmt.Sprintf("issue:%d", orderID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "reconcile"); err != nil {
		return err
	}

	err = s.withLedgerLock(ctx, func(ctx context.Context) error {
		return s.settlements.Settle(ctx, func(ctx context.Context, tx SettlementTx) error {
			demands := aggregateBySKU(ord.Lines, orders.OrderLine.Outstanding)
			if err := applyDecrease(ctx, tx, orderID, demands); err != nil {
				if errors.Is(err, ErrFault) || errors.Is(err, ErrNotEnoughStock) {
					return err
				}
				return fmt.Errorf("%w: %w", ErrInventoryUpdate, err)
			}
			return markDelivered(ctx, tx, ord)
		})
	})
	if err != nil {
		_ = s.idempotency.Delete(ctx, key)
		return err
	}

	_ = s.cache.Bump(ctx)
	s.recordAudit(ctx, "ISSUE_SO", ord)
	return nil
}

// applyIncrease reconciles stock in: existing positions are raised by the
// delta, unknown SKUs get a fresh position. Each sku appears at most once in
// increases.
func applyIncrease(ctx context.Context, tx ledger.TxLedger, increases []skuDemand) error {
	skus := make([]int64, len(increases))
	for i, inc := range increases {
		skus[i] = inc.sku
	}
	positions, err := tx.GetPositions(ctx, skus)
	if err != nil {
		return err
	}
	var creates []ledger.StockPosition
	var updates []ledger.StockChange
	for _, inc := range increases {
		matches := positionsForSKU(positions, inc.sku)
		switch len(matches) {
		case 0:
			creates = append(creates, ledger.StockPosition{SKU: inc.sku, Qty: inc.qty})
		case 1:
			updates = append(updates, ledger.StockChange{
				PositionID: matches[0].PositionID,
				Qty:        matches[0].Qty + inc.qty,
			})
		default:
			return fmt.Errorf("%w: sku %d held by %d stock positions", ErrFault, inc.sku, len(matches))
		}
	}
	if len(creates) > 0 {
		created, err := tx.InsertPositions(ctx, creates)
		if err != nil {
			return err
		}
		if created != int64(len(creates)) {
			return fmt.Errorf("%w: %d stock positions created, expected %d", ErrFault, created, len(creates))
		}
	}
	if len(updates) > 0 {
		return tx.UpdatePositions(ctx, updates)
	}
	return nil
}

// applyDecrease validates every demand against the snapshot read and only
// then submits the computed absolute quantities. Nothing is applied when any
// single demand cannot be met.
func applyDecrease(ctx context.Context, tx ledger.TxLedger, orderID int64, demands []skuDemand) error {
	skus := make([]int64, len(demands))
	for i, d := range demands {
		skus[i] = d.sku
	}
	positions, err := tx.GetPositions(ctx, skus)
	if err != nil {
		return err
	}
	changes := make([]ledger.StockChange, 0, len(demands))
	for _, d := range demands {
		matches := positionsForSKU(positions, d.sku)
		switch len(matches) {
		case 0:
			return &NotEnoughStockError{OrderID: orderID, SKU: d.sku, Requested: d.qty, Available: 0}
		case 1:
			after := matches[0].Qty - d.qty
			if after < 0 {
				return &NotEnoughStockError{OrderID: orderID, SKU: d.sku, Requested: d.qty, Available: matches[0].Qty}
			}
			changes = append(changes, ledger.StockChange{PositionID: matches[0].PositionID, Qty: after})
		default:
			return fmt.Errorf("%w: sku %d held by %d stock positions", ErrFault, d.sku, len(matches))
		}
	}
	return tx.UpdatePositions(ctx, changes)
}

func markDelivered(ctx context.Context, tx SettlementTx, ord orders.Order) error {
	changes := make([]orders.DeliveredQty, len(ord.Lines))
	for i, line := range ord.Lines {
		changes[i] = orders.DeliveredQty{LineID: line.ID, QtyDelivered: line.QtyOrdered}
	}
	return tx.SetDeliveredQty(ctx, changes)
}

func (s *Service) withLedgerLock(ctx context.Context, fn func(context.Context) error) error {
	key := shared.LedgerLockKey("stock")
	token, err := s.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		_ = s.locker.Release(ctx, key, token)
	}()
	return fn(ctx)
}

func (s *Service) recordAudit(ctx context.Context, action string, ord orders.Order) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(ord.ID, 10),
		Meta: map[string]any{
			"order_type": string(ord.Type),
			"entity_id":  ord.EntityID,
			"lines":      len(ord.Lines),
		},
	})
}

func positionsForSKU(positions []ledger.StockPosition, sku int64) []ledger.StockPosition {
	var matches []ledger.StockPosition
	for _, pos := range positions {
		if pos.SKU == sku {
			matches = append(matches, pos)
		}
	}
	return matches
}
