package reconcile

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbackbone/stockbackbone/internal/ledger"
	"github.com/stockbackbone/stockbackbone/internal/orders"
)

type memoryRegistry struct {
	entities map[int64]bool
	skus     map[int64]bool
}

func (r *memoryRegistry) EntityExists(ctx context.Context, id int64) (bool, error) {
	return r.entities[id], nil
}

func (r *memoryRegistry) SKUExists(ctx context.Context, sku int64) (bool, error) {
	return r.skus[sku], nil
}

type memoryStore struct {
	orders     map[int64]orders.Order
	nextOrder  int64
	nextLine   int64
	dropOneIns bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{orders: make(map[int64]orders.Order)}
}

func (s *memoryStore) snapshot() map[int64]orders.Order {
	snap := make(map[int64]orders.Order, len(s.orders))
	for id, ord := range s.orders {
		lines := make([]orders.OrderLine, len(ord.Lines))
		copy(lines, ord.Lines)
		ord.Lines = lines
		snap[id] = ord
	}
	return snap
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, orders.TxStore) error) error {
	snap := s.snapshot()
	order, line := s.nextOrder, s.nextLine
	if err := fn(ctx, (*memoryStoreTx)(s)); err != nil {
		s.orders = snap
		s.nextOrder, s.nextLine = order, line
		return err
	}
	return nil
}

type memoryStoreTx memoryStore

func (s *memoryStoreTx) CreateOrder(ctx context.Context, orderType orders.OrderType, entityID int64) (int64, error) {
	s.nextOrder++
	s.orders[s.nextOrder] = orders.Order{ID: s.nextOrder, Type: orderType, EntityID: entityID}
	return s.nextOrder, nil
}

func (s *memoryStoreTx) InsertLines(ctx context.Context, lines []orders.OrderLine) (int64, error) {
	var inserted int64
	for _, line := range lines {
		if s.dropOneIns && inserted == int64(len(lines)-1) {
			break
		}
		s.nextLine++
		line.ID = s.nextLine
		ord := s.orders[line.OrderID]
		ord.Lines = append(ord.Lines, line)
		s.orders[line.OrderID] = ord
		inserted++
	}
	return inserted, nil
}

func (s *memoryStore) GetOrder(ctx context.Context, id int64) (orders.Order, error) {
	ord, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	lines := make([]orders.OrderLine, len(ord.Lines))
	copy(lines, ord.Lines)
	ord.Lines = lines
	return ord, nil
}

// memorySettlement holds the stock positions and applies delivered-qty
// updates to the order store, rolling back both on a failed settlement.
type memorySettlement struct {
	store       *memoryStore
	positions   map[int64]ledger.StockPosition
	nextID      int64
	dropOneIns  bool
	failDeliver int
}

func newMemorySettlement(store *memoryStore) *memorySettlement {
	return &memorySettlement{store: store, positions: make(map[int64]ledger.StockPosition)}
}

func (m *memorySettlement) seed(sku int64, qty float64) {
	m.nextID++
	m.positions[m.nextID] = ledger.StockPosition{PositionID: m.nextID, SKU: sku, Qty: qty}
}

func (m *memorySettlement) qty(sku int64) float64 {
	var total float64
	for _, pos := range m.positions {
		if pos.SKU == sku {
			total += pos.Qty
		}
	}
	return total
}

func (m *memorySettlement) has(sku int64) bool {
	for _, pos := range m.positions {
		if pos.SKU == sku {
			return true
		}
	}
	return false
}

func (m *memorySettlement) Settle(ctx context.Context, fn func(context.Context, SettlementTx) error) error {
	posSnap := make(map[int64]ledger.StockPosition, len(m.positions))
	for id, pos := range m.positions {
		posSnap[id] = pos
	}
	next := m.nextID
	ordSnap := m.store.snapshot()
	order, line := m.store.nextOrder, m.store.nextLine
	if err := fn(ctx, (*memorySettlementTx)(m)); err != nil {
		m.positions = posSnap
		m.nextID = next
		m.store.orders = ordSnap
		m.store.nextOrder, m.store.nextLine = order, line
		return err
	}
	return nil
}

type memorySettlementTx memorySettlement

func (m *memorySettlementTx) GetPositions(ctx context.Context, skus []int64) ([]ledger.StockPosition, error) {
	want := make(map[int64]bool, len(skus))
	for _, sku := range skus {
		want[sku] = true
	}
	var result []ledger.StockPosition
	for _, pos := range m.positions {
		if want[pos.SKU] {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PositionID < result[j].PositionID })
	return result, nil
}

func (m *memorySettlementTx) InsertPositions(ctx context.Context, positions []ledger.StockPosition) (int64, error) {
	var inserted int64
	for _, pos := range positions {
		if m.dropOneIns && inserted == int64(len(positions)-1) {
			break
		}
		m.nextID++
		pos.PositionID = m.nextID
		m.positions[m.nextID] = pos
		inserted++
	}
	return inserted, nil
}

func (m *memorySettlementTx) UpdatePositions(ctx context.Context, changes []ledger.StockChange) error {
	for _, change := range changes {
		pos := m.positions[change.PositionID]
		pos.Qty = change.Qty
		m.positions[change.PositionID] = pos
	}
	return nil
}

func (m *memorySettlementTx) SetDeliveredQty(ctx context.Context, changes []orders.DeliveredQty) error {
	if m.failDeliver > 0 {
		m.failDeliver--
		return errors.New("delivery update unavailable")
	}
	for _, change := range changes {
		for id, ord := range m.store.orders {
			for i := range ord.Lines {
				if ord.Lines[i].ID == change.LineID {
					ord.Lines[i].QtyDelivered = change.QtyDelivered
					m.store.orders[id] = ord
				}
			}
		}
	}
	return nil
}

type fixture struct {
	svc    *Service
	store  *memoryStore
	ledger *memorySettlement
	reg    *memoryRegistry
}

func newFixture() *fixture {
	reg := &memoryRegistry{entities: make(map[int64]bool), skus: make(map[int64]bool)}
	store := newMemoryStore()
	settle := newMemorySettlement(store)
	svc := NewService(store, settle, reg, reg, nil, nil, nil, nil)
	return &fixture{svc: svc, store: store, ledger: settle, reg: reg}
}

func (f *fixture) registerEntity(id int64) { f.reg.entities[id] = true }
func (f *fixture) registerSKU(sku int64)   { f.reg.skus[sku] = true }
func (f *fixture) registerSKUs(skus ...int64) {
	for _, sku := range skus {
		f.reg.skus[sku] = true
	}
}

func TestMakeOrderAssignsPositionsInInputOrder(t *testing.T) {
	f := newFixture()
	f.registerEntity(7)
	f.registerSKUs(10, 20, 30)
	ctx := context.Background()

	orderID, err := f.svc.MakePurchaseOrder(ctx, 7, []OrderLineInput{
		{SKU: 20, Qty: "5"},
		{SKU: 10, Qty: "2.5"},
		{SKU: 30, Qty: "1"},
	})
	require.NoError(t, err)

	ord, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, orders.OrderTypePurchase, ord.Type)
	require.Equal(t, int64(7), ord.EntityID)
	require.Len(t, ord.Lines, 3)
	for i, line := range ord.Lines {
		require.Equal(t, i+1, line.Position)
		require.Zero(t, line.QtyDelivered)
	}
	require.Equal(t, int64(20), ord.Lines[0].SKU)
	require.InDelta(t, 2.5, ord.Lines[1].QtyOrdered, 1e-9)
}

func TestMakeOrderEntityNotFound(t *testing.T) {
	f := newFixture()
	f.registerSKU(10)
	_, err := f.svc.MakeSaleOrder(context.Background(), 99, []OrderLineInput{{SKU: 10, Qty: "1"}})
	require.ErrorIs(t, err, ErrEntityNotFound)
	require.Empty(t, f.store.orders)
}

func TestMakeOrderSKUNotFound(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKU(10)
	_, err := f.svc.MakePurchaseOrder(context.Background(), 1, []OrderLineInput{
		{SKU: 10, Qty: "1"},
		{SKU: 11, Qty: "1"},
	})
	var skuErr *SKUNotFoundError
	require.ErrorAs(t, err, &skuErr)
	require.Equal(t, int64(11), skuErr.SKU)
	require.Empty(t, f.store.orders)
}

func TestMakeOrderInvalidQuantity(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKU(10)
	ctx := context.Background()

	for _, qty := range []string{"abc", "", "-3", "0", "NaN", "+Inf"} {
		_, err := f.svc.MakeSaleOrder(ctx, 1, []OrderLineInput{{SKU: 10, Qty: qty}})
		require.ErrorIs(t, err, ErrInvalidQuantity, "qty %q", qty)
	}
	require.Empty(t, f.store.orders)
}

func TestMakeOrderRequiresLines(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	_, err := f.svc.MakePurchaseOrder(context.Background(), 1, nil)
	require.ErrorIs(t, err, ErrEmptyOrder)
}

func TestMakeOrderLineCountMismatchIsFault(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKUs(10, 20)
	f.store.dropOneIns = true

	_, err := f.svc.MakePurchaseOrder(context.Background(), 1, []OrderLineInput{
		{SKU: 10, Qty: "1"},
		{SKU: 20, Qty: "2"},
	})
	require.ErrorIs(t, err, ErrFault)
	require.Empty(t, f.store.orders)
}

func TestReceivePurchaseOrderFullDelivery(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKUs(1, 2, 3, 4, 6)
	f.ledger.seed(1, 1)
	f.ledger.seed(2, 4)
	f.ledger.seed(3, 9)
	ctx := context.Background()

	orderID, err := f.svc.MakePurchaseOrder(ctx, 1, []OrderLineInput{
		{SKU: 1, Qty: "2"},
		{SKU: 3, Qty: "3"},
		{SKU: 4, Qty: "1"},
		{SKU: 6, Qty: "10"},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.ReceivePurchaseOrder(ctx, orderID, ModeFullDelivery))

	require.InDelta(t, 3, f.ledger.qty(1), 1e-9)
	require.InDelta(t, 4, f.ledger.qty(2), 1e-9)
	require.InDelta(t, 12, f.ledger.qty(3), 1e-9)
	require.InDelta(t, 1, f.ledger.qty(4), 1e-9)
	require.InDelta(t, 10, f.ledger.qty(6), 1e-9)

	ord, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	for _, line := range ord.Lines {
		require.InDelta(t, line.QtyOrdered, line.QtyDelivered, 1e-9)
	}
}

func TestReceiveRejectsUnknownMode(t *testing.T) {
	f := newFixture()
	err := f.svc.ReceivePurchaseOrder(context.Background(), 1, "partial")
	require.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestReceiveRejectsSaleOrder(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKU(10)
	ctx := context.Background()

	orderID, err := f.svc.MakeSaleOrder(ctx, 1, []OrderLineInput{{SKU: 10, Qty: "1"}})
	require.NoError(t, err)

	err = f.svc.ReceivePurchaseOrder(ctx, orderID, ModeFullDelivery)
	var typeErr *WrongOrderTypeError
	require.ErrorAs(t, err, &typeErr)
	require.Equal(t, orders.OrderTypePurchase, typeErr.Want)
	require.Equal(t, orders.OrderTypeSale, typeErr.Got)
	require.False(t, f.ledger.has(10))
}

func TestReceiveMissingOrder(t *testing.T) {
	f := newFixture()
	err := f.svc.ReceivePurchaseOrder(context.Background(), 42, ModeFullDelivery)
	require.ErrorIs(t, err, orders.ErrNotFound)
}

func TestReceiveCreateCountMismatchIsFault(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKUs(10, 20)
	f.ledger.dropOneIns = true
	ctx := context.Background()

	orderID, err := f.svc.MakePurchaseOrder(ctx, 1, []OrderLineInput{
		{SKU: 10, Qty: "1"},
		{SKU: 20, Qty: "2"},
	})
	require.NoError(t, err)

	err = f.svc.ReceivePurchaseOrder(ctx, orderID, ModeFullDelivery)
	require.ErrorIs(t, err, ErrFault)
	require.False(t, f.ledger.has(10))
	require.False(t, f.ledger.has(20))

	ord, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	for _, line := range ord.Lines {
		require.Zero(t, line.QtyDelivered)
	}
}

func TestReceiveRetryAfterDeliveryWriteFailureAppliesOnce(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKU(10)
	f.ledger.seed(10, 2)
	ctx := context.Background()

	orderID, err := f.svc.MakePurchaseOrder(ctx, 1, []OrderLineInput{{SKU: 10, Qty: "4"}})
	require.NoError(t, err)

	// The delivered-qty write fails after the stock movement was staged. The
	// settlement must roll back as one unit: no stock change, no delivery.
	f.ledger.failDeliver = 1
	err = f.svc.ReceivePurchaseOrder(ctx, orderID, ModeFullDelivery)
	require.Error(t, err)
	require.InDelta(t, 2, f.ledger.qty(10), 1e-9)
	ord, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Zero(t, ord.Lines[0].QtyDelivered)

	// The retry settles the order exactly once.
	require.NoError(t, f.svc.ReceivePurchaseOrder(ctx, orderID, ModeFullDelivery))
	require.InDelta(t, 6, f.ledger.qty(10), 1e-9)
	ord, err = f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.InDelta(t, 4, ord.Lines[0].QtyDelivered, 1e-9)
}

func TestIssueSaleOrderShipFull(t *testing.T) {
	f := newFixture()
	f.registerEntity(2)
	f.registerSKUs(101, 102, 103)
	f.ledger.seed(101, 10)
	f.ledger.seed(102, 1)
	f.ledger.seed(103, 100)
	ctx := context.Background()

	orderID, err := f.svc.MakeSaleOrder(ctx, 2, []OrderLineInput{
		{SKU: 101, Qty: "5"},
		{SKU: 102, Qty: "1"},
		{SKU: 103, Qty: "100"},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.IssueSaleOrder(ctx, orderID, ModeShipFull))

	require.InDelta(t, 5, f.ledger.qty(101), 1e-9)
	require.InDelta(t, 0, f.ledger.qty(102), 1e-9)
	require.InDelta(t, 0, f.ledger.qty(103), 1e-9)

	ord, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	for _, line := range ord.Lines {
		require.InDelta(t, line.QtyOrdered, line.QtyDelivered, 1e-9)
	}
}

func TestIssueFailsWithoutStockPosition(t *testing.T) {
	f := newFixture()
	f.registerEntity(2)
	f.registerSKUs(101, 102, 103)
	f.ledger.seed(101, 10)
	ctx := context.Background()

	orderID, err := f.svc.MakeSaleOrder(ctx, 2, []OrderLineInput{
		{SKU: 101, Qty: "5"},
		{SKU: 102, Qty: "1"},
		{SKU: 103, Qty: "100"},
	})
	require.NoError(t, err)

	err = f.svc.IssueSaleOrder(ctx, orderID, ModeShipFull)
	var stockErr *NotEnoughStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, orderID, stockErr.OrderID)
	require.Equal(t, int64(102), stockErr.SKU)
	require.InDelta(t, 1, stockErr.Requested, 1e-9)
	require.Zero(t, stockErr.Available)

	// Zero ledger mutation even though the first line was satisfiable.
	require.InDelta(t, 10, f.ledger.qty(101), 1e-9)
	ord, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	for _, line := range ord.Lines {
		require.Zero(t, line.QtyDelivered)
	}
}

func TestIssueFailsWhenOutstandingExceedsStock(t *testing.T) {
	f := newFixture()
	f.registerEntity(2)
	f.registerSKUs(101, 102)
	f.ledger.seed(101, 10)
	f.ledger.seed(102, 3)
	ctx := context.Background()

	orderID, err := f.svc.MakeSaleOrder(ctx, 2, []OrderLineInput{
		{SKU: 101, Qty: "4"},
		{SKU: 102, Qty: "5"},
	})
	require.NoError(t, err)

	err = f.svc.IssueSaleOrder(ctx, orderID, ModeShipFull)
	var stockErr *NotEnoughStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(102), stockErr.SKU)
	require.InDelta(t, 5, stockErr.Requested, 1e-9)
	require.InDelta(t, 3, stockErr.Available, 1e-9)
	require.InDelta(t, 10, f.ledger.qty(101), 1e-9)
	require.InDelta(t, 3, f.ledger.qty(102), 1e-9)
}

func TestIssueAggregatesDuplicateSKULines(t *testing.T) {
	f := newFixture()
	f.registerEntity(2)
	f.registerSKU(101)
	f.ledger.seed(101, 7)
	ctx := context.Background()

	orderID, err := f.svc.MakeSaleOrder(ctx, 2, []OrderLineInput{
		{SKU: 101, Qty: "4"},
		{SKU: 101, Qty: "4"},
	})
	require.NoError(t, err)

	err = f.svc.IssueSaleOrder(ctx, orderID, ModeShipFull)
	var stockErr *NotEnoughStockError
	require.ErrorAs(t, err, &stockErr)
	require.InDelta(t, 8, stockErr.Requested, 1e-9)
	require.InDelta(t, 7, stockErr.Available, 1e-9)
	require.InDelta(t, 7, f.ledger.qty(101), 1e-9)
}

func TestIssueRejectsUnknownMode(t *testing.T) {
	f := newFixture()
	err := f.svc.IssueSaleOrder(context.Background(), 1, "partial-ship")
	require.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestIssueRejectsPurchaseOrder(t *testing.T) {
	f := newFixture()
	f.registerEntity(1)
	f.registerSKU(10)
	ctx := context.Background()

	orderID, err := f.svc.MakePurchaseOrder(ctx, 1, []OrderLineInput{{SKU: 10, Qty: "1"}})
	require.NoError(t, err)

	err = f.svc.IssueSaleOrder(ctx, orderID, ModeShipFull)
	require.ErrorIs(t, err, ErrWrongOrderType)
}

func TestIssueRetryAfterDeliveryWriteFailureAppliesOnce(t *testing.T) {
	f := newFixture()
	f.registerEntity(2)
	f.registerSKU(101)
	f.ledger.seed(101, 5)
	ctx := context.Background()

	orderID, err := f.svc.MakeSaleOrder(ctx, 2, []OrderLineInput{{SKU: 101, Qty: "3"}})
	require.NoError(t, err)

	f.ledger.failDeliver = 1
	err = f.svc.IssueSaleOrder(ctx, orderID, ModeShipFull)
	require.Error(t, err)
	require.InDelta(t, 5, f.ledger.qty(101), 1e-9)

	require.NoError(t, f.svc.IssueSaleOrder(ctx, orderID, ModeShipFull))
	require.InDelta(t, 2, f.ledger.qty(101), 1e-9)
	ord, err := f.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.InDelta(t, 3, ord.Lines[0].QtyDelivered, 1e-9)
}

func TestDuplicatePositionsPerSKUIsFault(t *testing.T) {
	f := newFixture()
	f.registerEntity(2)
	f.registerSKU(101)
	f.ledger.seed(101, 5)
	f.ledger.seed(101, 5)
	ctx := context.Background()

	saleID, err := f.svc.MakeSaleOrder(ctx, 2, []OrderLineInput{{SKU: 101, Qty: "1"}})
	require.NoError(t, err)
	err = f.svc.IssueSaleOrder(ctx, saleID, ModeShipFull)
	require.ErrorIs(t, err, ErrFault)
	require.InDelta(t, 10, f.ledger.qty(101), 1e-9)

	f.registerEntity(1)
	poID, err := f.svc.MakePurchaseOrder(ctx, 1, []OrderLineInput{{SKU: 101, Qty: "1"}})
	require.NoError(t, err)
	err = f.svc.ReceivePurchaseOrder(ctx, poID, ModeFullDelivery)
	require.ErrorIs(t, err, ErrFault)
	require.InDelta(t, 10, f.ledger.qty(101), 1e-9)
}
