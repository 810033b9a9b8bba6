package orders

import "errors"

// OrderType discriminates purchase from sale orders.
type OrderType string

const (
	// OrderTypePurchase marks supplier orders that increase stock on receipt.
	OrderTypePurchase OrderType = "purchase"
	// OrderTypeSale marks customer orders that decrease stock on issue.
	OrderTypeSale OrderType = "sale"
)

// Order is the persisted order header with its lines.
type Order struct {
	ID       int64
	Type     OrderType
	EntityID int64
	Lines    []OrderLine
}

// OrderLine is one position of an order. QtyDelivered is the only field
// mutated after creation, and only by the fulfillment operations.
type OrderLine struct {
	ID           int64
	OrderID      int64
	Position     int
	SKU          int64
	QtyOrdered   float64
	QtyDelivered float64
}

// Outstanding returns the quantity still to be delivered.
func (l OrderLine) Outstanding() float64 {
	return l.QtyOrdered - l.QtyDelivered
}

// DeliveredQty sets an absolute delivered quantity on one line.
type DeliveredQty struct {
	LineID       int64
	QtyDelivered float64
}

// ErrNotFound indicates a missing order.
var ErrNotFound = errors.New("orders: not found")
