package reconcile

import (
	"errors"
	"fmt"

	"github.com/stockbackbone/stockbackbone/internal/orders"
)

// Fulfillment modes. Each settles an order's entire outstanding quantity in
// one operation; partial delivery is not supported.
const (
	// ModeFullDelivery receives a purchase order in full.
	ModeFullDelivery = "full-delivery"
	// ModeShipFull issues a sale order in full.
	ModeShipFull = "ship-full"
)

// Sentinel kinds for the engine error taxonomy. Carrier types below unwrap
// to these so callers can classify with errors.Is.
var (
	// ErrEntityNotFound indicates the order references an unregistered entity.
	ErrEntityNotFound = errors.New("reconcile: entity not registered")
	// ErrSKUNotFound indicates an order line references an unregistered sku.
	ErrSKUNotFound = errors.New("reconcile: sku not registered")
	// ErrInvalidQuantity indicates a line quantity that does not parse to a
	// positive number.
	ErrInvalidQuantity = errors.New("reconcile: invalid quantity")
	// ErrEmptyOrder indicates an order creation request without lines.
	ErrEmptyOrder = errors.New("reconcile: order requires at least one line")
	// ErrUnsupportedMode indicates an unknown fulfillment mode.
	ErrUnsupportedMode = errors.New("reconcile: unsupported fulfillment mode")
	// ErrWrongOrderType indicates a fulfillment against the wrong order type.
	ErrWrongOrderType = errors.New("reconcile: wrong order type")
	// ErrNotEnoughStock indicates a sale order exceeding available stock.
	ErrNotEnoughStock = errors.New("reconcile: not enough stock")
	// ErrInventoryUpdate indicates the inventory increase or decrease failed.
	ErrInventoryUpdate = errors.New("reconcile: inventory update failed")
	// ErrFault marks internal-consistency faults. These are never expected
	// and signal a defect elsewhere, so they are never retried.
	ErrFault = errors.New("reconcile: internal consistency fault")
)

// EntityNotFoundError reports the missing counterparty of an order.
type EntityNotFoundError struct {
	Role     string
	EntityID int64
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("reconcile: %s %d not registered", e.Role, e.EntityID)
}

func (e *EntityNotFoundError) Unwrap() error { return ErrEntityNotFound }

// SKUNotFoundError reports the first unregistered sku encountered.
type SKUNotFoundError struct {
	SKU int64
}

func (e *SKUNotFoundError) Error() string {
	return fmt.Sprintf("reconcile: sku %d not registered", e.SKU)
}

func (e *SKUNotFoundError) Unwrap() error { return ErrSKUNotFound }

// InvalidQuantityError reports the offending order type and line.
type InvalidQuantityError struct {
	OrderType orders.OrderType
	SKU       int64
	Qty       string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("reconcile: invalid quantity %q for sku %d on %s order", e.Qty, e.SKU, e.OrderType)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// WrongOrderTypeError reports expected versus actual order type.
type WrongOrderTypeError struct {
	OrderID int64
	Want    orders.OrderType
	Got     orders.OrderType
}

func (e *WrongOrderTypeError) Error() string {
	return fmt.Sprintf("reconcile: order %d is a %s order, expected %s", e.OrderID, e.Got, e.Want)
}

func (e *WrongOrderTypeError) Unwrap() error { return ErrWrongOrderType }

// NotEnoughStockError carries the failed availability check. It is raised
// before any mutation.
type NotEnoughStockError struct {
	OrderID   int64
	SKU       int64
	Requested float64
	Available float64
}

func (e *NotEnoughStockError) Error() string {
	return fmt.Sprintf("reconcile: order %d needs %.2f of sku %d, only %.2f available",
		e.OrderID, e.Requested, e.SKU, e.Available)
}

func (e *NotEnoughStockError) Unwrap() error { return ErrNotEnoughStock }
