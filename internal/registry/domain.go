package registry

import "errors"

// EntityType classifies an external entity.
type EntityType string

const (
	// EntityTypeSupplier marks purchase-order counterparties.
	EntityTypeSupplier EntityType = "supplier"
	// EntityTypeCustomer marks sale-order counterparties.
	EntityTypeCustomer EntityType = "customer"
)

// Entity is a registered supplier or customer.
type Entity struct {
	ID   int64
	Name string
	Type EntityType
}

// SKU is a registered product type.
type SKU struct {
	SKU         int64
	Description string
}

// ErrInvalidInput indicates a free-text field failed validation.
var ErrInvalidInput = errors.New("registry: invalid text input")

// ErrNotFound indicates a missing registry row.
var ErrNotFound = errors.New("registry: not found")
