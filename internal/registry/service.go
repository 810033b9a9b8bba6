package registry

import (
	"context"
	"fmt"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateEntity(ctx context.Context, name string, entityType EntityType) (int64, error)
	CreateSKU(ctx context.Context, description string) (int64, error)
	GetEntity(ctx context.Context, id int64) (Entity, error)
	EntityExists(ctx context.Context, id int64) (bool, error)
	SKUExists(ctx context.Context, sku int64) (bool, error)
}

// Service manages supplier, customer and SKU registration.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateSupplier registers a supplier and returns its id.
func (s *Service) CreateSupplier(ctx context.Context, name string) (int64, error) {
	if !validName(name) {
		return 0, fmt.Errorf("%w: supplier name %q", ErrInvalidInput, name)
	}
	return s.repo.CreateEntity(ctx, name, EntityTypeSupplier)
}

// CreateCustomer registers a customer and returns its id.
func (s *Service) CreateCustomer(ctx context.Context, name string) (int64, error) {
	if !validName(name) {
		return 0, fmt.Errorf("%w: customer name %q", ErrInvalidInput, name)
	}
	return s.repo.CreateEntity(ctx, name, EntityTypeCustomer)
}

// CreateSKU registers a product type and returns its sku.
func (s *Service) CreateSKU(ctx context.Context, description string) (int64, error) {
	if !validName(description) {
		return 0, fmt.Errorf("%w: sku description %q", ErrInvalidInput, description)
	}
	return s.repo.CreateSKU(ctx, description)
}

// GetEntity returns a registered supplier or customer.
func (s *Service) GetEntity(ctx context.Context, id int64) (Entity, error) {
	return s.repo.GetEntity(ctx, id)
}

// EntityExists reports whether an external entity is registered.
func (s *Service) EntityExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.EntityExists(ctx, id)
}

// SKUExists reports whether a product is registered.
func (s *Service) SKUExists(ctx context.Context, sku int64) (bool, error) {
	return s.repo.SKUExists(ctx, sku)
}
