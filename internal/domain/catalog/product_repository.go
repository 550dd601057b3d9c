package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jdfresh/backend/internal/domain/shared"
)

// ReservationItem is a single product/quantity pair in a reservation request
type ReservationItem struct {
	ProductID uuid.UUID
	Quantity  decimal.Decimal
}

// ProductRepository provides access to products and their stock ledger.
//
// Reserve and Release must be atomic conditional updates: Reserve fails
// with ErrInsufficientStock when available stock does not cover the
// quantity, without ever letting a counter go negative.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Product, int64, error)
	Save(ctx context.Context, product *Product) error

	// Reserve moves qty from available to reserved for one product
	Reserve(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) error
	// Release moves qty from reserved back to available for one product
	Release(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) error
	// CommitReservation consumes reserved stock after an order completes
	CommitReservation(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) error
}
