package order

import (
	"context"

	"github.com/google/uuid"

	"github.com/jdfresh/backend/internal/domain/shared"
)

// Repository provides persistence for orders.
//
// Transition persists a status change with a compare-and-swap on the
// previous status: when another writer moved the order first, the update
// touches no rows and Transition returns ErrConcurrencyConflict so the
// caller can reload and re-evaluate.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*Order, error)
	FindByCustomer(ctx context.Context, customerID uuid.UUID, filter shared.Filter) ([]Order, int64, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Order, int64, error)
	Save(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	Transition(ctx context.Context, o *Order, from OrderStatus) error

	// NextOrderNumber atomically draws the next number from the order
	// sequence and formats it as JD followed by six digits
	NextOrderNumber(ctx context.Context) (string, error)
}
