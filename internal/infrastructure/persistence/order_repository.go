package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdfresh/backend/internal/domain/order"
	"github.com/jdfresh/backend/internal/domain/shared"
)

// orderCounter is the sequence row order numbers are drawn from
type orderCounter struct {
	ID    int   `gorm:"primaryKey"`
	Value int64 `gorm:"not null"`
}

// TableName returns the database table name
func (orderCounter) TableName() string {
	return "order_counters"
}

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// FindByNumber finds an order by its order number
func (r *GormOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).First(&o, "order_number = ?", orderNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// FindByCustomer finds a customer's orders matching the filter
func (r *GormOrderRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID, filter shared.Filter) ([]order.Order, int64, error) {
	return r.findAll(ctx, filter, r.db.WithContext(ctx).Model(&order.Order{}).Where("customer_id = ?", customerID))
}

// FindAll finds all orders matching the filter
func (r *GormOrderRepository) FindAll(ctx context.Context, filter shared.Filter) ([]order.Order, int64, error) {
	return r.findAll(ctx, filter, r.db.WithContext(ctx).Model(&order.Order{}))
}

func (r *GormOrderRepository) findAll(ctx context.Context, filter shared.Filter, query *gorm.DB) ([]order.Order, int64, error) {
	if status, ok := filter.Filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortField := ValidateSortField(filter.OrderBy, OrderSortFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)

	var orders []order.Order
	err := query.
		Order(sortField + " " + sortOrder).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Save persists a new order
func (r *GormOrderRepository) Save(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

// Update persists changes to an existing order
func (r *GormOrderRepository) Update(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).Save(o).Error
}

// Transition persists a status change with a compare-and-swap on the
// previous status. When another writer moved the order first the update
// touches no rows and ErrConcurrencyConflict is returned.
func (r *GormOrderRepository) Transition(ctx context.Context, o *order.Order, from order.OrderStatus) error {
	result := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("id = ? AND status = ?", o.ID, from).
		Updates(map[string]interface{}{
			"status":          o.Status,
			"payment_status":  o.PaymentStatus,
			"version":         o.Version,
			"confirmed_at":    o.ConfirmedAt,
			"preparing_at":    o.PreparingAt,
			"ready_at":        o.ReadyAt,
			"dispatched_at":   o.DispatchedAt,
			"cancelled_at":    o.CancelledAt,
			"actual_delivery": o.ActualDelivery,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// NextOrderNumber atomically draws the next value from the order
// sequence and formats it as JD followed by six digits
func (r *GormOrderRepository) NextOrderNumber(ctx context.Context) (string, error) {
	var value int64
	err := r.db.WithContext(ctx).
		Raw("UPDATE order_counters SET value = value + 1 WHERE id = 1 RETURNING value").
		Scan(&value).Error
	if err != nil {
		return "", err
	}
	if value == 0 {
		return "", shared.NewDomainError("INVALID_STATE", "Order counter is not seeded")
	}
	return fmt.Sprintf("JD%06d", value), nil
}

// SeedOrderCounter creates the counter row if it does not exist yet
func (r *GormOrderRepository) SeedOrderCounter(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Exec("INSERT INTO order_counters (id, value) VALUES (1, 0) ON CONFLICT (id) DO NOTHING").Error
}

var _ order.Repository = (*GormOrderRepository)(nil)
