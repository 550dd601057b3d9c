package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdfresh/backend/internal/domain/delivery"
	"github.com/jdfresh/backend/internal/domain/shared"
)

// GormDeliveryRepository implements delivery.Repository using GORM
type GormDeliveryRepository struct {
	db *gorm.DB
}

// NewGormDeliveryRepository creates a new GormDeliveryRepository
func NewGormDeliveryRepository(db *gorm.DB) *GormDeliveryRepository {
	return &GormDeliveryRepository{db: db}
}

// FindByID finds a delivery by its ID
func (r *GormDeliveryRepository) FindByID(ctx context.Context, id uuid.UUID) (*delivery.Delivery, error) {
	var d delivery.Delivery
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// FindByOrderID finds the delivery run attached to an order
func (r *GormDeliveryRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*delivery.Delivery, error) {
	var d delivery.Delivery
	if err := r.db.WithContext(ctx).First(&d, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// FindActiveByPerson lists a delivery person's runs that are still in
// flight, newest first
func (r *GormDeliveryRepository) FindActiveByPerson(ctx context.Context, personID uuid.UUID) ([]delivery.Delivery, error) {
	var deliveries []delivery.Delivery
	err := r.db.WithContext(ctx).
		Where("delivery_person_id = ? AND status NOT IN ?", personID,
			[]delivery.Status{delivery.StatusDelivered, delivery.StatusCancelled}).
		Order("created_at DESC").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

// Save persists a new delivery
func (r *GormDeliveryRepository) Save(ctx context.Context, d *delivery.Delivery) error {
	return r.db.WithContext(ctx).Create(d).Error
}

// Update persists changes to an existing delivery
func (r *GormDeliveryRepository) Update(ctx context.Context, d *delivery.Delivery) error {
	return r.db.WithContext(ctx).Save(d).Error
}

var _ delivery.Repository = (*GormDeliveryRepository)(nil)
