package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/domain/shared"
)

// GormPaymentRepository implements payment.Repository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by its ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByOrderID finds the payment attached to an order
func (r *GormPaymentRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	return r.findOne(ctx, "order_id = ?", orderID)
}

// FindByGatewayTransactionID finds a payment by the gateway's intent or
// transaction reference
func (r *GormPaymentRepository) FindByGatewayTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	return r.findOne(ctx, "gateway_transaction_id = ?", transactionID)
}

// FindByGatewayOrderID finds a payment by the gateway-side order reference
func (r *GormPaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Payment, error) {
	return r.findOne(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (r *GormPaymentRepository) findOne(ctx context.Context, cond string, arg interface{}) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).First(&p, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Save persists a new payment
func (r *GormPaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// Update persists changes to an existing payment
func (r *GormPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

var _ payment.Repository = (*GormPaymentRepository)(nil)
