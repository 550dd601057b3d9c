package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jdfresh/backend/internal/domain/shared"
)

// Status represents the lifecycle state of a payment record
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// GatewayType identifies the payment gateway behind a payment
type GatewayType string

const (
	GatewayStripe   GatewayType = "stripe"
	GatewayRazorpay GatewayType = "razorpay"
	GatewayCOD      GatewayType = "cod"
)

// RefundStatus is the state of a refund request at the gateway
type RefundStatus string

const (
	RefundCompleted RefundStatus = "completed"
	RefundPending   RefundStatus = "pending"
	RefundFailed    RefundStatus = "failed"
)

// RefundDetails records a processed refund
type RefundDetails struct {
	RefundID    string          `json:"refund_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	Status      RefundStatus    `json:"status"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Payment is the payment record attached one-to-one to an order
type Payment struct {
	shared.BaseAggregateRoot
	OrderID    uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	CustomerID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency   string          `gorm:"size:3;not null;default:INR"`
	Status     Status          `gorm:"size:20;not null;index"`
	Gateway    GatewayType     `gorm:"size:20;not null"`

	// Gateway correlation identifiers. TransactionID is the Stripe
	// payment intent, GatewayOrderID/GatewayPaymentID the Razorpay pair.
	GatewayTransactionID string `gorm:"size:100;index"`
	GatewayOrderID       string `gorm:"size:100;index"`
	GatewayPaymentID     string `gorm:"size:100"`
	GatewaySignature     string `gorm:"size:200"`

	CardLast4 string `gorm:"size:4"`
	CardBrand string `gorm:"size:20"`

	Refund      *RefundDetails `gorm:"serializer:json"`
	CompletedAt *time.Time
	FailedAt    *time.Time
}

// TableName returns the database table name
func (Payment) TableName() string {
	return "payments"
}

// New creates a pending payment record for an order
func New(orderID, customerID uuid.UUID, amount decimal.Decimal, gateway GatewayType) (*Payment, error) {
	if orderID == uuid.Nil || customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Payment requires an order and a customer")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Payment amount must be positive")
	}
	switch gateway {
	case GatewayStripe, GatewayRazorpay, GatewayCOD:
	default:
		return nil, shared.NewDomainError("INVALID_INPUT", "Unknown payment gateway")
	}

	return &Payment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderID:           orderID,
		CustomerID:        customerID,
		Amount:            amount,
		Currency:          "INR",
		Status:            StatusPending,
		Gateway:           gateway,
	}, nil
}

// AttachStripeIntent records the Stripe payment intent and moves the
// payment to processing
func (p *Payment) AttachStripeIntent(intentID string) error {
	if p.Status != StatusPending && p.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot start gateway processing for a %s payment", p.Status))
	}
	p.GatewayTransactionID = intentID
	p.Status = StatusProcessing
	p.IncrementVersion()
	return nil
}

// AttachRazorpayOrder records the Razorpay order id and moves the
// payment to processing
func (p *Payment) AttachRazorpayOrder(gatewayOrderID string) error {
	if p.Status != StatusPending && p.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot start gateway processing for a %s payment", p.Status))
	}
	p.GatewayOrderID = gatewayOrderID
	p.Status = StatusProcessing
	p.IncrementVersion()
	return nil
}

// Complete marks the payment as completed. Completing an
// already-completed payment is an idempotent no-op so replayed gateway
// notifications cannot corrupt state.
func (p *Payment) Complete() error {
	if p.Status == StatusCompleted {
		return nil
	}
	if p.Status != StatusPending && p.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot complete a %s payment", p.Status))
	}
	now := time.Now()
	p.Status = StatusCompleted
	p.CompletedAt = &now
	p.IncrementVersion()
	return nil
}

// ConfirmRazorpay records the verified payment id and signature and
// completes the payment
func (p *Payment) ConfirmRazorpay(paymentID, signature string) error {
	if p.Status == StatusCompleted {
		return nil
	}
	if err := p.Complete(); err != nil {
		return err
	}
	p.GatewayPaymentID = paymentID
	p.GatewaySignature = signature
	return nil
}

// SetCardDetails records card metadata from a gateway notification
func (p *Payment) SetCardDetails(last4, brand string) {
	p.CardLast4 = last4
	p.CardBrand = brand
}

// Fail marks the payment as failed. Idempotent for replayed
// notifications; completed payments cannot fail afterwards.
func (p *Payment) Fail() error {
	if p.Status == StatusFailed {
		return nil
	}
	if p.Status != StatusPending && p.Status != StatusProcessing {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot fail a %s payment", p.Status))
	}
	now := time.Now()
	p.Status = StatusFailed
	p.FailedAt = &now
	p.IncrementVersion()
	return nil
}

// ProcessRefund records a refund against a completed payment. Partial
// refunds up to the original amount are allowed; a payment carries at
// most one refund.
func (p *Payment) ProcessRefund(refundID string, amount decimal.Decimal, reason string) error {
	if p.Status != StatusCompleted {
		return shared.NewDomainError("INVALID_STATE", "Only completed payments can be refunded")
	}
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_INPUT", "Refund amount must be positive")
	}
	if amount.GreaterThan(p.Amount) {
		return shared.NewDomainError("INVALID_INPUT", "Refund amount cannot exceed the payment amount")
	}

	p.Refund = &RefundDetails{
		RefundID:    refundID,
		Amount:      amount,
		Reason:      reason,
		Status:      RefundCompleted,
		ProcessedAt: time.Now(),
	}
	p.Status = StatusRefunded
	p.IncrementVersion()
	return nil
}

// SettleCOD completes a cash-on-delivery payment once the order has been
// delivered and the cash collected
func (p *Payment) SettleCOD() error {
	if p.Gateway != GatewayCOD {
		return shared.NewDomainError("INVALID_STATE", "Only cash-on-delivery payments can be settled manually")
	}
	return p.Complete()
}
