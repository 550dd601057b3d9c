package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jdfresh/backend/internal/domain/payment"
)

// CreateIntentRequest opens a gateway payment for an order
type CreateIntentRequest struct {
	OrderID string `json:"order_id" binding:"required,uuid"`
	Gateway string `json:"gateway" binding:"required,oneof=stripe razorpay"`
}

// IntentResponse is returned to the client to collect the payment
type IntentResponse struct {
	PaymentID        string          `json:"payment_id"`
	Gateway          string          `json:"gateway"`
	GatewayReference string          `json:"gateway_reference"`
	ClientSecret     string          `json:"client_secret,omitempty"`
	KeyID            string          `json:"key_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

// VerifyRazorpayRequest carries the checkout result the client received
// from Razorpay
type VerifyRazorpayRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
}

// RefundRequest asks for a refund against an order's payment
type RefundRequest struct {
	OrderID string          `json:"order_id" binding:"required,uuid"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason" binding:"max=500"`
}

// StripeEvent is a verified, parsed Stripe webhook notification
type StripeEvent struct {
	ID        string
	Type      string
	IntentID  string
	CardLast4 string
	CardBrand string
}

// PaymentResponse is the API representation of a payment
type PaymentResponse struct {
	ID          string                 `json:"id"`
	OrderID     string                 `json:"order_id"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency"`
	Status      string                 `json:"status"`
	Gateway     string                 `json:"gateway"`
	CardLast4   string                 `json:"card_last4,omitempty"`
	CardBrand   string                 `json:"card_brand,omitempty"`
	Refund      *payment.RefundDetails `json:"refund,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// ToPaymentResponse maps a payment aggregate to its API representation
func ToPaymentResponse(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:          p.ID.String(),
		OrderID:     p.OrderID.String(),
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      string(p.Status),
		Gateway:     string(p.Gateway),
		CardLast4:   p.CardLast4,
		CardBrand:   p.CardBrand,
		Refund:      p.Refund,
		CompletedAt: p.CompletedAt,
		CreatedAt:   p.CreatedAt,
	}
}
