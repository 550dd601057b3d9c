package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntentRequest asks a gateway to open a payment for an order. Amount is
// in major units; adapters convert to the gateway's minor units at the
// boundary.
type IntentRequest struct {
	OrderID     string
	OrderNumber string
	CustomerID  string
	Amount      decimal.Decimal
	Currency    string
}

// IntentResponse carries the gateway handle the client needs to collect
// the payment
type IntentResponse struct {
	GatewayReference string // payment intent id (Stripe) or order id (Razorpay)
	ClientSecret     string // Stripe client secret, empty for Razorpay
	Amount           decimal.Decimal
	Currency         string
	KeyID            string // publishable/checkout key for the client
}

// RefundRequest asks a gateway to refund part or all of a payment
type RefundRequest struct {
	GatewayReference string // transaction id (Stripe) or payment id (Razorpay)
	Amount           decimal.Decimal
	Reason           string
}

// RefundResponse reports the gateway-side refund
type RefundResponse struct {
	RefundID string
	Amount   decimal.Decimal
	Status   RefundStatus
}

// Gateway is the contract every payment provider adapter implements.
// Calls are bounded by the context deadline; on gateway failure adapters
// return an error and the payment stays in its current state.
type Gateway interface {
	Type() GatewayType
	CreateIntent(ctx context.Context, req *IntentRequest) (*IntentResponse, error)
	CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResponse, error)
}

// Repository provides persistence for payments
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	FindByGatewayTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Payment, error)
	Save(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
}
