package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/domain/shared"
	"github.com/jdfresh/backend/internal/infrastructure/config"
)

// StripeAdapter implements payment.Gateway against the Stripe API
type StripeAdapter struct {
	client *client.API
	logger *zap.Logger
}

// NewStripeAdapter creates a new Stripe adapter
func NewStripeAdapter(cfg *config.StripeConfig, logger *zap.Logger) (*StripeAdapter, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe: secret key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeAdapter{client: api, logger: logger}, nil
}

// Type returns the gateway type
func (a *StripeAdapter) Type() payment.GatewayType {
	return payment.GatewayStripe
}

// CreateIntent opens a Stripe payment intent for the order
func (a *StripeAdapter) CreateIntent(ctx context.Context, req *payment.IntentRequest) (*payment.IntentResponse, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("order_number", req.OrderNumber)

	intent, err := a.client.PaymentIntents.New(params)
	if err != nil {
		a.logger.Error("stripe payment intent creation failed",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", shared.ErrGatewayUnavailable, err)
	}

	return &payment.IntentResponse{
		GatewayReference: intent.ID,
		ClientSecret:     intent.ClientSecret,
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

// CreateRefund refunds a captured payment intent
func (a *StripeAdapter) CreateRefund(ctx context.Context, req *payment.RefundRequest) (*payment.RefundResponse, error) {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(req.GatewayReference),
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	refund, err := a.client.Refunds.New(params)
	if err != nil {
		a.logger.Error("stripe refund failed",
			zap.String("payment_intent", req.GatewayReference),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", shared.ErrGatewayUnavailable, err)
	}

	return &payment.RefundResponse{
		RefundID: refund.ID,
		Amount:   req.Amount,
		Status:   mapStripeRefundStatus(refund.Status),
	}, nil
}

// toMinorUnits converts a major-unit amount to the smallest currency unit
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func mapStripeRefundStatus(status stripe.RefundStatus) payment.RefundStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return payment.RefundCompleted
	case stripe.RefundStatusPending, stripe.RefundStatusRequiresAction:
		return payment.RefundPending
	default:
		return payment.RefundFailed
	}
}

var _ payment.Gateway = (*StripeAdapter)(nil)
