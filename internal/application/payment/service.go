package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	orderapp "github.com/jdfresh/backend/internal/application/order"
	"github.com/jdfresh/backend/internal/domain/order"
	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/domain/shared"
)

// webhookTTL is how long processed webhook event ids are remembered.
// Gateways stop retrying well before this window closes.
const webhookTTL = 24 * time.Hour

// SignatureVerifier checks a Razorpay checkout signature. The comparison
// must be constant-time.
type SignatureVerifier interface {
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// StockReleaser returns reserved stock to the available pool when a
// payment failure cancels an order. Satisfied by catalog.ProductRepository.
type StockReleaser interface {
	Release(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) error
}

// Notifier receives payment lifecycle notifications
type Notifier interface {
	PaymentCompleted(ctx context.Context, o *order.Order, p *payment.Payment)
	PaymentFailed(ctx context.Context, o *order.Order, p *payment.Payment)
	RefundProcessed(ctx context.Context, o *order.Order, p *payment.Payment)
}

// Service reconciles gateway payments with orders
type Service struct {
	payments    payment.Repository
	orders      order.Repository
	stock       StockReleaser
	gateways    map[payment.GatewayType]payment.Gateway
	verifier    SignatureVerifier
	idempotency shared.IdempotencyStore
	notifier    Notifier
	logger      *zap.Logger
}

// ServiceConfig holds the dependencies for the payment Service
type ServiceConfig struct {
	Payments    payment.Repository
	Orders      order.Repository
	Stock       StockReleaser
	Gateways    []payment.Gateway
	Verifier    SignatureVerifier
	Idempotency shared.IdempotencyStore
	Notifier    Notifier
	Logger      *zap.Logger
}

// NewService creates a new payment Service
func NewService(cfg ServiceConfig) *Service {
	gateways := make(map[payment.GatewayType]payment.Gateway)
	for _, gw := range cfg.Gateways {
		gateways[gw.Type()] = gw
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		payments:    cfg.Payments,
		orders:      cfg.Orders,
		stock:       cfg.Stock,
		gateways:    gateways,
		verifier:    cfg.Verifier,
		idempotency: cfg.Idempotency,
		notifier:    cfg.Notifier,
		logger:      logger,
	}
}

// CreateIntent opens a gateway payment for a pending order and returns
// the handle the client needs to collect it. Calling it again for the
// same order reuses the existing payment record.
func (s *Service) CreateIntent(ctx context.Context, actor orderapp.Actor, req *CreateIntentRequest) (*IntentResponse, error) {
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invalid order id")
	}
	gatewayType := payment.GatewayType(req.Gateway)
	gateway, ok := s.gateways[gatewayType]
	if !ok {
		return nil, shared.ErrGatewayUnavailable
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !o.IsOwnedBy(actor.ID) {
		return nil, shared.ErrForbidden
	}
	if o.PaymentStatus != order.PaymentPending {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Order payment is already %s", o.PaymentStatus))
	}
	if o.PaymentMethod == order.MethodCOD {
		return nil, shared.NewDomainError("INVALID_STATE", "Cash-on-delivery orders are settled on handover")
	}

	p, err := s.payments.FindByOrderID(ctx, orderID)
	if errors.Is(err, shared.ErrNotFound) {
		p, err = payment.New(o.ID, o.CustomerID, o.Total, gatewayType)
		if err != nil {
			return nil, err
		}
		if err := s.payments.Save(ctx, p); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if p.Status == payment.StatusCompleted {
		return nil, shared.NewDomainError("INVALID_STATE", "Payment is already completed")
	}
	// The stub opened at order placement carries the method's default
	// gateway; the client's intent request has the final say.
	if p.Status == payment.StatusPending && p.Gateway != gatewayType {
		p.Gateway = gatewayType
	}

	intent, err := gateway.CreateIntent(ctx, &payment.IntentRequest{
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID.String(),
		Amount:      p.Amount,
		Currency:    p.Currency,
	})
	if err != nil {
		s.logger.Error("Gateway intent creation failed",
			zap.String("order_id", o.ID.String()),
			zap.String("gateway", string(gatewayType)),
			zap.Error(err))
		return nil, shared.ErrGatewayUnavailable
	}

	switch gatewayType {
	case payment.GatewayStripe:
		err = p.AttachStripeIntent(intent.GatewayReference)
	case payment.GatewayRazorpay:
		err = p.AttachRazorpayOrder(intent.GatewayReference)
	}
	if err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.String("order_id", o.ID.String()),
		zap.String("gateway", string(gatewayType)),
		zap.String("gateway_reference", intent.GatewayReference))

	return &IntentResponse{
		PaymentID:        p.ID.String(),
		Gateway:          string(gatewayType),
		GatewayReference: intent.GatewayReference,
		ClientSecret:     intent.ClientSecret,
		KeyID:            intent.KeyID,
		Amount:           intent.Amount,
		Currency:         intent.Currency,
	}, nil
}

// VerifyRazorpay checks the checkout signature the client received and,
// when valid, completes the payment and confirms the order. A signature
// mismatch changes nothing.
func (s *Service) VerifyRazorpay(ctx context.Context, actor orderapp.Actor, req *VerifyRazorpayRequest) (*PaymentResponse, error) {
	if s.verifier == nil {
		return nil, shared.ErrGatewayUnavailable
	}

	p, err := s.payments.FindByGatewayOrderID(ctx, req.RazorpayOrderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && p.CustomerID != actor.ID {
		return nil, shared.ErrForbidden
	}

	if !s.verifier.VerifySignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		s.logger.Warn("Razorpay signature mismatch",
			zap.String("payment_id", p.ID.String()),
			zap.String("razorpay_order_id", req.RazorpayOrderID))
		return nil, shared.ErrInvalidSignature
	}

	if err := p.ConfirmRazorpay(req.RazorpayPaymentID, req.RazorpaySignature); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, err
	}
	if err := s.settleOrderPaid(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Razorpay payment verified",
		zap.String("payment_id", p.ID.String()),
		zap.String("razorpay_payment_id", req.RazorpayPaymentID))
	return ToPaymentResponse(p), nil
}

// ProcessStripeEvent applies a verified Stripe webhook event. Replayed
// events are dropped by the idempotency store before any state is read.
func (s *Service) ProcessStripeEvent(ctx context.Context, event *StripeEvent) error {
	if s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, "stripe:"+event.ID, webhookTTL)
		if err != nil {
			s.logger.Warn("Idempotency check failed, processing anyway",
				zap.String("event_id", event.ID), zap.Error(err))
		} else if !fresh {
			s.logger.Debug("Skipping replayed Stripe event", zap.String("event_id", event.ID))
			return nil
		}
	}

	p, err := s.payments.FindByGatewayTransactionID(ctx, event.IntentID)
	if err != nil {
		return err
	}

	switch event.Type {
	case "payment_intent.succeeded":
		if err := p.Complete(); err != nil {
			return err
		}
		p.SetCardDetails(event.CardLast4, event.CardBrand)
		if err := s.payments.Update(ctx, p); err != nil {
			return err
		}
		if err := s.settleOrderPaid(ctx, p); err != nil {
			return err
		}
		s.logger.Info("Stripe payment succeeded",
			zap.String("payment_id", p.ID.String()),
			zap.String("intent_id", event.IntentID))

	case "payment_intent.payment_failed":
		if err := p.Fail(); err != nil {
			return err
		}
		if err := s.payments.Update(ctx, p); err != nil {
			return err
		}
		if err := s.settleOrderFailed(ctx, p); err != nil {
			return err
		}
		s.logger.Info("Stripe payment failed",
			zap.String("payment_id", p.ID.String()),
			zap.String("intent_id", event.IntentID))

	default:
		s.logger.Debug("Ignoring Stripe event", zap.String("type", event.Type))
	}
	return nil
}

// Refund refunds a completed payment at its gateway and marks the order
// refunded. Admin only.
func (s *Service) Refund(ctx context.Context, actor orderapp.Actor, req *RefundRequest) (*PaymentResponse, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invalid order id")
	}

	p, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.StatusCompleted {
		return nil, shared.NewDomainError("INVALID_STATE", "Only completed payments can be refunded")
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = p.Amount
	}

	var refundID string
	if p.Gateway == payment.GatewayCOD {
		// Cash refunds are settled off-platform, recorded here only
		refundID = "cod_" + uuid.NewString()
	} else {
		gateway, ok := s.gateways[p.Gateway]
		if !ok {
			return nil, shared.ErrGatewayUnavailable
		}
		reference := p.GatewayTransactionID
		if p.Gateway == payment.GatewayRazorpay {
			reference = p.GatewayPaymentID
		}
		refund, err := gateway.CreateRefund(ctx, &payment.RefundRequest{
			GatewayReference: reference,
			Amount:           amount,
			Reason:           req.Reason,
		})
		if err != nil {
			s.logger.Error("Gateway refund failed",
				zap.String("payment_id", p.ID.String()),
				zap.String("gateway", string(p.Gateway)),
				zap.Error(err))
			return nil, shared.ErrGatewayUnavailable
		}
		refundID = refund.RefundID
	}

	if err := p.ProcessRefund(refundID, amount, req.Reason); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, err
	}

	o, err := s.orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := o.MarkRefunded(); err != nil {
		return nil, err
	}
	if err := s.persistOrder(ctx, o, from); err != nil {
		return nil, err
	}

	s.logger.Info("Payment refunded",
		zap.String("payment_id", p.ID.String()),
		zap.String("refund_id", refundID),
		zap.String("amount", amount.String()))
	if s.notifier != nil {
		s.notifier.RefundProcessed(ctx, o, p)
	}
	return ToPaymentResponse(p), nil
}

// SettleCOD completes a cash-on-delivery payment after the cash has been
// collected. Admin only.
func (s *Service) SettleCOD(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID) (*PaymentResponse, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}

	p, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := p.SettleCOD(); err != nil {
		return nil, err
	}
	if err := s.payments.Update(ctx, p); err != nil {
		return nil, err
	}
	if err := s.settleOrderPaid(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Cash-on-delivery payment settled", zap.String("payment_id", p.ID.String()))
	return ToPaymentResponse(p), nil
}

// GetByOrderID returns the payment attached to an order
func (s *Service) GetByOrderID(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID) (*PaymentResponse, error) {
	p, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && p.CustomerID != actor.ID {
		return nil, shared.ErrForbidden
	}
	return ToPaymentResponse(p), nil
}

// settleOrderPaid marks the order paid and persists the state change
func (s *Service) settleOrderPaid(ctx context.Context, p *payment.Payment) error {
	o, err := s.orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	from := o.Status
	if err := o.MarkPaid(); err != nil {
		return err
	}
	if err := s.persistOrder(ctx, o, from); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.PaymentCompleted(ctx, o, p)
	}
	return nil
}

// settleOrderFailed marks the order's payment failed, cancelling it when
// still possible. Cancellation returns every item's reserved stock.
func (s *Service) settleOrderFailed(ctx context.Context, p *payment.Payment) error {
	o, err := s.orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	from := o.Status
	if err := o.MarkPaymentFailed(); err != nil {
		return err
	}
	if err := s.persistOrder(ctx, o, from); err != nil {
		return err
	}
	if o.Status == order.StatusCancelled && from != order.StatusCancelled {
		s.releaseStock(ctx, o)
	}
	if s.notifier != nil {
		s.notifier.PaymentFailed(ctx, o, p)
	}
	return nil
}

// releaseStock returns the order's reserved stock. Release failures are
// logged, not propagated: the order is already cancelled.
func (s *Service) releaseStock(ctx context.Context, o *order.Order) {
	if s.stock == nil {
		return
	}
	for _, item := range o.Items {
		if err := s.stock.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to release stock after payment failure",
				zap.String("order_id", o.ID.String()),
				zap.String("product_id", item.ProductID.String()),
				zap.Error(err))
		}
	}
}

// persistOrder writes the order, using the status compare-and-swap when
// the status moved
func (s *Service) persistOrder(ctx context.Context, o *order.Order, from order.OrderStatus) error {
	defer o.ClearDomainEvents()
	if o.Status != from {
		return s.orders.Transition(ctx, o, from)
	}
	return s.orders.Update(ctx, o)
}
