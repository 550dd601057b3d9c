package payment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderapp "github.com/jdfresh/backend/internal/application/order"
	"github.com/jdfresh/backend/internal/domain/catalog"
	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/domain/order"
	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/domain/shared"
)

type fakePaymentRepo struct {
	payments map[uuid.UUID]*payment.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[uuid.UUID]*payment.Payment)}
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *fakePaymentRepo) FindByOrderID(_ context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	for _, p := range r.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakePaymentRepo) FindByGatewayTransactionID(_ context.Context, id string) (*payment.Payment, error) {
	for _, p := range r.payments {
		if p.GatewayTransactionID == id {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakePaymentRepo) FindByGatewayOrderID(_ context.Context, id string) (*payment.Payment, error) {
	for _, p := range r.payments {
		if p.GatewayOrderID == id {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakePaymentRepo) Save(_ context.Context, p *payment.Payment) error {
	r.payments[p.ID] = p
	return nil
}

func (r *fakePaymentRepo) Update(_ context.Context, p *payment.Payment) error {
	r.payments[p.ID] = p
	return nil
}

type fakeOrderRepo struct {
	orders map[uuid.UUID]*order.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*order.Order)}
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

func (r *fakeOrderRepo) FindByNumber(_ context.Context, _ string) (*order.Order, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeOrderRepo) FindByCustomer(_ context.Context, _ uuid.UUID, _ shared.Filter) ([]order.Order, int64, error) {
	return nil, 0, nil
}

func (r *fakeOrderRepo) FindAll(_ context.Context, _ shared.Filter) ([]order.Order, int64, error) {
	return nil, 0, nil
}

func (r *fakeOrderRepo) Save(_ context.Context, o *order.Order) error {
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) Update(_ context.Context, o *order.Order) error {
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) Transition(_ context.Context, o *order.Order, _ order.OrderStatus) error {
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) NextOrderNumber(_ context.Context) (string, error) {
	return "JD000001", nil
}

type fakeGateway struct {
	gatewayType payment.GatewayType
	intents     int
	refunds     int
	fail        bool
}

func (g *fakeGateway) Type() payment.GatewayType { return g.gatewayType }

func (g *fakeGateway) CreateIntent(_ context.Context, req *payment.IntentRequest) (*payment.IntentResponse, error) {
	if g.fail {
		return nil, fmt.Errorf("gateway down")
	}
	g.intents++
	return &payment.IntentResponse{
		GatewayReference: fmt.Sprintf("%s_ref_%d", g.gatewayType, g.intents),
		ClientSecret:     "secret_abc",
		Amount:           req.Amount,
		Currency:         req.Currency,
	}, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, req *payment.RefundRequest) (*payment.RefundResponse, error) {
	if g.fail {
		return nil, fmt.Errorf("gateway down")
	}
	g.refunds++
	return &payment.RefundResponse{
		RefundID: fmt.Sprintf("re_%d", g.refunds),
		Amount:   req.Amount,
		Status:   payment.RefundCompleted,
	}, nil
}

type fakeStock struct {
	released map[uuid.UUID]decimal.Decimal
}

func newFakeStock() *fakeStock {
	return &fakeStock{released: make(map[uuid.UUID]decimal.Decimal)}
}

func (s *fakeStock) Release(_ context.Context, productID uuid.UUID, qty decimal.Decimal) error {
	s.released[productID] = s.released[productID].Add(qty)
	return nil
}

type fakeVerifier struct{ valid bool }

func (v *fakeVerifier) VerifySignature(_, _, _ string) bool { return v.valid }

type memoryIdempotency struct {
	seen map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{seen: make(map[string]bool)}
}

func (m *memoryIdempotency) MarkProcessed(_ context.Context, id string, _ time.Duration) (bool, error) {
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memoryIdempotency) IsProcessed(_ context.Context, id string) (bool, error) {
	return m.seen[id], nil
}

func (m *memoryIdempotency) Close() error { return nil }

type fixture struct {
	svc      *Service
	payments *fakePaymentRepo
	orders   *fakeOrderRepo
	stock    *fakeStock
	stripe   *fakeGateway
	razorpay *fakeGateway
	verifier *fakeVerifier
}

func newFixture() *fixture {
	payments := newFakePaymentRepo()
	orders := newFakeOrderRepo()
	stock := newFakeStock()
	stripe := &fakeGateway{gatewayType: payment.GatewayStripe}
	razorpay := &fakeGateway{gatewayType: payment.GatewayRazorpay}
	verifier := &fakeVerifier{valid: true}

	svc := NewService(ServiceConfig{
		Payments:    payments,
		Orders:      orders,
		Stock:       stock,
		Gateways:    []payment.Gateway{stripe, razorpay},
		Verifier:    verifier,
		Idempotency: newMemoryIdempotency(),
	})
	return &fixture{svc: svc, payments: payments, orders: orders, stock: stock, stripe: stripe, razorpay: razorpay, verifier: verifier}
}

func placeOrder(t *testing.T, f *fixture, method order.PaymentMethod) *order.Order {
	t.Helper()
	items := []order.Item{{
		ProductID: uuid.New(),
		Name:      "Apples",
		UnitPrice: decimal.NewFromInt(120),
		Quantity:  decimal.NewFromInt(2),
		Unit:      catalog.UnitKg,
	}}
	addr := &order.DeliveryAddress{Street: "14 MG Road", City: "Bengaluru", Pincode: "560001"}
	o, err := order.NewOrder("JD000042", uuid.New(), items, order.TypeDelivery, addr, nil, method, "")
	require.NoError(t, err)
	require.NoError(t, f.orders.Save(context.Background(), o))
	return o
}

func actorFor(o *order.Order) orderapp.Actor {
	return orderapp.Actor{ID: o.CustomerID, Role: identity.RoleCustomer}
}

func TestCreateIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a stripe payment", func(t *testing.T) {
		f := newFixture()
		o := placeOrder(t, f, order.MethodCard)

		resp, err := f.svc.CreateIntent(ctx, actorFor(o), &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "stripe"})
		require.NoError(t, err)

		assert.Equal(t, "stripe_ref_1", resp.GatewayReference)
		assert.Equal(t, "secret_abc", resp.ClientSecret)
		assert.True(t, o.Total.Equal(resp.Amount))

		p, err := f.payments.FindByOrderID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusProcessing, p.Status)
		assert.Equal(t, "stripe_ref_1", p.GatewayTransactionID)
	})

	t.Run("reuses the payment record on retry", func(t *testing.T) {
		f := newFixture()
		o := placeOrder(t, f, order.MethodCard)
		req := &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "stripe"}

		first, err := f.svc.CreateIntent(ctx, actorFor(o), req)
		require.NoError(t, err)
		second, err := f.svc.CreateIntent(ctx, actorFor(o), req)
		require.NoError(t, err)

		assert.Equal(t, first.PaymentID, second.PaymentID)
		assert.Len(t, f.payments.payments, 1)
	})

	t.Run("gateway failure leaves the payment untouched", func(t *testing.T) {
		f := newFixture()
		o := placeOrder(t, f, order.MethodCard)
		f.stripe.fail = true

		_, err := f.svc.CreateIntent(ctx, actorFor(o), &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "stripe"})
		assert.ErrorIs(t, err, shared.ErrGatewayUnavailable)

		p, err := f.payments.FindByOrderID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, p.Status)
	})

	t.Run("rejects cash on delivery", func(t *testing.T) {
		f := newFixture()
		o := placeOrder(t, f, order.MethodCOD)

		_, err := f.svc.CreateIntent(ctx, actorFor(o), &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "stripe"})
		require.Error(t, err)
	})

	t.Run("rejects other customers", func(t *testing.T) {
		f := newFixture()
		o := placeOrder(t, f, order.MethodCard)

		stranger := orderapp.Actor{ID: uuid.New(), Role: identity.RoleCustomer}
		_, err := f.svc.CreateIntent(ctx, stranger, &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "stripe"})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})
}

func TestVerifyRazorpay(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, f *fixture) (*order.Order, string) {
		t.Helper()
		o := placeOrder(t, f, order.MethodUPI)
		resp, err := f.svc.CreateIntent(ctx, actorFor(o), &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "razorpay"})
		require.NoError(t, err)
		return o, resp.GatewayReference
	}

	t.Run("completes payment and confirms the order", func(t *testing.T) {
		f := newFixture()
		o, ref := setup(t, f)

		resp, err := f.svc.VerifyRazorpay(ctx, actorFor(o), &VerifyRazorpayRequest{
			RazorpayOrderID: ref, RazorpayPaymentID: "pay_123", RazorpaySignature: "sig",
		})
		require.NoError(t, err)
		assert.Equal(t, "completed", resp.Status)

		assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
		assert.Equal(t, order.StatusConfirmed, o.Status)
	})

	t.Run("signature mismatch changes nothing", func(t *testing.T) {
		f := newFixture()
		o, ref := setup(t, f)
		f.verifier.valid = false

		_, err := f.svc.VerifyRazorpay(ctx, actorFor(o), &VerifyRazorpayRequest{
			RazorpayOrderID: ref, RazorpayPaymentID: "pay_123", RazorpaySignature: "bad",
		})
		assert.ErrorIs(t, err, shared.ErrInvalidSignature)

		p, err := f.payments.FindByOrderID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusProcessing, p.Status)
		assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	})
}

func TestProcessStripeEvent(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, f *fixture) (*order.Order, string) {
		t.Helper()
		o := placeOrder(t, f, order.MethodCard)
		resp, err := f.svc.CreateIntent(ctx, actorFor(o), &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "stripe"})
		require.NoError(t, err)
		return o, resp.GatewayReference
	}

	t.Run("succeeded event confirms the order", func(t *testing.T) {
		f := newFixture()
		o, intentID := setup(t, f)

		err := f.svc.ProcessStripeEvent(ctx, &StripeEvent{
			ID: "evt_1", Type: "payment_intent.succeeded", IntentID: intentID,
			CardLast4: "4242", CardBrand: "visa",
		})
		require.NoError(t, err)

		p, err := f.payments.FindByOrderID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, p.Status)
		assert.Equal(t, "4242", p.CardLast4)
		assert.Equal(t, order.StatusConfirmed, o.Status)
	})

	t.Run("replayed events are dropped", func(t *testing.T) {
		f := newFixture()
		_, intentID := setup(t, f)
		event := &StripeEvent{ID: "evt_1", Type: "payment_intent.succeeded", IntentID: intentID}

		require.NoError(t, f.svc.ProcessStripeEvent(ctx, event))
		require.NoError(t, f.svc.ProcessStripeEvent(ctx, event))

		p, err := f.payments.FindByGatewayTransactionID(ctx, intentID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, p.Status)
	})

	t.Run("failed event cancels a pending order and releases its stock", func(t *testing.T) {
		f := newFixture()
		o, intentID := setup(t, f)

		err := f.svc.ProcessStripeEvent(ctx, &StripeEvent{
			ID: "evt_2", Type: "payment_intent.payment_failed", IntentID: intentID,
		})
		require.NoError(t, err)

		p, err := f.payments.FindByOrderID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusFailed, p.Status)
		assert.Equal(t, order.StatusCancelled, o.Status)

		item := o.Items[0]
		assert.True(t, item.Quantity.Equal(f.stock.released[item.ProductID]),
			"reserved stock must return to the available pool")
	})

	t.Run("failure after cancellation does not release stock twice", func(t *testing.T) {
		f := newFixture()
		o, intentID := setup(t, f)
		require.NoError(t, o.Cancel())

		err := f.svc.ProcessStripeEvent(ctx, &StripeEvent{
			ID: "evt_4", Type: "payment_intent.payment_failed", IntentID: intentID,
		})
		require.NoError(t, err)
		assert.Empty(t, f.stock.released)
	})

	t.Run("unknown event types are ignored", func(t *testing.T) {
		f := newFixture()
		_, intentID := setup(t, f)

		err := f.svc.ProcessStripeEvent(ctx, &StripeEvent{
			ID: "evt_3", Type: "charge.updated", IntentID: intentID,
		})
		require.NoError(t, err)
	})
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	admin := orderapp.Actor{ID: uuid.New(), Role: identity.RoleAdmin}

	completed := func(t *testing.T, f *fixture) *order.Order {
		t.Helper()
		o := placeOrder(t, f, order.MethodCard)
		resp, err := f.svc.CreateIntent(ctx, actorFor(o), &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "stripe"})
		require.NoError(t, err)
		require.NoError(t, f.svc.ProcessStripeEvent(ctx, &StripeEvent{
			ID: "evt_ok", Type: "payment_intent.succeeded", IntentID: resp.GatewayReference,
		}))
		return o
	}

	t.Run("full refund of a cancelled order", func(t *testing.T) {
		f := newFixture()
		o := completed(t, f)
		require.NoError(t, o.Cancel())

		resp, err := f.svc.Refund(ctx, admin, &RefundRequest{OrderID: o.ID.String(), Reason: "customer request"})
		require.NoError(t, err)

		assert.Equal(t, "refunded", resp.Status)
		require.NotNil(t, resp.Refund)
		assert.True(t, o.Total.Equal(resp.Refund.Amount))
		assert.Equal(t, order.StatusRefunded, o.Status)
		assert.Equal(t, order.PaymentRefunded, o.PaymentStatus)
	})

	t.Run("refund before completion is rejected", func(t *testing.T) {
		f := newFixture()
		o := placeOrder(t, f, order.MethodCard)
		_, err := f.svc.CreateIntent(ctx, actorFor(o), &CreateIntentRequest{OrderID: o.ID.String(), Gateway: "stripe"})
		require.NoError(t, err)

		_, err = f.svc.Refund(ctx, admin, &RefundRequest{OrderID: o.ID.String()})
		require.Error(t, err)
	})

	t.Run("only admins can refund", func(t *testing.T) {
		f := newFixture()
		o := completed(t, f)

		_, err := f.svc.Refund(ctx, actorFor(o), &RefundRequest{OrderID: o.ID.String()})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("gateway failure leaves state untouched", func(t *testing.T) {
		f := newFixture()
		o := completed(t, f)
		require.NoError(t, o.Cancel())
		f.stripe.fail = true

		_, err := f.svc.Refund(ctx, admin, &RefundRequest{OrderID: o.ID.String()})
		assert.ErrorIs(t, err, shared.ErrGatewayUnavailable)

		p, err := f.payments.FindByOrderID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, p.Status)
	})
}

func TestSettleCOD(t *testing.T) {
	ctx := context.Background()
	admin := orderapp.Actor{ID: uuid.New(), Role: identity.RoleAdmin}

	f := newFixture()
	o := placeOrder(t, f, order.MethodCOD)
	p, err := payment.New(o.ID, o.CustomerID, o.Total, payment.GatewayCOD)
	require.NoError(t, err)
	require.NoError(t, f.payments.Save(ctx, p))

	t.Run("only admins can settle", func(t *testing.T) {
		_, err := f.svc.SettleCOD(ctx, actorFor(o), o.ID)
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("settling completes payment and marks the order paid", func(t *testing.T) {
		resp, err := f.svc.SettleCOD(ctx, admin, o.ID)
		require.NoError(t, err)
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	})
}
