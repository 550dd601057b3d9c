package order

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfresh/backend/internal/domain/catalog"
	"github.com/jdfresh/backend/internal/domain/delivery"
	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/domain/order"
	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/domain/shared"
)

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*catalog.Product
	released []uuid.UUID
	commits  []uuid.UUID
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[uuid.UUID]*catalog.Product)}
}

func (r *fakeProductRepo) add(p *catalog.Product) *catalog.Product {
	r.products[p.ID] = p
	return p
}

func (r *fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (r *fakeProductRepo) FindAll(_ context.Context, _ shared.Filter) ([]catalog.Product, int64, error) {
	return nil, 0, nil
}

func (r *fakeProductRepo) Save(_ context.Context, p *catalog.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}

// Reserve mirrors the conditional UPDATE of the real repository: the
// availability check and the decrement happen under one lock.
func (r *fakeProductRepo) Reserve(_ context.Context, id uuid.UUID, qty decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	if p.Stock.Available.LessThan(qty) {
		return shared.ErrInsufficientStock
	}
	p.Stock.Available = p.Stock.Available.Sub(qty)
	p.Stock.Reserved = p.Stock.Reserved.Add(qty)
	return nil
}

func (r *fakeProductRepo) Release(_ context.Context, id uuid.UUID, qty decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Stock.Reserved = p.Stock.Reserved.Sub(qty)
	p.Stock.Available = p.Stock.Available.Add(qty)
	r.released = append(r.released, id)
	return nil
}

func (r *fakeProductRepo) CommitReservation(_ context.Context, id uuid.UUID, qty decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.Stock.Reserved = p.Stock.Reserved.Sub(qty)
	r.commits = append(r.commits, id)
	return nil
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*order.Order
	sequence  int
	saveErr   error
	conflicts int
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

func (r *fakeOrderRepo) FindByNumber(_ context.Context, number string) (*order.Order, error) {
	for _, o := range r.orders {
		if o.OrderNumber == number {
			return o, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeOrderRepo) FindByCustomer(_ context.Context, customerID uuid.UUID, _ shared.Filter) ([]order.Order, int64, error) {
	var result []order.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			result = append(result, *o)
		}
	}
	return result, int64(len(result)), nil
}

func (r *fakeOrderRepo) FindAll(_ context.Context, _ shared.Filter) ([]order.Order, int64, error) {
	var result []order.Order
	for _, o := range r.orders {
		result = append(result, *o)
	}
	return result, int64(len(result)), nil
}

func (r *fakeOrderRepo) Save(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) Update(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) Transition(_ context.Context, o *order.Order, _ order.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return shared.ErrConcurrencyConflict
	}
	r.orders[o.ID] = o
	return nil
}

func (r *fakeOrderRepo) NextOrderNumber(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequence++
	return fmt.Sprintf("JD%06d", r.sequence), nil
}

type fakePaymentRepo struct {
	mu       sync.Mutex
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
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	return nil
}

func (r *fakePaymentRepo) Update(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	return nil
}

type fakeDeliveryRepo struct {
	deliveries map[uuid.UUID]*delivery.Delivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{deliveries: make(map[uuid.UUID]*delivery.Delivery)}
}

func (r *fakeDeliveryRepo) FindByID(_ context.Context, id uuid.UUID) (*delivery.Delivery, error) {
	d, ok := r.deliveries[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return d, nil
}

func (r *fakeDeliveryRepo) FindByOrderID(_ context.Context, orderID uuid.UUID) (*delivery.Delivery, error) {
	for _, d := range r.deliveries {
		if d.OrderID == orderID {
			return d, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeDeliveryRepo) FindActiveByPerson(_ context.Context, _ uuid.UUID) ([]delivery.Delivery, error) {
	return nil, nil
}

func (r *fakeDeliveryRepo) Save(_ context.Context, d *delivery.Delivery) error {
	r.deliveries[d.ID] = d
	return nil
}

func (r *fakeDeliveryRepo) Update(_ context.Context, d *delivery.Delivery) error {
	r.deliveries[d.ID] = d
	return nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	created   int
	changed   int
	cancelled int
}

func (n *recordingNotifier) OrderCreated(_ context.Context, _ *order.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created++
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, _ *order.Order, _, _ order.OrderStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed++
}

func (n *recordingNotifier) OrderCancelled(_ context.Context, _ *order.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled++
}

type fixture struct {
	svc      *Service
	orders   *fakeOrderRepo
	products *fakeProductRepo
	payments *fakePaymentRepo
	notifier *recordingNotifier
}

func newFixture() *fixture {
	orders := newFakeOrderRepo()
	products := newFakeProductRepo()
	payments := newFakePaymentRepo()
	notifier := &recordingNotifier{}
	svc := NewService(orders, products, payments, newFakeDeliveryRepo(), notifier, nil)
	return &fixture{svc: svc, orders: orders, products: products, payments: payments, notifier: notifier}
}

func newProduct(t *testing.T, name string, price float64, available float64) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(name, "", decimal.NewFromFloat(price), catalog.UnitKg, "", "produce")
	require.NoError(t, err)
	require.NoError(t, p.SetStock(decimal.NewFromFloat(available), decimal.Zero))
	return p
}

func createRequest(products ...*catalog.Product) *CreateOrderRequest {
	items := make([]CreateItemRequest, 0, len(products))
	for _, p := range products {
		items = append(items, CreateItemRequest{ProductID: p.ID.String(), Quantity: decimal.NewFromInt(2)})
	}
	return &CreateOrderRequest{
		Items:        items,
		DeliveryType: "delivery",
		DeliveryAddress: &order.DeliveryAddress{
			Street: "14 MG Road", City: "Bengaluru", State: "KA", Pincode: "560001", Country: "IN",
		},
		PaymentMethod: "upi",
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves stock and snapshots prices", func(t *testing.T) {
		f := newFixture()
		apples := f.products.add(newProduct(t, "Apples", 120, 10))

		resp, err := f.svc.Create(ctx, uuid.New(), createRequest(apples))
		require.NoError(t, err)

		assert.Equal(t, "JD000001", resp.Order.OrderNumber)
		assert.Equal(t, "pending", resp.Order.Status)
		assert.True(t, decimal.NewFromInt(260).Equal(resp.Order.Total)) // 2*120 + 20 delivery fee
		assert.True(t, decimal.NewFromInt(8).Equal(apples.Stock.Available))
		assert.True(t, decimal.NewFromInt(2).Equal(apples.Stock.Reserved))
		assert.Equal(t, 1, f.notifier.created)

		// later price edits must not change the snapshot
		apples.Price = decimal.NewFromInt(999)
		got, err := f.svc.GetByNumber(ctx, Actor{ID: uuid.MustParse(resp.Order.CustomerID), Role: identity.RoleCustomer}, resp.Order.OrderNumber)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(120).Equal(got.Items[0].UnitPrice))
	})

	t.Run("releases earlier reservations when one item is short", func(t *testing.T) {
		f := newFixture()
		apples := f.products.add(newProduct(t, "Apples", 120, 10))
		mangoes := f.products.add(newProduct(t, "Mangoes", 200, 1))

		_, err := f.svc.Create(ctx, uuid.New(), createRequest(apples, mangoes))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Mangoes")

		assert.True(t, decimal.NewFromInt(10).Equal(apples.Stock.Available))
		assert.True(t, apples.Stock.Reserved.IsZero())
		assert.Empty(t, f.orders.orders)
		assert.Equal(t, 0, f.notifier.created)
	})

	t.Run("releases stock when the order cannot be saved", func(t *testing.T) {
		f := newFixture()
		apples := f.products.add(newProduct(t, "Apples", 120, 10))
		f.orders.saveErr = fmt.Errorf("connection lost")

		_, err := f.svc.Create(ctx, uuid.New(), createRequest(apples))
		require.Error(t, err)
		assert.True(t, decimal.NewFromInt(10).Equal(apples.Stock.Available))
	})

	t.Run("rejects inactive products", func(t *testing.T) {
		f := newFixture()
		apples := f.products.add(newProduct(t, "Apples", 120, 10))
		apples.Deactivate()

		_, err := f.svc.Create(ctx, uuid.New(), createRequest(apples))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Apples")
	})

	t.Run("opens a payment record for cash on delivery", func(t *testing.T) {
		f := newFixture()
		apples := f.products.add(newProduct(t, "Apples", 120, 10))
		req := createRequest(apples)
		req.PaymentMethod = "cod"

		resp, err := f.svc.Create(ctx, uuid.New(), req)
		require.NoError(t, err)

		p, err := f.payments.FindByOrderID(ctx, uuid.MustParse(resp.Order.ID))
		require.NoError(t, err)
		assert.Equal(t, payment.GatewayCOD, p.Gateway)
		assert.Equal(t, payment.StatusPending, p.Status)
	})

	t.Run("gateway orders get a payment record and return it", func(t *testing.T) {
		f := newFixture()
		apples := f.products.add(newProduct(t, "Apples", 120, 10))

		for method, gateway := range map[string]payment.GatewayType{
			"card": payment.GatewayStripe,
			"upi":  payment.GatewayRazorpay,
		} {
			req := createRequest(apples)
			req.PaymentMethod = method

			resp, err := f.svc.Create(ctx, uuid.New(), req)
			require.NoError(t, err)

			require.NotNil(t, resp.Payment)
			assert.Equal(t, "pending", resp.Payment.Status)
			assert.Equal(t, string(gateway), resp.Payment.Gateway)
			assert.True(t, resp.Order.Total.Equal(resp.Payment.Amount))

			p, err := f.payments.FindByOrderID(ctx, uuid.MustParse(resp.Order.ID))
			require.NoError(t, err)
			assert.Equal(t, gateway, p.Gateway)
			assert.Equal(t, resp.Payment.ID, p.ID.String())
		}
	})

	t.Run("concurrent orders never oversell", func(t *testing.T) {
		f := newFixture()
		apples := f.products.add(newProduct(t, "Apples", 120, 6))

		const attempts = 10 // quantity 2 each against 6 available
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.Create(ctx, uuid.New(), createRequest(apples))
			}(i)
		}
		wg.Wait()

		placed := 0
		for _, err := range errs {
			if err == nil {
				placed++
				continue
			}
			var derr *shared.DomainError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, "INSUFFICIENT_STOCK", derr.Code)
		}

		assert.Equal(t, 3, placed)
		assert.True(t, apples.Stock.Available.IsZero())
		assert.True(t, decimal.NewFromInt(6).Equal(apples.Stock.Reserved))
		assert.Len(t, f.orders.orders, 3)
		assert.Empty(t, f.products.released)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	place := func(t *testing.T, f *fixture) (uuid.UUID, *OrderResponse) {
		t.Helper()
		apples := f.products.add(newProduct(t, "Apples", 120, 10))
		customerID := uuid.New()
		resp, err := f.svc.Create(ctx, customerID, createRequest(apples))
		require.NoError(t, err)
		return customerID, resp.Order
	}

	t.Run("releases reserved stock", func(t *testing.T) {
		f := newFixture()
		customerID, resp := place(t, f)

		got, err := f.svc.Cancel(ctx, Actor{ID: customerID, Role: identity.RoleCustomer}, uuid.MustParse(resp.ID))
		require.NoError(t, err)
		assert.Equal(t, "cancelled", got.Status)
		assert.Len(t, f.products.released, 1)
		assert.Equal(t, 1, f.notifier.cancelled)
	})

	t.Run("cancelling twice does not release stock twice", func(t *testing.T) {
		f := newFixture()
		customerID, resp := place(t, f)
		actor := Actor{ID: customerID, Role: identity.RoleCustomer}
		id := uuid.MustParse(resp.ID)

		_, err := f.svc.Cancel(ctx, actor, id)
		require.NoError(t, err)
		_, err = f.svc.Cancel(ctx, actor, id)
		require.NoError(t, err)

		assert.Len(t, f.products.released, 1)
	})

	t.Run("another customer cannot cancel", func(t *testing.T) {
		f := newFixture()
		_, resp := place(t, f)

		_, err := f.svc.Cancel(ctx, Actor{ID: uuid.New(), Role: identity.RoleCustomer}, uuid.MustParse(resp.ID))
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("rejected once preparation has started", func(t *testing.T) {
		f := newFixture()
		customerID, resp := place(t, f)
		id := uuid.MustParse(resp.ID)
		admin := Actor{ID: uuid.New(), Role: identity.RoleAdmin}

		_, err := f.svc.Advance(ctx, admin, id, order.StatusConfirmed)
		require.NoError(t, err)
		_, err = f.svc.Advance(ctx, admin, id, order.StatusPreparing)
		require.NoError(t, err)

		_, err = f.svc.Cancel(ctx, Actor{ID: customerID, Role: identity.RoleCustomer}, id)
		require.Error(t, err)
		assert.Empty(t, f.products.released)
	})
}

func TestAdvance(t *testing.T) {
	ctx := context.Background()
	admin := Actor{ID: uuid.New(), Role: identity.RoleAdmin}

	place := func(t *testing.T, f *fixture) uuid.UUID {
		t.Helper()
		apples := f.products.add(newProduct(t, "Apples", 120, 10))
		resp, err := f.svc.Create(ctx, uuid.New(), createRequest(apples))
		require.NoError(t, err)
		return uuid.MustParse(resp.Order.ID)
	}

	t.Run("admin walks the pipeline", func(t *testing.T) {
		f := newFixture()
		id := place(t, f)

		for _, target := range []order.OrderStatus{
			order.StatusConfirmed, order.StatusPreparing, order.StatusReady,
			order.StatusOutForDelivery, order.StatusDelivered,
		} {
			resp, err := f.svc.Advance(ctx, admin, id, target)
			require.NoError(t, err)
			assert.Equal(t, target.String(), resp.Status)
		}
		assert.Equal(t, 5, f.notifier.changed)
	})

	t.Run("skipping a stage is rejected", func(t *testing.T) {
		f := newFixture()
		id := place(t, f)

		_, err := f.svc.Advance(ctx, admin, id, order.StatusReady)
		require.Error(t, err)
	})

	t.Run("customers cannot advance", func(t *testing.T) {
		f := newFixture()
		id := place(t, f)
		o := f.orders.orders[id]

		_, err := f.svc.Advance(ctx, Actor{ID: o.CustomerID, Role: identity.RoleCustomer}, id, order.StatusConfirmed)
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("agents only touch assigned orders", func(t *testing.T) {
		f := newFixture()
		id := place(t, f)
		agent := Actor{ID: uuid.New(), Role: identity.RoleDelivery}

		_, err := f.svc.Advance(ctx, agent, id, order.StatusOutForDelivery)
		assert.ErrorIs(t, err, shared.ErrForbidden)

		o := f.orders.orders[id]
		require.NoError(t, o.TransitionTo(order.StatusConfirmed))
		require.NoError(t, o.TransitionTo(order.StatusPreparing))
		require.NoError(t, o.TransitionTo(order.StatusReady))
		require.NoError(t, o.AssignDeliveryPerson(agent.ID, o.CreatedAt))

		_, err = f.svc.Advance(ctx, agent, id, order.StatusPreparing)
		assert.ErrorIs(t, err, shared.ErrForbidden)

		resp, err := f.svc.Advance(ctx, agent, id, order.StatusOutForDelivery)
		require.NoError(t, err)
		assert.Equal(t, "out-for-delivery", resp.Status)
	})

	t.Run("delivering the order closes the linked delivery run", func(t *testing.T) {
		f := newFixture()
		id := place(t, f)

		d, err := delivery.New(id, uuid.New())
		require.NoError(t, err)
		require.NoError(t, d.Accept())
		require.NoError(t, d.MarkPickedUp())
		require.NoError(t, d.MarkInTransit())
		require.NoError(t, f.svc.deliveries.Save(ctx, d))

		for _, target := range []order.OrderStatus{
			order.StatusConfirmed, order.StatusPreparing, order.StatusReady,
			order.StatusOutForDelivery, order.StatusDelivered,
		} {
			_, err := f.svc.Advance(ctx, admin, id, target)
			require.NoError(t, err)
		}

		got, err := f.svc.deliveries.FindByOrderID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, delivery.StatusDelivered, got.Status)
		require.NotNil(t, got.ActualArrival)
	})

	t.Run("refunded is unreachable here", func(t *testing.T) {
		f := newFixture()
		id := place(t, f)

		_, err := f.svc.Advance(ctx, admin, id, order.StatusRefunded)
		require.Error(t, err)
	})

	t.Run("surfaces concurrency conflicts", func(t *testing.T) {
		f := newFixture()
		id := place(t, f)
		f.orders.conflicts = 1

		_, err := f.svc.Advance(ctx, admin, id, order.StatusConfirmed)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}

func TestTracking(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	apples := f.products.add(newProduct(t, "Apples", 120, 10))
	customerID := uuid.New()

	resp, err := f.svc.Create(ctx, customerID, createRequest(apples))
	require.NoError(t, err)
	id := uuid.MustParse(resp.Order.ID)

	tracking, err := f.svc.Tracking(ctx, Actor{ID: customerID, Role: identity.RoleCustomer}, id)
	require.NoError(t, err)
	require.Len(t, tracking.Timeline, 1)
	assert.Equal(t, order.StatusPending, tracking.Timeline[0].Status)
	assert.Nil(t, tracking.Delivery)

	t.Run("includes the live delivery snapshot", func(t *testing.T) {
		d, err := delivery.New(id, uuid.New())
		require.NoError(t, err)
		require.NoError(t, d.Accept())
		require.NoError(t, f.svc.deliveries.Save(ctx, d))

		tracking, err := f.svc.Tracking(ctx, Actor{ID: customerID, Role: identity.RoleCustomer}, id)
		require.NoError(t, err)
		require.NotNil(t, tracking.Delivery)
		assert.Equal(t, 20, tracking.Delivery.ProgressPercentage)
		require.NotNil(t, tracking.Delivery.TimeRemaining)
	})

	t.Run("other customers are refused", func(t *testing.T) {
		_, err := f.svc.Tracking(ctx, Actor{ID: uuid.New(), Role: identity.RoleCustomer}, id)
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})
}
