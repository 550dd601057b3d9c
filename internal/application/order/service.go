package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/domain/catalog"
	"github.com/jdfresh/backend/internal/domain/delivery"
	"github.com/jdfresh/backend/internal/domain/order"
	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/domain/shared"
)

// Notifier receives order lifecycle notifications. Implementations must
// not block: dispatch failures never affect the order operation.
type Notifier interface {
	OrderCreated(ctx context.Context, o *order.Order)
	OrderStatusChanged(ctx context.Context, o *order.Order, from, to order.OrderStatus)
	OrderCancelled(ctx context.Context, o *order.Order)
}

// Service handles order placement, state transitions and tracking
type Service struct {
	orders     order.Repository
	products   catalog.ProductRepository
	payments   payment.Repository
	deliveries delivery.Repository
	notifier   Notifier
	logger     *zap.Logger
}

// NewService creates a new order Service
func NewService(
	orders order.Repository,
	products catalog.ProductRepository,
	payments payment.Repository,
	deliveries delivery.Repository,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orders:     orders,
		products:   products,
		payments:   payments,
		deliveries: deliveries,
		notifier:   notifier,
		logger:     logger,
	}
}

// Create places an order for the customer. Stock is reserved for every
// item before the order is written; if any reservation fails, all earlier
// reservations are released and nothing is persisted.
func (s *Service) Create(ctx context.Context, customerID uuid.UUID, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	items := make([]order.Item, 0, len(req.Items))
	for _, line := range req.Items {
		productID, err := uuid.Parse(line.ProductID)
		if err != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid product id %q", line.ProductID))
		}

		product, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		if !product.IsActive {
			return nil, shared.NewDomainError("INVALID_INPUT",
				fmt.Sprintf("%s is not available for ordering", product.Name))
		}

		items = append(items, order.Item{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  line.Quantity,
			Unit:      product.Unit,
			Image:     product.Image,
		})
	}

	reserved, err := s.reserveAll(ctx, items)
	if err != nil {
		return nil, err
	}

	o, p, err := s.buildAndSave(ctx, customerID, items, req)
	if err != nil {
		s.releaseAll(ctx, reserved)
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.OrderCreated(ctx, o)
	}
	o.ClearDomainEvents()

	return &CreateOrderResponse{Order: ToOrderResponse(o), Payment: ToPaymentSummary(p)}, nil
}

// reserveAll reserves stock for every item, releasing everything already
// reserved when one reservation fails
func (s *Service) reserveAll(ctx context.Context, items []order.Item) ([]catalog.ReservationItem, error) {
	reserved := make([]catalog.ReservationItem, 0, len(items))
	for _, item := range items {
		if err := s.products.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			s.releaseAll(ctx, reserved)
			if errors.Is(err, shared.ErrInsufficientStock) {
				return nil, shared.NewDomainError("INSUFFICIENT_STOCK",
					fmt.Sprintf("Insufficient stock for %s", item.Name))
			}
			return nil, err
		}
		reserved = append(reserved, catalog.ReservationItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return reserved, nil
}

// releaseAll returns reserved stock to the available pool. Release
// failures are logged, not propagated: the caller is already unwinding.
func (s *Service) releaseAll(ctx context.Context, reserved []catalog.ReservationItem) {
	for _, r := range reserved {
		if err := s.products.Release(ctx, r.ProductID, r.Quantity); err != nil {
			s.logger.Error("Failed to release reserved stock",
				zap.String("product_id", r.ProductID.String()),
				zap.String("quantity", r.Quantity.String()),
				zap.Error(err))
		}
	}
}

func (s *Service) buildAndSave(ctx context.Context, customerID uuid.UUID, items []order.Item, req *CreateOrderRequest) (*order.Order, *payment.Payment, error) {
	orderNumber, err := s.orders.NextOrderNumber(ctx)
	if err != nil {
		return nil, nil, err
	}

	o, err := order.NewOrder(orderNumber, customerID, items,
		order.DeliveryType(req.DeliveryType), req.DeliveryAddress, req.PickupLocation,
		order.PaymentMethod(req.PaymentMethod), req.Notes)
	if err != nil {
		return nil, nil, err
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, nil, err
	}

	// Every order opens a pending payment record alongside it. Gateway
	// processing starts when the client requests an intent; cash is
	// settled on handover.
	p, err := payment.New(o.ID, o.CustomerID, o.Total, gatewayFor(o.PaymentMethod))
	if err != nil {
		return nil, nil, err
	}
	if err := s.payments.Save(ctx, p); err != nil {
		return nil, nil, err
	}

	s.logger.Info("Order placed",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.String("customer_id", customerID.String()),
		zap.String("total", o.Total.String()))
	return o, p, nil
}

// gatewayFor maps a payment method to the gateway that will collect it.
// Card payments go through Stripe, the Indian rails through Razorpay.
func gatewayFor(method order.PaymentMethod) payment.GatewayType {
	switch method {
	case order.MethodCOD:
		return payment.GatewayCOD
	case order.MethodCard:
		return payment.GatewayStripe
	default:
		return payment.GatewayRazorpay
	}
}

// GetByID returns one order. Customers see only their own orders,
// delivery agents only orders assigned to them.
func (s *Service) GetByID(ctx context.Context, actor Actor, id uuid.UUID) (*OrderResponse, error) {
	o, err := s.authorizedOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return ToOrderResponse(o), nil
}

// GetByNumber returns one order looked up by its order number
func (s *Service) GetByNumber(ctx context.Context, actor Actor, orderNumber string) (*OrderResponse, error) {
	o, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, o); err != nil {
		return nil, err
	}
	return ToOrderResponse(o), nil
}

// List returns orders page by page. Admins see all orders, customers
// their own.
func (s *Service) List(ctx context.Context, actor Actor, filter shared.Filter) (*shared.Paginated[OrderResponse], error) {
	var (
		orders []order.Order
		total  int64
		err    error
	)
	if actor.IsAdmin() {
		orders, total, err = s.orders.FindAll(ctx, filter)
	} else {
		orders, total, err = s.orders.FindByCustomer(ctx, actor.ID, filter)
	}
	if err != nil {
		return nil, err
	}

	items := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, *ToOrderResponse(&orders[i]))
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// Cancel cancels an order and releases its reserved stock. Cancelling an
// already-cancelled order succeeds without touching stock again.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*OrderResponse, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !o.IsOwnedBy(actor.ID) {
		return nil, shared.ErrForbidden
	}

	from := o.Status
	if err := o.Cancel(); err != nil {
		return nil, err
	}
	if from == order.StatusCancelled {
		return ToOrderResponse(o), nil
	}

	if err := s.orders.Transition(ctx, o, from); err != nil {
		return nil, err
	}

	for _, item := range o.Items {
		if err := s.products.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to release stock on cancellation",
				zap.String("order_id", o.ID.String()),
				zap.String("product_id", item.ProductID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.String("from", from.String()))
	if s.notifier != nil {
		s.notifier.OrderCancelled(ctx, o)
	}
	o.ClearDomainEvents()

	return ToOrderResponse(o), nil
}

// Advance moves an order along the fulfillment pipeline. Admins may
// perform any allowed transition; delivery agents only dispatch and
// deliver orders assigned to them. The status change is persisted with a
// compare-and-swap so two concurrent writers cannot both win.
func (s *Service) Advance(ctx context.Context, actor Actor, id uuid.UUID, target order.OrderStatus) (*OrderResponse, error) {
	if !target.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown order status %q", target))
	}

	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.IsAdmin():
	case actor.IsDeliveryAgent():
		if !o.IsAssignedTo(actor.ID) {
			return nil, shared.ErrForbidden
		}
		if target != order.StatusOutForDelivery && target != order.StatusDelivered {
			return nil, shared.ErrForbidden
		}
	default:
		return nil, shared.ErrForbidden
	}

	from := o.Status
	if target == order.StatusCancelled {
		return s.Cancel(ctx, actor, id)
	}
	if err := o.TransitionTo(target); err != nil {
		return nil, err
	}
	if err := s.orders.Transition(ctx, o, from); err != nil {
		return nil, err
	}

	if target == order.StatusDelivered {
		s.commitReservations(ctx, o)
		s.completeDelivery(ctx, o)
	}

	s.logger.Info("Order advanced",
		zap.String("order_id", o.ID.String()),
		zap.String("from", from.String()),
		zap.String("to", target.String()))
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(ctx, o, from, target)
	}
	o.ClearDomainEvents()

	return ToOrderResponse(o), nil
}

// commitReservations consumes the reserved stock once the order has been
// handed over
func (s *Service) commitReservations(ctx context.Context, o *order.Order) {
	for _, item := range o.Items {
		if err := s.products.CommitReservation(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to commit stock reservation",
				zap.String("order_id", o.ID.String()),
				zap.String("product_id", item.ProductID.String()),
				zap.Error(err))
		}
	}
}

// completeDelivery closes the linked delivery run when the order itself
// is marked delivered, keeping both aggregates in step. Failures are
// logged, not propagated: the order has already transitioned.
func (s *Service) completeDelivery(ctx context.Context, o *order.Order) {
	if o.DeliveryType != order.TypeDelivery {
		return
	}
	d, err := s.deliveries.FindByOrderID(ctx, o.ID)
	if errors.Is(err, shared.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("Failed to load delivery for delivered order",
			zap.String("order_id", o.ID.String()), zap.Error(err))
		return
	}
	if d.Status == delivery.StatusDelivered || d.Status == delivery.StatusCancelled {
		return
	}
	if err := d.Complete(); err != nil {
		s.logger.Warn("Delivery run could not be completed with the order",
			zap.String("order_id", o.ID.String()),
			zap.String("delivery_status", string(d.Status)),
			zap.Error(err))
		return
	}
	if err := s.deliveries.Update(ctx, d); err != nil {
		s.logger.Error("Failed to persist completed delivery",
			zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

// Tracking returns the order timeline and, for delivery orders with an
// active run, the live delivery snapshot
func (s *Service) Tracking(ctx context.Context, actor Actor, id uuid.UUID) (*TrackingResponse, error) {
	o, err := s.authorizedOrder(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	resp := &TrackingResponse{
		Order:    ToOrderResponse(o),
		Timeline: o.StatusTimeline(),
	}

	if o.DeliveryType == order.TypeDelivery {
		d, err := s.deliveries.FindByOrderID(ctx, o.ID)
		if err == nil && d != nil {
			resp.Delivery = ToDeliverySnapshot(d, time.Now())
		} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	return resp, nil
}

func (s *Service) authorizedOrder(ctx context.Context, actor Actor, id uuid.UUID) (*order.Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) authorize(actor Actor, o *order.Order) error {
	switch {
	case actor.IsAdmin():
		return nil
	case actor.IsDeliveryAgent():
		if o.IsAssignedTo(actor.ID) {
			return nil
		}
	default:
		if o.IsOwnedBy(actor.ID) {
			return nil
		}
	}
	return shared.ErrForbidden
}
