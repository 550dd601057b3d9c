package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	orderapp "github.com/jdfresh/backend/internal/application/order"
	"github.com/jdfresh/backend/internal/domain/delivery"
	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/domain/order"
	"github.com/jdfresh/backend/internal/domain/shared"
)

// Broadcaster pushes tracking updates to live subscribers. Implementations
// must not block the caller.
type Broadcaster interface {
	BroadcastTracking(orderID uuid.UUID, update *TrackingUpdate)
}

// OrderAdvancer moves an order along its pipeline on behalf of the
// delivery flow
type OrderAdvancer interface {
	Advance(ctx context.Context, actor orderapp.Actor, id uuid.UUID, target order.OrderStatus) (*orderapp.OrderResponse, error)
}

// Service manages delivery runs from assignment to handover
type Service struct {
	deliveries  delivery.Repository
	orders      order.Repository
	users       identity.Repository
	orderSvc    OrderAdvancer
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewService creates a new delivery Service
func NewService(
	deliveries delivery.Repository,
	orders order.Repository,
	users identity.Repository,
	orderSvc OrderAdvancer,
	broadcaster Broadcaster,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deliveries:  deliveries,
		orders:      orders,
		users:       users,
		orderSvc:    orderSvc,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Assign creates a delivery run for a ready order and records the agent
// on the order. Admin only.
func (s *Service) Assign(ctx context.Context, actor orderapp.Actor, req *AssignRequest) (*DeliveryResponse, error) {
	if !actor.IsAdmin() {
		return nil, shared.ErrForbidden
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invalid order id")
	}
	personID, err := uuid.Parse(req.DeliveryPersonID)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invalid delivery person id")
	}

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DeliveryType != order.TypeDelivery {
		return nil, shared.NewDomainError("INVALID_STATE", "Pickup orders are not delivered")
	}
	if o.Status != order.StatusReady && o.Status != order.StatusPreparing {
		return nil, shared.NewDomainError("INVALID_STATE", "Order is not ready for delivery assignment")
	}

	person, err := s.users.FindByID(ctx, personID)
	if err != nil {
		return nil, err
	}
	if !person.IsDeliveryAgent() || !person.IsActive {
		return nil, shared.NewDomainError("INVALID_INPUT", "Assignee is not an active delivery agent")
	}

	if existing, err := s.deliveries.FindByOrderID(ctx, orderID); err == nil && existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Order already has a delivery assigned")
	}

	d, err := delivery.New(orderID, personID)
	if err != nil {
		return nil, err
	}
	if err := s.deliveries.Save(ctx, d); err != nil {
		return nil, err
	}

	if err := o.AssignDeliveryPerson(personID, d.EstimatedArrival); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}

	s.logger.Info("Delivery assigned",
		zap.String("order_id", orderID.String()),
		zap.String("delivery_id", d.ID.String()),
		zap.String("delivery_person_id", personID.String()))
	s.broadcast(actor, d)
	return ToDeliveryResponse(d, time.Now()), nil
}

// Accept is called by the assigned agent to take the run
func (s *Service) Accept(ctx context.Context, actor orderapp.Actor, deliveryID uuid.UUID) (*DeliveryResponse, error) {
	d, err := s.ownRun(ctx, actor, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := d.Accept(); err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, d)
}

// MarkPickedUp records the pickup and dispatches the order
func (s *Service) MarkPickedUp(ctx context.Context, actor orderapp.Actor, deliveryID uuid.UUID) (*DeliveryResponse, error) {
	d, err := s.ownRun(ctx, actor, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := d.MarkPickedUp(); err != nil {
		return nil, err
	}
	if _, err := s.orderSvc.Advance(ctx, actor, d.OrderID, order.StatusOutForDelivery); err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, d)
}

// MarkInTransit records that the agent is en route to the customer
func (s *Service) MarkInTransit(ctx context.Context, actor orderapp.Actor, deliveryID uuid.UUID) (*DeliveryResponse, error) {
	d, err := s.ownRun(ctx, actor, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := d.MarkInTransit(); err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, d)
}

// MarkDelivered completes the run with proof and marks the order delivered
func (s *Service) MarkDelivered(ctx context.Context, actor orderapp.Actor, deliveryID uuid.UUID, req *ProofRequest) (*DeliveryResponse, error) {
	d, err := s.ownRun(ctx, actor, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := d.MarkDelivered(delivery.Proof{
		Image:     req.Image,
		Signature: req.Signature,
		Notes:     req.Notes,
	}); err != nil {
		return nil, err
	}
	if _, err := s.orderSvc.Advance(ctx, actor, d.OrderID, order.StatusDelivered); err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, d)
}

// UpdateLocation appends the agent's position to the route and pushes it
// to tracking subscribers
func (s *Service) UpdateLocation(ctx context.Context, actor orderapp.Actor, deliveryID uuid.UUID, req *LocationRequest) (*DeliveryResponse, error) {
	d, err := s.ownRun(ctx, actor, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := d.UpdateLocation(req.Lat, req.Lng, req.Address); err != nil {
		return nil, err
	}
	return s.persist(ctx, actor, d)
}

// Rate records the customer's rating for their delivered order
func (s *Service) Rate(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID, req *RateRequest) (*DeliveryResponse, error) {
	d, err := s.deliveries.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(actor.ID) {
		return nil, shared.ErrForbidden
	}
	if err := d.RateByCustomer(req.Score, req.Feedback); err != nil {
		return nil, err
	}
	if err := s.deliveries.Update(ctx, d); err != nil {
		return nil, err
	}
	return ToDeliveryResponse(d, time.Now()), nil
}

// ActiveDeliveries returns the agent's runs that are still in flight
func (s *Service) ActiveDeliveries(ctx context.Context, actor orderapp.Actor) ([]DeliveryResponse, error) {
	if !actor.IsDeliveryAgent() {
		return nil, shared.ErrForbidden
	}
	runs, err := s.deliveries.FindActiveByPerson(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	result := make([]DeliveryResponse, 0, len(runs))
	for i := range runs {
		result = append(result, *ToDeliveryResponse(&runs[i], now))
	}
	return result, nil
}

// GetByOrderID returns the delivery run for an order
func (s *Service) GetByOrderID(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID) (*DeliveryResponse, error) {
	if err := s.AuthorizeTracking(ctx, actor, orderID); err != nil {
		return nil, err
	}
	d, err := s.deliveries.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToDeliveryResponse(d, time.Now()), nil
}

// AuthorizeTracking decides whether the actor may watch an order's
// tracking room: the order's customer, its assigned agent, or an admin.
func (s *Service) AuthorizeTracking(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if actor.IsDeliveryAgent() {
		if o.IsAssignedTo(actor.ID) {
			return nil
		}
		return shared.ErrForbidden
	}
	if o.IsOwnedBy(actor.ID) {
		return nil
	}
	return shared.ErrForbidden
}

// ownRun loads a delivery and checks the actor is its assigned agent
func (s *Service) ownRun(ctx context.Context, actor orderapp.Actor, deliveryID uuid.UUID) (*delivery.Delivery, error) {
	d, err := s.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if !actor.IsDeliveryAgent() || d.DeliveryPersonID != actor.ID {
			return nil, shared.ErrForbidden
		}
	}
	return d, nil
}

func (s *Service) persist(ctx context.Context, actor orderapp.Actor, d *delivery.Delivery) (*DeliveryResponse, error) {
	if err := s.deliveries.Update(ctx, d); err != nil {
		return nil, err
	}
	s.broadcast(actor, d)
	return ToDeliveryResponse(d, time.Now()), nil
}

func (s *Service) broadcast(actor orderapp.Actor, d *delivery.Delivery) {
	if s.broadcaster == nil {
		return
	}
	update := ToTrackingUpdate(d, time.Now())
	update.PublisherID = actor.ID.String()
	s.broadcaster.BroadcastTracking(d.OrderID, update)
}

// PublishLocation applies an agent-pushed location event from the
// tracking socket. Same pipeline as the REST location endpoint.
func (s *Service) PublishLocation(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID, req *LocationRequest) error {
	d, err := s.deliveries.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	_, err = s.UpdateLocation(ctx, actor, d.ID, req)
	return err
}

// PublishStatus applies an agent-pushed status event from the tracking
// socket. The socket and the REST endpoints are two entry points into
// the same transitions, not two sources of truth. Delivered requires
// proof and is only accepted over REST.
func (s *Service) PublishStatus(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID, status string) error {
	d, err := s.deliveries.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	switch delivery.Status(status) {
	case delivery.StatusAccepted:
		_, err = s.Accept(ctx, actor, d.ID)
	case delivery.StatusPickedUp:
		_, err = s.MarkPickedUp(ctx, actor, d.ID)
	case delivery.StatusInTransit:
		_, err = s.MarkInTransit(ctx, actor, d.ID)
	default:
		return shared.NewDomainError("INVALID_INPUT", "Status cannot be set over the tracking socket")
	}
	return err
}
