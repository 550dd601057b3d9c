package delivery

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jdfresh/backend/internal/domain/shared"
)

// Status represents the lifecycle state of a delivery run
type Status string

const (
	StatusAssigned  Status = "assigned"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked-up"
	StatusInTransit Status = "in-transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusAssigned, StatusAccepted, StatusPickedUp, StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo is the transition table for delivery statuses
func (s Status) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusAssigned:  {StatusAccepted, StatusCancelled},
		StatusAccepted:  {StatusPickedUp, StatusCancelled},
		StatusPickedUp:  {StatusInTransit, StatusDelivered, StatusCancelled},
		StatusInTransit: {StatusDelivered, StatusCancelled},
		StatusDelivered: {},
		StatusCancelled: {},
	}
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Progress maps each status to how far along the run is, in percent.
// Derived on read, never persisted.
func (s Status) Progress() int {
	switch s {
	case StatusAccepted:
		return 20
	case StatusPickedUp:
		return 40
	case StatusInTransit:
		return 70
	case StatusDelivered:
		return 100
	default: // assigned, cancelled
		return 0
	}
}

// Location is a tracked position on the delivery route
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Proof is the evidence captured when a delivery is handed over
type Proof struct {
	Image     string    `json:"image"`
	Signature string    `json:"signature,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Rating is customer or agent feedback for a completed delivery
type Rating struct {
	Score     int       `json:"score"`
	Feedback  string    `json:"feedback,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultETA is the estimated time from assignment to arrival
const DefaultETA = 30 * time.Minute

// Delivery tracks one order from assignment to handover. The route is
// append-only: positions are added as the agent moves and never rewritten.
type Delivery struct {
	shared.BaseAggregateRoot
	OrderID          uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null"`
	DeliveryPersonID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status           Status     `gorm:"size:20;not null;index"`
	CurrentLocation  *Location  `gorm:"serializer:json"`
	Route            []Location `gorm:"serializer:json"`
	EstimatedArrival time.Time  `gorm:"not null"`
	ActualArrival    *time.Time
	DeliveryProof    *Proof  `gorm:"serializer:json"`
	CustomerRating   *Rating `gorm:"serializer:json"`
	AcceptedAt       *time.Time
	PickedUpAt       *time.Time
}

// TableName returns the database table name
func (Delivery) TableName() string {
	return "deliveries"
}

// New assigns an order to a delivery agent with the default ETA
func New(orderID, deliveryPersonID uuid.UUID) (*Delivery, error) {
	if orderID == uuid.Nil || deliveryPersonID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Delivery requires an order and a delivery person")
	}
	return &Delivery{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderID:           orderID,
		DeliveryPersonID:  deliveryPersonID,
		Status:            StatusAssigned,
		Route:             make([]Location, 0),
		EstimatedArrival:  time.Now().Add(DefaultETA),
	}, nil
}

// transition moves the delivery to the target status
func (d *Delivery) transition(target Status) error {
	if !d.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot move delivery from %s to %s", d.Status, target))
	}
	d.Status = target
	d.IncrementVersion()
	return nil
}

// Accept is called by the assigned agent to take the run
func (d *Delivery) Accept() error {
	if err := d.transition(StatusAccepted); err != nil {
		return err
	}
	now := time.Now()
	d.AcceptedAt = &now
	return nil
}

// MarkPickedUp records that the agent collected the order
func (d *Delivery) MarkPickedUp() error {
	if err := d.transition(StatusPickedUp); err != nil {
		return err
	}
	now := time.Now()
	d.PickedUpAt = &now
	return nil
}

// MarkInTransit records that the agent is en route to the customer
func (d *Delivery) MarkInTransit() error {
	return d.transition(StatusInTransit)
}

// MarkDelivered completes the run and captures the handover proof
func (d *Delivery) MarkDelivered(proof Proof) error {
	if proof.Image == "" {
		return shared.NewDomainError("INVALID_INPUT", "Delivery proof requires an image")
	}
	if err := d.transition(StatusDelivered); err != nil {
		return err
	}
	now := time.Now()
	proof.Timestamp = now
	d.ActualArrival = &now
	d.DeliveryProof = &proof
	return nil
}

// Complete closes the run without handover proof, used when the order
// itself is marked delivered administratively. Completing an already
// delivered run changes nothing.
func (d *Delivery) Complete() error {
	if d.Status == StatusDelivered {
		return nil
	}
	if err := d.transition(StatusDelivered); err != nil {
		return err
	}
	now := time.Now()
	d.ActualArrival = &now
	return nil
}

// Cancel aborts the run
func (d *Delivery) Cancel() error {
	if d.Status == StatusCancelled {
		return nil
	}
	return d.transition(StatusCancelled)
}

// UpdateLocation appends a position to the route and updates the current
// location. Coordinates outside the valid ranges are rejected.
func (d *Delivery) UpdateLocation(lat, lng float64, address string) error {
	if d.Status == StatusDelivered || d.Status == StatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Cannot update location for a finished delivery")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return shared.NewDomainError("INVALID_INPUT", "Coordinates are out of range")
	}

	loc := Location{Lat: lat, Lng: lng, Address: address, Timestamp: time.Now()}
	d.CurrentLocation = &loc
	d.Route = append(d.Route, loc)
	d.IncrementVersion()
	return nil
}

// RateByCustomer records the customer's rating for a delivered run
func (d *Delivery) RateByCustomer(score int, feedback string) error {
	if d.Status != StatusDelivered {
		return shared.NewDomainError("INVALID_STATE", "Only delivered orders can be rated")
	}
	if score < 1 || score > 5 {
		return shared.NewDomainError("INVALID_INPUT", "Rating must be between 1 and 5")
	}
	d.CustomerRating = &Rating{Score: score, Feedback: feedback, Timestamp: time.Now()}
	d.IncrementVersion()
	return nil
}

// Progress returns the completion percentage for the current status
func (d *Delivery) Progress() int {
	return d.Status.Progress()
}

// TimeRemaining returns the whole minutes until the estimated arrival,
// clamped at zero, or nil once the run is delivered or cancelled.
func (d *Delivery) TimeRemaining(now time.Time) *int {
	if d.Status == StatusDelivered || d.Status == StatusCancelled {
		return nil
	}
	remaining := d.EstimatedArrival.Sub(now)
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	return &minutes
}

// Repository provides persistence for deliveries
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Delivery, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*Delivery, error)
	FindActiveByPerson(ctx context.Context, personID uuid.UUID) ([]Delivery, error)
	Save(ctx context.Context, d *Delivery) error
	Update(ctx context.Context, d *Delivery) error
}
