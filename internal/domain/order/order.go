package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jdfresh/backend/internal/domain/catalog"
	"github.com/jdfresh/backend/internal/domain/shared"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusReady          OrderStatus = "ready"
	StatusOutForDelivery OrderStatus = "out-for-delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
	StatusRefunded       OrderStatus = "refunded"
)

// IsValid checks if the status is a known value
func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady,
		StatusOutForDelivery, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// String returns the string representation
func (s OrderStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo is the single transition table for order statuses.
// Forward progress follows the fulfillment pipeline, cancellation is only
// allowed before preparation starts, and refunded is reachable solely
// through payment reconciliation (from delivered or cancelled orders).
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	transitions := map[OrderStatus][]OrderStatus{
		StatusPending:        {StatusConfirmed, StatusCancelled},
		StatusConfirmed:      {StatusPreparing, StatusCancelled},
		StatusPreparing:      {StatusReady},
		StatusReady:          {StatusOutForDelivery, StatusDelivered},
		StatusOutForDelivery: {StatusDelivered},
		StatusDelivered:      {StatusRefunded},
		StatusCancelled:      {StatusRefunded},
		StatusRefunded:       {},
	}

	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// PaymentStatus represents how far payment has progressed for an order
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentMethod is the customer-selected payment instrument
type PaymentMethod string

const (
	MethodCard       PaymentMethod = "card"
	MethodUPI        PaymentMethod = "upi"
	MethodNetbanking PaymentMethod = "netbanking"
	MethodWallet     PaymentMethod = "wallet"
	MethodCOD        PaymentMethod = "cod"
)

// IsValid checks if the payment method is a known value
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodCard, MethodUPI, MethodNetbanking, MethodWallet, MethodCOD:
		return true
	}
	return false
}

// DeliveryType distinguishes home delivery from store pickup
type DeliveryType string

const (
	TypeDelivery DeliveryType = "delivery"
	TypePickup   DeliveryType = "pickup"
)

// Fee schedule. Delivery orders pay a flat delivery fee, pickup orders a
// flat service fee. Amounts are in the order currency (INR).
var (
	DeliveryFee = decimal.NewFromInt(20)
	ServiceFee  = decimal.NewFromInt(10)
)

// MinItemQuantity is the smallest orderable quantity (0.1 for weight units)
var MinItemQuantity = decimal.NewFromFloat(0.1)

// Coordinates is a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DeliveryAddress is where a delivery order is brought
type DeliveryAddress struct {
	Street       string      `json:"street"`
	City         string      `json:"city"`
	State        string      `json:"state"`
	Pincode      string      `json:"pincode"`
	Country      string      `json:"country"`
	Coordinates  Coordinates `json:"coordinates"`
	Instructions string      `json:"instructions,omitempty"`
}

// PickupLocation is where a pickup order is collected
type PickupLocation struct {
	Name        string      `json:"name"`
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
	Phone       string      `json:"phone"`
}

// Item is a point-in-time snapshot of an ordered product. Name, price,
// unit and image are copied from the catalog at order time so later
// catalog edits never change what the customer agreed to pay.
type Item struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      catalog.Unit    `json:"unit"`
	Image     string          `json:"image"`
}

// LineTotal returns unit price times quantity
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(i.Quantity)
}

// Order is the customer order aggregate. Orders are never deleted; every
// state they pass through is reachable from the status history.
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber       string           `gorm:"size:20;uniqueIndex;not null"`
	CustomerID        uuid.UUID        `gorm:"type:uuid;not null;index"`
	Items             []Item           `gorm:"serializer:json;not null"`
	Subtotal          decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	DeliveryFee       decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	ServiceFee        decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	Discount          decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	Total             decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	Status            OrderStatus      `gorm:"size:20;not null;index"`
	PaymentStatus     PaymentStatus    `gorm:"size:20;not null;index"`
	PaymentMethod     PaymentMethod    `gorm:"size:20;not null"`
	DeliveryType      DeliveryType     `gorm:"size:10;not null"`
	DeliveryAddress   *DeliveryAddress `gorm:"serializer:json"`
	PickupLocation    *PickupLocation  `gorm:"serializer:json"`
	DeliveryPersonID  *uuid.UUID       `gorm:"type:uuid;index"`
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
	Notes             string `gorm:"size:500"`
	ConfirmedAt       *time.Time
	PreparingAt       *time.Time
	ReadyAt           *time.Time
	DispatchedAt      *time.Time
	CancelledAt       *time.Time
}

// TableName returns the database table name
func (Order) TableName() string {
	return "orders"
}

// NewOrder builds a pending order from snapshot items. The caller is
// responsible for having reserved stock for every item beforehand.
func NewOrder(orderNumber string, customerID uuid.UUID, items []Item, deliveryType DeliveryType,
	address *DeliveryAddress, pickup *PickupLocation, method PaymentMethod, notes string) (*Order, error) {

	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order number is required")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Customer is required")
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order must contain at least one item")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Unknown payment method")
	}
	if len(notes) > 500 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Notes cannot exceed 500 characters")
	}

	switch deliveryType {
	case TypeDelivery:
		if address == nil || pickup != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "Delivery orders require a delivery address and no pickup location")
		}
	case TypePickup:
		if pickup == nil || address != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", "Pickup orders require a pickup location and no delivery address")
		}
	default:
		return nil, shared.NewDomainError("INVALID_INPUT", "Unknown delivery type")
	}

	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Name == "" {
			return nil, shared.NewDomainError("INVALID_INPUT", "Order item is missing its product snapshot")
		}
		if item.Quantity.LessThan(MinItemQuantity) {
			return nil, shared.NewDomainError("INVALID_INPUT",
				fmt.Sprintf("Quantity for %s must be at least %s", item.Name, MinItemQuantity))
		}
		if item.UnitPrice.IsNegative() {
			return nil, shared.NewDomainError("INVALID_INPUT", "Item price cannot be negative")
		}
	}

	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		CustomerID:        customerID,
		Items:             items,
		Discount:          decimal.Zero,
		Status:            StatusPending,
		PaymentStatus:     PaymentPending,
		PaymentMethod:     method,
		DeliveryType:      deliveryType,
		DeliveryAddress:   address,
		PickupLocation:    pickup,
		Notes:             notes,
	}
	o.recalculateTotals()

	o.AddDomainEvent(NewOrderCreatedEvent(o))
	return o, nil
}

// recalculateTotals derives subtotal, fees and total from the items
func (o *Order) recalculateTotals() {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	o.Subtotal = subtotal

	o.DeliveryFee = decimal.Zero
	o.ServiceFee = decimal.Zero
	if o.DeliveryType == TypeDelivery {
		o.DeliveryFee = DeliveryFee
	} else {
		o.ServiceFee = ServiceFee
	}

	o.Total = o.Subtotal.Add(o.DeliveryFee).Add(o.ServiceFee).Sub(o.Discount)
}

// TransitionTo advances the order to the target status, stamping the
// matching timestamp. Refunded is rejected here: it is only reachable
// through MarkRefunded during payment reconciliation.
func (o *Order) TransitionTo(target OrderStatus) error {
	if target == StatusRefunded {
		return shared.NewDomainError("INVALID_STATE", "Orders are refunded through payment reconciliation")
	}
	if target == StatusCancelled {
		return o.Cancel()
	}
	if !o.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot move order from %s to %s", o.Status, target))
	}

	from := o.Status
	o.Status = target
	now := time.Now()
	switch target {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusPreparing:
		o.PreparingAt = &now
	case StatusReady:
		o.ReadyAt = &now
	case StatusOutForDelivery:
		o.DispatchedAt = &now
	case StatusDelivered:
		o.ActualDelivery = &now
	}
	o.IncrementVersion()
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, target))
	return nil
}

// Cancel cancels the order. Cancelling an already-cancelled order is an
// idempotent no-op; any other disallowed state is an error. The caller
// releases reserved stock only when Cancel reports a state change.
func (o *Order) Cancel() error {
	if o.Status == StatusCancelled {
		return nil
	}
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel an order that is %s", o.Status))
	}

	from := o.Status
	now := time.Now()
	o.Status = StatusCancelled
	o.CancelledAt = &now
	o.IncrementVersion()
	o.AddDomainEvent(NewOrderCancelledEvent(o, from))
	return nil
}

// MarkPaid records successful payment and confirms a pending order
func (o *Order) MarkPaid() error {
	if o.PaymentStatus == PaymentPaid {
		return nil
	}
	if o.PaymentStatus != PaymentPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot mark a %s payment as paid", o.PaymentStatus))
	}

	o.PaymentStatus = PaymentPaid
	if o.Status == StatusPending {
		now := time.Now()
		o.Status = StatusConfirmed
		o.ConfirmedAt = &now
	}
	o.IncrementVersion()
	o.AddDomainEvent(NewOrderPaidEvent(o))
	return nil
}

// MarkPaymentFailed records a failed payment and cancels the order if it
// has not progressed past confirmation
func (o *Order) MarkPaymentFailed() error {
	if o.PaymentStatus == PaymentFailed {
		return nil
	}
	if o.PaymentStatus != PaymentPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot fail a %s payment", o.PaymentStatus))
	}

	o.PaymentStatus = PaymentFailed
	if o.Status.CanTransitionTo(StatusCancelled) {
		now := time.Now()
		o.Status = StatusCancelled
		o.CancelledAt = &now
	}
	o.IncrementVersion()
	return nil
}

// MarkRefunded records a completed refund, the only path into the
// refunded status
func (o *Order) MarkRefunded() error {
	if o.Status == StatusRefunded {
		return nil
	}
	if o.PaymentStatus != PaymentPaid {
		return shared.NewDomainError("INVALID_STATE", "Only paid orders can be refunded")
	}
	if !o.Status.CanTransitionTo(StatusRefunded) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot refund an order that is %s", o.Status))
	}

	from := o.Status
	o.Status = StatusRefunded
	o.PaymentStatus = PaymentRefunded
	o.IncrementVersion()
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, StatusRefunded))
	return nil
}

// AssignDeliveryPerson records the agent and estimated arrival when the
// order goes out for delivery
func (o *Order) AssignDeliveryPerson(personID uuid.UUID, estimatedDelivery time.Time) error {
	if o.DeliveryType != TypeDelivery {
		return shared.NewDomainError("INVALID_STATE", "Pickup orders cannot be assigned a delivery person")
	}
	o.DeliveryPersonID = &personID
	o.EstimatedDelivery = &estimatedDelivery
	o.IncrementVersion()
	return nil
}

// IsOwnedBy reports whether the order belongs to the given customer
func (o *Order) IsOwnedBy(customerID uuid.UUID) bool {
	return o.CustomerID == customerID
}

// IsAssignedTo reports whether the order is assigned to the given agent
func (o *Order) IsAssignedTo(personID uuid.UUID) bool {
	return o.DeliveryPersonID != nil && *o.DeliveryPersonID == personID
}

// TimelineEntry is one step in the order status history
type TimelineEntry struct {
	Status    OrderStatus `json:"status"`
	Label     string      `json:"label"`
	Timestamp time.Time   `json:"timestamp"`
}

// StatusTimeline derives the status history from the stamped timestamps.
// It is computed on read and never persisted.
func (o *Order) StatusTimeline() []TimelineEntry {
	timeline := []TimelineEntry{
		{Status: StatusPending, Label: "Order Placed", Timestamp: o.CreatedAt},
	}

	appendEntry := func(status OrderStatus, label string, ts *time.Time) {
		if ts != nil {
			timeline = append(timeline, TimelineEntry{Status: status, Label: label, Timestamp: *ts})
		}
	}

	appendEntry(StatusConfirmed, "Order Confirmed", o.ConfirmedAt)
	appendEntry(StatusPreparing, "Preparing", o.PreparingAt)
	appendEntry(StatusReady, "Ready", o.ReadyAt)
	appendEntry(StatusOutForDelivery, "Out for Delivery", o.DispatchedAt)
	appendEntry(StatusDelivered, "Delivered", o.ActualDelivery)
	appendEntry(StatusCancelled, "Cancelled", o.CancelledAt)

	return timeline
}
