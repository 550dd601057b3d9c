package order

import (
	"github.com/shopspring/decimal"

	"github.com/jdfresh/backend/internal/domain/shared"
)

// Event types for the order aggregate
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderPaid          = "order.paid"
)

// OrderCreatedEvent is emitted when a new order is placed
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderNumber string          `json:"order_number"`
	CustomerID  string          `json:"customer_id"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
}

// NewOrderCreatedEvent creates an OrderCreatedEvent
func NewOrderCreatedEvent(o *Order) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventOrderCreated, "Order", o.ID),
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID.String(),
		Total:           o.Total,
		ItemCount:       len(o.Items),
	}
}

// OrderStatusChangedEvent is emitted on every status transition
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
}

// NewOrderStatusChangedEvent creates an OrderStatusChangedEvent
func NewOrderStatusChangedEvent(o *Order, from, to OrderStatus) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventOrderStatusChanged, "Order", o.ID),
		OrderNumber:     o.OrderNumber,
		From:            from,
		To:              to,
	}
}

// OrderCancelledEvent is emitted when an order is cancelled. Consumers
// release the stock that was reserved at creation.
type OrderCancelledEvent struct {
	shared.BaseDomainEvent
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
}

// NewOrderCancelledEvent creates an OrderCancelledEvent
func NewOrderCancelledEvent(o *Order, from OrderStatus) *OrderCancelledEvent {
	return &OrderCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventOrderCancelled, "Order", o.ID),
		OrderNumber:     o.OrderNumber,
		From:            from,
	}
}

// OrderPaidEvent is emitted when payment for an order completes
type OrderPaidEvent struct {
	shared.BaseDomainEvent
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
}

// NewOrderPaidEvent creates an OrderPaidEvent
func NewOrderPaidEvent(o *Order) *OrderPaidEvent {
	return &OrderPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventOrderPaid, "Order", o.ID),
		OrderNumber:     o.OrderNumber,
		Total:           o.Total,
	}
}
