package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jdfresh/backend/internal/domain/delivery"
	"github.com/jdfresh/backend/internal/domain/identity"
	"github.com/jdfresh/backend/internal/domain/order"
	"github.com/jdfresh/backend/internal/domain/payment"
)

// Actor identifies who is performing an operation, used for scoping
type Actor struct {
	ID   uuid.UUID
	Role identity.Role
}

// IsAdmin reports whether the actor has the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == identity.RoleAdmin
}

// IsDeliveryAgent reports whether the actor has the delivery role
func (a Actor) IsDeliveryAgent() bool {
	return a.Role == identity.RoleDelivery
}

// CreateItemRequest is one cart line in an order creation request
type CreateItemRequest struct {
	ProductID string          `json:"product_id" binding:"required,uuid"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
}

// CreateOrderRequest is the request to place an order
type CreateOrderRequest struct {
	Items           []CreateItemRequest    `json:"items" binding:"required,min=1,dive"`
	DeliveryType    string                 `json:"delivery_type" binding:"required,oneof=delivery pickup"`
	DeliveryAddress *order.DeliveryAddress `json:"delivery_address"`
	PickupLocation  *order.PickupLocation  `json:"pickup_location"`
	PaymentMethod   string                 `json:"payment_method" binding:"required,oneof=card upi netbanking wallet cod"`
	Notes           string                 `json:"notes" binding:"max=500"`
}

// AdvanceRequest moves an order to a new status
type AdvanceRequest struct {
	Status string `json:"status" binding:"required"`
}

// ItemResponse is an order line in API responses
type ItemResponse struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
	Image     string          `json:"image,omitempty"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// OrderResponse is the API representation of an order
type OrderResponse struct {
	ID                string                 `json:"id"`
	OrderNumber       string                 `json:"order_number"`
	CustomerID        string                 `json:"customer_id"`
	Items             []ItemResponse         `json:"items"`
	Subtotal          decimal.Decimal        `json:"subtotal"`
	DeliveryFee       decimal.Decimal        `json:"delivery_fee"`
	ServiceFee        decimal.Decimal        `json:"service_fee"`
	Discount          decimal.Decimal        `json:"discount"`
	Total             decimal.Decimal        `json:"total"`
	Status            string                 `json:"status"`
	PaymentStatus     string                 `json:"payment_status"`
	PaymentMethod     string                 `json:"payment_method"`
	DeliveryType      string                 `json:"delivery_type"`
	DeliveryAddress   *order.DeliveryAddress `json:"delivery_address,omitempty"`
	PickupLocation    *order.PickupLocation  `json:"pickup_location,omitempty"`
	DeliveryPersonID  string                 `json:"delivery_person_id,omitempty"`
	EstimatedDelivery *time.Time             `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time             `json:"actual_delivery,omitempty"`
	Notes             string                 `json:"notes,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// PaymentSummary is the payment stub returned with a freshly placed order
type PaymentSummary struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Gateway  string          `json:"gateway"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CreateOrderResponse pairs a new order with its payment record
type CreateOrderResponse struct {
	Order   *OrderResponse  `json:"order"`
	Payment *PaymentSummary `json:"payment"`
}

// DeliverySnapshot is the live delivery view embedded in tracking responses
type DeliverySnapshot struct {
	Status             string             `json:"status"`
	DeliveryPersonID   string             `json:"delivery_person_id"`
	CurrentLocation    *delivery.Location `json:"current_location,omitempty"`
	ProgressPercentage int                `json:"progress_percentage"`
	TimeRemaining      *int               `json:"time_remaining,omitempty"`
	EstimatedArrival   time.Time          `json:"estimated_arrival"`
}

// TrackingResponse is the customer-facing tracking view of an order
type TrackingResponse struct {
	Order    *OrderResponse        `json:"order"`
	Timeline []order.TimelineEntry `json:"timeline"`
	Delivery *DeliverySnapshot     `json:"delivery,omitempty"`
}

// ToOrderResponse maps an order aggregate to its API representation
func ToOrderResponse(o *order.Order) *OrderResponse {
	items := make([]ItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, ItemResponse{
			ProductID: item.ProductID.String(),
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Unit:      string(item.Unit),
			Image:     item.Image,
			LineTotal: item.LineTotal(),
		})
	}

	resp := &OrderResponse{
		ID:                o.ID.String(),
		OrderNumber:       o.OrderNumber,
		CustomerID:        o.CustomerID.String(),
		Items:             items,
		Subtotal:          o.Subtotal,
		DeliveryFee:       o.DeliveryFee,
		ServiceFee:        o.ServiceFee,
		Discount:          o.Discount,
		Total:             o.Total,
		Status:            o.Status.String(),
		PaymentStatus:     string(o.PaymentStatus),
		PaymentMethod:     string(o.PaymentMethod),
		DeliveryType:      string(o.DeliveryType),
		DeliveryAddress:   o.DeliveryAddress,
		PickupLocation:    o.PickupLocation,
		EstimatedDelivery: o.EstimatedDelivery,
		ActualDelivery:    o.ActualDelivery,
		Notes:             o.Notes,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if o.DeliveryPersonID != nil {
		resp.DeliveryPersonID = o.DeliveryPersonID.String()
	}
	return resp
}

// ToPaymentSummary maps a payment record to the stub embedded in the
// order creation response
func ToPaymentSummary(p *payment.Payment) *PaymentSummary {
	if p == nil {
		return nil
	}
	return &PaymentSummary{
		ID:       p.ID.String(),
		Status:   string(p.Status),
		Gateway:  string(p.Gateway),
		Amount:   p.Amount,
		Currency: p.Currency,
	}
}

// ToDeliverySnapshot maps a delivery run to the tracking view, deriving
// progress and time remaining at read time
func ToDeliverySnapshot(d *delivery.Delivery, now time.Time) *DeliverySnapshot {
	return &DeliverySnapshot{
		Status:             string(d.Status),
		DeliveryPersonID:   d.DeliveryPersonID.String(),
		CurrentLocation:    d.CurrentLocation,
		ProgressPercentage: d.Progress(),
		TimeRemaining:      d.TimeRemaining(now),
		EstimatedArrival:   d.EstimatedArrival,
	}
}
