package delivery

import (
	"time"

	"github.com/jdfresh/backend/internal/domain/delivery"
)

// AssignRequest assigns an order to a delivery agent
type AssignRequest struct {
	OrderID          string `json:"order_id" binding:"required,uuid"`
	DeliveryPersonID string `json:"delivery_person_id" binding:"required,uuid"`
}

// LocationRequest reports the agent's current position
type LocationRequest struct {
	Lat     float64 `json:"lat" binding:"required,min=-90,max=90"`
	Lng     float64 `json:"lng" binding:"required,min=-180,max=180"`
	Address string  `json:"address" binding:"max=500"`
}

// ProofRequest carries the handover evidence
type ProofRequest struct {
	Image     string `json:"image" binding:"required,max=500"`
	Signature string `json:"signature" binding:"max=500"`
	Notes     string `json:"notes" binding:"max=500"`
}

// RateRequest is the customer's rating for a completed delivery
type RateRequest struct {
	Score    int    `json:"score" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback" binding:"max=1000"`
}

// DeliveryResponse is the API representation of a delivery run
type DeliveryResponse struct {
	ID                 string             `json:"id"`
	OrderID            string             `json:"order_id"`
	DeliveryPersonID   string             `json:"delivery_person_id"`
	Status             string             `json:"status"`
	CurrentLocation    *delivery.Location `json:"current_location,omitempty"`
	Route              []delivery.Location `json:"route,omitempty"`
	ProgressPercentage int                `json:"progress_percentage"`
	TimeRemaining      *int               `json:"time_remaining,omitempty"`
	EstimatedArrival   time.Time          `json:"estimated_arrival"`
	ActualArrival      *time.Time         `json:"actual_arrival,omitempty"`
	DeliveryProof      *delivery.Proof    `json:"delivery_proof,omitempty"`
	CustomerRating     *delivery.Rating   `json:"customer_rating,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// TrackingUpdate is the payload pushed to tracking subscribers whenever
// a delivery changes. PublisherID identifies the actor whose action
// produced the update so the hub can skip echoing it back to them.
type TrackingUpdate struct {
	PublisherID        string             `json:"-"`
	OrderID            string             `json:"order_id"`
	DeliveryID         string             `json:"delivery_id"`
	Status             string             `json:"status"`
	CurrentLocation    *delivery.Location `json:"current_location,omitempty"`
	ProgressPercentage int                `json:"progress_percentage"`
	TimeRemaining      *int               `json:"time_remaining,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ToDeliveryResponse maps a delivery aggregate to its API representation
func ToDeliveryResponse(d *delivery.Delivery, now time.Time) *DeliveryResponse {
	return &DeliveryResponse{
		ID:                 d.ID.String(),
		OrderID:            d.OrderID.String(),
		DeliveryPersonID:   d.DeliveryPersonID.String(),
		Status:             string(d.Status),
		CurrentLocation:    d.CurrentLocation,
		Route:              d.Route,
		ProgressPercentage: d.Progress(),
		TimeRemaining:      d.TimeRemaining(now),
		EstimatedArrival:   d.EstimatedArrival,
		ActualArrival:      d.ActualArrival,
		DeliveryProof:      d.DeliveryProof,
		CustomerRating:     d.CustomerRating,
		CreatedAt:          d.CreatedAt,
	}
}

// ToTrackingUpdate builds the push payload for a delivery change
func ToTrackingUpdate(d *delivery.Delivery, now time.Time) *TrackingUpdate {
	return &TrackingUpdate{
		OrderID:            d.OrderID.String(),
		DeliveryID:         d.ID.String(),
		Status:             string(d.Status),
		CurrentLocation:    d.CurrentLocation,
		ProgressPercentage: d.Progress(),
		TimeRemaining:      d.TimeRemaining(now),
		UpdatedAt:          now,
	}
}
