package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	deliveryapp "github.com/jdfresh/backend/internal/application/delivery"
	"github.com/jdfresh/backend/internal/infrastructure/realtime"
)

// DeliveryHandler handles delivery run and live tracking endpoints
type DeliveryHandler struct {
	BaseHandler
	service *deliveryapp.Service
	hub     *realtime.Hub
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(service *deliveryapp.Service, hub *realtime.Hub, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
		hub:         hub,
	}
}

// Assign handles POST /api/v1/deliveries/assign
func (h *DeliveryHandler) Assign(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req deliveryapp.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.Assign(c.Request.Context(), actor, &req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// Accept handles POST /api/v1/deliveries/:id/accept
func (h *DeliveryHandler) Accept(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.Accept(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// PickedUp handles POST /api/v1/deliveries/:id/picked-up
func (h *DeliveryHandler) PickedUp(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.MarkPickedUp(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// InTransit handles POST /api/v1/deliveries/:id/in-transit
func (h *DeliveryHandler) InTransit(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.MarkInTransit(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// UpdateLocation handles POST /api/v1/deliveries/:id/location
func (h *DeliveryHandler) UpdateLocation(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req deliveryapp.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.UpdateLocation(c.Request.Context(), actor, id, &req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Delivered handles POST /api/v1/deliveries/:id/delivered
func (h *DeliveryHandler) Delivered(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req deliveryapp.ProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.MarkDelivered(c.Request.Context(), actor, id, &req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Rate handles POST /api/v1/deliveries/orders/:id/rate
func (h *DeliveryHandler) Rate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}

	var req deliveryapp.RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.Rate(c.Request.Context(), actor, orderID, &req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Active handles GET /api/v1/deliveries/active. Returns the agent's
// current runs.
func (h *DeliveryHandler) Active(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	resp, err := h.service.ActiveDeliveries(c.Request.Context(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetByOrder handles GET /api/v1/deliveries/orders/:id
func (h *DeliveryHandler) GetByOrder(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetByOrderID(c.Request.Context(), actor, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Track handles GET /api/v1/orders/:id/track. It authorizes the caller
// against the order, then upgrades the connection to a WebSocket joined
// to the order's tracking room.
func (h *DeliveryHandler) Track(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	orderID, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.service.AuthorizeTracking(c.Request.Context(), actor, orderID); err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.hub.Serve(c.Writer, c.Request, orderID, actor); err != nil {
		h.logger.Warn("Tracking connection failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}
}
