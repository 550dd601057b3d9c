package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	paymentapp "github.com/jdfresh/backend/internal/application/payment"
)

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	BaseHandler
	service *paymentapp.Service
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(service *paymentapp.Service, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// CreateIntent handles POST /api/v1/payments/intent
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req paymentapp.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.CreateIntent(c.Request.Context(), actor, &req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// VerifyRazorpay handles POST /api/v1/payments/razorpay/verify
func (h *PaymentHandler) VerifyRazorpay(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req paymentapp.VerifyRazorpayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.VerifyRazorpay(c.Request.Context(), actor, &req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Refund handles POST /api/v1/payments/refund
func (h *PaymentHandler) Refund(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var req paymentapp.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleValidationError(c, err)
		return
	}

	resp, err := h.service.Refund(c.Request.Context(), actor, &req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// SettleCOD handles POST /api/v1/payments/orders/:id/settle-cod
func (h *PaymentHandler) SettleCOD(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.SettleCOD(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetByOrder handles GET /api/v1/payments/orders/:id
func (h *PaymentHandler) GetByOrder(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetByOrderID(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}
