package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	paymentapp "github.com/jdfresh/backend/internal/application/payment"
	"github.com/jdfresh/backend/internal/infrastructure/config"
	"github.com/jdfresh/backend/internal/interfaces/http/dto"
)

// maxWebhookPayloadSize limits webhook body size. Stripe events are
// small; anything larger is rejected.
const maxWebhookPayloadSize = 65536

// StripeWebhookHandler handles incoming Stripe webhook notifications
type StripeWebhookHandler struct {
	BaseHandler
	service       *paymentapp.Service
	webhookSecret string
}

// NewStripeWebhookHandler creates a new Stripe webhook handler
func NewStripeWebhookHandler(service *paymentapp.Service, cfg *config.StripeConfig, logger *zap.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		BaseHandler:   NewBaseHandler(logger),
		service:       service,
		webhookSecret: cfg.WebhookSecret,
	}
}

// StripeWebhookResponse acknowledges a webhook delivery
type StripeWebhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Handle handles POST /api/v1/payments/stripe/webhook.
// The signature is verified against the raw body before anything is
// parsed. Processing failures still return 200 so Stripe stops
// retrying; the failure is logged for operators instead.
func (h *StripeWebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		h.Error(c, dto.ErrCodeBadRequest, "Failed to read request body")
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge,
			dto.NewErrorResponse(dto.ErrCodeBadRequest, "Payload too large"))
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.Error(c, dto.ErrCodeUnauthorized, "Missing Stripe-Signature header")
		return
	}

	event, err := webhook.ConstructEvent(payload, signature, h.webhookSecret)
	if err != nil {
		h.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized,
			dto.NewErrorResponse(dto.ErrCodeInvalidSignature, "Webhook signature verification failed"))
		return
	}

	parsed, err := parseStripeEvent(&event)
	if err != nil {
		h.logger.Warn("Failed to parse Stripe event payload",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		// Acknowledge events we cannot parse; retrying will not help
		c.JSON(http.StatusOK, StripeWebhookResponse{
			Received: true,
			EventID:  event.ID,
			Message:  "Event ignored",
		})
		return
	}

	if err := h.service.ProcessStripeEvent(c.Request.Context(), parsed); err != nil {
		h.logger.Error("Stripe webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		c.JSON(http.StatusOK, StripeWebhookResponse{
			Received:  true,
			EventID:   event.ID,
			EventType: string(event.Type),
			Message:   "Event received but processing failed",
		})
		return
	}

	c.JSON(http.StatusOK, StripeWebhookResponse{
		Received:  true,
		EventID:   event.ID,
		EventType: string(event.Type),
	})
}

// parseStripeEvent extracts the fields the payment service needs from a
// verified event envelope
func parseStripeEvent(event *stripe.Event) (*paymentapp.StripeEvent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, err
	}

	parsed := &paymentapp.StripeEvent{
		ID:       event.ID,
		Type:     string(event.Type),
		IntentID: intent.ID,
	}

	if intent.LatestCharge != nil &&
		intent.LatestCharge.PaymentMethodDetails != nil &&
		intent.LatestCharge.PaymentMethodDetails.Card != nil {
		parsed.CardLast4 = intent.LatestCharge.PaymentMethodDetails.Card.Last4
		parsed.CardBrand = string(intent.LatestCharge.PaymentMethodDetails.Card.Brand)
	}

	return parsed, nil
}
