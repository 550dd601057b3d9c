package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jdfresh/backend/internal/infrastructure/config"
)

const testWebhookSecret = "whsec_test_secret"

func newWebhookRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewStripeWebhookHandler(nil, &config.StripeConfig{WebhookSecret: testWebhookSecret}, nil)
	engine := gin.New()
	engine.POST("/webhook", h.Handle)
	return engine
}

// signPayload computes a Stripe-Signature header the way Stripe does:
// HMAC-SHA256 over "<timestamp>.<payload>"
func signPayload(payload []byte, secret string) string {
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhook_MissingSignature(t *testing.T) {
	engine := newWebhookRouter()

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Stripe-Signature")
}

func TestStripeWebhook_PayloadTooLarge(t *testing.T) {
	engine := newWebhookRouter()

	payload := bytes.Repeat([]byte("a"), maxWebhookPayloadSize+1)
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	engine := newWebhookRouter()

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_INVALID_SIGNATURE")
}

func TestStripeWebhook_TamperedPayload(t *testing.T) {
	engine := newWebhookRouter()

	original := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	signature := signPayload(original, testWebhookSecret)

	tampered := []byte(`{"id":"evt_2","type":"payment_intent.succeeded"}`)
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(tampered))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
