package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/domain/shared"
	"github.com/jdfresh/backend/internal/infrastructure/config"
)

func newTestRazorpayAdapter(t *testing.T, serverURL string) *RazorpayAdapter {
	adapter, err := NewRazorpayAdapter(&config.RazorpayConfig{
		KeyID:     "rzp_test_key",
		KeySecret: "test_secret",
		BaseURL:   serverURL,
		Timeout:   5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return adapter
}

func TestNewRazorpayAdapter(t *testing.T) {
	t.Run("requires credentials", func(t *testing.T) {
		_, err := NewRazorpayAdapter(&config.RazorpayConfig{KeyID: "rzp_test_key"}, nil)
		require.Error(t, err)
	})

	t.Run("defaults the base URL", func(t *testing.T) {
		adapter, err := NewRazorpayAdapter(&config.RazorpayConfig{
			KeyID: "rzp_test_key", KeySecret: "test_secret",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, razorpayDefaultBaseURL, adapter.baseURL)
		assert.Equal(t, payment.GatewayRazorpay, adapter.Type())
	})
}

func TestRazorpayAdapter_CreateIntent(t *testing.T) {
	t.Run("opens an order in paise with basic auth", func(t *testing.T) {
		var captured razorpayOrderRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/orders", r.URL.Path)

			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "rzp_test_key", user)
			assert.Equal(t, "test_secret", pass)

			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			json.NewEncoder(w).Encode(razorpayOrderResponse{
				ID: "order_MNO123", Amount: captured.Amount, Currency: "INR", Status: "created",
			})
		}))
		defer server.Close()

		adapter := newTestRazorpayAdapter(t, server.URL)

		resp, err := adapter.CreateIntent(context.Background(), &payment.IntentRequest{
			OrderID:     "7f9c24e5-1fbc-4ad1-88a1-0f6f69d10f3a",
			OrderNumber: "JD000042",
			Amount:      decimal.NewFromFloat(289.50),
			Currency:    "INR",
		})

		require.NoError(t, err)
		assert.Equal(t, "order_MNO123", resp.GatewayReference)
		assert.Equal(t, "rzp_test_key", resp.KeyID)
		assert.Empty(t, resp.ClientSecret)
		assert.Equal(t, int64(28950), captured.Amount)
		assert.Equal(t, "JD000042", captured.Receipt)
	})

	t.Run("maps API errors to gateway unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
		}))
		defer server.Close()

		adapter := newTestRazorpayAdapter(t, server.URL)

		_, err := adapter.CreateIntent(context.Background(), &payment.IntentRequest{
			OrderNumber: "JD000042",
			Amount:      decimal.NewFromInt(1),
			Currency:    "INR",
		})

		assert.ErrorIs(t, err, shared.ErrGatewayUnavailable)
		assert.Contains(t, err.Error(), "amount too small")
	})

	t.Run("maps transport failures to gateway unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		adapter := newTestRazorpayAdapter(t, server.URL)

		_, err := adapter.CreateIntent(context.Background(), &payment.IntentRequest{
			OrderNumber: "JD000042",
			Amount:      decimal.NewFromInt(100),
			Currency:    "INR",
		})

		assert.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	})
}

func TestRazorpayAdapter_CreateRefund(t *testing.T) {
	t.Run("refunds against the payment id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/payments/pay_ABC987/refund", r.URL.Path)
			json.NewEncoder(w).Encode(razorpayRefundResponse{
				ID: "rfnd_XYZ555", Amount: 28950, Status: "processed",
			})
		}))
		defer server.Close()

		adapter := newTestRazorpayAdapter(t, server.URL)

		resp, err := adapter.CreateRefund(context.Background(), &payment.RefundRequest{
			GatewayReference: "pay_ABC987",
			Amount:           decimal.NewFromFloat(289.50),
			Reason:           "order cancelled",
		})

		require.NoError(t, err)
		assert.Equal(t, "rfnd_XYZ555", resp.RefundID)
		assert.Equal(t, payment.RefundCompleted, resp.Status)
	})

	t.Run("reports pending refunds", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(razorpayRefundResponse{ID: "rfnd_XYZ556", Status: "pending"})
		}))
		defer server.Close()

		adapter := newTestRazorpayAdapter(t, server.URL)

		resp, err := adapter.CreateRefund(context.Background(), &payment.RefundRequest{
			GatewayReference: "pay_ABC987",
			Amount:           decimal.NewFromInt(100),
		})

		require.NoError(t, err)
		assert.Equal(t, payment.RefundPending, resp.Status)
	})
}

func TestRazorpayAdapter_VerifySignature(t *testing.T) {
	adapter, err := NewRazorpayAdapter(&config.RazorpayConfig{
		KeyID: "rzp_test_key", KeySecret: "test_secret",
	}, nil)
	require.NoError(t, err)

	orderID := "order_MNO123"
	paymentID := "pay_ABC987"

	mac := hmac.New(sha256.New, []byte("test_secret"))
	mac.Write([]byte(orderID + "|" + paymentID))
	valid := hex.EncodeToString(mac.Sum(nil))

	t.Run("accepts the correct digest", func(t *testing.T) {
		assert.True(t, adapter.VerifySignature(orderID, paymentID, valid))
	})

	t.Run("rejects a tampered digest", func(t *testing.T) {
		assert.False(t, adapter.VerifySignature(orderID, paymentID, "deadbeef"+valid[8:]))
		assert.False(t, adapter.VerifySignature(orderID, paymentID, "not-a-digest"))
	})

	t.Run("rejects a digest for different identifiers", func(t *testing.T) {
		assert.False(t, adapter.VerifySignature(orderID, "pay_OTHER", valid))
	})

	t.Run("rejects an empty signature", func(t *testing.T) {
		assert.False(t, adapter.VerifySignature(orderID, paymentID, ""))
	})
}
