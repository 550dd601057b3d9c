package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/domain/payment"
	"github.com/jdfresh/backend/internal/domain/shared"
	"github.com/jdfresh/backend/internal/infrastructure/config"
)

const (
	razorpayDefaultBaseURL = "https://api.razorpay.com/v1"
	razorpayOrdersPath     = "/orders"
	razorpayRefundPath     = "/payments/%s/refund"
)

// RazorpayAdapter implements payment.Gateway against the Razorpay API
type RazorpayAdapter struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRazorpayAdapter creates a new Razorpay adapter
func NewRazorpayAdapter(cfg *config.RazorpayConfig, logger *zap.Logger) (*RazorpayAdapter, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, fmt.Errorf("razorpay: key id and key secret are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = razorpayDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &RazorpayAdapter{
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Type returns the gateway type
func (a *RazorpayAdapter) Type() payment.GatewayType {
	return payment.GatewayRazorpay
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateIntent opens a Razorpay order the client pays against
func (a *RazorpayAdapter) CreateIntent(ctx context.Context, req *payment.IntentRequest) (*payment.IntentResponse, error) {
	body := razorpayOrderRequest{
		Amount:   toMinorUnits(req.Amount),
		Currency: req.Currency,
		Receipt:  req.OrderNumber,
		Notes:    map[string]string{"order_id": req.OrderID},
	}

	respBody, err := a.doRequest(ctx, http.MethodPost, razorpayOrdersPath, body)
	if err != nil {
		a.logger.Error("razorpay order creation failed",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return nil, err
	}

	var order razorpayOrderResponse
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("razorpay: failed to parse order response: %w", err)
	}

	return &payment.IntentResponse{
		GatewayReference: order.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		KeyID:            a.keyID,
	}, nil
}

type razorpayRefundRequest struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type razorpayRefundResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// CreateRefund refunds a captured Razorpay payment
func (a *RazorpayAdapter) CreateRefund(ctx context.Context, req *payment.RefundRequest) (*payment.RefundResponse, error) {
	body := razorpayRefundRequest{
		Amount: toMinorUnits(req.Amount),
	}
	if req.Reason != "" {
		body.Notes = map[string]string{"reason": req.Reason}
	}

	path := fmt.Sprintf(razorpayRefundPath, req.GatewayReference)
	respBody, err := a.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		a.logger.Error("razorpay refund failed",
			zap.String("payment_id", req.GatewayReference),
			zap.Error(err))
		return nil, err
	}

	var refund razorpayRefundResponse
	if err := json.Unmarshal(respBody, &refund); err != nil {
		return nil, fmt.Errorf("razorpay: failed to parse refund response: %w", err)
	}

	return &payment.RefundResponse{
		RefundID: refund.ID,
		Amount:   req.Amount,
		Status:   mapRazorpayRefundStatus(refund.Status),
	}, nil
}

// VerifySignature checks the checkout callback signature. Razorpay signs
// "<order_id>|<payment_id>" with the key secret using HMAC-SHA256 and
// sends the hex digest; comparison is constant-time.
func (a *RazorpayAdapter) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(a.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// doRequest performs an authenticated HTTP request to the Razorpay API
func (a *RazorpayAdapter) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("razorpay: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("razorpay: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.keyID, a.keySecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("razorpay: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp razorpayErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Code != "" {
			return nil, fmt.Errorf("%w: %s - %s",
				shared.ErrGatewayUnavailable, errResp.Error.Code, errResp.Error.Description)
		}
		return nil, fmt.Errorf("%w: HTTP %d", shared.ErrGatewayUnavailable, resp.StatusCode)
	}

	return respBody, nil
}

func mapRazorpayRefundStatus(status string) payment.RefundStatus {
	switch status {
	case "processed":
		return payment.RefundCompleted
	case "pending":
		return payment.RefundPending
	default:
		return payment.RefundFailed
	}
}

var _ payment.Gateway = (*RazorpayAdapter)(nil)
