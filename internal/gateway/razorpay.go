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

	"github.com/rs/zerolog"

	"trekbook/internal/models"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// RazorpayClient implements PaymentGateway against the Razorpay REST API.
// Signature verification is purely local, no network round trip.
type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	retries    int
	logger     *zerolog.Logger
}

func NewRazorpayClient(keyID, keySecret string, logger *zerolog.Logger) *RazorpayClient {
	return &RazorpayClient{
		baseURL:   defaultBaseURL,
		keyID:     keyID,
		keySecret: keySecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		retries: 2,
		logger:  logger,
	}
}

// WithBaseURL points the client at a different endpoint. Tests use it.
func (c *RazorpayClient) WithBaseURL(url string) *RazorpayClient {
	c.baseURL = url
	return c
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*models.PaymentOrder, error) {
	if currency == "" {
		currency = models.DefaultCurrency
	}
	body := map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}

	var resp struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Receipt  string `json:"receipt"`
		Status   string `json:"status"`
	}
	if err := c.post(ctx, "/orders", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug().Str("order_id", resp.ID).Int64("amount", amount).Msg("gateway order created")
	return &models.PaymentOrder{
		ID:       resp.ID,
		Amount:   resp.Amount,
		Currency: resp.Currency,
		Receipt:  resp.Receipt,
		Status:   resp.Status,
	}, nil
}

// VerifySignature checks the checkout callback signature:
// hex(HMAC-SHA256(order_id + "|" + payment_id, key_secret)).
func (c *RazorpayClient) VerifySignature(orderRef, paymentRef, signature string) error {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(orderRef + "|" + paymentRef))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrVerificationFailed
	}
	return nil
}

func (c *RazorpayClient) CreateRefund(ctx context.Context, paymentRef string, amount int64) (*models.PaymentRefund, error) {
	body := map[string]any{
		"amount": amount,
	}

	var resp struct {
		ID        string `json:"id"`
		PaymentID string `json:"payment_id"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	}
	if err := c.post(ctx, "/payments/"+paymentRef+"/refund", body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("refund_id", resp.ID).
		Str("payment_ref", paymentRef).
		Int64("amount", amount).
		Msg("gateway refund created")
	return &models.PaymentRefund{
		ID:         resp.ID,
		PaymentRef: resp.PaymentID,
		Amount:     resp.Amount,
		Status:     resp.Status,
	}, nil
}

// post sends an authenticated JSON request, retrying transport errors and
// 5xx responses with a short linear backoff.
func (c *RazorpayClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.SetBasicAuth(c.keyID, c.keySecret)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
			c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("gateway server error, retrying")
			continue
		case resp.StatusCode >= 400:
			return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, string(data))
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
		return nil
	}
	return lastErr
}
