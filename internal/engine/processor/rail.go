package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fieldservice-engine/internal/common/httpclient"
	"fieldservice-engine/internal/common/logger"
)

// RailAdapter talks to one HMAC-signed HTTP payment rail. One instance is
// configured per channel (online card processor, ACH rail).
type RailAdapter struct {
	name    string
	baseURL string
	apiKey  string
	secret  []byte
	client  *httpclient.Client
	logger  logger.Logger
}

// RailOptions configures a RailAdapter.
type RailOptions struct {
	Name          string
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

func NewRailAdapter(opts RailOptions, log logger.Logger) *RailAdapter {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RailAdapter{
		name:    opts.Name,
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		secret:  []byte(opts.WebhookSecret),
		client:  httpclient.NewClient(timeout),
		logger:  log.WithFields(map[string]interface{}{"rail": opts.Name}),
	}
}

// railResponse is the wire shape shared by charge and refund endpoints.
type railResponse struct {
	Status         string `json:"status"`
	TransactionID  string `json:"transaction_id"`
	FailureMessage string `json:"failure_message"`
	Fee            int64  `json:"fee"`
}

func (a *RailAdapter) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	return a.post(ctx, "/v1/charges", req)
}

func (a *RailAdapter) RefundPayment(ctx context.Context, req RefundRequest) (*PaymentResult, error) {
	return a.post(ctx, "/v1/refunds", req)
}

func (a *RailAdapter) GetPaymentStatus(ctx context.Context, transactionID string) (string, error) {
	httpReq, err := http.NewRequest(http.MethodGet, a.baseURL+"/v1/charges/"+transactionID, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.DoWithContext(ctx, httpReq)
	if err != nil {
		return "", fmt.Errorf("rail status request failed: %w", err)
	}
	defer resp.Body.Close()

	var out railResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode rail status response: %w", err)
	}
	return normalizeStatus(out.Status), nil
}

func (a *RailAdapter) VerifyWebhook(rawPayload []byte, signatureHeader string) bool {
	if len(a.secret) == 0 {
		// Fail closed: an unconfigured secret must never silently accept.
		a.logger.Warn("webhook secret not configured, rejecting webhook", nil)
		return false
	}
	if signatureHeader == "" {
		return false
	}
	return verifySignature(a.secret, rawPayload, signatureHeader)
}

func (a *RailAdapter) post(ctx context.Context, path string, payload interface{}) (*PaymentResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode rail request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.DoWithContext(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("rail request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rail response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("rail returned %d: %s", resp.StatusCode, respBody)
	}

	var out railResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode rail response: %w", err)
	}

	result := &PaymentResult{
		Status:         normalizeStatus(out.Status),
		TransactionID:  out.TransactionID,
		FailureMessage: out.FailureMessage,
		ProcessorFee:   out.Fee,
	}

	a.logger.Debug("rail call completed", map[string]interface{}{
		"path":          path,
		"status":        result.Status,
		"transactionId": result.TransactionID,
	})

	return result, nil
}

// normalizeStatus maps rail-specific status strings onto the engine's
// vocabulary.
func normalizeStatus(s string) string {
	switch s {
	case "succeeded", "success", "completed", "captured", "settled":
		return ResultSucceeded
	case "requires_action", "pending_sca", "challenge":
		return ResultRequiresAction
	case "pending", "processing", "submitted":
		return ResultPending
	default:
		return ResultFailed
	}
}
