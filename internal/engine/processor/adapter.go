// Package processor defines the adapter contract for external payment rails
// and the HMAC verification of their inbound webhooks.
package processor

import "context"

// Payment result statuses normalized across rails.
const (
	ResultSucceeded      = "succeeded"
	ResultFailed         = "failed"
	ResultRequiresAction = "requires_action"
	ResultPending        = "pending"
)

// Channels a payment can travel through.
const (
	ChannelManual = "manual"
	ChannelOnline = "online"
	ChannelACH    = "ach"
)

// PaymentRequest describes one charge against an external rail.
type PaymentRequest struct {
	Amount     int64                  `json:"amount"` // cents
	Currency   string                 `json:"currency"`
	InvoiceID  string                 `json:"invoiceId"`
	CustomerID string                 `json:"customerId"`
	Channel    string                 `json:"channel"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// RefundRequest describes a full or partial refund of a prior charge.
type RefundRequest struct {
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount"` // cents
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
}

// PaymentResult is the normalized outcome of a rail call.
type PaymentResult struct {
	Status         string `json:"status"`
	TransactionID  string `json:"transactionId"`
	FailureMessage string `json:"failureMessage,omitempty"`
	ProcessorFee   int64  `json:"processorFee"` // cents
}

// Adapter executes charges and refunds against one external rail and
// verifies that rail's inbound webhooks.
type Adapter interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*PaymentResult, error)
	GetPaymentStatus(ctx context.Context, transactionID string) (string, error)
	// VerifyWebhook reports whether signatureHeader is a valid HMAC-SHA256
	// digest of rawPayload. It fails closed and never panics. A stale
	// timestamp inside the payload does not affect this check; callers
	// reject replays independently.
	VerifyWebhook(rawPayload []byte, signatureHeader string) bool
}

// Resolver returns the adapter configured for a company on the given
// channel, or false when none is configured.
type Resolver interface {
	AdapterFor(companyID, channel string) (Adapter, bool)
}
