package processor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Webhook event types the engine reacts to.
const (
	EventPaymentSettled  = "payment.settled"
	EventPaymentFailed   = "payment.failed"
	EventPaymentRefunded = "payment.refunded"
)

// WebhookEvent is a verified, decoded processor webhook.
type WebhookEvent struct {
	EventType     string `json:"event_type"`
	TransactionID string `json:"transaction_id"`
	Timestamp     string `json:"timestamp,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

const webhookSchema = `{
	"type": "object",
	"properties": {
		"event_type": {
			"type": "string",
			"enum": ["payment.settled", "payment.failed", "payment.refunded"]
		},
		"transaction_id": {"type": "string", "minLength": 1},
		"timestamp": {"type": "string"},
		"amount": {"type": "integer", "minimum": 0},
		"failure_reason": {"type": "string"}
	},
	"required": ["event_type", "transaction_id"]
}`

var webhookSchemaLoader = gojsonschema.NewStringLoader(webhookSchema)

// ParseWebhookEvent validates rawPayload against the webhook schema and
// decodes it. Signature and replay checks happen before this is called.
func ParseWebhookEvent(rawPayload []byte) (*WebhookEvent, error) {
	result, err := gojsonschema.Validate(webhookSchemaLoader, gojsonschema.NewBytesLoader(rawPayload))
	if err != nil {
		return nil, fmt.Errorf("webhook payload is not valid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("webhook payload failed schema validation: %s", strings.Join(msgs, "; "))
	}

	var event WebhookEvent
	if err := json.Unmarshal(rawPayload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	return &event, nil
}
