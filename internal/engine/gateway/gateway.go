// Package gateway is the facade the rest of the application calls for job
// status transitions, payment collection and processor webhooks.
package gateway

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fieldservice-engine/internal/common/errors"
	"fieldservice-engine/internal/common/logger"
	"fieldservice-engine/internal/common/metrics"
	"fieldservice-engine/internal/common/observability"
	"fieldservice-engine/internal/engine/models"
	"fieldservice-engine/internal/engine/payments"
	"fieldservice-engine/internal/engine/processor"
	"fieldservice-engine/internal/engine/state"
)

// webhookDedupTTL keeps dedup keys long enough to outlive any rail's
// re-delivery schedule.
const webhookDedupTTL = 24 * time.Hour

// AdapterRegistry resolves adapters per channel and enumerates them for
// webhook verification, where the sending rail is unknown until a
// signature matches.
type AdapterRegistry interface {
	processor.Resolver
	Adapters() []processor.Adapter
}

// Notifier is the slice of the notify package the gateway depends on.
type Notifier interface {
	PaymentReceived(ctx context.Context, companyID, customerName string, amountCents int64)
}

// LedgerRecorder is the slice of the ledger package used by webhook and
// refund handling.
type LedgerRecorder interface {
	MarkDelivered(ctx context.Context, externalID string) (bool, error)
	RecordRefund(ctx context.Context, paymentID string, amount int64) error
}

type Gateway struct {
	db       *sql.DB
	redis    *redis.Client
	router   *payments.Router
	ledger   LedgerRecorder
	registry AdapterRegistry
	notifier Notifier
	obs      *observability.Observability
	logger   logger.Logger
}

func New(db *sql.DB, redisClient *redis.Client, router *payments.Router, recorder LedgerRecorder,
	registry AdapterRegistry, notifier Notifier, obs *observability.Observability, log logger.Logger) *Gateway {
	return &Gateway{
		db:       db,
		redis:    redisClient,
		router:   router,
		ledger:   recorder,
		registry: registry,
		notifier: notifier,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "gateway"}),
	}
}

// CollectResponse is returned to callers on a successful collection.
type CollectResponse struct {
	PaymentID     string `json:"paymentId"`
	TransactionID string `json:"transactionId"`
	InvoiceStatus string `json:"invoiceStatus"`
}

// WebhookResult reports how an accepted webhook was handled. Rejections
// surface as security errors instead.
type WebhookResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// TransitionJobStatus validates and, when allowed, persists a job status
// change. Concurrent transition requests on the same job are serialized by
// a per-job advisory lock so the validator always evaluates a consistent
// current status. Denials never mutate state.
func (g *Gateway) TransitionJobStatus(ctx context.Context, jobID, requestedStatus string) (*state.Result, error) {
	start := time.Now()
	defer func() { g.recordOp(ctx, "transition", start) }()

	requested, err := state.ParseStatus(requestedStatus)
	if err != nil {
		return &state.Result{Allowed: false, Reason: err.Error()}, nil
	}

	lockKey := "lock:job:" + jobID
	token, ok := g.acquireLock(ctx, lockKey)
	if !ok {
		return nil, errors.NewLockContentionError(lockKey)
	}
	defer g.releaseLock(ctx, lockKey, token)

	rec, err := g.loadJobRecord(ctx, jobID)
	if err != nil {
		return nil, err
	}

	current, err := state.ParseStatus(rec.job.Status)
	if err != nil {
		return nil, errors.NewDatabaseError("load job", err)
	}

	result := state.Validate(current, requested, rec.snap)

	outcome := "denied"
	if result.Allowed {
		outcome = "allowed"
	}
	metrics.TransitionsEvaluated.WithLabelValues(string(current), string(requested), outcome).Inc()

	if !result.Allowed {
		g.logger.Info("transition denied", map[string]interface{}{
			"jobId":  jobID,
			"from":   current,
			"to":     requested,
			"reason": result.Reason,
		})
		return &result, nil
	}

	// Same-status requests are allowed no-ops; nothing to persist.
	if current != requested {
		if err := g.updateJobStatus(ctx, jobID, current, requested); err != nil {
			return nil, err
		}
	}

	g.logger.Info("transition applied", map[string]interface{}{
		"jobId":    jobID,
		"from":     current,
		"to":       requested,
		"warnings": result.Warnings,
	})
	return &result, nil
}

// CollectPayment runs one collection attempt against an invoice. A
// per-invoice advisory lock pairs with the ledger's conditional update to
// prevent concurrent double-collection.
func (g *Gateway) CollectPayment(ctx context.Context, invoiceID, method string, amountCents int64, meta map[string]interface{}) (*CollectResponse, error) {
	start := time.Now()
	defer func() { g.recordOp(ctx, "collect", start) }()

	lockKey := "lock:invoice:" + invoiceID
	token, ok := g.acquireLock(ctx, lockKey)
	if !ok {
		return nil, errors.NewLockContentionError(lockKey)
	}
	defer g.releaseLock(ctx, lockKey, token)

	invoice, err := g.loadInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	req := payments.CollectRequest{
		Method:      method,
		AmountCents: amountCents,
		Metadata:    meta,
	}
	if v, ok := meta["check_number"].(string); ok {
		req.CheckNumber = v
	}
	if v, ok := meta["processed_by"].(string); ok {
		req.ProcessedBy = v
	}

	result, err := g.router.Collect(ctx, invoice, req)
	if err != nil {
		return nil, err
	}

	if g.notifier != nil {
		g.notifier.PaymentReceived(ctx, invoice.CompanyID, g.customerName(ctx, invoice.CustomerID), amountCents)
	}

	return &CollectResponse{
		PaymentID:     result.PaymentID,
		TransactionID: result.TransactionID,
		InvoiceStatus: result.InvoiceStatus,
	}, nil
}

// HandleProcessorWebhook verifies and applies one inbound rail webhook.
// Verification fails closed: rejections return a non-retryable security
// error so the transport layer answers with a 4xx and the rail stops
// re-delivering an unverifiable payload. Re-delivered valid events are
// accepted no-ops.
func (g *Gateway) HandleProcessorWebhook(ctx context.Context, rawPayload []byte, signatureHeader string) (*WebhookResult, error) {
	start := time.Now()
	defer func() { g.recordOp(ctx, "webhook", start) }()

	correlationID := uuid.New().String()
	log := g.logger.WithFields(map[string]interface{}{"correlationId": correlationID})

	if !g.verifyAgainstAnyRail(rawPayload, signatureHeader) {
		metrics.WebhooksReceived.WithLabelValues("invalid_signature").Inc()
		log.Warn("webhook rejected: signature verification failed", nil)
		return nil, errors.NewWebhookSignatureInvalidError()
	}

	// Signature validity and payload freshness are independent checks: a
	// correctly signed but stale payload is still rejected.
	if err := processor.CheckReplayWindow(rawPayload, time.Now().UTC()); err != nil {
		metrics.WebhooksReceived.WithLabelValues("stale_timestamp").Inc()
		log.Warn("webhook rejected: replay window", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	event, err := processor.ParseWebhookEvent(rawPayload)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("invalid_payload").Inc()
		log.Warn("webhook rejected: payload validation", map[string]interface{}{"error": err.Error()})
		return nil, errors.NewWebhookPayloadInvalidError(err.Error())
	}

	dedupKey := "webhook:evt:" + event.EventType + ":" + event.TransactionID
	fresh, err := g.redis.SetNX(ctx, dedupKey, correlationID, webhookDedupTTL).Result()
	if err != nil {
		return nil, errors.NewDatabaseError("webhook dedup", err)
	}
	if !fresh {
		metrics.WebhooksReceived.WithLabelValues("duplicate").Inc()
		log.Info("webhook re-delivery ignored", map[string]interface{}{
			"eventType":     event.EventType,
			"transactionId": event.TransactionID,
		})
		return &WebhookResult{Accepted: true, Reason: "duplicate"}, nil
	}

	if err := g.applyWebhookEvent(ctx, event, log); err != nil {
		// Release the dedup key so a later re-delivery can retry once the
		// underlying record exists.
		g.redis.Del(ctx, dedupKey)
		metrics.WebhooksReceived.WithLabelValues("apply_failed").Inc()
		return nil, err
	}

	metrics.WebhooksReceived.WithLabelValues("accepted").Inc()
	return &WebhookResult{Accepted: true}, nil
}

func (g *Gateway) applyWebhookEvent(ctx context.Context, event *processor.WebhookEvent, log logger.Logger) error {
	switch event.EventType {
	case processor.EventPaymentSettled, processor.EventPaymentFailed:
		matched, err := g.ledger.MarkDelivered(ctx, event.TransactionID)
		if err != nil {
			return err
		}
		if !matched {
			return errors.NewRecordNotFoundError("processor transaction", event.TransactionID)
		}
		log.Info("webhook applied", map[string]interface{}{
			"eventType":     event.EventType,
			"transactionId": event.TransactionID,
		})
		return nil

	case processor.EventPaymentRefunded:
		paymentID, err := g.paymentIDForTransaction(ctx, event.TransactionID)
		if err != nil {
			return err
		}
		if err := g.ledger.RecordRefund(ctx, paymentID, event.Amount); err != nil {
			return err
		}
		if _, err := g.ledger.MarkDelivered(ctx, event.TransactionID); err != nil {
			return err
		}
		log.Info("refund webhook applied", map[string]interface{}{
			"paymentId":     paymentID,
			"transactionId": event.TransactionID,
			"amount":        event.Amount,
		})
		return nil
	}

	// Unreachable with a schema-validated event type.
	return errors.NewWebhookPayloadInvalidError("unsupported event type " + event.EventType)
}

// verifyAgainstAnyRail checks the signature against every configured rail.
// With per-channel secrets the sender identifies itself by which secret
// verifies.
func (g *Gateway) verifyAgainstAnyRail(rawPayload []byte, signatureHeader string) bool {
	for _, adapter := range g.registry.Adapters() {
		if adapter.VerifyWebhook(rawPayload, signatureHeader) {
			return true
		}
	}
	return false
}

// RefundPayment refunds part or all of a completed payment, routing
// processor-backed payments through their rail first. A per-payment
// advisory lock pairs with the ledger's conditional update so concurrent
// refunds cannot both pass validation against the same stale
// refunded_amount.
func (g *Gateway) RefundPayment(ctx context.Context, paymentID string, amountCents int64) error {
	start := time.Now()
	defer func() { g.recordOp(ctx, "refund", start) }()

	if amountCents <= 0 {
		return errors.NewInvalidAmountError("refund amount must be greater than 0")
	}

	lockKey := "lock:payment:" + paymentID
	token, ok := g.acquireLock(ctx, lockKey)
	if !ok {
		return errors.NewLockContentionError(lockKey)
	}
	defer g.releaseLock(ctx, lockKey, token)

	payment, err := g.loadPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentStatusCompleted && payment.Status != models.PaymentStatusRefunded {
		return errors.NewInvalidRefundError("payment status is " + payment.Status)
	}
	if payment.RefundedAmount+amountCents > payment.Amount {
		return errors.NewInvalidRefundError("refund exceeds remaining refundable amount")
	}

	if payment.PaymentMethod == models.PaymentMethodCard || payment.PaymentMethod == models.PaymentMethodACH {
		channel := processor.ChannelOnline
		if payment.PaymentMethod == models.PaymentMethodACH {
			channel = processor.ChannelACH
		}
		adapter, ok := g.registry.AdapterFor(payment.CompanyID, channel)
		if ok {
			externalID, err := g.externalTransactionForPayment(ctx, paymentID)
			if err != nil {
				return err
			}
			result, err := adapter.RefundPayment(ctx, processor.RefundRequest{
				TransactionID: externalID,
				Amount:        amountCents,
				Currency:      payment.Currency,
			})
			if err != nil {
				return errors.NewProcessorUnavailableError(err)
			}
			if result.Status != processor.ResultSucceeded && result.Status != processor.ResultPending {
				return errors.NewProcessorDeclinedError(result.FailureMessage)
			}
		}
	}

	return g.ledger.RecordRefund(ctx, paymentID, amountCents)
}

func (g *Gateway) recordOp(ctx context.Context, operation string, start time.Time) {
	if g.obs != nil {
		g.obs.RecordDuration(ctx, operation, time.Since(start))
	}
}
