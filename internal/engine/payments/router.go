// Package payments routes a collection attempt through the manual recording
// path or a configured processor rail, then commits the result to the ledger.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fieldservice-engine/internal/common/errors"
	"fieldservice-engine/internal/common/logger"
	"fieldservice-engine/internal/common/metrics"
	"fieldservice-engine/internal/engine/ledger"
	"fieldservice-engine/internal/engine/models"
	"fieldservice-engine/internal/engine/processor"
)

// Environment conditions the no-processor fallback. It is passed in
// explicitly so the router never reads ambient process state.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// ParseEnvironment maps a config string onto an Environment, defaulting to
// production so a misconfigured deployment fails safe.
func ParseEnvironment(s string) Environment {
	switch Environment(s) {
	case EnvDevelopment, EnvStaging:
		return Environment(s)
	default:
		return EnvProduction
	}
}

// CollectRequest describes one collection attempt against an invoice.
type CollectRequest struct {
	Method      string
	AmountCents int64
	CheckNumber string
	ProcessedBy string
	Metadata    map[string]interface{}
}

// CollectResult is returned on a successful collection.
type CollectResult struct {
	PaymentID     string
	TransactionID string
	InvoiceStatus string
}

// TrustAdjuster is the slice of the trust package the router depends on.
type TrustAdjuster interface {
	Reward(ctx context.Context, companyID string, amountCents int64)
	Penalize(ctx context.Context, companyID string, amountCents int64)
}

// LedgerWriter is the slice of the ledger package the router depends on.
type LedgerWriter interface {
	Commit(ctx context.Context, entry ledger.Entry) (*ledger.CommitResult, error)
	RecordAttempt(ctx context.Context, tx models.ProcessorTransaction) error
}

type Router struct {
	env      Environment
	resolver processor.Resolver
	trust    TrustAdjuster
	ledger   LedgerWriter
	logger   logger.Logger
}

func NewRouter(env Environment, resolver processor.Resolver, adjuster TrustAdjuster, writer LedgerWriter, log logger.Logger) *Router {
	return &Router{
		env:      env,
		resolver: resolver,
		trust:    adjuster,
		ledger:   writer,
		logger:   log.WithFields(map[string]interface{}{"component": "payments"}),
	}
}

// channelFor maps a payment method onto the rail channel it requires.
// Cash and check are recorded manually and never leave the system.
func channelFor(method string) (string, error) {
	switch method {
	case models.PaymentMethodCash, models.PaymentMethodCheck:
		return processor.ChannelManual, nil
	case models.PaymentMethodCard:
		return processor.ChannelOnline, nil
	case models.PaymentMethodACH:
		return processor.ChannelACH, nil
	default:
		return "", fmt.Errorf("unsupported payment method %q", method)
	}
}

// Collect runs one collection attempt end to end: channel selection,
// optional rail call with trust side effects, then the ledger commit.
func (r *Router) Collect(ctx context.Context, invoice *models.Invoice, req CollectRequest) (*CollectResult, error) {
	if invoice.Status == models.InvoiceStatusPaid {
		metrics.PaymentsFailed.WithLabelValues(req.Method, string(errors.ErrCodeInvoiceAlreadyPaid)).Inc()
		return nil, errors.NewInvoiceAlreadyPaidError(invoice.ID)
	}
	if req.AmountCents <= 0 {
		metrics.PaymentsFailed.WithLabelValues(req.Method, string(errors.ErrCodeInvalidAmount)).Inc()
		return nil, errors.NewInvalidAmountError(fmt.Sprintf("got %d cents", req.AmountCents))
	}

	channel, err := channelFor(req.Method)
	if err != nil {
		metrics.PaymentsFailed.WithLabelValues(req.Method, string(errors.ErrCodeInvalidAmount)).Inc()
		return nil, errors.NewInvalidAmountError(err.Error())
	}

	if req.Method == models.PaymentMethodCheck && req.CheckNumber == "" {
		// Accepted without a check number; surfacing it is a UI concern.
		r.logger.Debug("check payment recorded without check number", map[string]interface{}{
			"invoiceId": invoice.ID,
		})
	}

	var (
		transactionID string
		processorType string
		processorFee  int64
	)

	if channel == processor.ChannelManual {
		transactionID = "manual-" + uuid.New().String()
		processorType = models.ProcessorTypeManual
	} else {
		transactionID, processorFee, err = r.processViaRail(ctx, invoice, req, channel)
		if err != nil {
			metrics.PaymentsFailed.WithLabelValues(req.Method, string(errors.CodeOf(err))).Inc()
			return nil, err
		}
		if req.Method == models.PaymentMethodACH {
			processorType = models.ProcessorTypeACH
		} else {
			processorType = models.ProcessorTypeCard
		}
	}

	currency := invoice.Currency
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	payment := models.Payment{
		ID:            uuid.New().String(),
		CompanyID:     invoice.CompanyID,
		CustomerID:    invoice.CustomerID,
		InvoiceID:     invoice.ID,
		JobID:         invoice.JobID,
		PaymentNumber: fmt.Sprintf("PAY-%d", now.UnixMilli()),
		Amount:        req.AmountCents,
		Currency:      currency,
		PaymentMethod: req.Method,
		Status:        models.PaymentStatusCompleted,
		CheckNumber:   req.CheckNumber,
		NetAmount:     req.AmountCents - processorFee,
		ProcessorFee:  processorFee,
		ProcessedBy:   req.ProcessedBy,
		ProcessedAt:   now,
	}

	// The payment id rides in the transaction metadata so refund webhooks,
	// which only carry the rail's transaction id, can be resolved back to
	// the payment they touch.
	txMeta := make(map[string]interface{}, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		txMeta[k] = v
	}
	txMeta["payment_id"] = payment.ID

	transaction := models.ProcessorTransaction{
		ID:            uuid.New().String(),
		CompanyID:     invoice.CompanyID,
		InvoiceID:     invoice.ID,
		ProcessorType: processorType,
		TransactionID: transactionID,
		Amount:        req.AmountCents,
		Status:        models.TransactionStatusSuccess,
		Channel:       channel,
		Metadata:      txMeta,
		CreatedAt:     now,
	}

	commit, err := r.ledger.Commit(ctx, ledger.Entry{Payment: payment, Transaction: transaction})
	if err != nil {
		metrics.PaymentsFailed.WithLabelValues(req.Method, string(errors.CodeOf(err))).Inc()
		return nil, err
	}

	metrics.PaymentsCollected.WithLabelValues(req.Method, channel).Inc()
	metrics.PaymentAmount.WithLabelValues(req.Method).Observe(float64(req.AmountCents))

	r.logger.Info("payment collected", map[string]interface{}{
		"paymentId":     payment.ID,
		"invoiceId":     invoice.ID,
		"method":        req.Method,
		"channel":       channel,
		"amount":        req.AmountCents,
		"invoiceStatus": commit.InvoiceStatus,
	})

	return &CollectResult{
		PaymentID:     payment.ID,
		TransactionID: transactionID,
		InvoiceStatus: commit.InvoiceStatus,
	}, nil
}

// processViaRail charges the external rail, applying the trust side effects
// the outcome earns. Failures and the requires_action state commit no
// payment, but every attempt still leaves an audit row.
func (r *Router) processViaRail(ctx context.Context, invoice *models.Invoice, req CollectRequest, channel string) (string, int64, error) {
	adapter, ok := r.resolver.AdapterFor(invoice.CompanyID, channel)
	if !ok {
		if r.env != EnvProduction {
			// Development shim: no rail configured, synthesize a local
			// transaction id instead of failing.
			id := "dev-" + uuid.New().String()
			r.logger.Warn("no processor configured, using development shim transaction", map[string]interface{}{
				"invoiceId":     invoice.ID,
				"channel":       channel,
				"transactionId": id,
			})
			return id, 0, nil
		}
		return "", 0, errors.NewProcessorNotConfiguredError(channel)
	}

	result, err := adapter.ProcessPayment(ctx, processor.PaymentRequest{
		Amount:     req.AmountCents,
		Currency:   invoice.Currency,
		InvoiceID:  invoice.ID,
		CustomerID: invoice.CustomerID,
		Channel:    channel,
		Metadata:   req.Metadata,
	})
	if err != nil {
		r.trust.Penalize(ctx, invoice.CompanyID, req.AmountCents)
		r.recordFailedAttempt(ctx, invoice, req, channel, "", err.Error())
		return "", 0, errors.NewProcessorUnavailableError(err)
	}

	switch result.Status {
	case processor.ResultSucceeded:
		r.trust.Reward(ctx, invoice.CompanyID, req.AmountCents)
		return result.TransactionID, result.ProcessorFee, nil
	case processor.ResultRequiresAction:
		r.recordFailedAttempt(ctx, invoice, req, channel, result.TransactionID, "additional authentication required")
		return "", 0, errors.NewProcessorActionRequiredError()
	default:
		r.trust.Penalize(ctx, invoice.CompanyID, req.AmountCents)
		failure := result.FailureMessage
		if failure == "" {
			failure = "payment declined by processor"
		}
		r.recordFailedAttempt(ctx, invoice, req, channel, result.TransactionID, failure)
		return "", 0, errors.NewProcessorDeclinedError(failure)
	}
}

// recordFailedAttempt appends the audit row for a rail charge that produced
// no payment. Best-effort: the reconciliation trail never masks the charge
// outcome the caller reports.
func (r *Router) recordFailedAttempt(ctx context.Context, invoice *models.Invoice, req CollectRequest, channel, externalID, failureMessage string) {
	processorType := models.ProcessorTypeCard
	if channel == processor.ChannelACH {
		processorType = models.ProcessorTypeACH
	}

	attempt := models.ProcessorTransaction{
		ID:            uuid.New().String(),
		CompanyID:     invoice.CompanyID,
		InvoiceID:     invoice.ID,
		ProcessorType: processorType,
		TransactionID: externalID,
		Amount:        req.AmountCents,
		Status:        models.TransactionStatusFailed,
		Channel:       channel,
		Metadata:      map[string]interface{}{"failure_message": failureMessage},
		CreatedAt:     time.Now().UTC(),
	}

	if err := r.ledger.RecordAttempt(ctx, attempt); err != nil {
		r.logger.Warn("failed attempt audit write failed", map[string]interface{}{
			"invoiceId": invoice.ID,
			"channel":   channel,
			"error":     err.Error(),
		})
	}
}
