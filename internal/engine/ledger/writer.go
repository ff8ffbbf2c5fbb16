// Package ledger persists the payment/invoice/transaction triple. The
// payment row is the authoritative source of truth; invoice balances are
// derived state and processor transactions are the audit trail.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"

	"fieldservice-engine/internal/common/database"
	"fieldservice-engine/internal/common/errors"
	"fieldservice-engine/internal/common/logger"
	"fieldservice-engine/internal/common/metrics"
	"fieldservice-engine/internal/engine/models"
)

// Writer commits ledger entries. Writes must appear atomic to concurrent
// invoice readers; with no multi-statement transaction available the order
// is payment first, invoice second, audit trail last.
type Writer struct {
	db         *sql.DB
	es         *database.ElasticsearchClient
	auditIndex string
	logger     logger.Logger
}

// Entry is one payment collection to be committed.
type Entry struct {
	Payment     models.Payment
	Transaction models.ProcessorTransaction
}

// CommitResult reports what the commit achieved. Inconsistent reports that
// the payment row exists but the derived invoice state could not be
// updated; the payment still counts as collected.
type CommitResult struct {
	PaymentID     string
	InvoiceStatus string
	Inconsistent  bool
}

func NewWriter(db *sql.DB, es *database.ElasticsearchClient, auditIndex string, log logger.Logger) *Writer {
	return &Writer{
		db:         db,
		es:         es,
		auditIndex: auditIndex,
		logger:     log.WithFields(map[string]interface{}{"component": "ledger"}),
	}
}

// Commit writes the Payment row, updates the owning Invoice's balance and
// status, and appends the ProcessorTransaction audit row. The payment write
// is authoritative: if the invoice update fails afterwards the payment is
// still reported collected and the inconsistency is logged for manual
// reconciliation.
func (w *Writer) Commit(ctx context.Context, entry Entry) (*CommitResult, error) {
	p := entry.Payment
	if err := w.insertPayment(ctx, p); err != nil {
		return nil, errors.NewDatabaseError("insert payment", err)
	}

	result := &CommitResult{PaymentID: p.ID}

	status, err := w.applyToInvoice(ctx, p.InvoiceID, p.Amount)
	if err != nil {
		inconsistency := errors.NewLedgerInconsistencyError(
			"payment recorded but invoice update failed",
			map[string]interface{}{
				"paymentId": p.ID,
				"invoiceId": p.InvoiceID,
				"amount":    p.Amount,
				"error":     err.Error(),
			})
		w.logger.Error(inconsistency.Message, inconsistency.Metadata)
		metrics.LedgerInconsistencies.Inc()
		result.Inconsistent = true
	} else {
		result.InvoiceStatus = status
	}

	w.appendTransaction(ctx, entry.Transaction)

	return result, nil
}

func (w *Writer) insertPayment(ctx context.Context, p models.Payment) error {
	query := `
		INSERT INTO payments (
			id, company_id, customer_id, invoice_id, job_id, payment_number,
			amount, currency, payment_method, status, check_number,
			net_amount, processor_fee, refunded_amount, processed_by, processed_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, NULLIF($15, ''), $16)`

	_, err := w.db.ExecContext(ctx, query,
		p.ID, p.CompanyID, p.CustomerID, p.InvoiceID, p.JobID, p.PaymentNumber,
		p.Amount, p.Currency, p.PaymentMethod, p.Status, p.CheckNumber,
		p.NetAmount, p.ProcessorFee, p.RefundedAmount, p.ProcessedBy, p.ProcessedAt)
	return err
}

// applyToInvoice increments paid_amount and derives status and balance in a
// single conditional update so concurrent collections cannot both observe a
// stale balance. Over-payment keeps the true paid_amount but clamps the
// balance at zero.
func (w *Writer) applyToInvoice(ctx context.Context, invoiceID string, amount int64) (string, error) {
	query := `
		UPDATE invoices
		SET paid_amount = paid_amount + $1,
		    balance_amount = GREATEST(total_amount - (paid_amount + $1), 0),
		    status = CASE WHEN paid_amount + $1 >= total_amount THEN 'paid' ELSE 'partial' END,
		    updated_at = NOW()
		WHERE id = $2 AND status <> 'paid'
		RETURNING status`

	var status string
	err := w.db.QueryRowContext(ctx, query, amount, invoiceID).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}

// appendTransaction writes the audit row and mirrors it into the search
// index. Both are best-effort: a failure is logged as an inconsistency and
// never rolls back the payment.
func (w *Writer) appendTransaction(ctx context.Context, tx models.ProcessorTransaction) {
	if err := w.insertTransaction(ctx, tx); err != nil {
		w.logger.Error("processor transaction write failed", map[string]interface{}{
			"invoiceId":     tx.InvoiceID,
			"transactionId": tx.TransactionID,
			"amount":        tx.Amount,
			"error":         err.Error(),
		})
		metrics.LedgerInconsistencies.Inc()
		return
	}

	w.indexTransaction(ctx, tx)
}

// RecordAttempt appends the audit row for a charge attempt that produced no
// payment, keeping the one-row-per-attempt reconciliation trail complete
// for declined and failed charges.
func (w *Writer) RecordAttempt(ctx context.Context, tx models.ProcessorTransaction) error {
	if err := w.insertTransaction(ctx, tx); err != nil {
		return errors.NewDatabaseError("record attempt", err)
	}
	w.indexTransaction(ctx, tx)
	return nil
}

func (w *Writer) insertTransaction(ctx context.Context, tx models.ProcessorTransaction) error {
	meta, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO processor_transactions (
			id, company_id, invoice_id, processor_type, transaction_id,
			amount, status, channel, delivered, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := w.db.ExecContext(ctx, query,
		tx.ID, tx.CompanyID, tx.InvoiceID, tx.ProcessorType, tx.TransactionID,
		tx.Amount, tx.Status, tx.Channel, tx.Delivered, meta, tx.CreatedAt)
	return err
}

func (w *Writer) indexTransaction(ctx context.Context, tx models.ProcessorTransaction) {
	if w.es == nil {
		return
	}
	doc, err := json.Marshal(tx)
	if err != nil {
		return
	}
	if err := w.es.Index(ctx, w.auditIndex, tx.ID, doc); err != nil {
		w.logger.Warn("audit index write failed", map[string]interface{}{
			"transactionId": tx.TransactionID,
			"error":         err.Error(),
		})
	}
}

// MarkDelivered flips the delivery flag on the audit row matching an
// external transaction id. Returns false when no row matched.
func (w *Writer) MarkDelivered(ctx context.Context, externalID string) (bool, error) {
	res, err := w.db.ExecContext(ctx,
		`UPDATE processor_transactions SET delivered = TRUE WHERE transaction_id = $1`,
		externalID)
	if err != nil {
		return false, errors.NewDatabaseError("mark delivered", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseError("mark delivered", err)
	}
	return affected > 0, nil
}

// RecordRefund adds to a payment's refunded amount, flipping its status to
// refunded once fully refunded. The WHERE clause re-checks the refundable
// amount so concurrent refunds validated against a stale read cannot push
// refunded_amount past the payment amount.
func (w *Writer) RecordRefund(ctx context.Context, paymentID string, amount int64) error {
	query := `
		UPDATE payments
		SET refunded_amount = refunded_amount + $1,
		    status = CASE WHEN refunded_amount + $1 >= amount THEN 'refunded' ELSE status END
		WHERE id = $2 AND status IN ('completed', 'refunded')
		  AND refunded_amount + $1 <= amount`

	res, err := w.db.ExecContext(ctx, query, amount, paymentID)
	if err != nil {
		return errors.NewDatabaseError("record refund", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("record refund", err)
	}
	if affected == 0 {
		var exists bool
		if scanErr := w.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, paymentID).Scan(&exists); scanErr != nil {
			return errors.NewDatabaseError("record refund", scanErr)
		}
		if !exists {
			return errors.NewRecordNotFoundError("payment", paymentID)
		}
		return errors.NewInvalidRefundError("refund exceeds remaining refundable amount")
	}
	return nil
}
