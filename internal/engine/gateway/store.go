package gateway

import (
	"context"
	"database/sql"

	"fieldservice-engine/internal/common/errors"
	"fieldservice-engine/internal/engine/models"
	"fieldservice-engine/internal/engine/state"
)

// jobRecord couples a job row with the counts the validator reads.
type jobRecord struct {
	job  models.Job
	snap state.JobSnapshot
}

// loadJobRecord reads the job and its related counts in one query so the
// validator always sees a consistent snapshot.
func (g *Gateway) loadJobRecord(ctx context.Context, jobID string) (*jobRecord, error) {
	query := `
		SELECT j.id, j.company_id, COALESCE(j.customer_id, ''), COALESCE(j.assigned_to, ''),
		       j.status, j.scheduled_start, j.scheduled_end, j.total_amount,
		       (SELECT COUNT(*) FROM estimates e WHERE e.job_id = j.id),
		       (SELECT COUNT(*) FROM team_assignments ta WHERE ta.job_id = j.id),
		       (SELECT COUNT(*) FROM invoices i WHERE i.job_id = j.id AND i.status <> 'cancelled'),
		       (SELECT COUNT(*) FROM invoices i WHERE i.job_id = j.id AND i.status NOT IN ('cancelled', 'paid'))
		FROM jobs j
		WHERE j.id = $1`

	var rec jobRecord
	var scheduledStart, scheduledEnd sql.NullTime
	err := g.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.job.ID, &rec.job.CompanyID, &rec.job.CustomerID, &rec.job.AssignedTo,
		&rec.job.Status, &scheduledStart, &scheduledEnd, &rec.job.TotalAmount,
		&rec.snap.EstimateCount, &rec.snap.TeamAssignmentCount,
		&rec.snap.InvoiceCount, &rec.snap.UnpaidInvoiceCount,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewRecordNotFoundError("job", jobID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("load job", err)
	}

	if scheduledStart.Valid {
		rec.job.ScheduledStart = &scheduledStart.Time
	}
	if scheduledEnd.Valid {
		rec.job.ScheduledEnd = &scheduledEnd.Time
	}

	rec.snap.CustomerID = rec.job.CustomerID
	rec.snap.AssignedTo = rec.job.AssignedTo
	rec.snap.ScheduledStart = rec.job.ScheduledStart
	rec.snap.ScheduledEnd = rec.job.ScheduledEnd
	rec.snap.TotalAmount = rec.job.TotalAmount

	return &rec, nil
}

// updateJobStatus persists an allowed transition. The WHERE clause repeats
// the current status as an optimistic check against concurrent writers.
func (g *Gateway) updateJobStatus(ctx context.Context, jobID string, current, next state.Status) error {
	res, err := g.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(next), jobID, string(current))
	if err != nil {
		return errors.NewDatabaseError("update job status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("update job status", err)
	}
	if affected == 0 {
		return errors.NewLockContentionError("job:" + jobID)
	}
	return nil
}

func (g *Gateway) loadInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	query := `
		SELECT id, company_id, customer_id, COALESCE(job_id, ''), invoice_number,
		       total_amount, paid_amount, balance_amount, status, COALESCE(currency, 'USD')
		FROM invoices
		WHERE id = $1`

	var inv models.Invoice
	err := g.db.QueryRowContext(ctx, query, invoiceID).Scan(
		&inv.ID, &inv.CompanyID, &inv.CustomerID, &inv.JobID, &inv.InvoiceNumber,
		&inv.TotalAmount, &inv.PaidAmount, &inv.BalanceAmount, &inv.Status, &inv.Currency,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewRecordNotFoundError("invoice", invoiceID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("load invoice", err)
	}
	return &inv, nil
}

func (g *Gateway) loadPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	query := `
		SELECT id, company_id, customer_id, invoice_id, payment_number,
		       amount, currency, payment_method, status, refunded_amount
		FROM payments
		WHERE id = $1`

	var p models.Payment
	err := g.db.QueryRowContext(ctx, query, paymentID).Scan(
		&p.ID, &p.CompanyID, &p.CustomerID, &p.InvoiceID, &p.PaymentNumber,
		&p.Amount, &p.Currency, &p.PaymentMethod, &p.Status, &p.RefundedAmount,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewRecordNotFoundError("payment", paymentID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("load payment", err)
	}
	return &p, nil
}

// paymentIDForTransaction resolves the payment a processor webhook refers
// to through the audit row's metadata.
func (g *Gateway) paymentIDForTransaction(ctx context.Context, externalID string) (string, error) {
	var paymentID sql.NullString
	err := g.db.QueryRowContext(ctx,
		`SELECT metadata->>'payment_id' FROM processor_transactions WHERE transaction_id = $1`,
		externalID).Scan(&paymentID)
	if err == sql.ErrNoRows {
		return "", errors.NewRecordNotFoundError("processor transaction", externalID)
	}
	if err != nil {
		return "", errors.NewDatabaseError("resolve transaction payment", err)
	}
	return paymentID.String, nil
}

// externalTransactionForPayment finds the rail transaction id behind a
// processor-routed payment, needed to issue a refund to the rail.
func (g *Gateway) externalTransactionForPayment(ctx context.Context, paymentID string) (string, error) {
	var externalID string
	err := g.db.QueryRowContext(ctx,
		`SELECT transaction_id FROM processor_transactions WHERE metadata->>'payment_id' = $1
		 ORDER BY created_at DESC LIMIT 1`,
		paymentID).Scan(&externalID)
	if err == sql.ErrNoRows {
		return "", errors.NewRecordNotFoundError("processor transaction for payment", paymentID)
	}
	if err != nil {
		return "", errors.NewDatabaseError("resolve payment transaction", err)
	}
	return externalID, nil
}

func (g *Gateway) customerName(ctx context.Context, customerID string) string {
	var name string
	err := g.db.QueryRowContext(ctx,
		`SELECT name FROM customers WHERE id = $1`, customerID).Scan(&name)
	if err != nil {
		return "customer"
	}
	return name
}
