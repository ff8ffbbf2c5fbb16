package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fieldservice-engine/internal/common/errors"
	"fieldservice-engine/internal/common/logger"
	"fieldservice-engine/internal/engine/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestWriter(t *testing.T) (*Writer, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	w := NewWriter(db, nil, "processor-transactions", logger.NewTestLogger(t))
	return w, mock, func() { db.Close() }
}

func testEntry() Entry {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return Entry{
		Payment: models.Payment{
			ID:            "pay-1",
			CompanyID:     "company-1",
			CustomerID:    "customer-1",
			InvoiceID:     "inv-1",
			PaymentNumber: "PAY-1770000000000",
			Amount:        5000,
			Currency:      "USD",
			PaymentMethod: models.PaymentMethodCash,
			Status:        models.PaymentStatusCompleted,
			NetAmount:     5000,
			ProcessedAt:   now,
		},
		Transaction: models.ProcessorTransaction{
			ID:            "ptx-1",
			CompanyID:     "company-1",
			InvoiceID:     "inv-1",
			ProcessorType: models.ProcessorTypeManual,
			TransactionID: "manual-abc",
			Amount:        5000,
			Status:        models.TransactionStatusSuccess,
			Channel:       "manual",
			Metadata:      map[string]interface{}{"payment_id": "pay-1"},
			CreatedAt:     now,
		},
	}
}

func expectPaymentInsert(mock sqlmock.Sqlmock) *sqlmock.ExpectedExec {
	return mock.ExpectExec(`INSERT INTO payments`)
}

func expectInvoiceUpdate(mock sqlmock.Sqlmock) *sqlmock.ExpectedQuery {
	return mock.ExpectQuery(`UPDATE invoices`)
}

func expectTransactionInsert(mock sqlmock.Sqlmock) *sqlmock.ExpectedExec {
	return mock.ExpectExec(`INSERT INTO processor_transactions`)
}

// ==========================
// Commit
// ==========================

func TestWriter_Commit_PartialPayment(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	expectPaymentInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	expectInvoiceUpdate(mock).
		WithArgs(int64(5000), "inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("partial"))
	expectTransactionInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.Commit(context.Background(), testEntry())

	require.NoError(t, err)
	assert.Equal(t, "pay-1", result.PaymentID)
	assert.Equal(t, "partial", result.InvoiceStatus)
	assert.False(t, result.Inconsistent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_Commit_FullPayment(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	expectPaymentInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	expectInvoiceUpdate(mock).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("paid"))
	expectTransactionInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.Commit(context.Background(), testEntry())

	require.NoError(t, err)
	assert.Equal(t, "paid", result.InvoiceStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_Commit_PaymentInsertFails(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	expectPaymentInsert(mock).WillReturnError(errors.New("connection reset"))

	result, err := w.Commit(context.Background(), testEntry())

	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabaseFailed, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The payment row is authoritative: an invoice update failure after the
// payment insert reports success with the inconsistency flagged, never a
// failure that would trigger a duplicate collection.
func TestWriter_Commit_InvoiceUpdateFails(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	expectPaymentInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	expectInvoiceUpdate(mock).WillReturnError(errors.New("deadlock detected"))
	expectTransactionInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.Commit(context.Background(), testEntry())

	require.NoError(t, err)
	assert.Equal(t, "pay-1", result.PaymentID)
	assert.True(t, result.Inconsistent)
	assert.Empty(t, result.InvoiceStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An already-paid invoice matches no rows, which QueryRow surfaces as
// sql.ErrNoRows; the commit is flagged inconsistent rather than retried.
func TestWriter_Commit_InvoiceAlreadyPaidMatchesNoRows(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	expectPaymentInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	expectInvoiceUpdate(mock).WillReturnError(sql.ErrNoRows)
	expectTransactionInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.Commit(context.Background(), testEntry())

	require.NoError(t, err)
	assert.True(t, result.Inconsistent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_Commit_TransactionWriteFailureTolerated(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	expectPaymentInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))
	expectInvoiceUpdate(mock).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("paid"))
	expectTransactionInsert(mock).WillReturnError(errors.New("disk full"))

	result, err := w.Commit(context.Background(), testEntry())

	require.NoError(t, err)
	assert.Equal(t, "paid", result.InvoiceStatus)
	assert.False(t, result.Inconsistent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// MarkDelivered
// ==========================

func TestWriter_MarkDelivered(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE processor_transactions SET delivered = TRUE`).
		WithArgs("txn-42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	matched, err := w.MarkDelivered(context.Background(), "txn-42")

	require.NoError(t, err)
	assert.True(t, matched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_MarkDelivered_NoMatch(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE processor_transactions SET delivered = TRUE`).
		WithArgs("txn-unknown").
		WillReturnResult(sqlmock.NewResult(0, 0))

	matched, err := w.MarkDelivered(context.Background(), "txn-unknown")

	require.NoError(t, err)
	assert.False(t, matched)
}

// ==========================
// RecordRefund
// ==========================

func TestWriter_RecordRefund(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE payments`).
		WithArgs(int64(2500), "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.RecordRefund(context.Background(), "pay-1", 2500)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_RecordRefund_UnknownPayment(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE payments`).
		WithArgs(int64(2500), "pay-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("pay-missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := w.RecordRefund(context.Background(), "pay-missing", 2500)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRecordNotFound, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The UPDATE carries its own guard, so two racing refunds can never push
// refunded_amount past the payment amount: the loser matches zero rows.
func TestWriter_RecordRefund_GuardRejectsOverRefund(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE payments`).
		WithArgs(int64(9000), "pay-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := w.RecordRefund(context.Background(), "pay-1", 9000)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidRefund, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_RecordRefund_DatabaseError(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE payments`).
		WillReturnError(errors.New("connection reset"))

	err := w.RecordRefund(context.Background(), "pay-1", 2500)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabaseFailed, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
}

// ==========================
// RecordAttempt
// ==========================

func TestWriter_RecordAttempt(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	expectTransactionInsert(mock).WillReturnResult(sqlmock.NewResult(0, 1))

	tx := testEntry().Transaction
	tx.Status = models.TransactionStatusFailed
	tx.Metadata = map[string]interface{}{"failure_message": "card declined"}

	err := w.RecordAttempt(context.Background(), tx)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriter_RecordAttempt_InsertFails(t *testing.T) {
	w, mock, cleanup := newTestWriter(t)
	defer cleanup()

	expectTransactionInsert(mock).WillReturnError(errors.New("connection reset"))

	err := w.RecordAttempt(context.Background(), testEntry().Transaction)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabaseFailed, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsRetryable(err))
}
