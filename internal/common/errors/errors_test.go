package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Standard Error Behavior
// ==========================

func TestStandardError_ErrorString(t *testing.T) {
	err := NewInvalidAmountError("got -5 cents")
	assert.Equal(t, "StandardError[INVALID_AMOUNT]: Payment amount must be greater than 0", err.Error())
}

func TestAsStandardError(t *testing.T) {
	se, ok := AsStandardError(NewLockContentionError("lock:job:1"))
	require.True(t, ok)
	assert.Equal(t, ErrCodeLockContention, se.Code)

	// Wrapped standard errors still unwrap.
	wrapped := fmt.Errorf("collect payment: %w", NewInvoiceAlreadyPaidError("inv-1"))
	se, ok = AsStandardError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvoiceAlreadyPaid, se.Code)

	_, ok = AsStandardError(errors.New("plain"))
	assert.False(t, ok)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeRecordNotFound, CodeOf(NewRecordNotFoundError("job", "job-1")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"database failure", NewDatabaseError("insert", errors.New("reset")), true},
		{"lock contention", NewLockContentionError("lock:invoice:1"), true},
		{"processor unavailable", NewProcessorUnavailableError(errors.New("timeout")), true},
		{"processor declined", NewProcessorDeclinedError("card declined"), false},
		{"invalid transition", NewInvalidTransitionError("quoted to paid"), false},
		{"signature invalid", NewWebhookSignatureInvalidError(), false},
		{"plain error", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

// ==========================
// Constructors
// ==========================

func TestNewMissingRequiredFieldsError(t *testing.T) {
	err := NewMissingRequiredFieldsError([]string{"customer_id", "scheduled_start"})
	assert.Equal(t, ErrCodeMissingRequiredFields, err.Code)
	assert.Equal(t, "missing: customer_id, scheduled_start", err.Details)
	assert.False(t, err.Retryable)
}

func TestNewProcessorDeclinedError_MessageVerbatim(t *testing.T) {
	err := NewProcessorDeclinedError("Your card was declined.")
	assert.Equal(t, "Your card was declined.", err.Message)
}

func TestNewWebhookSignatureInvalidError_NoSecretLeakage(t *testing.T) {
	err := NewWebhookSignatureInvalidError()
	assert.Empty(t, err.Details)
}

func TestConstructorsStampTimestamp(t *testing.T) {
	before := time.Now().UTC()
	err := NewDatabaseError("query", errors.New("down"))
	assert.False(t, err.Timestamp.Before(before))
}

// ==========================
// Categories
// ==========================

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		category string
	}{
		{ErrCodeInvalidTransition, "VALIDATION"},
		{ErrCodeMissingRequiredFields, "VALIDATION"},
		{ErrCodeInvoiceAlreadyPaid, "VALIDATION"},
		{ErrCodeInvalidAmount, "VALIDATION"},
		{ErrCodeInvalidRefund, "VALIDATION"},
		{ErrCodeProcessorDeclined, "PROCESSOR"},
		{ErrCodeProcessorActionRequired, "PROCESSOR"},
		{ErrCodeProcessorUnavailable, "PROCESSOR"},
		{ErrCodeProcessorNotConfigured, "CONFIGURATION"},
		{ErrCodeWebhookSignatureInvalid, "SECURITY"},
		{ErrCodeWebhookReplayed, "SECURITY"},
		{ErrCodeWebhookPayloadInvalid, "SECURITY"},
		{ErrCodeRecordNotFound, "INFRASTRUCTURE"},
		{ErrCodeLockContention, "INFRASTRUCTURE"},
		{ErrCodeDatabaseFailed, "INFRASTRUCTURE"},
		{ErrCodeLedgerInconsistency, "INCONSISTENCY"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.category, GetErrorCategory(tt.code))
		})
	}
}
