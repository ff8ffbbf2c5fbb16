// Package errors provides standardized error handling for the lifecycle and
// payment engine.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation errors: structured denials, never retried.
	ErrCodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	ErrCodeMissingRequiredFields ErrorCode = "MISSING_REQUIRED_FIELDS"
	ErrCodeInvoiceAlreadyPaid    ErrorCode = "INVOICE_ALREADY_PAID"
	ErrCodeInvalidAmount         ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidRefund         ErrorCode = "INVALID_REFUND"

	// Processor errors: surfaced verbatim, never retried by the engine.
	ErrCodeProcessorDeclined       ErrorCode = "PROCESSOR_DECLINED"
	ErrCodeProcessorActionRequired ErrorCode = "PROCESSOR_ACTION_REQUIRED"
	ErrCodeProcessorUnavailable    ErrorCode = "PROCESSOR_UNAVAILABLE"

	// Configuration errors.
	ErrCodeProcessorNotConfigured ErrorCode = "PROCESSOR_NOT_CONFIGURED"

	// Security errors: always fail closed.
	ErrCodeWebhookSignatureInvalid ErrorCode = "WEBHOOK_SIGNATURE_INVALID"
	ErrCodeWebhookReplayed         ErrorCode = "WEBHOOK_REPLAYED"
	ErrCodeWebhookPayloadInvalid   ErrorCode = "WEBHOOK_PAYLOAD_INVALID"

	// Infrastructure errors.
	ErrCodeRecordNotFound      ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeLockContention      ErrorCode = "LOCK_CONTENTION"
	ErrCodeDatabaseFailed      ErrorCode = "DATABASE_OPERATION_FAILED"
	ErrCodeLedgerInconsistency ErrorCode = "LEDGER_INCONSISTENCY"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// AsStandardError unwraps err into a *StandardError when possible.
func AsStandardError(err error) (*StandardError, bool) {
	var se *StandardError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or empty for non-standard errors.
func CodeOf(err error) ErrorCode {
	if se, ok := AsStandardError(err); ok {
		return se.Code
	}
	return ""
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidTransitionError creates a non-retryable transition denial.
func NewInvalidTransitionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Status transition not allowed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingRequiredFieldsError creates a non-retryable denial listing the
// fields the target status requires.
func NewMissingRequiredFieldsError(fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingRequiredFields,
		Message:   "Required fields missing for requested status",
		Details:   fmt.Sprintf("missing: %s", strings.Join(fields, ", ")),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvoiceAlreadyPaidError creates a non-retryable collection denial.
func NewInvoiceAlreadyPaidError(invoiceID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvoiceAlreadyPaid,
		Message:   "Invoice is already paid",
		Details:   fmt.Sprintf("invoiceId: %s", invoiceID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidAmountError creates a non-retryable amount validation error.
func NewInvalidAmountError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidAmount,
		Message:   "Payment amount must be greater than 0",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRefundError creates a non-retryable refund validation error.
func NewInvalidRefundError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRefund,
		Message:   "Refund not allowed for this payment",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProcessorDeclinedError carries the rail's failure message verbatim.
func NewProcessorDeclinedError(failureMessage string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProcessorDeclined,
		Message:   failureMessage,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProcessorActionRequiredError directs the payer to the self-service portal.
func NewProcessorActionRequiredError() *StandardError {
	return &StandardError{
		Code:      ErrCodeProcessorActionRequired,
		Message:   "Additional authentication is required; direct the customer to the self-service payment portal",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProcessorUnavailableError creates a retryable rail transport error.
func NewProcessorUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProcessorUnavailable,
		Message:   "Payment processor request failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProcessorNotConfiguredError creates a hard configuration failure.
func NewProcessorNotConfiguredError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProcessorNotConfigured,
		Message:   "Payment processing not configured",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWebhookSignatureInvalidError creates a non-retryable security error.
// The details never include the expected signature or whether a secret exists.
func NewWebhookSignatureInvalidError() *StandardError {
	return &StandardError{
		Code:      ErrCodeWebhookSignatureInvalid,
		Message:   "Webhook signature verification failed",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWebhookReplayedError rejects a payload outside the replay window.
func NewWebhookReplayedError(age time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeWebhookReplayed,
		Message:   "Webhook timestamp outside replay window",
		Details:   fmt.Sprintf("age: %s", age),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWebhookPayloadInvalidError creates a non-retryable payload schema error.
func NewWebhookPayloadInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWebhookPayloadInvalid,
		Message:   "Webhook payload failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordNotFoundError creates a non-retryable lookup error.
func NewRecordNotFoundError(kind, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordNotFound,
		Message:   fmt.Sprintf("%s not found", kind),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLockContentionError signals a concurrent operation holds the record lock.
func NewLockContentionError(key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLockContention,
		Message:   "Record is locked by a concurrent operation",
		Details:   fmt.Sprintf("key: %s", key),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseError creates a retryable database error.
func NewDatabaseError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseFailed,
		Message:   "Database operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLedgerInconsistencyError records a partially applied ledger write. It is
// logged for manual reconciliation, never returned to the caller as a failure.
func NewLedgerInconsistencyError(details string, meta map[string]interface{}) *StandardError {
	return &StandardError{
		Code:      ErrCodeLedgerInconsistency,
		Message:   "Ledger write partially succeeded",
		Details:   details,
		Retryable: false,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryable reports whether err may be retried by the caller.
func IsRetryable(err error) bool {
	if se, ok := AsStandardError(err); ok {
		return se.Retryable
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "WEBHOOK"):
		return "SECURITY"
	case strings.Contains(codeStr, "PROCESSOR_NOT_CONFIGURED"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "PROCESSOR"):
		return "PROCESSOR"
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "MISSING") ||
		strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "ALREADY_PAID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "LEDGER"):
		return "INCONSISTENCY"
	default:
		return "INFRASTRUCTURE"
	}
}
