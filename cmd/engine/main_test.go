package main

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fieldservice-engine/internal/common/errors"
	"fieldservice-engine/internal/engine/state"
)

// ==========================
// Denial Mapping
// ==========================

func TestDenialError_MissingFields(t *testing.T) {
	err := denialError(&state.Result{
		Allowed:       false,
		Reason:        "missing required fields",
		MissingFields: []string{"scheduled start time", "assigned technician"},
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMissingRequiredFields, apperrors.CodeOf(err))
	assert.False(t, apperrors.IsRetryable(err))

	se, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Contains(t, se.Details, "scheduled start time")
}

func TestDenialError_InvalidTransition(t *testing.T) {
	err := denialError(&state.Result{
		Allowed: false,
		Reason:  "cannot move from quoted to completed",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTransition, apperrors.CodeOf(err))

	se, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, "cannot move from quoted to completed", se.Details)
}

// ==========================
// HTTP Status Mapping
// ==========================

func TestWriteError_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid transition", apperrors.NewInvalidTransitionError("no path"), 400},
		{"missing fields", apperrors.NewMissingRequiredFieldsError([]string{"crew"}), 400},
		{"webhook signature", apperrors.NewWebhookSignatureInvalidError(), 400},
		{"webhook replayed", apperrors.NewWebhookReplayedError(10 * time.Minute), 400},
		{"processor declined", apperrors.NewProcessorDeclinedError("insufficient funds"), 502},
		{"processor not configured", apperrors.NewProcessorNotConfiguredError("online"), 503},
		{"record not found", apperrors.NewRecordNotFoundError("payment", "pay-1"), 404},
		{"lock contention", apperrors.NewLockContentionError("lock:job:job-1"), 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}
