package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldservice-engine/internal/common/config"
	"fieldservice-engine/internal/common/logger"
)

func newTestNotifier(t *testing.T, cfg config.NotificationConfig) (*Notifier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil, nil, cfg, logger.NewTestLogger(t)), mock
}

func TestPaymentReceived_NoClientsConfigured(t *testing.T) {
	var cfg config.NotificationConfig
	cfg.Email.Enabled = true
	cfg.SMS.Enabled = true
	n, mock := newTestNotifier(t, cfg)

	mock.ExpectQuery("SELECT u.email").
		WithArgs("company-1", memberLimit).
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).
			AddRow("owner@example.com", "+15550100"))

	// Nil SES and SNS clients mean still nothing is sent, without panicking.
	assert.NotPanics(t, func() {
		n.PaymentReceived(context.Background(), "company-1", "Dana Fields", 12500)
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentReceived_MemberLookupFailureSwallowed(t *testing.T) {
	n, mock := newTestNotifier(t, config.NotificationConfig{})

	mock.ExpectQuery("SELECT u.email").
		WithArgs("company-1", memberLimit).
		WillReturnError(errors.New("connection refused"))

	assert.NotPanics(t, func() {
		n.PaymentReceived(context.Background(), "company-1", "Dana Fields", 12500)
	})
}

func TestActiveMembers(t *testing.T) {
	n, mock := newTestNotifier(t, config.NotificationConfig{})

	mock.ExpectQuery("SELECT u.email").
		WithArgs("company-1", memberLimit).
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).
			AddRow("a@example.com", "+15550100").
			AddRow("b@example.com", ""))

	members, err := n.activeMembers(context.Background(), "company-1")

	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "a@example.com", members[0].email)
	assert.Empty(t, members[1].phone)
}
