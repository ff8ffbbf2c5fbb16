// Package notify fans out payment-received notifications to company
// members. Entirely best-effort: a delivery failure never fails the payment.
package notify

import (
	"context"
	"database/sql"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"fieldservice-engine/internal/common/aws"
	"fieldservice-engine/internal/common/config"
	"fieldservice-engine/internal/common/logger"
)

// memberLimit caps the fan-out per payment, matching the batch the
// dashboard surfaces.
const memberLimit = 5

type Notifier struct {
	db     *sql.DB
	ses    *aws.SESClient
	sns    *aws.SNSClient
	cfg    config.NotificationConfig
	logger logger.Logger
}

func New(db *sql.DB, sesClient *aws.SESClient, snsClient *aws.SNSClient, cfg config.NotificationConfig, log logger.Logger) *Notifier {
	return &Notifier{
		db:     db,
		ses:    sesClient,
		sns:    snsClient,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

type member struct {
	email string
	phone string
}

// PaymentReceived notifies up to memberLimit active company members that a
// payment came in.
func (n *Notifier) PaymentReceived(ctx context.Context, companyID, customerName string, amountCents int64) {
	members, err := n.activeMembers(ctx, companyID)
	if err != nil {
		n.logger.Warn("could not load company members for notification", map[string]interface{}{
			"companyId": companyID,
			"error":     err.Error(),
		})
		return
	}

	message := fmt.Sprintf("Payment of $%.2f received from %s", float64(amountCents)/100, customerName)

	for _, m := range members {
		if n.cfg.Email.Enabled && n.ses != nil && m.email != "" {
			n.sendEmail(ctx, m.email, message)
		}
		if n.cfg.SMS.Enabled && n.sns != nil && m.phone != "" {
			n.sendSMS(ctx, m.phone, message)
		}
	}
}

func (n *Notifier) activeMembers(ctx context.Context, companyID string) ([]member, error) {
	query := `
		SELECT u.email, COALESCE(u.phone, '')
		FROM company_memberships cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.company_id = $1 AND cm.status = 'active'
		LIMIT $2`

	rows, err := n.db.QueryContext(ctx, query, companyID, memberLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []member
	for rows.Next() {
		var m member
		if err := rows.Scan(&m.email, &m.phone); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (n *Notifier) sendEmail(ctx context.Context, to, message string) {
	input := &ses.SendEmailInput{
		Source: awssdk.String(n.cfg.Email.FromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{to},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: awssdk.String("Payment Received")},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: awssdk.String(message)},
			},
		},
	}
	if _, err := n.ses.SendEmail(ctx, input); err != nil {
		n.logger.Warn("payment notification email failed", map[string]interface{}{
			"to":    to,
			"error": err.Error(),
		})
	}
}

func (n *Notifier) sendSMS(ctx context.Context, phone, message string) {
	input := &sns.PublishInput{
		PhoneNumber: awssdk.String(phone),
		Message:     awssdk.String(message),
	}
	if _, err := n.sns.Publish(ctx, input); err != nil {
		n.logger.Warn("payment notification sms failed", map[string]interface{}{
			"phone": phone,
			"error": err.Error(),
		})
	}
}
