package models

import "time"

// Payment methods.
const (
	PaymentMethodCash  = "cash"
	PaymentMethodCheck = "check"
	PaymentMethodCard  = "card"
	PaymentMethodACH   = "ach"
)

// Payment statuses.
const (
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment records one successful collection attempt. Immutable after
// creation except for RefundedAmount and the refund status flip.
type Payment struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"companyId"`
	CustomerID     string    `json:"customerId"`
	InvoiceID      string    `json:"invoiceId"`
	JobID          string    `json:"jobId,omitempty"`
	PaymentNumber  string    `json:"paymentNumber"`
	Amount         int64     `json:"amount"` // cents, always > 0
	Currency       string    `json:"currency"`
	PaymentMethod  string    `json:"paymentMethod"`
	Status         string    `json:"status"`
	CheckNumber    string    `json:"checkNumber,omitempty"`
	NetAmount      int64     `json:"netAmount"`
	ProcessorFee   int64     `json:"processorFee"`
	RefundedAmount int64     `json:"refundedAmount"`
	ProcessedBy    string    `json:"processedBy,omitempty"`
	ProcessedAt    time.Time `json:"processedAt"`
}
