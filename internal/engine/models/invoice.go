package models

import "time"

// Invoice statuses.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPartial   = "partial"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Invoice is owned by one company and referenced by zero or one job.
// BalanceAmount is derived: totalAmount minus paidAmount, never negative.
// A paid invoice cannot be voided; it must be refunded instead.
type Invoice struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"companyId"`
	CustomerID    string    `json:"customerId"`
	JobID         string    `json:"jobId,omitempty"`
	InvoiceNumber string    `json:"invoiceNumber"`
	TotalAmount   int64     `json:"totalAmount"` // cents
	PaidAmount    int64     `json:"paidAmount"`  // cents, derived from payments
	BalanceAmount int64     `json:"balanceAmount"`
	Status        string    `json:"status"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
