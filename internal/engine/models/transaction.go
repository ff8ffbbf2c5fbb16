package models

import "time"

// Processor types.
const (
	ProcessorTypeManual = "manual"
	ProcessorTypeCard   = "card-processor"
	ProcessorTypeACH    = "ach-rail"
)

// Transaction statuses.
const (
	TransactionStatusSuccess = "success"
	TransactionStatusFailed  = "failed"
	TransactionStatusPending = "pending"
)

// ProcessorTransaction is an append-only reconciliation record, one per
// collection attempt including failed ones.
type ProcessorTransaction struct {
	ID            string                 `json:"id"`
	CompanyID     string                 `json:"companyId"`
	InvoiceID     string                 `json:"invoiceId"`
	ProcessorType string                 `json:"processorType"`
	TransactionID string                 `json:"transactionId"` // external reference
	Amount        int64                  `json:"amount"`
	Status        string                 `json:"status"`
	Channel       string                 `json:"channel"`
	Delivered     bool                   `json:"delivered"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// CompanyTrustScore gates a company's access to higher-risk payment
// channels. Mutated only by the trust adjuster after processor-routed
// payment outcomes.
type CompanyTrustScore struct {
	CompanyID      string    `json:"companyId"`
	Score          float64   `json:"score"`
	LastAdjustedAt time.Time `json:"lastAdjustedAt"`
}
