package models

import "time"

// Job is a unit of field work owned by one company. Its status is mutated
// only through the transition validator; jobs are never hard-deleted.
type Job struct {
	ID             string     `json:"id"`
	CompanyID      string     `json:"companyId"`
	CustomerID     string     `json:"customerId,omitempty"`
	PropertyID     string     `json:"propertyId,omitempty"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	Status         string     `json:"status"`
	ScheduledStart *time.Time `json:"scheduledStart,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduledEnd,omitempty"`
	TotalAmount    int64      `json:"totalAmount"` // cents
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
