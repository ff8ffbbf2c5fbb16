package state

import (
	"fmt"
	"strings"
	"time"
)

// JobSnapshot is the slice of a job record the validator reads. All fields
// are declared up front; the validator never reaches into an untyped map.
type JobSnapshot struct {
	CustomerID          string
	AssignedTo          string
	ScheduledStart      *time.Time
	ScheduledEnd        *time.Time
	TotalAmount         int64 // cents
	EstimateCount       int
	TeamAssignmentCount int
	InvoiceCount        int
	UnpaidInvoiceCount  int // non-cancelled invoices with status != paid
}

// Result is the outcome of evaluating a requested transition. Denials never
// mutate state; warnings accompany an allowed result.
type Result struct {
	Allowed       bool     `json:"allowed"`
	Reason        string   `json:"reason,omitempty"`
	MissingFields []string `json:"missingFields,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// requiredFields maps a target status to the human-readable names of the
// job fields it requires.
// The invoiced amount requirement is enforced by the completed→invoiced
// guard so the denial carries its business reason rather than a generic
// missing-field message.
var requiredFields = map[Status][]string{
	StatusScheduled:  {"customer", "scheduled start", "scheduled end"},
	StatusInProgress: {"assigned technician"},
	StatusInvoiced:   {"customer"},
}

// Validate evaluates a requested transition against the state graph and the
// record-specific business rules. It is a pure function over
// (current, requested, snapshot) and performs no I/O.
func Validate(current, requested Status, snap JobSnapshot) Result {
	// Same-status requests are a no-op, allowed with no side effects.
	if current == requested {
		return Result{Allowed: true}
	}

	if current == StatusPaid {
		return Result{
			Allowed: false,
			Reason:  "job is in a terminal state; create a new job instead",
		}
	}

	if !CanTransition(current, requested) {
		return Result{
			Allowed: false,
			Reason: fmt.Sprintf("cannot transition from %s to %s; valid transitions: %s",
				current, requested, formatTargets(Transitions[current])),
		}
	}

	if missing := missingFieldsFor(requested, snap); len(missing) > 0 {
		return Result{
			Allowed:       false,
			Reason:        fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")),
			MissingFields: missing,
		}
	}

	return applyGuards(current, requested, snap)
}

func missingFieldsFor(requested Status, snap JobSnapshot) []string {
	var missing []string
	for _, field := range requiredFields[requested] {
		switch field {
		case "customer":
			if snap.CustomerID == "" {
				missing = append(missing, field)
			}
		case "scheduled start":
			if snap.ScheduledStart == nil || snap.ScheduledStart.IsZero() {
				missing = append(missing, field)
			}
		case "scheduled end":
			if snap.ScheduledEnd == nil || snap.ScheduledEnd.IsZero() {
				missing = append(missing, field)
			}
		case "assigned technician":
			if snap.AssignedTo == "" {
				missing = append(missing, field)
			}
		}
	}
	return missing
}

// applyGuards enforces the record-specific rules that go beyond field
// presence.
func applyGuards(current, requested Status, snap JobSnapshot) Result {
	switch {
	case current == StatusScheduled && requested == StatusInProgress:
		if snap.TeamAssignmentCount == 0 {
			return Result{
				Allowed:  true,
				Warnings: []string{"no team members assigned"},
			}
		}

	case current == StatusCompleted && requested == StatusInvoiced:
		if snap.EstimateCount == 0 && snap.TotalAmount <= 0 {
			return Result{
				Allowed: false,
				Reason:  "no estimates or total amount defined",
			}
		}

	case current == StatusInvoiced && requested == StatusPaid:
		if snap.InvoiceCount == 0 {
			return Result{
				Allowed: false,
				Reason:  "no invoices exist for this job",
			}
		}
		if snap.UnpaidInvoiceCount > 0 {
			return Result{
				Allowed: false,
				Reason:  fmt.Sprintf("%d invoice(s) still unpaid", snap.UnpaidInvoiceCount),
			}
		}
	}

	return Result{Allowed: true}
}

func formatTargets(targets []Status) string {
	if len(targets) == 0 {
		return "none"
	}
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
