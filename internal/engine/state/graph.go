// Package state defines the job status state machine and the validator
// that gates every status change behind business-rule guards.
//
// Valid status graph:
//
//	quoted ──► scheduled ──► in_progress ──► completed ──► invoiced ──► paid
//	   │           │ ▲            │ ▲                          paid is terminal
//	   │           │ └── on_hold ◄┘ │
//	   └───────► cancelled ─────────┘   (cancelled may re-open to quoted/scheduled)
package state

import "fmt"

// Status is a job lifecycle status. Values mirror the job_status enum in
// PostgreSQL.
type Status string

const (
	StatusQuoted     Status = "quoted"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusInvoiced   Status = "invoiced"
	StatusPaid       Status = "paid"
)

// Transitions lists every allowed (current → next) pair. The key is the
// current status, the value the set of valid targets.
var Transitions = map[Status][]Status{
	StatusQuoted:     {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusOnHold, StatusCancelled},
	StatusInProgress: {StatusOnHold, StatusCompleted, StatusCancelled},
	StatusOnHold:     {StatusScheduled, StatusInProgress, StatusCancelled},
	StatusCompleted:  {StatusInvoiced},
	StatusCancelled:  {StatusQuoted, StatusScheduled}, // re-open allowed
	StatusInvoiced:   {StatusPaid},
	StatusPaid:       {}, // terminal
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusQuoted, StatusScheduled, StatusInProgress, StatusOnHold,
		StatusCompleted, StatusCancelled, StatusInvoiced, StatusPaid:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTerminal reports whether s permits no outgoing transitions.
func IsTerminal(s Status) bool {
	return len(Transitions[s]) == 0
}

// CanTransition checks if moving from → to is permitted by the graph alone,
// ignoring record-specific guards.
func CanTransition(from, to Status) bool {
	for _, s := range Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
