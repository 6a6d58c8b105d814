package purchasing

import "fmt"

// transitions is the forward-only status graph. Cancelled is reachable from
// every non-terminal state; partially_received may loop on itself across
// multiple partial receipts.
var transitions = map[Status][]Status{
	StatusDraft:             {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval:   {StatusApproved, StatusCancelled},
	StatusApproved:          {StatusSent, StatusCancelled},
	StatusSent:              {StatusPartiallyReceived, StatusReceived, StatusCancelled},
	StatusPartiallyReceived: {StatusPartiallyReceived, StatusReceived, StatusCancelled},
	StatusReceived:          {},
	StatusCancelled:         {},
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current Status) []Status {
	next, ok := transitions[current]
	if !ok {
		return nil
	}
	return append([]Status(nil), next...)
}

// CanTransition reports whether from -> to is in the graph.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Receivable reports whether a purchase order in this status accepts goods.
func (s Status) Receivable() bool {
	return s == StatusSent || s == StatusPartiallyReceived
}

// TransitionError carries both statuses for diagnostics.
type TransitionError struct {
	Current   Status
	Attempted Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("purchasing: invalid state transition %s -> %s", e.Current, e.Attempted)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// EnsureTransition validates from -> to, returning a TransitionError on
// violation.
func EnsureTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{Current: from, Attempted: to}
	}
	return nil
}
