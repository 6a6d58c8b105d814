package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("not found")
	// ErrTransport marks a storage or network failure, as opposed to a
	// domain validation failure. Callers may retry idempotent reads.
	ErrTransport = errors.New("transport failure")
)

// Transport wraps err so callers can distinguish it from validation errors.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
