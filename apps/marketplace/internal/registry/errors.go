package registry

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrInvalidTransition is returned when a status change violates the
// forward-only lifecycle. The operation is a no-op.
var ErrInvalidTransition = errors.New("invalid order status transition")

// AdmissionError carries every violated check, not just the first one, so the
// submitter gets the complete picture in one round trip.
type AdmissionError struct {
	Violations []string
}

func (e *AdmissionError) Error() string {
	return "order rejected: " + strings.Join(e.Violations, "; ")
}
