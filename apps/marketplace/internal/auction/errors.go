package auction

import (
	"errors"
	"strings"
)

// ErrOrderNotFound is returned when a bid references an unknown order.
var ErrOrderNotFound = errors.New("order not found")

// ErrOrderClosed is returned when a bid references an order that already left
// the open state.
var ErrOrderClosed = errors.New("order is not open for bidding")

// RejectionError rejects a bid against a closed, expired or otherwise
// unbiddable order, or a bid with invalid fields. It is never retried.
type RejectionError struct {
	Violations []string
}

func (e *RejectionError) Error() string {
	return "bid rejected: " + strings.Join(e.Violations, "; ")
}
