package order

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by storage lookups for unknown order ids.
var ErrNotFound = errors.New("order not found")

// ErrNotPending is returned when modifying an order that already left PENDING.
var ErrNotPending = errors.New("order is not pending")

// InvalidQuantityError reports a fill request with a non-positive quantity.
type InvalidQuantityError struct {
	OrderID string
	Qty     float64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid fill quantity %.8f on order %s", e.Qty, e.OrderID)
}

// OverfillError reports a fill larger than the remaining quantity.
type OverfillError struct {
	OrderID   string
	Requested float64
	Remaining float64
}

func (e *OverfillError) Error() string {
	return fmt.Sprintf("overfill on order %s: requested %.8f, remaining %.8f",
		e.OrderID, e.Requested, e.Remaining)
}

// InvalidStateTransitionError reports a mutation attempted on a terminal order.
type InvalidStateTransitionError struct {
	OrderID string
	Status  Status
	Op      string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s on order %s in terminal status %s", e.Op, e.OrderID, e.Status)
}

// ValidationError aggregates the hard failures of a validation pass.
type ValidationError struct {
	Messages []Message
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		if m.Severity == SeverityError {
			parts = append(parts, m.Text)
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
