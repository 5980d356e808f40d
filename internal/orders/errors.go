package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrAmountMismatch     = errors.New("payment amount does not match order total")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicateIntent    = errors.New("payment intent already exists for order")
	ErrStorageConflict    = errors.New("storage conflict")
	ErrForbidden          = errors.New("forbidden")
)

// ErrDuplicateIdempotencyKey means the buyer already has an order under the key.
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

// StockError tells the buyer which line to adjust.
type StockError struct {
	ProductID string
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type UnavailableError struct {
	ProductID string
	Reason    string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %s unavailable: %s", e.ProductID, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return ErrProductUnavailable }

type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move %s -> %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
