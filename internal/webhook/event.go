// Package webhook turns provider deliveries into payment and order state.
//
// Each provider has an Adapter that verifies the signature and maps the
// provider's payload onto a canonical Event. The Reconciler owns the common
// part: dedupe, forward-only payment transitions, the order transition and
// the matching stock movement.
package webhook

import (
	"errors"

	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
)

var (
	ErrSignature       = errors.New("webhook: signature verification failed")
	ErrMalformed       = errors.New("webhook: malformed payload")
	ErrUnknownProvider = errors.New("webhook: unknown provider")
	ErrUnknownPayment  = errors.New("webhook: no payment for provider reference")
)

type Outcome string

const (
	Applied   Outcome = "applied"
	Duplicate Outcome = "duplicate"
	Rejected  Outcome = "rejected"
	// Ignored: authentic and recorded, but nothing to change (unhandled
	// type, or a transition that is no longer valid).
	Ignored Outcome = "ignored"
)

// Delivery is one raw webhook request. EventID may be empty when the
// provider carries it inside the signed body.
type Delivery struct {
	Provider  payments.Provider
	EventID   string
	Signature string
	Payload   []byte
}

// Event is a verified delivery mapped to the canonical pair. Status is empty
// for event types that do not move a payment.
type Event struct {
	ID                string
	Type              string
	ProviderPaymentID string
	Status            payments.Status
	Raw               []byte
}

type Adapter interface {
	Provider() payments.Provider
	// Parse verifies the signature (ErrSignature) and maps the payload (ErrMalformed).
	Parse(d Delivery) (Event, error)
}
