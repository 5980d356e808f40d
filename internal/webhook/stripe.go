package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

type StripeAdapter struct {
	Secret string
}

func (a *StripeAdapter) Provider() payments.Provider { return payments.ProviderStripe }

func (a *StripeAdapter) Parse(d Delivery) (Event, error) {
	se, err := webhook.ConstructEventWithOptions(d.Payload, d.Signature, a.Secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	ev := Event{ID: se.ID, Type: string(se.Type), Raw: d.Payload}
	if ev.ID == "" {
		return Event{}, fmt.Errorf("%w: missing event id", ErrMalformed)
	}
	if se.Data == nil {
		return Event{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}

	switch se.Type {
	case stripe.EventTypePaymentIntentProcessing,
		stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(se.Data.Raw, &pi); err != nil || pi.ID == "" {
			return Event{}, fmt.Errorf("%w: payment_intent object", ErrMalformed)
		}
		ev.ProviderPaymentID = pi.ID
		ev.Status = stripeStatus(se.Type)
	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(se.Data.Raw, &ch); err != nil || ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return Event{}, fmt.Errorf("%w: charge object", ErrMalformed)
		}
		ev.ProviderPaymentID = ch.PaymentIntent.ID
		ev.Status = payments.StatusRefunded
	}
	return ev, nil
}

func stripeStatus(t stripe.EventType) payments.Status {
	switch t {
	case stripe.EventTypePaymentIntentProcessing:
		return payments.StatusProcessing
	case stripe.EventTypePaymentIntentSucceeded:
		return payments.StatusSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		return payments.StatusFailed
	case stripe.EventTypePaymentIntentCanceled:
		return payments.StatusCancelled
	}
	return ""
}
