package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
)

// RazorpayAdapter checks X-Razorpay-Signature (hex HMAC-SHA256 of the raw
// body). The event id comes from the X-Razorpay-Event-Id header.
type RazorpayAdapter struct {
	Secret string
}

type razorpayBody struct {
	Event     string `json:"event"`
	AccountID string `json:"account_id"`
	Payload   struct {
		Payment *struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func (a *RazorpayAdapter) Provider() payments.Provider { return payments.ProviderRazorpay }

func (a *RazorpayAdapter) Parse(d Delivery) (Event, error) {
	if !VerifyRazorpay(d.Payload, d.Signature, a.Secret) {
		return Event{}, ErrSignature
	}
	if d.EventID == "" {
		return Event{}, fmt.Errorf("%w: missing event id", ErrMalformed)
	}
	var b razorpayBody
	if err := json.Unmarshal(d.Payload, &b); err != nil || b.Event == "" {
		return Event{}, fmt.Errorf("%w: razorpay body", ErrMalformed)
	}
	ev := Event{ID: d.EventID, Type: b.Event, Raw: d.Payload}

	switch b.Event {
	case "payment.authorized":
		ev.Status = payments.StatusProcessing
	case "payment.captured", "order.paid":
		ev.Status = payments.StatusSucceeded
	case "payment.failed":
		ev.Status = payments.StatusFailed
	case "refund.processed":
		ev.Status = payments.StatusRefunded
	default:
		return ev, nil
	}

	// the intent we created is a Razorpay order; payments reference it
	switch {
	case b.Payload.Payment != nil && b.Payload.Payment.Entity.OrderID != "":
		ev.ProviderPaymentID = b.Payload.Payment.Entity.OrderID
	case b.Payload.Order != nil && b.Payload.Order.Entity.ID != "":
		ev.ProviderPaymentID = b.Payload.Order.Entity.ID
	default:
		return Event{}, fmt.Errorf("%w: %s without order reference", ErrMalformed, b.Event)
	}
	return ev, nil
}

func SignRazorpay(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyRazorpay(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	want := SignRazorpay(body, secret)
	return hmac.Equal([]byte(want), []byte(signature))
}
