package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/webhook"
	"github.com/go-chi/chi/v5"
)

type Reconciler interface {
	Apply(ctx context.Context, d webhook.Delivery) (webhook.Outcome, error)
}

// WebhookHandler answers 2xx for applied, duplicate and ignored deliveries
// and non-2xx otherwise, so the provider redelivers what we could not take.
type WebhookHandler struct {
	Reconciler Reconciler
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/stripe", h.handle(payments.ProviderStripe, "Stripe-Signature", ""))
	r.Post("/webhooks/razorpay", h.handle(payments.ProviderRazorpay, "X-Razorpay-Signature", "X-Razorpay-Event-Id"))
}

func (h *WebhookHandler) handle(provider payments.Provider, sigHeader, idHeader string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
			return
		}
		d := webhook.Delivery{Provider: provider, Signature: r.Header.Get(sigHeader), Payload: body}
		if idHeader != "" {
			d.EventID = r.Header.Get(idHeader)
		}

		// reconciliation outlives the provider connection
		out, err := h.Reconciler.Apply(context.WithoutCancel(r.Context()), d)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"outcome": string(out)})
		case out == webhook.Rejected:
			writeJSON(w, http.StatusBadRequest, map[string]string{"outcome": string(out), "error": err.Error()})
		case errors.Is(err, webhook.ErrUnknownPayment):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown payment"})
		default:
			writeError(w, r, err)
		}
	}
}
