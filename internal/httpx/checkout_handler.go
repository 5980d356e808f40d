package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type CheckoutHandler struct {
	Checkout Checkouter
	Validate *validator.Validate
}

type CheckoutReq struct {
	ShippingAddress orders.Address    `json:"shippingAddress" validate:"required"`
	BillingAddress  *orders.Address   `json:"billingAddress"`
	PaymentMethod   payments.Provider `json:"paymentMethod" validate:"required,oneof=STRIPE RAZORPAY"`
	Method          payments.Method   `json:"method" validate:"omitempty,oneof=CARD UPI NET_BANKING WALLET"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CheckoutReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.PaymentMethod = payments.Provider(strings.ToUpper(string(req.PaymentMethod)))
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	res, err := h.Checkout.Checkout(r.Context(), checkout.Request{
		UserID:          actor.UserID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		Provider:        req.PaymentMethod,
		Method:          req.Method,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}
