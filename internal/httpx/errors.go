package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID string `json:"productId,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		body   = errorBody{Error: "internal error", Code: "internal"}
		se     *orders.StockError
		ue     *orders.UnavailableError
		ve     validator.ValidationErrors
	)
	switch {
	case errors.As(err, &se):
		status, body = http.StatusConflict, errorBody{Error: err.Error(), Code: "insufficient_stock", ProductID: se.ProductID}
	case errors.As(err, &ue):
		status, body = http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "product_unavailable", ProductID: ue.ProductID}
	case errors.Is(err, orders.ErrProductUnavailable):
		status, body = http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "product_unavailable"}
	case errors.Is(err, orders.ErrAmountMismatch):
		status, body = http.StatusBadRequest, errorBody{Error: err.Error(), Code: "amount_mismatch"}
	case errors.Is(err, orders.ErrInvalidTransition):
		status, body = http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_transition"}
	case errors.Is(err, orders.ErrDuplicateIdempotencyKey):
		status, body = http.StatusConflict, errorBody{Error: err.Error(), Code: "duplicate_idempotency_key"}
	case errors.Is(err, orders.ErrDuplicateIntent):
		status, body = http.StatusConflict, errorBody{Error: err.Error(), Code: "duplicate_intent"}
	case errors.Is(err, orders.ErrNotFound):
		status, body = http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"}
	case errors.Is(err, orders.ErrForbidden):
		status, body = http.StatusForbidden, errorBody{Error: "forbidden", Code: "forbidden"}
	case errors.Is(err, errUnauthenticated):
		status, body = http.StatusUnauthorized, errorBody{Error: err.Error(), Code: "unauthenticated"}
	case errors.Is(err, orders.ErrStorageConflict):
		status, body = http.StatusServiceUnavailable, errorBody{Error: "please retry", Code: "storage_conflict"}
	case errors.Is(err, payments.ErrProviderUnavailable):
		status, body = http.StatusBadGateway, errorBody{Error: "payment provider unavailable", Code: "provider_unavailable"}
	case errors.Is(err, cart.ErrEmptyCart):
		status, body = http.StatusBadRequest, errorBody{Error: err.Error(), Code: "empty_cart"}
	case errors.Is(err, cart.ErrInvalidQuantity):
		status, body = http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_quantity"}
	case errors.As(err, &ve):
		status, body = http.StatusBadRequest, errorBody{Error: ve.Error(), Code: "validation"}
	case errors.Is(err, errBadJSON):
		status, body = http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_json"}
	case errors.Is(err, context.DeadlineExceeded):
		status, body = http.StatusGatewayTimeout, errorBody{Error: "timeout", Code: "timeout"}
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request_failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

var errBadJSON = errors.New("invalid json")
