package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// StatusCache is the polling shortcut for GET /orders/{id}/status.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.StatusEntry, bool)
	Set(ctx context.Context, orderID string, e redisx.StatusEntry)
	Invalidate(ctx context.Context, orderID string)
}

type OrdersHandler struct {
	Store    store.Store
	Machine  *orders.Machine
	Ledger   *inventory.Ledger
	Notifier notify.Dispatcher
	Metrics  *metrics.Metrics
	Cache    StatusCache
	Validate *validator.Validate
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status" validate:"required,oneof=SHIPPED DELIVERED CANCELLED"`
	Notes  string        `json:"notes" validate:"max=500"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Get("/products", h.listProducts)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// canSee: the buyer who placed it, an admin, or a vendor with a line in it.
func canSee(a Actor, o *orders.Order) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleVendor:
		for _, it := range o.Items {
			if it.VendorID == a.UserID {
				return true
			}
		}
		return false
	}
	return o.UserID == a.UserID
}

func (h *OrdersHandler) loadVisible(ctx context.Context, a Actor, id string) (*orders.Order, error) {
	o, err := h.Store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(a, o) {
		// do not leak existence to strangers
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.loadVisible(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	id := chi.URLParam(r, "id")

	if h.Cache != nil {
		if e, ok := h.Cache.Get(ctx, id); ok && (e.UserID == actor.UserID || actor.Role == RoleAdmin) {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	o, err := h.loadVisible(ctx, actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e := redisx.StatusEntry{
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: o.PaymentStatus,
		CancelReason:  o.CancelReason,
		UpdatedAt:     o.UpdatedAt,
	}
	if h.Cache != nil {
		h.Cache.Set(ctx, id, e)
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := orders.Filter{Status: orders.Status(q.Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status", Code: "validation"})
		return
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if actor.Role != RoleAdmin {
		f.UserID = actor.UserID
	} else {
		f.UserID = q.Get("userId")
	}
	f = f.Normalize()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	list, total, err := h.Store.ListOrders(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.NewPage(list, total, f))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reason := orders.ReasonBuyerCancelled
	if actor.Role == RoleAdmin {
		reason = orders.ReasonOperatorCancelled
	}
	o, err := h.cancel(r.Context(), actor, chi.URLParam(r, "id"), reason, func(a Actor, o *orders.Order) bool {
		return a.Role == RoleAdmin || o.UserID == a.UserID
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !actor.Operator() {
		writeError(w, r, orders.ErrForbidden)
		return
	}
	var req UpdateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	owns := func(a Actor, o *orders.Order) bool { return canSee(a, o) }

	var o *orders.Order
	if req.Status == orders.StatusCancelled {
		o, err = h.cancel(r.Context(), actor, id, orders.ReasonOperatorCancelled, owns)
	} else {
		o, err = h.fulfil(r.Context(), actor, id, req.Status, owns)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("order_status_updated",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.String("actor", actor.UserID),
		zap.String("notes", req.Notes),
	)
	writeJSON(w, http.StatusOK, o)
}

type permit func(a Actor, o *orders.Order) bool

// cancel moves a PENDING order to CANCELLED, voids its open payment and
// restocks, all in one transaction.
func (h *OrdersHandler) cancel(ctx context.Context, a Actor, id, reason string, allowed permit) (*orders.Order, error) {
	var (
		o        *orders.Order
		released int
	)
	err := h.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		var err error
		if o, err = q.GetOrder(ctx, id); err != nil {
			return err
		}
		if !allowed(a, o) {
			if canSee(a, o) {
				return orders.ErrForbidden
			}
			return orders.ErrNotFound
		}
		if err := h.Machine.Cancel(ctx, q, o, reason); err != nil {
			return err
		}
		p, err := q.GetPaymentByOrder(ctx, id)
		switch {
		case errors.Is(err, orders.ErrNotFound):
		case err != nil:
			return err
		case p.Status == payments.StatusPending || p.Status == payments.StatusProcessing:
			ok, err := q.SetPaymentStatus(ctx, p.ID, p.Status, payments.StatusCancelled, nil)
			if err != nil {
				return err
			}
			if !ok {
				return orders.ErrStorageConflict
			}
			if err := q.SetOrderPayment(ctx, id, p.ID, payments.StatusCancelled); err != nil {
				return err
			}
			o.PaymentStatus = string(payments.StatusCancelled)
		}
		released, err = h.Ledger.Release(ctx, q, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if released > 0 {
		h.Metrics.Released(reason)
	}
	h.after(ctx, o, notify.OrderCancelled, map[string]any{"reason": reason})
	return o, nil
}

func (h *OrdersHandler) fulfil(ctx context.Context, a Actor, id string, to orders.Status, allowed permit) (*orders.Order, error) {
	var o *orders.Order
	err := h.Store.InTx(ctx, func(ctx context.Context, q store.Queries) error {
		var err error
		if o, err = q.GetOrder(ctx, id); err != nil {
			return err
		}
		if !allowed(a, o) {
			return orders.ErrNotFound
		}
		return h.Machine.Transition(ctx, q, o, to, "")
	})
	if err != nil {
		return nil, err
	}
	ev := notify.OrderShipped
	if to == orders.StatusDelivered {
		ev = notify.OrderDelivered
	}
	h.after(ctx, o, ev, nil)
	return o, nil
}

func (h *OrdersHandler) after(ctx context.Context, o *orders.Order, t notify.EventType, payload map[string]any) {
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, o.ID)
	}
	if h.Notifier != nil {
		h.Notifier.Dispatch(ctx, notify.NewEvent(t, o.ID, o.UserID, payload))
	}
}
