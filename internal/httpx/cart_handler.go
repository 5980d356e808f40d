package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type CartHandler struct {
	Service  *cart.Service
	Validate *validator.Validate
}

type AddItemReq struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,lte=1000"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.get)
	r.Post("/cart/items", h.addItem)
	r.Delete("/cart/items/{productId}", h.removeItem)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Service.Get(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req AddItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Service.SetItem(r.Context(), actor.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Service.RemoveItem(r.Context(), actor.UserID, chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
