package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResponse{OrderID: o.ID})
}

func (h *Handler) getOrderSummary(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummary(o))
}
