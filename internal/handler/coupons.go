package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]couponPublic, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, toCouponPublic(c))
	}
	writeJSON(w, http.StatusOK, couponListResponse[couponPublic]{Coupons: out})
}

// validateCoupon answers 404 for an unknown or inactive code and 400 when
// the subtotal is below the coupon minimum.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		status, msg := mapError(r, err)
		writeJSON(w, status, validateResponse{Message: msg})
		return
	}

	c, res, err := h.coupons.Validate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		status, msg := mapError(r, err)
		writeJSON(w, status, validateResponse{Message: msg})
		return
	}
	switch {
	case res.Valid:
		writeJSON(w, http.StatusOK, validateResponse{
			Valid: true,
			Coupon: &appliedCoupon{
				Code:     c.Code,
				Label:    c.Label,
				Discount: res.Discount.InexactFloat64(),
			},
		})
	case res.BelowMinimum:
		writeJSON(w, http.StatusBadRequest, validateResponse{Message: res.Reason})
	default:
		writeJSON(w, http.StatusNotFound, validateResponse{Message: res.Reason})
	}
}

func (h *Handler) adminListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]couponAdmin, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, toCouponAdmin(c))
	}
	writeJSON(w, http.StatusOK, couponListResponse[couponAdmin]{Coupons: out})
}

func (h *Handler) adminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Create(r.Context(), req.toCoupon())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponAdmin(*c))
}

func (h *Handler) adminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Update(r.Context(), chi.URLParam(r, "couponId"), req.toPatch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponAdmin(*c))
}

func (h *Handler) adminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "couponId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Coupon deleted")
}
