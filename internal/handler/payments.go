package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/ekagifts/storefront/internal/domain/order"
)

// SignatureHeader carries the webhook body signature.
const SignatureHeader = "X-Razorpay-Signature"

func writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(r, err)
	writeJSON(w, status, paymentFailure{Message: msg})
}

// createPaymentOrder opens a gateway payment for a new cart, or for an
// existing order when customerOrderId is given.
func (h *Handler) createPaymentOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writePaymentError(w, r, err)
		return
	}

	ctx := r.Context()
	orderID := req.CustomerOrderID
	if orderID == "" {
		o, err := h.orders.CreateOrder(ctx, req.toDomain())
		if err != nil {
			writePaymentError(w, r, err)
			return
		}
		orderID = o.ID
	}

	o, session, err := h.orders.InitiatePayment(ctx, orderID)
	if err != nil {
		writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentOrderResponse{
		OrderID:         session.ID,
		Amount:          session.Amount,
		Currency:        session.Currency,
		KeyID:           h.keyID,
		CustomerOrderID: o.ID,
		Total:           o.Total.InexactFloat64(),
	})
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writePaymentError(w, r, err)
		return
	}
	if req.CustomerOrderID == "" || req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		writePaymentError(w, r, badRequest("Missing payment verification fields"))
		return
	}

	o, err := h.orders.VerifyPayment(r.Context(), order.VerifyRequest{
		OrderID:        req.CustomerOrderID,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	})
	if err != nil {
		writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Success: true, Order: toDetail(o)})
}

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, badRequest("Request body too large"))
			return
		}
		writeError(w, r, errors.Wrap(err, "read webhook body"))
		return
	}

	if err := h.orders.HandleWebhook(r.Context(), body, r.Header.Get(SignatureHeader)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
