package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/ekagifts/storefront/internal/domain/auth"
	"github.com/ekagifts/storefront/internal/domain/coupon"
	"github.com/ekagifts/storefront/internal/domain/order"
)

// maxBodySize caps JSON request bodies.
const maxBodySize = 1 << 20

// badRequestError is a malformed request body or parameter.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return badRequest("Request body too large")
		case errors.Is(err, io.EOF):
			return badRequest("Request body is required")
		default:
			return badRequest("Invalid JSON body")
		}
	}
	return nil
}

// mapError converts domain errors to an HTTP status and a client-safe
// message. Unexpected errors map to 500 and are logged.
func mapError(r *http.Request, err error) (int, string) {
	var (
		badReq       *badRequestError
		itemErr      *order.InvalidItemError
		orderField   *order.InvalidFieldError
		couponField  *coupon.InvalidFieldError
		transition   *order.TransitionError
		gatewayError *order.GatewayError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest, badReq.msg
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest, "Cart is empty"
	case errors.As(err, &itemErr):
		return http.StatusBadRequest, itemErr.Error()
	case errors.As(err, &orderField):
		return http.StatusBadRequest, orderField.Error()
	case errors.As(err, &couponField):
		return http.StatusBadRequest, couponField.Error()
	case errors.Is(err, coupon.ErrNegativeSubtotal):
		return http.StatusBadRequest, "subtotal must not be negative"
	case errors.Is(err, order.ErrPaymentVerification):
		return http.StatusBadRequest, "Payment verification failed"
	case errors.Is(err, order.ErrWebhookSignature):
		return http.StatusBadRequest, "Invalid webhook signature"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, coupon.ErrNotFound):
		return http.StatusNotFound, "Coupon not found"
	case errors.Is(err, order.ErrConflict):
		return http.StatusConflict, "Order was modified, reload and retry"
	case errors.As(err, &transition):
		return http.StatusConflict, "Order is already " + string(transition.From)
	case errors.Is(err, coupon.ErrDuplicateCode):
		return http.StatusConflict, "Coupon code already exists"
	case errors.As(err, &gatewayError):
		zctx.From(r.Context()).Error("Payment gateway error", zap.Error(err))
		return http.StatusBadGateway, "Payment gateway is unavailable, please retry"
	}

	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	return http.StatusInternalServerError, "Internal server error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(r, err)
	writeMessage(w, status, msg)
}
