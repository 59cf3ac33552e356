package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyItems is returned when an order has no line items.
	ErrEmptyItems = errors.New("cart is empty")
	// ErrNotFound is returned when no order has the requested id.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when the order changed since it was read.
	ErrConflict = errors.New("order was modified concurrently")
	// ErrPaymentVerification is returned when a payment signature does not match.
	ErrPaymentVerification = errors.New("payment verification failed")
	// ErrWebhookSignature is returned when a webhook body is not signed by the gateway.
	ErrWebhookSignature = errors.New("invalid webhook signature")
)

// InvalidItemError reports a line item that cannot be ordered.
type InvalidItemError struct {
	Index     int
	ProductID string
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %s", e.Index, e.ProductID, e.Reason)
}

// InvalidFieldError reports a rejected order attribute.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// TransitionError is returned when an action is not allowed from the
// order's current status.
type TransitionError struct {
	OrderID string
	From    Status
	Action  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s order %s in status %s", e.Action, e.OrderID, e.From)
}

// GatewayError wraps a failure of the payment provider.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return "payment gateway: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
