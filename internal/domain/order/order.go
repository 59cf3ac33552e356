package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPending, StatusPaid, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCancelled
}

// DeliveryStatus tracks fulfilment once an order is placed.
type DeliveryStatus string

const (
	DeliveryOrdered    DeliveryStatus = "ordered"
	DeliveryDispatched DeliveryStatus = "dispatched"
	DeliveryShipped    DeliveryStatus = "shipped"
	DeliveryDelivered  DeliveryStatus = "delivered"
)

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryOrdered, DeliveryDispatched, DeliveryShipped, DeliveryDelivered:
		return true
	}
	return false
}

// LineItem is a snapshot of a cart item taken at checkout.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// LineTotal returns price * quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Customer identifies who placed the order.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Address is a shipping destination.
type Address struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country,omitempty"`
}

// Order is a checkout record reconciled against the payment gateway.
type Order struct {
	ID              string
	Items           []LineItem
	Customer        Customer
	ShippingAddress Address
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	CouponCode      string
	// Total is Subtotal minus Discount, fixed at creation.
	Total          decimal.Decimal
	Currency       string
	Status         Status
	DeliveryStatus DeliveryStatus
	GatewayOrderID string
	PaymentID      string
	Signature      string
	Notes          string
	// Version increments on every stored mutation.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows an admin order listing.
type Filter struct {
	Status         Status
	DeliveryStatus DeliveryStatus
	// Search matches order id, customer name, email or phone.
	Search string
	Limit  int
	Offset int
}

// Page is one page of an order listing.
type Page struct {
	Orders []Order
	// Total counts every match, ignoring Limit and Offset.
	Total  int
	Limit  int
	Offset int
}

// Stats summarises orders for the admin dashboard.
type Stats struct {
	Orders      int
	ByStatus    map[Status]int
	PaidRevenue decimal.Decimal
}

// Repository defines persistence operations for orders. Every mutation
// touches exactly one row.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)
	List(ctx context.Context, f Filter) (*Page, error)
	// Update stores o if the stored version still equals expectedVersion and
	// bumps o.Version. It returns ErrConflict on a version mismatch and
	// ErrNotFound when the row is gone.
	Update(ctx context.Context, o *Order, expectedVersion int) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*Stats, error)
}

// PaymentRequest asks the gateway to open a payment session.
type PaymentRequest struct {
	// Amount is in the currency's minor unit (paise for INR).
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// PaymentSession is the gateway-side order a shopper pays against.
type PaymentSession struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
}

// WebhookEventType is a gateway notification kind.
type WebhookEventType string

const (
	EventPaymentCaptured WebhookEventType = "payment.captured"
	EventPaymentFailed   WebhookEventType = "payment.failed"
	EventOrderPaid       WebhookEventType = "order.paid"
)

// WebhookEvent is the part of a gateway notification the service acts on.
type WebhookEvent struct {
	Type           WebhookEventType
	GatewayOrderID string
	PaymentID      string
}

// Gateway is the external payment provider.
type Gateway interface {
	CreateOrder(ctx context.Context, req PaymentRequest) (*PaymentSession, error)
	ParseWebhook(body []byte) (*WebhookEvent, error)
}
