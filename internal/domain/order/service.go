package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// minorUnits converts rupees to paise.
var minorUnits = decimal.NewFromInt(100)

// minPaymentAmount is the smallest amount the gateway accepts, in paise.
const minPaymentAmount = 100

// Config holds the secrets and defaults the service is constructed with.
type Config struct {
	// KeySecret signs checkout callbacks.
	KeySecret []byte
	// WebhookSecret signs webhook bodies.
	WebhookSecret []byte
	// Currency is the ISO code stored on new orders. Defaults to INR.
	Currency string
}

// CreateOrderRequest holds the input for placing an order.
type CreateOrderRequest struct {
	Items           []LineItem
	Customer        Customer
	ShippingAddress Address
	Notes           string
	// Discount is subtracted from the subtotal as given; the coupon that
	// produced it is validated separately.
	Discount   decimal.Decimal
	CouponCode string
	// ExpectedTotal, when set, must equal the computed total.
	ExpectedTotal *decimal.Decimal
}

// VerifyRequest is a checkout callback relayed by the client.
type VerifyRequest struct {
	OrderID        string
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

// Patch is an admin partial update. Nil fields are left untouched.
type Patch struct {
	Status         *Status
	DeliveryStatus *DeliveryStatus
	Notes          *string
	// Version, when set, must equal the stored version.
	Version *int
}

// Service reconciles orders with gateway payments.
type Service struct {
	orders  Repository
	gateway Gateway
	cfg     Config
	now     func() time.Time
	newID   func() string

	created  metric.Int64Counter
	verified metric.Int64Counter
}

// NewService creates an order Service.
func NewService(orders Repository, gateway Gateway, cfg Config, meter metric.Meter) (*Service, error) {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	created, err := meter.Int64Counter("eka.orders.created",
		metric.WithDescription("Orders created at checkout"))
	if err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	verified, err := meter.Int64Counter("eka.payments.verified",
		metric.WithDescription("Payment verifications by outcome"))
	if err != nil {
		return nil, errors.Wrap(err, "payments verified counter")
	}
	return &Service{
		orders:   orders,
		gateway:  gateway,
		cfg:      cfg,
		now:      time.Now,
		newID:    newOrderID,
		created:  created,
		verified: verified,
	}, nil
}

// newOrderID returns an opaque, receipt-sized identifier.
func newOrderID() string {
	return "EKA-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// CreateOrder validates the cart, computes the total once and persists the
// order in the created state.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	subtotal := decimal.Zero
	for i, item := range req.Items {
		switch {
		case strings.TrimSpace(item.Name) == "":
			return nil, &InvalidItemError{Index: i, ProductID: item.ProductID, Reason: "name is required"}
		case !item.Price.IsPositive():
			return nil, &InvalidItemError{Index: i, ProductID: item.ProductID, Reason: "price must be greater than 0"}
		case item.Quantity < 1:
			return nil, &InvalidItemError{Index: i, ProductID: item.ProductID, Reason: "quantity must be at least 1"}
		}
		subtotal = subtotal.Add(item.LineTotal())
	}

	if err := validateCustomer(req.Customer, req.ShippingAddress); err != nil {
		return nil, err
	}

	discount := req.Discount
	if discount.IsNegative() {
		return nil, &InvalidFieldError{Field: "discount", Reason: "must not be negative"}
	}
	if discount.GreaterThan(subtotal) {
		return nil, &InvalidFieldError{Field: "discount", Reason: "must not exceed the subtotal"}
	}
	total := subtotal.Sub(discount)
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(total) {
		return nil, &InvalidFieldError{
			Field:  "amount",
			Reason: "does not match cart total " + total.StringFixed(2),
		}
	}

	now := s.now().UTC()
	o := &Order{
		ID:              s.newID(),
		Items:           req.Items,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		Subtotal:        subtotal,
		Discount:        discount,
		CouponCode:      strings.ToUpper(strings.TrimSpace(req.CouponCode)),
		Total:           total,
		Currency:        s.cfg.Currency,
		Status:          StatusCreated,
		DeliveryStatus:  DeliveryOrdered,
		Notes:           req.Notes,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("total", o.Total.String()),
		zap.Int("items", len(o.Items)),
	)
	return o, nil
}

func validateCustomer(c Customer, a Address) error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return &InvalidFieldError{Field: "customer.name", Reason: "is required"}
	case !strings.Contains(c.Email, "@"):
		return &InvalidFieldError{Field: "customer.email", Reason: "must be a valid email"}
	case strings.TrimSpace(c.Phone) == "":
		return &InvalidFieldError{Field: "customer.phone", Reason: "is required"}
	case strings.TrimSpace(a.Line1) == "":
		return &InvalidFieldError{Field: "shippingAddress.line1", Reason: "is required"}
	}
	return nil
}

// InitiatePayment opens a gateway payment session for the order total and
// records the gateway order id. On gateway failure the order is left as is
// so the caller can retry.
func (s *Service) InitiatePayment(ctx context.Context, orderID string) (*Order, *PaymentSession, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get order")
	}
	if o.Status.Terminal() {
		return nil, nil, &TransitionError{OrderID: o.ID, From: o.Status, Action: "initiate payment for"}
	}

	amount := o.Total.Mul(minorUnits).Round(0).IntPart()
	if amount < minPaymentAmount {
		return nil, nil, &InvalidFieldError{Field: "amount", Reason: "must be at least ₹1 to pay online"}
	}

	session, err := s.gateway.CreateOrder(ctx, PaymentRequest{
		Amount:   amount,
		Currency: o.Currency,
		Receipt:  o.ID,
		Notes: map[string]string{
			"customerOrderId": o.ID,
			"email":           o.Customer.Email,
		},
	})
	if err != nil {
		return nil, nil, &GatewayError{Err: err}
	}

	expected := o.Version
	o.GatewayOrderID = session.ID
	o.Status = StatusPending
	o.UpdatedAt = s.now().UTC()
	if err := s.orders.Update(ctx, o, expected); err != nil {
		return nil, nil, errors.Wrap(err, "store gateway order")
	}

	zctx.From(ctx).Info("Payment initiated",
		zap.String("order_id", o.ID),
		zap.String("gateway_order_id", session.ID),
		zap.Int64("amount", amount),
	)
	return o, session, nil
}

// VerifyPayment checks the callback signature and settles the order. The
// resulting status is derived from the signature alone. A mismatch marks the
// order failed and returns ErrPaymentVerification.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyRequest) (*Order, error) {
	lg := zctx.From(ctx).With(zap.String("order_id", req.OrderID))

	o, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	expectedSig := PaymentSignature(s.cfg.KeySecret, req.GatewayOrderID, req.PaymentID)
	valid := o.GatewayOrderID != "" &&
		o.GatewayOrderID == req.GatewayOrderID &&
		signatureEqual(expectedSig, req.Signature)

	if o.Status.Terminal() {
		if o.Status == StatusPaid && valid && o.PaymentID == req.PaymentID {
			return o, nil
		}
		return nil, &TransitionError{OrderID: o.ID, From: o.Status, Action: "verify payment for"}
	}

	expected := o.Version
	o.UpdatedAt = s.now().UTC()
	if !valid {
		o.Status = StatusFailed
		if err := s.orders.Update(ctx, o, expected); err != nil {
			return nil, errors.Wrap(err, "mark order failed")
		}
		s.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		lg.Warn("Payment signature mismatch", zap.String("gateway_order_id", req.GatewayOrderID))
		return nil, ErrPaymentVerification
	}

	o.Status = StatusPaid
	o.PaymentID = req.PaymentID
	o.Signature = req.Signature
	if err := s.orders.Update(ctx, o, expected); err != nil {
		return nil, errors.Wrap(err, "mark order paid")
	}
	s.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "paid")))
	lg.Info("Payment verified", zap.String("payment_id", req.PaymentID))
	return o, nil
}

// HandleWebhook authenticates a gateway notification and settles the order
// it refers to. Events for unknown orders, terminal orders or of other kinds
// are acknowledged without change.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if len(s.cfg.WebhookSecret) == 0 || !signatureEqual(WebhookSignature(s.cfg.WebhookSecret, body), signature) {
		return ErrWebhookSignature
	}

	event, err := s.gateway.ParseWebhook(body)
	if err != nil {
		return &InvalidFieldError{Field: "body", Reason: err.Error()}
	}
	lg := zctx.From(ctx).With(
		zap.String("event", string(event.Type)),
		zap.String("gateway_order_id", event.GatewayOrderID),
	)

	switch event.Type {
	case EventPaymentCaptured, EventOrderPaid:
	case EventPaymentFailed:
		// A failed attempt leaves the gateway order open for a retry.
		lg.Info("Payment attempt failed", zap.String("payment_id", event.PaymentID))
		s.verified.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", "attempt_failed"),
			attribute.String("source", "webhook"),
		))
		return nil
	default:
		lg.Debug("Ignoring webhook event")
		return nil
	}

	o, err := s.orders.GetByGatewayOrderID(ctx, event.GatewayOrderID)
	if errors.Is(err, ErrNotFound) {
		lg.Warn("Webhook for unknown gateway order")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "get order by gateway id")
	}
	if o.Status.Terminal() {
		return nil
	}

	expected := o.Version
	o.Status = StatusPaid
	if event.PaymentID != "" {
		o.PaymentID = event.PaymentID
	}
	o.UpdatedAt = s.now().UTC()
	if err := s.orders.Update(ctx, o, expected); err != nil {
		return errors.Wrap(err, "apply webhook")
	}

	s.verified.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(StatusPaid)),
		attribute.String("source", "webhook"),
	))
	lg.Info("Order settled by webhook", zap.String("order_id", o.ID))
	return nil
}

// UpdateOrder applies an admin partial update. Admins may set any status.
func (s *Service) UpdateOrder(ctx context.Context, id string, p Patch) (*Order, error) {
	if p.Status != nil && !p.Status.Valid() {
		return nil, &InvalidFieldError{Field: "status", Reason: "unknown status " + string(*p.Status)}
	}
	if p.DeliveryStatus != nil && !p.DeliveryStatus.Valid() {
		return nil, &InvalidFieldError{Field: "deliveryStatus", Reason: "unknown delivery status " + string(*p.DeliveryStatus)}
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if p.Version != nil && *p.Version != o.Version {
		return nil, ErrConflict
	}

	expected := o.Version
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.DeliveryStatus != nil {
		o.DeliveryStatus = *p.DeliveryStatus
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	o.UpdatedAt = s.now().UTC()

	if err := s.orders.Update(ctx, o, expected); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// DeleteOrder removes an order. A missing order is reported as ErrNotFound.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}
	zctx.From(ctx).Info("Order deleted", zap.String("order_id", id))
	return nil
}

// GetOrder returns the order with the given id.
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListOrders returns a page of orders, newest first.
func (s *Service) ListOrders(ctx context.Context, f Filter) (*Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &InvalidFieldError{Field: "status", Reason: "unknown status " + string(f.Status)}
	}
	if f.DeliveryStatus != "" && !f.DeliveryStatus.Valid() {
		return nil, &InvalidFieldError{Field: "deliveryStatus", Reason: "unknown delivery status " + string(f.DeliveryStatus)}
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)

	page, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	page.Limit, page.Offset = f.Limit, f.Offset
	return page, nil
}

// Stats returns dashboard totals.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.orders.Stats(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "order stats")
	}
	return st, nil
}
