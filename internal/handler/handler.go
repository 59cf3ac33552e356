// Package handler exposes the storefront and admin HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ekagifts/storefront/internal/domain/auth"
	"github.com/ekagifts/storefront/internal/domain/coupon"
	"github.com/ekagifts/storefront/internal/domain/order"
	"github.com/ekagifts/storefront/pkg/httpmiddleware"
)

// OrderService is the order reconciliation API used by the handlers.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	InitiatePayment(ctx context.Context, orderID string) (*order.Order, *order.PaymentSession, error)
	VerifyPayment(ctx context.Context, req order.VerifyRequest) (*order.Order, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	ListOrders(ctx context.Context, f order.Filter) (*order.Page, error)
	UpdateOrder(ctx context.Context, id string, p order.Patch) (*order.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	Stats(ctx context.Context) (*order.Stats, error)
}

// CouponService validates and manages coupons.
type CouponService interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Coupon, coupon.Result, error)
	ListActive(ctx context.Context) ([]coupon.Coupon, error)
	ListAll(ctx context.Context) ([]coupon.Coupon, error)
	Create(ctx context.Context, c coupon.Coupon) (*coupon.Coupon, error)
	Update(ctx context.Context, id string, p coupon.Patch) (*coupon.Coupon, error)
	Delete(ctx context.Context, id string) error
}

// AuthService authenticates admins.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Authenticate(token string) (*auth.Principal, error)
}

var (
	_ OrderService  = (*order.Service)(nil)
	_ CouponService = (*coupon.Service)(nil)
	_ AuthService   = (*auth.Service)(nil)
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// KeyID is the public gateway key returned to the checkout widget.
	KeyID string
	// LoginLimit throttles admin login attempts. Optional.
	LoginLimit httpmiddleware.Middleware
}

// Handler serves the HTTP API, delegating business logic to the domain
// services.
type Handler struct {
	orders     OrderService
	coupons    CouponService
	auth       AuthService
	keyID      string
	loginLimit httpmiddleware.Middleware
}

// New constructs a Handler with the required domain dependencies.
func New(cfg Config, orders OrderService, coupons CouponService, authSvc AuthService) *Handler {
	return &Handler{
		orders:     orders,
		coupons:    coupons,
		auth:       authSvc,
		keyID:      cfg.KeyID,
		loginLimit: cfg.LoginLimit,
	}
}

// Router returns a chi router with every API route mounted under /api. The
// given middlewares run inside the router, so RoutePattern is available to
// them once the request was served.
func (h *Handler) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{orderId}", h.getOrderSummary)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/create-order", h.createPaymentOrder)
			r.Post("/verify", h.verifyPayment)
			r.Post("/webhook", h.paymentWebhook)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", h.listCoupons)
			r.Post("/validate", h.validateCoupon)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Get("/", h.adminListCoupons)
				r.Post("/", h.adminCreateCoupon)
				r.Put("/{couponId}", h.adminUpdateCoupon)
				r.Delete("/{couponId}", h.adminDeleteCoupon)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			login := http.Handler(http.HandlerFunc(h.adminLogin))
			if h.loginLimit != nil {
				login = h.loginLimit(login)
			}
			r.Method(http.MethodPost, "/login", login)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Get("/orders", h.adminListOrders)
				r.Get("/orders/{orderId}", h.adminGetOrder)
				r.Patch("/orders/{orderId}", h.adminUpdateOrder)
				r.Delete("/orders/{orderId}", h.adminDeleteOrder)
				r.Get("/stats", h.adminStats)
			})
		})
	})
	return r
}

// RoutePattern returns the chi route pattern that matched r.
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
