//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/ekagifts/storefront/internal/domain/auth"
	"github.com/ekagifts/storefront/internal/domain/coupon"
	"github.com/ekagifts/storefront/internal/domain/order"
	"github.com/ekagifts/storefront/internal/storage/postgres"
)

const (
	keySecret     = "rzp_test_secret"
	webhookSecret = "rzp_webhook_secret"
	adminPassword = "correct horse battery"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "eka",
				"POSTGRES_PASSWORD": "eka",
				"POSTGRES_DB":       "eka",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, fmt.Sprintf("postgres://eka:eka@%s:%s/eka?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(ctx, pool))
	return pool
}

// fakeRazorpay answers order creation with sequential gateway ids.
func fakeRazorpay(t *testing.T) *httptest.Server {
	var seq atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       fmt.Sprintf("order_e2e%d", seq.Add(1)),
			"entity":   "order",
			"amount":   req.Amount,
			"currency": req.Currency,
			"receipt":  req.Receipt,
			"status":   "created",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seed(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := t.Context()
	now := time.Now().UTC()

	coupons := []coupon.Coupon{
		{Code: "FLATEKA10", Label: "Flat 10% off", DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), MinSubtotal: decimal.NewFromInt(400), IsActive: true},
		{Code: "EKA200", Label: "₹200 off", DiscountType: coupon.DiscountFixed, DiscountValue: decimal.NewFromInt(200), MinSubtotal: decimal.NewFromInt(1000), IsActive: true},
	}
	for i := range coupons {
		coupons[i].ID = uuid.New().String()
		coupons[i].CreatedAt, coupons[i].UpdatedAt = now, now
	}
	require.NoError(t, postgres.NewCouponRepository(pool).UpsertBatch(ctx, coupons))

	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	require.NoError(t, postgres.NewAdminRepository(pool).Upsert(ctx, &auth.Admin{
		ID:           uuid.New().String(),
		Email:        "admin@ekagifts.in",
		Name:         "Admin",
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
	}))
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any, headers ...string) (int, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(c.t.Context(), method, c.base+path, rd)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestCheckoutFlow(t *testing.T) {
	pool := startPostgres(t)
	seed(t, pool)
	gateway := fakeRazorpay(t)

	cfg := &Config{
		Razorpay: RazorpayConfig{
			KeyID:         "rzp_test_key",
			KeySecret:     keySecret,
			WebhookSecret: webhookSecret,
			BaseURL:       gateway.URL,
			Currency:      "INR",
			Timeout:       5 * time.Second,
		},
		JWT:        JWTConfig{Secret: strings.Repeat("s", 32), TTL: time.Hour},
		RateLimit:  RateLimitConfig{Max: 1000, Window: time.Minute},
		LoginLimit: LoginLimitConfig{Max: 100, Window: time.Minute},
		CORS:       CORSConfig{Origins: []string{"*"}},
	}
	a, err := newAPI(t.Context(), zaptest.NewLogger(t), tracenoop.NewTracerProvider(), noop.NewMeterProvider(), cfg, pool)
	require.NoError(t, err)
	t.Cleanup(a.close)
	a.health.SetReady(true)

	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)
	c := &client{t: t, base: srv.URL}

	status, _ := c.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, status)

	cart := map[string]any{
		"customerName": "Asha Rao",
		"email":        "asha@example.com",
		"phone":        "9876543210",
		"address":      map[string]any{"line1": "12 MG Road", "city": "Bengaluru", "state": "KA", "pincode": "560001"},
		"items": []map[string]any{
			{"id": "hamper-1", "name": "Festive Hamper", "price": 1499, "quantity": 1},
			{"id": "mug-2", "name": "Couple Mug Set", "price": 1899, "quantity": 2},
		},
	}

	t.Run("coupon validation", func(t *testing.T) {
		status, body := c.do(http.MethodPost, "/api/coupons/validate", map[string]any{"code": "flateka10", "subtotal": 5297})
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, map[string]any{"code": "FLATEKA10", "label": "Flat 10% off", "discount": float64(530)}, body["coupon"])

		status, body = c.do(http.MethodPost, "/api/coupons/validate", map[string]any{"code": "EKA200", "subtotal": 999})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, body["valid"])

		status, _ = c.do(http.MethodPost, "/api/coupons/validate", map[string]any{"code": "NOPE", "subtotal": 999})
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("create order", func(t *testing.T) {
		status, body := c.do(http.MethodPost, "/api/orders", map[string]any{
			"items":           cart["items"],
			"customer":        map[string]any{"name": "Asha Rao", "email": "asha@example.com", "phone": "9876543210"},
			"shippingAddress": cart["address"],
			"notes":           "Gift wrap please",
		})
		require.Equal(t, http.StatusCreated, status, body)

		_, summary := c.do(http.MethodGet, "/api/orders/"+body["orderId"].(string), nil)
		assert.Equal(t, "created", summary["status"])
		assert.InDelta(t, 5297, summary["total"], 0)
	})

	var customerOrderID, gatewayOrderID string
	t.Run("create payment order", func(t *testing.T) {
		cart["discount"] = 530
		cart["couponCode"] = "FLATEKA10"
		cart["amount"] = 4767
		status, body := c.do(http.MethodPost, "/api/payments/create-order", cart)
		require.Equal(t, http.StatusOK, status, body)
		assert.InDelta(t, 476700, body["amount"], 0)
		assert.Equal(t, "rzp_test_key", body["keyId"])
		customerOrderID = body["customerOrderId"].(string)
		gatewayOrderID = body["orderId"].(string)

		cart["amount"] = 5000
		status, body = c.do(http.MethodPost, "/api/payments/create-order", cart)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, body["success"])
	})

	t.Run("tampered verification fails the order", func(t *testing.T) {
		cart["amount"] = 4767
		_, body := c.do(http.MethodPost, "/api/payments/create-order", cart)
		victim := body["customerOrderId"].(string)

		status, out := c.do(http.MethodPost, "/api/payments/verify", map[string]any{
			"razorpay_order_id":   body["orderId"],
			"razorpay_payment_id": "pay_forged",
			"razorpay_signature":  strings.Repeat("0", 64),
			"customerOrderId":     victim,
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, false, out["success"])

		_, summary := c.do(http.MethodGet, "/api/orders/"+victim, nil)
		assert.Equal(t, "failed", summary["status"])
	})

	t.Run("verify payment", func(t *testing.T) {
		verify := map[string]any{
			"razorpay_order_id":   gatewayOrderID,
			"razorpay_payment_id": "pay_e2e1",
			"razorpay_signature":  order.PaymentSignature([]byte(keySecret), gatewayOrderID, "pay_e2e1"),
			"customerOrderId":     customerOrderID,
		}
		status, body := c.do(http.MethodPost, "/api/payments/verify", verify)
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "paid", body["order"].(map[string]any)["status"])

		// Replaying the same callback is idempotent.
		status, _ = c.do(http.MethodPost, "/api/payments/verify", verify)
		assert.Equal(t, http.StatusOK, status)

		_, summary := c.do(http.MethodGet, "/api/orders/"+customerOrderID, nil)
		assert.Equal(t, "paid", summary["status"])
		assert.InDelta(t, 4767, summary["total"], 0)
	})

	t.Run("webhook", func(t *testing.T) {
		_, body := c.do(http.MethodPost, "/api/payments/create-order", cart)
		id, gwID := body["customerOrderId"].(string), body["orderId"].(string)

		payload := fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_hook","order_id":%q}}}}`, gwID)
		status, _ := c.do(http.MethodPost, "/api/payments/webhook", payload, "X-Razorpay-Signature", "bad")
		assert.Equal(t, http.StatusBadRequest, status)

		sig := order.WebhookSignature([]byte(webhookSecret), []byte(payload))
		status, _ = c.do(http.MethodPost, "/api/payments/webhook", payload, "X-Razorpay-Signature", sig)
		require.Equal(t, http.StatusOK, status)

		_, summary := c.do(http.MethodGet, "/api/orders/"+id, nil)
		assert.Equal(t, "paid", summary["status"])
	})

	t.Run("admin", func(t *testing.T) {
		status, _ := c.do(http.MethodGet, "/api/admin/orders", nil)
		assert.Equal(t, http.StatusUnauthorized, status)

		status, body := c.do(http.MethodPost, "/api/admin/login", map[string]any{"email": "Admin@EkaGifts.in", "password": adminPassword})
		require.Equal(t, http.StatusOK, status, body)
		admin := &client{t: t, base: srv.URL, token: body["token"].(string)}

		status, body = admin.do(http.MethodGet, "/api/admin/orders?status=paid", nil)
		require.Equal(t, http.StatusOK, status)
		assert.InDelta(t, 2, body["total"], 0)

		status, body = admin.do(http.MethodGet, "/api/admin/orders/"+customerOrderID, nil)
		require.Equal(t, http.StatusOK, status)
		version := body["version"]

		status, body = admin.do(http.MethodPatch, "/api/admin/orders/"+customerOrderID,
			map[string]any{"deliveryStatus": "dispatched", "version": version})
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, "dispatched", body["deliveryStatus"])

		status, _ = admin.do(http.MethodPatch, "/api/admin/orders/"+customerOrderID,
			map[string]any{"deliveryStatus": "shipped", "version": version})
		assert.Equal(t, http.StatusConflict, status)

		status, body = admin.do(http.MethodGet, "/api/admin/stats", nil)
		require.Equal(t, http.StatusOK, status)
		assert.InDelta(t, 4767*2, body["paidRevenue"], 0.001)

		status, body = admin.do(http.MethodPost, "/api/coupons/admin", map[string]any{
			"code": "welcome50", "label": "₹50 off", "discountType": "fixed", "discountValue": 50, "minSubtotal": 0,
		})
		require.Equal(t, http.StatusCreated, status, body)

		status, _ = c.do(http.MethodPost, "/api/coupons/validate", map[string]any{"code": "WELCOME50", "subtotal": 100})
		assert.Equal(t, http.StatusOK, status, "new codes are redeemable without a restart")
	})
}
