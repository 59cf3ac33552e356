//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekagifts/storefront/internal/domain/auth"
	"github.com/ekagifts/storefront/internal/domain/coupon"
	"github.com/ekagifts/storefront/internal/domain/order"
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

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://eka:eka@%s:%s/eka?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// Migrations are idempotent.
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPostgres(t *testing.T) {
	pool := startPostgres(t)

	t.Run("orders", func(t *testing.T) { testOrders(t, NewOrderRepository(pool)) })
	t.Run("coupons", func(t *testing.T) { testCoupons(t, NewCouponRepository(pool)) })
	t.Run("admins", func(t *testing.T) { testAdmins(t, NewAdminRepository(pool)) })
}

func newOrder(id string, created time.Time) *order.Order {
	return &order.Order{
		ID: id,
		Items: []order.LineItem{
			{ProductID: "hamper-1", Name: "Festive Hamper", Price: dec("1499"), Quantity: 1},
			{ProductID: "mug-2", Name: "Couple Mug Set", Price: dec("1899"), Quantity: 2, Image: "/img/mug.png"},
		},
		Customer:        order.Customer{Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
		ShippingAddress: order.Address{Line1: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001"},
		Subtotal:        dec("5297"),
		Discount:        dec("530"),
		CouponCode:      "FLATEKA10",
		Total:           dec("4767"),
		Currency:        "INR",
		Status:          order.StatusCreated,
		DeliveryStatus:  order.DeliveryOrdered,
		Version:         1,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func testOrders(t *testing.T, repo *OrderRepository) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	o := newOrder("EKA-A", base)
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.Create(ctx, newOrder("EKA-B", base.Add(time.Minute))))

	got, err := repo.Get(ctx, "EKA-A")
	require.NoError(t, err)
	assert.True(t, dec("4767").Equal(got.Total))
	assert.Equal(t, o.Items[1].Name, got.Items[1].Name)
	assert.True(t, dec("1899").Equal(got.Items[1].Price))
	assert.Equal(t, o.ShippingAddress, got.ShippingAddress)
	assert.True(t, base.Equal(got.CreatedAt))

	_, err = repo.Get(ctx, "EKA-MISSING")
	require.ErrorIs(t, err, order.ErrNotFound)

	// Versioned update.
	got.GatewayOrderID = "order_gw1"
	got.Status = order.StatusPending
	require.NoError(t, repo.Update(ctx, got, 1))
	assert.Equal(t, 2, got.Version)

	stale := *got
	stale.Status = order.StatusCancelled
	require.ErrorIs(t, repo.Update(ctx, &stale, 1), order.ErrConflict)

	ghost := newOrder("EKA-GHOST", base)
	require.ErrorIs(t, repo.Update(ctx, ghost, 1), order.ErrNotFound)

	byGW, err := repo.GetByGatewayOrderID(ctx, "order_gw1")
	require.NoError(t, err)
	assert.Equal(t, "EKA-A", byGW.ID)
	assert.Equal(t, order.StatusPending, byGW.Status)

	_, err = repo.GetByGatewayOrderID(ctx, "")
	require.ErrorIs(t, err, order.ErrNotFound)

	// Listing.
	page, err := repo.List(ctx, order.Filter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, "EKA-B", page.Orders[0].ID)

	page, err = repo.List(ctx, order.Filter{Status: order.StatusPending, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = repo.List(ctx, order.Filter{Search: "ASHA@", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = repo.List(ctx, order.Filter{Search: "100%", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	page, err = repo.List(ctx, order.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, "EKA-A", page.Orders[0].ID)

	// Stats.
	got.Status = order.StatusPaid
	require.NoError(t, repo.Update(ctx, got, 2))
	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Orders)
	assert.Equal(t, 1, st.ByStatus[order.StatusPaid])
	assert.True(t, dec("4767").Equal(st.PaidRevenue))

	// Delete.
	require.NoError(t, repo.Delete(ctx, "EKA-B"))
	require.ErrorIs(t, repo.Delete(ctx, "EKA-B"), order.ErrNotFound)
}

func testCoupons(t *testing.T, repo *CouponRepository) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	flat := coupon.Coupon{
		ID: "c-1", Code: "FLATEKA10", Label: "10% off", DiscountType: coupon.DiscountPercentage,
		DiscountValue: dec("10"), MinSubtotal: dec("400"), IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	fixed := coupon.Coupon{
		ID: "c-2", Code: "EKA200", Label: "₹200 off", DiscountType: coupon.DiscountFixed,
		DiscountValue: dec("200"), MinSubtotal: dec("1000"), IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, &flat))
	require.NoError(t, repo.Create(ctx, &fixed))

	dup := flat
	dup.ID = "c-3"
	require.ErrorIs(t, repo.Create(ctx, &dup), coupon.ErrDuplicateCode)

	got, err := repo.FindActiveByCode(ctx, "EKA200")
	require.NoError(t, err)
	assert.Equal(t, coupon.DiscountFixed, got.DiscountType)
	assert.True(t, dec("1000").Equal(got.MinSubtotal))

	_, err = repo.FindActiveByCode(ctx, "NOPE")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)

	fixed.IsActive = false
	require.NoError(t, repo.Update(ctx, &fixed))
	_, err = repo.FindActiveByCode(ctx, "EKA200")
	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)

	clash := fixed
	clash.Code = "FLATEKA10"
	require.ErrorIs(t, repo.Update(ctx, &clash), coupon.ErrDuplicateCode)

	missing := fixed
	missing.ID = "c-missing"
	missing.Code = "OTHER"
	require.ErrorIs(t, repo.Update(ctx, &missing), coupon.ErrNotFound)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "FLATEKA10", active[0].Code)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	codes, err := repo.ListCodes(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"FLATEKA10", "EKA200"}, codes)

	// Batch upsert updates existing codes and inserts new ones.
	require.NoError(t, repo.UpsertBatch(ctx, []coupon.Coupon{
		{ID: "ignored", Code: "EKA200", DiscountType: coupon.DiscountFixed, DiscountValue: dec("250"), MinSubtotal: dec("1000"), IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "c-4", Code: "DIWALI15", DiscountType: coupon.DiscountPercentage, DiscountValue: dec("15"), MinSubtotal: decimal.Zero, IsActive: true, CreatedAt: now, UpdatedAt: now},
	}))
	got, err = repo.Get(ctx, "c-2")
	require.NoError(t, err)
	assert.True(t, dec("250").Equal(got.DiscountValue))
	assert.True(t, got.IsActive)

	require.NoError(t, repo.Delete(ctx, "c-4"))
	require.ErrorIs(t, repo.Delete(ctx, "c-4"), coupon.ErrNotFound)
	_, err = repo.Get(ctx, "c-4")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func testAdmins(t *testing.T, repo *AdminRepository) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := &auth.Admin{ID: "adm-1", Email: "admin@ekagifts.in", Name: "Admin", PasswordHash: "$2a$hash1", Active: true, CreatedAt: now}
	require.NoError(t, repo.Upsert(ctx, a))

	again := &auth.Admin{ID: "adm-other", Email: "admin@ekagifts.in", Name: "Owner", PasswordHash: "$2a$hash2", Active: true, CreatedAt: now.Add(time.Hour)}
	require.NoError(t, repo.Upsert(ctx, again))
	assert.Equal(t, "adm-1", again.ID)

	got, err := repo.FindByEmail(ctx, "admin@ekagifts.in")
	require.NoError(t, err)
	assert.Equal(t, "Owner", got.Name)
	assert.Equal(t, "$2a$hash2", got.PasswordHash)
	assert.True(t, now.Equal(got.CreatedAt))

	_, err = repo.FindByEmail(ctx, "ghost@ekagifts.in")
	require.ErrorIs(t, err, auth.ErrNotFound)
}
