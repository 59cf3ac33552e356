package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ekagifts/storefront/internal/domain/auth"
	"github.com/ekagifts/storefront/internal/domain/coupon"
	"github.com/ekagifts/storefront/internal/storage/postgres"
)

// launchCoupons are the coupons the storefront opens with.
var launchCoupons = []coupon.Coupon{
	{
		Code:          "FLATEKA10",
		Label:         "Flat 10% off on orders above ₹400",
		DiscountType:  coupon.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		MinSubtotal:   decimal.NewFromInt(400),
		IsActive:      true,
	},
	{
		Code:          "EKA200",
		Label:         "₹200 off on orders above ₹1000",
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: decimal.NewFromInt(200),
		MinSubtotal:   decimal.NewFromInt(1000),
		IsActive:      true,
	},
}

func main() {
	var (
		databaseURL   string
		adminEmail    string
		adminName     string
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&adminEmail, "admin-email", "admin@ekagifts.in", "email of the admin account to seed")
	flag.StringVar(&adminName, "admin-name", "EKA Admin", "display name of the admin account")
	flag.StringVar(&adminPassword, "admin-password", "", "admin password (or EKA_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("EKA_SEED_ADMIN_PASSWORD")
	}
	if len(adminPassword) < 8 {
		slog.Error("admin password of at least 8 characters is required: set --admin-password or EKA_SEED_ADMIN_PASSWORD")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	admin := &auth.Admin{Email: auth.NormalizeEmail(adminEmail), Name: adminName}
	if err := run(ctx, databaseURL, admin, adminPassword); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, admin *auth.Admin, password string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedAdmin(ctx, postgres.NewAdminRepository(pool), admin, password); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding launch coupons")

	now := time.Now().UTC()
	coupons := make([]coupon.Coupon, 0, len(launchCoupons))
	for _, c := range launchCoupons {
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		c.ID = uuid.New().String()
		c.CreatedAt, c.UpdatedAt = now, now
		coupons = append(coupons, c)
	}

	if err := repo.UpsertBatch(ctx, coupons); err != nil {
		return err
	}

	for _, c := range coupons {
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("label", c.Label))
	}

	return nil
}

func seedAdmin(ctx context.Context, repo *postgres.AdminRepository, admin *auth.Admin, password string) error {
	slog.Info("seeding admin account", slog.String("email", admin.Email))

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	admin.ID = uuid.New().String()
	admin.PasswordHash = hash
	admin.Active = true
	admin.CreatedAt = time.Now().UTC()

	if err := repo.Upsert(ctx, admin); err != nil {
		return errors.Wrap(err, "upsert admin")
	}

	slog.Info("upserted admin", slog.String("id", admin.ID), slog.String("email", admin.Email))

	return nil
}
