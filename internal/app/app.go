package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ekagifts/storefront/internal/domain/auth"
	"github.com/ekagifts/storefront/internal/domain/coupon"
	"github.com/ekagifts/storefront/internal/domain/order"
	"github.com/ekagifts/storefront/internal/gateway/razorpay"
	"github.com/ekagifts/storefront/internal/handler"
	"github.com/ekagifts/storefront/internal/storage/postgres"
	"github.com/ekagifts/storefront/internal/storage/rediscache"
	"github.com/ekagifts/storefront/pkg/health"
	"github.com/ekagifts/storefront/pkg/httpmiddleware"
)

const serviceName = "eka-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	a, err := newAPI(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg, pool)
	if err != nil {
		return err
	}
	defer a.close()

	a.health.Start(ctx, 10*time.Second)
	a.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           a.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		a.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		a.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// api is the assembled HTTP surface with its probes.
type api struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

func (a *api) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newAPI wires repositories, services and the router on top of a migrated
// pool. Background workers stop with ctx.
func newAPI(
	ctx context.Context,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
	pool *pgxpool.Pool,
) (*api, error) {
	a := &api{health: health.New()}
	a.health.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	a.health.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Optional Redis cache for the public coupon list.
	var couponCache coupon.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		a.health.Add(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		couponCache = rediscache.NewCouponCache(rdb, cfg.Redis.Prefix, cfg.Redis.TTL)
		lg.Info("Coupon cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// Repositories.
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	adminRepo := postgres.NewAdminRepository(pool)

	// Payment gateway.
	gateway, err := razorpay.New(razorpay.Config{
		BaseURL:        cfg.Razorpay.BaseURL,
		KeyID:          cfg.Razorpay.KeyID,
		KeySecret:      cfg.Razorpay.KeySecret,
		Timeout:        cfg.Razorpay.Timeout,
		TracerProvider: tp,
		MeterProvider:  mp,
	})
	if err != nil {
		a.close()
		return nil, errors.Wrap(err, "create razorpay client")
	}
	if cfg.Razorpay.WebhookSecret == "" {
		lg.Warn("Webhook secret is not set, gateway webhooks will be rejected")
	}

	// Domain services.
	couponService := coupon.NewService(couponRepo, couponCache, coupon.NewCodeFilter(10000, 0.001))
	if err := couponService.WarmUp(ctx); err != nil {
		a.close()
		return nil, errors.Wrap(err, "warm up coupon filter")
	}
	go refreshCodeFilter(ctx, lg, couponService, cfg.CouponRefresh)

	orderService, err := order.NewService(orderRepo, gateway, order.Config{
		KeySecret:     []byte(cfg.Razorpay.KeySecret),
		WebhookSecret: []byte(cfg.Razorpay.WebhookSecret),
		Currency:      cfg.Razorpay.Currency,
	}, mp.Meter(serviceName))
	if err != nil {
		a.close()
		return nil, errors.Wrap(err, "create order service")
	}
	tokens, err := auth.NewTokens([]byte(cfg.JWT.Secret), cfg.JWT.TTL)
	if err != nil {
		a.close()
		return nil, errors.Wrap(err, "create token issuer")
	}
	authService := auth.NewService(adminRepo, tokens)

	// HTTP handlers.
	h := handler.New(handler.Config{
		KeyID: gateway.KeyID(),
		LoginLimit: httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.LoginLimit.Max,
			Window:  cfg.LoginLimit.Window,
			KeyFunc: httpmiddleware.ProxyHopIP(cfg.LoginLimit.TrustedProxyHops),
			Message: "Too many login attempts, please try again later",
		}),
	}, orderService, couponService, authService)

	// Middleware that reads the matched route runs inside the router.
	router := h.Router(
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.Origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.SignatureHeader, httpmiddleware.RequestIDHeader},
			ExposedHeaders:   []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.LogRequests(handler.RoutePattern),
		httpmiddleware.Labeler(handler.RoutePattern),
	)
	router.Method(http.MethodGet, "/livez", a.health.LiveHandler())
	router.Method(http.MethodGet, "/readyz", a.health.ReadyHandler())

	// Recovery runs inside InjectLogger so panics are logged with the
	// request fields.
	a.handler = httpmiddleware.Wrap(router,
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument(serviceName, tp, mp),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)
	return a, nil
}

// refreshCodeFilter reloads the coupon code filter so codes written by other
// processes, such as coupon-import, become redeemable.
func refreshCodeFilter(ctx context.Context, lg *zap.Logger, svc *coupon.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.WarmUp(ctx); err != nil {
				lg.Warn("Coupon filter refresh failed", zap.Error(err))
			}
		}
	}
}
