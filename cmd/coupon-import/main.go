// Command coupon-import bulk loads coupon rules from CSV files, optionally
// gzip-compressed, into the coupons table. Existing codes are overwritten.
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
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ekagifts/storefront/internal/domain/coupon"
	"github.com/ekagifts/storefront/internal/storage/postgres"
	"github.com/ekagifts/storefront/internal/storage/rediscache"
)

func main() {
	var (
		databaseURL string
		batchSize   int
		writers     int
		skipInvalid bool
		dryRun      bool
		redisAddr   string
		redisPass   string
		redisDB     int
		redisPrefix string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 500, "coupons per database batch")
	flag.IntVar(&writers, "writers", 4, "concurrent database batches")
	flag.BoolVar(&skipInvalid, "skip-invalid", false, "import valid rows even when some rows are rejected")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and validate without writing")
	flag.StringVar(&redisAddr, "redis-addr", os.Getenv("EKA_REDIS_ADDR"), "Redis address of the API coupon cache, empty to skip invalidation")
	flag.StringVar(&redisPass, "redis-password", os.Getenv("EKA_REDIS_PASSWORD"), "Redis password")
	flag.IntVar(&redisDB, "redis-db", 0, "Redis database")
	flag.StringVar(&redisPrefix, "redis-prefix", "eka", "Redis key prefix used by the API")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("usage: coupon-import [flags] FILE.csv[.gz]...")
		os.Exit(2)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	coupons, err := load(ctx, files, skipInvalid)
	if err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if dryRun {
		slog.Info("dry run, nothing written", slog.Int("coupons", len(coupons)))
		return
	}

	if err := write(ctx, databaseURL, coupons, max(batchSize, 1), max(writers, 1)); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPass, DB: redisDB})
		err := invalidateCache(ctx, rediscache.NewCouponCache(rdb, redisPrefix, 0))
		_ = rdb.Close()
		if err != nil {
			// The rows are committed; the API catches up when the cache expires.
			slog.Warn("coupon cache invalidation failed", slog.String("error", err.Error()))
		}
	}

	slog.Info("coupon import completed successfully", slog.Int("coupons", len(coupons)))
}

// load parses every file concurrently and merges them in argument order.
func load(ctx context.Context, files []string, skipInvalid bool) ([]coupon.Coupon, error) {
	results := make([]*fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := readFile(path)
			if err != nil {
				return err
			}
			slog.Info("parsed file",
				slog.String("file", path),
				slog.Int("coupons", len(res.coupons)),
				slog.Int("invalid", len(res.invalid)),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "parse files")
	}

	var (
		total   uint
		invalid int
	)
	for _, res := range results {
		total += uint(len(res.coupons))
		for _, e := range res.invalid {
			slog.Warn("rejected row", slog.String("error", e.Error()))
		}
		invalid += len(res.invalid)
	}

	coupons, dups := dedup(results, total)
	for _, e := range dups {
		slog.Warn("skipped row", slog.String("error", e.Error()))
	}

	if invalid > 0 && !skipInvalid {
		return nil, errors.Errorf("%d invalid rows, fix them or pass --skip-invalid", invalid)
	}
	return coupons, nil
}

// write upserts coupons in batches, at most writers batches at a time.
func write(ctx context.Context, databaseURL string, coupons []coupon.Coupon, batchSize, writers int) error {
	if len(coupons) == 0 {
		slog.Info("no coupons to write")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	repo := postgres.NewCouponRepository(pool)

	now := time.Now().UTC()
	for i := range coupons {
		coupons[i].ID = uuid.New().String()
		coupons[i].CreatedAt, coupons[i].UpdatedAt = now, now
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(writers)
	for start := 0; start < len(coupons); start += batchSize {
		batch := coupons[start:min(start+batchSize, len(coupons))]
		g.Go(func() error {
			if err := repo.UpsertBatch(ctx, batch); err != nil {
				return errors.Wrapf(err, "write batch at %d", start)
			}
			slog.Info("write progress", slog.Int("written", start+len(batch)), slog.Int("total", len(coupons)))
			return nil
		})
	}
	return g.Wait()
}

type invalidator interface {
	Invalidate(ctx context.Context) error
}

// invalidateCache drops the API's cached active coupon list so imported
// coupons are listed on the next request.
func invalidateCache(ctx context.Context, cache invalidator) error {
	if err := cache.Invalidate(ctx); err != nil {
		return errors.Wrap(err, "invalidate coupon cache")
	}
	slog.Info("coupon cache invalidated")
	return nil
}
