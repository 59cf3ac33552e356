package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekagifts/storefront/internal/domain/coupon"
)

const (
	couponColumns = `id, code, label, discount_type, discount_value, min_subtotal,
		is_active, created_at, updated_at`

	findActiveCouponSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = $1 AND is_active = TRUE`

	listActiveCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE is_active = TRUE ORDER BY min_subtotal, code`

	listAllCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons ORDER BY created_at DESC, code`

	listCouponCodesSQL = `SELECT code FROM coupons`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	createCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateCouponSQL = `UPDATE coupons SET code = $2, label = $3, discount_type = $4,
		discount_value = $5, min_subtotal = $6, is_active = $7, updated_at = $8
		WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			label = EXCLUDED.label,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_subtotal = EXCLUDED.min_subtotal,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindActiveByCode looks up an active coupon by its normalized code.
// Returns coupon.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindActiveByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findActiveCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// ListActive returns active coupons, cheapest threshold first.
func (r *CouponRepository) ListActive(ctx context.Context) ([]coupon.Coupon, error) {
	return r.list(ctx, listActiveCouponsSQL)
}

// ListAll returns every coupon, newest first.
func (r *CouponRepository) ListAll(ctx context.Context) ([]coupon.Coupon, error) {
	return r.list(ctx, listAllCouponsSQL)
}

func (r *CouponRepository) list(ctx context.Context, query string) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("scanning coupons: %w", err)
	}
	return coupons, nil
}

// ListCodes returns every stored code.
func (r *CouponRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning coupon codes: %w", err)
	}
	return codes, nil
}

// Get returns the coupon with the given id or coupon.ErrNotFound.
func (r *CouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %q: %w", id, err)
	}
	return &c, nil
}

// Create inserts a coupon. A taken code yields coupon.ErrDuplicateCode.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, createCouponSQL, couponArgs(c)...)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Update replaces the mutable fields of a coupon.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.pool.Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Label, string(c.DiscountType),
		c.DiscountValue, c.MinSubtotal, c.IsActive, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon by id.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// UpsertBatch inserts coupons or overwrites the rules of existing codes in a
// single round trip. The id and created_at of existing rows are kept.
func (r *CouponRepository) UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error {
	batch := &pgx.Batch{}
	for i := range coupons {
		batch.Queue(upsertCouponSQL, couponArgs(&coupons[i])...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return nil
}

func couponArgs(c *coupon.Coupon) []any {
	return []any{
		c.ID, c.Code, c.Label, string(c.DiscountType), c.DiscountValue,
		c.MinSubtotal, c.IsActive, c.CreatedAt, c.UpdatedAt,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Label, &discountType, &c.DiscountValue,
		&c.MinSubtotal, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
