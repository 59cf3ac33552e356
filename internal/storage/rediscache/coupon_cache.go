// Package rediscache caches read-mostly storefront data in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ekagifts/storefront/internal/domain/coupon"
)

// DefaultTTL bounds how stale the cached coupon list may get.
const DefaultTTL = 5 * time.Minute

var _ coupon.Cache = (*CouponCache)(nil)

// CouponCache stores the public list of active coupons under a single key.
type CouponCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewCouponCache creates a cache using keys under prefix. A non-positive ttl
// means DefaultTTL.
func NewCouponCache(client redis.UniversalClient, prefix string, ttl time.Duration) *CouponCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CouponCache{
		client: client,
		key:    fmt.Sprintf("%s:coupons:active", prefix),
		ttl:    ttl,
	}
}

type cachedCoupon struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Label         string          `json:"label"`
	DiscountType  string          `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	MinSubtotal   decimal.Decimal `json:"minSubtotal"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// GetActive returns the cached list. The bool is false on a cache miss.
func (c *CouponCache) GetActive(ctx context.Context) ([]coupon.Coupon, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", c.key, err)
	}

	var cached []cachedCoupon
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", c.key, err)
	}

	out := make([]coupon.Coupon, len(cached))
	for i, cc := range cached {
		out[i] = coupon.Coupon{
			ID:            cc.ID,
			Code:          cc.Code,
			Label:         cc.Label,
			DiscountType:  coupon.DiscountType(cc.DiscountType),
			DiscountValue: cc.DiscountValue,
			MinSubtotal:   cc.MinSubtotal,
			IsActive:      true,
			CreatedAt:     cc.CreatedAt,
			UpdatedAt:     cc.UpdatedAt,
		}
	}
	return out, true, nil
}

// SetActive replaces the cached list.
func (c *CouponCache) SetActive(ctx context.Context, coupons []coupon.Coupon) error {
	cached := make([]cachedCoupon, len(coupons))
	for i, cp := range coupons {
		cached[i] = cachedCoupon{
			ID:            cp.ID,
			Code:          cp.Code,
			Label:         cp.Label,
			DiscountType:  string(cp.DiscountType),
			DiscountValue: cp.DiscountValue,
			MinSubtotal:   cp.MinSubtotal,
			CreatedAt:     cp.CreatedAt,
			UpdatedAt:     cp.UpdatedAt,
		}
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("encoding coupons: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", c.key, err)
	}
	return nil
}

// Invalidate drops the cached list.
func (c *CouponCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", c.key, err)
	}
	return nil
}
