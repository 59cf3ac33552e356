package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service validates coupon codes for shoppers and manages coupons for admins.
type Service struct {
	repo   Repository
	cache  Cache
	filter *CodeFilter
	now    func() time.Time
	newID  func() string
}

// NewService creates a coupon Service. cache and filter are optional.
func NewService(repo Repository, cache Cache, filter *CodeFilter) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		filter: filter,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// WarmUp loads every stored code into the prefilter.
func (s *Service) WarmUp(ctx context.Context) error {
	if s.filter == nil {
		return nil
	}
	codes, err := s.repo.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}
	s.filter.Reset(codes)
	return nil
}

// Validate looks up an active coupon by code and evaluates it against
// subtotal. The coupon is nil when the code is unknown or inactive.
func (s *Service) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*Coupon, Result, error) {
	code = NormalizeCode(code)
	if code == "" || (s.filter != nil && !s.filter.MayContain(code)) {
		res, err := Evaluate(nil, subtotal)
		return nil, res, err
	}

	c, err := s.repo.FindActiveByCode(ctx, code)
	if err != nil && !errors.Is(err, ErrInvalidCoupon) {
		return nil, Result{}, errors.Wrap(err, "lookup coupon")
	}
	if err != nil {
		c = nil
	}

	res, err := Evaluate(c, subtotal)
	if err != nil {
		return nil, Result{}, err
	}
	return c, res, nil
}

// ListActive returns the coupons shoppers may see.
func (s *Service) ListActive(ctx context.Context) ([]Coupon, error) {
	lg := zctx.From(ctx)
	if s.cache != nil {
		cached, ok, err := s.cache.GetActive(ctx)
		switch {
		case err != nil:
			lg.Warn("Coupon cache read failed", zap.Error(err))
		case ok:
			return cached, nil
		}
	}

	coupons, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active coupons")
	}

	if s.cache != nil {
		if err := s.cache.SetActive(ctx, coupons); err != nil {
			lg.Warn("Coupon cache write failed", zap.Error(err))
		}
	}
	return coupons, nil
}

// ListAll returns every coupon, active or not.
func (s *Service) ListAll(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Create validates and stores a new coupon.
func (s *Service) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c.ID = s.newID()
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.repo.Create(ctx, &c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	s.changed(ctx, c.Code)
	return &c, nil
}

// Update applies a partial update to the coupon with the given id.
func (s *Service) Update(ctx context.Context, id string, p Patch) (*Coupon, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}

	next := p.Apply(*current)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, &next); err != nil {
		return nil, errors.Wrap(err, "update coupon")
	}
	s.changed(ctx, next.Code)
	return &next, nil
}

// Delete removes the coupon with the given id. Orders that redeemed it keep
// the code string.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	s.changed(ctx, "")
	return nil
}

func (s *Service) changed(ctx context.Context, code string) {
	if s.filter != nil && code != "" {
		s.filter.Add(code)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			zctx.From(ctx).Warn("Coupon cache invalidation failed", zap.Error(err))
		}
	}
}
