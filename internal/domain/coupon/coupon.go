package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage (0-100) of the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a flat rupee amount, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrInvalidCoupon is returned when a code is unknown or inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrNotFound is returned by admin operations addressing a missing coupon id.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when a code is already taken by another coupon.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// InvalidFieldError reports a coupon attribute rejected by validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// Coupon is a discount rule an administrator manages and shoppers redeem by code.
type Coupon struct {
	ID            string
	Code          string
	Label         string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MinSubtotal   decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Patch is a partial update of a coupon. Nil fields are left untouched.
type Patch struct {
	Code          *string
	Label         *string
	DiscountType  *DiscountType
	DiscountValue *decimal.Decimal
	MinSubtotal   *decimal.Decimal
	IsActive      *bool
}

// Apply returns a copy of c with the non-nil fields of p applied.
func (p Patch) Apply(c Coupon) Coupon {
	if p.Code != nil {
		c.Code = NormalizeCode(*p.Code)
	}
	if p.Label != nil {
		c.Label = *p.Label
	}
	if p.DiscountType != nil {
		c.DiscountType = *p.DiscountType
	}
	if p.DiscountValue != nil {
		c.DiscountValue = *p.DiscountValue
	}
	if p.MinSubtotal != nil {
		c.MinSubtotal = *p.MinSubtotal
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	return c
}

// NormalizeCode trims and uppercases a coupon code. Lookups are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the coupon invariants enforced on create and update.
func (c Coupon) Validate() error {
	switch {
	case c.Code == "":
		return &InvalidFieldError{Field: "code", Reason: "is required"}
	case !c.DiscountType.Valid():
		return &InvalidFieldError{Field: "discountType", Reason: "must be percentage or fixed"}
	case !c.DiscountValue.IsPositive():
		return &InvalidFieldError{Field: "discountValue", Reason: "must be greater than 0"}
	case c.DiscountType == DiscountPercentage && c.DiscountValue.GreaterThan(hundred):
		return &InvalidFieldError{Field: "discountValue", Reason: "percentage must not exceed 100"}
	case c.MinSubtotal.IsNegative():
		return &InvalidFieldError{Field: "minSubtotal", Reason: "must not be negative"}
	}
	return nil
}

// Repository persists coupons.
type Repository interface {
	// FindActiveByCode returns the active coupon with the given normalized code,
	// or ErrInvalidCoupon.
	FindActiveByCode(ctx context.Context, code string) (*Coupon, error)
	ListActive(ctx context.Context) ([]Coupon, error)
	ListAll(ctx context.Context) ([]Coupon, error)
	// ListCodes returns every stored code regardless of state.
	ListCodes(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
}

// Cache holds the public list of active coupons.
type Cache interface {
	GetActive(ctx context.Context) ([]Coupon, bool, error)
	SetActive(ctx context.Context, coupons []Coupon) error
	Invalidate(ctx context.Context) error
}
