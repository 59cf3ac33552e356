package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// ReasonInvalidCode is the shopper-facing reason for unknown or inactive codes.
const ReasonInvalidCode = "Invalid coupon code"

// ErrNegativeSubtotal is returned by Evaluate for a subtotal below zero.
var ErrNegativeSubtotal = errors.New("subtotal must not be negative")

// Result is the outcome of evaluating a coupon against a subtotal.
type Result struct {
	Valid    bool
	Discount decimal.Decimal
	Reason   string
	// BelowMinimum is set when the only reason for rejection is the subtotal.
	BelowMinimum bool
}

// Evaluate decides whether c applies to subtotal and computes the discount.
// A nil or inactive coupon is never valid. The discount never exceeds the
// subtotal, so the payable total is floored at zero.
func Evaluate(c *Coupon, subtotal decimal.Decimal) (Result, error) {
	if subtotal.IsNegative() {
		return Result{}, ErrNegativeSubtotal
	}
	if c == nil || !c.IsActive {
		return Result{Reason: ReasonInvalidCode, Discount: zero}, nil
	}
	if subtotal.LessThan(c.MinSubtotal) {
		return Result{
			Discount:     zero,
			Reason:       "Minimum order value of ₹" + c.MinSubtotal.String() + " required",
			BelowMinimum: true,
		}, nil
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		// Round on a positive value is half-up.
		discount = subtotal.Mul(c.DiscountValue).Div(hundred).Round(0)
	case DiscountFixed:
		discount = c.DiscountValue
	default:
		return Result{}, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}

	discount = decimal.Min(discount, subtotal)
	if discount.IsNegative() {
		discount = zero
	}
	return Result{Valid: true, Discount: discount}, nil
}
