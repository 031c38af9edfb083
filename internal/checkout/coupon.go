package checkout

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Coupon is a storefront-scoped discount code. Codes are stored uppercase.
type Coupon struct {
	StorefrontID    string
	Code            string
	Active          bool
	Type            DiscountType
	Percent         int64
	AmountOffKobo   int64
	MinOrderKobo    int64
	MaxDiscountKobo int64 // 0 means no cap
	UsageLimit      int64 // 0 means unlimited
	UsageCount      int64
	StartsAt        time.Time
	EndsAt          time.Time
}

// CouponResult records a successfully applied coupon on a quote.
type CouponResult struct {
	Code         string `json:"code"`
	DiscountKobo int64  `json:"discountKobo"`
}

var couponCodePattern = regexp.MustCompile(`^[A-Z0-9]{3,20}$`)

// NormalizeCouponCode uppercases and validates the shape of a coupon code.
func NormalizeCouponCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !couponCodePattern.MatchString(code) {
		return "", fmt.Errorf("%w: malformed code", ErrCouponInvalid)
	}
	return code, nil
}

// evaluate applies the coupon against the post-sale subtotal. Failures are
// reported in a fixed precedence order: inactive, not started, expired,
// below minimum, usage limit, and the first one encountered wins. The
// discount is computed on the sale subtotal (sale always resolves first)
// and is clamped by both the configured cap and the subtotal itself.
func (c *Coupon) evaluate(saleSubtotalKobo int64, now time.Time) (int64, error) {
	if !c.Active {
		return 0, fmt.Errorf("%w: coupon is not active", ErrCouponInvalid)
	}
	if now.Before(c.StartsAt) {
		return 0, fmt.Errorf("%w: coupon is not yet valid", ErrCouponInvalid)
	}
	if !c.EndsAt.IsZero() && now.After(c.EndsAt) {
		return 0, fmt.Errorf("%w: coupon has expired", ErrCouponInvalid)
	}
	if saleSubtotalKobo < c.MinOrderKobo {
		return 0, fmt.Errorf("%w: order is below the coupon minimum", ErrCouponInvalid)
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return 0, fmt.Errorf("%w: coupon usage limit reached", ErrCouponInvalid)
	}

	var discount int64
	switch c.Type {
	case DiscountPercent:
		pct := c.Percent
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		discount = saleSubtotalKobo * pct / 100
	case DiscountFixed:
		discount = c.AmountOffKobo
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q", ErrCouponInvalid, c.Type)
	}

	if c.MaxDiscountKobo > 0 && discount > c.MaxDiscountKobo {
		discount = c.MaxDiscountKobo
	}
	if discount > saleSubtotalKobo {
		discount = saleSubtotalKobo
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}
