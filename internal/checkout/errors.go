package checkout

import "errors"

var (
	ErrStorefrontNotFound = errors.New("storefront not found")
	ErrInvalidItem        = errors.New("invalid cart item")
	ErrInvalidCart        = errors.New("invalid cart")
	ErrCouponInvalid      = errors.New("coupon cannot be applied")
)
