package entity

import (
	"encoding/json"
	"time"
)

// PaymentTransaction is the idempotency marker for a settled payment.
// One row exists per external payment reference; its presence means
// settlement for that reference already committed. It is created in the
// same atomic write as the order it backs and never updated afterwards.
type PaymentTransaction struct {
	Reference      string
	OrderID        string
	StorefrontSlug string
	AmountKobo     int64
	Provider       string
	EscrowStatus   EscrowStatus
	HoldUntil      time.Time
	CreatedAt      time.Time
}

// Wallet holds a storefront's settled funds. All mutations are additive
// increments so concurrent settlements across unrelated orders commute.
type Wallet struct {
	StorefrontID  string
	PendingKobo   int64
	AvailableKobo int64
	EarnedKobo    int64
	UpdatedAt     time.Time
}

// PaymentMismatch is the write-once forensic record persisted when a
// gateway-reported amount disagrees with the recomputed quote. It drives
// no automated action here; fraud review reads it out of band.
type PaymentMismatch struct {
	Reference       string
	StorefrontSlug  string
	ExpectedKobo    int64
	PaidKobo        int64
	CouponCode      string
	PricingSnapshot json.RawMessage
	CreatedAt       time.Time
}
