package checkout

import (
	"time"

	"github.com/shopspring/decimal"
)

type Storefront struct {
	ID   string
	Slug string
	Name string
}

type ListingKind string

const (
	ListingPhysical ListingKind = "physical"
	ListingService  ListingKind = "service"
)

type ServiceMode string

const (
	ServiceBookOnly ServiceMode = "book_only"
	ServicePayable  ServiceMode = "payable"
)

type SaleType string

const (
	SalePercent SaleType = "percent"
	SaleFixed   SaleType = "fixed"
)

// Sale describes a time-boxed discount configured on a single product.
type Sale struct {
	Active    bool            `json:"active"`
	Type      SaleType        `json:"type"`
	Percent   int64           `json:"percent"`
	AmountOff decimal.Decimal `json:"amountOff"`
	StartsAt  time.Time       `json:"startsAt"`
	EndsAt    time.Time       `json:"endsAt"`
}

// ActiveAt reports whether the sale applies at the given instant.
// A sale with an unknown type never applies.
func (s *Sale) ActiveAt(now time.Time) bool {
	if s == nil || !s.Active {
		return false
	}
	if s.Type != SalePercent && s.Type != SaleFixed {
		return false
	}
	return !now.Before(s.StartsAt) && !now.After(s.EndsAt)
}

type Product struct {
	ID           string
	StorefrontID string
	Name         string
	// Price is the listed unit price in naira. Converted to kobo once,
	// at quote time.
	Price       decimal.Decimal
	Stock       *int64 // nil means unlimited
	Kind        ListingKind
	ServiceMode ServiceMode
	Sale        *Sale
}

// Purchasable reports whether the product may appear in a payable cart.
// Book-only services are quoted elsewhere; stocked physical items need
// at least one unit on hand.
func (p *Product) Purchasable() bool {
	if p.Kind == ListingService && p.ServiceMode == ServiceBookOnly {
		return false
	}
	if p.Kind == ListingPhysical && p.Stock != nil && *p.Stock <= 0 {
		return false
	}
	return true
}

// unitPricesAt resolves the base and final unit price in kobo, applying
// the product sale when it is active. Percent sales are clamped to 0-90,
// fixed amount-off is floored at zero.
func (p *Product) unitPricesAt(now time.Time) (baseKobo, finalKobo int64, saleApplied bool) {
	baseKobo = ToKobo(p.Price)
	finalKobo = baseKobo

	if !p.Sale.ActiveAt(now) {
		return baseKobo, finalKobo, false
	}

	switch p.Sale.Type {
	case SalePercent:
		pct := p.Sale.Percent
		if pct < 0 {
			pct = 0
		}
		if pct > 90 {
			pct = 90
		}
		finalKobo = baseKobo - baseKobo*pct/100
	case SaleFixed:
		off := ToKobo(p.Sale.AmountOff)
		if off < 0 {
			off = 0
		}
		finalKobo = baseKobo - off
		if finalKobo < 0 {
			finalKobo = 0
		}
	}
	return baseKobo, finalKobo, finalKobo != baseKobo
}
