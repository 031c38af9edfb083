// Package checkout recomputes the authoritative price of a cart.
//
// The quote built here is the single source of truth for what a buyer
// owes: settlement never trusts a client-supplied total, it re-derives
// the price from current product, sale and coupon state and compares.
// Building a quote has no side effects, so it is safe to call repeatedly
// (settlement and the pre-checkout preview endpoint both use it).
package checkout

import (
	"context"
	"fmt"
	"time"
)

// Catalog provides the strongly-consistent reads the quote builder needs.
// Pricing correctness depends on current stock and sale state, so
// implementations must not serve stale caches of product data.
type Catalog interface {
	StorefrontBySlug(ctx context.Context, slug string) (*Storefront, error)
	// ProductsByIDs returns the products that exist; missing ids are
	// simply absent from the result.
	ProductsByIDs(ctx context.Context, ids []string) ([]*Product, error)
	// CouponByCode returns (nil, nil) when no such coupon exists for
	// the storefront.
	CouponByCode(ctx context.Context, storefrontID, code string) (*Coupon, error)
}

const (
	maxCartItems = 50
	// maxItemQty bounds a single line's quantity. Quantities come from
	// client-controlled charge metadata; the cap keeps the int64 kobo
	// accumulation far from wrapping.
	maxItemQty = 10_000
)

type CartItem struct {
	ProductID       string
	Qty             int64
	SelectedOptions map[string]string
}

type QuoteInput struct {
	StorefrontSlug  string
	Items           []CartItem
	CouponCode      string // optional
	ShippingFeeKobo int64
}

// QuoteItem is a normalized line item carrying both the base and the
// final unit price so the order can record which discounts applied.
type QuoteItem struct {
	ProductID       string            `json:"productId"`
	Name            string            `json:"name"`
	Qty             int64             `json:"qty"`
	BaseUnitKobo    int64             `json:"baseUnitKobo"`
	FinalUnitKobo   int64             `json:"finalUnitKobo"`
	LineTotalKobo   int64             `json:"lineTotalKobo"`
	SaleApplied     bool              `json:"saleApplied"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

type Pricing struct {
	OriginalSubtotalKobo int64 `json:"originalSubtotalKobo"`
	SaleSubtotalKobo     int64 `json:"saleSubtotalKobo"`
	SaleDiscountKobo     int64 `json:"saleDiscountKobo"`
	CouponDiscountKobo   int64 `json:"couponDiscountKobo"`
	ShippingFeeKobo      int64 `json:"shippingFeeKobo"`
	TotalKobo            int64 `json:"totalKobo"`
}

type Quote struct {
	StorefrontID   string        `json:"storefrontId"`
	StorefrontSlug string        `json:"storefrontSlug"`
	Items          []QuoteItem   `json:"items"`
	Pricing        Pricing       `json:"pricing"`
	Coupon         *CouponResult `json:"coupon,omitempty"`
}

type Builder struct {
	catalog Catalog
}

func NewBuilder(catalog Catalog) *Builder {
	return &Builder{catalog: catalog}
}

// BuildQuote resolves every cart item against the storefront's catalog
// and produces the authoritative pricing breakdown. Sale pricing is
// always resolved before the coupon: a coupon can never discount the
// pre-sale price.
func (b *Builder) BuildQuote(ctx context.Context, in QuoteInput) (*Quote, error) {
	if len(in.Items) == 0 || len(in.Items) > maxCartItems {
		return nil, fmt.Errorf("%w: cart must contain between 1 and %d items", ErrInvalidCart, maxCartItems)
	}
	if in.ShippingFeeKobo < 0 {
		return nil, fmt.Errorf("%w: shipping fee cannot be negative", ErrInvalidCart)
	}

	store, err := b.catalog.StorefrontBySlug(ctx, in.StorefrontSlug)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID == "" || it.Qty <= 0 {
			return nil, fmt.Errorf("%w: product id and positive quantity required", ErrInvalidItem)
		}
		if it.Qty > maxItemQty {
			return nil, fmt.Errorf("%w: quantity for %q exceeds %d", ErrInvalidItem, it.ProductID, maxItemQty)
		}
		ids = append(ids, it.ProductID)
	}

	products, err := b.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := time.Now().UTC()
	quote := &Quote{
		StorefrontID:   store.ID,
		StorefrontSlug: store.Slug,
		Items:          make([]QuoteItem, 0, len(in.Items)),
	}

	for _, it := range in.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %q does not exist", ErrInvalidItem, it.ProductID)
		}
		if p.StorefrontID != store.ID {
			return nil, fmt.Errorf("%w: product %q belongs to another storefront", ErrInvalidItem, it.ProductID)
		}
		if p.Kind == ListingService && p.ServiceMode == ServiceBookOnly {
			return nil, fmt.Errorf("%w: %q is a booking-only service", ErrInvalidItem, it.ProductID)
		}
		if p.Kind == ListingPhysical && p.Stock != nil && *p.Stock <= 0 {
			return nil, fmt.Errorf("%w: %q is out of stock", ErrInvalidItem, it.ProductID)
		}

		baseKobo, finalKobo, saleApplied := p.unitPricesAt(now)
		quote.Items = append(quote.Items, QuoteItem{
			ProductID:       p.ID,
			Name:            p.Name,
			Qty:             it.Qty,
			BaseUnitKobo:    baseKobo,
			FinalUnitKobo:   finalKobo,
			LineTotalKobo:   finalKobo * it.Qty,
			SaleApplied:     saleApplied,
			SelectedOptions: it.SelectedOptions,
		})
		quote.Pricing.OriginalSubtotalKobo += baseKobo * it.Qty
		quote.Pricing.SaleSubtotalKobo += finalKobo * it.Qty
	}
	quote.Pricing.SaleDiscountKobo = quote.Pricing.OriginalSubtotalKobo - quote.Pricing.SaleSubtotalKobo

	if in.CouponCode != "" {
		code, err := NormalizeCouponCode(in.CouponCode)
		if err != nil {
			return nil, err
		}
		coupon, err := b.catalog.CouponByCode(ctx, store.ID, code)
		if err != nil {
			return nil, err
		}
		if coupon == nil {
			return nil, fmt.Errorf("%w: code %q not found", ErrCouponInvalid, code)
		}
		discount, err := coupon.evaluate(quote.Pricing.SaleSubtotalKobo, now)
		if err != nil {
			return nil, err
		}
		quote.Pricing.CouponDiscountKobo = discount
		quote.Coupon = &CouponResult{Code: code, DiscountKobo: discount}
	}

	discounted := quote.Pricing.SaleSubtotalKobo - quote.Pricing.CouponDiscountKobo
	if discounted < 0 {
		discounted = 0
	}
	quote.Pricing.ShippingFeeKobo = in.ShippingFeeKobo
	quote.Pricing.TotalKobo = discounted + in.ShippingFeeKobo

	return quote, nil
}
