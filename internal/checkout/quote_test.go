package checkout

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup ---

func setupQuoteTest(t *testing.T) (*Builder, *mockCatalog) {
	t.Helper()
	catalog := newMockCatalog()
	catalog.storefronts["kicks"] = &Storefront{ID: "sf_1", Slug: "kicks", Name: "Kicks NG"}
	return NewBuilder(catalog), catalog
}

func physicalProduct(id string, priceNaira int64) *Product {
	return &Product{
		ID:           id,
		StorefrontID: "sf_1",
		Name:         "Product " + id,
		Price:        decimal.NewFromInt(priceNaira),
		Kind:         ListingPhysical,
	}
}

func activeSale(t SaleType, percent int64, amountOffNaira int64) *Sale {
	return &Sale{
		Active:    true,
		Type:      t,
		Percent:   percent,
		AmountOff: decimal.NewFromInt(amountOffNaira),
		StartsAt:  time.Now().Add(-time.Hour),
		EndsAt:    time.Now().Add(time.Hour),
	}
}

func activeCoupon(code string) *Coupon {
	return &Coupon{
		StorefrontID: "sf_1",
		Code:         code,
		Active:       true,
		Type:         DiscountPercent,
		Percent:      10,
		StartsAt:     time.Now().Add(-time.Hour),
		EndsAt:       time.Now().Add(time.Hour),
	}
}

// --- Tests ---

func TestBuildQuote_PlainCart(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	catalog.products["p1"] = physicalProduct("p1", 10)

	quote, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug:  "kicks",
		Items:           []CartItem{{ProductID: "p1", Qty: 3}},
		ShippingFeeKobo: 50000,
	})

	require.NoError(t, err)
	require.Len(t, quote.Items, 1)
	assert.Equal(t, int64(1000), quote.Items[0].BaseUnitKobo)
	assert.Equal(t, int64(1000), quote.Items[0].FinalUnitKobo)
	assert.Equal(t, int64(3000), quote.Items[0].LineTotalKobo)
	assert.False(t, quote.Items[0].SaleApplied)
	assert.Equal(t, int64(3000), quote.Pricing.SaleSubtotalKobo)
	assert.Equal(t, int64(53000), quote.Pricing.TotalKobo)
}

func TestBuildQuote_SaleBeforeCoupon(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	p := physicalProduct("p1", 10)
	p.Sale = activeSale(SalePercent, 10, 0)
	catalog.products["p1"] = p
	catalog.coupons["SAVE10"] = activeCoupon("SAVE10")

	quote, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
		CouponCode:     "save10",
	})

	require.NoError(t, err)
	// 1000 kobo base, 10% sale -> 900, then 10% coupon of 900 -> 90 off.
	assert.Equal(t, int64(1000), quote.Pricing.OriginalSubtotalKobo)
	assert.Equal(t, int64(900), quote.Pricing.SaleSubtotalKobo)
	assert.Equal(t, int64(100), quote.Pricing.SaleDiscountKobo)
	assert.Equal(t, int64(90), quote.Pricing.CouponDiscountKobo)
	assert.Equal(t, int64(810), quote.Pricing.TotalKobo)
	require.NotNil(t, quote.Coupon)
	assert.Equal(t, "SAVE10", quote.Coupon.Code)
}

func TestBuildQuote_PercentSaleClamped(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	p := physicalProduct("p1", 10)
	p.Sale = activeSale(SalePercent, 99, 0)
	catalog.products["p1"] = p

	quote, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100), quote.Items[0].FinalUnitKobo)
}

func TestBuildQuote_FixedSaleFloorsAtZero(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	p := physicalProduct("p1", 10)
	p.Sale = activeSale(SaleFixed, 0, 50)
	catalog.products["p1"] = p

	quote, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(0), quote.Items[0].FinalUnitKobo)
	assert.Equal(t, int64(0), quote.Pricing.SaleSubtotalKobo)
}

func TestBuildQuote_ExpiredSaleIgnored(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	p := physicalProduct("p1", 10)
	p.Sale = &Sale{
		Active:   true,
		Type:     SalePercent,
		Percent:  50,
		StartsAt: time.Now().Add(-2 * time.Hour),
		EndsAt:   time.Now().Add(-time.Hour),
	}
	catalog.products["p1"] = p

	quote, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1000), quote.Items[0].FinalUnitKobo)
	assert.False(t, quote.Items[0].SaleApplied)
}

func TestBuildQuote_CouponCapped(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	catalog.products["p1"] = physicalProduct("p1", 1000) // 100000 kobo
	c := activeCoupon("BIGSALE")
	c.Percent = 50
	c.MaxDiscountKobo = 2000
	catalog.coupons["BIGSALE"] = c

	quote, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
		CouponCode:     "BIGSALE",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(2000), quote.Pricing.CouponDiscountKobo)
	assert.Equal(t, int64(98000), quote.Pricing.TotalKobo)
}

func TestBuildQuote_FixedCouponClampedToSubtotal(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	catalog.products["p1"] = physicalProduct("p1", 10)
	c := activeCoupon("FLAT")
	c.Type = DiscountFixed
	c.AmountOffKobo = 5000
	catalog.coupons["FLAT"] = c

	quote, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug:  "kicks",
		Items:           []CartItem{{ProductID: "p1", Qty: 1}},
		CouponCode:      "FLAT",
		ShippingFeeKobo: 700,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1000), quote.Pricing.CouponDiscountKobo)
	// Shipping is never eaten by the coupon.
	assert.Equal(t, int64(700), quote.Pricing.TotalKobo)
}

func TestBuildQuote_CouponRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Coupon)
	}{
		{"inactive", func(c *Coupon) { c.Active = false }},
		{"not started", func(c *Coupon) { c.StartsAt = time.Now().Add(time.Hour) }},
		{"expired", func(c *Coupon) { c.EndsAt = time.Now().Add(-time.Minute) }},
		{"below minimum", func(c *Coupon) { c.MinOrderKobo = 100000 }},
		{"usage limit reached", func(c *Coupon) { c.UsageLimit = 5; c.UsageCount = 5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			builder, catalog := setupQuoteTest(t)
			catalog.products["p1"] = physicalProduct("p1", 10)
			c := activeCoupon("SAVE10")
			tc.mutate(c)
			catalog.coupons["SAVE10"] = c

			_, err := builder.BuildQuote(context.Background(), QuoteInput{
				StorefrontSlug: "kicks",
				Items:          []CartItem{{ProductID: "p1", Qty: 1}},
				CouponCode:     "SAVE10",
			})

			assert.ErrorIs(t, err, ErrCouponInvalid)
		})
	}
}

func TestBuildQuote_UnknownCoupon(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	catalog.products["p1"] = physicalProduct("p1", 10)

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
		CouponCode:     "NOSUCH",
	})

	assert.ErrorIs(t, err, ErrCouponInvalid)
}

func TestBuildQuote_MalformedCouponCode(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	catalog.products["p1"] = physicalProduct("p1", 10)

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
		CouponCode:     "a b!",
	})

	assert.ErrorIs(t, err, ErrCouponInvalid)
}

func TestBuildQuote_MissingProduct(t *testing.T) {
	builder, _ := setupQuoteTest(t)

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "ghost", Qty: 1}},
	})

	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestBuildQuote_ForeignStorefrontProduct(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	p := physicalProduct("p1", 10)
	p.StorefrontID = "sf_other"
	catalog.products["p1"] = p

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
	})

	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestBuildQuote_BookOnlyServiceRejected(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	p := physicalProduct("p1", 10)
	p.Kind = ListingService
	p.ServiceMode = ServiceBookOnly
	catalog.products["p1"] = p

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
	})

	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestBuildQuote_OutOfStock(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	p := physicalProduct("p1", 10)
	zero := int64(0)
	p.Stock = &zero
	catalog.products["p1"] = p

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
	})

	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestBuildQuote_NilStockMeansUnlimited(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	catalog.products["p1"] = physicalProduct("p1", 10)

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 999}},
	})

	assert.NoError(t, err)
}

func TestBuildQuote_CartValidation(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	catalog.products["p1"] = physicalProduct("p1", 10)

	_, err := builder.BuildQuote(context.Background(), QuoteInput{StorefrontSlug: "kicks"})
	assert.ErrorIs(t, err, ErrInvalidCart)

	oversized := make([]CartItem, maxCartItems+1)
	for i := range oversized {
		oversized[i] = CartItem{ProductID: "p1", Qty: 1}
	}
	_, err = builder.BuildQuote(context.Background(), QuoteInput{StorefrontSlug: "kicks", Items: oversized})
	assert.ErrorIs(t, err, ErrInvalidCart)

	_, err = builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug:  "kicks",
		Items:           []CartItem{{ProductID: "p1", Qty: 1}},
		ShippingFeeKobo: -1,
	})
	assert.ErrorIs(t, err, ErrInvalidCart)

	_, err = builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestBuildQuote_QuantityCap(t *testing.T) {
	builder, catalog := setupQuoteTest(t)
	catalog.products["p1"] = physicalProduct("p1", 10)

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: maxItemQty + 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidItem)

	// A quantity tuned to wrap the int64 subtotal must be rejected, not
	// priced into a tiny positive total.
	_, err = builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: 2 * (math.MaxInt64 / 1000)}},
	})
	assert.ErrorIs(t, err, ErrInvalidItem)

	quote, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "kicks",
		Items:          []CartItem{{ProductID: "p1", Qty: maxItemQty}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), quote.Pricing.TotalKobo)
}

func TestBuildQuote_UnknownStorefront(t *testing.T) {
	builder, _ := setupQuoteTest(t)

	_, err := builder.BuildQuote(context.Background(), QuoteInput{
		StorefrontSlug: "nope",
		Items:          []CartItem{{ProductID: "p1", Qty: 1}},
	})

	assert.ErrorIs(t, err, ErrStorefrontNotFound)
}

func TestToKobo(t *testing.T) {
	assert.Equal(t, int64(1050), ToKobo(decimal.RequireFromString("10.50")))
	assert.Equal(t, int64(1050), ToKobo(decimal.RequireFromString("10.509")))
	assert.Equal(t, int64(0), ToKobo(decimal.Zero))
	assert.True(t, decimal.RequireFromString("10.50").Equal(ToMajor(1050)))
}

// --- Mocks ---

type mockCatalog struct {
	storefronts map[string]*Storefront
	products    map[string]*Product
	coupons     map[string]*Coupon
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		storefronts: make(map[string]*Storefront),
		products:    make(map[string]*Product),
		coupons:     make(map[string]*Coupon),
	}
}

func (m *mockCatalog) StorefrontBySlug(_ context.Context, slug string) (*Storefront, error) {
	s, ok := m.storefronts[slug]
	if !ok {
		return nil, ErrStorefrontNotFound
	}
	return s, nil
}

func (m *mockCatalog) ProductsByIDs(_ context.Context, ids []string) ([]*Product, error) {
	out := make([]*Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalog) CouponByCode(_ context.Context, storefrontID, code string) (*Coupon, error) {
	c, ok := m.coupons[code]
	if !ok || c.StorefrontID != storefrontID {
		return nil, nil
	}
	return c, nil
}
