// Package app implements the settlement core: turning a verified gateway
// payment into a durable order, wallet credit and coupon usage exactly
// once, and verifying payment-plan installments one at a time.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/marketplace-settlement/internal/checkout"
	"github.com/jcmexdev/marketplace-settlement/internal/gateway"
	"github.com/jcmexdev/marketplace-settlement/internal/pkg/cache"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/domain/entity"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/ports"
)

// holdWindow is how long settled funds stay in escrow before the
// release workflow may touch them.
const holdWindow = 5 * time.Minute

// resultCacheTTL bounds the redis fast path for duplicate webhooks. The
// payment_transactions row remains the authoritative idempotency marker.
const resultCacheTTL = 10 * time.Minute

// AmountMismatchError is returned when the gateway-reported amount
// disagrees with the recomputed quote. Both sides are integer kobo, so
// the comparison is exact equality, not a tolerance.
type AmountMismatchError struct {
	ExpectedKobo int64
	PaidKobo     int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: expected %d kobo, gateway reported %d kobo", e.ExpectedKobo, e.PaidKobo)
}

// SettlementResult is what the settlement entry point returns. Replays
// of an already-processed reference return the original values with
// AlreadyProcessed set.
type SettlementResult struct {
	OrderID          string              `json:"orderId"`
	StorefrontSlug   string              `json:"storefrontSlug"`
	EscrowStatus     entity.EscrowStatus `json:"escrowStatus"`
	HoldUntil        time.Time           `json:"holdUntil"`
	AlreadyProcessed bool                `json:"alreadyProcessed"`
}

// SettlementService owns the verify-then-commit cycle for full checkout
// payments.
type SettlementService struct {
	store    ports.Store
	quotes   *checkout.Builder
	verifier gateway.Verifier
	provider gateway.Provider
	currency string
	cache    cache.Cache // optional
}

func NewSettlementService(
	store ports.Store,
	quotes *checkout.Builder,
	verifier gateway.Verifier,
	provider gateway.Provider,
	currency string,
	resultCache cache.Cache,
) *SettlementService {
	return &SettlementService{
		store:    store,
		quotes:   quotes,
		verifier: verifier,
		provider: provider,
		currency: currency,
		cache:    resultCache,
	}
}

// Settle verifies the payment behind reference with the active gateway,
// recomputes the authoritative quote, enforces the amount-match guard
// and commits the order, payment transaction, wallet credit and coupon
// usage as one atomic write. Calling it again with the same reference
// returns the originally committed result.
func (s *SettlementService) Settle(ctx context.Context, reference string) (*SettlementResult, error) {
	if reference == "" {
		return nil, entity.ErrReferenceRequired
	}

	if cached := s.cachedResult(ctx, reference); cached != nil {
		return cached, nil
	}

	// Duplicate webhooks and user retries are common; answer them from
	// the durable marker before paying for a gateway round trip.
	if existing, err := s.store.PaymentTransactionByRef(ctx, reference); err != nil {
		return nil, err
	} else if existing != nil {
		return replayResult(existing), nil
	}

	payment, err := s.verifier.Verify(ctx, reference, "")
	if err != nil {
		return nil, err
	}
	if !payment.Succeeded {
		return nil, entity.ErrPaymentNotSuccessful
	}
	if payment.Currency != s.currency {
		return nil, fmt.Errorf("%w: got %q, want %q", entity.ErrWrongCurrency, payment.Currency, s.currency)
	}

	meta, err := parseCheckoutMetadata(payment.Metadata)
	if err != nil {
		return nil, err
	}

	// Re-derive the authoritative price. The commit below uses exactly
	// these values; product or coupon changes that land between quote
	// and commit do not retroactively alter this order.
	quote, err := s.quotes.BuildQuote(ctx, quoteInput(meta))
	if err != nil {
		return nil, err
	}

	var plan *entity.PaymentPlan
	expectedKobo := quote.Pricing.TotalKobo
	if meta.Installments >= 2 {
		plan = entity.NewPaymentPlan(quote.Pricing.TotalKobo, meta.Installments)
		// A plan checkout charges the first installment up front; the
		// guard compares against that share, not the full total.
		expectedKobo = plan.Installments[0].AmountKobo
	}

	if err := s.guardAmount(ctx, reference, payment, quote, expectedKobo); err != nil {
		return nil, err
	}

	result, err := s.commit(ctx, reference, payment, quote, meta, plan)
	if err != nil {
		return nil, err
	}

	if !result.AlreadyProcessed && s.cache != nil {
		key := s.cache.GenerateKey("settlement", reference)
		if err := s.cache.SetJSON(ctx, key, result, resultCacheTTL); err != nil {
			slog.WarnContext(ctx, "failed to cache settlement result", "reference", reference, "error", err)
		}
	}
	return result, nil
}

// guardAmount is the mismatch guard: a hard equality check between the
// gateway-reported amount and the recomputed expectation. On mismatch a
// forensic record is persisted before settlement aborts; this is the one
// rejection that intentionally leaves a side effect.
func (s *SettlementService) guardAmount(
	ctx context.Context,
	reference string,
	payment *gateway.VerifiedPayment,
	quote *checkout.Quote,
	expectedKobo int64,
) error {
	if payment.AmountKobo <= 0 {
		return entity.ErrPaymentNotSuccessful
	}
	if payment.AmountKobo == expectedKobo {
		return nil
	}

	snapshot, _ := json.Marshal(quote.Pricing)
	couponCode := ""
	if quote.Coupon != nil {
		couponCode = quote.Coupon.Code
	}
	mismatch := &entity.PaymentMismatch{
		Reference:       reference,
		StorefrontSlug:  quote.StorefrontSlug,
		ExpectedKobo:    expectedKobo,
		PaidKobo:        payment.AmountKobo,
		CouponCode:      couponCode,
		PricingSnapshot: snapshot,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.SaveMismatch(ctx, mismatch); err != nil {
		slog.ErrorContext(ctx, "failed to persist payment mismatch", "reference", reference, "error", err)
	}
	slog.WarnContext(ctx, "payment amount mismatch",
		"reference", reference,
		"storefront", quote.StorefrontSlug,
		"expected_kobo", expectedKobo,
		"paid_kobo", payment.AmountKobo,
	)
	return &AmountMismatchError{ExpectedKobo: expectedKobo, PaidKobo: payment.AmountKobo}
}

// commit performs the atomic multi-record write. The existence check on
// the payment transaction runs inside the same transaction as the
// writes, so of two concurrent attempts exactly one creates the order
// and the other observes it.
func (s *SettlementService) commit(
	ctx context.Context,
	reference string,
	payment *gateway.VerifiedPayment,
	quote *checkout.Quote,
	meta *CheckoutMetadata,
	plan *entity.PaymentPlan,
) (*SettlementResult, error) {
	var result *SettlementResult

	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		existing, err := tx.PaymentTransactionByRef(ctx, reference)
		if err != nil {
			return err
		}
		if existing != nil {
			result = replayResult(existing)
			return nil
		}

		now := time.Now().UTC()
		buyerEmail := meta.BuyerEmail
		if buyerEmail == "" {
			buyerEmail = payment.CustomerEmail
		}

		order := &entity.Order{
			ID:             uuid.NewString(),
			StorefrontID:   quote.StorefrontID,
			StorefrontSlug: quote.StorefrontSlug,
			BuyerEmail:     buyerEmail,
			Items:          orderItems(quote),
			PaymentType:    entity.PaymentEscrow,
			PaymentStatus:  entity.PaymentStatusPaid,
			EscrowStatus:   entity.EscrowHeld,
			Status:         entity.OrderPaidHeld,
			TotalKobo:      quote.Pricing.TotalKobo,
			TotalMajor:     checkout.ToMajor(quote.Pricing.TotalKobo).StringFixed(2),
			HoldUntil:      now.Add(holdWindow),
			CreatedAt:      now,
		}
		if quote.Coupon != nil {
			order.CouponCode = quote.Coupon.Code
		}
		if plan != nil {
			plan.Installments[0].Status = entity.InstallmentPaid
			plan.Installments[0].Provider = string(payment.Provider)
			plan.Installments[0].Reference = reference
			plan.Installments[0].Receipt = payment.Raw
			plan.Installments[0].PaidAtMs = now.UnixMilli()
			plan.Recompute(now)
			order.Plan = plan
			order.PaymentStatus = entity.PaymentStatusPartiallyPaid
		}

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.CreatePaymentTransaction(ctx, &entity.PaymentTransaction{
			Reference:      reference,
			OrderID:        order.ID,
			StorefrontSlug: order.StorefrontSlug,
			AmountKobo:     payment.AmountKobo,
			Provider:       string(payment.Provider),
			EscrowStatus:   order.EscrowStatus,
			HoldUntil:      order.HoldUntil,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		if err := tx.CreditWallet(ctx, order.StorefrontID, payment.AmountKobo); err != nil {
			return err
		}
		if quote.Coupon != nil {
			if err := tx.IncrementCouponUsage(ctx, order.StorefrontID, quote.Coupon.Code); err != nil {
				return err
			}
		}

		result = &SettlementResult{
			OrderID:        order.ID,
			StorefrontSlug: order.StorefrontSlug,
			EscrowStatus:   order.EscrowStatus,
			HoldUntil:      order.HoldUntil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SettlementService) cachedResult(ctx context.Context, reference string) *SettlementResult {
	if s.cache == nil {
		return nil
	}
	key := s.cache.GenerateKey("settlement", reference)
	var cached SettlementResult
	hit, err := s.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		slog.WarnContext(ctx, "settlement cache read failed", "reference", reference, "error", err)
		return nil
	}
	if !hit {
		return nil
	}
	cached.AlreadyProcessed = true
	return &cached
}

func replayResult(tx *entity.PaymentTransaction) *SettlementResult {
	return &SettlementResult{
		OrderID:          tx.OrderID,
		StorefrontSlug:   tx.StorefrontSlug,
		EscrowStatus:     tx.EscrowStatus,
		HoldUntil:        tx.HoldUntil,
		AlreadyProcessed: true,
	}
}

func quoteInput(meta *CheckoutMetadata) checkout.QuoteInput {
	items := make([]checkout.CartItem, 0, len(meta.Items))
	for _, it := range meta.Items {
		items = append(items, checkout.CartItem{
			ProductID:       it.ProductID,
			Qty:             it.Qty,
			SelectedOptions: it.SelectedOptions,
		})
	}
	return checkout.QuoteInput{
		StorefrontSlug:  meta.StorefrontSlug,
		Items:           items,
		CouponCode:      meta.CouponCode,
		ShippingFeeKobo: meta.ShippingFeeKobo,
	}
}

func orderItems(quote *checkout.Quote) []entity.OrderItem {
	items := make([]entity.OrderItem, 0, len(quote.Items))
	for _, it := range quote.Items {
		items = append(items, entity.OrderItem{
			ProductID:     it.ProductID,
			Name:          it.Name,
			Qty:           it.Qty,
			BaseUnitKobo:  it.BaseUnitKobo,
			FinalUnitKobo: it.FinalUnitKobo,
			LineTotalKobo: it.LineTotalKobo,
			SaleApplied:   it.SaleApplied,
		})
	}
	return items
}

// IsRejection reports whether err is a request-scoped rejection (bad
// input, business rule, mismatch) as opposed to an infrastructure
// failure. The HTTP layer maps rejections to 4xx.
func IsRejection(err error) bool {
	var mismatch *AmountMismatchError
	switch {
	case errors.As(err, &mismatch),
		errors.Is(err, entity.ErrReferenceRequired),
		errors.Is(err, entity.ErrPaymentNotSuccessful),
		errors.Is(err, entity.ErrWrongCurrency),
		errors.Is(err, checkout.ErrInvalidCart),
		errors.Is(err, checkout.ErrInvalidItem),
		errors.Is(err, checkout.ErrCouponInvalid):
		return true
	}
	return false
}
