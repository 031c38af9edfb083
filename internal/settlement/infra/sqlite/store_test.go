package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/marketplace-settlement/internal/checkout"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/domain/entity"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/ports"
)

// --- Setup ---

func setupStoreTest(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "settlement.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCatalog(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	now := formatTime(time.Now().UTC())

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO storefronts (id, slug, name, created_at) VALUES (?, ?, ?, ?)`,
		"sf_1", "kicks", "Kicks NG", now)
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx,
		`INSERT INTO products (id, storefront_id, name, price, stock, kind, service_mode, sale_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		"p1", "sf_1", "Air Max", "150.00", 5, "physical", "payable")
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx,
		`INSERT INTO coupons (storefront_id, code, active, type, percent, starts_at, ends_at)
		 VALUES (?, ?, 1, 'percent', 10, ?, ?)`,
		"sf_1", "SAVE10",
		formatTime(time.Now().Add(-time.Hour)),
		formatTime(time.Now().Add(time.Hour)))
	require.NoError(t, err)
}

func sampleOrder(id string) *entity.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &entity.Order{
		ID:             id,
		StorefrontID:   "sf_1",
		StorefrontSlug: "kicks",
		BuyerEmail:     "buyer@example.com",
		Items: []entity.OrderItem{
			{ProductID: "p1", Name: "Air Max", Qty: 1, BaseUnitKobo: 15000, FinalUnitKobo: 15000, LineTotalKobo: 15000},
		},
		PaymentType:   entity.PaymentEscrow,
		PaymentStatus: entity.PaymentStatusPaid,
		EscrowStatus:  entity.EscrowHeld,
		Status:        entity.OrderPaidHeld,
		TotalKobo:     15000,
		TotalMajor:    "150.00",
		HoldUntil:     now.Add(5 * time.Minute),
		CreatedAt:     now,
	}
}

// --- Tests ---

func TestWithTx_SettlementWrites(t *testing.T) {
	store := setupStoreTest(t)
	seedCatalog(t, store)
	ctx := context.Background()

	order := sampleOrder("ord_1")
	err := store.WithTx(ctx, func(tx ports.Tx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.CreatePaymentTransaction(ctx, &entity.PaymentTransaction{
			Reference:      "ref_1",
			OrderID:        order.ID,
			StorefrontSlug: order.StorefrontSlug,
			AmountKobo:     order.TotalKobo,
			Provider:       "paystack",
			EscrowStatus:   order.EscrowStatus,
			HoldUntil:      order.HoldUntil,
			CreatedAt:      order.CreatedAt,
		}); err != nil {
			return err
		}
		if err := tx.CreditWallet(ctx, order.StorefrontID, order.TotalKobo); err != nil {
			return err
		}
		return tx.IncrementCouponUsage(ctx, order.StorefrontID, "SAVE10")
	})
	require.NoError(t, err)

	got, err := store.OrderByID(ctx, "ord_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order.Items, got.Items)
	assert.Equal(t, entity.OrderPaidHeld, got.Status)
	assert.Equal(t, int64(15000), got.TotalKobo)
	assert.True(t, order.HoldUntil.Equal(got.HoldUntil))
	assert.Nil(t, got.Plan)

	marker, err := store.PaymentTransactionByRef(ctx, "ref_1")
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, "ord_1", marker.OrderID)

	var pending, earned int64
	err = store.db.QueryRowContext(ctx,
		`SELECT pending_kobo, earned_kobo FROM wallets WHERE storefront_id = ?`, "sf_1").
		Scan(&pending, &earned)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), pending)
	assert.Equal(t, int64(15000), earned)

	coupon, err := store.CouponByCode(ctx, "sf_1", "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), coupon.UsageCount)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx ports.Tx) error {
		if err := tx.CreateOrder(ctx, sampleOrder("ord_rb")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.OrderByID(ctx, "ord_rb")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrder_PlanRoundTrip(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()

	order := sampleOrder("ord_plan")
	order.Plan = entity.NewPaymentPlan(15000, 3)
	order.Plan.Installments[0].Status = entity.InstallmentPaid
	order.Plan.Recompute(time.Now().UTC())
	order.PaymentStatus = entity.PaymentStatusPartiallyPaid

	err := store.WithTx(ctx, func(tx ports.Tx) error {
		return tx.CreateOrder(ctx, order)
	})
	require.NoError(t, err)

	got, err := store.OrderByID(ctx, "ord_plan")
	require.NoError(t, err)
	require.NotNil(t, got.Plan)
	assert.Equal(t, int64(5000), got.Plan.PaidKobo)
	assert.False(t, got.Plan.Completed)
	require.Len(t, got.Plan.Installments, 3)
	assert.Equal(t, entity.InstallmentPaid, got.Plan.Installments[0].Status)

	// Mark the rest settled and persist the derived state.
	got.Plan.Installments[1].Status = entity.InstallmentPaid
	got.Plan.Installments[2].Status = entity.InstallmentAccepted
	got.Plan.Recompute(time.Now().UTC())
	got.PaymentStatus = entity.PaymentStatusPaid
	got.Status = entity.OrderPaid

	err = store.WithTx(ctx, func(tx ports.Tx) error {
		return tx.UpdateOrderPlan(ctx, got)
	})
	require.NoError(t, err)

	final, err := store.OrderByID(ctx, "ord_plan")
	require.NoError(t, err)
	assert.True(t, final.Plan.Completed)
	assert.Equal(t, int64(15000), final.Plan.PaidKobo)
	assert.Equal(t, entity.OrderPaid, final.Status)
}

func TestUpdateOrderPlan_UnknownOrder(t *testing.T) {
	store := setupStoreTest(t)

	err := store.WithTx(context.Background(), func(tx ports.Tx) error {
		order := sampleOrder("ghost")
		order.Plan = entity.NewPaymentPlan(1000, 2)
		return tx.UpdateOrderPlan(context.Background(), order)
	})
	assert.ErrorIs(t, err, entity.ErrOrderNotFound)
}

func TestPaymentTransactionByRef_Miss(t *testing.T) {
	store := setupStoreTest(t)

	marker, err := store.PaymentTransactionByRef(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestSaveMismatch_WriteOnce(t *testing.T) {
	store := setupStoreTest(t)
	ctx := context.Background()

	first := &entity.PaymentMismatch{
		Reference:       "ref_bad",
		StorefrontSlug:  "kicks",
		ExpectedKobo:    1000,
		PaidKobo:        900,
		PricingSnapshot: []byte(`{"totalKobo":1000}`),
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, store.SaveMismatch(ctx, first))

	dup := *first
	dup.PaidKobo = 1
	require.NoError(t, store.SaveMismatch(ctx, &dup))

	var paid int64
	err := store.db.QueryRowContext(ctx,
		`SELECT paid_kobo FROM payment_mismatches WHERE reference = ?`, "ref_bad").Scan(&paid)
	require.NoError(t, err)
	assert.Equal(t, int64(900), paid)
}

func TestCatalogReads(t *testing.T) {
	store := setupStoreTest(t)
	seedCatalog(t, store)
	ctx := context.Background()

	sf, err := store.StorefrontBySlug(ctx, "kicks")
	require.NoError(t, err)
	assert.Equal(t, "sf_1", sf.ID)

	_, err = store.StorefrontBySlug(ctx, "ghost")
	assert.ErrorIs(t, err, checkout.ErrStorefrontNotFound)

	products, err := store.ProductsByIDs(ctx, []string{"p1", "missing"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "150.00", products[0].Price.StringFixed(2))
	require.NotNil(t, products[0].Stock)
	assert.Equal(t, int64(5), *products[0].Stock)
	assert.Nil(t, products[0].Sale)

	coupon, err := store.CouponByCode(ctx, "sf_1", "SAVE10")
	require.NoError(t, err)
	require.NotNil(t, coupon)
	assert.True(t, coupon.Active)
	assert.Equal(t, int64(10), coupon.Percent)

	coupon, err = store.CouponByCode(ctx, "sf_1", "NOSUCH")
	require.NoError(t, err)
	assert.Nil(t, coupon)
}
