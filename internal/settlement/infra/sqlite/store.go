// Package sqlite provides the SQLite-backed implementation of the
// settlement store and catalog.
//
// WAL mode is enabled on Open so that readers never block writers and
// vice versa: settlement webhooks write while quote previews read.
// All multi-record settlement writes run through WithTx, which retries
// the whole callback on a busy/locked conflict so the four settlement
// writes commit together or not at all.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/domain/entity"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/ports"

	// Register the pure-Go SQLite driver.
	// modernc.org/sqlite avoids CGO, keeping Docker builds simple.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS storefronts (
    id          TEXT PRIMARY KEY,
    slug        TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS products (
    id             TEXT PRIMARY KEY,
    storefront_id  TEXT NOT NULL,
    name           TEXT NOT NULL DEFAULT '',

    -- Listed unit price in naira, stored as decimal TEXT. Converted to
    -- kobo exactly once, at quote time.
    price          TEXT NOT NULL,

    -- NULL stock means unlimited.
    stock          INTEGER,

    kind           TEXT NOT NULL,
    service_mode   TEXT NOT NULL DEFAULT 'payable',

    -- Active sale descriptor as JSON, NULL when the product has none.
    sale_json      TEXT
);
CREATE INDEX IF NOT EXISTS idx_products_storefront ON products(storefront_id);

CREATE TABLE IF NOT EXISTS coupons (
    storefront_id      TEXT NOT NULL,
    code               TEXT NOT NULL,
    active             INTEGER NOT NULL DEFAULT 1,
    type               TEXT NOT NULL,
    percent            INTEGER NOT NULL DEFAULT 0,
    amount_off_kobo    INTEGER NOT NULL DEFAULT 0,
    min_order_kobo     INTEGER NOT NULL DEFAULT 0,
    max_discount_kobo  INTEGER NOT NULL DEFAULT 0,
    usage_limit        INTEGER NOT NULL DEFAULT 0,
    usage_count        INTEGER NOT NULL DEFAULT 0,
    starts_at          TEXT NOT NULL,
    ends_at            TEXT NOT NULL,
    PRIMARY KEY (storefront_id, code)
);

CREATE TABLE IF NOT EXISTS orders (
    id               TEXT PRIMARY KEY,
    storefront_id    TEXT NOT NULL,
    storefront_slug  TEXT NOT NULL,
    buyer_email      TEXT NOT NULL DEFAULT '',
    items_json       TEXT NOT NULL,
    coupon_code      TEXT NOT NULL DEFAULT '',
    payment_type     TEXT NOT NULL,
    payment_status   TEXT NOT NULL,
    escrow_status    TEXT NOT NULL,
    status           TEXT NOT NULL,
    total_kobo       INTEGER NOT NULL,
    total_major      TEXT NOT NULL,
    hold_until       TEXT NOT NULL,

    -- Payment plan as JSON, NULL for orders paid in full.
    plan_json        TEXT,

    created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_storefront ON orders(storefront_id);

-- One row per external payment reference. Existence of a row is the
-- idempotency marker: settlement already committed for that reference.
CREATE TABLE IF NOT EXISTS payment_transactions (
    reference        TEXT PRIMARY KEY,
    order_id         TEXT NOT NULL,
    storefront_slug  TEXT NOT NULL,
    amount_kobo      INTEGER NOT NULL,
    provider         TEXT NOT NULL,
    escrow_status    TEXT NOT NULL,
    hold_until       TEXT NOT NULL,
    created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS wallets (
    storefront_id   TEXT PRIMARY KEY,
    pending_kobo    INTEGER NOT NULL DEFAULT 0,
    available_kobo  INTEGER NOT NULL DEFAULT 0,
    earned_kobo     INTEGER NOT NULL DEFAULT 0,
    updated_at      TEXT NOT NULL
);

-- Write-once forensic log of amount mismatches, reviewed out of band.
CREATE TABLE IF NOT EXISTS payment_mismatches (
    reference        TEXT PRIMARY KEY,
    storefront_slug  TEXT NOT NULL,
    expected_kobo    INTEGER NOT NULL,
    paid_kobo        INTEGER NOT NULL,
    coupon_code      TEXT NOT NULL DEFAULT '',
    snapshot_json    TEXT NOT NULL DEFAULT '{}',
    created_at       TEXT NOT NULL
);
`

// Store is the SQLite implementation of ports.Store and
// checkout.Catalog.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
//
//	store, err := sqlite.Open("./data/settlement.db")
func Open(path string) (*Store, error) {
	// WAL enables concurrent readers. busy_timeout waits for locks
	// instead of failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (s *Store) Close() error {
	return s.db.Close()
}

var _ ports.Store = (*Store)(nil)

const txAttempts = 3

// WithTx runs fn inside a single database transaction and retries the
// whole callback up to txAttempts times on a write conflict. A partial
// commit is the failure mode this method exists to prevent: either every
// write in fn lands or none do.
func (s *Store) WithTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("sqlite: transaction retries exhausted: %w", lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}

	if err := fn(&storeTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func (s *Store) OrderByID(ctx context.Context, id string) (*entity.Order, error) {
	return orderByID(ctx, s.db, id)
}

func (s *Store) PaymentTransactionByRef(ctx context.Context, reference string) (*entity.PaymentTransaction, error) {
	return paymentTransactionByRef(ctx, s.db, reference)
}

// SaveMismatch inserts the forensic record. INSERT OR IGNORE keeps the
// table write-once per reference.
func (s *Store) SaveMismatch(ctx context.Context, m *entity.PaymentMismatch) error {
	const q = `
		INSERT OR IGNORE INTO payment_mismatches
			(reference, storefront_slug, expected_kobo, paid_kobo, coupon_code, snapshot_json, created_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		m.Reference,
		m.StorefrontSlug,
		m.ExpectedKobo,
		m.PaidKobo,
		m.CouponCode,
		string(m.PricingSnapshot),
		formatTime(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save mismatch for %q: %w", m.Reference, err)
	}
	return nil
}

// storeTx implements ports.Tx on top of one *sql.Tx.
type storeTx struct {
	tx *sql.Tx
}

var _ ports.Tx = (*storeTx)(nil)

func (t *storeTx) PaymentTransactionByRef(ctx context.Context, reference string) (*entity.PaymentTransaction, error) {
	return paymentTransactionByRef(ctx, t.tx, reference)
}

func (t *storeTx) OrderByID(ctx context.Context, id string) (*entity.Order, error) {
	return orderByID(ctx, t.tx, id)
}

func (t *storeTx) CreateOrder(ctx context.Context, order *entity.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("sqlite: marshal order items: %w", err)
	}
	var plan any
	if order.Plan != nil {
		encoded, err := json.Marshal(order.Plan)
		if err != nil {
			return fmt.Errorf("sqlite: marshal payment plan: %w", err)
		}
		plan = string(encoded)
	}

	const q = `
		INSERT INTO orders
			(id, storefront_id, storefront_slug, buyer_email, items_json, coupon_code,
			 payment_type, payment_status, escrow_status, status,
			 total_kobo, total_major, hold_until, plan_json, created_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = t.tx.ExecContext(ctx, q,
		order.ID,
		order.StorefrontID,
		order.StorefrontSlug,
		order.BuyerEmail,
		string(items),
		order.CouponCode,
		string(order.PaymentType),
		string(order.PaymentStatus),
		string(order.EscrowStatus),
		string(order.Status),
		order.TotalKobo,
		order.TotalMajor,
		formatTime(order.HoldUntil),
		plan,
		formatTime(order.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create order %q: %w", order.ID, err)
	}
	return nil
}

func (t *storeTx) CreatePaymentTransaction(ctx context.Context, ptx *entity.PaymentTransaction) error {
	const q = `
		INSERT INTO payment_transactions
			(reference, order_id, storefront_slug, amount_kobo, provider, escrow_status, hold_until, created_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.tx.ExecContext(ctx, q,
		ptx.Reference,
		ptx.OrderID,
		ptx.StorefrontSlug,
		ptx.AmountKobo,
		ptx.Provider,
		string(ptx.EscrowStatus),
		formatTime(ptx.HoldUntil),
		formatTime(ptx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create payment transaction %q: %w", ptx.Reference, err)
	}
	return nil
}

// CreditWallet upserts the storefront wallet with additive increments.
// Settlement credits both the pending and the lifetime earned balance.
func (t *storeTx) CreditWallet(ctx context.Context, storefrontID string, amountKobo int64) error {
	const q = `
		INSERT INTO wallets (storefront_id, pending_kobo, available_kobo, earned_kobo, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(storefront_id) DO UPDATE SET
			pending_kobo = pending_kobo + excluded.pending_kobo,
			earned_kobo  = earned_kobo + excluded.earned_kobo,
			updated_at   = excluded.updated_at`

	_, err := t.tx.ExecContext(ctx, q, storefrontID, amountKobo, amountKobo, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("sqlite: credit wallet for storefront %q: %w", storefrontID, err)
	}
	return nil
}

func (t *storeTx) IncrementCouponUsage(ctx context.Context, storefrontID, code string) error {
	const q = `UPDATE coupons SET usage_count = usage_count + 1 WHERE storefront_id = ? AND code = ?`

	_, err := t.tx.ExecContext(ctx, q, storefrontID, code)
	if err != nil {
		return fmt.Errorf("sqlite: increment usage of coupon %q: %w", code, err)
	}
	return nil
}

func (t *storeTx) UpdateOrderPlan(ctx context.Context, order *entity.Order) error {
	plan, err := json.Marshal(order.Plan)
	if err != nil {
		return fmt.Errorf("sqlite: marshal payment plan: %w", err)
	}

	const q = `
		UPDATE orders
		SET plan_json = ?, payment_status = ?, status = ?
		WHERE id = ?`

	res, err := t.tx.ExecContext(ctx, q, string(plan), string(order.PaymentStatus), string(order.Status), order.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update plan for order %q: %w", order.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return entity.ErrOrderNotFound
	}
	return nil
}

// querier lets the read helpers run against either the pool or an open
// transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func paymentTransactionByRef(ctx context.Context, q querier, reference string) (*entity.PaymentTransaction, error) {
	const query = `
		SELECT reference, order_id, storefront_slug, amount_kobo, provider, escrow_status, hold_until, created_at
		FROM   payment_transactions
		WHERE  reference = ?`

	var (
		ptx       entity.PaymentTransaction
		holdUntil string
		createdAt string
	)
	err := q.QueryRowContext(ctx, query, reference).Scan(
		&ptx.Reference,
		&ptx.OrderID,
		&ptx.StorefrontSlug,
		&ptx.AmountKobo,
		&ptx.Provider,
		&ptx.EscrowStatus,
		&holdUntil,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get payment transaction %q: %w", reference, err)
	}

	if ptx.HoldUntil, err = parseTime(holdUntil); err != nil {
		return nil, err
	}
	if ptx.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &ptx, nil
}

func orderByID(ctx context.Context, q querier, id string) (*entity.Order, error) {
	const query = `
		SELECT id, storefront_id, storefront_slug, buyer_email, items_json, coupon_code,
		       payment_type, payment_status, escrow_status, status,
		       total_kobo, total_major, hold_until, COALESCE(plan_json, ''), created_at
		FROM   orders
		WHERE  id = ?`

	var (
		order     entity.Order
		items     string
		plan      string
		holdUntil string
		createdAt string
	)
	err := q.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.StorefrontID,
		&order.StorefrontSlug,
		&order.BuyerEmail,
		&items,
		&order.CouponCode,
		&order.PaymentType,
		&order.PaymentStatus,
		&order.EscrowStatus,
		&order.Status,
		&order.TotalKobo,
		&order.TotalMajor,
		&holdUntil,
		&plan,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get order %q: %w", id, err)
	}

	if err := json.Unmarshal([]byte(items), &order.Items); err != nil {
		return nil, fmt.Errorf("sqlite: decode items of order %q: %w", id, err)
	}
	if plan != "" {
		order.Plan = &entity.PaymentPlan{}
		if err := json.Unmarshal([]byte(plan), order.Plan); err != nil {
			return nil, fmt.Errorf("sqlite: decode plan of order %q: %w", id, err)
		}
	}
	if order.HoldUntil, err = parseTime(holdUntil); err != nil {
		return nil, err
	}
	if order.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &order, nil
}
