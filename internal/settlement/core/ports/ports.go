// Package ports declares the persistence interfaces the settlement core
// depends on. The core talks to these abstractions, not to SQLite
// directly, so tests can swap in in-memory implementations.
package ports

import (
	"context"

	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/domain/entity"
)

// Tx is the unit-of-work handed to WithTx callbacks. Every write issued
// through it commits atomically with the others or not at all.
type Tx interface {
	// PaymentTransactionByRef returns (nil, nil) when no settlement has
	// been recorded for the reference. Reading it inside the transaction
	// is the idempotency decision point: only one concurrent attempt
	// wins the create path.
	PaymentTransactionByRef(ctx context.Context, reference string) (*entity.PaymentTransaction, error)
	CreateOrder(ctx context.Context, order *entity.Order) error
	CreatePaymentTransaction(ctx context.Context, tx *entity.PaymentTransaction) error
	// CreditWallet adds to the storefront wallet's pending and earned
	// balances. Increments only, never overwrites.
	CreditWallet(ctx context.Context, storefrontID string, amountKobo int64) error
	IncrementCouponUsage(ctx context.Context, storefrontID, code string) error
	OrderByID(ctx context.Context, id string) (*entity.Order, error)
	// UpdateOrderPlan persists the order's payment plan together with its
	// payment and operational status in one write.
	UpdateOrderPlan(ctx context.Context, order *entity.Order) error
}

// Store is the durable state behind settlement. WithTx must guarantee
// all-or-nothing semantics for every write issued through the Tx and
// retry the whole callback on a write conflict.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	OrderByID(ctx context.Context, id string) (*entity.Order, error)
	PaymentTransactionByRef(ctx context.Context, reference string) (*entity.PaymentTransaction, error)
	// SaveMismatch persists the forensic record for an amount mismatch.
	// Write-once per reference; a duplicate save is a no-op.
	SaveMismatch(ctx context.Context, m *entity.PaymentMismatch) error
}
