package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jcmexdev/marketplace-settlement/internal/gateway"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/domain/entity"
	"github.com/jcmexdev/marketplace-settlement/internal/settlement/core/ports"
)

// RoleCustomer callers may only verify installments on their own orders.
const RoleCustomer = "customer"

// InstallmentService verifies one payment-plan installment at a time
// against whichever gateway is configured as active, then recomputes the
// plan's derived completion state atomically.
type InstallmentService struct {
	store     ports.Store
	verifiers map[gateway.Provider]gateway.Verifier
	active    gateway.Provider
	currency  string
}

// NewInstallmentService wires both provider paths. The active provider
// is injected, not read from ambient state, so both paths are
// deterministic under test.
func NewInstallmentService(
	store ports.Store,
	verifiers map[gateway.Provider]gateway.Verifier,
	active gateway.Provider,
	currency string,
) *InstallmentService {
	return &InstallmentService{
		store:     store,
		verifiers: verifiers,
		active:    active,
		currency:  currency,
	}
}

type VerifyInstallmentInput struct {
	OrderID       string
	Index         int
	Reference     string
	TransactionID string // required on the legacy path
	CallerEmail   string
	CallerRole    string
}

type VerifyInstallmentResult struct {
	AlreadyPaid bool  `json:"alreadyPaid,omitempty"`
	Completed   bool  `json:"completed"`
	PaidKobo    int64 `json:"paidKobo"`
	TotalKobo   int64 `json:"totalKobo"`
}

// Verify runs one installment through the verify-and-apply cycle.
// Settled installments are an idempotent no-op; the gateway is not
// called again for them.
func (s *InstallmentService) Verify(ctx context.Context, in VerifyInstallmentInput) (*VerifyInstallmentResult, error) {
	if in.OrderID == "" {
		return nil, fmt.Errorf("settlement: order id required")
	}
	if in.Reference == "" {
		return nil, entity.ErrReferenceRequired
	}

	order, err := s.store.OrderByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, entity.ErrOrderNotFound
	}

	if err := checkOwnership(order, in); err != nil {
		return nil, err
	}
	if order.PaymentType != entity.PaymentEscrow {
		return nil, entity.ErrNotEscrowOrder
	}
	if order.Plan == nil || !order.Plan.Enabled {
		return nil, entity.ErrNoPaymentPlan
	}
	if in.Index < 0 || in.Index >= len(order.Plan.Installments) {
		return nil, entity.ErrInstallmentNotFound
	}

	target := order.Plan.Installments[in.Index]
	if target.Status.Settled() {
		return &VerifyInstallmentResult{
			AlreadyPaid: true,
			Completed:   order.Plan.Completed,
			PaidKobo:    order.Plan.PaidKobo,
			TotalKobo:   order.Plan.TotalKobo,
		}, nil
	}

	verifier, ok := s.verifiers[s.active]
	if !ok {
		return nil, fmt.Errorf("settlement: no verifier configured for provider %q", s.active)
	}
	if s.active == gateway.ProviderFlutterwave && in.TransactionID == "" {
		return nil, entity.ErrTransactionIDRequired
	}

	payment, err := verifier.Verify(ctx, in.Reference, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPayment(payment, order, target, in); err != nil {
		return nil, err
	}

	return s.apply(ctx, in, payment)
}

// checkPayment enforces the hard gateway checks (status, currency, exact
// amount) and the best-effort cross-checks (buyer email, embedded order
// metadata). Cross-check failures reject with a descriptive error but do
// not write a mismatch record; the amount has already been verified.
func (s *InstallmentService) checkPayment(
	payment *gateway.VerifiedPayment,
	order *entity.Order,
	target entity.Installment,
	in VerifyInstallmentInput,
) error {
	if !payment.Succeeded {
		return entity.ErrPaymentNotSuccessful
	}
	if payment.Currency != s.currency {
		return fmt.Errorf("%w: got %q, want %q", entity.ErrWrongCurrency, payment.Currency, s.currency)
	}
	if payment.AmountKobo != target.AmountKobo {
		return fmt.Errorf("%w: installment %d expects %d kobo, gateway reported %d kobo",
			entity.ErrInstallmentAmount, target.Index, target.AmountKobo, payment.AmountKobo)
	}

	if payment.CustomerEmail != "" && order.BuyerEmail != "" &&
		!strings.EqualFold(payment.CustomerEmail, order.BuyerEmail) {
		return fmt.Errorf("%w: payer email does not match order buyer", entity.ErrVerificationMismatch)
	}
	if meta := parseInstallmentMetadata(payment.Metadata); meta != nil {
		if meta.OrderID != "" && meta.OrderID != order.ID {
			return fmt.Errorf("%w: charge was made for a different order", entity.ErrVerificationMismatch)
		}
		if meta.InstallmentIndex != nil && *meta.InstallmentIndex != in.Index {
			return fmt.Errorf("%w: charge was made for installment %d", entity.ErrVerificationMismatch, *meta.InstallmentIndex)
		}
	}
	return nil
}

// apply atomically marks the installment paid and recomputes the plan.
// The order is re-read inside the transaction so a race between two
// installments verifying concurrently cannot lose an update to PaidKobo
// or observe completed=true while an installment is unsettled.
func (s *InstallmentService) apply(ctx context.Context, in VerifyInstallmentInput, payment *gateway.VerifiedPayment) (*VerifyInstallmentResult, error) {
	var result *VerifyInstallmentResult

	err := s.store.WithTx(ctx, func(tx ports.Tx) error {
		order, err := tx.OrderByID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return entity.ErrOrderNotFound
		}
		if order.Plan == nil || in.Index >= len(order.Plan.Installments) {
			return entity.ErrInstallmentNotFound
		}
		if order.Plan.Installments[in.Index].Status.Settled() {
			result = &VerifyInstallmentResult{
				AlreadyPaid: true,
				Completed:   order.Plan.Completed,
				PaidKobo:    order.Plan.PaidKobo,
				TotalKobo:   order.Plan.TotalKobo,
			}
			return nil
		}

		now := time.Now().UTC()
		inst := &order.Plan.Installments[in.Index]
		inst.Status = entity.InstallmentPaid
		inst.Provider = string(payment.Provider)
		inst.Reference = in.Reference
		inst.Receipt = payment.Raw
		inst.PaidAtMs = now.UnixMilli()

		order.Plan.Recompute(now)
		if order.Plan.Completed {
			order.PaymentStatus = entity.PaymentStatusPaid
			order.Status = entity.OrderPaid
		}

		if err := tx.UpdateOrderPlan(ctx, order); err != nil {
			return err
		}

		result = &VerifyInstallmentResult{
			Completed: order.Plan.Completed,
			PaidKobo:  order.Plan.PaidKobo,
			TotalKobo: order.Plan.TotalKobo,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "installment verified",
		"order_id", in.OrderID,
		"index", in.Index,
		"completed", result.Completed,
		"already_paid", result.AlreadyPaid,
	)
	return result, nil
}

func checkOwnership(order *entity.Order, in VerifyInstallmentInput) error {
	if in.CallerRole != RoleCustomer {
		return nil
	}
	if order.BuyerEmail == "" || !strings.EqualFold(order.BuyerEmail, in.CallerEmail) {
		return entity.ErrNotOrderOwner
	}
	return nil
}

// parseInstallmentMetadata decodes the best-effort cross-check fields.
// Malformed metadata is treated as absent, not as an error.
func parseInstallmentMetadata(raw json.RawMessage) *CheckoutMetadata {
	if len(raw) == 0 {
		return nil
	}
	var meta CheckoutMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	return &meta
}
