package entity

import (
	"encoding/json"
	"time"
)

type PaymentType string

const (
	PaymentEscrow PaymentType = "escrow"
	PaymentDirect PaymentType = "direct"
)

type PaymentStatus string

const (
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
)

type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowDisputed EscrowStatus = "disputed"
)

type OrderStatus string

const (
	OrderPaidHeld OrderStatus = "paid_held"
	OrderPaid     OrderStatus = "paid"
)

// OrderItem is the persisted snapshot of a quoted line item. Both unit
// prices are kept so disputes can reconstruct which discounts applied.
type OrderItem struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name"`
	Qty           int64  `json:"qty"`
	BaseUnitKobo  int64  `json:"baseUnitKobo"`
	FinalUnitKobo int64  `json:"finalUnitKobo"`
	LineTotalKobo int64  `json:"lineTotalKobo"`
	SaleApplied   bool   `json:"saleApplied"`
}

// Order is created exactly once by the settlement transaction and never
// deleted. Fulfillment and dispute workflows mutate it afterwards; the
// installment machine mutates only the embedded plan and the two status
// fields.
type Order struct {
	ID             string
	StorefrontID   string
	StorefrontSlug string
	BuyerEmail     string
	Items          []OrderItem
	CouponCode     string
	PaymentType    PaymentType
	PaymentStatus  PaymentStatus
	EscrowStatus   EscrowStatus
	Status         OrderStatus
	TotalKobo      int64
	// TotalMajor is the naira rendering of TotalKobo, stored for display
	// surfaces only. Internal arithmetic never reads it.
	TotalMajor string
	HoldUntil  time.Time
	Plan       *PaymentPlan
	CreatedAt  time.Time
}

type InstallmentStatus string

const (
	InstallmentPending  InstallmentStatus = "pending"
	InstallmentPaid     InstallmentStatus = "paid"
	InstallmentAccepted InstallmentStatus = "accepted"
	InstallmentRejected InstallmentStatus = "rejected"
)

// Settled reports whether the installment counts toward the plan total.
func (s InstallmentStatus) Settled() bool {
	return s == InstallmentPaid || s == InstallmentAccepted
}

type Installment struct {
	Index      int               `json:"index"`
	AmountKobo int64             `json:"amountKobo"`
	Status     InstallmentStatus `json:"status"`
	Provider   string            `json:"provider,omitempty"`
	Reference  string            `json:"reference,omitempty"`
	Receipt    json.RawMessage   `json:"receipt,omitempty"`
	PaidAtMs   int64             `json:"paidAtMs,omitempty"`
}

// PaymentPlan lets one order's total be paid across several independently
// verified charges. PaidKobo and Completed are derived from the
// installment list, never set directly.
type PaymentPlan struct {
	Enabled       bool          `json:"enabled"`
	Installments  []Installment `json:"installments"`
	TotalKobo     int64         `json:"totalKobo"`
	PaidKobo      int64         `json:"paidKobo"`
	Completed     bool          `json:"completed"`
	CompletedAtMs int64         `json:"completedAtMs,omitempty"`
}

// Recompute derives PaidKobo and Completed from the full installment
// list. Callers must invoke it inside the same atomic write that mutated
// an installment so two concurrent verifications cannot observe a
// half-updated plan.
func (p *PaymentPlan) Recompute(now time.Time) {
	var paid int64
	allSettled := len(p.Installments) > 0
	for _, inst := range p.Installments {
		if inst.Status.Settled() {
			paid += inst.AmountKobo
		} else {
			allSettled = false
		}
	}
	p.PaidKobo = paid
	completed := allSettled && paid == p.TotalKobo
	if completed && !p.Completed {
		p.CompletedAtMs = now.UnixMilli()
	}
	p.Completed = completed
}

// NewPaymentPlan splits totalKobo into count installments. The first
// installment absorbs the division remainder so the parts always sum
// back to the exact total.
func NewPaymentPlan(totalKobo int64, count int) *PaymentPlan {
	each := totalKobo / int64(count)
	first := totalKobo - each*int64(count-1)

	installments := make([]Installment, count)
	for i := range installments {
		amount := each
		if i == 0 {
			amount = first
		}
		installments[i] = Installment{
			Index:      i,
			AmountKobo: amount,
			Status:     InstallmentPending,
		}
	}
	return &PaymentPlan{
		Enabled:      true,
		Installments: installments,
		TotalKobo:    totalKobo,
	}
}
