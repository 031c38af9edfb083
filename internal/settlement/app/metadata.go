package app

import (
	"encoding/json"
	"fmt"
)

// CheckoutMetadata is the structured payload the client attaches to the
// gateway charge. Settlement re-derives the price from it; nothing in it
// is trusted as an amount.
type CheckoutMetadata struct {
	StorefrontSlug  string         `json:"storefrontSlug"`
	Items           []CheckoutItem `json:"items"`
	CouponCode      string         `json:"couponCode,omitempty"`
	ShippingFeeKobo int64          `json:"shippingFeeKobo"`
	BuyerEmail      string         `json:"buyerEmail,omitempty"`
	// Installments opts the order into a payment plan when >= 2.
	Installments int `json:"installments,omitempty"`
	// OrderID and InstallmentIndex are set on charges that pay a single
	// installment of an existing plan; the installment verifier
	// cross-checks them best-effort.
	OrderID          string `json:"orderId,omitempty"`
	InstallmentIndex *int   `json:"installmentIndex,omitempty"`
}

type CheckoutItem struct {
	ProductID       string            `json:"productId"`
	Qty             int64             `json:"qty"`
	SelectedOptions map[string]string `json:"selectedOptions,omitempty"`
}

const maxInstallments = 12

func parseCheckoutMetadata(raw json.RawMessage) (*CheckoutMetadata, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("settlement: gateway payload carries no checkout metadata")
	}
	var meta CheckoutMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("settlement: decode checkout metadata: %w", err)
	}
	if meta.StorefrontSlug == "" {
		return nil, fmt.Errorf("settlement: metadata missing storefront slug")
	}
	if len(meta.Items) == 0 {
		return nil, fmt.Errorf("settlement: metadata carries an empty cart")
	}
	if meta.Installments != 0 && (meta.Installments < 2 || meta.Installments > maxInstallments) {
		return nil, fmt.Errorf("settlement: installment count must be between 2 and %d", maxInstallments)
	}
	return &meta, nil
}
