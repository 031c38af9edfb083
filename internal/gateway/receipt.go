// Package gateway holds the verify-after-the-fact clients for the two
// supported payment providers. The core never asks a provider to charge;
// it only confirms what the provider says was paid.
//
// Each client validates the provider's loosely-typed response at the
// HTTP boundary and produces a VerifiedPayment, so settlement logic
// never re-checks optional-field presence.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Provider string

const (
	// ProviderPaystack is the primary gateway. Transactions are verified
	// by payment reference.
	ProviderPaystack Provider = "paystack"
	// ProviderFlutterwave is the legacy gateway. Transactions are
	// verified by numeric transaction id when one is supplied, by
	// reference otherwise.
	ProviderFlutterwave Provider = "flutterwave"
)

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderPaystack, ProviderFlutterwave:
		return Provider(s), nil
	}
	return "", fmt.Errorf("gateway: unknown provider %q", s)
}

// VerifiedPayment is the provider-neutral result of a verify call,
// validated at the boundary. Amounts are always kobo.
type VerifiedPayment struct {
	Provider      Provider
	Reference     string
	Succeeded     bool
	AmountKobo    int64
	Currency      string
	PaidAt        time.Time
	CustomerEmail string
	// Metadata is the raw checkout metadata the client attached at
	// charge time; the settlement layer decodes it.
	Metadata json.RawMessage
	// Raw is the provider's transaction object, kept verbatim for the
	// installment receipt.
	Raw json.RawMessage
}

// Verifier confirms a transaction with one provider. transactionID is
// only meaningful on the legacy path; the primary gateway ignores it.
type Verifier interface {
	Verify(ctx context.Context, reference, transactionID string) (*VerifiedPayment, error)
}
