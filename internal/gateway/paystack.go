package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// PaystackClient verifies transactions against the Paystack API.
type PaystackClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewPaystackClient(baseURL, secretKey string) *PaystackClient {
	return &PaystackClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

var _ Verifier = (*PaystackClient)(nil)

// paystackEnvelope is the standard Paystack response wrapper.
type paystackEnvelope struct {
	Status  bool                `json:"status"`
	Message string              `json:"message"`
	Data    paystackTransaction `json:"data"`
}

// paystackTransaction is the subset of the transaction object the core
// needs. Paystack reports amounts in kobo already.
type paystackTransaction struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
	Metadata json.RawMessage `json:"metadata"`
}

// Verify calls GET /transaction/verify/{reference}. The transactionID
// argument is ignored; Paystack looks transactions up by reference.
func (c *PaystackClient) Verify(ctx context.Context, reference, _ string) (*VerifiedPayment, error) {
	if reference == "" {
		return nil, fmt.Errorf("paystack: reference required")
	}

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("paystack: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack: verify %q: %w", reference, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paystack: verify %q: unexpected status %d", reference, res.StatusCode)
	}

	var envelope paystackEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("paystack: decode verify response for %q: %w", reference, err)
	}
	if !envelope.Status {
		return nil, fmt.Errorf("paystack: verify %q failed: %s", reference, envelope.Message)
	}

	tx := envelope.Data
	if tx.Reference != reference {
		return nil, fmt.Errorf("paystack: verify %q returned reference %q", reference, tx.Reference)
	}

	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("paystack: marshal receipt for %q: %w", reference, err)
	}

	// paid_at is best effort; nothing downstream requires a non-zero PaidAt.
	paidAt, _ := time.Parse(time.RFC3339, tx.PaidAt)

	return &VerifiedPayment{
		Provider:      ProviderPaystack,
		Reference:     tx.Reference,
		Succeeded:     tx.Status == "success",
		AmountKobo:    tx.Amount,
		Currency:      tx.Currency,
		PaidAt:        paidAt,
		CustomerEmail: tx.Customer.Email,
		Metadata:      tx.Metadata,
		Raw:           raw,
	}, nil
}
