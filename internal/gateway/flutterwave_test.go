package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flutterwaveBody(amount string) string {
	return fmt.Sprintf(`{
		"status": "success",
		"message": "Transaction fetched successfully",
		"data": {
			"id": 288200108,
			"tx_ref": "ref_1",
			"amount": %s,
			"currency": "NGN",
			"status": "successful",
			"customer": {"email": "buyer@example.com"},
			"meta": {"storefrontSlug": "kicks"},
			"created_at": "2026-08-30T12:00:00.000Z"
		}
	}`, amount)
}

func TestFlutterwaveVerify_ByTransactionID(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, flutterwaveBody("1500"))
	}))
	defer server.Close()

	client := NewFlutterwaveClient(server.URL, "FLWSECK_TEST")
	payment, err := client.Verify(context.Background(), "ref_1", "288200108")

	require.NoError(t, err)
	assert.Equal(t, "/v3/transactions/288200108/verify", gotPath)
	assert.Equal(t, ProviderFlutterwave, payment.Provider)
	assert.True(t, payment.Succeeded)
	// 1500 naira converts to kobo at the boundary.
	assert.Equal(t, int64(150000), payment.AmountKobo)
	assert.Equal(t, "ref_1", payment.Reference)
}

func TestFlutterwaveVerify_ByReferenceFallback(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, flutterwaveBody("1500"))
	}))
	defer server.Close()

	client := NewFlutterwaveClient(server.URL, "FLWSECK_TEST")
	payment, err := client.Verify(context.Background(), "ref_1", "")

	require.NoError(t, err)
	assert.Equal(t, "tx_ref=ref_1", gotQuery)
	assert.True(t, payment.Succeeded)
}

func TestFlutterwaveVerify_FractionalAmountFloors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, flutterwaveBody("1500.509"))
	}))
	defer server.Close()

	client := NewFlutterwaveClient(server.URL, "FLWSECK_TEST")
	payment, err := client.Verify(context.Background(), "ref_1", "")

	require.NoError(t, err)
	assert.Equal(t, int64(150050), payment.AmountKobo)
}

func TestFlutterwaveVerify_Errors(t *testing.T) {
	t.Run("no identifier", func(t *testing.T) {
		client := NewFlutterwaveClient("http://unused", "sk")
		_, err := client.Verify(context.Background(), "", "")
		assert.Error(t, err)
	})

	t.Run("api rejects", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"status": "error", "message": "No transaction was found for this id"}`)
		}))
		defer server.Close()

		client := NewFlutterwaveClient(server.URL, "sk")
		_, err := client.Verify(context.Background(), "", "404404")
		assert.ErrorContains(t, err, "No transaction was found")
	})

	t.Run("tx_ref mismatch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"status": "success", "data": {"tx_ref": "other", "status": "successful", "amount": 10}}`)
		}))
		defer server.Close()

		client := NewFlutterwaveClient(server.URL, "sk")
		_, err := client.Verify(context.Background(), "ref_1", "")
		assert.ErrorContains(t, err, `returned tx_ref "other"`)
	})
}
