package mercadopago

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wearly/wearly/internal/config"
	"github.com/wearly/wearly/internal/preapproval/domain"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{
		MercadoPagoBaseURL:     srv.URL,
		MercadoPagoAccessToken: "test-token",
	}, zap.NewNop())
}

func TestFindByExternalReference(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if got := r.URL.Query().Get("external_reference"); got != "123_pro" {
			t.Fatalf("unexpected external_reference %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"results": [{
				"id": "mp-1",
				"payer_id": 98765,
				"external_reference": "123_pro",
				"status": "Authorized",
				"next_payment_date": "2026-09-28T00:00:00Z",
				"auto_recurring": {"currency_id": "ars", "transaction_amount": 2999}
			}]
		}`))
	})

	got, err := client.FindByExternalReference(context.Background(), "123_pro")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "mp-1" {
		t.Fatalf("unexpected id %q", got.ID)
	}
	if got.PayerID != "98765" {
		t.Fatalf("unexpected payer id %q", got.PayerID)
	}
	if got.Status != "authorized" {
		t.Fatalf("expected normalized status, got %q", got.Status)
	}
	if got.CurrencyID != "ARS" {
		t.Fatalf("expected uppercased currency, got %q", got.CurrencyID)
	}
	if got.TransactionAmount != 2999 {
		t.Fatalf("unexpected amount %f", got.TransactionAmount)
	}
	if got.NextPaymentDate == nil {
		t.Fatal("expected next payment date")
	}
}

func TestFindByExternalReferenceEmptyResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": []}`))
	})

	_, err := client.FindByExternalReference(context.Background(), "123_pro")
	if !errors.Is(err, domain.ErrPreapprovalNotFound) {
		t.Fatalf("expected ErrPreapprovalNotFound, got %v", err)
	}
}

func TestFindByExternalReferenceServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FindByExternalReference(context.Background(), "123_pro")
	if !errors.Is(err, domain.ErrProcessorUnavailable) {
		t.Fatalf("expected ErrProcessorUnavailable, got %v", err)
	}
}
