package pgclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetTransaction_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/transactions/pay-1" {
			t.Fatalf("path = %s, want /api/transactions/pay-1", r.URL.Path)
		}

		resp := Transaction{
			PgTransactionID:       "pg-tx-1",
			MerchantCorrelationID: "pay-1",
			Status:                StatusApproved,
			Amount:                10000,
			Currency:              "KRW",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.GetTransaction(ctx, "pay-1")
	if err != nil {
		t.Fatalf("GetTransaction error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", code, http.StatusOK)
	}
	if retry != 0 {
		t.Fatalf("retryAfter = %v, want 0", retry)
	}
	if res == nil || res.PgTransactionID != "pg-tx-1" || res.Status != StatusApproved || res.Amount != 10000 {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestGetTransaction_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, retry, err := client.GetTransaction(ctx, "pay-1")
	if err != nil {
		t.Fatalf("GetTransaction error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 429, got %+v", res)
	}
	if code != http.StatusTooManyRequests {
		t.Fatalf("status code = %d, want %d", code, http.StatusTooManyRequests)
	}
	if retry < 5*time.Second {
		t.Fatalf("retryAfter = %v, want at least 5s", retry)
	}
}

func TestGetTransaction_Unknown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, code, _, err := client.GetTransaction(ctx, "pay-1")
	if err != nil {
		t.Fatalf("GetTransaction error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil response for 404, got %+v", res)
	}
	if code != http.StatusNotFound {
		t.Fatalf("status code = %d, want %d", code, http.StatusNotFound)
	}
}

func TestGetTransaction_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	if _, _, _, err := client.GetTransaction(context.Background(), "pay-1"); err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestGetTransaction_NotConfigured(t *testing.T) {
	var client *Client
	if _, _, _, err := client.GetTransaction(context.Background(), "pay-1"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
