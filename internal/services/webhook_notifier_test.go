package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"payment-api/internal/models"
)

func TestWebhookNotifierSignsPayload(t *testing.T) {
	var got WebhookPayload
	var sigOK atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sigOK.Store(r.Header.Get("X-Payment-Signature") == generateSignature(body, "whsec"))
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	expires := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	wn := NewWebhookNotifier(srv.URL, "whsec")
	wn.OrderPaid(context.Background(),
		&models.Order{OutTradeNo: "o1"},
		&models.Membership{UserID: "u1", MembershipType: "3_months", ExpiresAt: &expires})

	if !sigOK.Load() {
		t.Fatal("signature header missing or wrong")
	}
	if got.Event != "membership.updated" || got.UserID != "u1" || got.OrderID != "o1" || got.ExpiresAt != "2025-04-01T00:00:00Z" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookNotifierRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(srv.URL, "")
	wn.retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	wn.OrderPaid(context.Background(), &models.Order{OutTradeNo: "o1"}, &models.Membership{UserID: "u1", IsLifetime: true})

	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhookNotifierSkipsOneTimeOrders(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	NewWebhookNotifier(srv.URL, "").OrderPaid(context.Background(), &models.Order{OutTradeNo: "o1"}, nil)
	if calls.Load() != 0 {
		t.Fatal("webhook sent for one-time order")
	}
}
