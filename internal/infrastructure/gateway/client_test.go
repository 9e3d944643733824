package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
)

func TestDoJSONClassifiesErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"server error is transient", http.StatusBadGateway, domain.ErrGatewayUnavailable},
		{"client error is terminal", http.StatusUnprocessableEntity, domain.ErrGatewayRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			c := NewClient("test", srv.URL, "", time.Second, nil)
			err := c.DoJSON(context.Background(), http.MethodPost, "/v1/payments", map[string]string{"a": "b"}, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDoJSONSendsAuthAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment_id":"pp-1"}`))
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL, "sekrit", time.Second, nil)
	var out struct {
		PaymentID string `json:"payment_id"`
	}
	if err := c.DoJSON(context.Background(), http.MethodPost, "/v1/payments", map[string]string{"a": "b"}, &out); err != nil {
		t.Fatalf("DoJSON: %v", err)
	}
	if out.PaymentID != "pp-1" {
		t.Errorf("payment_id = %q, want pp-1", out.PaymentID)
	}
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL, "", time.Second, nil)
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.GetJSON(context.Background(), "/status", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
}

func TestGetJSONDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL, "", time.Second, nil)
	err := c.GetJSON(context.Background(), "/status", nil)
	if !errors.Is(err, domain.ErrGatewayRejected) {
		t.Fatalf("err = %v, want ErrGatewayRejected", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"event_id":"evt-1","order_id":"order-1"}`)
	sig := Sign(payload, "webhook-secret")

	if !VerifySignature(payload, sig, "webhook-secret") {
		t.Error("valid signature rejected")
	}
	if VerifySignature(payload, sig, "other-secret") {
		t.Error("signature accepted under wrong secret")
	}
	if VerifySignature([]byte(`{"tampered":true}`), sig, "webhook-secret") {
		t.Error("signature accepted for tampered payload")
	}
}

func TestVerifySignatureMalformed(t *testing.T) {
	payload := []byte(`{}`)
	for _, sig := range []string{"", "not-hex!!", "deadbeef"} {
		if VerifySignature(payload, sig, "webhook-secret") {
			t.Errorf("signature %q accepted", sig)
		}
	}
	if VerifySignature(payload, Sign(payload, "s"), "") {
		t.Error("empty secret accepted")
	}
}
