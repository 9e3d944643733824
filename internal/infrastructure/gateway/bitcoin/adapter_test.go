package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domorder "github.com/Zhima-Mochi/payflow/internal/domain/order"
	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/gateway"
)

func testOrder() *domorder.Order {
	return &domorder.Order{
		ID:       "order-1",
		Number:   "ORD-1001",
		Total:    decimal.RequireFromString("199.99"),
		Currency: "GBP",
	}
}

func TestCreatePaymentReturnsFreshAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/addresses" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Label string `json:"label"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Label != "ORD-1001" {
			t.Errorf("label = %q, want ORD-1001", body.Label)
		}
		_, _ = w.Write([]byte(`{"address":"bc1q-test-address"}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	expiresAt := time.Now().Add(time.Hour)

	instr, err := a.CreatePayment(context.Background(), testOrder(),
		decimal.RequireFromString("0.00499975"), "BTC", expiresAt)
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if instr.Address != "bc1q-test-address" {
		t.Errorf("address = %q", instr.Address)
	}
	if !instr.ExpiresAt.Equal(expiresAt) {
		t.Errorf("expiresAt = %v, want %v", instr.ExpiresAt, expiresAt)
	}
}

func TestCreatePaymentRejectsEmptyAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":""}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	_, err := a.CreatePayment(context.Background(), testOrder(), decimal.Zero, "BTC", time.Now())
	if !errors.Is(err, domain.ErrGatewayRejected) {
		t.Fatalf("err = %v, want ErrGatewayRejected", err)
	}
}

func TestFetchStatusReadsBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/addresses/bc1q-test-address" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"address":"bc1q-test-address",
			"total_received":"0.00499975",
			"confirmations":3,
			"txids":["tx-1","tx-2"]
		}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, Timeout: time.Second}, nil)
	rec := &domain.Record{SettlementAddress: "bc1q-test-address"}

	status, err := a.FetchStatus(context.Background(), rec)
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if status.Confirmations != 3 {
		t.Errorf("confirmations = %d, want 3", status.Confirmations)
	}
	if !status.PaidAmount.Equal(decimal.RequireFromString("0.00499975")) {
		t.Errorf("paid = %s", status.PaidAmount)
	}
	if status.TransactionHash != "tx-1" {
		t.Errorf("tx hash = %q, want tx-1", status.TransactionHash)
	}
}

func TestParseWebhookEvent(t *testing.T) {
	a := New(Config{WebhookSecret: "secret"}, nil)
	payload := []byte(`{
		"event_id":"evt-7",
		"order_id":"order-1",
		"address":"bc1q-test-address",
		"confirmations":2,
		"amount_received":"0.005",
		"txid":"tx-9"
	}`)

	if !a.VerifyWebhookSignature(payload, gateway.Sign(payload, "secret")) {
		t.Fatal("valid signature rejected")
	}

	event, err := a.ParseWebhookEvent(payload)
	if err != nil {
		t.Fatalf("ParseWebhookEvent: %v", err)
	}
	if event.EventID != "evt-7" || event.OrderID != "order-1" {
		t.Errorf("event identity = %q/%q", event.EventID, event.OrderID)
	}
	if event.Observation.Confirmations != 2 {
		t.Errorf("confirmations = %d", event.Observation.Confirmations)
	}
	if !event.Observation.PaidAmount.Equal(decimal.RequireFromString("0.005")) {
		t.Errorf("paid = %s", event.Observation.PaidAmount)
	}
	if event.Observation.TransactionHash != "tx-9" {
		t.Errorf("tx hash = %q", event.Observation.TransactionHash)
	}
}

func TestParseWebhookEventRejectsIncomplete(t *testing.T) {
	a := New(Config{}, nil)
	for _, payload := range []string{
		`not json`,
		`{"order_id":"order-1","amount_received":"1"}`,
		`{"event_id":"evt-1","amount_received":"1"}`,
		`{"event_id":"evt-1","order_id":"order-1","amount_received":"abc"}`,
	} {
		if _, err := a.ParseWebhookEvent([]byte(payload)); err == nil {
			t.Errorf("payload %q parsed without error", payload)
		}
	}
}

func TestConfirmationOverride(t *testing.T) {
	if got := New(Config{}, nil).RequiredConfirmations(); got != 2 {
		t.Errorf("default confirmations = %d, want 2", got)
	}
	if got := New(Config{ConfirmationOverride: 6}, nil).RequiredConfirmations(); got != 6 {
		t.Errorf("override confirmations = %d, want 6", got)
	}
}
