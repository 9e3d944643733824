package wallet

import (
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/gateway"
)

func TestNormalize(t *testing.T) {
	a := New(Config{}, nil)

	tests := []struct {
		status    string
		wantState domain.RemoteState
		wantConfs int64
	}{
		{"created", domain.RemotePending, 0},
		{"approved", domain.RemoteApproved, 0},
		{"captured", domain.RemoteCompleted, 1},
		{"failed", domain.RemoteFailed, 0},
		{"denied", domain.RemoteFailed, 0},
		{"voided", domain.RemoteFailed, 0},
		{"something-new", domain.RemotePending, 0},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := a.normalize(tt.status, "199.99", "cap-1")
			if got.State != tt.wantState {
				t.Errorf("state = %s, want %s", got.State, tt.wantState)
			}
			if got.Confirmations != tt.wantConfs {
				t.Errorf("confirmations = %d, want %d", got.Confirmations, tt.wantConfs)
			}
		})
	}

	captured := a.normalize("captured", "199.99", "cap-1")
	if !captured.PaidAmount.Equal(decimal.RequireFromString("199.99")) {
		t.Errorf("captured paid = %s", captured.PaidAmount)
	}
	if captured.TransactionHash != "cap-1" {
		t.Errorf("captured hash = %q", captured.TransactionHash)
	}
}

func TestParseWebhookEventCaptured(t *testing.T) {
	a := New(Config{WebhookSecret: "secret"}, nil)
	payload := []byte(`{
		"id":"wh-1",
		"event_type":"payment.captured",
		"resource":{
			"payment_id":"pp-9",
			"order_id":"order-1",
			"status":"captured",
			"amount":"199.99",
			"capture_id":"cap-1"
		}
	}`)

	if !a.VerifyWebhookSignature(payload, gateway.Sign(payload, "secret")) {
		t.Fatal("valid signature rejected")
	}
	if a.VerifyWebhookSignature(payload, gateway.Sign(payload, "wrong")) {
		t.Fatal("signature under wrong secret accepted")
	}

	event, err := a.ParseWebhookEvent(payload)
	if err != nil {
		t.Fatalf("ParseWebhookEvent: %v", err)
	}
	if event.EventID != "wh-1" || event.OrderID != "order-1" || event.RemoteID != "pp-9" {
		t.Errorf("identity = %q/%q/%q", event.EventID, event.OrderID, event.RemoteID)
	}
	if event.Observation.RemoteStatus != domain.RemoteCompleted {
		t.Errorf("remote status = %s", event.Observation.RemoteStatus)
	}
	if event.Observation.Confirmations != 1 {
		t.Errorf("confirmations = %d", event.Observation.Confirmations)
	}
}
