// Package wallet adapts a PayPal-style digital wallet gateway. Settlement is
// synchronous at capture time, so the confirmation threshold degenerates to a
// single step: zero before capture, the threshold once captured.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	apppayment "github.com/Zhima-Mochi/payflow/internal/application/payment"
	domorder "github.com/Zhima-Mochi/payflow/internal/domain/order"
	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/payflow/internal/observability"
)

const requiredConfirmations = 1

type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}

type Adapter struct {
	client *gateway.Client
	secret string
}

func New(cfg Config, tel observability.Observability) *Adapter {
	return &Adapter{
		client: gateway.NewClient("wallet", cfg.BaseURL, cfg.APIKey, cfg.Timeout, tel),
		secret: cfg.WebhookSecret,
	}
}

func (a *Adapter) Method() domain.Method          { return domain.MethodWallet }
func (a *Adapter) RequiredConfirmations() int64   { return requiredConfirmations }
func (a *Adapter) SupportsRefund() bool           { return true }

type createRequest struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	ExpiresAt   string `json:"expires_at"`
}

type createResponse struct {
	PaymentID  string `json:"payment_id"`
	ApproveURL string `json:"approve_url"`
}

func (a *Adapter) CreatePayment(ctx context.Context, ord *domorder.Order, amount decimal.Decimal, currency string, expiresAt time.Time) (apppayment.Instructions, error) {
	var resp createResponse
	err := a.client.DoJSON(ctx, http.MethodPost, "/v1/payments", createRequest{
		OrderID:     ord.ID,
		OrderNumber: ord.Number,
		Amount:      amount.StringFixed(2),
		Currency:    currency,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	}, &resp)
	if err != nil {
		return apppayment.Instructions{}, err
	}
	if resp.PaymentID == "" || resp.ApproveURL == "" {
		return apppayment.Instructions{}, fmt.Errorf("%w: wallet create returned incomplete payment", domain.ErrGatewayRejected)
	}
	return apppayment.Instructions{
		RemoteID:  resp.PaymentID,
		PayURL:    resp.ApproveURL,
		ExpiresAt: expiresAt,
	}, nil
}

type statusResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"` // created | approved | captured | failed
	Amount    string `json:"amount"`
	CaptureID string `json:"capture_id"`
}

func (a *Adapter) FetchStatus(ctx context.Context, rec *domain.Record) (apppayment.RemoteStatus, error) {
	var resp statusResponse
	if err := a.client.GetJSON(ctx, "/v1/payments/"+rec.RemotePaymentID, &resp); err != nil {
		return apppayment.RemoteStatus{}, err
	}
	return a.normalize(resp.Status, resp.Amount, resp.CaptureID), nil
}

func (a *Adapter) normalize(status, amount, captureID string) apppayment.RemoteStatus {
	paid, _ := decimal.NewFromString(amount)
	switch status {
	case "captured":
		return apppayment.RemoteStatus{
			State:           domain.RemoteCompleted,
			Confirmations:   requiredConfirmations,
			PaidAmount:      paid,
			TransactionHash: captureID,
		}
	case "approved":
		return apppayment.RemoteStatus{State: domain.RemoteApproved}
	case "failed", "denied", "voided":
		return apppayment.RemoteStatus{State: domain.RemoteFailed}
	default:
		return apppayment.RemoteStatus{State: domain.RemotePending}
	}
}

func (a *Adapter) VerifyWebhookSignature(payload []byte, signature string) bool {
	return gateway.VerifySignature(payload, signature, a.secret)
}

type webhookPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"` // payment.approved | payment.captured | payment.failed
	Resource  struct {
		PaymentID string `json:"payment_id"`
		OrderID   string `json:"order_id"`
		Status    string `json:"status"`
		Amount    string `json:"amount"`
		CaptureID string `json:"capture_id"`
	} `json:"resource"`
}

func (a *Adapter) ParseWebhookEvent(payload []byte) (apppayment.WebhookEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return apppayment.WebhookEvent{}, fmt.Errorf("wallet webhook: decode: %w", err)
	}
	if body.ID == "" || body.Resource.OrderID == "" {
		return apppayment.WebhookEvent{}, fmt.Errorf("wallet webhook: missing event id or order id")
	}

	remote := a.normalize(body.Resource.Status, body.Resource.Amount, body.Resource.CaptureID)
	return apppayment.WebhookEvent{
		EventID:  body.ID,
		OrderID:  body.Resource.OrderID,
		RemoteID: body.Resource.PaymentID,
		Observation: domain.Observation{
			Confirmations:   remote.Confirmations,
			PaidAmount:      remote.PaidAmount,
			RemoteStatus:    remote.State,
			TransactionHash: remote.TransactionHash,
		},
	}, nil
}

func (a *Adapter) Refund(ctx context.Context, rec *domain.Record) error {
	return a.client.DoJSON(ctx, http.MethodPost, "/v1/payments/"+rec.RemotePaymentID+"/refund", struct{}{}, nil)
}
