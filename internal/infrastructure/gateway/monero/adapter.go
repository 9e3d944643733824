// Package monero adapts an invoice-based monero payment backend. Attempts
// are identified by an opaque invoice id rather than a raw address balance
// lookup, and finality requires ten confirmations.
package monero

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

const defaultRequiredConfirmations = 10

type Config struct {
	BaseURL              string
	APIKey               string
	WebhookSecret        string
	Timeout              time.Duration
	ConfirmationOverride int64
}

type Adapter struct {
	client        *gateway.Client
	secret        string
	confirmations int64
}

func New(cfg Config, tel observability.Observability) *Adapter {
	confirmations := int64(defaultRequiredConfirmations)
	if cfg.ConfirmationOverride > 0 {
		confirmations = cfg.ConfirmationOverride
	}
	return &Adapter{
		client:        gateway.NewClient("monero", cfg.BaseURL, cfg.APIKey, cfg.Timeout, tel),
		secret:        cfg.WebhookSecret,
		confirmations: confirmations,
	}
}

func (a *Adapter) Method() domain.Method        { return domain.MethodMonero }
func (a *Adapter) RequiredConfirmations() int64 { return a.confirmations }
func (a *Adapter) SupportsRefund() bool         { return false }

type invoiceRequest struct {
	OrderID   string `json:"order_id"`
	Amount    string `json:"amount"`
	ExpiresAt string `json:"expires_at"`
}

type invoiceResponse struct {
	InvoiceID         string `json:"invoice_id"`
	IntegratedAddress string `json:"integrated_address"`
}

func (a *Adapter) CreatePayment(ctx context.Context, ord *domorder.Order, amount decimal.Decimal, currency string, expiresAt time.Time) (apppayment.Instructions, error) {
	_ = currency
	var resp invoiceResponse
	err := a.client.DoJSON(ctx, http.MethodPost, "/api/invoices", invoiceRequest{
		OrderID:   ord.ID,
		Amount:    amount.String(),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, &resp)
	if err != nil {
		return apppayment.Instructions{}, err
	}
	if resp.InvoiceID == "" || resp.IntegratedAddress == "" {
		return apppayment.Instructions{}, fmt.Errorf("%w: monero backend returned incomplete invoice", domain.ErrGatewayRejected)
	}
	return apppayment.Instructions{
		RemoteID:  resp.InvoiceID,
		Address:   resp.IntegratedAddress,
		ExpiresAt: expiresAt,
	}, nil
}

type invoiceStatusResponse struct {
	InvoiceID     string `json:"invoice_id"`
	Status        string `json:"status"` // open | confirming | paid | expired
	Confirmations int64  `json:"confirmations"`
	AmountPaid    string `json:"amount_paid"`
	TxHash        string `json:"tx_hash"`
}

func (a *Adapter) FetchStatus(ctx context.Context, rec *domain.Record) (apppayment.RemoteStatus, error) {
	var resp invoiceStatusResponse
	if err := a.client.GetJSON(ctx, "/api/invoices/"+rec.RemotePaymentID, &resp); err != nil {
		return apppayment.RemoteStatus{}, err
	}

	paid, err := decimal.NewFromString(resp.AmountPaid)
	if err != nil {
		return apppayment.RemoteStatus{}, fmt.Errorf("monero status: invalid amount %q", resp.AmountPaid)
	}

	return apppayment.RemoteStatus{
		State:           domain.RemotePending,
		Confirmations:   resp.Confirmations,
		PaidAmount:      paid,
		TransactionHash: resp.TxHash,
	}, nil
}

func (a *Adapter) VerifyWebhookSignature(payload []byte, signature string) bool {
	return gateway.VerifySignature(payload, signature, a.secret)
}

type webhookPayload struct {
	EventID       string `json:"event_id"`
	InvoiceID     string `json:"invoice_id"`
	OrderID       string `json:"order_id"`
	Confirmations int64  `json:"confirmations"`
	AmountPaid    string `json:"amount_paid"`
	TxHash        string `json:"tx_hash"`
}

func (a *Adapter) ParseWebhookEvent(payload []byte) (apppayment.WebhookEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return apppayment.WebhookEvent{}, fmt.Errorf("monero webhook: decode: %w", err)
	}
	if body.EventID == "" || body.OrderID == "" {
		return apppayment.WebhookEvent{}, fmt.Errorf("monero webhook: missing event id or order id")
	}

	paid, err := decimal.NewFromString(body.AmountPaid)
	if err != nil {
		return apppayment.WebhookEvent{}, fmt.Errorf("monero webhook: invalid amount %q", body.AmountPaid)
	}

	return apppayment.WebhookEvent{
		EventID:  body.EventID,
		OrderID:  body.OrderID,
		RemoteID: body.InvoiceID,
		Observation: domain.Observation{
			Confirmations:   body.Confirmations,
			PaidAmount:      paid,
			TransactionHash: body.TxHash,
		},
	}, nil
}

func (a *Adapter) Refund(ctx context.Context, rec *domain.Record) error {
	_ = ctx
	_ = rec
	return domain.ErrRefundNotSupported
}
