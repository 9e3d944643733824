// Package bitcoin adapts an address-based bitcoin payment backend. Each
// attempt gets a fresh settlement address; paid amount and confirmations come
// from a blockchain balance lookup keyed by that address.
package bitcoin

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

const defaultRequiredConfirmations = 2

type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
	// ConfirmationOverride replaces the default finality threshold when > 0.
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
		client:        gateway.NewClient("bitcoin", cfg.BaseURL, cfg.APIKey, cfg.Timeout, tel),
		secret:        cfg.WebhookSecret,
		confirmations: confirmations,
	}
}

func (a *Adapter) Method() domain.Method        { return domain.MethodBitcoin }
func (a *Adapter) RequiredConfirmations() int64 { return a.confirmations }
func (a *Adapter) SupportsRefund() bool         { return false }

type addressRequest struct {
	Label string `json:"label"`
}

type addressResponse struct {
	Address string `json:"address"`
}

func (a *Adapter) CreatePayment(ctx context.Context, ord *domorder.Order, amount decimal.Decimal, currency string, expiresAt time.Time) (apppayment.Instructions, error) {
	_ = amount
	_ = currency
	var resp addressResponse
	err := a.client.DoJSON(ctx, http.MethodPost, "/api/v1/addresses", addressRequest{Label: ord.Number}, &resp)
	if err != nil {
		return apppayment.Instructions{}, err
	}
	if resp.Address == "" {
		return apppayment.Instructions{}, fmt.Errorf("%w: bitcoin backend returned no address", domain.ErrGatewayRejected)
	}
	return apppayment.Instructions{
		Address:   resp.Address,
		ExpiresAt: expiresAt,
	}, nil
}

type balanceResponse struct {
	Address       string   `json:"address"`
	TotalReceived string   `json:"total_received"`
	Confirmations int64    `json:"confirmations"`
	TxIDs         []string `json:"txids"`
}

func (a *Adapter) FetchStatus(ctx context.Context, rec *domain.Record) (apppayment.RemoteStatus, error) {
	var resp balanceResponse
	if err := a.client.GetJSON(ctx, "/api/v1/addresses/"+rec.SettlementAddress, &resp); err != nil {
		return apppayment.RemoteStatus{}, err
	}

	paid, err := decimal.NewFromString(resp.TotalReceived)
	if err != nil {
		return apppayment.RemoteStatus{}, fmt.Errorf("bitcoin status: invalid amount %q", resp.TotalReceived)
	}

	status := apppayment.RemoteStatus{
		State:         domain.RemotePending,
		Confirmations: resp.Confirmations,
		PaidAmount:    paid,
	}
	if len(resp.TxIDs) > 0 {
		status.TransactionHash = resp.TxIDs[0]
	}
	return status, nil
}

func (a *Adapter) VerifyWebhookSignature(payload []byte, signature string) bool {
	return gateway.VerifySignature(payload, signature, a.secret)
}

type webhookPayload struct {
	EventID       string `json:"event_id"`
	OrderID       string `json:"order_id"`
	Address       string `json:"address"`
	Confirmations int64  `json:"confirmations"`
	Amount        string `json:"amount_received"`
	TxID          string `json:"txid"`
}

func (a *Adapter) ParseWebhookEvent(payload []byte) (apppayment.WebhookEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return apppayment.WebhookEvent{}, fmt.Errorf("bitcoin webhook: decode: %w", err)
	}
	if body.EventID == "" || body.OrderID == "" {
		return apppayment.WebhookEvent{}, fmt.Errorf("bitcoin webhook: missing event id or order id")
	}

	paid, err := decimal.NewFromString(body.Amount)
	if err != nil {
		return apppayment.WebhookEvent{}, fmt.Errorf("bitcoin webhook: invalid amount %q", body.Amount)
	}

	return apppayment.WebhookEvent{
		EventID: body.EventID,
		OrderID: body.OrderID,
		Observation: domain.Observation{
			Confirmations:   body.Confirmations,
			PaidAmount:      paid,
			TransactionHash: body.TxID,
		},
	}, nil
}

func (a *Adapter) Refund(ctx context.Context, rec *domain.Record) error {
	_ = ctx
	_ = rec
	return domain.ErrRefundNotSupported
}
