package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domexchange "github.com/Zhima-Mochi/payflow/internal/domain/exchange"
	domorder "github.com/Zhima-Mochi/payflow/internal/domain/order"
	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
)

type IDGenerator interface {
	NewID() string
}

// RateProvider resolves fiat->crypto quotes. Outbound port backed by the
// cached exchange provider.
type RateProvider interface {
	domexchange.Provider
}

// Instructions is what the customer needs to pay: an address or a redirect
// URL, depending on the method.
type Instructions struct {
	RemoteID  string
	Address   string
	PayURL    string
	ExpiresAt time.Time
}

// RemoteStatus is the normalized result of polling a gateway.
type RemoteStatus struct {
	State           domain.RemoteState
	Confirmations   int64
	PaidAmount      decimal.Decimal
	TransactionHash string
}

// WebhookEvent is a parsed, method-native webhook payload.
type WebhookEvent struct {
	EventID     string
	OrderID     string
	RemoteID    string
	Observation domain.Observation
}

// GatewayAdapter wraps one external payment API behind a uniform contract.
// One implementation per settlement method; the set is closed.
type GatewayAdapter interface {
	Method() domain.Method
	RequiredConfirmations() int64
	SupportsRefund() bool

	// CreatePayment registers the payment with the remote gateway. Never
	// retried internally: a duplicate remote payment is worse than surfacing
	// the failure, and the whole create flow is idempotent at order level.
	CreatePayment(ctx context.Context, ord *domorder.Order, amount decimal.Decimal, currency string, expiresAt time.Time) (Instructions, error)

	// FetchStatus reads the remote settlement state. Idempotent; retried
	// with backoff on transient failures.
	FetchStatus(ctx context.Context, rec *domain.Record) (RemoteStatus, error)

	// VerifyWebhookSignature checks the keyed MAC over the raw payload in
	// constant time. Missing or malformed signatures are false, never an error.
	VerifyWebhookSignature(payload []byte, signature string) bool

	ParseWebhookEvent(payload []byte) (WebhookEvent, error)

	// Refund reverses a captured payment. Only wallet-style gateways support
	// it; others return domain.ErrRefundNotSupported.
	Refund(ctx context.Context, rec *domain.Record) error
}

// Notifier delivers customer-facing notifications once settlement completes.
type Notifier interface {
	PaymentReceived(ctx context.Context, e domain.CompletedEvent) error
}
