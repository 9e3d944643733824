package notify

import (
	"context"

	apppayment "github.com/Zhima-Mochi/payflow/internal/application/payment"
	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/observability"
	"github.com/Zhima-Mochi/payflow/internal/observability/logctx"
)

// LogNotifier stands in for the mail collaborator: it records the receipt
// instead of delivering it. Deployments plug a real sender behind the same
// port.
type LogNotifier struct {
	log observability.Logger
}

var _ apppayment.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger observability.Logger) *LogNotifier {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogNotifier{log: logger.With(observability.F("component", "receipt_notifier"))}
}

func (n *LogNotifier) PaymentReceived(ctx context.Context, e domain.CompletedEvent) error {
	logctx.FromOr(ctx, n.log).Info("receipt_sent",
		observability.F("order_id", e.OrderID),
		observability.F("order_number", e.OrderNumber),
		observability.F("method", string(e.Method)),
		observability.F("amount", e.Amount.String()),
		observability.F("currency", e.Currency),
	)
	return nil
}
