package payment

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domorder "github.com/Zhima-Mochi/payflow/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/payflow/internal/domain/outbox"
	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/observability"
	"github.com/Zhima-Mochi/payflow/internal/observability/logctx"
)

const fulfillmentWorker = "fulfillment-worker"

// Worker reacts to completed payments: it marks the order paid and sends the
// customer a receipt. It runs off the event bus, so webhook handling stays
// fast and the side effects happen at most once per attempt (the webhook
// idempotency check guarantees a single completion event).
type Worker struct {
	orders     domorder.Repository
	subscriber domoutbox.Subscriber
	notifier   Notifier
	tel        observability.Observability

	log        observability.Logger
	reqCounter observability.Counter
	durHist    observability.Histogram
}

func NewWorker(
	orders domorder.Repository,
	subscriber domoutbox.Subscriber,
	notifier Notifier,
	tel observability.Observability,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		orders:     orders,
		subscriber: subscriber,
		notifier:   notifier,
		tel:        tel,
		log:        tel.Logger().With(observability.F("service", fulfillmentWorker)),
		reqCounter: tel.Metrics().Counter(observability.MUsecaseRequests),
		durHist:    tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.orders == nil {
		return
	}
	w.subscriber.Subscribe(domain.CompletedEvent{}.EventName(), w.handlePaymentCompleted)
}

func (w *Worker) handlePaymentCompleted(ctx context.Context, e domoutbox.Event) error {
	const useCase = "payment.worker.completed"
	evt, ok := e.(domain.CompletedEvent)
	if !ok {
		w.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", "ignored"),
		)
		return nil
	}

	ctx, span := w.tel.Tracer().Start(ctx, spanPrefix+"PaymentCompleted",
		attribute.String("use_case", useCase),
		attribute.String("order.id", evt.OrderID),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	logger := logctx.FromOr(ctx, w.log).With(
		observability.F("use_case", useCase),
		observability.F("order_id", evt.OrderID),
	)
	ctx = logctx.With(ctx, logger)

	defer func() {
		lat := time.Since(start).Seconds()
		w.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		w.durHist.Observe(lat, observability.L("use_case", useCase))

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
		)
		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	ord, err := w.orders.Get(ctx, evt.OrderID)
	if err != nil {
		outcome, status = "error", "ORDER_LOAD_FAILED"
		return fmt.Errorf("fulfillment: load order: %w", err)
	}
	if ord.Status == domorder.StatusPaid {
		// completion event redelivered after a partial failure below
		status = "ALREADY_PAID"
		return nil
	}

	ord.MarkPaid()
	if err := w.orders.Update(ctx, ord); err != nil {
		outcome, status = "error", "ORDER_UPDATE_FAILED"
		return fmt.Errorf("fulfillment: update order: %w", err)
	}

	if w.notifier != nil {
		if err := w.notifier.PaymentReceived(ctx, evt); err != nil {
			// the order is already marked paid; a lost receipt is not worth
			// failing the handler over
			logger.Warn("receipt_notification_failed",
				observability.F("error", err.Error()),
			)
		}
	}

	logger.Info("order_marked_paid",
		observability.F("order_number", evt.OrderNumber),
		observability.F("method", string(evt.Method)),
	)
	return nil
}
