package payment

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/observability"
	"github.com/Zhima-Mochi/payflow/internal/observability/logctx"
)

// HandleWebhook validates, deduplicates, and applies one asynchronous
// settlement event:
//
//  1. signature check over the raw payload (reject without touching state)
//  2. idempotency check against the last applied event id (safe replay)
//  3. state machine application under the conditional-update discipline
//  4. completion side effects via the event bus, at most once per attempt
func (s *Service) HandleWebhook(ctx context.Context, method domain.Method, payload []byte, signature string) (err error) {
	const useCase = "payment.webhook"
	ctx, done := s.instrument(ctx, useCase, spanPrefix+"HandleWebhook",
		attribute.String("payment.method", string(method)),
	)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCase),
		observability.F("method", string(method)),
	)
	events := s.tel.Metrics().Counter(observability.MWebhookEvents)
	outcome := func(o string) {
		events.Add(1, observability.L("method", string(method)), observability.L("outcome", o))
	}

	adapter, ok := s.adapters[method]
	if !ok {
		outcome("invalid_method")
		return domain.ErrInvalidMethod
	}

	if !adapter.VerifyWebhookSignature(payload, signature) {
		// security-relevant: logged distinctly, nothing mutated
		logger.Warn("webhook_signature_rejected")
		outcome("invalid_signature")
		return domain.ErrInvalidSignature
	}

	event, err := adapter.ParseWebhookEvent(payload)
	if err != nil {
		outcome("malformed")
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	logger = logger.With(
		observability.F("order_id", event.OrderID),
		observability.F("event_id", event.EventID),
	)

	rec, err := s.payments.FindByOrderID(ctx, event.OrderID)
	if err != nil {
		outcome("unknown_order")
		return err
	}

	if rec.LastWebhookEventID == event.EventID {
		// at-least-once delivery: replays are accepted and ignored
		logger.Info("webhook_replay_ignored")
		outcome("replay")
		return nil
	}

	if rec.Status.Terminal() {
		// the attempt is settled; keep the event for audit, mutate nothing
		logger.Info("webhook_after_terminal",
			observability.F("status", string(rec.Status)),
			observability.F("confirmations", event.Observation.Confirmations),
			observability.F("paid_amount", event.Observation.PaidAmount.String()),
		)
		outcome("audit_only")
		return nil
	}

	updated, err := s.mutate(ctx, event.OrderID, func(r *domain.Record) error {
		if r.LastWebhookEventID == event.EventID || r.Status.Terminal() {
			// a concurrent applier got here first
			return nil
		}
		if applyErr := r.ApplyObservation(event.Observation); applyErr != nil {
			return applyErr
		}
		r.LastWebhookEventID = event.EventID
		return nil
	})
	if err != nil {
		if errors.Is(err, errRetriesExhausted) {
			outcome("conflict")
		} else {
			outcome("error")
		}
		// a non-2xx response makes the provider redeliver; the idempotency
		// check keeps that safe
		return err
	}

	logger.Info("webhook_applied",
		observability.F("status", string(updated.Status)),
		observability.F("confirmations", updated.Confirmations),
		observability.F("paid_amount", updated.PaidAmount.String()),
	)
	outcome("applied")
	return nil
}
