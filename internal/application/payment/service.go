package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domexchange "github.com/Zhima-Mochi/payflow/internal/domain/exchange"
	domorder "github.com/Zhima-Mochi/payflow/internal/domain/order"
	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	domoutbox "github.com/Zhima-Mochi/payflow/internal/domain/outbox"
	"github.com/Zhima-Mochi/payflow/internal/observability"
	"github.com/Zhima-Mochi/payflow/internal/observability/logctx"
)

const (
	serviceName = "payment-service"
	spanPrefix  = "UC."

	// casRetries bounds re-application when a concurrent applier wins the
	// conditional update race.
	casRetries = 3
)

var errRetriesExhausted = errors.New("payment: conditional update retries exhausted")

type Config struct {
	// PaymentWindow is how long the customer has to settle an attempt.
	PaymentWindow time.Duration
	// StatusStaleAfter triggers a remote refresh on GetStatus when the
	// record has not been touched for this long.
	StatusStaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.PaymentWindow <= 0 {
		c.PaymentWindow = 60 * time.Minute
	}
	if c.StatusStaleAfter <= 0 {
		c.StatusStaleAfter = 30 * time.Second
	}
	return c
}

// Service is the payment orchestrator: it ties gateway adapters, the rate
// provider, and the payment repository together for the create / status /
// webhook / cancel / refund use cases.
type Service struct {
	cfg      Config
	orders   domorder.Repository
	payments domain.Repository
	rates    RateProvider
	adapters map[domain.Method]GatewayAdapter
	bus      domoutbox.Publisher
	idGen    IDGenerator
	now      func() time.Time

	tel         observability.Observability
	log         observability.Logger
	reqCounter  observability.Counter
	durHist     observability.Histogram
	transitions observability.Counter
}

func NewService(
	cfg Config,
	orders domorder.Repository,
	payments domain.Repository,
	rates RateProvider,
	adapters []GatewayAdapter,
	bus domoutbox.Publisher,
	idGen IDGenerator,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	byMethod := make(map[domain.Method]GatewayAdapter, len(adapters))
	for _, a := range adapters {
		byMethod[a.Method()] = a
	}
	return &Service{
		cfg:         cfg.withDefaults(),
		orders:      orders,
		payments:    payments,
		rates:       rates,
		adapters:    byMethod,
		bus:         bus,
		idGen:       idGen,
		now:         func() time.Time { return time.Now().UTC() },
		tel:         tel,
		log:         tel.Logger().With(observability.F("service", serviceName)),
		reqCounter:  tel.Metrics().Counter(observability.MUsecaseRequests),
		durHist:     tel.Metrics().Histogram(observability.MUsecaseDuration),
		transitions: tel.Metrics().Counter(observability.MPaymentStateTransitions),
	}
}

type CreatePaymentResult struct {
	OrderID               string
	OrderNumber           string
	Address               string
	PayURL                string
	Amount                string
	Currency              string
	ExchangeRate          string
	RequiredConfirmations int64
	PaymentWindowMinutes  int
}

// CreatePayment resolves the adapter and (for crypto methods) a conversion
// rate, registers the payment remotely, and persists the attempt. Idempotent
// at order level: a live or settled prior attempt rejects the call, only a
// dead one (expired, cancelled, failed) is replaced.
func (s *Service) CreatePayment(ctx context.Context, orderID string, method domain.Method) (_ *CreatePaymentResult, err error) {
	const useCase = "payment.create"
	ctx, done := s.instrument(ctx, useCase, spanPrefix+"CreatePayment",
		attribute.String("order.id", orderID),
		attribute.String("payment.method", string(method)),
	)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCase),
		observability.F("order_id", orderID),
		observability.F("method", string(method)),
	)

	adapter, ok := s.adapters[method]
	if !ok {
		return nil, domain.ErrInvalidMethod
	}

	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status == domorder.StatusPaid {
		return nil, domain.ErrOrderAlreadyPaid
	}

	existing, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("payment: load attempt: %w", err)
	}
	replace := false
	if existing != nil {
		if changed := existing.ExpireIfDue(s.now()); changed {
			if updErr := s.payments.Update(ctx, existing); updErr != nil && !errors.Is(updErr, domain.ErrConflict) {
				logger.Warn("lazy_expiry_persist_failed", observability.F("error", updErr.Error()))
			}
		}
		switch existing.Status {
		case domain.StatusExpired, domain.StatusCancelled, domain.StatusFailed:
			replace = true
		default:
			// live or settled attempt; the caller must not open a second one
			return nil, domain.ErrOrderAlreadyPaid
		}
	}

	rec := domain.NewRecord(s.idGen.NewID(), domain.OrderRef{
		ID:       ord.ID,
		Number:   ord.Number,
		Total:    ord.Total,
		Currency: ord.Currency,
	}, method, adapter.RequiredConfirmations(), s.cfg.PaymentWindow)

	if crypto := settlementCurrency(method); crypto != "" {
		quote, rateErr := s.rates.GetRate(ctx, strings.ToUpper(ord.Currency), crypto)
		if rateErr != nil {
			return nil, rateErr
		}
		rec.FixSettlement(domexchange.Convert(ord.Total, quote), crypto, quote.Rate)
	}

	instructions, err := adapter.CreatePayment(ctx, ord, rec.SettlementAmount, rec.SettlementCurrency, rec.ExpirationTime)
	if err != nil {
		return nil, err
	}
	rec.RemotePaymentID = instructions.RemoteID
	rec.SettlementAddress = instructions.Address
	rec.PayURL = instructions.PayURL
	if !instructions.ExpiresAt.IsZero() && instructions.ExpiresAt.Before(rec.ExpirationTime) {
		// the gateway's own window may be tighter than ours
		rec.ExpirationTime = instructions.ExpiresAt
	}

	if replace {
		err = s.payments.Replace(ctx, rec)
	} else {
		err = s.payments.Insert(ctx, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("payment: persist attempt: %w", err)
	}

	logger.Info("payment_created",
		observability.F("payment_id", rec.ID),
		observability.F("settlement_currency", rec.SettlementCurrency),
		observability.F("settlement_amount", rec.SettlementAmount.String()),
	)

	return &CreatePaymentResult{
		OrderID:               ord.ID,
		OrderNumber:           ord.Number,
		Address:               rec.SettlementAddress,
		PayURL:                rec.PayURL,
		Amount:                rec.SettlementAmount.String(),
		Currency:              rec.SettlementCurrency,
		ExchangeRate:          rec.ExchangeRate.String(),
		RequiredConfirmations: rec.RequiredConfirmations,
		PaymentWindowMinutes:  int(time.Until(rec.ExpirationTime).Minutes()),
	}, nil
}

type StatusView struct {
	OrderID               string
	Status                domain.Status
	Confirmations         int64
	PaidAmount            string
	TransactionHash       string
	IsExpired             bool
	RequiredConfirmations int64
}

// GetStatus returns the normalized payment view for an order. Expiration is
// evaluated lazily here; when the cached record has gone stale a remote
// status poll refreshes it best-effort.
func (s *Service) GetStatus(ctx context.Context, orderID string) (_ *StatusView, err error) {
	const useCase = "payment.status"
	ctx, done := s.instrument(ctx, useCase, spanPrefix+"GetStatus",
		attribute.String("order.id", orderID),
	)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(
		observability.F("use_case", useCase),
		observability.F("order_id", orderID),
	)

	rec, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from := rec.Status
	if rec.ExpireIfDue(now) {
		if updErr := s.payments.Update(ctx, rec); updErr != nil {
			logger.Warn("lazy_expiry_persist_failed", observability.F("error", updErr.Error()))
		} else {
			s.publishTransition(ctx, rec, from)
		}
	} else if s.shouldRefresh(rec, now) {
		if refreshed, refErr := s.refreshFromGateway(ctx, rec); refErr != nil {
			// serve the cached record; polling is best-effort
			logger.Warn("status_refresh_failed", observability.F("error", refErr.Error()))
		} else {
			rec = refreshed
		}
	}

	return &StatusView{
		OrderID:               rec.OrderID,
		Status:                rec.Status,
		Confirmations:         rec.Confirmations,
		PaidAmount:            rec.PaidAmount.String(),
		TransactionHash:       rec.TransactionHash,
		IsExpired:             rec.Status == domain.StatusExpired || (!rec.Status.Terminal() && !now.Before(rec.ExpirationTime)),
		RequiredConfirmations: rec.RequiredConfirmations,
	}, nil
}

// Cancel honors a caller-initiated cancellation while the attempt is still
// pending.
func (s *Service) Cancel(ctx context.Context, orderID string) (err error) {
	const useCase = "payment.cancel"
	ctx, done := s.instrument(ctx, useCase, spanPrefix+"CancelPayment",
		attribute.String("order.id", orderID),
	)
	defer func() { done(err) }()

	_, err = s.mutate(ctx, orderID, func(rec *domain.Record) error {
		return rec.Cancel()
	})
	return err
}

// Refund reverses a completed wallet payment on explicit admin action.
func (s *Service) Refund(ctx context.Context, orderID string) (err error) {
	const useCase = "payment.refund"
	ctx, done := s.instrument(ctx, useCase, spanPrefix+"RefundPayment",
		attribute.String("order.id", orderID),
	)
	defer func() { done(err) }()

	rec, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	adapter, ok := s.adapters[rec.Method]
	if !ok {
		return domain.ErrInvalidMethod
	}
	if !adapter.SupportsRefund() {
		return domain.ErrRefundNotSupported
	}
	if rec.Status != domain.StatusCompleted {
		return domain.ErrInvalidStateTransition
	}

	if err = adapter.Refund(ctx, rec); err != nil {
		return err
	}

	_, err = s.mutate(ctx, orderID, func(r *domain.Record) error {
		return r.Refund()
	})
	return err
}

// shouldRefresh gates the remote poll: only live records with a remote
// reference are worth asking the gateway about.
func (s *Service) shouldRefresh(rec *domain.Record, now time.Time) bool {
	if rec.Status.Terminal() {
		return false
	}
	if rec.RemotePaymentID == "" && rec.SettlementAddress == "" {
		return false
	}
	return now.Sub(rec.UpdatedAt) > s.cfg.StatusStaleAfter
}

func (s *Service) refreshFromGateway(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	adapter, ok := s.adapters[rec.Method]
	if !ok {
		return nil, domain.ErrInvalidMethod
	}
	remote, err := adapter.FetchStatus(ctx, rec)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, rec.OrderID, func(r *domain.Record) error {
		return r.ApplyObservation(domain.Observation{
			Confirmations:   remote.Confirmations,
			PaidAmount:      remote.PaidAmount,
			RemoteStatus:    remote.State,
			TransactionHash: remote.TransactionHash,
		})
	})
}

// mutate serializes a record mutation through the repository's conditional
// update: on a version conflict the record is re-read and the mutation
// re-applied, so concurrent webhook and poll appliers cannot interleave into
// a corrupted state.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(rec *domain.Record) error) (*domain.Record, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		rec, err := s.payments.FindByOrderID(ctx, orderID)
		if err != nil {
			return nil, err
		}

		from := rec.Status
		if err := fn(rec); err != nil {
			return nil, err
		}

		err = s.payments.Update(ctx, rec)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("payment: persist update: %w", err)
		}

		if rec.Status != from {
			s.publishTransition(ctx, rec, from)
		}
		return rec, nil
	}
	return nil, errRetriesExhausted
}

// publishTransition emits the state-change event and, on entry into
// completed, the completion event the fulfillment worker reacts to.
func (s *Service) publishTransition(ctx context.Context, rec *domain.Record, from domain.Status) {
	s.transitions.Add(1,
		observability.L("method", string(rec.Method)),
		observability.L("to", string(rec.Status)),
	)
	logger := logctx.FromOr(ctx, s.log)
	logger.Info("payment_state_transition",
		observability.F("order_id", rec.OrderID),
		observability.F("payment_id", rec.ID),
		observability.F("from", string(from)),
		observability.F("to", string(rec.Status)),
	)
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.NewStateChangedEvent(rec, from)); err != nil {
		logger.Warn("event_publish_failed",
			observability.F("event", "payment.state_changed"),
			observability.F("error", err.Error()),
		)
	}
	if rec.Status == domain.StatusCompleted {
		if err := s.bus.Publish(ctx, domain.NewCompletedEvent(rec)); err != nil {
			logger.Error("event_publish_failed",
				observability.F("event", "payment.completed"),
				observability.F("order_id", rec.OrderID),
				observability.F("error", err.Error()),
			)
		}
	}
}

// instrument opens the use-case span and returns a closure recording
// outcome, latency, and span status.
func (s *Service) instrument(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tel.Tracer().Start(ctx, spanName,
		append(attrs, attribute.String("use_case", useCase))...,
	)
	start := s.now()
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "OK")
		}
		span.End()
		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHist.Observe(time.Since(start).Seconds(),
			observability.L("use_case", useCase),
		)
	}
}

func settlementCurrency(method domain.Method) string {
	switch method {
	case domain.MethodBitcoin:
		return "BTC"
	case domain.MethodMonero:
		return "XMR"
	default:
		return ""
	}
}
