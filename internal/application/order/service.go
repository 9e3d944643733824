// Package order exposes the order use cases the payment flow depends on.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/order"
	"github.com/Zhima-Mochi/payflow/internal/observability"
	"github.com/Zhima-Mochi/payflow/internal/observability/logctx"
)

const serviceName = "order_service"

type IDGenerator interface {
	NewID() string
}

type Service struct {
	orders domain.Repository
	idGen  IDGenerator

	tel        observability.Observability
	log        observability.Logger
	reqCounter observability.Counter
	durHist    observability.Histogram
}

func NewService(orders domain.Repository, idGen IDGenerator, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		orders:     orders,
		idGen:      idGen,
		tel:        tel,
		log:        tel.Logger().With(observability.F("service", serviceName)),
		reqCounter: tel.Metrics().Counter(observability.MUsecaseRequests),
		durHist:    tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

type CreateOrderInput struct {
	Number     string
	CustomerID string
	Total      decimal.Decimal
	Currency   string
}

type CreateOrderResult struct {
	OrderID string
	Status  domain.Status
}

// CreateOrder registers an unpaid order awaiting a payment attempt.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (_ *CreateOrderResult, err error) {
	const useCase = "order.create"
	start := time.Now()
	ctx, span := s.tel.Tracer().Start(ctx, "order.Service/CreateOrder",
		attribute.String("order.number", in.Number),
	)
	defer span.End()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.reqCounter.Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		s.durHist.Observe(time.Since(start).Seconds(),
			observability.L("use_case", useCase),
		)
	}()

	ord, err := domain.New(s.idGen.NewID(), in.Number, in.CustomerID, in.Total, in.Currency)
	if err != nil {
		return nil, err
	}
	if err = s.orders.Insert(ctx, ord); err != nil {
		return nil, err
	}

	logctx.FromOr(ctx, s.log).Info("use_case_done",
		observability.F("use_case", useCase),
		observability.F("order_id", ord.ID),
		observability.F("total", ord.Total.String()),
		observability.F("currency", ord.Currency),
	)
	return &CreateOrderResult{OrderID: ord.ID, Status: ord.Status}, nil
}

// Get returns the order, mostly for status surfaces.
func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.Get(ctx, id)
}
