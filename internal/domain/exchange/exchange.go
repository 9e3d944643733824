package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrRateUnavailable means neither the source nor an acceptably fresh
	// cached quote could serve the request.
	ErrRateUnavailable = errors.New("exchange: rate unavailable")
)

// Quote is one fiat->crypto conversion rate with its validity window.
type Quote struct {
	Base       string
	Counter    string
	Rate       decimal.Decimal
	FetchedAt  time.Time
	ValidUntil time.Time
}

func (q Quote) Valid(now time.Time) bool {
	return !q.Rate.IsZero() && now.Before(q.ValidUntil)
}

// Source fetches a fresh quote from an external provider.
type Source interface {
	Fetch(ctx context.Context, base, counter string) (Quote, error)
}

// Provider serves quotes, typically a caching decorator over a Source.
type Provider interface {
	GetRate(ctx context.Context, base, counter string) (Quote, error)
}

// Cache stores quotes keyed by currency pair.
type Cache interface {
	Get(ctx context.Context, base, counter string) (Quote, bool, error)
	Set(ctx context.Context, q Quote) error
}
