package exchange

import (
	"context"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/exchange"
	"github.com/Zhima-Mochi/payflow/internal/observability"
	"github.com/Zhima-Mochi/payflow/internal/observability/logctx"
)

const providerComponent = "exchange_provider"

// CachedProvider decorates a Source with TTL caching. Rates are served from
// cache while fresh; on source failure a cached rate is still served as long
// as it is within the staleness window, so a flaky quote provider does not
// block checkout.
type CachedProvider struct {
	source    domain.Source
	cache     domain.Cache
	ttl       time.Duration
	staleness time.Duration
	now       func() time.Time

	log     observability.Logger
	lookups observability.Counter
}

func NewCachedProvider(source domain.Source, cache domain.Cache, ttl, staleness time.Duration, tel observability.Observability) *CachedProvider {
	if tel == nil {
		tel = observability.Nop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if staleness < ttl {
		staleness = 30 * time.Minute
	}
	return &CachedProvider{
		source:    source,
		cache:     cache,
		ttl:       ttl,
		staleness: staleness,
		now:       func() time.Time { return time.Now().UTC() },
		log:       tel.Logger().With(observability.F("component", providerComponent)),
		lookups:   tel.Metrics().Counter(observability.MExchangeRateLookups),
	}
}

func (p *CachedProvider) GetRate(ctx context.Context, base, counter string) (domain.Quote, error) {
	logger := logctx.FromOr(ctx, p.log)
	now := p.now()

	cached, found, err := p.cache.Get(ctx, base, counter)
	if err != nil {
		logger.Warn("rate_cache_read_failed", observability.F("error", err.Error()))
		found = false
	}
	if found && cached.Valid(now) {
		p.lookups.Add(1, observability.L("outcome", "cache_hit"))
		return cached, nil
	}

	fresh, fetchErr := p.source.Fetch(ctx, base, counter)
	if fetchErr == nil {
		fresh.ValidUntil = now.Add(p.ttl)
		if err := p.cache.Set(ctx, fresh); err != nil {
			logger.Warn("rate_cache_write_failed", observability.F("error", err.Error()))
		}
		p.lookups.Add(1, observability.L("outcome", "fetched"))
		return fresh, nil
	}

	// Source down: fall back to the last known good rate when it is not too old.
	if found && now.Sub(cached.FetchedAt) <= p.staleness {
		logger.Warn("rate_served_stale",
			observability.F("base", base),
			observability.F("counter", counter),
			observability.F("age_seconds", now.Sub(cached.FetchedAt).Seconds()),
		)
		p.lookups.Add(1, observability.L("outcome", "stale_hit"))
		return cached, nil
	}

	p.lookups.Add(1, observability.L("outcome", "unavailable"))
	return domain.Quote{}, fmt.Errorf("%w: %s/%s: %v", domain.ErrRateUnavailable, base, counter, fetchErr)
}

// WithClock overrides time lookup. Intended for tests.
func (p *CachedProvider) WithClock(now func() time.Time) *CachedProvider {
	p.now = now
	return p
}
