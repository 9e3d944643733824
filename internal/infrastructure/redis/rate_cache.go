package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/exchange"
)

// RateCache shares exchange quotes across service replicas. Entries live for
// the staleness window so a replica can still serve last-known-good rates
// after the quote provider goes down.
type RateCache struct {
	client *redis.Client
	maxAge time.Duration
}

func NewRateCache(client *redis.Client, maxAge time.Duration) *RateCache {
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &RateCache{client: client, maxAge: maxAge}
}

type cachedQuote struct {
	Base       string    `json:"base"`
	Counter    string    `json:"counter"`
	Rate       string    `json:"rate"`
	FetchedAt  time.Time `json:"fetched_at"`
	ValidUntil time.Time `json:"valid_until"`
}

func rateKey(base, counter string) string {
	return fmt.Sprintf("payflow:rate:%s:%s", base, counter)
}

func (c *RateCache) Get(ctx context.Context, base, counter string) (domain.Quote, bool, error) {
	raw, err := c.client.Get(ctx, rateKey(base, counter)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Quote{}, false, nil
	}
	if err != nil {
		return domain.Quote{}, false, fmt.Errorf("redis rate cache: get: %w", err)
	}

	var stored cachedQuote
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.Quote{}, false, fmt.Errorf("redis rate cache: decode: %w", err)
	}
	rate, err := decimal.NewFromString(stored.Rate)
	if err != nil {
		return domain.Quote{}, false, fmt.Errorf("redis rate cache: decode rate: %w", err)
	}

	return domain.Quote{
		Base:       stored.Base,
		Counter:    stored.Counter,
		Rate:       rate,
		FetchedAt:  stored.FetchedAt,
		ValidUntil: stored.ValidUntil,
	}, true, nil
}

func (c *RateCache) Set(ctx context.Context, q domain.Quote) error {
	raw, err := json.Marshal(cachedQuote{
		Base:       q.Base,
		Counter:    q.Counter,
		Rate:       q.Rate.String(),
		FetchedAt:  q.FetchedAt,
		ValidUntil: q.ValidUntil,
	})
	if err != nil {
		return fmt.Errorf("redis rate cache: encode: %w", err)
	}
	if err := c.client.Set(ctx, rateKey(q.Base, q.Counter), raw, c.maxAge).Err(); err != nil {
		return fmt.Errorf("redis rate cache: set: %w", err)
	}
	return nil
}
