package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/exchange"
)

type fakeSource struct {
	calls int
	quote domain.Quote
	err   error
}

func (s *fakeSource) Fetch(ctx context.Context, base, counter string) (domain.Quote, error) {
	s.calls++
	if s.err != nil {
		return domain.Quote{}, s.err
	}
	q := s.quote
	q.Base, q.Counter = base, counter
	return q, nil
}

func testQuote(rate string, fetchedAt time.Time) domain.Quote {
	return domain.Quote{
		Rate:      decimal.RequireFromString(rate),
		FetchedAt: fetchedAt,
	}
}

func TestGetRateServesFromCacheWithinTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{quote: testQuote("0.000025", now)}
	p := NewCachedProvider(src, NewMemoryCache(), 5*time.Minute, 30*time.Minute, nil).
		WithClock(func() time.Time { return now })

	first, err := p.GetRate(context.Background(), "GBP", "BTC")
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("source calls = %d, want 1", src.calls)
	}

	now = now.Add(4 * time.Minute)
	second, err := p.GetRate(context.Background(), "GBP", "BTC")
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1 (cache hit expected)", src.calls)
	}
	if !second.Rate.Equal(first.Rate) {
		t.Errorf("cached rate = %s, want %s", second.Rate, first.Rate)
	}
}

func TestGetRateRefetchesAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{quote: testQuote("0.000025", now)}
	p := NewCachedProvider(src, NewMemoryCache(), 5*time.Minute, 30*time.Minute, nil).
		WithClock(func() time.Time { return now })

	if _, err := p.GetRate(context.Background(), "GBP", "BTC"); err != nil {
		t.Fatalf("GetRate: %v", err)
	}

	now = now.Add(6 * time.Minute)
	src.quote = testQuote("0.000026", now)
	q, err := p.GetRate(context.Background(), "GBP", "BTC")
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2", src.calls)
	}
	if !q.Rate.Equal(decimal.RequireFromString("0.000026")) {
		t.Errorf("rate = %s, want refetched 0.000026", q.Rate)
	}
}

func TestGetRateServesStaleOnSourceFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{quote: testQuote("0.000025", now)}
	p := NewCachedProvider(src, NewMemoryCache(), 5*time.Minute, 30*time.Minute, nil).
		WithClock(func() time.Time { return now })

	if _, err := p.GetRate(context.Background(), "GBP", "BTC"); err != nil {
		t.Fatalf("GetRate: %v", err)
	}

	src.err = errors.New("connection refused")
	now = now.Add(10 * time.Minute) // past TTL, within staleness window

	q, err := p.GetRate(context.Background(), "GBP", "BTC")
	if err != nil {
		t.Fatalf("GetRate during outage: %v", err)
	}
	if !q.Rate.Equal(decimal.RequireFromString("0.000025")) {
		t.Errorf("stale rate = %s, want 0.000025", q.Rate)
	}
}

func TestGetRateUnavailableWhenStaleTooOld(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{quote: testQuote("0.000025", now)}
	p := NewCachedProvider(src, NewMemoryCache(), 5*time.Minute, 30*time.Minute, nil).
		WithClock(func() time.Time { return now })

	if _, err := p.GetRate(context.Background(), "GBP", "BTC"); err != nil {
		t.Fatalf("GetRate: %v", err)
	}

	src.err = errors.New("connection refused")
	now = now.Add(31 * time.Minute) // beyond the staleness window

	_, err := p.GetRate(context.Background(), "GBP", "BTC")
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("err = %v, want ErrRateUnavailable", err)
	}
}

func TestGetRateUnavailableWithEmptyCache(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	p := NewCachedProvider(src, NewMemoryCache(), 5*time.Minute, 30*time.Minute, nil)

	_, err := p.GetRate(context.Background(), "GBP", "BTC")
	if !errors.Is(err, domain.ErrRateUnavailable) {
		t.Fatalf("err = %v, want ErrRateUnavailable", err)
	}
}
