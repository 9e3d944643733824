package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/exchange"
	"github.com/Zhima-Mochi/payflow/internal/observability"
	"github.com/Zhima-Mochi/payflow/internal/observability/logctx"
)

const sourceComponent = "exchange_source"

// HTTPSource fetches quotes from a ticker-style JSON endpoint:
//
//	GET {baseURL}/api/rate?base=GBP&quote=BTC
//	-> {"base":"GBP","quote":"BTC","rate":"0.000025"}
//
// Rate queries are idempotent reads, so transient failures are retried with
// exponential backoff under a bounded elapsed time.
type HTTPSource struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	maxElapsed time.Duration

	log        observability.Logger
	reqCounter observability.Counter
	durHist    observability.Histogram
}

func NewHTTPSource(baseURL, apiKey string, timeout time.Duration, tel observability.Observability) *HTTPSource {
	if tel == nil {
		tel = observability.Nop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		baseURL:    baseURL,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: timeout},
		maxElapsed: 15 * time.Second,
		log:        tel.Logger().With(observability.F("component", sourceComponent)),
		reqCounter: tel.Metrics().Counter(observability.MGatewayRequests),
		durHist:    tel.Metrics().Histogram(observability.MGatewayRequestDuration),
	}
}

type rateResponse struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
	Rate  string `json:"rate"`
}

func (s *HTTPSource) Fetch(ctx context.Context, base, counter string) (domain.Quote, error) {
	logger := logctx.FromOr(ctx, s.log)
	start := time.Now()

	var quote domain.Quote
	operation := func() error {
		q, err := s.fetchOnce(ctx, base, counter)
		if err != nil {
			return err
		}
		quote = q
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = s.maxElapsed
	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))

	outcome := "success"
	if err != nil {
		outcome = "error"
		logger.Warn("rate_fetch_failed",
			observability.F("base", base),
			observability.F("counter", counter),
			observability.F("error", err.Error()),
		)
	}
	s.reqCounter.Add(1,
		observability.L("gateway", "exchange"),
		observability.L("op", "fetch_rate"),
		observability.L("outcome", outcome),
	)
	s.durHist.Observe(time.Since(start).Seconds(),
		observability.L("gateway", "exchange"),
		observability.L("op", "fetch_rate"),
	)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("exchange source: %w", err)
	}
	return quote, nil
}

func (s *HTTPSource) fetchOnce(ctx context.Context, base, counter string) (domain.Quote, error) {
	u := fmt.Sprintf("%s/api/rate?base=%s&quote=%s",
		s.baseURL, url.QueryEscape(base), url.QueryEscape(counter))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Quote{}, backoff.Permanent(err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Quote{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return domain.Quote{}, fmt.Errorf("quote provider returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return domain.Quote{}, backoff.Permanent(fmt.Errorf("quote provider rejected request: %d", resp.StatusCode))
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, backoff.Permanent(fmt.Errorf("decode quote: %w", err))
	}

	rate, err := decimal.NewFromString(body.Rate)
	if err != nil || !rate.IsPositive() {
		return domain.Quote{}, backoff.Permanent(fmt.Errorf("quote provider returned invalid rate %q", body.Rate))
	}

	return domain.Quote{
		Base:      base,
		Counter:   counter,
		Rate:      rate,
		FetchedAt: time.Now().UTC(),
	}, nil
}
