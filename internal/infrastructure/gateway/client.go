// Package gateway holds the pieces shared by the concrete payment gateway
// adapters: a small JSON HTTP client that classifies transport failures,
// and webhook signature primitives.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	domain "github.com/Zhima-Mochi/payflow/internal/domain/payment"
	"github.com/Zhima-Mochi/payflow/internal/observability"
)

// Client wraps an external gateway's HTTP API. Network errors and 5xx map to
// ErrGatewayUnavailable (transient), 4xx to ErrGatewayRejected (terminal).
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxElapsed time.Duration

	reqCounter observability.Counter
	durHist    observability.Histogram
}

func NewClient(name, baseURL, apiKey string, timeout time.Duration, tel observability.Observability) *Client {
	if tel == nil {
		tel = observability.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: 20 * time.Second,
		reqCounter: tel.Metrics().Counter(observability.MGatewayRequests),
		durHist:    tel.Metrics().Histogram(observability.MGatewayRequestDuration),
	}
}

// DoJSON performs one request and decodes the JSON response into out.
// No retries; use GetJSON for idempotent reads.
func (c *Client) DoJSON(ctx context.Context, method, path string, body any, out any) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, body, out)
	c.record(method+" "+path, start, err)
	return err
}

// GetJSON performs an idempotent read with exponential backoff on transient
// failures.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	start := time.Now()
	operation := func() error {
		err := c.doOnce(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		// only transient classes are worth retrying
		if isUnavailable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	c.record("GET "+path, start, err)
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s gateway: encode request: %w", c.name, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s gateway: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned %d", domain.ErrGatewayUnavailable, c.name, resp.StatusCode)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", domain.ErrGatewayRejected, c.name, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s gateway: decode response: %w", c.name, err)
	}
	return nil
}

func (c *Client) record(op string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.reqCounter.Add(1,
		observability.L("gateway", c.name),
		observability.L("op", op),
		observability.L("outcome", outcome),
	)
	c.durHist.Observe(time.Since(start).Seconds(),
		observability.L("gateway", c.name),
		observability.L("op", op),
	)
}

func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrGatewayUnavailable)
}

// Sign computes the hex-encoded HMAC-SHA256 of the payload under the shared
// webhook secret. Providers send this in their signature header.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex-encoded HMAC-SHA256 signature in constant
// time. Missing or malformed signatures are simply invalid.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
