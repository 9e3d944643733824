package exchange

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func quote(base, counter, rate string) Quote {
	now := time.Now().UTC()
	return Quote{
		Base:       base,
		Counter:    counter,
		Rate:       decimal.RequireFromString(rate),
		FetchedAt:  now,
		ValidUntil: now.Add(5 * time.Minute),
	}
}

func TestConvertExactAtNativePrecision(t *testing.T) {
	// 199.99 GBP at 0.000025 BTC/GBP is exactly representable at 8 decimals.
	got := Convert(decimal.RequireFromString("199.99"), quote("GBP", "BTC", "0.000025"))
	want := decimal.RequireFromString("0.00499975")
	if !got.Equal(want) {
		t.Fatalf("Convert = %s, want %s", got, want)
	}
}

func TestConvertRoundsUp(t *testing.T) {
	// 0.10 * 0.000033333333333 = 0.0000033333333333; at 8 decimals the
	// truncated value would under-quote, so the ninth digit rounds up.
	got := Convert(decimal.RequireFromString("0.10"), quote("USD", "BTC", "0.000033333333333"))
	want := decimal.RequireFromString("0.00000334")
	if !got.Equal(want) {
		t.Fatalf("Convert = %s, want %s", got, want)
	}
}

func TestConvertMoneroPrecision(t *testing.T) {
	got := Convert(decimal.RequireFromString("50"), quote("EUR", "XMR", "0.00662177"))
	if got.Exponent() < -12 {
		t.Fatalf("Convert produced more than 12 decimals: %s", got)
	}
	want := decimal.RequireFromString("0.3310885")
	if !got.Equal(want) {
		t.Fatalf("Convert = %s, want %s", got, want)
	}
}

// Converting back at the stored rate must never fall short of the original
// fiat amount, whatever the inputs.
func TestConvertNeverUnderquotes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		fiat := decimal.NewFromInt(rng.Int63n(1_000_000)).Div(decimal.NewFromInt(100))
		if fiat.IsZero() {
			continue
		}
		rate := decimal.NewFromInt(rng.Int63n(1_000_000) + 1).Div(decimal.NewFromInt(1_000_000_000))
		q := quote("USD", "BTC", rate.String())

		crypto := Convert(fiat, q)
		back := crypto.Div(q.Rate)
		if back.LessThan(fiat) {
			t.Fatalf("round trip shortfall: fiat=%s rate=%s crypto=%s back=%s", fiat, rate, crypto, back)
		}
	}
}

func TestNativePrecision(t *testing.T) {
	if got := NativePrecision("XMR"); got != 12 {
		t.Errorf("NativePrecision(XMR) = %d, want 12", got)
	}
	if got := NativePrecision("xmr"); got != 12 {
		t.Errorf("NativePrecision(xmr) = %d, want 12", got)
	}
	if got := NativePrecision("BTC"); got != 8 {
		t.Errorf("NativePrecision(BTC) = %d, want 8", got)
	}
}

func TestQuoteValid(t *testing.T) {
	q := quote("GBP", "BTC", "0.000025")
	if !q.Valid(q.FetchedAt) {
		t.Error("fresh quote reported invalid")
	}
	if q.Valid(q.ValidUntil.Add(time.Second)) {
		t.Error("expired quote reported valid")
	}
	q.Rate = decimal.Zero
	if q.Valid(q.FetchedAt) {
		t.Error("zero-rate quote reported valid")
	}
}
