package exchange

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Native settlement precision per crypto currency. Amounts quoted to the
// customer are rounded up at this scale so a reconversion at the stored rate
// never falls short of the original fiat amount.
const (
	bitcoinPrecision = 8
	moneroPrecision  = 12
)

func NativePrecision(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "XMR":
		return moneroPrecision
	default:
		return bitcoinPrecision
	}
}

// Convert applies a fiat->crypto rate and rounds up to the crypto's native
// precision. Rounding up avoids under-quoting the customer.
func Convert(fiatAmount decimal.Decimal, q Quote) decimal.Decimal {
	return fiatAmount.Mul(q.Rate).RoundUp(NativePrecision(q.Counter))
}
