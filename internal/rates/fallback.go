package rates

import "github.com/shopspring/decimal"

// usdFallback holds approximate USD-based rates for the supported set, used
// only when neither a fresh fetch nor a persisted table is available.
var usdFallback = map[string]decimal.Decimal{
	"USD": decimal.NewFromFloat(1.0),
	"EUR": decimal.NewFromFloat(0.85),
	"GBP": decimal.NewFromFloat(0.73),
	"CAD": decimal.NewFromFloat(1.25),
	"JPY": decimal.NewFromFloat(110.0),
	"AUD": decimal.NewFromFloat(1.35),
	"CHF": decimal.NewFromFloat(0.92),
}

// fallbackTable derives a static table for any supported base by crossing
// through the USD rates: rate(base->target) = usd[target] / usd[base].
func fallbackTable(base string) *Table {
	out := make(map[string]decimal.Decimal, len(usdFallback))
	baseRate, ok := usdFallback[base]
	if !ok || baseRate.IsZero() {
		baseRate = decimal.NewFromInt(1)
	}
	for code, r := range usdFallback {
		out[code] = r.Div(baseRate)
	}
	return &Table{Base: base, Rates: out}
}
