// Package normalize turns raw pool records into canonical metrics.
package normalize

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"hotpool/internal/model"
)

// Numbers outside ±1e300 are treated as malformed.
const (
	maxMagnitude = 300
	maxExponent  = 1000
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Normalize converts a raw pool record into canonical metrics. It never fails:
// missing fields and malformed numbers become zero so one bad record cannot
// abort a cycle.
func Normalize(rec model.PoolRecord) model.Metrics {
	tvl := Number(rec.Liquidity)
	if tvl == 0 {
		tvl = Number(rec.TVL)
	}

	return model.Metrics{
		TVLUSD:         tvl,
		Fees30mUSD:     Number(rec.Fees.Min30),
		Volume5mUSD:    Number(rec.Volume.Min5),
		Volume30mUSD:   Number(rec.Volume.Min30),
		FeeTVLRatioPct: RatioPct(rec.FeeTVLRatio.Min30),
		APRPct:         Number(rec.APR),
		BaseFeePct:     Number(rec.BaseFeePercentage),
		PriceUSD:       Number(rec.CurrentPrice),
	}
}

// RatioPct returns a ratio in percentage units. Values below 1 are taken to be
// fractions and scaled by 100; values of 1 or more are assumed to already be
// percentages.
//
// The source carries no unit tag, so a genuine 0.5% ratio is indistinguishable
// from a 0.5 fraction (50%) and will be reported as 50%. Keep the rule until the
// API exposes units.
func RatioPct(raw model.RawNumber) float64 {
	d := parse(raw)
	if d.LessThan(one) {
		d = d.Mul(hundred)
	}
	return finite(d.InexactFloat64())
}

// Number parses a raw numeric field, returning zero when absent, malformed or
// out of float64 range.
func Number(raw model.RawNumber) float64 {
	return finite(parse(raw).InexactFloat64())
}

// parse returns zero for anything that is not a finite number of sane
// magnitude. The bounds are checked before any arithmetic, since rescaling a
// decimal with a huge exponent allocates a 10^exp integer.
func parse(raw model.RawNumber) decimal.Decimal {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsZero() {
		return decimal.Zero
	}

	exp := int64(d.Exponent())
	if exp > maxExponent || exp < -maxExponent {
		return decimal.Zero
	}
	// order of magnitude of the leading digit
	if magnitude := int64(d.NumDigits()) + exp - 1; magnitude > maxMagnitude || magnitude < -maxMagnitude {
		return decimal.Zero
	}
	return d
}

// finite maps NaN and infinities to zero.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
