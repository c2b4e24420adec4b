package rules

import (
	"math"
	"math/rand/v2"
)

const (
	holdersPerTVLUSD = 1000.0
	holderJitter     = 500
	holderBase       = 100
)

// PlaceholderHolderCount returns a made-up holder count for display.
//
// No configured data source exposes holder counts, so the figure is derived
// from TVL plus bounded noise: floor(tvl/1000) + [0,500) + 100. It is NOT a
// real metric, must never feed a rule, and is labelled as an estimate
// wherever it is shown. Pass a seeded rng for reproducible output.
func PlaceholderHolderCount(tvlUSD float64, rng *rand.Rand) int {
	var jitter int
	if rng != nil {
		jitter = rng.IntN(holderJitter)
	} else {
		jitter = rand.IntN(holderJitter)
	}
	base := math.Floor(math.Max(tvlUSD, 0) / holdersPerTVLUSD)
	return int(base) + jitter + holderBase
}
