package model

// NeutralOrganicScore is used whenever transaction data is missing or too thin
// to judge. It sits above the organic gate on purpose: unknown quality passes.
const NeutralOrganicScore = 85.0

// Snapshot sources.
const (
	SnapshotSourceDexScreener = "dexscreener"
	SnapshotSourceFallback    = "fallback"
	SnapshotSourceStatic      = "static"
)

// MarketSnapshot holds the market data fetched for a shortlisted pool.
type MarketSnapshot struct {
	PriceChange5mPct float64
	MarketCapUSD     float64
	OrganicScore     float64
	Source           string
}

// FallbackSnapshot is returned when the market source does not know the token
// or fails: no price move, no market cap, neutral organic score.
func FallbackSnapshot() MarketSnapshot {
	return MarketSnapshot{OrganicScore: NeutralOrganicScore, Source: SnapshotSourceFallback}
}
