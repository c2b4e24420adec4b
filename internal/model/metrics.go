package model

// Metrics is the canonical, normalized view of a pool used by the rules.
// FeeTVLRatioPct is always in percentage units (0-100).
type Metrics struct {
	TVLUSD         float64
	Fees30mUSD     float64
	Volume5mUSD    float64
	Volume30mUSD   float64
	FeeTVLRatioPct float64
	APRPct         float64
	BaseFeePct     float64
	// PriceUSD is display only.
	PriceUSD float64
}
