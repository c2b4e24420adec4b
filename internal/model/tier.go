package model

import (
	"fmt"
	"strings"
)

// Tier is the alert priority. Higher values are more urgent, so tiers can be
// compared and combined with max.
type Tier int

const (
	TierStandard Tier = iota
	TierHighPriority
	TierInstantAlert
)

func (t Tier) String() string {
	switch t {
	case TierHighPriority:
		return "HIGH_PRIORITY"
	case TierInstantAlert:
		return "INSTANT_ALERT"
	default:
		return "STANDARD"
	}
}

// ParseTier accepts the names produced by String, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STANDARD", "":
		return TierStandard, nil
	case "HIGH_PRIORITY":
		return TierHighPriority, nil
	case "INSTANT_ALERT":
		return TierInstantAlert, nil
	default:
		return TierStandard, fmt.Errorf("unknown tier %q", s)
	}
}

// Decision is the final outcome of evaluating one candidate in one cycle.
type Decision struct {
	PoolAddress  string
	Tier         Tier
	Metrics      Metrics
	Snapshot     MarketSnapshot
	ShouldNotify bool
	// Suppressed names the gate that stopped the alert; empty when ShouldNotify.
	Suppressed string
}
