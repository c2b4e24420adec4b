// Package rules decides whether a pool deserves an alert and at which tier.
//
// Evaluation runs in two passes. FirstPass only looks at pool metrics and is
// cheap enough to run on every pool of every cycle; it shortlists candidates.
// SecondPass additionally needs a market snapshot, which is expensive to
// fetch, and applies the quality and volatility gates.
package rules

import (
	"math"

	"hotpool/internal/model"
)

const (
	feeTVLInstantPct  = 20.0
	feeTVLHighPct     = 7.0
	feeTVLStandardPct = 3.0

	aprInstantPct = 500.0
	aprHighPct    = 100.0
	aprAlertPct   = 20.0

	volumeSurgeDivisor = 3.0

	// MinOrganicScore is the organic score a pool must exceed.
	MinOrganicScore = 80.0

	volatilityMovePct = 3.0
	dampenedFeeTVLPct = 3.0
)

// First-pass trigger reasons.
const (
	ReasonFeeTVLInstant = "fee_tvl_instant"
	ReasonFeeTVLHigh    = "fee_tvl_high"
	ReasonFeeTVL        = "fee_tvl"
	ReasonAPRInstant    = "apr_instant"
	ReasonAPRHigh       = "apr_high"
	ReasonAPR           = "apr"
	ReasonVolumeSurge   = "volume_surge"
)

// Suppression reasons reported in model.Decision.
const (
	SuppressedTVLFloor     = "tvl_floor"
	SuppressedNoTrigger    = "no_trigger"
	SuppressedCooldown     = "cooldown"
	SuppressedOrganicScore = "organic_score"
	SuppressedVolatility   = "volatility"
)

// Thresholds are the externally configured rule parameters.
type Thresholds struct {
	MinTVLUSD          float64
	FeeTVLThresholdPct float64
}

// FirstPass is the outcome of the cheap shortlist filter.
type FirstPass struct {
	ShouldAlert bool
	Tier        model.Tier
	Reasons     []string
}

// Evaluator applies the alert rules. It holds no mutable state.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator constructs an evaluator for the given thresholds.
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Thresholds returns the configured thresholds.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// BelowTVLFloor reports whether the pool is too shallow to ever alert.
func (e *Evaluator) BelowTVLFloor(m model.Metrics) bool {
	return m.TVLUSD < e.thresholds.MinTVLUSD
}

// FirstPass runs the metric-only rules. A false ShouldAlert means the pool is
// not worth a market-data lookup this cycle.
func (e *Evaluator) FirstPass(m model.Metrics) FirstPass {
	result := FirstPass{Tier: model.TierStandard}
	if e.BelowTVLFloor(m) {
		return result
	}

	trigger := func(reason string) {
		result.ShouldAlert = true
		result.Reasons = append(result.Reasons, reason)
	}

	switch ratio := m.FeeTVLRatioPct; {
	case ratio >= feeTVLInstantPct:
		trigger(ReasonFeeTVLInstant)
		result.Tier = model.TierInstantAlert
	case ratio >= feeTVLHighPct:
		trigger(ReasonFeeTVLHigh)
		result.Tier = model.TierHighPriority
	case ratio >= feeTVLStandardPct || ratio >= e.thresholds.FeeTVLThresholdPct:
		trigger(ReasonFeeTVL)
	}

	// APR can only raise the tier.
	switch apr := m.APRPct; {
	case apr >= aprInstantPct:
		trigger(ReasonAPRInstant)
		result.Tier = model.TierInstantAlert
	case apr >= aprHighPct:
		trigger(ReasonAPRHigh)
		result.Tier = max(result.Tier, model.TierHighPriority)
	case apr >= aprAlertPct:
		trigger(ReasonAPR)
	}

	if volumeSurge(m) {
		trigger(ReasonVolumeSurge)
	}

	return result
}

// SecondPass applies the market-data gates to a shortlisted pool. The TVL floor
// is re-checked so the decision stays correct even if FirstPass was skipped.
func (e *Evaluator) SecondPass(poolID string, m model.Metrics, snap model.MarketSnapshot, tier model.Tier) model.Decision {
	decision := model.Decision{
		PoolAddress: poolID,
		Tier:        tier,
		Metrics:     m,
		Snapshot:    snap,
	}

	switch {
	case e.BelowTVLFloor(m):
		decision.Suppressed = SuppressedTVLFloor
	case organicGateFails(m, snap):
		decision.Suppressed = SuppressedOrganicScore
	case dampened(m, snap):
		decision.Suppressed = SuppressedVolatility
	default:
		decision.ShouldNotify = true
	}
	return decision
}

// Evaluate runs every gate in order: TVL floor, first-pass triggers, cooldown,
// organic score and volatility.
func (e *Evaluator) Evaluate(poolID string, m model.Metrics, snap model.MarketSnapshot, onCooldown bool) model.Decision {
	first := e.FirstPass(m)
	if !first.ShouldAlert {
		reason := SuppressedNoTrigger
		if e.BelowTVLFloor(m) {
			reason = SuppressedTVLFloor
		}
		return model.Decision{PoolAddress: poolID, Tier: first.Tier, Metrics: m, Snapshot: snap, Suppressed: reason}
	}
	if onCooldown {
		return model.Decision{PoolAddress: poolID, Tier: first.Tier, Metrics: m, Snapshot: snap, Suppressed: SuppressedCooldown}
	}
	return e.SecondPass(poolID, m, snap, first.Tier)
}

// volumeSurge flags a 5m window carrying more than a third of the 30m volume.
func volumeSurge(m model.Metrics) bool {
	return m.Volume5mUSD > 0 && m.Volume30mUSD > 0 && m.Volume5mUSD > m.Volume30mUSD/volumeSurgeDivisor
}

// organicGateFails is overridden by an extreme APR.
func organicGateFails(m model.Metrics, snap model.MarketSnapshot) bool {
	return snap.OrganicScore <= MinOrganicScore && m.APRPct < aprInstantPct
}

// dampened treats a sharp 5m drop without a fee signal behind it as noise.
func dampened(m model.Metrics, snap model.MarketSnapshot) bool {
	move := snap.PriceChange5mPct
	if math.Abs(move) < volatilityMovePct {
		return false
	}
	return move <= -volatilityMovePct && m.FeeTVLRatioPct < dampenedFeeTVLPct
}
