package domain

import "time"

// Regime is a discrete risk posture controlling entry strictness and sizing.
type Regime string

const (
	RegimeConservative Regime = "CONSERVATIVE"
	RegimeNeutral      Regime = "NEUTRAL"
	RegimeAggressive   Regime = "AGGRESSIVE"
)

// StrategyState is the currently-active regime row.
// New rows are appended and the old one deactivated when the nightly
// decision changes; otherwise the row is untouched.
type StrategyState struct {
	StateID             int64
	TS                  time.Time
	Regime              Regime
	EntryScoreThreshold float64
	PositionScale       float64
	Note                string
	Active              bool
}

// RegimeParams maps each regime to its fixed (threshold, scale) pair.
func RegimeParams(r Regime) (entryScoreThreshold, positionScale float64) {
	switch r {
	case RegimeConservative:
		return 62.0, 0.6
	case RegimeAggressive:
		return 50.0, 1.25
	default:
		return 55.0, 1.0
	}
}

// DefaultStrategyState is the NEUTRAL state used before any nightly decision.
func DefaultStrategyState() StrategyState {
	th, scale := RegimeParams(RegimeNeutral)
	return StrategyState{
		Regime:              RegimeNeutral,
		EntryScoreThreshold: th,
		PositionScale:       scale,
		Note:                "default",
		Active:              true,
	}
}
