// Package scoring maps feature rows to composite 0-100 scores.
// Scoring is a pure function of (features, weights): no state, no I/O.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"krx-momentum-lab/internal/domain"
)

// Scored is one feature row with its composite score attached.
type Scored struct {
	domain.FeatureRow
	Score float64
}

// clipScale rescales value into [0,1] over [lo,hi], clamping outside.
func clipScale(value, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	x := (value - lo) / (hi - lo)
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Score computes the weighted composite score for every row and returns
// the result sorted by score descending (ties broken by ticker for
// deterministic output). Missing features normalize to 0; missing
// weights contribute 0.
func Score(rows []domain.FeatureRow, weights domain.WeightVector) []Scored {
	out := make([]Scored, 0, len(rows))
	for _, row := range rows {
		var sum float64
		for key, rng := range scaleMap {
			raw, ok := row.Value(key)
			if !ok {
				continue
			}
			sum += weights[key] * clipScale(raw, rng.Lo, rng.Hi)
		}
		out = append(out, Scored{
			FeatureRow: row,
			Score:      math.Round(sum*100*100) / 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// Rationale renders the human-readable factor summary persisted with a
// candidate.
func Rationale(row domain.FeatureRow) string {
	return fmt.Sprintf(
		"value %.2fx / volume %.2fx; flow %.2f; atr %.2f; breadth %.2f; rotation %.3f; "+
			"rs5 %.2f%%; persist %.2f; trend %.3f; breakout %.2f%%; eff %.2f",
		row.MoneyValueSurge, row.VolumeSurge, row.FlowScore, row.ATRRegime,
		row.SectorBreadth, row.SectorRotation,
		row.RS5*100, row.MomentumPersistence, row.TrendStrength,
		row.Breakout20*100, row.Efficiency8,
	)
}
