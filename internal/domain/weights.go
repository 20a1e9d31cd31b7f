package domain

import "time"

// WeightVector maps feature names to non-negative weights.
// Invariant: weights sum to 1.0; renormalized whenever mutated.
type WeightVector map[string]float64

// WeightVersion is one versioned row of the weights table.
// Versions are append-only; exactly one is active at a time.
type WeightVersion struct {
	Version int64
	TS      time.Time
	Weights WeightVector
	Active  bool
}

// Clone returns an independent copy of the vector.
func (w WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Sum returns the total mass of the vector.
func (w WeightVector) Sum() float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

// Normalized returns a copy rescaled to sum to 1.0.
// Returns ok=false when the sum is non-positive.
func (w WeightVector) Normalized() (WeightVector, bool) {
	s := w.Sum()
	if s <= 0 {
		return nil, false
	}
	out := make(WeightVector, len(w))
	for k, v := range w {
		out[k] = v / s
	}
	return out, true
}

// DefaultWeights is the hard-coded scoring vector used until the first
// tuner activation. Values sum to 1.0.
func DefaultWeights() WeightVector {
	return WeightVector{
		FeatMoneyValueSurge:     0.18,
		FeatFlowScore:           0.14,
		FeatATRRegime:           0.10,
		FeatSectorBreadth:       0.06,
		FeatSectorRotation:      0.07,
		FeatBuzzScore:           0.03,
		FeatRS5:                 0.09,
		FeatMomentumPersistence: 0.07,
		FeatDrawdown20:          0.05,
		FeatVolatilityShock:     0.02,
		FeatTrendStrength:       0.08,
		FeatBreakout20:          0.05,
		FeatRangePosition20:     0.03,
		FeatEfficiency8:         0.03,
	}
}
