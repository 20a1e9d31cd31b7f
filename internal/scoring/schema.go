package scoring

import "krx-momentum-lab/internal/domain"

// ScaleRange is a fixed clip range mapping a raw feature onto [0,1].
type ScaleRange struct {
	Lo float64
	Hi float64
}

// scaleMap fixes the normalization contract of the composite score.
// Raw values are clamped into the range and rescaled linearly; features
// outside this map never contribute to the score.
var scaleMap = map[string]ScaleRange{
	domain.FeatMoneyValueSurge:     {0.8, 3.0},
	domain.FeatFlowScore:           {-1.0, 1.0},
	domain.FeatATRRegime:           {0.7, 1.8},
	domain.FeatSectorBreadth:       {0.2, 0.9},
	domain.FeatSectorRotation:      {-0.15, 0.35},
	domain.FeatBuzzScore:           {0.0, 1.0},
	domain.FeatRS5:                 {-0.05, 0.12},
	domain.FeatMomentumPersistence: {0.2, 0.9},
	domain.FeatDrawdown20:          {-0.18, 0.0},
	domain.FeatVolatilityShock:     {0.7, 1.6},
	domain.FeatTrendStrength:       {-0.03, 0.08},
	domain.FeatBreakout20:          {-0.05, 0.06},
	domain.FeatRangePosition20:     {0.2, 1.0},
	domain.FeatEfficiency8:         {0.1, 0.85},
}

// ScaledFeatures returns the feature keys covered by the scale map.
func ScaledFeatures() []string {
	out := make([]string, 0, len(scaleMap))
	for k := range scaleMap {
		out = append(out, k)
	}
	return out
}
