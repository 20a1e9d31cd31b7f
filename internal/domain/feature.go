package domain

// FeatureRow holds the raw per-ticker measurements produced by one scan.
// Created fresh each scan from OHLCV history, never mutated afterwards.
type FeatureRow struct {
	Ticker string
	Name   string
	Sector string

	Price       float64
	ValueLatest float64

	MoneyValueSurge     float64 // latest value / mean of prior lookback values
	VolumeSurge         float64 // latest volume / mean of prior lookback volumes
	MATrend             float64 // (close - MA20) / MA20
	ATRRegime           float64 // latest ATR14 / mean of prior 20 ATR values
	Return1h            float64 // last 1-bar return
	RS5                 float64 // close[t]/close[t-6] - 1
	MomentumPersistence float64 // fraction of positive 1-bar returns, trailing 6
	Drawdown20          float64 // close / max(close, trailing 20) - 1
	VolatilityShock     float64 // std(ret, 5) / std(ret, 20)
	TrendStrength       float64 // blend of close-vs-MA20 and MA20-vs-MA60
	Breakout20          float64 // close vs prior 20-bar high
	RangePosition20     float64 // close position within prior 20-bar range
	Efficiency8         float64 // Kaufman-style efficiency ratio over 8 bars
	SectorBreadth       float64 // fraction of sector members up on the bar
	SectorRotation      float64 // sector return/breadth/turnover blend
	FlowScore           float64 // investor flow score, 0 when unknown
	BuzzScore           float64 // community buzz score, 0 when unknown
}

// Feature name keys used for weight vectors and serialized snapshots.
// These are the exact keys stored in candidates.features_json.
const (
	FeatMoneyValueSurge     = "money_value_surge"
	FeatVolumeSurge         = "volume_surge"
	FeatMATrend             = "ma_trend"
	FeatATRRegime           = "atr_regime"
	FeatReturn1h            = "return_1h"
	FeatRS5                 = "rs_5"
	FeatMomentumPersistence = "momentum_persistence"
	FeatDrawdown20          = "drawdown_20"
	FeatVolatilityShock     = "volatility_shock"
	FeatTrendStrength       = "trend_strength"
	FeatBreakout20          = "breakout_20"
	FeatRangePosition20     = "range_position_20"
	FeatEfficiency8         = "efficiency_8"
	FeatSectorBreadth       = "sector_breadth"
	FeatSectorRotation      = "sector_rotation"
	FeatFlowScore           = "flow_score"
	FeatBuzzScore           = "buzz_score"
)

// FeatureExportKeys enumerates the features serialized into candidate
// snapshots and reused by the nightly tuner and factor diagnostics.
var FeatureExportKeys = []string{
	FeatMoneyValueSurge,
	FeatVolumeSurge,
	FeatMATrend,
	FeatATRRegime,
	FeatReturn1h,
	FeatRS5,
	FeatMomentumPersistence,
	FeatDrawdown20,
	FeatVolatilityShock,
	FeatTrendStrength,
	FeatBreakout20,
	FeatRangePosition20,
	FeatEfficiency8,
	FeatSectorBreadth,
	FeatSectorRotation,
	FeatFlowScore,
	FeatBuzzScore,
}

// Value returns the raw measurement for a feature key.
// Unknown keys report ok=false so callers can apply their neutral default.
func (f *FeatureRow) Value(key string) (float64, bool) {
	switch key {
	case FeatMoneyValueSurge:
		return f.MoneyValueSurge, true
	case FeatVolumeSurge:
		return f.VolumeSurge, true
	case FeatMATrend:
		return f.MATrend, true
	case FeatATRRegime:
		return f.ATRRegime, true
	case FeatReturn1h:
		return f.Return1h, true
	case FeatRS5:
		return f.RS5, true
	case FeatMomentumPersistence:
		return f.MomentumPersistence, true
	case FeatDrawdown20:
		return f.Drawdown20, true
	case FeatVolatilityShock:
		return f.VolatilityShock, true
	case FeatTrendStrength:
		return f.TrendStrength, true
	case FeatBreakout20:
		return f.Breakout20, true
	case FeatRangePosition20:
		return f.RangePosition20, true
	case FeatEfficiency8:
		return f.Efficiency8, true
	case FeatSectorBreadth:
		return f.SectorBreadth, true
	case FeatSectorRotation:
		return f.SectorRotation, true
	case FeatFlowScore:
		return f.FlowScore, true
	case FeatBuzzScore:
		return f.BuzzScore, true
	}
	return 0, false
}

// Snapshot serializes the exported features into a name→value map.
func (f *FeatureRow) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(FeatureExportKeys))
	for _, key := range FeatureExportKeys {
		if v, ok := f.Value(key); ok {
			out[key] = v
		}
	}
	return out
}
