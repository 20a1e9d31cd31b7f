// Package features turns raw OHLCV, sector, flow and buzz data into
// per-ticker feature rows for scoring.
package features

import (
	"math"
	"sort"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/indicators"
)

// DefaultLookback is the trailing window used for surge denominators.
const DefaultLookback = 20

// minBars is the minimum history required per ticker; shorter series
// are dropped silently.
const minBars = 5

// Input bundles everything one scan feeds to the engine.
// Bars may arrive in any order; the engine sorts per ticker by timestamp.
type Input struct {
	Bars      []domain.Bar
	SectorMap map[string]string  // ticker -> sector, "UNKNOWN" when absent
	Names     map[string]string  // ticker -> display name
	FlowMap   map[string]float64 // ticker -> investor flow score
	BuzzMap   map[string]float64 // ticker -> community buzz score
	Lookback  int                // 0 means DefaultLookback
}

// Build computes one FeatureRow per ticker with sufficient history.
// Rows are returned ordered by ticker ascending.
func Build(in Input) []domain.FeatureRow {
	if len(in.Bars) == 0 {
		return nil
	}
	lookback := in.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	series := groupByTicker(in.Bars)
	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	breadth, rotation := sectorAggregates(series, in.SectorMap, lookback)

	rows := make([]domain.FeatureRow, 0, len(tickers))
	for _, ticker := range tickers {
		bars := series[ticker]
		if len(bars) < minBars {
			continue
		}
		row := buildRow(ticker, bars, lookback)
		sector := sectorOf(in.SectorMap, ticker)
		row.Sector = sector
		row.SectorBreadth = breadthOr(breadth, sector)
		row.SectorRotation = rotation[sector]
		row.FlowScore = in.FlowMap[ticker]
		row.BuzzScore = in.BuzzMap[ticker]
		if name, ok := in.Names[ticker]; ok {
			row.Name = name
		} else {
			row.Name = ticker
		}
		rows = append(rows, row)
	}
	return rows
}

func groupByTicker(bars []domain.Bar) map[string][]domain.Bar {
	out := make(map[string][]domain.Bar)
	for _, b := range bars {
		out[b.Ticker] = append(out[b.Ticker], b)
	}
	for t := range out {
		s := out[t]
		sort.Slice(s, func(i, j int) bool { return s[i].TS.Before(s[j].TS) })
		out[t] = s
	}
	return out
}

func sectorOf(sectorMap map[string]string, ticker string) string {
	if s, ok := sectorMap[ticker]; ok && s != "" {
		return s
	}
	return "UNKNOWN"
}

func breadthOr(breadth map[string]float64, sector string) float64 {
	if v, ok := breadth[sector]; ok {
		return v
	}
	return 0.5
}

// sectorAggregates computes breadth and rotation once per sector.
// Breadth: fraction of members with a positive latest 1-bar return.
// Rotation: 0.5*avg_ret + 0.3*(breadth-0.5) + 0.2*(avg_value_surge-1).
func sectorAggregates(series map[string][]domain.Bar, sectorMap map[string]string, lookback int) (map[string]float64, map[string]float64) {
	members := make(map[string][]string)
	for ticker, sector := range sectorMap {
		members[sector] = append(members[sector], ticker)
	}

	breadth := make(map[string]float64, len(members))
	rotation := make(map[string]float64, len(members))
	for sector, tickers := range members {
		var upCount, total int
		var retVals, surgeVals []float64
		for _, ticker := range tickers {
			bars, ok := series[ticker]
			if !ok || len(bars) == 0 {
				continue
			}
			total++
			ret := lastReturn(bars)
			if ret > 0 {
				upCount++
			}
			if len(bars) < 3 {
				continue
			}
			retVals = append(retVals, ret)
			values := extract(bars, func(b domain.Bar) float64 { return b.Value })
			surgeVals = append(surgeVals, indicators.SafeRatio(values[len(values)-1], priorMean(values, lookback)))
		}
		if total == 0 {
			breadth[sector] = 0.5
			rotation[sector] = 0.0
			continue
		}
		b := float64(upCount) / float64(total)
		breadth[sector] = b

		avgRet := 0.0
		if len(retVals) > 0 {
			var s float64
			for _, v := range retVals {
				s += v
			}
			avgRet = s / float64(len(retVals))
		}
		avgSurge := 1.0
		if len(surgeVals) > 0 {
			var s float64
			for _, v := range surgeVals {
				s += v
			}
			avgSurge = s / float64(len(surgeVals))
		}
		// Positive when the sector advances together on fresh turnover.
		rotation[sector] = 0.5*avgRet + 0.3*(b-0.5) + 0.2*(avgSurge-1.0)
	}
	return breadth, rotation
}

func buildRow(ticker string, bars []domain.Bar, lookback int) domain.FeatureRow {
	closes := extract(bars, func(b domain.Bar) float64 { return b.Close })
	highs := extract(bars, func(b domain.Bar) float64 { return b.High })
	lows := extract(bars, func(b domain.Bar) float64 { return b.Low })
	volumes := extract(bars, func(b domain.Bar) float64 { return b.Volume })
	values := extract(bars, func(b domain.Bar) float64 { return b.Value })
	rets := indicators.Returns(closes)
	n := len(bars)
	latest := bars[n-1]

	ma20 := lastOr(indicators.MovingAverage(closes, 20), 0)
	ma60 := lastOr(indicators.MovingAverage(closes, 60), ma20)
	atr14 := indicators.ATR(highs, lows, closes, 14)
	latestATR := lastOr(atr14, 0)
	meanATR := priorMean(dropNaN(atr14), lookback)

	row := domain.FeatureRow{
		Ticker:          ticker,
		Price:           latest.Close,
		ValueLatest:     latest.Value,
		MoneyValueSurge: indicators.SafeRatio(latest.Value, priorMean(values, lookback)),
		VolumeSurge:     indicators.SafeRatio(latest.Volume, priorMean(volumes, lookback)),
		ATRRegime:       indicators.SafeRatio(latestATR, meanATR),
		Return1h:        rets[n-1],
		Efficiency8:     indicators.EfficiencyRatio(closes, 8),
	}

	if ma20 != 0 {
		row.MATrend = (latest.Close - ma20) / ma20
		row.TrendStrength = 0.5 * (latest.Close - ma20) / ma20
	}
	if ma60 != 0 {
		row.TrendStrength += 0.5 * (ma20 - ma60) / ma60
	}
	if n >= 6 && closes[n-6] != 0 {
		row.RS5 = closes[n-1]/closes[n-6] - 1
	}
	row.MomentumPersistence = positiveRatio(rets, 6)
	if n >= 2 {
		peak := maxTail(closes, 20)
		if peak != 0 {
			row.Drawdown20 = latest.Close/peak - 1
		}
	}
	volShort := sampleStdTail(rets, 5)
	volLong := sampleStdTail(rets, 20)
	row.VolatilityShock = indicators.SafeRatio(volShort, volLong)

	prevHigh := latest.Close
	prevLow := latest.Close
	if n >= 3 {
		prevHigh = maxPrior(highs, 20)
		prevLow = minPrior(lows, 20)
	}
	if prevHigh != 0 {
		row.Breakout20 = (latest.Close - prevHigh) / prevHigh
	}
	if span := prevHigh - prevLow; span > 0 {
		row.RangePosition20 = (latest.Close - prevLow) / span
	} else {
		row.RangePosition20 = 0.5
	}
	return row
}

func extract(bars []domain.Bar, f func(domain.Bar) float64) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = f(b)
	}
	return out
}

// priorMean averages the up-to-window values preceding the latest one.
// Returns 0 when no prior values exist.
func priorMean(values []float64, window int) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	start := n - 1 - window
	if start < 0 {
		start = 0
	}
	var sum float64
	var cnt int
	for i := start; i < n-1; i++ {
		sum += values[i]
		cnt++
	}
	if cnt == 0 {
		return 0
	}
	return sum / float64(cnt)
}

// lastOr returns the last value of a rolling series, or fallback when the
// series is empty or the last position has not warmed up yet.
func lastOr(values []float64, fallback float64) float64 {
	if len(values) == 0 || math.IsNaN(values[len(values)-1]) {
		return fallback
	}
	return values[len(values)-1]
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func lastReturn(bars []domain.Bar) float64 {
	closes := extract(bars, func(b domain.Bar) float64 { return b.Close })
	rets := indicators.Returns(closes)
	return rets[len(rets)-1]
}

// positiveRatio is the fraction of positive returns over the trailing
// window, or over the whole series when shorter.
func positiveRatio(rets []float64, window int) float64 {
	n := len(rets)
	start := 0
	if n >= window {
		start = n - window
	}
	span := n - start
	if span == 0 {
		return 0
	}
	var pos int
	for i := start; i < n; i++ {
		if rets[i] > 0 {
			pos++
		}
	}
	return float64(pos) / float64(span)
}

func maxTail(values []float64, window int) float64 {
	n := len(values)
	start := n - window
	if start < 0 {
		start = 0
	}
	m := values[start]
	for i := start + 1; i < n; i++ {
		if values[i] > m {
			m = values[i]
		}
	}
	return m
}

// maxPrior takes the max over the window bars preceding the latest one.
func maxPrior(values []float64, window int) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	start := n - 1 - window
	if start < 0 {
		start = 0
	}
	m := values[start]
	for i := start + 1; i < n-1; i++ {
		if values[i] > m {
			m = values[i]
		}
	}
	return m
}

func minPrior(values []float64, window int) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	start := n - 1 - window
	if start < 0 {
		start = 0
	}
	m := values[start]
	for i := start + 1; i < n-1; i++ {
		if values[i] < m {
			m = values[i]
		}
	}
	return m
}

func sampleStdTail(values []float64, window int) float64 {
	n := len(values)
	start := n - window
	if start < 0 {
		start = 0
	}
	tail := values[start:]
	if len(tail) < 2 {
		return 0
	}
	var sum float64
	for _, v := range tail {
		sum += v
	}
	mean := sum / float64(len(tail))
	var ss float64
	for _, v := range tail {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(tail)-1))
}
