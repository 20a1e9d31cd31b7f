// Package indicators provides the rolling-window primitives the feature
// engine builds on. All divide operations guard zero denominators by
// returning the neutral default instead of NaN.
package indicators

import "math"

// MovingAverage computes a trailing simple moving average over values.
// A window position produces a value once max(2, window/2) observations
// are available; earlier positions are NaN.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	minPeriods := window / 2
	if minPeriods < 2 {
		minPeriods = 2
	}
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		n := i - start + 1
		if n < minPeriods {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		for j := start; j <= i; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// ATR computes the average true range over highs/lows/closes.
// Positions with fewer than window true-range observations are NaN.
func ATR(high, low, closes []float64, window int) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(high[i] - closes[i-1])
		lc := math.Abs(low[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		for j := i - window + 1; j <= i; j++ {
			sum += tr[j]
		}
		out[i] = sum / float64(window)
	}
	return out
}

// Returns computes 1-bar fractional returns, 0.0 for the first bar and
// wherever the previous close is zero.
func Returns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out[i] = 0
			continue
		}
		out[i] = closes[i]/closes[i-1] - 1
	}
	return out
}

// EfficiencyRatio is the Kaufman-style ratio of net movement to path
// length over the trailing window. 0 when undefined.
func EfficiencyRatio(closes []float64, window int) float64 {
	if len(closes) <= window {
		return 0
	}
	last := len(closes) - 1
	net := math.Abs(closes[last] - closes[last-window])
	var steps float64
	for i := last - window + 1; i <= last; i++ {
		steps += math.Abs(closes[i] - closes[i-1])
	}
	if steps == 0 {
		return 0
	}
	return net / steps
}

// SafeRatio divides a by b, returning 0.0 when b is zero or NaN.
func SafeRatio(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) {
		return 0
	}
	return a / b
}
