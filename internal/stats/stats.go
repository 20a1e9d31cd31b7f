// Package stats holds the small statistics kit shared by the tuner,
// strategy lab and training coach.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdPop returns the population standard deviation, 0 for n < 2.
func StdPop(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n))
}

// StdSample returns the sample standard deviation (ddof=1), 0 for n < 2.
func StdSample(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Quantile returns the linearly interpolated q-quantile, q in [0,1].
func Quantile(xs []float64, q float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, xs)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Winsorize clips values to the [lo, hi] quantile range.
func Winsorize(xs []float64, lo, hi float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	ql := Quantile(xs, lo)
	qh := Quantile(xs, hi)
	out := make([]float64, len(xs))
	for i, x := range xs {
		switch {
		case x < ql:
			out[i] = ql
		case x > qh:
			out[i] = qh
		default:
			out[i] = x
		}
	}
	return out
}

// ranks assigns average ranks (1-based) with ties sharing their mean rank.
func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		// average rank for the tie group [i, j]
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// Spearman returns the Spearman rank correlation of paired samples.
// Returns 0 when undefined (short or constant input).
func Spearman(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}
	rx := ranks(xs)
	ry := ranks(ys)

	mx := Mean(rx)
	my := Mean(ry)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx := rx[i] - mx
		dy := ry[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// MaxDrawdown returns the worst peak-to-trough decline of a series as a
// positive fraction. Non-positive values are skipped.
func MaxDrawdown(series []float64) float64 {
	var peak, worst float64
	for _, v := range series {
		if v <= 0 {
			continue
		}
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := v/peak - 1
			if dd < worst {
				worst = dd
			}
		}
	}
	return math.Abs(worst)
}
