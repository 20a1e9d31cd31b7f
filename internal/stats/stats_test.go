package stats

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestMeanAndStd(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	if got := Mean(xs); got != 2.5 {
		t.Errorf("Mean = %v, want 2.5", got)
	}
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	if got := StdPop(xs); !almostEqual(got, math.Sqrt(1.25), 1e-12) {
		t.Errorf("StdPop = %v", got)
	}
	if got := StdSample(xs); !almostEqual(got, math.Sqrt(5.0/3.0), 1e-12) {
		t.Errorf("StdSample = %v", got)
	}
	if got := StdPop([]float64{7}); got != 0 {
		t.Errorf("StdPop single = %v, want 0", got)
	}
}

func TestQuantile(t *testing.T) {
	xs := []float64{4, 1, 3, 2}
	if got := Quantile(xs, 0); got != 1 {
		t.Errorf("q0 = %v", got)
	}
	if got := Quantile(xs, 1); got != 4 {
		t.Errorf("q1 = %v", got)
	}
	if got := Quantile(xs, 0.5); !almostEqual(got, 2.5, 1e-12) {
		t.Errorf("median = %v, want 2.5", got)
	}
}

func TestWinsorize_ClipsTails(t *testing.T) {
	xs := []float64{-100, 1, 2, 3, 4, 5, 6, 7, 8, 100}
	out := Winsorize(xs, 0.1, 0.9)
	lo := Quantile(xs, 0.1)
	hi := Quantile(xs, 0.9)
	for i, v := range out {
		if v < lo || v > hi {
			t.Errorf("out[%d] = %v outside [%v, %v]", i, v, lo, hi)
		}
	}
	// Interior values untouched.
	if out[4] != 4 {
		t.Errorf("interior changed: %v", out[4])
	}
}

func TestSpearman(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	up := []float64{10, 20, 30, 40, 50}
	down := []float64{50, 40, 30, 20, 10}
	if got := Spearman(xs, up); !almostEqual(got, 1, 1e-12) {
		t.Errorf("monotone up = %v, want 1", got)
	}
	if got := Spearman(xs, down); !almostEqual(got, -1, 1e-12) {
		t.Errorf("monotone down = %v, want -1", got)
	}
	if got := Spearman(xs, []float64{3, 3, 3, 3, 3}); got != 0 {
		t.Errorf("constant = %v, want 0", got)
	}
	if got := Spearman([]float64{1}, []float64{2}); got != 0 {
		t.Errorf("short = %v, want 0", got)
	}
}

func TestSpearman_Ties(t *testing.T) {
	// Ties share the average rank; correlation stays defined.
	got := Spearman([]float64{1, 2, 2, 3}, []float64{10, 20, 20, 30})
	if !almostEqual(got, 1, 1e-12) {
		t.Errorf("tied monotone = %v, want 1", got)
	}
}

func TestMaxDrawdown(t *testing.T) {
	series := []float64{100, 120, 90, 95, 130, 110}
	want := 1 - 90.0/120.0
	if got := MaxDrawdown(series); !almostEqual(got, want, 1e-12) {
		t.Errorf("MaxDrawdown = %v, want %v", got, want)
	}
	if got := MaxDrawdown(nil); got != 0 {
		t.Errorf("empty = %v, want 0", got)
	}
	if got := MaxDrawdown([]float64{0, -5, 100, 50}); !almostEqual(got, 0.5, 1e-12) {
		t.Errorf("non-positive skipped = %v, want 0.5", got)
	}
}
