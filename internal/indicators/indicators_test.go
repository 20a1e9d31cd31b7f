package indicators

import (
	"math"
	"testing"
)

func TestMovingAverage(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	out := MovingAverage(values, 4)
	if !math.IsNaN(out[0]) {
		t.Errorf("out[0] = %v, want NaN before min periods", out[0])
	}
	// window/2 = 2 observations suffice.
	if out[1] != 1.5 {
		t.Errorf("out[1] = %v, want 1.5", out[1])
	}
	if out[5] != 4.5 {
		t.Errorf("out[5] = %v, want 4.5 (mean of 3..6)", out[5])
	}
}

func TestATR(t *testing.T) {
	high := []float64{12, 13, 14}
	low := []float64{10, 11, 12}
	closes := []float64{11, 12, 13}
	out := ATR(high, low, closes, 2)
	if !math.IsNaN(out[0]) {
		t.Errorf("out[0] = %v, want NaN", out[0])
	}
	// TR = [2, 2, 2] here, so every defined ATR is 2.
	if out[1] != 2 || out[2] != 2 {
		t.Errorf("ATR = %v, want 2s", out[1:])
	}
}

func TestATR_GapTrueRange(t *testing.T) {
	// Gap up: TR must use the previous close, not the bar range.
	high := []float64{10, 20}
	low := []float64{9, 19}
	closes := []float64{10, 20}
	out := ATR(high, low, closes, 1)
	if out[1] != 10 {
		t.Errorf("gap TR = %v, want 10", out[1])
	}
}

func TestReturns(t *testing.T) {
	out := Returns([]float64{100, 110, 99})
	if out[0] != 0 {
		t.Errorf("first = %v, want 0", out[0])
	}
	if math.Abs(out[1]-0.1) > 1e-12 {
		t.Errorf("out[1] = %v, want 0.1", out[1])
	}
	if math.Abs(out[2]+0.1) > 1e-12 {
		t.Errorf("out[2] = %v, want -0.1", out[2])
	}

	zero := Returns([]float64{0, 5})
	if zero[1] != 0 {
		t.Errorf("zero denom = %v, want 0", zero[1])
	}
}

func TestEfficiencyRatio(t *testing.T) {
	// Perfectly directional path: ratio 1.
	straight := []float64{1, 2, 3, 4, 5}
	if got := EfficiencyRatio(straight, 4); got != 1 {
		t.Errorf("straight = %v, want 1", got)
	}
	// Round trip: no net movement.
	chop := []float64{1, 2, 1, 2, 1}
	if got := EfficiencyRatio(chop, 4); got != 0 {
		t.Errorf("chop = %v, want 0", got)
	}
	if got := EfficiencyRatio([]float64{1, 2}, 4); got != 0 {
		t.Errorf("short = %v, want 0", got)
	}
}

func TestSafeRatio(t *testing.T) {
	if got := SafeRatio(10, 4); got != 2.5 {
		t.Errorf("SafeRatio = %v, want 2.5", got)
	}
	if got := SafeRatio(10, 0); got != 0 {
		t.Errorf("zero denom = %v, want 0", got)
	}
	if got := SafeRatio(10, math.NaN()); got != 0 {
		t.Errorf("NaN denom = %v, want 0", got)
	}
}
