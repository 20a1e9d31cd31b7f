package scoring

import (
	"strings"
	"testing"

	"krx-momentum-lab/internal/domain"
)

func TestClipScale(t *testing.T) {
	cases := []struct {
		value, lo, hi, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-1, 0, 1, 0},
		{2, 0, 1, 1},
		{0, 0, 1, 0},
		{1, 0, 1, 1},
		{5, 1, 1, 0}, // degenerate range
	}
	for _, tc := range cases {
		if got := clipScale(tc.value, tc.lo, tc.hi); got != tc.want {
			t.Errorf("clipScale(%v, %v, %v) = %v, want %v", tc.value, tc.lo, tc.hi, got, tc.want)
		}
	}
}

func TestScore_SortedAndDeterministic(t *testing.T) {
	rows := []domain.FeatureRow{
		{Ticker: "WEAK", MoneyValueSurge: 0.8, FlowScore: -1},
		{Ticker: "HOT", MoneyValueSurge: 3.0, FlowScore: 1, TrendStrength: 0.08},
		{Ticker: "MID", MoneyValueSurge: 1.5, FlowScore: 0.2},
	}
	out := Score(rows, domain.DefaultWeights())
	if len(out) != 3 {
		t.Fatalf("got %d rows", len(out))
	}
	if out[0].Ticker != "HOT" {
		t.Errorf("top = %s, want HOT", out[0].Ticker)
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].Score < out[i].Score {
			t.Errorf("not sorted descending at %d: %v < %v", i, out[i-1].Score, out[i].Score)
		}
	}

	again := Score(rows, domain.DefaultWeights())
	for i := range out {
		if out[i].Ticker != again[i].Ticker || out[i].Score != again[i].Score {
			t.Fatalf("non-deterministic at %d: %v vs %v", i, out[i], again[i])
		}
	}
}

func TestScore_TieBrokenByTicker(t *testing.T) {
	rows := []domain.FeatureRow{{Ticker: "BBB"}, {Ticker: "AAA"}}
	out := Score(rows, domain.DefaultWeights())
	if out[0].Score != out[1].Score {
		t.Fatalf("expected identical scores for identical rows")
	}
	if out[0].Ticker != "AAA" {
		t.Errorf("tie order = %s, want AAA first", out[0].Ticker)
	}
}

func TestScore_MonotoneInFeature(t *testing.T) {
	base := domain.FeatureRow{Ticker: "A", MoneyValueSurge: 1.0}
	better := base
	better.Ticker = "B"
	better.MoneyValueSurge = 2.5

	out := Score([]domain.FeatureRow{base, better}, domain.WeightVector{
		domain.FeatMoneyValueSurge: 1.0,
	})
	if out[0].Ticker != "B" || out[0].Score <= out[1].Score {
		t.Errorf("higher surge must score higher: %+v", out)
	}
}

func TestScore_MissingWeightContributesZero(t *testing.T) {
	row := domain.FeatureRow{Ticker: "A", MoneyValueSurge: 3.0, FlowScore: 1}
	out := Score([]domain.FeatureRow{row}, domain.WeightVector{})
	if out[0].Score != 0 {
		t.Errorf("empty weights must score 0, got %v", out[0].Score)
	}
}

func TestRationale_IncludesFactors(t *testing.T) {
	text := Rationale(domain.FeatureRow{MoneyValueSurge: 2.5, FlowScore: 0.7})
	for _, frag := range []string{"value 2.50x", "flow 0.70"} {
		if !strings.Contains(text, frag) {
			t.Errorf("rationale missing %q: %s", frag, text)
		}
	}
}

func TestScaledFeatures_StayWithinExportSet(t *testing.T) {
	exported := make(map[string]bool)
	for _, k := range domain.FeatureExportKeys {
		exported[k] = true
	}
	for _, k := range ScaledFeatures() {
		if !exported[k] {
			t.Errorf("scaled feature %q is not an exported feature key", k)
		}
	}
}
