package lab

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage/memory"
	"krx-momentum-lab/internal/timeutil"
)

type labFixture struct {
	runs        *memory.RunStore
	candidates  *memory.CandidateStore
	outcomes    *memory.OutcomeStore
	experiments *memory.ExperimentStore
}

func newLabFixture() *labFixture {
	return &labFixture{
		runs:        memory.NewRunStore(),
		candidates:  memory.NewCandidateStore(),
		outcomes:    memory.NewOutcomeStore(),
		experiments: memory.NewExperimentStore(),
	}
}

func (f *labFixture) lab(minRuns int) *Lab {
	return New(f.runs, f.candidates, f.outcomes, f.experiments, minRuns)
}

// seedRuns creates n runs. Each run has a high scorer (score 70) whose
// 1d return is goodRet and a low scorer (score 50) returning badRet, so
// stricter thresholds isolate the good pick.
func (f *labFixture) seedRuns(t *testing.T, n int, goodRet, badRet float64) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, timeutil.KST)
	for i := 0; i < n; i++ {
		runID, err := f.runs.Insert(ctx, &domain.Run{TS: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatalf("insert run: %v", err)
		}
		cands := []*domain.Candidate{
			{RunID: runID, Ticker: "GOOD", Score: 70, Price: 100},
			{RunID: runID, Ticker: "BAD", Score: 50, Price: 100},
		}
		if err := f.candidates.InsertBulk(ctx, cands); err != nil {
			t.Fatalf("insert candidates: %v", err)
		}
		for _, o := range []*domain.Outcome{
			{RunID: runID, Ticker: "GOOD", Horizon: domain.Horizon1d, Ret: goodRet},
			{RunID: runID, Ticker: "BAD", Horizon: domain.Horizon1d, Ret: badRet},
		} {
			if err := f.outcomes.Upsert(ctx, o); err != nil {
				t.Fatalf("upsert outcome: %v", err)
			}
		}
	}
}

func TestSearch_NoData(t *testing.T) {
	f := newLabFixture()
	result, err := f.lab(0).Search(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != "OFF(no-data)" || result.Best != nil {
		t.Errorf("result = %+v", result)
	}
}

func TestSearch_ThinSample(t *testing.T) {
	f := newLabFixture()
	f.seedRuns(t, 10, 0.01, -0.01) // below DefaultMinRuns

	result, err := f.lab(0).Search(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := fmt.Sprintf("OFF(sample<%d)", DefaultMinRuns)
	if result.Status != want {
		t.Errorf("status = %q, want %q", result.Status, want)
	}
}

func TestSearch_PicksStrictThreshold(t *testing.T) {
	f := newLabFixture()
	ctx := context.Background()
	// The 70-scorer wins, the 50-scorer loses: thresholds above 50
	// avoid the loser entirely.
	f.seedRuns(t, 30, 0.01, -0.02)

	result, err := f.lab(0).Search(ctx, time.Now())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Status != "ON" || result.Best == nil {
		t.Fatalf("result = %+v", result)
	}
	best := result.Best
	// Any winning combination must avoid the losing 50-scorer, either by
	// threshold or by taking only the top position.
	if best.Params.EntryScoreThreshold <= 50 && best.Params.MaxPositions > 1 {
		t.Errorf("params = %+v, picked the losing candidate", best.Params)
	}
	if math.Abs(best.Metrics.AvgRet-0.01) > 1e-12 || best.Metrics.WinRate != 1 {
		t.Errorf("metrics = %+v", best.Metrics)
	}
	if best.Metrics.NRuns != 30 {
		t.Errorf("NRuns = %d, want 30", best.Metrics.NRuns)
	}

	// The winner is activated for later recall.
	active, err := f.experiments.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if active.ExpID != best.ExpID || active.Params != best.Params {
		t.Errorf("active = %+v, want %+v", active, best)
	}
}

func TestObjective_PenalizesVolatility(t *testing.T) {
	calm := domain.ExperimentMetrics{AvgRet: 0.005, WinRate: 0.6, Vol: 0.004}
	wild := domain.ExperimentMetrics{AvgRet: 0.005, WinRate: 0.6, Vol: 0.04}
	if objective(calm) <= objective(wild) {
		t.Errorf("volatility must lower the objective: %v vs %v", objective(calm), objective(wild))
	}
	if objective(calm) != objective(domain.ExperimentMetrics{AvgRet: 0.005, WinRate: 0.6, Vol: 0.008}) {
		t.Errorf("vol below the floor must not be penalized")
	}
}
