package coach

import (
	"context"
	"math"
	"testing"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage/memory"
	"krx-momentum-lab/internal/timeutil"
)

type coachFixture struct {
	accounts *memory.PaperAccountStore
	orders   *memory.PaperOrderStore
	runs     *memory.RunStore
	outcomes *memory.OutcomeStore
}

func newCoachFixture() *coachFixture {
	return &coachFixture{
		accounts: memory.NewPaperAccountStore(),
		orders:   memory.NewPaperOrderStore(),
		runs:     memory.NewRunStore(),
		outcomes: memory.NewOutcomeStore(),
	}
}

func (f *coachFixture) coach(cfg Config) *Coach {
	return New(f.accounts, f.orders, f.runs, f.outcomes, cfg)
}

// seedNavDays appends one NAV row per KST day ending at end, oldest
// first, using the given NAV sequence.
func (f *coachFixture) seedNavDays(t *testing.T, end time.Time, navs []float64) {
	t.Helper()
	ctx := context.Background()
	for i, nav := range navs {
		ts := end.AddDate(0, 0, i-len(navs)+1)
		if _, err := f.accounts.Append(ctx, &domain.PaperAccount{TS: ts, Cash: nav, NAV: nav}); err != nil {
			t.Fatalf("seed nav: %v", err)
		}
	}
}

func (f *coachFixture) seedOrders(t *testing.T, ts time.Time, n int) {
	t.Helper()
	orders := make([]*domain.PaperOrder, n)
	for i := range orders {
		orders[i] = &domain.PaperOrder{TS: ts, Side: domain.SideBuy, Ticker: "A", Qty: 1, Price: 10_000, RunID: 1}
	}
	if err := f.orders.AppendBulk(context.Background(), orders); err != nil {
		t.Fatalf("seed orders: %v", err)
	}
}

func risingNavs(days int, start, dayStep float64) []float64 {
	navs := make([]float64, days)
	for i := range navs {
		navs[i] = start * (1 + dayStep*float64(i))
	}
	return navs
}

func TestBuildReport_EmptyHistory(t *testing.T) {
	f := newCoachFixture()
	ts := time.Date(2025, 6, 3, 15, 0, 0, 0, timeutil.KST)

	report, err := f.coach(DefaultConfig()).BuildReport(context.Background(), ts, "nightly")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Level != domain.LevelTraining {
		t.Errorf("level = %q, want TRAINING", report.Level)
	}
	if report.Score != 0 || report.Ready {
		t.Errorf("score=%v ready=%v, want 0/false", report.Score, report.Ready)
	}
	if len(report.Gates) != 2 {
		t.Fatalf("gates = %d, want 2", len(report.Gates))
	}
	for _, g := range report.Gates {
		if g.Pass {
			t.Errorf("gate %s passes on empty history", g.Key)
		}
	}
	if report.RiskPlan.Mode != "paper_only" || report.RiskPlan.MaxNewPositions != 1 {
		t.Errorf("risk plan = %+v", report.RiskPlan)
	}
	if len(report.Checklist) == 0 {
		t.Error("missing checklist")
	}
}

func TestBuildReport_Ready(t *testing.T) {
	f := newCoachFixture()
	ts := time.Date(2025, 6, 20, 15, 0, 0, 0, timeutil.KST)
	// 15 monotonically rising days, +7% cumulative, zero drawdown.
	f.seedNavDays(t, ts, risingNavs(15, 1_000_000, 0.005))
	f.seedOrders(t, ts.AddDate(0, 0, -5), 30)

	report, err := f.coach(DefaultConfig()).BuildReport(context.Background(), ts, "nightly")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if !report.Ready {
		t.Fatalf("not ready; gates = %+v", report.Gates)
	}
	if report.Level != domain.LevelReady {
		t.Errorf("level = %q, want READY (score %v)", report.Level, report.Score)
	}
	if report.Score < 95 {
		t.Errorf("score = %v, want near 100 on a clean rising ledger", report.Score)
	}
	for _, g := range report.Gates {
		if !g.Pass {
			t.Errorf("gate %s fails: %+v", g.Key, g)
		}
	}
	if report.Metrics.HistoryDays != 15 || report.Metrics.OrderTotal != 30 {
		t.Errorf("metrics = %+v", report.Metrics)
	}
	if math.Abs(report.Metrics.CumulativeReturn-0.07) > 1e-9 {
		t.Errorf("cum return = %v, want 0.07", report.Metrics.CumulativeReturn)
	}
	plan := report.RiskPlan
	if plan.Mode != "manual_live_small" || plan.RiskPerTradePct != 0.5 || plan.DailyLossLimitPct != 1.5 || plan.MaxNewPositions != 2 {
		t.Errorf("risk plan = %+v", plan)
	}
	for _, item := range report.Checklist {
		if item == "Stay paper-plus-probe only until readiness turns READY." {
			t.Error("READY checklist carries the probe-only item")
		}
	}
}

func TestBuildReport_WatchOnMissedReturnTarget(t *testing.T) {
	f := newCoachFixture()
	ts := time.Date(2025, 6, 20, 15, 0, 0, 0, timeutil.KST)
	// Rising but only +1.4% cumulative, short of the 3% target.
	f.seedNavDays(t, ts, risingNavs(15, 1_000_000, 0.001))
	f.seedOrders(t, ts.AddDate(0, 0, -5), 30)

	report, err := f.coach(DefaultConfig()).BuildReport(context.Background(), ts, "nightly")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Ready {
		t.Error("ready despite missed return target")
	}
	if report.Level != domain.LevelWatch {
		t.Errorf("level = %q, want WATCH (score %v)", report.Level, report.Score)
	}
	for _, g := range report.Gates {
		switch g.Key {
		case "cum_return":
			if g.Pass {
				t.Error("cum_return gate must fail")
			}
		case "history_days", "order_count", "max_dd", "daily_win":
			if !g.Pass {
				t.Errorf("gate %s fails: %+v", g.Key, g)
			}
		}
	}
	if report.RiskPlan.Mode != "paper_plus_small_probe" {
		t.Errorf("risk plan mode = %q", report.RiskPlan.Mode)
	}
}

func TestBuildReport_DrawdownGate(t *testing.T) {
	f := newCoachFixture()
	ts := time.Date(2025, 6, 20, 15, 0, 0, 0, timeutil.KST)
	// Peak then a 15% drop busts the 8% drawdown limit.
	navs := append(risingNavs(14, 1_000_000, 0.01), 1_000_000)
	f.seedNavDays(t, ts, navs)
	f.seedOrders(t, ts.AddDate(0, 0, -5), 30)

	report, err := f.coach(DefaultConfig()).BuildReport(context.Background(), ts, "nightly")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Ready {
		t.Error("ready despite busted drawdown limit")
	}
	for _, g := range report.Gates {
		if g.Key == "max_dd" {
			if g.Pass {
				t.Errorf("max_dd gate passes with drawdown %v", g.Value)
			}
			if g.Value < 0.08 {
				t.Errorf("drawdown = %v, want > limit", g.Value)
			}
		}
	}
}

func TestBuildReport_OutcomeStatsFilterByLookback(t *testing.T) {
	f := newCoachFixture()
	ctx := context.Background()
	ts := time.Date(2025, 6, 20, 15, 0, 0, 0, timeutil.KST)
	f.seedNavDays(t, ts, risingNavs(3, 1_000_000, 0.001))

	seedRun := func(runTS time.Time) int64 {
		id, err := f.runs.Insert(ctx, &domain.Run{TS: runTS, Provider: "stub", Universe: "KOSPI200", TopN: 10})
		if err != nil {
			t.Fatalf("insert run: %v", err)
		}
		return id
	}
	recent1 := seedRun(ts.AddDate(0, 0, -2))
	recent2 := seedRun(ts.AddDate(0, 0, -1))
	stale := seedRun(ts.AddDate(0, 0, -40))

	for _, o := range []*domain.Outcome{
		{RunID: recent1, Ticker: "A", Horizon: domain.Horizon1d, Ret: 0.02, PriceThen: 100, PriceLater: 102},
		{RunID: recent2, Ticker: "A", Horizon: domain.Horizon1d, Ret: -0.01, PriceThen: 100, PriceLater: 99},
		{RunID: stale, Ticker: "A", Horizon: domain.Horizon1d, Ret: 0.5, PriceThen: 100, PriceLater: 150},
		{RunID: recent1, Ticker: "A", Horizon: domain.Horizon1h, Ret: 0.9, PriceThen: 100, PriceLater: 190},
	} {
		if err := f.outcomes.Upsert(ctx, o); err != nil {
			t.Fatalf("upsert outcome: %v", err)
		}
	}

	report, err := f.coach(DefaultConfig()).BuildReport(ctx, ts, "nightly")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	m := report.Metrics
	if m.OutcomeN != 2 {
		t.Fatalf("outcome n = %d, want 2 (stale run and other horizons excluded)", m.OutcomeN)
	}
	if math.Abs(m.OutcomeAvgRet1d-0.005) > 1e-12 {
		t.Errorf("avg ret = %v, want 0.005", m.OutcomeAvgRet1d)
	}
	if m.OutcomeWinRate1d != 0.5 {
		t.Errorf("win rate = %v, want 0.5", m.OutcomeWinRate1d)
	}
}
