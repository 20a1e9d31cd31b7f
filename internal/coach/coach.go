// Package coach scores live-trading readiness from the paper ledger's
// NAV history and realized outcomes.
package coach

import (
	"context"
	"fmt"
	"math"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/stats"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// Config holds the coach's gates and base risk budget.
type Config struct {
	LookbackDays        int
	MinDays             int
	MinTrades           int
	TargetReturn        float64
	MaxDrawdownLimit    float64
	BaseRiskPerTradePct float64
	BaseDailyLossPct    float64
	BaseMaxNewPositions int
}

// DefaultConfig returns the production coach configuration.
func DefaultConfig() Config {
	return Config{
		LookbackDays:        30,
		MinDays:             14,
		MinTrades:           30,
		TargetReturn:        0.03,
		MaxDrawdownLimit:    0.08,
		BaseRiskPerTradePct: 0.5,
		BaseDailyLossPct:    1.5,
		BaseMaxNewPositions: 2,
	}
}

// Coach builds readiness reports from the paper and outcome stores.
type Coach struct {
	accounts storage.PaperAccountStore
	orders   storage.PaperOrderStore
	runs     storage.RunStore
	outcomes storage.OutcomeStore
	cfg      Config
}

// New creates a Coach over the given stores.
func New(accounts storage.PaperAccountStore, orders storage.PaperOrderStore, runs storage.RunStore, outcomes storage.OutcomeStore, cfg Config) *Coach {
	return &Coach{accounts: accounts, orders: orders, runs: runs, outcomes: outcomes, cfg: cfg}
}

// BuildReport scores readiness at ts. An empty NAV history yields a
// zero-score TRAINING report rather than an error.
func (c *Coach) BuildReport(ctx context.Context, ts time.Time, mode string) (*domain.TrainingReport, error) {
	lookback := c.cfg.LookbackDays
	if lookback < 1 {
		lookback = 1
	}
	cutoff := ts.AddDate(0, 0, -lookback)

	navRows, err := c.accounts.GetSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load nav history: %w", err)
	}
	orderTotal, err := c.orders.CountTotal(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	orderLookback, err := c.orders.CountSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("count recent orders: %w", err)
	}
	outN, outAvg, outWin, err := c.outcomeStats(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	report := &domain.TrainingReport{
		TS:    ts,
		Mode:  mode,
		Level: domain.LevelTraining,
		Metrics: domain.TrainingMetrics{
			OrderTotal:       orderTotal,
			OrderLookback:    orderLookback,
			OutcomeN:         outN,
			OutcomeAvgRet1d:  outAvg,
			OutcomeWinRate1d: outWin,
		},
	}
	if len(navRows) == 0 {
		report.Gates = []domain.TrainingGate{
			{Key: "history_days", Label: historyLabel(c.cfg.MinDays), Pass: false, Value: 0, Target: float64(c.cfg.MinDays)},
			{Key: "order_count", Label: orderLabel(c.cfg.MinTrades), Pass: false, Value: float64(orderTotal), Target: float64(c.cfg.MinTrades)},
		}
		report.RiskPlan = c.riskPlan(domain.LevelTraining)
		report.Checklist = emptyHistoryChecklist()
		return report, nil
	}

	navs := make([]float64, len(navRows))
	for i, row := range navRows {
		navs[i] = row.NAV
	}
	historyDays := distinctDays(navRows)
	cumReturn := 0.0
	if navs[0] > 0 {
		cumReturn = navs[len(navs)-1]/navs[0] - 1
	}
	maxDD := stats.MaxDrawdown(navs)
	dailyRets := dailyReturns(navRows)
	dailyWin := winRate(dailyRets)

	m := &report.Metrics
	m.HistoryDays = historyDays
	m.CumulativeReturn = cumReturn
	m.MaxDrawdown = maxDD
	m.DailyWinRate = dailyWin
	m.NavStart = navs[0]
	m.NavEnd = navs[len(navs)-1]
	if len(dailyRets) > 0 {
		m.DailyRetMean = stats.Mean(dailyRets)
		m.DailyRetStd = stats.StdSample(dailyRets)
	}

	// Score split: 18pt days + 12pt orders + 25pt performance +
	// 20pt drawdown slack + 15pt daily win + 10pt outcome win.
	sampleScore := math.Min(1, float64(historyDays)/math.Max(1, float64(c.cfg.MinDays)))*18 +
		math.Min(1, float64(orderTotal)/math.Max(1, float64(c.cfg.MinTrades)))*12
	perfScore := stats.Clamp((cumReturn+0.03)/0.10, 0, 1) * 25
	ddSpan := math.Max(1e-6, c.cfg.MaxDrawdownLimit*1.5)
	ddScore := stats.Clamp((c.cfg.MaxDrawdownLimit*1.5-maxDD)/ddSpan, 0, 1) * 20
	outWinForScore := outWin
	if outN < 10 {
		outWinForScore = dailyWin
	}
	consistencyScore := stats.Clamp((dailyWin-0.45)/0.20, 0, 1)*15 +
		stats.Clamp((outWinForScore-0.45)/0.20, 0, 1)*10
	report.Score = math.Round((sampleScore+perfScore+ddScore+consistencyScore)*10) / 10

	gateHistory := historyDays >= c.cfg.MinDays
	gateOrders := orderTotal >= c.cfg.MinTrades
	gateReturn := cumReturn >= c.cfg.TargetReturn
	gateDD := maxDD <= c.cfg.MaxDrawdownLimit
	gateDailyWin := dailyWin >= 0.50
	gateOutcomeWin := outN < 20 || outWin >= 0.50

	report.Ready = gateHistory && gateOrders && gateReturn && gateDD && gateDailyWin && gateOutcomeWin
	switch {
	case report.Ready && report.Score >= 75:
		report.Level = domain.LevelReady
	case report.Score >= 60 && gateHistory && gateOrders:
		report.Level = domain.LevelWatch
	default:
		report.Level = domain.LevelTraining
	}

	report.Gates = []domain.TrainingGate{
		{Key: "history_days", Label: historyLabel(c.cfg.MinDays), Pass: gateHistory, Value: float64(historyDays), Target: float64(c.cfg.MinDays)},
		{Key: "order_count", Label: orderLabel(c.cfg.MinTrades), Pass: gateOrders, Value: float64(orderTotal), Target: float64(c.cfg.MinTrades)},
		{Key: "cum_return", Label: fmt.Sprintf("cumulative return >= %.1f%%", c.cfg.TargetReturn*100), Pass: gateReturn, Value: cumReturn, Target: c.cfg.TargetReturn},
		{Key: "max_dd", Label: fmt.Sprintf("max drawdown <= %.1f%%", c.cfg.MaxDrawdownLimit*100), Pass: gateDD, Value: maxDD, Target: c.cfg.MaxDrawdownLimit},
		{Key: "daily_win", Label: "daily win rate >= 50%", Pass: gateDailyWin, Value: dailyWin, Target: 0.50},
		{Key: "outcome_win", Label: "outcome win rate (n>=20) >= 50%", Pass: gateOutcomeWin, Value: outWin, Target: 0.50},
	}
	report.RiskPlan = c.riskPlan(report.Level)
	report.Checklist = checklistFor(report.Level, report.RiskPlan)
	return report, nil
}

// riskPlan scales the base risk budget by the level multiplier.
func (c *Coach) riskPlan(level string) domain.RiskPlan {
	mult := 0.35
	mode := "paper_only"
	switch level {
	case domain.LevelReady:
		mult = 1.0
		mode = "manual_live_small"
	case domain.LevelWatch:
		mult = 0.6
		mode = "paper_plus_small_probe"
	}
	basePositions := c.cfg.BaseMaxNewPositions
	if basePositions < 1 {
		basePositions = 1
	}
	maxNew := int(math.Round(float64(basePositions) * mult))
	if maxNew < 1 {
		maxNew = 1
	}
	return domain.RiskPlan{
		Mode:              mode,
		RiskPerTradePct:   math.Round(math.Max(0.1, c.cfg.BaseRiskPerTradePct*mult)*100) / 100,
		DailyLossLimitPct: math.Round(math.Max(0.3, c.cfg.BaseDailyLossPct*mult)*100) / 100,
		MaxNewPositions:   maxNew,
	}
}

// outcomeStats summarizes 1-day outcomes whose run falls inside the
// lookback window.
func (c *Coach) outcomeStats(ctx context.Context, cutoff time.Time) (n int, avg, win float64, err error) {
	outcomes, err := c.outcomes.GetByHorizon(ctx, domain.Horizon1d, 0)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("load 1d outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		return 0, 0, 0, nil
	}
	runs, err := c.runs.GetAll(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("load runs: %w", err)
	}
	recent := make(map[int64]bool, len(runs))
	for _, r := range runs {
		recent[r.RunID] = !r.TS.Before(cutoff)
	}
	var sum float64
	wins := 0
	for _, o := range outcomes {
		if !recent[o.RunID] {
			continue
		}
		n++
		sum += o.Ret
		if o.Ret > 0 {
			wins++
		}
	}
	if n == 0 {
		return 0, 0, 0, nil
	}
	return n, sum / float64(n), float64(wins) / float64(n), nil
}

// dailyReturns takes the last NAV per KST day and returns day-over-day
// changes.
func dailyReturns(rows []*domain.PaperAccount) []float64 {
	var lastPerDay []float64
	prevDay := ""
	for _, row := range rows {
		day := timeutil.DayKey(row.TS)
		if day == prevDay && len(lastPerDay) > 0 {
			lastPerDay[len(lastPerDay)-1] = row.NAV
			continue
		}
		lastPerDay = append(lastPerDay, row.NAV)
		prevDay = day
	}
	var rets []float64
	for i := 1; i < len(lastPerDay); i++ {
		if lastPerDay[i-1] > 0 {
			rets = append(rets, lastPerDay[i]/lastPerDay[i-1]-1)
		}
	}
	return rets
}

func winRate(rets []float64) float64 {
	if len(rets) == 0 {
		return 0
	}
	wins := 0
	for _, r := range rets {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(rets))
}

func distinctDays(rows []*domain.PaperAccount) int {
	days := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		days[timeutil.DayKey(row.TS)] = struct{}{}
	}
	return len(days)
}

func historyLabel(minDays int) string {
	return fmt.Sprintf("history days >= %d", minDays)
}

func orderLabel(minTrades int) string {
	return fmt.Sprintf("paper fills >= %d", minTrades)
}

func emptyHistoryChecklist() []string {
	return []string{
		"Paper history is too thin; accumulate at least two weeks of runs first.",
		"Review fill reasons alongside stop-loss and take-profit logs.",
	}
}

func checklistFor(level string, plan domain.RiskPlan) []string {
	items := []string{
		"Confirm every live order manually; keep auto ordering off.",
		fmt.Sprintf("Cap single-trade risk at %.2f%% of the account.", plan.RiskPerTradePct),
		fmt.Sprintf("Stop new entries for the day after a %.2f%% intraday loss.", plan.DailyLossLimitPct),
		"Before entry: check score, stop level and news/event risk.",
		"Compare paper vs small-live performance weekly and recalibrate.",
	}
	if level != domain.LevelReady {
		items = append(items, "Stay paper-plus-probe only until readiness turns READY.")
	}
	return items
}
