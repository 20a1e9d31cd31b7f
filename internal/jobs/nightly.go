package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/observability"
	"krx-momentum-lab/internal/regime"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

const nightlyStatsLookback = 7 * 24 * time.Hour

// NightlyStats is the rolled-up report the nightly batch sends.
type NightlyStats struct {
	OutcomesFilled int

	AvgRet1d  float64
	WinRate1d float64
	N         int

	FactorTop    string
	FactorBottom string

	PaperNAV         float64
	PaperCash        float64
	PaperPnLDay      float64
	PaperTradesToday int

	WeightStatus string
	Regime       domain.Regime
	RegimeStatus string
	RegimeNote   string
	Threshold    float64
	PosScale     float64

	LabSummary string

	Training *domain.TrainingReport
}

// Nightly runs the feedback batch: attribution, tuning, diagnostics,
// regime decision, strategy lab and the training report.
func (j *Jobs) Nightly(ctx context.Context) error {
	now := j.now()
	stats := &NightlyStats{}

	filled, err := j.Attributor().Fill(ctx, nil)
	if err != nil {
		return fmt.Errorf("nightly: fill outcomes: %w", err)
	}
	stats.OutcomesFilled = filled

	base, err := j.activeWeights(ctx)
	if err != nil {
		return fmt.Errorf("nightly: weights: %w", err)
	}
	tuned, weightStatus, err := j.tuner.Tune(ctx, now, base)
	if err != nil {
		return fmt.Errorf("nightly: tune: %w", err)
	}
	stats.WeightStatus = weightStatus
	observability.DefaultMetrics.TunerRunsTotal.WithLabelValues(weightStatus).Inc()

	if err := j.rollingOutcomeStats(ctx, now, stats); err != nil {
		return fmt.Errorf("nightly: outcome stats: %w", err)
	}

	diag, err := j.tuner.Diagnose(ctx, now, tuned)
	if err != nil {
		return fmt.Errorf("nightly: diagnostics: %w", err)
	}
	stats.FactorTop, stats.FactorBottom = diag.Top, diag.Bottom
	if diag.Status != "ON" {
		stats.FactorTop, stats.FactorBottom = diag.Status, diag.Status
	}

	if err := j.paperStats(ctx, now, stats); err != nil {
		return fmt.Errorf("nightly: paper stats: %w", err)
	}

	stats.LabSummary, err = j.labSummary(ctx, now)
	if err != nil {
		return fmt.Errorf("nightly: strategy lab: %w", err)
	}

	state, regimeStatus, err := j.regime.Apply(ctx, now, regime.Stats{
		NTrades:     stats.N,
		WinRate:     stats.WinRate1d,
		AvgRet:      stats.AvgRet1d,
		PaperPnLDay: stats.PaperPnLDay,
	})
	if err != nil {
		return fmt.Errorf("nightly: regime: %w", err)
	}
	stats.Regime = state.Regime
	stats.RegimeStatus = regimeStatus
	stats.RegimeNote = state.Note
	stats.Threshold = state.EntryScoreThreshold
	stats.PosScale = state.PositionScale
	observability.DefaultMetrics.RegimeChangesTotal.WithLabelValues(string(state.Regime)).Inc()

	report, err := j.coach.BuildReport(ctx, now, "nightly")
	if err != nil {
		return fmt.Errorf("nightly: training report: %w", err)
	}
	report.Note = "nightly-summary"
	if _, err := j.stores.TrainingReports.Append(ctx, report); err != nil {
		return fmt.Errorf("nightly: save training report: %w", err)
	}
	stats.Training = report

	j.notifier.Send(ctx, formatNightlyMessage(now, stats))
	observability.DefaultMetrics.LastSuccessfulNightly.Set(float64(time.Now().Unix()))
	j.logger.Printf("nightly: run done: outcomes upsert=%d", filled)
	return nil
}

// rollingOutcomeStats fills the trailing-week 1d outcome aggregates.
func (j *Jobs) rollingOutcomeStats(ctx context.Context, now time.Time, stats *NightlyStats) error {
	runs, err := j.stores.Runs.GetSince(ctx, now.Add(-nightlyStatsLookback))
	if err != nil {
		return err
	}
	inWindow := make(map[int64]bool, len(runs))
	for _, r := range runs {
		inWindow[r.RunID] = true
	}
	outcomes, err := j.stores.Outcomes.GetByHorizon(ctx, domain.Horizon1d, 0)
	if err != nil {
		return err
	}
	var sum float64
	var wins, n int
	for _, o := range outcomes {
		if !inWindow[o.RunID] {
			continue
		}
		sum += o.Ret
		if o.Ret > 0 {
			wins++
		}
		n++
	}
	if n > 0 {
		stats.AvgRet1d = sum / float64(n)
		stats.WinRate1d = float64(wins) / float64(n)
	}
	stats.N = n
	return nil
}

// paperStats fills the ledger snapshot: latest NAV, day P&L against the
// previous snapshot, and today's fill count.
func (j *Jobs) paperStats(ctx context.Context, now time.Time, stats *NightlyStats) error {
	latest, err := j.stores.PaperAccounts.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	stats.PaperNAV = latest.NAV
	stats.PaperCash = latest.Cash

	prev, err := j.stores.PaperAccounts.Previous(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		stats.PaperPnLDay = 0
	case err != nil:
		return err
	default:
		stats.PaperPnLDay = latest.NAV - prev.NAV
	}

	trades, err := j.stores.PaperOrders.CountByDay(ctx, timeutil.DayKey(now))
	if err != nil {
		return err
	}
	stats.PaperTradesToday = trades
	return nil
}

// labSummary runs or recalls the grid search depending on the toggle.
func (j *Jobs) labSummary(ctx context.Context, now time.Time) (string, error) {
	if j.settings.StrategyLabEnable {
		result, err := j.lab.Search(ctx, now)
		if err != nil {
			return "", err
		}
		observability.DefaultMetrics.LabSearchesTotal.WithLabelValues(result.Status).Inc()
		return labResultSummary(result.Status, result.Best), nil
	}
	best, err := j.stores.Experiments.LoadActive(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return "N/A", nil
	}
	if err != nil {
		return "", err
	}
	return labResultSummary("ON", best), nil
}

func labResultSummary(status string, best *domain.StrategyExperiment) string {
	if best == nil {
		return status
	}
	return fmt.Sprintf("%s thr=%.0f pos=%d avg=%.3f%% win=%.0f%% n=%d",
		status, best.Params.EntryScoreThreshold, best.Params.MaxPositions,
		best.Metrics.AvgRet*100, best.Metrics.WinRate*100, best.Metrics.NRuns)
}
