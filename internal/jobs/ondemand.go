package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/lab"
	"krx-momentum-lab/internal/observability"
	"krx-momentum-lab/internal/timeutil"
)

// TrainingStatus builds, persists and notifies an on-demand readiness
// report outside the nightly schedule.
func (j *Jobs) TrainingStatus(ctx context.Context) (*domain.TrainingReport, error) {
	now := j.now()
	report, err := j.coach.BuildReport(ctx, now, "manual")
	if err != nil {
		return nil, fmt.Errorf("training status: %w", err)
	}
	report.Note = "manual-review"
	if _, err := j.stores.TrainingReports.Append(ctx, report); err != nil {
		return nil, fmt.Errorf("training status: save report: %w", err)
	}
	j.notifier.Send(ctx, formatTrainingMessage(now, report))
	return report, nil
}

// LabSearch runs the parameter grid search once and reports the best
// row. The search activates its winner as a side effect.
func (j *Jobs) LabSearch(ctx context.Context) (*lab.Result, string, error) {
	now := j.now()
	result, err := j.lab.Search(ctx, now)
	if err != nil {
		return nil, "", fmt.Errorf("lab search: %w", err)
	}
	observability.DefaultMetrics.LabSearchesTotal.WithLabelValues(result.Status).Inc()
	summary := labResultSummary(result.Status, result.Best)
	j.notifier.Send(ctx, fmt.Sprintf("[KST %s] strategy lab\n- %s",
		now.In(timeutil.KST).Format("2006-01-02 15:04"), summary))
	return result, summary, nil
}

func formatTrainingMessage(ts time.Time, r *domain.TrainingReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[KST %s] training report\n", ts.In(timeutil.KST).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "level: %s (score %.1f, ready=%t)\n", r.Level, r.Score, r.Ready)
	fmt.Fprintf(&b, "history: %d days, %d fills\n", r.Metrics.HistoryDays, r.Metrics.OrderLookback)
	fmt.Fprintf(&b, "return: %+.2f%% (max drawdown %.2f%%)\n",
		r.Metrics.CumulativeReturn*100, r.Metrics.MaxDrawdown*100)
	fmt.Fprintf(&b, "daily: win %.1f%%, mean %+.3f%%, std %.3f%%\n",
		r.Metrics.DailyWinRate*100, r.Metrics.DailyRetMean*100, r.Metrics.DailyRetStd*100)
	fmt.Fprintf(&b, "signal: n=%d, avg(1d) %+.3f%%, win(1d) %.1f%%\n",
		r.Metrics.OutcomeN, r.Metrics.OutcomeAvgRet1d*100, r.Metrics.OutcomeWinRate1d*100)
	b.WriteString("gates:\n")
	for _, g := range r.Gates {
		mark := "FAIL"
		if g.Pass {
			mark = "PASS"
		}
		fmt.Fprintf(&b, "- [%s] %s (%.2f / %.2f)\n", mark, g.Label, g.Value, g.Target)
	}
	fmt.Fprintf(&b, "risk plan: %s, %.2f%%/trade, %.2f%%/day, %d new positions\n",
		r.RiskPlan.Mode, r.RiskPlan.RiskPerTradePct, r.RiskPlan.DailyLossLimitPct, r.RiskPlan.MaxNewPositions)
	if len(r.Checklist) > 0 {
		b.WriteString("next:\n")
		for _, item := range r.Checklist {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
