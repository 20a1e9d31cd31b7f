package jobs

import (
	"fmt"
	"strings"
	"time"

	"krx-momentum-lab/internal/live"
	"krx-momentum-lab/internal/newsrisk"
	"krx-momentum-lab/internal/scoring"
	"krx-momentum-lab/internal/timeutil"
)

// ratio returns the fraction of top rows satisfying pred.
func ratio(top []scoring.Scored, pred func(scoring.Scored) bool) float64 {
	if len(top) == 0 {
		return 0
	}
	var n int
	for _, row := range top {
		if pred(row) {
			n++
		}
	}
	return float64(n) / float64(len(top))
}

func marketPhase(top []scoring.Scored) string {
	hot := ratio(top, func(r scoring.Scored) bool { return r.MoneyValueSurge >= 3.0 })
	flowPos := ratio(top, func(r scoring.Scored) bool { return r.FlowScore > 0 })
	breadthOK := ratio(top, func(r scoring.Scored) bool { return r.SectorBreadth >= 0.7 })
	rotationOK := ratio(top, func(r scoring.Scored) bool { return r.SectorRotation >= 0.25 })
	trendOK := ratio(top, func(r scoring.Scored) bool { return r.TrendStrength >= 0.01 })

	if hot >= 0.6 && flowPos >= 0.6 && (breadthOK >= 0.5 || rotationOK >= 0.5) && trendOK >= 0.5 {
		return "broad inflow expansion"
	}
	if hot >= 0.4 {
		return "selective inflow"
	}
	return "mixed / wait-and-see"
}

func timeframeHint(top []scoring.Scored) string {
	short := ratio(top, func(r scoring.Scored) bool { return r.ATRRegime >= 1.35 && r.RS5 > 0.03 })
	swing := ratio(top, func(r scoring.Scored) bool {
		return r.MomentumPersistence >= 0.55 && r.Drawdown20 > -0.1 && r.Efficiency8 >= 0.35
	})
	if short >= 0.5 {
		return "intraday to 1-4h focus"
	}
	if swing >= 0.5 {
		return "2-5 day swing watch"
	}
	return "intraday + next-day confirm"
}

func dominantSector(top []scoring.Scored) string {
	counts := map[string]int{}
	for _, row := range top {
		if row.Sector != "" && row.Sector != "UNKNOWN" {
			counts[row.Sector]++
		}
	}
	best, n := "", 0
	for sector, c := range counts {
		if c > n || (c == n && sector < best) {
			best, n = sector, c
		}
	}
	if n <= 1 {
		return "dispersed (weak sector concentration)"
	}
	return fmt.Sprintf("%s concentrated (%d/%d)", best, n, len(top))
}

func riskFlags(top []scoring.Scored) string {
	var negFlow, overheated []string
	for _, row := range top {
		if row.FlowScore < 0 && len(negFlow) < 3 {
			negFlow = append(negFlow, row.Ticker)
		}
		if (row.MoneyValueSurge >= 8.0 || row.ATRRegime >= 2.0) && len(overheated) < 3 {
			overheated = append(overheated, row.Ticker)
		}
	}
	var flags []string
	if len(negFlow) > 0 {
		flags = append(flags, fmt.Sprintf("flow against (%s)", strings.Join(negFlow, ",")))
	}
	if len(overheated) > 0 {
		flags = append(flags, fmt.Sprintf("overheated volatility (%s)", strings.Join(overheated, ",")))
	}
	if len(flags) == 0 {
		return "no pronounced warning signals"
	}
	return strings.Join(flags, ", ")
}

func candidateComment(row scoring.Scored) string {
	var signals []string
	switch {
	case row.MoneyValueSurge >= 5.0:
		signals = append(signals, "sharp value inflow")
	case row.MoneyValueSurge >= 2.0:
		signals = append(signals, "rising traded value")
	}
	switch {
	case row.FlowScore > 0.4:
		signals = append(signals, "supportive flow")
	case row.FlowScore < -0.2:
		signals = append(signals, "flow against")
	}
	if row.SectorBreadth >= 0.75 || row.SectorRotation >= 0.25 {
		signals = append(signals, "sector breadth/rotation confirms")
	}
	if row.RS5 > 0.05 && row.ATRRegime >= 1.2 {
		signals = append(signals, "short-term momentum expanding")
	}
	if row.Breakout20 > 0 && row.TrendStrength > 0.01 {
		signals = append(signals, "attempting prior-high breakout")
	}
	if row.Efficiency8 >= 0.45 {
		signals = append(signals, "efficient trend")
	}
	if len(signals) == 0 {
		signals = append(signals, "mixed neutral signals")
	}
	return strings.Join(signals, ", ")
}

func eventSummary(ctx *newsrisk.Context) []string {
	if ctx == nil {
		return nil
	}
	lines := []string{
		"Event/news risk",
		fmt.Sprintf("- tone: %s / score: %.1f/100 (sample %d)", ctx.Tone, ctx.RiskScore, ctx.SampleSize),
	}
	if len(ctx.EventsToday) > 0 {
		events := ctx.EventsToday
		if len(events) > 3 {
			events = events[:3]
		}
		lines = append(lines, fmt.Sprintf("- high-impact today: %s", strings.Join(events, ", ")))
	}
	if len(ctx.Headlines) > 0 {
		head := ctx.Headlines[0]
		if len(head) > 90 {
			head = head[:90]
		}
		lines = append(lines, fmt.Sprintf("- headline: %s", head))
	}
	lines = append(lines, "")
	return lines
}

func liveSummaryLine(summary *live.Summary) []string {
	if summary == nil {
		return nil
	}
	return []string{
		fmt.Sprintf("Live: %s (submitted %d, failed %d)",
			summary.Status, summary.OrdersSubmitted, summary.OrdersFailed),
		"",
	}
}

func formatHourlyMessage(ts time.Time, top []scoring.Scored, eventCtx *newsrisk.Context, liveSummary *live.Summary) string {
	header := fmt.Sprintf("[KST %s] momentum radar", ts.In(timeutil.KST).Format("2006-01-02 15:00"))
	if len(top) == 0 {
		lines := []string{header}
		lines = append(lines, eventSummary(eventCtx)...)
		lines = append(lines, liveSummaryLine(liveSummary)...)
		lines = append(lines, "no candidates (nothing passed the filters)")
		return strings.Join(lines, "\n")
	}

	lines := []string{header}
	lines = append(lines, eventSummary(eventCtx)...)
	lines = append(lines, liveSummaryLine(liveSummary)...)
	lines = append(lines,
		"Read",
		fmt.Sprintf("- phase: %s", marketPhase(top)),
		fmt.Sprintf("- sector: %s", dominantSector(top)),
		fmt.Sprintf("- frame: %s", timeframeHint(top)),
		fmt.Sprintf("- risk: %s", riskFlags(top)),
		"",
		"Candidates (watch only)",
	)
	for i, row := range top {
		lines = append(lines,
			fmt.Sprintf("%d) %s / %s | score %.2f", i+1, row.Ticker, row.Name, row.Score),
			fmt.Sprintf("- signals: %s", candidateComment(row)),
			fmt.Sprintf("- levels: value %.2fx, volume %.2fx, flow %.2f, atr %.2f",
				row.MoneyValueSurge, row.VolumeSurge, row.FlowScore, row.ATRRegime),
			fmt.Sprintf("- momentum: rs5 %.2f%%, persist %.2f, breadth %.2f, rotation %.3f",
				row.RS5*100, row.MomentumPersistence, row.SectorBreadth, row.SectorRotation),
			fmt.Sprintf("- structure: trend %.3f, breakout %.2f%%, eff %.2f, range-pos %.2f",
				row.TrendStrength, row.Breakout20*100, row.Efficiency8, row.RangePosition20),
		)
	}
	lines = append(lines, "", "Automated research output, not investment advice.")
	return strings.Join(lines, "\n")
}

func formatNightlyMessage(ts time.Time, stats *NightlyStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[KST %s] nightly report\n", ts.In(timeutil.KST).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "avg return (1d): %.3f%%\n", stats.AvgRet1d*100)
	fmt.Fprintf(&b, "win rate (1d): %.1f%%\n", stats.WinRate1d*100)
	fmt.Fprintf(&b, "sample: %d\n", stats.N)
	fmt.Fprintf(&b, "factor top: %s\n", orNA(stats.FactorTop))
	fmt.Fprintf(&b, "factor bottom: %s\n", orNA(stats.FactorBottom))
	fmt.Fprintf(&b, "regime: %s (%s, %s)\n", stats.Regime, stats.RegimeStatus, orNA(stats.RegimeNote))
	fmt.Fprintf(&b, "entry threshold: %.1f, position scale: %.2f\n", stats.Threshold, stats.PosScale)
	fmt.Fprintf(&b, "paper NAV: %.0f KRW (day %+.0f)\n", stats.PaperNAV, stats.PaperPnLDay)
	fmt.Fprintf(&b, "paper fills today: %d\n", stats.PaperTradesToday)
	fmt.Fprintf(&b, "strategy lab: %s\n", orNA(stats.LabSummary))
	if stats.Training != nil {
		fmt.Fprintf(&b, "training: %s score=%.1f ready=%t (risk %.2f%%/trade, %.2f%%/day, %d new)\n",
			stats.Training.Level, stats.Training.Score, stats.Training.Ready,
			stats.Training.RiskPlan.RiskPerTradePct, stats.Training.RiskPlan.DailyLossLimitPct,
			stats.Training.RiskPlan.MaxNewPositions)
	}
	fmt.Fprintf(&b, "weight update: %s", orNA(stats.WeightStatus))
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
