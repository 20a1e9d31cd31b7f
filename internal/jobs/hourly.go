package jobs

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/features"
	"krx-momentum-lab/internal/live"
	"krx-momentum-lab/internal/newsrisk"
	"krx-momentum-lab/internal/observability"
	"krx-momentum-lab/internal/paper"
	"krx-momentum-lab/internal/provider"
	"krx-momentum-lab/internal/scoring"
	"krx-momentum-lab/internal/timeutil"
)

// Hourly runs one scan cycle. Outside the KRX session calendar or the
// configured run window it logs and returns nil.
func (j *Jobs) Hourly(ctx context.Context) error {
	now := j.now()
	if !timeutil.IsOpenDay(now) {
		j.logger.Printf("hourly: market closed on %s, skip", timeutil.DayKey(now))
		return nil
	}
	inWindow, err := timeutil.WithinWindow(now, j.settings.RunHourlyStart, j.settings.RunHourlyEnd)
	if err != nil {
		return err
	}
	if !inWindow {
		j.logger.Printf("hourly: outside run window, skip")
		return nil
	}

	started := time.Now()
	err = j.runHourly(ctx, now)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordScan(status, time.Since(started))
	return err
}

func (j *Jobs) runHourly(ctx context.Context, now time.Time) error {
	s := j.settings

	universe, err := j.provider.Universe(ctx, s.Universe)
	if err != nil {
		return fmt.Errorf("hourly: universe: %w", err)
	}
	tickers := make([]string, 0, len(universe))
	names := make(map[string]string, len(universe))
	for _, u := range universe {
		tickers = append(tickers, u.Ticker)
		names[u.Ticker] = u.Name
	}
	observability.DefaultMetrics.UniverseSize.Set(float64(len(tickers)))

	// Dial the realtime stream now so it accumulates ticks while the
	// slower REST fetches below run. A dead feed is not fatal.
	var quotes provider.QuoteSource
	if j.quoteDial != nil {
		if q, err := j.quoteDial(ctx, tickers); err != nil {
			j.logger.Printf("hourly: quote feed unavailable: %v", err)
		} else {
			quotes = q
		}
	}

	ohlcv, err := j.provider.LatestOHLCV(ctx, tickers, "60m")
	if err != nil {
		return fmt.Errorf("hourly: ohlcv: %w", err)
	}
	flow, err := j.provider.InvestorFlow(ctx, tickers, 20)
	if err != nil {
		return fmt.Errorf("hourly: investor flow: %w", err)
	}
	sectorMap, err := j.provider.SectorMap(ctx, tickers)
	if err != nil {
		return fmt.Errorf("hourly: sector map: %w", err)
	}
	buzz := map[string]float64{}
	if j.buzz != nil {
		if b, err := j.buzz.BuzzScores(ctx, tickers); err != nil {
			j.logger.Printf("hourly: buzz scores unavailable: %v", err)
		} else {
			buzz = b
		}
	}

	state, err := j.activeState(ctx)
	if err != nil {
		return fmt.Errorf("hourly: strategy state: %w", err)
	}
	var eventCtx *newsrisk.Context
	if j.news != nil {
		eventCtx = j.news.Build(ctx, now)
	}

	runID, err := j.stores.Runs.Insert(ctx, &domain.Run{
		TS:       now,
		Provider: s.DataProvider,
		Universe: s.Universe,
		TopN:     s.TopN,
		Note:     "hourly-scan",
	})
	if err != nil {
		return fmt.Errorf("hourly: insert run: %w", err)
	}

	snapshotPrices, err := j.persistSnapshots(ctx, runID, now, ohlcv)
	if err != nil {
		return fmt.Errorf("hourly: price snapshots: %w", err)
	}
	if quotes != nil {
		for ticker, price := range quotes.Prices() {
			if _, ok := snapshotPrices[ticker]; ok && price > 0 {
				snapshotPrices[ticker] = price
			}
		}
		if err := quotes.Close(); err != nil {
			j.logger.Printf("hourly: quote feed close: %v", err)
		}
	}

	var bars []domain.Bar
	for _, series := range ohlcv {
		bars = append(bars, series...)
	}
	feats := features.Build(features.Input{
		Bars:      bars,
		SectorMap: sectorMap,
		Names:     names,
		FlowMap:   flow,
		BuzzMap:   buzz,
	})
	weights, err := j.activeWeights(ctx)
	if err != nil {
		return fmt.Errorf("hourly: weights: %w", err)
	}

	if len(feats) == 0 {
		return j.finishDegraded(ctx, runID, now, state, snapshotPrices, eventCtx)
	}

	scored := scoring.Score(feats, weights)
	market := make([]domain.MarketRow, 0, len(scored))
	for _, row := range scored {
		price := row.Price
		if p, ok := snapshotPrices[row.Ticker]; ok && p > 0 {
			price = p
		}
		market = append(market, domain.MarketRow{
			Ticker:     row.Ticker,
			Name:       nameOr(names, row.Ticker),
			Price:      price,
			Ret1:       row.Return1h,
			Drawdown20: row.Drawdown20,
			Flow:       row.FlowScore,
			Score:      row.Score,
		})
	}

	var ranked []scoring.Scored
	for _, row := range scored {
		if row.ValueLatest >= s.MinValueKRW && math.Abs(row.Return1h) <= s.MaxAbsReturn1h {
			ranked = append(ranked, row)
		}
	}
	observability.DefaultMetrics.EligibleTickers.Set(float64(len(ranked)))

	top := ranked
	if len(top) > s.TopN {
		top = top[:s.TopN]
	}
	cands := make([]*domain.Candidate, 0, len(top))
	for _, row := range top {
		cands = append(cands, &domain.Candidate{
			RunID:     runID,
			Ticker:    row.Ticker,
			Name:      nameOr(names, row.Ticker),
			Score:     row.Score,
			Price:     row.Price,
			Features:  row.Snapshot(),
			Rationale: scoring.Rationale(row.FeatureRow),
		})
	}
	if len(cands) > 0 {
		if err := j.stores.Candidates.InsertBulk(ctx, cands); err != nil {
			return fmt.Errorf("hourly: insert candidates: %w", err)
		}
		observability.DefaultMetrics.CandidatesScored.Add(float64(len(cands)))
	}

	noteParts := []string{"hourly-scan"}
	if len(ranked) == 0 {
		noteParts = append(noteParts, "no-eligible")
	}
	noteParts = append(noteParts, fmt.Sprintf("regime=%s", state.Regime))

	if s.PaperEnable {
		summary, err := j.runPaper(ctx, runID, now, state, cands, market, snapshotPrices)
		if err != nil {
			return fmt.Errorf("hourly: paper: %w", err)
		}
		noteParts = append(noteParts, fmt.Sprintf("paper_orders=%d nav=%.2f", summary.Orders, summary.NAV))
		observability.DefaultMetrics.PaperNAV.Set(summary.NAV)
	}

	var liveSummary *live.Summary
	if s.Live.Enable {
		liveSummary, err = j.executor.Execute(ctx, runID, now, cands, market, state.EntryScoreThreshold)
		if err != nil {
			return fmt.Errorf("hourly: live: %w", err)
		}
		noteParts = append(noteParts, fmt.Sprintf("live=%s live_sub=%d live_fail=%d",
			liveSummary.Status, liveSummary.OrdersSubmitted, liveSummary.OrdersFailed))
		observability.DefaultMetrics.LiveRunStatus.WithLabelValues(liveSummary.Status).Inc()
		observability.DefaultMetrics.LiveTotalAsset.Set(liveSummary.TotalAsset)
	}

	if err := j.stores.Runs.UpdateNote(ctx, runID, strings.Join(noteParts, " ")); err != nil {
		return fmt.Errorf("hourly: update run note: %w", err)
	}

	j.notifier.Send(ctx, formatHourlyMessage(now, top, eventCtx, liveSummary))
	j.logger.Printf("hourly: run done: run_id=%d candidates=%d", runID, len(cands))
	return nil
}

// finishDegraded handles the no-feature-data scan: execution layers
// still run with empty entries so exit rules and daily snapshots fire.
func (j *Jobs) finishDegraded(
	ctx context.Context,
	runID int64,
	now time.Time,
	state *domain.StrategyState,
	snapshotPrices map[string]float64,
	eventCtx *newsrisk.Context,
) error {
	note := "hourly-scan:no-feature-data"
	if j.settings.PaperEnable {
		summary, err := j.runPaper(ctx, runID, now, state, nil, nil, snapshotPrices)
		if err != nil {
			return fmt.Errorf("hourly: paper: %w", err)
		}
		note += fmt.Sprintf(" paper_orders=%d nav=%.2f", summary.Orders, summary.NAV)
	}
	var liveSummary *live.Summary
	if j.settings.Live.Enable {
		var err error
		liveSummary, err = j.executor.Execute(ctx, runID, now, nil, nil, state.EntryScoreThreshold)
		if err != nil {
			return fmt.Errorf("hourly: live: %w", err)
		}
		note += fmt.Sprintf(" live=%s live_sub=%d live_fail=%d",
			liveSummary.Status, liveSummary.OrdersSubmitted, liveSummary.OrdersFailed)
	}
	if err := j.stores.Runs.UpdateNote(ctx, runID, note); err != nil {
		return fmt.Errorf("hourly: update run note: %w", err)
	}
	j.notifier.Send(ctx, formatHourlyMessage(now, nil, eventCtx, liveSummary))
	j.logger.Printf("hourly: run done: run_id=%d candidates=0 (no feature data)", runID)
	return nil
}

// runPaper simulates one cycle with the regime's position scaling and
// entry threshold applied over the configured baseline.
func (j *Jobs) runPaper(
	ctx context.Context,
	runID int64,
	now time.Time,
	state *domain.StrategyState,
	ranked []*domain.Candidate,
	market []domain.MarketRow,
	fallbackPrices map[string]float64,
) (*paper.Summary, error) {
	cfg := j.settings.Paper
	cfg.MaxPositions = maxInt(1, int(math.Round(float64(cfg.MaxPositions)*state.PositionScale)))
	cfg.EntryScoreThreshold = state.EntryScoreThreshold
	sim := paper.New(j.stores.PaperAccounts, j.stores.PaperPositions, j.stores.PaperOrders, cfg)
	return sim.Run(ctx, runID, now, ranked, market, fallbackPrices)
}

// persistSnapshots stores the latest close per ticker for outcome
// attribution and returns the price map for execution fallbacks.
func (j *Jobs) persistSnapshots(ctx context.Context, runID int64, now time.Time, ohlcv map[string][]domain.Bar) (map[string]float64, error) {
	prices := make(map[string]float64, len(ohlcv))
	snaps := make([]*domain.PriceSnapshot, 0, len(ohlcv))
	for ticker, series := range ohlcv {
		if len(series) == 0 {
			continue
		}
		price := series[len(series)-1].Close
		prices[ticker] = price
		snaps = append(snaps, &domain.PriceSnapshot{
			RunID:  runID,
			TS:     now,
			Ticker: ticker,
			Price:  price,
		})
	}
	if len(snaps) == 0 {
		return prices, nil
	}
	sort.Slice(snaps, func(i, k int) bool { return snaps[i].Ticker < snaps[k].Ticker })
	return prices, j.stores.PriceSnapshots.UpsertBulk(ctx, snaps)
}

func nameOr(names map[string]string, ticker string) string {
	if name, ok := names[ticker]; ok && name != "" {
		return name
	}
	return ticker
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
