// Package tuner recomputes scoring weights from realized outcomes.
// Each weighted feature gets an information-coefficient and a
// quantile-spread signal over recent candidate/outcome joins; deltas
// are clamped, applied additively and renormalized.
package tuner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/stats"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

const (
	// maxJoinedSamples caps the join window at the most recent rows.
	maxJoinedSamples = 400

	// minFeatureSamples / minDistinctValues gate per-feature updates.
	minFeatureSamples = 30
	minDistinctValues = 5

	// deltaGain converts the blended signal into a weight delta.
	deltaGain = 0.012

	// spreadScale rescales the clamped quantile spread onto [-1, 1].
	spreadScale = 0.05
)

// Config holds the tuner's gates and limits.
type Config struct {
	MaxDelta   float64 // per-feature delta clamp, default 0.03
	MinSamples int     // joined-sample gate, default 60
	WarmupDays int     // distinct outcome days gate, default 14
}

// DefaultConfig returns the production tuner configuration.
func DefaultConfig() Config {
	return Config{MaxDelta: 0.03, MinSamples: 60, WarmupDays: 14}
}

// Tuner derives new weight vectors from outcome feedback.
type Tuner struct {
	runs       storage.RunStore
	candidates storage.CandidateStore
	outcomes   storage.OutcomeStore
	weights    storage.WeightStore
	cfg        Config
}

// New creates a Tuner over the given stores.
func New(runs storage.RunStore, candidates storage.CandidateStore, outcomes storage.OutcomeStore, weights storage.WeightStore, cfg Config) *Tuner {
	if cfg.MaxDelta <= 0 {
		cfg.MaxDelta = 0.03
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 60
	}
	if cfg.WarmupDays <= 0 {
		cfg.WarmupDays = 14
	}
	return &Tuner{runs: runs, candidates: candidates, outcomes: outcomes, weights: weights, cfg: cfg}
}

// joinedRow is one candidate matched to its 1-day outcome.
type joinedRow struct {
	features map[string]float64
	ret      float64
}

// Tune applies the feedback update to base and activates the result.
// When a warmup or sample gate fails, base is returned unchanged with
// an OFF status and nothing is activated.
func (t *Tuner) Tune(ctx context.Context, ts time.Time, base domain.WeightVector) (domain.WeightVector, string, error) {
	days, err := t.distinctOutcomeDays(ctx)
	if err != nil {
		return base, "", err
	}
	if days < t.cfg.WarmupDays {
		return base, fmt.Sprintf("OFF(warmup<%dd)", t.cfg.WarmupDays), nil
	}

	rows, err := t.joinedSamples(ctx)
	if err != nil {
		return base, "", err
	}
	if len(rows) < t.cfg.MinSamples {
		return base, fmt.Sprintf("OFF(sample<%d)", t.cfg.MinSamples), nil
	}

	updated := base.Clone()
	for _, key := range sortedKeys(base) {
		feat, rets := pairedSamples(rows, key)
		if len(feat) < minFeatureSamples || distinct(feat) < minDistinctValues {
			continue
		}
		signal := featureSignal(feat, rets)
		delta := stats.Clamp(signal*deltaGain, -t.cfg.MaxDelta, t.cfg.MaxDelta)
		next := updated[key] + delta
		if next < 0 {
			next = 0
		}
		updated[key] = next
	}

	normalized, ok := updated.Normalized()
	if !ok {
		return base, "OFF(invalid-sum)", nil
	}
	if _, err := t.weights.Activate(ctx, ts, normalized); err != nil {
		return base, "", fmt.Errorf("activate weights: %w", err)
	}
	return normalized, "ON", nil
}

// featureSignal blends winsorized Spearman IC with the quantile-spread
// signal: 0.7*ic + 0.3*clamp(spread/0.05, -1, 1).
func featureSignal(feat, rets []float64) float64 {
	wFeat := stats.Winsorize(feat, 0.03, 0.97)
	wRet := stats.Winsorize(rets, 0.03, 0.97)
	ic := stats.Spearman(wFeat, wRet)

	qLow := stats.Quantile(wFeat, 0.2)
	qHigh := stats.Quantile(wFeat, 0.8)
	var lowRets, highRets []float64
	for i, f := range wFeat {
		if f <= qLow {
			lowRets = append(lowRets, wRet[i])
		}
		if f >= qHigh {
			highRets = append(highRets, wRet[i])
		}
	}
	spread := stats.Mean(highRets) - stats.Mean(lowRets)
	spreadSignal := stats.Clamp(spread/spreadScale, -1, 1)
	return 0.7*ic + 0.3*spreadSignal
}

// distinctOutcomeDays counts calendar days with at least one resolved
// 1-day outcome.
func (t *Tuner) distinctOutcomeDays(ctx context.Context) (int, error) {
	outcomes, err := t.outcomes.GetByHorizon(ctx, domain.Horizon1d, 0)
	if err != nil {
		return 0, fmt.Errorf("load 1d outcomes: %w", err)
	}
	if len(outcomes) == 0 {
		return 0, nil
	}
	runs, err := t.runs.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load runs: %w", err)
	}
	runDay := make(map[int64]string, len(runs))
	for _, r := range runs {
		runDay[r.RunID] = timeutil.DayKey(r.TS)
	}
	days := make(map[string]struct{})
	for _, o := range outcomes {
		if day, ok := runDay[o.RunID]; ok {
			days[day] = struct{}{}
		}
	}
	return len(days), nil
}

// joinedSamples joins the most recent 1-day outcomes to their candidate
// feature snapshots, newest runs first, capped at maxJoinedSamples.
func (t *Tuner) joinedSamples(ctx context.Context) ([]joinedRow, error) {
	outcomes, err := t.outcomes.GetByHorizon(ctx, domain.Horizon1d, maxJoinedSamples)
	if err != nil {
		return nil, fmt.Errorf("load 1d outcomes: %w", err)
	}
	var rows []joinedRow
	byRun := make(map[int64]map[string]*domain.Candidate)
	for _, o := range outcomes {
		cands, ok := byRun[o.RunID]
		if !ok {
			list, err := t.candidates.GetByRun(ctx, o.RunID)
			if err != nil {
				return nil, fmt.Errorf("load candidates for run %d: %w", o.RunID, err)
			}
			cands = make(map[string]*domain.Candidate, len(list))
			for _, c := range list {
				cands[c.Ticker] = c
			}
			byRun[o.RunID] = cands
		}
		c, ok := cands[o.Ticker]
		if !ok || c.Features == nil {
			continue
		}
		rows = append(rows, joinedRow{features: c.Features, ret: o.Ret})
	}
	return rows, nil
}

func pairedSamples(rows []joinedRow, key string) (feat, rets []float64) {
	for _, r := range rows {
		v, ok := r.features[key]
		if !ok {
			continue
		}
		feat = append(feat, v)
		rets = append(rets, r.ret)
	}
	return feat, rets
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}

func sortedKeys(w domain.WeightVector) []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
