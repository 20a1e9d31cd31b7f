// Package lab grid-searches entry threshold and position count over
// historical runs and activates the best-scoring combination.
package lab

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/stats"
	"krx-momentum-lab/internal/storage"
)

var (
	gridThresholds   = []float64{48, 52, 55, 58, 62}
	gridMaxPositions = []int{1, 2, 3, 4}
)

// DefaultMinRuns is the qualifying run-sample floor per combination.
const DefaultMinRuns = 25

// Result is the outcome of one grid search.
type Result struct {
	Status string
	Best   *domain.StrategyExperiment
}

// Lab runs the grid search against stored runs and outcomes.
type Lab struct {
	runs        storage.RunStore
	candidates  storage.CandidateStore
	outcomes    storage.OutcomeStore
	experiments storage.ExperimentStore
	minRuns     int
}

// New creates a Lab. minRuns <= 0 falls back to DefaultMinRuns.
func New(runs storage.RunStore, candidates storage.CandidateStore, outcomes storage.OutcomeStore, experiments storage.ExperimentStore, minRuns int) *Lab {
	if minRuns <= 0 {
		minRuns = DefaultMinRuns
	}
	return &Lab{runs: runs, candidates: candidates, outcomes: outcomes, experiments: experiments, minRuns: minRuns}
}

// runData is one run's scored candidates joined with 1d returns.
type runData struct {
	candidates []*domain.Candidate // score DESC
	rets       map[string]float64  // ticker -> 1d return
}

// Search evaluates the full grid and activates the best combination.
// Combinations with fewer than minRuns qualifying run-samples are
// discarded; when none qualify the search is a no-op with an OFF
// status.
func (l *Lab) Search(ctx context.Context, ts time.Time) (*Result, error) {
	data, err := l.loadRunData(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &Result{Status: "OFF(no-data)"}, nil
	}

	var best *domain.StrategyExperiment
	for _, threshold := range gridThresholds {
		for _, maxPos := range gridMaxPositions {
			samples := runSamples(data, threshold, maxPos)
			if len(samples) < l.minRuns {
				continue
			}
			m := metricsOf(samples)
			obj := objective(m)
			if best == nil || obj > best.Objective {
				best = &domain.StrategyExperiment{
					TS:        ts,
					Params:    domain.ExperimentParams{EntryScoreThreshold: threshold, MaxPositions: maxPos},
					Metrics:   m,
					Objective: obj,
				}
			}
		}
	}
	if best == nil {
		return &Result{Status: fmt.Sprintf("OFF(sample<%d)", l.minRuns)}, nil
	}

	id, err := l.experiments.Activate(ctx, best)
	if err != nil {
		return nil, fmt.Errorf("activate experiment: %w", err)
	}
	best.ExpID = id
	best.Active = true
	return &Result{Status: "ON", Best: best}, nil
}

// runSamples produces one return sample per run: the mean 1d return of
// the top maxPos candidates at or above threshold that have a resolved
// outcome.
func runSamples(data []runData, threshold float64, maxPos int) []float64 {
	var samples []float64
	for _, rd := range data {
		var picked []float64
		for _, c := range rd.candidates {
			if c.Score < threshold {
				continue
			}
			ret, ok := rd.rets[c.Ticker]
			if !ok {
				continue
			}
			picked = append(picked, ret)
			if len(picked) == maxPos {
				break
			}
		}
		if len(picked) > 0 {
			samples = append(samples, stats.Mean(picked))
		}
	}
	return samples
}

func metricsOf(samples []float64) domain.ExperimentMetrics {
	wins := 0
	for _, r := range samples {
		if r > 0 {
			wins++
		}
	}
	return domain.ExperimentMetrics{
		NRuns:   len(samples),
		AvgRet:  stats.Mean(samples),
		WinRate: float64(wins) / float64(len(samples)),
		Vol:     stats.StdPop(samples),
	}
}

func objective(m domain.ExperimentMetrics) float64 {
	return 0.70*m.AvgRet + 0.25*(m.WinRate-0.5) - 0.20*math.Max(0, m.Vol-0.008)
}

// loadRunData joins every run's candidates with its 1d outcomes.
// Runs without any resolved 1d outcome are skipped.
func (l *Lab) loadRunData(ctx context.Context) ([]runData, error) {
	outcomes, err := l.outcomes.GetByHorizon(ctx, domain.Horizon1d, 0)
	if err != nil {
		return nil, fmt.Errorf("load 1d outcomes: %w", err)
	}
	retsByRun := make(map[int64]map[string]float64)
	for _, o := range outcomes {
		m, ok := retsByRun[o.RunID]
		if !ok {
			m = make(map[string]float64)
			retsByRun[o.RunID] = m
		}
		m[o.Ticker] = o.Ret
	}

	runIDs := make([]int64, 0, len(retsByRun))
	for id := range retsByRun {
		runIDs = append(runIDs, id)
	}
	sort.Slice(runIDs, func(i, j int) bool { return runIDs[i] < runIDs[j] })

	var data []runData
	for _, id := range runIDs {
		cands, err := l.candidates.GetByRun(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load candidates for run %d: %w", id, err)
		}
		if len(cands) == 0 {
			continue
		}
		data = append(data, runData{candidates: cands, rets: retsByRun[id]})
	}
	return data, nil
}
