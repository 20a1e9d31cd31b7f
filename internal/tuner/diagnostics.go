package tuner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/stats"
)

const (
	diagLookbackDays = 21
	diagMaxRows      = 1400
	diagMinRows      = 40
)

// FactorStat summarizes one feature's recent predictive quality.
type FactorStat struct {
	Feature   string  `json:"feature"`
	IC        float64 `json:"ic"`
	Spread    float64 `json:"spread"`
	Composite float64 `json:"composite"`
	N         int     `json:"n"`
}

// Diagnostics reports per-factor quality over the recent window.
type Diagnostics struct {
	Status  string       `json:"status"`
	Rows    int          `json:"rows"`
	Factors []FactorStat `json:"factors,omitempty"`
	Top     string       `json:"top_factor,omitempty"`
	Bottom  string       `json:"bottom_factor,omitempty"`
}

// Diagnose computes factor diagnostics from candidate/outcome joins in
// the trailing window. Returns an OFF diagnostics when data is thin.
func (t *Tuner) Diagnose(ctx context.Context, now time.Time, weights domain.WeightVector) (*Diagnostics, error) {
	rows, err := t.diagnosticRows(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(rows) < diagMinRows {
		return &Diagnostics{Status: fmt.Sprintf("OFF(sample<%d)", diagMinRows), Rows: len(rows)}, nil
	}

	out := &Diagnostics{Status: "ON", Rows: len(rows)}
	for _, key := range sortedKeys(weights) {
		feat, rets := pairedSamples(rows, key)
		if len(feat) < minFeatureSamples || distinct(feat) < minDistinctValues {
			continue
		}
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
		composite := 0.65*ic + 0.35*stats.Clamp(spread, -0.1, 0.1)/0.1
		out.Factors = append(out.Factors, FactorStat{
			Feature: key, IC: ic, Spread: spread, Composite: composite, N: len(feat),
		})
	}
	if len(out.Factors) == 0 {
		out.Status = "OFF(no-factor)"
		return out, nil
	}
	sort.Slice(out.Factors, func(i, j int) bool {
		if out.Factors[i].Composite != out.Factors[j].Composite {
			return out.Factors[i].Composite > out.Factors[j].Composite
		}
		return out.Factors[i].Feature < out.Factors[j].Feature
	})
	out.Top = out.Factors[0].Feature
	out.Bottom = out.Factors[len(out.Factors)-1].Feature
	return out, nil
}

// diagnosticRows joins the trailing window's 1-day outcomes to their
// candidate snapshots, newest first, capped at diagMaxRows.
func (t *Tuner) diagnosticRows(ctx context.Context, now time.Time) ([]joinedRow, error) {
	outcomes, err := t.outcomes.GetByHorizon(ctx, domain.Horizon1d, diagMaxRows)
	if err != nil {
		return nil, fmt.Errorf("load 1d outcomes: %w", err)
	}
	runs, err := t.runs.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	cutoff := now.AddDate(0, 0, -diagLookbackDays)
	inWindow := make(map[int64]bool, len(runs))
	for _, r := range runs {
		inWindow[r.RunID] = !r.TS.Before(cutoff)
	}

	var rows []joinedRow
	byRun := make(map[int64]map[string]*domain.Candidate)
	for _, o := range outcomes {
		if !inWindow[o.RunID] {
			continue
		}
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
