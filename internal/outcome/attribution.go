// Package outcome matches historical candidates to later price
// snapshots and records realized forward returns per horizon.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/observability"
	"krx-momentum-lab/internal/storage"
)

// tolerance below which an existing outcome is considered unchanged and
// the rewrite is skipped.
const tolerance = 1e-12

// Attributor fills outcomes from candidate history and price snapshots.
type Attributor struct {
	runs       storage.RunStore
	candidates storage.CandidateStore
	outcomes   storage.OutcomeStore
	snapshots  storage.PriceSnapshotStore
	now        func() time.Time
}

// NewAttributor creates an Attributor over the given stores.
// now may be nil, defaulting to time.Now.
func NewAttributor(
	runs storage.RunStore,
	candidates storage.CandidateStore,
	outcomes storage.OutcomeStore,
	snapshots storage.PriceSnapshotStore,
	now func() time.Time,
) *Attributor {
	if now == nil {
		now = time.Now
	}
	return &Attributor{
		runs:       runs,
		candidates: candidates,
		outcomes:   outcomes,
		snapshots:  snapshots,
		now:        now,
	}
}

// Fill resolves every eligible (run, candidate, horizon) triple and
// upserts outcomes. fallbackPrices supplies a latest price per ticker
// for candidates with no later snapshot; pairs resolvable neither way
// are skipped. Returns the number of rows written. A second call over
// unchanged data writes nothing.
func (a *Attributor) Fill(ctx context.Context, fallbackPrices map[string]float64) (int, error) {
	runs, err := a.runs.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load runs: %w", err)
	}
	now := a.now()

	written := 0
	for _, run := range runs {
		cands, err := a.candidates.GetByRun(ctx, run.RunID)
		if err != nil {
			return written, fmt.Errorf("load candidates for run %d: %w", run.RunID, err)
		}
		for _, cand := range cands {
			if cand.Price <= 0 {
				continue
			}
			for _, horizon := range domain.Horizons {
				if now.Sub(run.TS) < horizon.Duration() {
					continue
				}
				later, ok, err := a.laterPrice(ctx, cand.Ticker, run.TS.Add(horizon.Duration()), fallbackPrices)
				if err != nil {
					return written, err
				}
				if !ok {
					continue
				}
				o := &domain.Outcome{
					RunID:      run.RunID,
					Ticker:     cand.Ticker,
					Horizon:    horizon,
					Ret:        later/cand.Price - 1,
					PriceThen:  cand.Price,
					PriceLater: later,
				}
				unchanged, err := a.unchanged(ctx, o)
				if err != nil {
					return written, err
				}
				if unchanged {
					continue
				}
				if err := a.outcomes.Upsert(ctx, o); err != nil {
					return written, fmt.Errorf("upsert outcome %d/%s/%s: %w", o.RunID, o.Ticker, o.Horizon, err)
				}
				observability.RecordOutcome(string(horizon))
				written++
			}
		}
	}
	return written, nil
}

// laterPrice finds the earliest snapshot price at or after target,
// falling back to the caller-supplied latest price map.
func (a *Attributor) laterPrice(ctx context.Context, ticker string, target time.Time, fallback map[string]float64) (float64, bool, error) {
	snap, err := a.snapshots.EarliestAtOrAfter(ctx, ticker, target)
	if err == nil {
		return snap.Price, true, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, false, fmt.Errorf("snapshot lookup %s: %w", ticker, err)
	}
	if px, ok := fallback[ticker]; ok {
		return px, true, nil
	}
	return 0, false, nil
}

// unchanged reports whether an existing row already holds materially
// identical values, guarding repeated nightly runs against redundant
// writes.
func (a *Attributor) unchanged(ctx context.Context, o *domain.Outcome) (bool, error) {
	prev, err := a.outcomes.Get(ctx, o.RunID, o.Ticker, o.Horizon)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load outcome %d/%s/%s: %w", o.RunID, o.Ticker, o.Horizon, err)
	}
	return math.Abs(prev.Ret-o.Ret) < tolerance &&
		math.Abs(prev.PriceThen-o.PriceThen) < tolerance &&
		math.Abs(prev.PriceLater-o.PriceLater) < tolerance, nil
}
