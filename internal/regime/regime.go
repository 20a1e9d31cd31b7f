// Package regime picks the nightly trading posture from rolling
// outcome and paper-ledger statistics.
package regime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// Stats are the rolling inputs to the regime decision.
type Stats struct {
	NTrades     int     // resolved 1d outcomes in the window
	WinRate     float64 // fraction of positive 1d returns
	AvgRet      float64 // mean 1d return
	PaperPnLDay float64 // paper NAV change over the day
}

const (
	StatusUpdated   = "UPDATED"
	StatusUnchanged = "UNCHANGED"
)

// Decide maps rolling stats to a regime and the human-readable reason
// persisted with the decision.
func Decide(s Stats) (domain.Regime, string) {
	if s.NTrades >= 20 && s.WinRate >= 0.58 && s.AvgRet >= 0.002 && s.PaperPnLDay >= 0 {
		return domain.RegimeAggressive, "strong edge"
	}
	if s.NTrades >= 20 && (s.WinRate <= 0.45 || s.AvgRet <= -0.0015 || s.PaperPnLDay < 0) {
		return domain.RegimeConservative, "drawdown control"
	}
	return domain.RegimeNeutral, "balanced"
}

// Updater persists regime changes through the strategy-state store.
type Updater struct {
	states storage.StrategyStateStore
}

// NewUpdater creates an Updater over the given store.
func NewUpdater(states storage.StrategyStateStore) *Updater {
	return &Updater{states: states}
}

// Apply decides the regime for the given stats and activates a new
// strategy state when the regime or either parameter changed. The
// returned status is UPDATED or UNCHANGED.
func (u *Updater) Apply(ctx context.Context, ts time.Time, s Stats) (*domain.StrategyState, string, error) {
	next, reason := Decide(s)
	threshold, scale := domain.RegimeParams(next)

	current, err := u.states.LoadActive(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, "", fmt.Errorf("load strategy state: %w", err)
	}
	if current != nil &&
		current.Regime == next &&
		current.EntryScoreThreshold == threshold &&
		current.PositionScale == scale {
		return current, StatusUnchanged, nil
	}

	state := &domain.StrategyState{
		TS:                  ts,
		Regime:              next,
		EntryScoreThreshold: threshold,
		PositionScale:       scale,
		Note:                reason,
	}
	id, err := u.states.Activate(ctx, state)
	if err != nil {
		return nil, "", fmt.Errorf("activate strategy state: %w", err)
	}
	state.StateID = id
	state.Active = true
	return state, StatusUpdated, nil
}
