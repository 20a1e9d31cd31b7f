package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"krx-momentum-lab/internal/provider"
	"krx-momentum-lab/internal/stats"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// Risk modes.
const (
	ModeNormal    = "normal"
	ModeDefensive = "defensive"
	ModeOffensive = "offensive"
)

const drawdownLookbackSnapshots = 120

// RiskOverlay is the per-cycle posture adjustment applied on top of
// the strategy state's entry threshold and the config's sizing.
type RiskOverlay struct {
	Mode               string
	EffectiveThreshold float64
	OrderScale         float64
	PositionScale      float64
	ReservePct         float64
	DayReturn          float64
	AccountDrawdown    float64
	CashRatio          float64
	UnrealizedRet      float64
	FailRateToday      float64
}

// buildRiskOverlay derives the overlay from the pre-run balance
// snapshot and today's order history. Penalties compound: the
// fail-rate and cash-ratio adjustments stack on the defensive or
// offensive base.
func (e *Executor) buildRiskOverlay(ctx context.Context, ts time.Time, baseThreshold float64, snap *provider.Balance) (*RiskOverlay, error) {
	var unrealizedPnL float64
	for _, p := range snap.Positions {
		unrealizedPnL += p.PnlAmount
	}
	unrealizedRet := 0.0
	if snap.TotalEval > 0 {
		unrealizedRet = unrealizedPnL / snap.TotalEval
	}

	dayReturn, err := e.dayReturn(ctx, ts, snap.TotalAsset)
	if err != nil {
		return nil, err
	}
	drawdown, err := e.accountDrawdown(ctx)
	if err != nil {
		return nil, err
	}
	orderStats, err := e.liveOrders.StatsByDay(ctx, timeutil.DayKey(ts))
	if err != nil {
		return nil, fmt.Errorf("daily order stats: %w", err)
	}
	failRate := 0.0
	if orderStats.Total > 0 {
		failRate = float64(orderStats.Failed) / float64(orderStats.Total)
	}
	cashRatio := 0.0
	if snap.TotalAsset > 0 {
		cashRatio = snap.Cash / snap.TotalAsset
	}

	mode := ModeNormal
	thresholdAdd := 0.0
	orderScale := 1.0
	positionScale := 1.0
	reserveAdd := 0.0

	riskOff := dayReturn <= -abs(e.cfg.RiskOffDayLossPct) ||
		drawdown >= abs(e.cfg.RiskOffDrawdownPct) ||
		unrealizedRet <= -0.05
	if riskOff {
		mode = ModeDefensive
		thresholdAdd += 5.0
		orderScale *= 0.55
		positionScale *= 0.70
		reserveAdd += 0.05
	} else if dayReturn >= abs(e.cfg.RiskOnDayGainPct) && failRate < 0.3 && unrealizedRet > -0.01 {
		mode = ModeOffensive
		thresholdAdd -= 1.0
		orderScale *= 1.10
		positionScale *= 1.10
	}

	if orderStats.Total >= 3 && failRate >= 0.60 {
		mode = ModeDefensive
		thresholdAdd += 2.0
		orderScale *= 0.75
		reserveAdd += 0.03
	}
	if cashRatio < e.cfg.CashReservePct*0.70 {
		thresholdAdd += 2.0
		orderScale *= 0.70
		reserveAdd += 0.02
	}

	return &RiskOverlay{
		Mode:               mode,
		EffectiveThreshold: stats.Clamp(baseThreshold+thresholdAdd, 40.0, 95.0),
		OrderScale:         stats.Clamp(orderScale, 0.35, 1.30),
		PositionScale:      stats.Clamp(positionScale, 0.50, 1.20),
		ReservePct:         stats.Clamp(e.cfg.CashReservePct+reserveAdd, 0.0, 0.80),
		DayReturn:          dayReturn,
		AccountDrawdown:    drawdown,
		CashRatio:          cashRatio,
		UnrealizedRet:      unrealizedRet,
		FailRateToday:      failRate,
	}, nil
}

// dayReturn compares the current total asset to the day's first
// balance snapshot. Zero when the day has no prior snapshot.
func (e *Executor) dayReturn(ctx context.Context, ts time.Time, currentTotalAsset float64) (float64, error) {
	first, err := e.liveAccounts.FirstOfDay(ctx, timeutil.DayKey(ts))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("first snapshot of day: %w", err)
	}
	if first.TotalAsset <= 0 {
		return 0, nil
	}
	if currentTotalAsset < 0 {
		currentTotalAsset = 0
	}
	return currentTotalAsset/first.TotalAsset - 1, nil
}

// accountDrawdown is the worst peak-to-trough drop of total asset
// over the trailing snapshot window, as a positive fraction.
func (e *Executor) accountDrawdown(ctx context.Context) (float64, error) {
	snaps, err := e.liveAccounts.Recent(ctx, drawdownLookbackSnapshots)
	if err != nil {
		return 0, fmt.Errorf("recent snapshots: %w", err)
	}
	peak := 0.0
	worst := 0.0
	for i := len(snaps) - 1; i >= 0; i-- {
		v := snaps[i].TotalAsset
		if v <= 0 {
			continue
		}
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := v/peak - 1; dd < worst {
			worst = dd
		}
	}
	return -worst, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
