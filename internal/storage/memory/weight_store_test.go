package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

func TestWeightStore_ActivateAndLoad(t *testing.T) {
	store := NewWeightStore()
	ctx := context.Background()

	if _, err := store.LoadActive(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("empty store: err = %v, want ErrNotFound", err)
	}

	v1, err := store.Activate(ctx, time.Now(), domain.WeightVector{"a": 1})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	v2, err := store.Activate(ctx, time.Now(), domain.WeightVector{"a": 0.5, "b": 0.5})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if v2 <= v1 {
		t.Errorf("versions not increasing: %d then %d", v1, v2)
	}

	active, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if active.Version != v2 || active.Weights["b"] != 0.5 {
		t.Errorf("active row wrong: %+v", active)
	}
}

func TestWeightStore_ActivateEmptyVector(t *testing.T) {
	store := NewWeightStore()
	if _, err := store.Activate(context.Background(), time.Now(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestWeightStore_CopiesVector(t *testing.T) {
	store := NewWeightStore()
	ctx := context.Background()

	w := domain.WeightVector{"a": 1}
	if _, err := store.Activate(ctx, time.Now(), w); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	w["a"] = 999

	active, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if active.Weights["a"] != 1 {
		t.Errorf("stored vector aliases caller map: %v", active.Weights)
	}
}

func TestStrategyStateStore_SingleActive(t *testing.T) {
	store := NewStrategyStateStore()
	ctx := context.Background()

	first := domain.DefaultStrategyState()
	if _, err := store.Activate(ctx, &first); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	second := domain.StrategyState{Regime: domain.RegimeAggressive, EntryScoreThreshold: 50, PositionScale: 1.25}
	id, err := store.Activate(ctx, &second)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	active, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if active.StateID != id || active.Regime != domain.RegimeAggressive {
		t.Errorf("active = %+v, want aggressive state %d", active, id)
	}
}

func TestExperimentStore_RoundTrip(t *testing.T) {
	store := NewExperimentStore()
	ctx := context.Background()

	exp := &domain.StrategyExperiment{
		TS:        time.Now(),
		Params:    domain.ExperimentParams{EntryScoreThreshold: 58, MaxPositions: 2},
		Metrics:   domain.ExperimentMetrics{NRuns: 30, AvgRet: 0.004, WinRate: 0.6},
		Objective: 0.003,
	}
	id, err := store.Activate(ctx, exp)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	got, err := store.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive: %v", err)
	}
	if got.ExpID != id || got.Params.EntryScoreThreshold != 58 || !got.Active {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestBotStateStore_GetSet(t *testing.T) {
	store := NewBotStateStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing key: err = %v, want ErrNotFound", err)
	}
	if err := store.Set(ctx, "live_trading_enabled", "true", time.Now()); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "live_trading_enabled", "false", time.Now()); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := store.Get(ctx, "live_trading_enabled")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "false" {
		t.Errorf("value = %q, want false", got)
	}
}
