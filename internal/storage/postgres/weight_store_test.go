package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

func TestWeightStore_ActivateAndLoadActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWeightStore(pool)

	_, err := store.LoadActive(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	v1, err := store.Activate(ctx, kstTime(3, 22), domain.DefaultWeights())
	require.NoError(t, err)

	tuned := domain.DefaultWeights()
	tuned["money_value_surge"] += 0.01
	tuned["flow_score"] -= 0.01
	v2, err := store.Activate(ctx, kstTime(4, 22), tuned)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	got, err := store.LoadActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2, got.Version)
	assert.True(t, got.Active)
	assert.InDelta(t, tuned["money_value_surge"], got.Weights["money_value_surge"], 1e-9)
	assert.Len(t, got.Weights, len(tuned))
}

func TestWeightStore_ActivateEmptyVector(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewWeightStore(pool).Activate(context.Background(), kstTime(3, 22), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStrategyStateStore_ActivateAndLoadActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStrategyStateStore(pool)

	_, err := store.LoadActive(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	id1, err := store.Activate(ctx, &domain.StrategyState{
		TS: kstTime(3, 22), Regime: domain.RegimeNeutral,
		EntryScoreThreshold: 55, PositionScale: 1.0, Note: "bootstrap",
	})
	require.NoError(t, err)

	id2, err := store.Activate(ctx, &domain.StrategyState{
		TS: kstTime(4, 22), Regime: domain.RegimeAggressive,
		EntryScoreThreshold: 50, PositionScale: 1.25, Note: "win streak",
	})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	got, err := store.LoadActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, got.StateID)
	assert.Equal(t, domain.RegimeAggressive, got.Regime)
	assert.InDelta(t, 50, got.EntryScoreThreshold, 1e-9)
	assert.InDelta(t, 1.25, got.PositionScale, 1e-9)
	assert.True(t, got.Active)
}

func TestExperimentStore_ActivateAndLoadActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExperimentStore(pool)

	_, err := store.LoadActive(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	exp := &domain.StrategyExperiment{
		TS:        kstTime(3, 22),
		Params:    domain.ExperimentParams{EntryScoreThreshold: 58, MaxPositions: 2},
		Metrics:   domain.ExperimentMetrics{NRuns: 40, AvgRet: 0.004, WinRate: 0.6, Vol: 0.006},
		Objective: 0.0053,
	}
	_, err = store.Activate(ctx, exp)
	require.NoError(t, err)

	got, err := store.LoadActive(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 58, got.Params.EntryScoreThreshold, 1e-9)
	assert.Equal(t, 2, got.Params.MaxPositions)
	assert.Equal(t, 40, got.Metrics.NRuns)
	assert.InDelta(t, 0.0053, got.Objective, 1e-9)
	assert.True(t, got.Active)
}

func TestBotStateStore_GetSet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBotStateStore(pool)

	_, err := store.Get(ctx, "live_trading_enabled")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, "live_trading_enabled", "1", kstTime(3, 10)))
	got, err := store.Get(ctx, "live_trading_enabled")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	// Upsert overwrites in place.
	require.NoError(t, store.Set(ctx, "live_trading_enabled", "0", kstTime(3, 11)))
	got, err = store.Get(ctx, "live_trading_enabled")
	require.NoError(t, err)
	assert.Equal(t, "0", got)
}
