package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

func TestLiveAccountStore_AppendAndRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLiveAccountStore(pool)

	id1, err := store.Append(ctx, &domain.LiveAccount{
		TS: kstTime(3, 10), Cash: 900_000, TotalEval: 100_000, TotalAsset: 1_000_000, Note: "pre-run",
	})
	require.NoError(t, err)
	id2, err := store.Append(ctx, &domain.LiveAccount{
		TS: kstTime(3, 11), Cash: 600_000, TotalEval: 405_000, TotalAsset: 1_005_000, Note: "post-run",
	})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, id2, recent[0].SnapID)
	assert.Equal(t, "post-run", recent[0].Note)
	assert.InDelta(t, 1_005_000, recent[0].TotalAsset, 1e-9)

	recent, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, id2, recent[0].SnapID)

	_, err = store.Append(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestLiveAccountStore_FirstOfDay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLiveAccountStore(pool)

	_, err := store.FirstOfDay(ctx, "2025-06-03")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Append(ctx, &domain.LiveAccount{TS: kstTime(2, 15), Cash: 1, TotalAsset: 1})
	require.NoError(t, err)
	first, err := store.Append(ctx, &domain.LiveAccount{TS: kstTime(3, 9), Cash: 2, TotalAsset: 2})
	require.NoError(t, err)
	_, err = store.Append(ctx, &domain.LiveAccount{TS: kstTime(3, 14), Cash: 3, TotalAsset: 3})
	require.NoError(t, err)

	got, err := store.FirstOfDay(ctx, "2025-06-03")
	require.NoError(t, err)
	assert.Equal(t, first, got.SnapID)
	assert.InDelta(t, 2, got.Cash, 1e-9)
}

func TestLivePositionStore_ReplaceAllAndGetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLivePositionStore(pool)

	updated := kstTime(3, 10)
	err := store.ReplaceAll(ctx, []*domain.LivePosition{
		{Ticker: "005930", Name: "Samsung Electronics", Qty: 10, AvgPrice: 71_000, LastPrice: 72_000, EvalAmount: 720_000, PnlAmount: 10_000, PnlPct: 0.0141, Updated: updated},
		{Ticker: "000660", Name: "SK hynix", Qty: 2, AvgPrice: 190_000, LastPrice: 185_000, EvalAmount: 370_000, PnlAmount: -10_000, PnlPct: -0.0263, Updated: updated},
	})
	require.NoError(t, err)

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "000660", got[0].Ticker)
	assert.InDelta(t, -0.0263, got[0].PnlPct, 1e-9)
	assert.Equal(t, "005930", got[1].Ticker)
	assert.Equal(t, int64(10), got[1].Qty)

	// Resync with an empty book clears the table.
	require.NoError(t, store.ReplaceAll(ctx, nil))
	got, err = store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLiveOrderStore_AppendAndStats(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLiveOrderStore(pool)
	run := createTestRun(t, ctx, pool, 11)

	_, err := store.Append(ctx, &domain.LiveOrder{
		TS: kstTime(3, 11), Side: domain.SideBuy, Ticker: "005930", Name: "Samsung Electronics",
		Qty: 4, Price: 71_000, OrderNo: "KR0001", Status: domain.OrderStatusSubmitted, RunID: run,
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, &domain.LiveOrder{
		TS: kstTime(3, 11), Side: domain.SideBuy, Ticker: "000660", Name: "SK hynix",
		Qty: 1, Price: 190_000, Status: domain.OrderStatusFailed, Reason: "APBK0952: insufficient funds", RunID: run,
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, &domain.LiveOrder{
		TS: kstTime(4, 11), Side: domain.SideSell, Ticker: "005930", Name: "Samsung Electronics",
		Qty: 4, Price: 72_500, OrderNo: "KR0002", Status: domain.OrderStatusSubmitted, Reason: "take_profit_fade", RunID: run,
	})
	require.NoError(t, err)

	n, err := store.CountByDay(ctx, "2025-06-03")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := store.StatsByDay(ctx, "2025-06-03")
	require.NoError(t, err)
	assert.Equal(t, domain.LiveOrderStats{Submitted: 1, Failed: 1, Total: 2}, stats)

	stats, err = store.StatsByDay(ctx, "2025-06-04")
	require.NoError(t, err)
	assert.Equal(t, domain.LiveOrderStats{Submitted: 1, Failed: 0, Total: 1}, stats)

	stats, err = store.StatsByDay(ctx, "2025-06-05")
	require.NoError(t, err)
	assert.Equal(t, domain.LiveOrderStats{}, stats)

	_, err = store.Append(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTrainingReportStore_AppendAndRecent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTrainingReportStore(pool)

	recent, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, recent)

	report := &domain.TrainingReport{
		TS:    kstTime(3, 22),
		Mode:  "nightly",
		Score: 82.5,
		Level: domain.LevelReady,
		Ready: true,
		Metrics: domain.TrainingMetrics{
			HistoryDays: 21, OrderTotal: 44, OrderLookback: 31,
			CumulativeReturn: 0.041, MaxDrawdown: 0.022,
			DailyWinRate: 0.62, OutcomeN: 35, OutcomeWinRate1d: 0.57,
			NavStart: 1_000_000, NavEnd: 1_041_000,
		},
		Gates: []domain.TrainingGate{
			{Key: "history_days", Label: "paper history", Pass: true, Value: 21, Target: 14},
			{Key: "cum_return", Label: "cumulative return", Pass: true, Value: 0.041, Target: 0.03},
		},
		RiskPlan:  domain.RiskPlan{Mode: "manual_live_small", RiskPerTradePct: 0.5, DailyLossLimitPct: 1.5, MaxNewPositions: 2},
		Checklist: []string{"verify broker toggle", "review overnight headlines"},
		Note:      "nightly-summary",
	}
	id1, err := store.Append(ctx, report)
	require.NoError(t, err)

	id2, err := store.Append(ctx, &domain.TrainingReport{
		TS: kstTime(4, 22), Mode: "nightly", Score: 12, Level: domain.LevelTraining,
		Metrics:  domain.TrainingMetrics{HistoryDays: 1},
		Gates:    []domain.TrainingGate{{Key: "history_days", Label: "paper history", Value: 1, Target: 14}},
		RiskPlan: domain.RiskPlan{Mode: "paper_only", MaxNewPositions: 1},
		Note:     "nightly-summary",
	})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	recent, err = store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, id2, recent[0].ReportID)
	assert.Equal(t, domain.LevelTraining, recent[0].Level)

	recent, err = store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	got := recent[1]
	assert.Equal(t, id1, got.ReportID)
	assert.True(t, got.Ready)
	assert.InDelta(t, 82.5, got.Score, 1e-9)
	assert.Equal(t, report.Metrics, got.Metrics)
	assert.Equal(t, report.Gates, got.Gates)
	assert.Equal(t, report.RiskPlan, got.RiskPlan)
	assert.Equal(t, report.Checklist, got.Checklist)

	_, err = store.Append(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
