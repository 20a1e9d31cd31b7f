package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

func TestPaperAccountStore_AppendLatestPrevious(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPaperAccountStore(pool)

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Previous(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	id1, err := store.Append(ctx, &domain.PaperAccount{
		TS: kstTime(3, 10), Cash: 1_000_000, NAV: 1_000_000, Note: "paper-run:1:init",
	})
	require.NoError(t, err)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, latest.AccountID)
	// One row: Previous still has nothing to return.
	_, err = store.Previous(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	id2, err := store.Append(ctx, &domain.PaperAccount{
		TS: kstTime(3, 11), Cash: 400_000, NAV: 1_001_200, Note: "paper-run:2",
	})
	require.NoError(t, err)

	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, latest.AccountID)
	assert.InDelta(t, 1_001_200, latest.NAV, 1e-9)

	prev, err := store.Previous(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, prev.AccountID)
	assert.Equal(t, "paper-run:1:init", prev.Note)
}

func TestPaperAccountStore_GetSince(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPaperAccountStore(pool)

	for h := 10; h <= 14; h += 2 {
		_, err := store.Append(ctx, &domain.PaperAccount{
			TS: kstTime(3, h), Cash: 1_000_000, NAV: 1_000_000 + float64(h),
		})
		require.NoError(t, err)
	}

	rows, err := store.GetSince(ctx, kstTime(3, 12))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].TS.Before(rows[1].TS))
	assert.InDelta(t, 1_000_012, rows[0].NAV, 1e-9)

	_, err = store.Append(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPaperPositionStore_ReplaceAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPaperPositionStore(pool)

	updated := kstTime(3, 11)
	err := store.ReplaceAll(ctx, []*domain.PaperPosition{
		{Ticker: "005930", Name: "Samsung Electronics", Qty: 10, AvgPrice: 71_000, Updated: updated},
		{Ticker: "000660", Name: "SK hynix", Qty: 3, AvgPrice: 190_000, Updated: updated},
		{Ticker: "035420", Name: "NAVER", Qty: 0, AvgPrice: 180_000, Updated: updated},
	})
	require.NoError(t, err)

	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	// Zero-qty rows are dropped, remainder ordered by ticker ASC.
	require.Len(t, got, 2)
	assert.Equal(t, "000660", got[0].Ticker)
	assert.Equal(t, "005930", got[1].Ticker)
	assert.Equal(t, int64(10), got[1].Qty)

	// Full replace, not merge.
	err = store.ReplaceAll(ctx, []*domain.PaperPosition{
		{Ticker: "005380", Name: "Hyundai Motor", Qty: 5, AvgPrice: 240_000, Updated: updated},
	})
	require.NoError(t, err)
	got, err = store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "005380", got[0].Ticker)
}

func TestPaperPositionStore_ReplaceAllDuplicateTicker(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPaperPositionStore(pool)

	updated := kstTime(3, 11)
	require.NoError(t, store.ReplaceAll(ctx, []*domain.PaperPosition{
		{Ticker: "005930", Name: "Samsung Electronics", Qty: 10, AvgPrice: 71_000, Updated: updated},
	}))

	err := store.ReplaceAll(ctx, []*domain.PaperPosition{
		{Ticker: "000660", Name: "SK hynix", Qty: 3, AvgPrice: 190_000, Updated: updated},
		{Ticker: "000660", Name: "SK hynix", Qty: 4, AvgPrice: 191_000, Updated: updated},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// Rejected input leaves the previous table intact.
	got, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "005930", got[0].Ticker)
}

func TestPaperOrderStore_AppendBulkAndCounts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPaperOrderStore(pool)

	run1 := createTestRun(t, ctx, pool, 10)
	run2 := createTestRun(t, ctx, pool, 11)

	require.NoError(t, store.AppendBulk(ctx, []*domain.PaperOrder{
		{TS: kstTime(3, 10), Side: domain.SideBuy, Ticker: "005930", Name: "Samsung Electronics", Qty: 4, Price: 71_021.3, Reason: "entry", RunID: run1},
		{TS: kstTime(3, 10), Side: domain.SideBuy, Ticker: "000660", Name: "SK hynix", Qty: 1, Price: 190_057.0, Reason: "entry", RunID: run1},
		{TS: kstTime(4, 10), Side: domain.SideSell, Ticker: "005930", Name: "Samsung Electronics", Qty: 4, Price: 69_978.7, Reason: "stop_loss_1h", RunID: run2},
	}))
	require.NoError(t, store.AppendBulk(ctx, nil))

	n, err := store.CountByDay(ctx, "2025-06-03")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountByDay(ctx, "2025-06-05")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	total, err := store.CountTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	since, err := store.CountSince(ctx, kstTime(4, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, since)
}

func TestPaperOrderStore_CountByDayUsesKSTDate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPaperOrderStore(pool)
	run := createTestRun(t, ctx, pool, 10)

	// 2025-06-03 02:00 KST is still 2025-06-02 in UTC.
	earlyKST := time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendBulk(ctx, []*domain.PaperOrder{
		{TS: earlyKST, Side: domain.SideBuy, Ticker: "005930", Name: "Samsung Electronics", Qty: 1, Price: 71_000, RunID: run},
	}))

	n, err := store.CountByDay(ctx, "2025-06-03")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.CountByDay(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
