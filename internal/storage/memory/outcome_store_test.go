package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

func TestOutcomeStore_UpsertReplaces(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()

	o := &domain.Outcome{RunID: 1, Ticker: "A", Horizon: domain.Horizon1h, Ret: 0.01}
	if err := store.Upsert(ctx, o); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	o.Ret = 0.02
	if err := store.Upsert(ctx, o); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}

	got, err := store.Get(ctx, 1, "A", domain.Horizon1h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Ret != 0.02 {
		t.Errorf("Ret = %v, want replacement 0.02", got.Ret)
	}

	if _, err := store.Get(ctx, 1, "A", domain.Horizon1d); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other horizon: err = %v, want ErrNotFound", err)
	}
}

func TestOutcomeStore_GetByHorizon(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()

	for run := int64(1); run <= 3; run++ {
		for _, h := range []domain.Horizon{domain.Horizon1h, domain.Horizon1d} {
			if err := store.Upsert(ctx, &domain.Outcome{RunID: run, Ticker: "A", Horizon: h}); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
		}
	}

	got, err := store.GetByHorizon(ctx, domain.Horizon1d, 2)
	if err != nil {
		t.Fatalf("GetByHorizon: %v", err)
	}
	if len(got) != 2 || got[0].RunID != 3 || got[1].RunID != 2 {
		t.Errorf("order/limit wrong: %+v", got)
	}
	all, _ := store.GetByHorizon(ctx, domain.Horizon1d, 0)
	if len(all) != 3 {
		t.Errorf("no limit: got %d, want 3", len(all))
	}
}

func TestPriceSnapshotStore_EarliestAtOrAfter(t *testing.T) {
	store := NewPriceSnapshotStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 3, 10, 0, 0, 0, timeutil.KST)
	err := store.UpsertBulk(ctx, []*domain.PriceSnapshot{
		{RunID: 1, TS: base, Ticker: "A", Price: 100},
		{RunID: 2, TS: base.Add(time.Hour), Ticker: "A", Price: 101},
		{RunID: 3, TS: base.Add(2 * time.Hour), Ticker: "A", Price: 102},
	})
	if err != nil {
		t.Fatalf("UpsertBulk: %v", err)
	}

	got, err := store.EarliestAtOrAfter(ctx, "A", base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("EarliestAtOrAfter: %v", err)
	}
	if got.Price != 101 {
		t.Errorf("Price = %v, want 101 (earliest at/after cutoff)", got.Price)
	}

	if _, err := store.EarliestAtOrAfter(ctx, "A", base.Add(3*time.Hour)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("beyond data: err = %v, want ErrNotFound", err)
	}
	if _, err := store.EarliestAtOrAfter(ctx, "ZZZ", base); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown ticker: err = %v, want ErrNotFound", err)
	}
}

func TestPriceSnapshotStore_UpsertSameKey(t *testing.T) {
	store := NewPriceSnapshotStore()
	ctx := context.Background()
	ts := time.Now()

	if err := store.UpsertBulk(ctx, []*domain.PriceSnapshot{{RunID: 1, TS: ts, Ticker: "A", Price: 100}}); err != nil {
		t.Fatalf("UpsertBulk: %v", err)
	}
	if err := store.UpsertBulk(ctx, []*domain.PriceSnapshot{{RunID: 1, TS: ts, Ticker: "A", Price: 200}}); err != nil {
		t.Fatalf("UpsertBulk replace: %v", err)
	}
	got, err := store.EarliestAtOrAfter(ctx, "A", ts.Add(-time.Minute))
	if err != nil {
		t.Fatalf("EarliestAtOrAfter: %v", err)
	}
	if got.Price != 200 {
		t.Errorf("Price = %v, want replaced 200", got.Price)
	}
}
