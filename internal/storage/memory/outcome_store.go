package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// OutcomeStore is an in-memory implementation of storage.OutcomeStore.
type OutcomeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Outcome
}

// NewOutcomeStore creates a new in-memory outcome store.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{data: make(map[string]*domain.Outcome)}
}

var _ storage.OutcomeStore = (*OutcomeStore)(nil)

func outcomeKey(runID int64, ticker string, horizon domain.Horizon) string {
	return fmt.Sprintf("%d|%s|%s", runID, ticker, horizon)
}

// Get retrieves one outcome. Returns ErrNotFound if not exists.
func (s *OutcomeStore) Get(_ context.Context, runID int64, ticker string, horizon domain.Horizon) (*domain.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.data[outcomeKey(runID, ticker, horizon)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// Upsert inserts or replaces the outcome for its key.
func (s *OutcomeStore) Upsert(_ context.Context, o *domain.Outcome) error {
	if o == nil || o.Ticker == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.data[outcomeKey(o.RunID, o.Ticker, o.Horizon)] = &cp
	return nil
}

// GetByHorizon retrieves up to limit outcomes for a horizon, run_id DESC.
func (s *OutcomeStore) GetByHorizon(_ context.Context, horizon domain.Horizon, limit int) ([]*domain.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Outcome
	for _, o := range s.data {
		if o.Horizon == horizon {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RunID != out[j].RunID {
			return out[i].RunID > out[j].RunID
		}
		return out[i].Ticker < out[j].Ticker
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PriceSnapshotStore is an in-memory implementation of
// storage.PriceSnapshotStore.
type PriceSnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceSnapshot // keyed by (run_id, ticker)
}

// NewPriceSnapshotStore creates a new in-memory snapshot store.
func NewPriceSnapshotStore() *PriceSnapshotStore {
	return &PriceSnapshotStore{data: make(map[string]*domain.PriceSnapshot)}
}

var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// UpsertBulk inserts or replaces snapshots keyed by (run_id, ticker).
func (s *PriceSnapshotStore) UpsertBulk(_ context.Context, snaps []*domain.PriceSnapshot) error {
	for _, p := range snaps {
		if p == nil || p.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range snaps {
		cp := *p
		s.data[fmt.Sprintf("%d|%s", p.RunID, p.Ticker)] = &cp
	}
	return nil
}

// EarliestAtOrAfter returns the earliest snapshot for ticker at or after at.
func (s *PriceSnapshotStore) EarliestAtOrAfter(_ context.Context, ticker string, at time.Time) (*domain.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.PriceSnapshot
	for _, p := range s.data {
		if p.Ticker != ticker || p.TS.Before(at) {
			continue
		}
		if best == nil || p.TS.Before(best.TS) {
			best = p
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}
