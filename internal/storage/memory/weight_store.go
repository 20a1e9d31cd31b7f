package memory

import (
	"context"
	"sync"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// WeightStore is an in-memory implementation of storage.WeightStore.
type WeightStore struct {
	mu   sync.RWMutex
	rows []*domain.WeightVersion
	next int64
}

// NewWeightStore creates a new in-memory weight store.
func NewWeightStore() *WeightStore {
	return &WeightStore{next: 1}
}

var _ storage.WeightStore = (*WeightStore)(nil)

// LoadActive returns the most recent active version.
func (s *WeightStore) LoadActive(_ context.Context) (*domain.WeightVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Active {
			cp := *s.rows[i]
			cp.Weights = s.rows[i].Weights.Clone()
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Activate deactivates the current version and inserts the new active one.
// Both effects happen under one lock so no caller observes the gap.
func (s *WeightStore) Activate(_ context.Context, ts time.Time, weights domain.WeightVector) (int64, error) {
	if len(weights) == 0 {
		return 0, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		r.Active = false
	}
	row := &domain.WeightVersion{
		Version: s.next,
		TS:      ts,
		Weights: weights.Clone(),
		Active:  true,
	}
	s.next++
	s.rows = append(s.rows, row)
	return row.Version, nil
}

// StrategyStateStore is an in-memory implementation of
// storage.StrategyStateStore.
type StrategyStateStore struct {
	mu   sync.RWMutex
	rows []*domain.StrategyState
	next int64
}

// NewStrategyStateStore creates a new in-memory strategy state store.
func NewStrategyStateStore() *StrategyStateStore {
	return &StrategyStateStore{next: 1}
}

var _ storage.StrategyStateStore = (*StrategyStateStore)(nil)

// LoadActive returns the active state. ErrNotFound when empty.
func (s *StrategyStateStore) LoadActive(_ context.Context) (*domain.StrategyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Active {
			cp := *s.rows[i]
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Activate deactivates the current state and inserts the new active one.
func (s *StrategyStateStore) Activate(_ context.Context, st *domain.StrategyState) (int64, error) {
	if st == nil {
		return 0, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		r.Active = false
	}
	cp := *st
	cp.StateID = s.next
	cp.Active = true
	s.next++
	s.rows = append(s.rows, &cp)
	return cp.StateID, nil
}

// ExperimentStore is an in-memory implementation of storage.ExperimentStore.
type ExperimentStore struct {
	mu   sync.RWMutex
	rows []*domain.StrategyExperiment
	next int64
}

// NewExperimentStore creates a new in-memory experiment store.
func NewExperimentStore() *ExperimentStore {
	return &ExperimentStore{next: 1}
}

var _ storage.ExperimentStore = (*ExperimentStore)(nil)

// LoadActive returns the active experiment. ErrNotFound when empty.
func (s *ExperimentStore) LoadActive(_ context.Context) (*domain.StrategyExperiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Active {
			cp := *s.rows[i]
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Activate deactivates the current experiment and inserts the new one.
func (s *ExperimentStore) Activate(_ context.Context, e *domain.StrategyExperiment) (int64, error) {
	if e == nil {
		return 0, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		r.Active = false
	}
	cp := *e
	cp.ExpID = s.next
	cp.Active = true
	s.next++
	s.rows = append(s.rows, &cp)
	return cp.ExpID, nil
}

// BotStateStore is an in-memory implementation of storage.BotStateStore.
type BotStateStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewBotStateStore creates a new in-memory bot state store.
func NewBotStateStore() *BotStateStore {
	return &BotStateStore{data: make(map[string]string)}
}

var _ storage.BotStateStore = (*BotStateStore)(nil)

// Get returns the value for key. Returns ErrNotFound when unset.
func (s *BotStateStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// Set upserts the value for key.
func (s *BotStateStore) Set(_ context.Context, key, value string, _ time.Time) error {
	if key == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}
