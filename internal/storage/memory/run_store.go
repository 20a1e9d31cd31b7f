package memory

import (
	"context"
	"sync"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	rows []*domain.Run
	next int64
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{next: 1}
}

var _ storage.RunStore = (*RunStore)(nil)

// Insert appends a run and returns its assigned run_id.
func (s *RunStore) Insert(_ context.Context, r *domain.Run) (int64, error) {
	if r == nil {
		return 0, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.RunID = s.next
	s.next++
	s.rows = append(s.rows, &cp)
	return cp.RunID, nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID int64) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rows {
		if r.RunID == runID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// UpdateNote rewrites a run's note. Returns ErrNotFound if not exists.
func (s *RunStore) UpdateNote(_ context.Context, runID int64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.RunID == runID {
			r.Note = note
			return nil
		}
	}
	return storage.ErrNotFound
}

// GetSince retrieves runs with ts >= since, ordered by run_id ASC.
func (s *RunStore) GetSince(_ context.Context, since time.Time) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Run
	for _, r := range s.rows {
		if !r.TS.Before(since) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetAll retrieves every run, ordered by run_id ASC.
func (s *RunStore) GetAll(_ context.Context) ([]*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Run, 0, len(s.rows))
	for _, r := range s.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}
