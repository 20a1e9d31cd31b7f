package memory

import (
	"context"
	"sort"
	"sync"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// CandidateStore is an in-memory implementation of storage.CandidateStore.
type CandidateStore struct {
	mu   sync.RWMutex
	rows []*domain.Candidate
}

// NewCandidateStore creates a new in-memory candidate store.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{}
}

var _ storage.CandidateStore = (*CandidateStore)(nil)

func copyCandidate(c *domain.Candidate) *domain.Candidate {
	cp := *c
	if c.Features != nil {
		cp.Features = make(map[string]float64, len(c.Features))
		for k, v := range c.Features {
			cp.Features[k] = v
		}
	}
	return &cp
}

// InsertBulk adds all candidates of one run atomically.
func (s *CandidateStore) InsertBulk(_ context.Context, cands []*domain.Candidate) error {
	for _, c := range cands {
		if c == nil || c.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		runID  int64
		ticker string
	}
	seen := make(map[key]bool, len(s.rows)+len(cands))
	for _, c := range s.rows {
		seen[key{c.RunID, c.Ticker}] = true
	}
	for _, c := range cands {
		if seen[key{c.RunID, c.Ticker}] {
			return storage.ErrDuplicateKey
		}
		seen[key{c.RunID, c.Ticker}] = true
	}

	for _, c := range cands {
		s.rows = append(s.rows, copyCandidate(c))
	}
	return nil
}

// GetByRun retrieves the candidates of a run, ordered by score DESC.
func (s *CandidateStore) GetByRun(_ context.Context, runID int64) ([]*domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Candidate
	for _, c := range s.rows {
		if c.RunID == runID {
			out = append(out, copyCandidate(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// GetRecent retrieves up to limit candidates ordered by run_id DESC.
func (s *CandidateStore) GetRecent(_ context.Context, limit int) ([]*domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Candidate, 0, len(s.rows))
	for _, c := range s.rows {
		out = append(out, copyCandidate(c))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RunID > out[j].RunID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
