package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// PaperAccountStore is an in-memory implementation of
// storage.PaperAccountStore.
type PaperAccountStore struct {
	mu   sync.RWMutex
	rows []*domain.PaperAccount
	next int64
}

// NewPaperAccountStore creates a new in-memory paper account store.
func NewPaperAccountStore() *PaperAccountStore {
	return &PaperAccountStore{next: 1}
}

var _ storage.PaperAccountStore = (*PaperAccountStore)(nil)

// Append adds one NAV/cash snapshot and returns its account_id.
func (s *PaperAccountStore) Append(_ context.Context, a *domain.PaperAccount) (int64, error) {
	if a == nil {
		return 0, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.AccountID = s.next
	s.next++
	s.rows = append(s.rows, &cp)
	return cp.AccountID, nil
}

// Latest returns the most recent snapshot. ErrNotFound when empty.
func (s *PaperAccountStore) Latest(_ context.Context) (*domain.PaperAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return nil, storage.ErrNotFound
	}
	cp := *s.rows[len(s.rows)-1]
	return &cp, nil
}

// Previous returns the second most recent snapshot.
func (s *PaperAccountStore) Previous(_ context.Context) (*domain.PaperAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) < 2 {
		return nil, storage.ErrNotFound
	}
	cp := *s.rows[len(s.rows)-2]
	return &cp, nil
}

// GetSince retrieves snapshots with ts >= since, ordered ASC.
func (s *PaperAccountStore) GetSince(_ context.Context, since time.Time) ([]*domain.PaperAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PaperAccount
	for _, a := range s.rows {
		if !a.TS.Before(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// PaperPositionStore is an in-memory implementation of
// storage.PaperPositionStore.
type PaperPositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PaperPosition
}

// NewPaperPositionStore creates a new in-memory paper position store.
func NewPaperPositionStore() *PaperPositionStore {
	return &PaperPositionStore{data: make(map[string]*domain.PaperPosition)}
}

var _ storage.PaperPositionStore = (*PaperPositionStore)(nil)

// ReplaceAll atomically replaces the whole table.
func (s *PaperPositionStore) ReplaceAll(_ context.Context, positions []*domain.PaperPosition) error {
	fresh := make(map[string]*domain.PaperPosition, len(positions))
	for _, p := range positions {
		if p == nil || p.Ticker == "" {
			return storage.ErrInvalidInput
		}
		if p.Qty <= 0 {
			continue
		}
		if _, dup := fresh[p.Ticker]; dup {
			return storage.ErrInvalidInput
		}
		cp := *p
		fresh[p.Ticker] = &cp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = fresh
	return nil
}

// GetAll retrieves all holdings, ordered by ticker ASC.
func (s *PaperPositionStore) GetAll(_ context.Context) ([]*domain.PaperPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.PaperPosition, 0, len(s.data))
	for _, p := range s.data {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// PaperOrderStore is an in-memory implementation of storage.PaperOrderStore.
type PaperOrderStore struct {
	mu   sync.RWMutex
	rows []*domain.PaperOrder
	next int64
}

// NewPaperOrderStore creates a new in-memory paper order store.
func NewPaperOrderStore() *PaperOrderStore {
	return &PaperOrderStore{next: 1}
}

var _ storage.PaperOrderStore = (*PaperOrderStore)(nil)

// AppendBulk adds all orders of one cycle atomically.
func (s *PaperOrderStore) AppendBulk(_ context.Context, orders []*domain.PaperOrder) error {
	for _, o := range orders {
		if o == nil || o.Ticker == "" {
			return storage.ErrInvalidInput
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range orders {
		cp := *o
		cp.OrderID = s.next
		s.next++
		s.rows = append(s.rows, &cp)
	}
	return nil
}

// CountByDay counts orders whose KST calendar date equals day.
func (s *PaperOrderStore) CountByDay(_ context.Context, day string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, o := range s.rows {
		if timeutil.DayKey(o.TS) == day {
			n++
		}
	}
	return n, nil
}

// CountTotal counts all orders ever placed.
func (s *PaperOrderStore) CountTotal(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

// CountSince counts orders with ts >= since.
func (s *PaperOrderStore) CountSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, o := range s.rows {
		if !o.TS.Before(since) {
			n++
		}
	}
	return n, nil
}
