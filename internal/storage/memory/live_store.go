package memory

import (
	"context"
	"sort"
	"sync"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// LiveAccountStore is an in-memory implementation of
// storage.LiveAccountStore.
type LiveAccountStore struct {
	mu   sync.RWMutex
	rows []*domain.LiveAccount
	next int64
}

// NewLiveAccountStore creates a new in-memory live account store.
func NewLiveAccountStore() *LiveAccountStore {
	return &LiveAccountStore{next: 1}
}

var _ storage.LiveAccountStore = (*LiveAccountStore)(nil)

// Append adds one snapshot and returns its snap_id.
func (s *LiveAccountStore) Append(_ context.Context, a *domain.LiveAccount) (int64, error) {
	if a == nil {
		return 0, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.SnapID = s.next
	s.next++
	s.rows = append(s.rows, &cp)
	return cp.SnapID, nil
}

// FirstOfDay returns the earliest snapshot of the KST calendar date.
func (s *LiveAccountStore) FirstOfDay(_ context.Context, day string) (*domain.LiveAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.rows {
		if timeutil.DayKey(a.TS) == day {
			cp := *a
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// Recent retrieves up to limit snapshots ordered by snap_id DESC.
func (s *LiveAccountStore) Recent(_ context.Context, limit int) ([]*domain.LiveAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.LiveAccount, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0; i-- {
		cp := *s.rows[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LivePositionStore is an in-memory implementation of
// storage.LivePositionStore.
type LivePositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LivePosition
}

// NewLivePositionStore creates a new in-memory live position store.
func NewLivePositionStore() *LivePositionStore {
	return &LivePositionStore{data: make(map[string]*domain.LivePosition)}
}

var _ storage.LivePositionStore = (*LivePositionStore)(nil)

// ReplaceAll atomically replaces the whole table.
func (s *LivePositionStore) ReplaceAll(_ context.Context, positions []*domain.LivePosition) error {
	fresh := make(map[string]*domain.LivePosition, len(positions))
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
func (s *LivePositionStore) GetAll(_ context.Context) ([]*domain.LivePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.LivePosition, 0, len(s.data))
	for _, p := range s.data {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

// LiveOrderStore is an in-memory implementation of storage.LiveOrderStore.
type LiveOrderStore struct {
	mu   sync.RWMutex
	rows []*domain.LiveOrder
	next int64
}

// NewLiveOrderStore creates a new in-memory live order store.
func NewLiveOrderStore() *LiveOrderStore {
	return &LiveOrderStore{next: 1}
}

var _ storage.LiveOrderStore = (*LiveOrderStore)(nil)

// Append adds one order attempt and returns its order_id.
func (s *LiveOrderStore) Append(_ context.Context, o *domain.LiveOrder) (int64, error) {
	if o == nil || o.Ticker == "" {
		return 0, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	cp.OrderID = s.next
	s.next++
	s.rows = append(s.rows, &cp)
	return cp.OrderID, nil
}

// CountByDay counts orders whose KST calendar date equals day.
func (s *LiveOrderStore) CountByDay(_ context.Context, day string) (int, error) {
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

// StatsByDay summarizes submitted/failed/total for the day.
func (s *LiveOrderStore) StatsByDay(_ context.Context, day string) (domain.LiveOrderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st domain.LiveOrderStats
	for _, o := range s.rows {
		if timeutil.DayKey(o.TS) != day {
			continue
		}
		st.Total++
		switch o.Status {
		case domain.OrderStatusSubmitted:
			st.Submitted++
		case domain.OrderStatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

// TrainingReportStore is an in-memory implementation of
// storage.TrainingReportStore.
type TrainingReportStore struct {
	mu   sync.RWMutex
	rows []*domain.TrainingReport
	next int64
}

// NewTrainingReportStore creates a new in-memory training report store.
func NewTrainingReportStore() *TrainingReportStore {
	return &TrainingReportStore{next: 1}
}

var _ storage.TrainingReportStore = (*TrainingReportStore)(nil)

// Append adds one report and returns its report_id.
func (s *TrainingReportStore) Append(_ context.Context, r *domain.TrainingReport) (int64, error) {
	if r == nil {
		return 0, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	cp.ReportID = s.next
	s.next++
	s.rows = append(s.rows, &cp)
	return cp.ReportID, nil
}

// Recent retrieves up to limit reports ordered by report_id DESC.
func (s *TrainingReportStore) Recent(_ context.Context, limit int) ([]*domain.TrainingReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TrainingReport, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0; i-- {
		cp := *s.rows[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
