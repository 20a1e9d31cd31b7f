package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert appends a run and returns its assigned run_id.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) (int64, error) {
	if r == nil {
		return 0, storage.ErrInvalidInput
	}
	query := `
		INSERT INTO runs (ts_kst, provider, universe, top_n, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING run_id
	`

	var runID int64
	err := s.pool.QueryRow(ctx, query, r.TS, r.Provider, r.Universe, r.TopN, r.Note).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID int64) (*domain.Run, error) {
	query := `
		SELECT run_id, ts_kst, provider, universe, top_n, note
		FROM runs
		WHERE run_id = $1
	`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// UpdateNote rewrites a run's note. Returns ErrNotFound if not exists.
func (s *RunStore) UpdateNote(ctx context.Context, runID int64, note string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE runs SET note = $2 WHERE run_id = $1`, runID, note)
	if err != nil {
		return fmt.Errorf("update run note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetSince retrieves runs with ts >= since, ordered by run_id ASC.
func (s *RunStore) GetSince(ctx context.Context, since time.Time) ([]*domain.Run, error) {
	query := `
		SELECT run_id, ts_kst, provider, universe, top_n, note
		FROM runs
		WHERE ts_kst >= $1
		ORDER BY run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("get runs since: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// GetAll retrieves every run, ordered by run_id ASC.
func (s *RunStore) GetAll(ctx context.Context) ([]*domain.Run, error) {
	query := `
		SELECT run_id, ts_kst, provider, universe, top_n, note
		FROM runs
		ORDER BY run_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var r domain.Run
	err := row.Scan(&r.RunID, &r.TS, &r.Provider, &r.Universe, &r.TopN, &r.Note)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRuns(rows pgx.Rows) ([]*domain.Run, error) {
	var runs []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}
