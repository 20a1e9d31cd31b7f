package postgres

import (
	"context"
	"fmt"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// OutcomeStore implements storage.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *Pool
}

// NewOutcomeStore creates a new OutcomeStore.
func NewOutcomeStore(pool *Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)

// Get retrieves one outcome. Returns ErrNotFound if not exists.
func (s *OutcomeStore) Get(ctx context.Context, runID int64, ticker string, horizon domain.Horizon) (*domain.Outcome, error) {
	query := `
		SELECT run_id, ticker, horizon, ret, price_then, price_later
		FROM outcomes
		WHERE run_id = $1 AND ticker = $2 AND horizon = $3
	`

	var o domain.Outcome
	var horizonStr string
	err := s.pool.QueryRow(ctx, query, runID, ticker, string(horizon)).
		Scan(&o.RunID, &o.Ticker, &horizonStr, &o.Ret, &o.PriceThen, &o.PriceLater)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	o.Horizon = domain.Horizon(horizonStr)
	return &o, nil
}

// Upsert inserts or replaces the outcome for its key.
func (s *OutcomeStore) Upsert(ctx context.Context, o *domain.Outcome) error {
	if o == nil {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO outcomes (run_id, ticker, horizon, ret, price_then, price_later)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, ticker, horizon)
		DO UPDATE SET ret = EXCLUDED.ret, price_then = EXCLUDED.price_then, price_later = EXCLUDED.price_later
	`

	_, err := s.pool.Exec(ctx, query, o.RunID, o.Ticker, string(o.Horizon), o.Ret, o.PriceThen, o.PriceLater)
	if err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}
	return nil
}

// GetByHorizon retrieves up to limit outcomes for a horizon, ordered by
// run_id DESC. limit <= 0 means no limit.
func (s *OutcomeStore) GetByHorizon(ctx context.Context, horizon domain.Horizon, limit int) ([]*domain.Outcome, error) {
	query := `
		SELECT run_id, ticker, horizon, ret, price_then, price_later
		FROM outcomes
		WHERE horizon = $1
		ORDER BY run_id DESC, ticker ASC
	`
	args := []any{string(horizon)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get outcomes by horizon: %w", err)
	}
	defer rows.Close()

	var outcomes []*domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		var horizonStr string
		if err := rows.Scan(&o.RunID, &o.Ticker, &horizonStr, &o.Ret, &o.PriceThen, &o.PriceLater); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		o.Horizon = domain.Horizon(horizonStr)
		outcomes = append(outcomes, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome rows: %w", err)
	}
	return outcomes, nil
}

// PriceSnapshotStore implements storage.PriceSnapshotStore using PostgreSQL.
type PriceSnapshotStore struct {
	pool *Pool
}

// NewPriceSnapshotStore creates a new PriceSnapshotStore.
func NewPriceSnapshotStore(pool *Pool) *PriceSnapshotStore {
	return &PriceSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// UpsertBulk inserts or replaces snapshots keyed by (run_id, ticker).
func (s *PriceSnapshotStore) UpsertBulk(ctx context.Context, snaps []*domain.PriceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert snapshots: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO price_snapshots (run_id, ts_kst, ticker, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, ticker)
		DO UPDATE SET ts_kst = EXCLUDED.ts_kst, price = EXCLUDED.price
	`
	for _, snap := range snaps {
		if snap == nil {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, query, snap.RunID, snap.TS, snap.Ticker, snap.Price); err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert snapshots: %w", err)
	}
	return nil
}

// EarliestAtOrAfter returns the earliest snapshot for ticker with
// ts >= at. Returns ErrNotFound when none exists.
func (s *PriceSnapshotStore) EarliestAtOrAfter(ctx context.Context, ticker string, at time.Time) (*domain.PriceSnapshot, error) {
	query := `
		SELECT run_id, ts_kst, ticker, price
		FROM price_snapshots
		WHERE ticker = $1 AND ts_kst >= $2
		ORDER BY ts_kst ASC, run_id ASC
		LIMIT 1
	`

	var snap domain.PriceSnapshot
	err := s.pool.QueryRow(ctx, query, ticker, at).Scan(&snap.RunID, &snap.TS, &snap.Ticker, &snap.Price)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get earliest snapshot: %w", err)
	}
	return &snap, nil
}
