package clickhouse

import (
	"context"
	"fmt"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// PriceSnapshotStore implements storage.PriceSnapshotStore using
// ClickHouse. Snapshots are an append-heavy timeseries read back only
// by ticker/time range, which fits ReplacingMergeTree: duplicates on
// (run_id, ticker) collapse at merge time and the read path takes the
// latest version explicitly.
type PriceSnapshotStore struct {
	conn *Conn
}

// NewPriceSnapshotStore creates a new PriceSnapshotStore.
func NewPriceSnapshotStore(conn *Conn) *PriceSnapshotStore {
	return &PriceSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// UpsertBulk inserts or replaces snapshots keyed by (run_id, ticker).
func (s *PriceSnapshotStore) UpsertBulk(ctx context.Context, snaps []*domain.PriceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_snapshots (run_id, ts_kst, ticker, price)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snaps {
		if snap == nil {
			return storage.ErrInvalidInput
		}
		if err := batch.Append(snap.RunID, snap.TS.In(timeutil.KST), snap.Ticker, snap.Price); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// EarliestAtOrAfter returns the earliest snapshot for ticker with
// ts >= at. Returns ErrNotFound when none exists.
func (s *PriceSnapshotStore) EarliestAtOrAfter(ctx context.Context, ticker string, at time.Time) (*domain.PriceSnapshot, error) {
	query := `
		SELECT run_id, ts_kst, ticker, price
		FROM price_snapshots FINAL
		WHERE ticker = ? AND ts_kst >= ?
		ORDER BY ts_kst ASC, run_id ASC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, ticker, at)
	if err != nil {
		return nil, fmt.Errorf("query earliest snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate snapshot rows: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var snap domain.PriceSnapshot
	var ts time.Time
	if err := rows.Scan(&snap.RunID, &ts, &snap.Ticker, &snap.Price); err != nil {
		return nil, fmt.Errorf("scan snapshot row: %w", err)
	}
	snap.TS = ts.In(timeutil.KST)
	return &snap, nil
}
