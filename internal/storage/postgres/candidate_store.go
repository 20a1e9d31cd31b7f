package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// CandidateStore implements storage.CandidateStore using PostgreSQL.
type CandidateStore struct {
	pool *Pool
}

// NewCandidateStore creates a new CandidateStore.
func NewCandidateStore(pool *Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandidateStore = (*CandidateStore)(nil)

// InsertBulk adds all candidates of one run atomically.
func (s *CandidateStore) InsertBulk(ctx context.Context, cands []*domain.Candidate) error {
	if len(cands) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert candidates: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO candidates (run_id, ticker, name, score, price, features_json, rationale)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, c := range cands {
		if c == nil {
			return storage.ErrInvalidInput
		}
		features, err := json.Marshal(c.Features)
		if err != nil {
			return fmt.Errorf("marshal candidate features: %w", err)
		}
		if _, err := tx.Exec(ctx, query, c.RunID, c.Ticker, c.Name, c.Score, c.Price, features, c.Rationale); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert candidate: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert candidates: %w", err)
	}
	return nil
}

// GetByRun retrieves the candidates of a run, ordered by score DESC.
func (s *CandidateStore) GetByRun(ctx context.Context, runID int64) ([]*domain.Candidate, error) {
	query := `
		SELECT run_id, ticker, name, score, price, features_json, rationale
		FROM candidates
		WHERE run_id = $1
		ORDER BY score DESC, ticker ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get candidates by run: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// GetRecent retrieves up to limit candidates ordered by run_id DESC.
func (s *CandidateStore) GetRecent(ctx context.Context, limit int) ([]*domain.Candidate, error) {
	query := `
		SELECT run_id, ticker, name, score, price, features_json, rationale
		FROM candidates
		ORDER BY run_id DESC, score DESC, ticker ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent candidates: %w", err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

func scanCandidates(rows pgx.Rows) ([]*domain.Candidate, error) {
	var cands []*domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var features []byte

		err := rows.Scan(&c.RunID, &c.Ticker, &c.Name, &c.Score, &c.Price, &features, &c.Rationale)
		if err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		if err := json.Unmarshal(features, &c.Features); err != nil {
			return nil, fmt.Errorf("unmarshal candidate features: %w", err)
		}
		cands = append(cands, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}
	return cands, nil
}
