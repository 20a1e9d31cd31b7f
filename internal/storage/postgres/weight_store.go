package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// WeightStore implements storage.WeightStore using PostgreSQL.
type WeightStore struct {
	pool *Pool
}

// NewWeightStore creates a new WeightStore.
func NewWeightStore(pool *Pool) *WeightStore {
	return &WeightStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WeightStore = (*WeightStore)(nil)

// LoadActive returns the most recent active version.
func (s *WeightStore) LoadActive(ctx context.Context) (*domain.WeightVersion, error) {
	query := `
		SELECT version, ts_kst, weights_json, active
		FROM weights
		WHERE active
		ORDER BY version DESC
		LIMIT 1
	`

	var v domain.WeightVersion
	var weights []byte
	err := s.pool.QueryRow(ctx, query).Scan(&v.Version, &v.TS, &weights, &v.Active)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load active weights: %w", err)
	}
	if err := json.Unmarshal(weights, &v.Weights); err != nil {
		return nil, fmt.Errorf("unmarshal weights: %w", err)
	}
	return &v, nil
}

// Activate atomically deactivates the current active version and
// inserts weights as the new active version.
func (s *WeightStore) Activate(ctx context.Context, ts time.Time, weights domain.WeightVector) (int64, error) {
	if len(weights) == 0 {
		return 0, storage.ErrInvalidInput
	}
	payload, err := json.Marshal(weights)
	if err != nil {
		return 0, fmt.Errorf("marshal weights: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin activate weights: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE weights SET active = FALSE WHERE active`); err != nil {
		return 0, fmt.Errorf("deactivate weights: %w", err)
	}

	var version int64
	err = tx.QueryRow(ctx,
		`INSERT INTO weights (ts_kst, weights_json, active) VALUES ($1, $2, TRUE) RETURNING version`,
		ts, payload,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("insert weights: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit activate weights: %w", err)
	}
	return version, nil
}

// StrategyStateStore implements storage.StrategyStateStore using PostgreSQL.
type StrategyStateStore struct {
	pool *Pool
}

// NewStrategyStateStore creates a new StrategyStateStore.
func NewStrategyStateStore(pool *Pool) *StrategyStateStore {
	return &StrategyStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StrategyStateStore = (*StrategyStateStore)(nil)

// LoadActive returns the active state.
func (s *StrategyStateStore) LoadActive(ctx context.Context) (*domain.StrategyState, error) {
	query := `
		SELECT state_id, ts_kst, regime, entry_score_threshold, position_scale, note, active
		FROM strategy_states
		WHERE active
		ORDER BY state_id DESC
		LIMIT 1
	`

	var st domain.StrategyState
	var regime string
	err := s.pool.QueryRow(ctx, query).
		Scan(&st.StateID, &st.TS, &regime, &st.EntryScoreThreshold, &st.PositionScale, &st.Note, &st.Active)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load active strategy state: %w", err)
	}
	st.Regime = domain.Regime(regime)
	return &st, nil
}

// Activate atomically deactivates the current state and inserts s as
// the new active state.
func (s *StrategyStateStore) Activate(ctx context.Context, state *domain.StrategyState) (int64, error) {
	if state == nil {
		return 0, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin activate strategy state: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE strategy_states SET active = FALSE WHERE active`); err != nil {
		return 0, fmt.Errorf("deactivate strategy states: %w", err)
	}

	var stateID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO strategy_states (ts_kst, regime, entry_score_threshold, position_scale, note, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING state_id
	`, state.TS, string(state.Regime), state.EntryScoreThreshold, state.PositionScale, state.Note).Scan(&stateID)
	if err != nil {
		return 0, fmt.Errorf("insert strategy state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit activate strategy state: %w", err)
	}
	return stateID, nil
}

// ExperimentStore implements storage.ExperimentStore using PostgreSQL.
type ExperimentStore struct {
	pool *Pool
}

// NewExperimentStore creates a new ExperimentStore.
func NewExperimentStore(pool *Pool) *ExperimentStore {
	return &ExperimentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExperimentStore = (*ExperimentStore)(nil)

// LoadActive returns the active experiment.
func (s *ExperimentStore) LoadActive(ctx context.Context) (*domain.StrategyExperiment, error) {
	query := `
		SELECT exp_id, ts_kst, params_json, metrics_json, objective, active
		FROM strategy_experiments
		WHERE active
		ORDER BY exp_id DESC
		LIMIT 1
	`

	var e domain.StrategyExperiment
	var params, metrics []byte
	err := s.pool.QueryRow(ctx, query).Scan(&e.ExpID, &e.TS, &params, &metrics, &e.Objective, &e.Active)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load active experiment: %w", err)
	}
	if err := json.Unmarshal(params, &e.Params); err != nil {
		return nil, fmt.Errorf("unmarshal experiment params: %w", err)
	}
	if err := json.Unmarshal(metrics, &e.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal experiment metrics: %w", err)
	}
	return &e, nil
}

// Activate atomically deactivates the current experiment and inserts e
// as the new active one.
func (s *ExperimentStore) Activate(ctx context.Context, e *domain.StrategyExperiment) (int64, error) {
	if e == nil {
		return 0, storage.ErrInvalidInput
	}
	params, err := json.Marshal(e.Params)
	if err != nil {
		return 0, fmt.Errorf("marshal experiment params: %w", err)
	}
	metrics, err := json.Marshal(e.Metrics)
	if err != nil {
		return 0, fmt.Errorf("marshal experiment metrics: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin activate experiment: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE strategy_experiments SET active = FALSE WHERE active`); err != nil {
		return 0, fmt.Errorf("deactivate experiments: %w", err)
	}

	var expID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO strategy_experiments (ts_kst, params_json, metrics_json, objective, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING exp_id
	`, e.TS, params, metrics, e.Objective).Scan(&expID)
	if err != nil {
		return 0, fmt.Errorf("insert experiment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit activate experiment: %w", err)
	}
	return expID, nil
}

// BotStateStore implements storage.BotStateStore using PostgreSQL.
type BotStateStore struct {
	pool *Pool
}

// NewBotStateStore creates a new BotStateStore.
func NewBotStateStore(pool *Pool) *BotStateStore {
	return &BotStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BotStateStore = (*BotStateStore)(nil)

// Get returns the value for key. Returns ErrNotFound when unset.
func (s *BotStateStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM bot_state WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get bot state: %w", err)
	}
	return value, nil
}

// Set upserts the value for key.
func (s *BotStateStore) Set(ctx context.Context, key, value string, ts time.Time) error {
	query := `
		INSERT INTO bot_state (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.pool.Exec(ctx, query, key, value, ts); err != nil {
		return fmt.Errorf("set bot state: %w", err)
	}
	return nil
}
