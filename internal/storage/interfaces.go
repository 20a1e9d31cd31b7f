package storage

import (
	"context"
	"time"

	"krx-momentum-lab/internal/domain"
)

// RunStore provides access to the runs registry.
type RunStore interface {
	// Insert appends a run and returns its assigned run_id.
	Insert(ctx context.Context, r *domain.Run) (int64, error)

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID int64) (*domain.Run, error)

	// GetSince retrieves runs with ts >= since, ordered by run_id ASC.
	GetSince(ctx context.Context, since time.Time) ([]*domain.Run, error)

	// UpdateNote rewrites a run's note. Returns ErrNotFound if not exists.
	UpdateNote(ctx context.Context, runID int64, note string) error

	// GetAll retrieves every run, ordered by run_id ASC.
	GetAll(ctx context.Context) ([]*domain.Run, error)
}

// CandidateStore provides access to scored candidate snapshots.
type CandidateStore interface {
	// InsertBulk adds all candidates of one run atomically.
	InsertBulk(ctx context.Context, cands []*domain.Candidate) error

	// GetByRun retrieves the candidates of a run, ordered by score DESC.
	GetByRun(ctx context.Context, runID int64) ([]*domain.Candidate, error)

	// GetRecent retrieves up to limit candidates ordered by run_id DESC.
	GetRecent(ctx context.Context, limit int) ([]*domain.Candidate, error)
}

// OutcomeStore provides access to realized forward returns.
type OutcomeStore interface {
	// Get retrieves one outcome. Returns ErrNotFound if not exists.
	Get(ctx context.Context, runID int64, ticker string, horizon domain.Horizon) (*domain.Outcome, error)

	// Upsert inserts or replaces the outcome for its key.
	Upsert(ctx context.Context, o *domain.Outcome) error

	// GetByHorizon retrieves up to limit outcomes for a horizon,
	// ordered by run_id DESC. limit <= 0 means no limit.
	GetByHorizon(ctx context.Context, horizon domain.Horizon, limit int) ([]*domain.Outcome, error)
}

// PriceSnapshotStore provides access to per-run price snapshots.
type PriceSnapshotStore interface {
	// UpsertBulk inserts or replaces snapshots keyed by (run_id, ticker).
	UpsertBulk(ctx context.Context, snaps []*domain.PriceSnapshot) error

	// EarliestAtOrAfter returns the earliest snapshot for ticker with
	// ts >= at. Returns ErrNotFound when none exists.
	EarliestAtOrAfter(ctx context.Context, ticker string, at time.Time) (*domain.PriceSnapshot, error)
}

// WeightStore provides access to versioned scoring weight vectors.
type WeightStore interface {
	// LoadActive returns the most recent active version.
	// Returns ErrNotFound when no version has been activated yet.
	LoadActive(ctx context.Context) (*domain.WeightVersion, error)

	// Activate atomically deactivates the current active version and
	// inserts weights as the new active version.
	Activate(ctx context.Context, ts time.Time, weights domain.WeightVector) (int64, error)
}

// StrategyStateStore provides access to the regime state history.
type StrategyStateStore interface {
	// LoadActive returns the active state. Returns ErrNotFound when
	// no state row exists yet.
	LoadActive(ctx context.Context) (*domain.StrategyState, error)

	// Activate atomically deactivates the current state and inserts s
	// as the new active state.
	Activate(ctx context.Context, s *domain.StrategyState) (int64, error)
}

// ExperimentStore provides access to strategy-lab results.
type ExperimentStore interface {
	// LoadActive returns the active experiment. Returns ErrNotFound
	// when the lab has never produced one.
	LoadActive(ctx context.Context) (*domain.StrategyExperiment, error)

	// Activate atomically deactivates the current experiment and
	// inserts e as the new active one.
	Activate(ctx context.Context, e *domain.StrategyExperiment) (int64, error)
}

// PaperAccountStore provides access to the paper NAV ledger.
type PaperAccountStore interface {
	// Append adds one NAV/cash snapshot and returns its account_id.
	Append(ctx context.Context, a *domain.PaperAccount) (int64, error)

	// Latest returns the most recent snapshot. ErrNotFound when empty.
	Latest(ctx context.Context) (*domain.PaperAccount, error)

	// Previous returns the second most recent snapshot.
	// ErrNotFound when fewer than two rows exist.
	Previous(ctx context.Context) (*domain.PaperAccount, error)

	// GetSince retrieves snapshots with ts >= since, ordered ASC.
	GetSince(ctx context.Context, since time.Time) ([]*domain.PaperAccount, error)
}

// PaperPositionStore provides access to current paper holdings.
type PaperPositionStore interface {
	// ReplaceAll atomically replaces the whole table. Positions with
	// qty <= 0 are dropped; duplicate tickers are ErrInvalidInput.
	ReplaceAll(ctx context.Context, positions []*domain.PaperPosition) error

	// GetAll retrieves all holdings, ordered by ticker ASC.
	GetAll(ctx context.Context) ([]*domain.PaperPosition, error)
}

// PaperOrderStore provides access to the simulated trade log.
type PaperOrderStore interface {
	// AppendBulk adds all orders of one cycle atomically.
	AppendBulk(ctx context.Context, orders []*domain.PaperOrder) error

	// CountByDay counts orders whose KST calendar date equals day.
	CountByDay(ctx context.Context, day string) (int, error)

	// CountTotal counts all orders ever placed.
	CountTotal(ctx context.Context) (int, error)

	// CountSince counts orders with ts >= since.
	CountSince(ctx context.Context, since time.Time) (int, error)
}

// LiveAccountStore provides access to broker balance snapshots.
type LiveAccountStore interface {
	// Append adds one snapshot and returns its snap_id.
	Append(ctx context.Context, a *domain.LiveAccount) (int64, error)

	// FirstOfDay returns the earliest snapshot of the KST calendar
	// date. ErrNotFound when the day has no snapshot yet.
	FirstOfDay(ctx context.Context, day string) (*domain.LiveAccount, error)

	// Recent retrieves up to limit snapshots ordered by snap_id DESC.
	Recent(ctx context.Context, limit int) ([]*domain.LiveAccount, error)
}

// LivePositionStore provides access to mirrored broker holdings.
type LivePositionStore interface {
	// ReplaceAll atomically replaces the whole table.
	ReplaceAll(ctx context.Context, positions []*domain.LivePosition) error

	// GetAll retrieves all holdings, ordered by ticker ASC.
	GetAll(ctx context.Context) ([]*domain.LivePosition, error)
}

// LiveOrderStore provides access to the real order log.
type LiveOrderStore interface {
	// Append adds one order attempt and returns its order_id.
	Append(ctx context.Context, o *domain.LiveOrder) (int64, error)

	// CountByDay counts orders whose KST calendar date equals day.
	CountByDay(ctx context.Context, day string) (int, error)

	// StatsByDay summarizes submitted/failed/total for the day.
	StatsByDay(ctx context.Context, day string) (domain.LiveOrderStats, error)
}

// BotStateStore is the generic key->value flag store.
type BotStateStore interface {
	// Get returns the value for key. Returns ErrNotFound when unset.
	Get(ctx context.Context, key string) (string, error)

	// Set upserts the value for key.
	Set(ctx context.Context, key, value string, ts time.Time) error
}

// TrainingReportStore provides access to readiness report history.
type TrainingReportStore interface {
	// Append adds one report and returns its report_id.
	Append(ctx context.Context, r *domain.TrainingReport) (int64, error)

	// Recent retrieves up to limit reports ordered by report_id DESC.
	Recent(ctx context.Context, limit int) ([]*domain.TrainingReport, error)
}
