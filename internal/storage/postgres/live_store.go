package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// LiveAccountStore implements storage.LiveAccountStore using PostgreSQL.
type LiveAccountStore struct {
	pool *Pool
}

// NewLiveAccountStore creates a new LiveAccountStore.
func NewLiveAccountStore(pool *Pool) *LiveAccountStore {
	return &LiveAccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LiveAccountStore = (*LiveAccountStore)(nil)

// Append adds one snapshot and returns its snap_id.
func (s *LiveAccountStore) Append(ctx context.Context, a *domain.LiveAccount) (int64, error) {
	if a == nil {
		return 0, storage.ErrInvalidInput
	}

	var snapID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO live_accounts (ts_kst, cash, total_eval, total_asset, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING snap_id
	`, a.TS, a.Cash, a.TotalEval, a.TotalAsset, a.Note).Scan(&snapID)
	if err != nil {
		return 0, fmt.Errorf("append live account: %w", err)
	}
	return snapID, nil
}

// FirstOfDay returns the earliest snapshot of the KST calendar date.
func (s *LiveAccountStore) FirstOfDay(ctx context.Context, day string) (*domain.LiveAccount, error) {
	query := `
		SELECT snap_id, ts_kst, cash, total_eval, total_asset, note
		FROM live_accounts
		WHERE to_char(ts_kst AT TIME ZONE 'Asia/Seoul', 'YYYY-MM-DD') = $1
		ORDER BY snap_id ASC
		LIMIT 1
	`

	var a domain.LiveAccount
	err := s.pool.QueryRow(ctx, query, day).Scan(&a.SnapID, &a.TS, &a.Cash, &a.TotalEval, &a.TotalAsset, &a.Note)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get first live account of day: %w", err)
	}
	return &a, nil
}

// Recent retrieves up to limit snapshots ordered by snap_id DESC.
func (s *LiveAccountStore) Recent(ctx context.Context, limit int) ([]*domain.LiveAccount, error) {
	query := `
		SELECT snap_id, ts_kst, cash, total_eval, total_asset, note
		FROM live_accounts
		ORDER BY snap_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent live accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.LiveAccount
	for rows.Next() {
		var a domain.LiveAccount
		if err := rows.Scan(&a.SnapID, &a.TS, &a.Cash, &a.TotalEval, &a.TotalAsset, &a.Note); err != nil {
			return nil, fmt.Errorf("scan live account row: %w", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate live account rows: %w", err)
	}
	return accounts, nil
}

// LivePositionStore implements storage.LivePositionStore using PostgreSQL.
type LivePositionStore struct {
	pool *Pool
}

// NewLivePositionStore creates a new LivePositionStore.
func NewLivePositionStore(pool *Pool) *LivePositionStore {
	return &LivePositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LivePositionStore = (*LivePositionStore)(nil)

// ReplaceAll atomically replaces the whole table.
func (s *LivePositionStore) ReplaceAll(ctx context.Context, positions []*domain.LivePosition) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace live positions: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM live_positions`); err != nil {
		return fmt.Errorf("clear live positions: %w", err)
	}
	query := `
		INSERT INTO live_positions (ticker, name, qty, avg_price, last_price, eval_amount, pnl_amount, pnl_pct, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, p := range positions {
		if p == nil {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			p.Ticker, p.Name, p.Qty, p.AvgPrice, p.LastPrice, p.EvalAmount, p.PnlAmount, p.PnlPct, p.Updated)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrInvalidInput
			}
			return fmt.Errorf("insert live position: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace live positions: %w", err)
	}
	return nil
}

// GetAll retrieves all holdings, ordered by ticker ASC.
func (s *LivePositionStore) GetAll(ctx context.Context) ([]*domain.LivePosition, error) {
	query := `
		SELECT ticker, name, qty, avg_price, last_price, eval_amount, pnl_amount, pnl_pct, updated
		FROM live_positions
		ORDER BY ticker ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get live positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.LivePosition
	for rows.Next() {
		var p domain.LivePosition
		err := rows.Scan(&p.Ticker, &p.Name, &p.Qty, &p.AvgPrice, &p.LastPrice, &p.EvalAmount, &p.PnlAmount, &p.PnlPct, &p.Updated)
		if err != nil {
			return nil, fmt.Errorf("scan live position row: %w", err)
		}
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate live position rows: %w", err)
	}
	return positions, nil
}

// LiveOrderStore implements storage.LiveOrderStore using PostgreSQL.
type LiveOrderStore struct {
	pool *Pool
}

// NewLiveOrderStore creates a new LiveOrderStore.
func NewLiveOrderStore(pool *Pool) *LiveOrderStore {
	return &LiveOrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LiveOrderStore = (*LiveOrderStore)(nil)

// Append adds one order attempt and returns its order_id.
func (s *LiveOrderStore) Append(ctx context.Context, o *domain.LiveOrder) (int64, error) {
	if o == nil {
		return 0, storage.ErrInvalidInput
	}

	var orderID int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO live_orders (ts_kst, side, ticker, name, qty, price, order_no, status, reason, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING order_id
	`, o.TS, o.Side, o.Ticker, o.Name, o.Qty, o.Price, o.OrderNo, o.Status, o.Reason, o.RunID).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("append live order: %w", err)
	}
	return orderID, nil
}

// CountByDay counts orders whose KST calendar date equals day.
func (s *LiveOrderStore) CountByDay(ctx context.Context, day string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM live_orders
		WHERE to_char(ts_kst AT TIME ZONE 'Asia/Seoul', 'YYYY-MM-DD') = $1
	`

	var n int
	if err := s.pool.QueryRow(ctx, query, day).Scan(&n); err != nil {
		return 0, fmt.Errorf("count live orders by day: %w", err)
	}
	return n, nil
}

// StatsByDay summarizes submitted/failed/total for the day.
func (s *LiveOrderStore) StatsByDay(ctx context.Context, day string) (domain.LiveOrderStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*)
		FROM live_orders
		WHERE to_char(ts_kst AT TIME ZONE 'Asia/Seoul', 'YYYY-MM-DD') = $1
	`

	var st domain.LiveOrderStats
	err := s.pool.QueryRow(ctx, query, day,
		string(domain.OrderStatusSubmitted), string(domain.OrderStatusFailed)).
		Scan(&st.Submitted, &st.Failed, &st.Total)
	if err != nil {
		return domain.LiveOrderStats{}, fmt.Errorf("live order stats by day: %w", err)
	}
	return st, nil
}

// TrainingReportStore implements storage.TrainingReportStore using PostgreSQL.
type TrainingReportStore struct {
	pool *Pool
}

// NewTrainingReportStore creates a new TrainingReportStore.
func NewTrainingReportStore(pool *Pool) *TrainingReportStore {
	return &TrainingReportStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TrainingReportStore = (*TrainingReportStore)(nil)

// Append adds one report and returns its report_id.
func (s *TrainingReportStore) Append(ctx context.Context, r *domain.TrainingReport) (int64, error) {
	if r == nil {
		return 0, storage.ErrInvalidInput
	}
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return 0, fmt.Errorf("marshal report metrics: %w", err)
	}
	gates, err := json.Marshal(r.Gates)
	if err != nil {
		return 0, fmt.Errorf("marshal report gates: %w", err)
	}
	riskPlan, err := json.Marshal(r.RiskPlan)
	if err != nil {
		return 0, fmt.Errorf("marshal report risk plan: %w", err)
	}
	checklist, err := json.Marshal(r.Checklist)
	if err != nil {
		return 0, fmt.Errorf("marshal report checklist: %w", err)
	}

	var reportID int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO training_reports (ts_kst, mode, score, level, ready, metrics_json, gates_json, risk_plan_json, checklist_json, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING report_id
	`, r.TS, r.Mode, r.Score, r.Level, r.Ready, metrics, gates, riskPlan, checklist, r.Note).Scan(&reportID)
	if err != nil {
		return 0, fmt.Errorf("append training report: %w", err)
	}
	return reportID, nil
}

// Recent retrieves up to limit reports ordered by report_id DESC.
func (s *TrainingReportStore) Recent(ctx context.Context, limit int) ([]*domain.TrainingReport, error) {
	query := `
		SELECT report_id, ts_kst, mode, score, level, ready, metrics_json, gates_json, risk_plan_json, checklist_json, note
		FROM training_reports
		ORDER BY report_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent training reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.TrainingReport
	for rows.Next() {
		var r domain.TrainingReport
		var metrics, gates, riskPlan, checklist []byte
		err := rows.Scan(&r.ReportID, &r.TS, &r.Mode, &r.Score, &r.Level, &r.Ready, &metrics, &gates, &riskPlan, &checklist, &r.Note)
		if err != nil {
			return nil, fmt.Errorf("scan training report row: %w", err)
		}
		if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal report metrics: %w", err)
		}
		if err := json.Unmarshal(gates, &r.Gates); err != nil {
			return nil, fmt.Errorf("unmarshal report gates: %w", err)
		}
		if err := json.Unmarshal(riskPlan, &r.RiskPlan); err != nil {
			return nil, fmt.Errorf("unmarshal report risk plan: %w", err)
		}
		if err := json.Unmarshal(checklist, &r.Checklist); err != nil {
			return nil, fmt.Errorf("unmarshal report checklist: %w", err)
		}
		reports = append(reports, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training report rows: %w", err)
	}
	return reports, nil
}
