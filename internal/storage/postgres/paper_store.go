package postgres

import (
	"context"
	"fmt"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/storage"
)

// PaperAccountStore implements storage.PaperAccountStore using PostgreSQL.
type PaperAccountStore struct {
	pool *Pool
}

// NewPaperAccountStore creates a new PaperAccountStore.
func NewPaperAccountStore(pool *Pool) *PaperAccountStore {
	return &PaperAccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PaperAccountStore = (*PaperAccountStore)(nil)

// Append adds one NAV/cash snapshot and returns its account_id.
func (s *PaperAccountStore) Append(ctx context.Context, a *domain.PaperAccount) (int64, error) {
	if a == nil {
		return 0, storage.ErrInvalidInput
	}

	var accountID int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO paper_accounts (ts_kst, cash, nav, note) VALUES ($1, $2, $3, $4) RETURNING account_id`,
		a.TS, a.Cash, a.NAV, a.Note,
	).Scan(&accountID)
	if err != nil {
		return 0, fmt.Errorf("append paper account: %w", err)
	}
	return accountID, nil
}

// Latest returns the most recent snapshot. ErrNotFound when empty.
func (s *PaperAccountStore) Latest(ctx context.Context) (*domain.PaperAccount, error) {
	return s.byOffset(ctx, 0)
}

// Previous returns the second most recent snapshot.
func (s *PaperAccountStore) Previous(ctx context.Context) (*domain.PaperAccount, error) {
	return s.byOffset(ctx, 1)
}

func (s *PaperAccountStore) byOffset(ctx context.Context, offset int) (*domain.PaperAccount, error) {
	query := `
		SELECT account_id, ts_kst, cash, nav, note
		FROM paper_accounts
		ORDER BY account_id DESC
		LIMIT 1 OFFSET $1
	`

	var a domain.PaperAccount
	err := s.pool.QueryRow(ctx, query, offset).Scan(&a.AccountID, &a.TS, &a.Cash, &a.NAV, &a.Note)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get paper account: %w", err)
	}
	return &a, nil
}

// GetSince retrieves snapshots with ts >= since, ordered ASC.
func (s *PaperAccountStore) GetSince(ctx context.Context, since time.Time) ([]*domain.PaperAccount, error) {
	query := `
		SELECT account_id, ts_kst, cash, nav, note
		FROM paper_accounts
		WHERE ts_kst >= $1
		ORDER BY account_id ASC
	`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("get paper accounts since: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.PaperAccount
	for rows.Next() {
		var a domain.PaperAccount
		if err := rows.Scan(&a.AccountID, &a.TS, &a.Cash, &a.NAV, &a.Note); err != nil {
			return nil, fmt.Errorf("scan paper account row: %w", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper account rows: %w", err)
	}
	return accounts, nil
}

// PaperPositionStore implements storage.PaperPositionStore using PostgreSQL.
type PaperPositionStore struct {
	pool *Pool
}

// NewPaperPositionStore creates a new PaperPositionStore.
func NewPaperPositionStore(pool *Pool) *PaperPositionStore {
	return &PaperPositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PaperPositionStore = (*PaperPositionStore)(nil)

// ReplaceAll atomically replaces the whole table. Positions with
// qty <= 0 are dropped; duplicate tickers are ErrInvalidInput.
func (s *PaperPositionStore) ReplaceAll(ctx context.Context, positions []*domain.PaperPosition) error {
	seen := make(map[string]bool, len(positions))
	var kept []*domain.PaperPosition
	for _, p := range positions {
		if p == nil {
			return storage.ErrInvalidInput
		}
		if p.Qty <= 0 {
			continue
		}
		if seen[p.Ticker] {
			return storage.ErrInvalidInput
		}
		seen[p.Ticker] = true
		kept = append(kept, p)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace paper positions: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM paper_positions`); err != nil {
		return fmt.Errorf("clear paper positions: %w", err)
	}
	for _, p := range kept {
		_, err := tx.Exec(ctx,
			`INSERT INTO paper_positions (ticker, name, qty, avg_price, updated) VALUES ($1, $2, $3, $4, $5)`,
			p.Ticker, p.Name, p.Qty, p.AvgPrice, p.Updated,
		)
		if err != nil {
			return fmt.Errorf("insert paper position: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace paper positions: %w", err)
	}
	return nil
}

// GetAll retrieves all holdings, ordered by ticker ASC.
func (s *PaperPositionStore) GetAll(ctx context.Context) ([]*domain.PaperPosition, error) {
	query := `
		SELECT ticker, name, qty, avg_price, updated
		FROM paper_positions
		ORDER BY ticker ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get paper positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.PaperPosition
	for rows.Next() {
		var p domain.PaperPosition
		if err := rows.Scan(&p.Ticker, &p.Name, &p.Qty, &p.AvgPrice, &p.Updated); err != nil {
			return nil, fmt.Errorf("scan paper position row: %w", err)
		}
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paper position rows: %w", err)
	}
	return positions, nil
}

// PaperOrderStore implements storage.PaperOrderStore using PostgreSQL.
type PaperOrderStore struct {
	pool *Pool
}

// NewPaperOrderStore creates a new PaperOrderStore.
func NewPaperOrderStore(pool *Pool) *PaperOrderStore {
	return &PaperOrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PaperOrderStore = (*PaperOrderStore)(nil)

// AppendBulk adds all orders of one cycle atomically.
func (s *PaperOrderStore) AppendBulk(ctx context.Context, orders []*domain.PaperOrder) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append paper orders: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO paper_orders (ts_kst, side, ticker, name, qty, price, reason, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, o := range orders {
		if o == nil {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, query, o.TS, o.Side, o.Ticker, o.Name, o.Qty, o.Price, o.Reason, o.RunID); err != nil {
			return fmt.Errorf("insert paper order: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append paper orders: %w", err)
	}
	return nil
}

// CountByDay counts orders whose KST calendar date equals day.
func (s *PaperOrderStore) CountByDay(ctx context.Context, day string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM paper_orders
		WHERE to_char(ts_kst AT TIME ZONE 'Asia/Seoul', 'YYYY-MM-DD') = $1
	`

	var n int
	if err := s.pool.QueryRow(ctx, query, day).Scan(&n); err != nil {
		return 0, fmt.Errorf("count paper orders by day: %w", err)
	}
	return n, nil
}

// CountTotal counts all orders ever placed.
func (s *PaperOrderStore) CountTotal(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM paper_orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count paper orders: %w", err)
	}
	return n, nil
}

// CountSince counts orders with ts >= since.
func (s *PaperOrderStore) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM paper_orders WHERE ts_kst >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count paper orders since: %w", err)
	}
	return n, nil
}
