// Package paper simulates fills against a single persistent ledger.
// One cycle is budget check, exit pass, entry pass, then mark-to-market
// and persist.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/observability"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// Sell rule thresholds.
const (
	stopLossRet    = -0.035
	takeProfitRet  = 0.06
	trendBreakDraw = -0.09
)

// Config holds the simulator's trading parameters.
type Config struct {
	InitialCash         float64
	MaxTradesPerDay     int
	MaxPositions        int
	EntryScoreThreshold float64
	FeeBps              float64
	SlippageBps         float64
}

// DefaultConfig returns the production simulator configuration.
func DefaultConfig() Config {
	return Config{
		InitialCash:         1_000_000,
		MaxTradesPerDay:     10,
		MaxPositions:        3,
		EntryScoreThreshold: 55,
		FeeBps:              1.5,
		SlippageBps:         3.0,
	}
}

// Summary reports one cycle's activity.
type Summary struct {
	Orders int
	Cash   float64
	NAV    float64
}

// Simulator executes paper cycles against the ledger stores.
type Simulator struct {
	accounts  storage.PaperAccountStore
	positions storage.PaperPositionStore
	orders    storage.PaperOrderStore
	cfg       Config
}

// New creates a Simulator over the given stores.
func New(accounts storage.PaperAccountStore, positions storage.PaperPositionStore, orders storage.PaperOrderStore, cfg Config) *Simulator {
	return &Simulator{accounts: accounts, positions: positions, orders: orders, cfg: cfg}
}

// Run executes one cycle. ranked must be sorted by score descending.
// fallbackPrices supplies mark prices for held tickers absent from the
// market state; a position's own average cost is the final fallback.
func (s *Simulator) Run(ctx context.Context, runID int64, ts time.Time, ranked []*domain.Candidate, market []domain.MarketRow, fallbackPrices map[string]float64) (*Summary, error) {
	day := timeutil.DayKey(ts)
	tradesToday, err := s.orders.CountByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("count daily orders: %w", err)
	}
	budgetLeft := s.cfg.MaxTradesPerDay - tradesToday
	if budgetLeft < 0 {
		budgetLeft = 0
	}

	cash, err := s.latestCash(ctx)
	if err != nil {
		return nil, err
	}
	if cash <= 0 && tradesToday == 0 {
		cash = s.cfg.InitialCash
	}

	held, err := s.positions.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	positions := make(map[string]*domain.PaperPosition, len(held))
	for _, p := range held {
		positions[p.Ticker] = p
	}

	marketByTicker := make(map[string]domain.MarketRow, len(market))
	priceMap := make(map[string]float64, len(market)+len(fallbackPrices))
	for _, row := range market {
		marketByTicker[row.Ticker] = row
		priceMap[row.Ticker] = row.Price
	}
	for ticker, px := range fallbackPrices {
		if _, ok := priceMap[ticker]; !ok {
			priceMap[ticker] = px
		}
	}

	if budgetLeft == 0 {
		nav := markToMarket(cash, positions, priceMap)
		note := fmt.Sprintf("paper-run:%d:limit-reached", runID)
		if _, err := s.accounts.Append(ctx, &domain.PaperAccount{TS: ts, Cash: cash, NAV: nav, Note: note}); err != nil {
			return nil, fmt.Errorf("append account row: %w", err)
		}
		return &Summary{Orders: 0, Cash: round2(cash), NAV: round2(nav)}, nil
	}

	var orders []*domain.PaperOrder

	// Exit pass runs over current holdings against the full market
	// state, not only the top entries.
	for _, p := range held {
		if budgetLeft == 0 {
			break
		}
		row, ok := marketByTicker[p.Ticker]
		if !ok {
			continue
		}
		reason, sell := sellRule(row)
		if !sell || p.Qty <= 0 {
			continue
		}
		execPrice := row.Price * (1 - s.cfg.SlippageBps/10000)
		gross := float64(p.Qty) * execPrice
		fee := gross * s.cfg.FeeBps / 10000
		cash += gross - fee
		orders = append(orders, &domain.PaperOrder{
			TS:     ts,
			Side:   domain.SideSell,
			Ticker: p.Ticker,
			Name:   nameOr(row.Name, p.Name),
			Qty:    p.Qty,
			Price:  execPrice,
			Reason: fmt.Sprintf("%s|fee=%.2f", reason, fee),
			RunID:  runID,
		})
		delete(positions, p.Ticker)
		budgetLeft--
	}

	// Entry pass, top rank first. The per-slot allocation is computed
	// once from post-exit cash and reused for every buy in the cycle.
	slots := s.cfg.MaxPositions - len(positions)
	if slots > 0 && budgetLeft > 0 {
		denom := min(slots, budgetLeft)
		if denom < 1 {
			denom = 1
		}
		allocation := cash / float64(denom)
		for _, c := range ranked {
			if slots == 0 || budgetLeft == 0 {
				break
			}
			if _, holding := positions[c.Ticker]; holding {
				continue
			}
			if c.Score < s.cfg.EntryScoreThreshold {
				continue
			}
			execPrice := c.Price * (1 + s.cfg.SlippageBps/10000)
			qty := int64(allocation / execPrice)
			if qty <= 0 {
				continue
			}
			gross := float64(qty) * execPrice
			fee := gross * s.cfg.FeeBps / 10000
			total := gross + fee
			if total > cash {
				continue
			}
			cash -= total
			positions[c.Ticker] = &domain.PaperPosition{
				Ticker:   c.Ticker,
				Name:     nameOr(c.Name, c.Ticker),
				Qty:      qty,
				AvgPrice: execPrice,
				Updated:  ts,
			}
			orders = append(orders, &domain.PaperOrder{
				TS:     ts,
				Side:   domain.SideBuy,
				Ticker: c.Ticker,
				Name:   nameOr(c.Name, c.Ticker),
				Qty:    qty,
				Price:  execPrice,
				Reason: fmt.Sprintf("top-score-entry|fee=%.2f", fee),
				RunID:  runID,
			})
			slots--
			budgetLeft--
		}
	}

	if err := s.orders.AppendBulk(ctx, orders); err != nil {
		return nil, fmt.Errorf("append orders: %w", err)
	}
	for _, o := range orders {
		observability.DefaultMetrics.PaperOrdersTotal.WithLabelValues(o.Side).Inc()
	}
	remaining := make([]*domain.PaperPosition, 0, len(positions))
	for _, p := range positions {
		remaining = append(remaining, p)
	}
	if err := s.positions.ReplaceAll(ctx, remaining); err != nil {
		return nil, fmt.Errorf("replace positions: %w", err)
	}
	nav := markToMarket(cash, positions, priceMap)
	note := fmt.Sprintf("paper-run:%d", runID)
	if _, err := s.accounts.Append(ctx, &domain.PaperAccount{TS: ts, Cash: cash, NAV: nav, Note: note}); err != nil {
		return nil, fmt.Errorf("append account row: %w", err)
	}
	return &Summary{Orders: len(orders), Cash: round2(cash), NAV: round2(nav)}, nil
}

func (s *Simulator) latestCash(ctx context.Context) (float64, error) {
	latest, err := s.accounts.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return s.cfg.InitialCash, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load latest account: %w", err)
	}
	return latest.Cash, nil
}

func sellRule(row domain.MarketRow) (string, bool) {
	if row.Ret1 <= stopLossRet {
		return "stop-loss", true
	}
	if row.Ret1 >= takeProfitRet {
		return "take-profit", true
	}
	if row.Drawdown20 < trendBreakDraw {
		return "trend-break", true
	}
	return "", false
}

func markToMarket(cash float64, positions map[string]*domain.PaperPosition, priceMap map[string]float64) float64 {
	nav := cash
	for _, p := range positions {
		px, ok := priceMap[p.Ticker]
		if !ok {
			px = p.AvgPrice
		}
		nav += px * float64(p.Qty)
	}
	return nav
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
