// Package live places real broker orders with the same two-pass shape
// as the paper simulator, behind a per-cycle risk overlay.
package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/observability"
	"krx-momentum-lab/internal/provider"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
)

// TradingEnabledKey is the bot-state toggle for live order placement.
const TradingEnabledKey = "live_trading_enabled"

// Executor statuses.
const (
	StatusDisabled            = "disabled"
	StatusLiveEnvOff          = "live_env_off"
	StatusProviderUnsupported = "provider_unsupported"
	StatusBalanceError        = "balance_error"
	StatusStandby             = "standby"
	StatusDailyLimitReached   = "daily_limit_reached"
	StatusOrdersSubmitted     = "orders_submitted"
	StatusPartialFailed       = "partial_failed"
	StatusAllFailed           = "all_failed"
	StatusNoOrder             = "no_order"
)

// Live exit rule thresholds, on top of the simulator's.
const (
	hardStopPnl    = -0.08
	stopLossRet    = -0.035
	drawdownBreak  = -0.10
	reversalFlow   = -0.6
	reversalScore  = 45.0
	fadeRet        = 0.07
	fadePnl        = 0.12
	fadeFlowCeiling = 0.2
)

// Config holds the executor's environment-driven parameters.
type Config struct {
	Enable              bool
	AutoStart           bool
	AllowSell           bool
	EntryScoreThreshold float64
	MaxTradesPerDay     int
	MaxPositions        int
	MaxCapitalKRW       float64
	MinOrderKRW         float64
	MaxOrderPct         float64
	CashReservePct      float64
	OrderType           string
	RetryOnFundError    bool
	RiskOffDayLossPct   float64
	RiskOffDrawdownPct  float64
	RiskOnDayGainPct    float64
}

// Summary reports one executor cycle to the caller.
type Summary struct {
	Enabled               bool
	Active                bool
	Status                string
	Error                 string
	OrdersSubmitted       int
	OrdersFailed          int
	Buys                  int
	Sells                 int
	Threshold             float64
	Cash                  float64
	TotalAsset            float64
	Positions             int
	TradesToday           int
	BuyBudget             float64
	ReserveCash           float64
	MaxPositionsEffective int
	Risk                  *RiskOverlay
}

// Executor runs live cycles against the broker and the live stores.
type Executor struct {
	market       provider.MarketDataProvider
	liveAccounts storage.LiveAccountStore
	livePosns    storage.LivePositionStore
	liveOrders   storage.LiveOrderStore
	botState     storage.BotStateStore
	cfg          Config
}

// New creates an Executor. The broker capability is discovered from
// the market provider at execution time.
func New(market provider.MarketDataProvider, accounts storage.LiveAccountStore, positions storage.LivePositionStore, orders storage.LiveOrderStore, botState storage.BotStateStore, cfg Config) *Executor {
	return &Executor{
		market:       market,
		liveAccounts: accounts,
		livePosns:    positions,
		liveOrders:   orders,
		botState:     botState,
		cfg:          cfg,
	}
}

// TradingEnabled reads the persisted toggle. When the key is unset and
// defaultOn holds, the toggle is initialized on.
func (e *Executor) TradingEnabled(ctx context.Context, ts time.Time, defaultOn bool) (bool, error) {
	raw, err := e.botState.Get(ctx, TradingEnabledKey)
	if errors.Is(err, storage.ErrNotFound) {
		if defaultOn {
			if err := e.botState.Set(ctx, TradingEnabledKey, "1", ts); err != nil {
				return false, fmt.Errorf("init trading toggle: %w", err)
			}
			return true, nil
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read trading toggle: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	}
	return false, nil
}

// SetTradingEnabled persists the toggle.
func (e *Executor) SetTradingEnabled(ctx context.Context, enabled bool, ts time.Time) error {
	v := "0"
	if enabled {
		v = "1"
	}
	return e.botState.Set(ctx, TradingEnabledKey, v, ts)
}

// Execute runs one live cycle: toggle and budget gates, pre-run
// balance sync, risk overlay, exit pass, mid-run resync, entry pass,
// post-run resync. Broker failures on individual orders are logged and
// never abort the cycle.
func (e *Executor) Execute(ctx context.Context, runID int64, ts time.Time, ranked []*domain.Candidate, market []domain.MarketRow, strategyThreshold float64) (*Summary, error) {
	baseThreshold := math.Max(e.cfg.EntryScoreThreshold, strategyThreshold)
	summary := &Summary{Enabled: e.cfg.Enable, Status: StatusDisabled, Threshold: baseThreshold}

	if !e.cfg.Enable {
		summary.Status = StatusLiveEnvOff
		return summary, nil
	}
	broker, ok := e.market.(provider.BrokerExecution)
	if !ok {
		summary.Status = StatusProviderUnsupported
		return summary, nil
	}

	active, err := e.TradingEnabled(ctx, ts, e.cfg.AutoStart)
	if err != nil {
		return nil, err
	}
	summary.Active = active

	snapPre, err := e.syncSnapshot(ctx, broker, ts, fmt.Sprintf("pre-run:%d:active=%d", runID, boolInt(active)))
	if err != nil {
		summary.Status = StatusBalanceError
		summary.Error = err.Error()
		return summary, nil
	}
	summary.Cash = snapPre.Cash
	summary.TotalAsset = snapPre.TotalAsset
	summary.Positions = len(snapPre.Positions)

	if !active {
		summary.Status = StatusStandby
		return summary, nil
	}

	day := timeutil.DayKey(ts)
	tradesToday, err := e.liveOrders.CountByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("count daily orders: %w", err)
	}
	summary.TradesToday = tradesToday
	budgetLeft := e.cfg.MaxTradesPerDay - tradesToday
	if budgetLeft <= 0 {
		summary.Status = StatusDailyLimitReached
		return summary, nil
	}

	risk, err := e.buildRiskOverlay(ctx, ts, baseThreshold, snapPre)
	if err != nil {
		return nil, err
	}
	summary.Risk = risk
	summary.Threshold = risk.EffectiveThreshold

	marketByTicker := make(map[string]domain.MarketRow, len(market))
	for _, row := range market {
		marketByTicker[row.Ticker] = row
	}

	// Exit pass.
	if e.cfg.AllowSell {
		for _, pos := range snapPre.Positions {
			if budgetLeft <= 0 {
				break
			}
			row, ok := marketByTicker[pos.Ticker]
			if !ok {
				continue
			}
			reason, sell := sellRule(row, pos)
			if !sell || pos.Qty <= 0 {
				continue
			}
			px := firstPositive(row.Price, pos.LastPrice, pos.AvgPrice)
			if px <= 0 {
				continue
			}
			name := firstNonEmpty(row.Name, pos.Name, pos.Ticker)
			order := &domain.LiveOrder{
				TS: ts, Side: domain.SideSell, Ticker: pos.Ticker, Name: name,
				Qty: pos.Qty, Price: px, Reason: reason, RunID: runID,
			}
			res, err := broker.PlaceCashOrder(ctx, pos.Ticker, pos.Qty, domain.SideSell, e.cfg.OrderType, 0)
			if err != nil {
				order.Status = domain.OrderStatusFailed
				order.Reason = fmt.Sprintf("%s|%s", reason, truncate(err.Error(), 160))
				summary.OrdersFailed++
			} else {
				order.Status = domain.OrderStatusSubmitted
				order.OrderNo = res.OrderNo
				summary.OrdersSubmitted++
				summary.Sells++
			}
			if err := e.appendOrder(ctx, order); err != nil {
				return nil, err
			}
			budgetLeft--
		}
	}

	// Sells change available cash; resync before entries. A failed
	// resync falls back to the pre-run snapshot.
	snapMid, err := e.syncSnapshot(ctx, broker, ts, fmt.Sprintf("mid-run:%d", runID))
	if err != nil {
		snapMid = snapPre
	}

	held := make(map[string]bool, len(snapMid.Positions))
	usedCapital := 0.0
	for _, p := range snapMid.Positions {
		if p.Ticker != "" {
			held[p.Ticker] = true
		}
		usedCapital += p.EvalAmount
	}
	buyBudget, reserveCash := calcBuyBudget(snapMid.Cash, snapMid.TotalAsset, usedCapital, e.cfg.MaxCapitalKRW, risk.ReservePct)
	summary.BuyBudget = buyBudget
	summary.ReserveCash = reserveCash

	maxPosEffective := int(math.Round(float64(e.cfg.MaxPositions) * risk.PositionScale))
	if maxPosEffective < 1 {
		maxPosEffective = 1
	}
	summary.MaxPositionsEffective = maxPosEffective
	slots := maxPosEffective - len(held)

	bpCache := make(map[string]*provider.BuyingPower)

	// Entry pass.
	for _, c := range ranked {
		if slots <= 0 || budgetLeft <= 0 || buyBudget <= 0 {
			break
		}
		ticker := strings.TrimSpace(c.Ticker)
		if ticker == "" || held[ticker] {
			continue
		}
		if c.Score < risk.EffectiveThreshold {
			continue
		}
		px := c.Price
		if px <= 0 {
			continue
		}

		remaining := min(slots, budgetLeft)
		if remaining < 1 {
			remaining = 1
		}
		perSlot := buyBudget / float64(remaining)
		maxOrderValue := math.Max(e.cfg.MinOrderKRW, snapMid.TotalAsset*e.cfg.MaxOrderPct)
		target := math.Min(math.Min(perSlot*risk.OrderScale, maxOrderValue), buyBudget)

		bp := e.inquireBuyingPower(ctx, ticker, px, bpCache, false)
		var psblQty int64
		if bp != nil {
			psblQty = bp.MaxBuyQty
			psblCash := math.Max(bp.OrdPsblCash, bp.MaxBuyAmt)
			if psblCash > 0 {
				target = math.Min(target, psblCash)
			}
		}

		if target < e.cfg.MinOrderKRW {
			continue
		}
		qty := int64(target / px)
		if psblQty > 0 && qty > psblQty {
			qty = psblQty
		}
		if qty <= 0 {
			continue
		}

		name := firstNonEmpty(c.Name, ticker)
		finalQty := qty
		orderNo := ""
		status := domain.OrderStatusSubmitted
		reason := fmt.Sprintf("entry_score=%.2f|thr=%.2f|risk=%s", c.Score, risk.EffectiveThreshold, risk.Mode)
		estCost := float64(qty) * px

		res, err := broker.PlaceCashOrder(ctx, ticker, qty, domain.SideBuy, e.cfg.OrderType, 0)
		if err != nil {
			errText := truncate(err.Error(), 180)
			if e.cfg.RetryOnFundError && isFundLimitError(err.Error()) {
				retryBP := e.inquireBuyingPower(ctx, ticker, px, bpCache, true)
				var retryCap int64
				if retryBP != nil {
					retryCap = retryBP.MaxBuyQty
				}
				var retryQty int64
				if retryCap > 0 {
					retryQty = minI64(retryCap, maxI64(1, int64(float64(qty)*0.6)))
				} else {
					retryQty = maxI64(1, int64(float64(qty)*0.5))
				}
				if retryQty < qty && retryQty > 0 {
					res2, err2 := broker.PlaceCashOrder(ctx, ticker, retryQty, domain.SideBuy, e.cfg.OrderType, 0)
					if err2 != nil {
						status = domain.OrderStatusFailed
						reason += fmt.Sprintf("|%s|retry_fail=%s", errText, truncate(err2.Error(), 120))
					} else {
						finalQty = retryQty
						estCost = float64(finalQty) * px
						orderNo = res2.OrderNo
						reason += fmt.Sprintf("|retry_qty=%d|first_err=%s", retryQty, truncate(errText, 90))
					}
				} else {
					status = domain.OrderStatusFailed
					reason += fmt.Sprintf("|%s|retry_skip=qty_cap", errText)
				}
			} else {
				status = domain.OrderStatusFailed
				reason += "|" + errText
			}
		} else {
			orderNo = res.OrderNo
		}

		if err := e.appendOrder(ctx, &domain.LiveOrder{
			TS: ts, Side: domain.SideBuy, Ticker: ticker, Name: name,
			Qty: finalQty, Price: px, OrderNo: orderNo, Status: status,
			Reason: truncate(reason, 280), RunID: runID,
		}); err != nil {
			return nil, err
		}
		budgetLeft--
		if status == domain.OrderStatusSubmitted {
			buyBudget = math.Max(0, buyBudget-estCost)
			held[ticker] = true
			slots--
			summary.OrdersSubmitted++
			summary.Buys++
		} else {
			summary.OrdersFailed++
		}
		// After a fund-limit failure, shrink the remaining budget to
		// avoid repeat rejections in the same cycle.
		if isFundLimitError(reason) {
			buyBudget = math.Max(0, buyBudget*0.6)
		}
	}

	if snapPost, err := e.syncSnapshot(ctx, broker, ts, fmt.Sprintf("post-run:%d", runID)); err == nil {
		summary.Cash = snapPost.Cash
		summary.TotalAsset = snapPost.TotalAsset
		summary.Positions = len(snapPost.Positions)
	}

	switch {
	case summary.OrdersSubmitted > 0 && summary.OrdersFailed == 0:
		summary.Status = StatusOrdersSubmitted
	case summary.OrdersSubmitted > 0:
		summary.Status = StatusPartialFailed
	case summary.OrdersFailed > 0:
		summary.Status = StatusAllFailed
	default:
		summary.Status = StatusNoOrder
	}
	return summary, nil
}

// syncSnapshot fetches the broker balance, appends an account row and
// full-replaces the mirrored positions table.
func (e *Executor) syncSnapshot(ctx context.Context, broker provider.BrokerExecution, ts time.Time, note string) (*provider.Balance, error) {
	bal, err := broker.InquireBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("inquire balance: %w", err)
	}
	if bal.TotalAsset <= 0 {
		bal.TotalAsset = bal.Cash + bal.TotalEval
	}
	if _, err := e.liveAccounts.Append(ctx, &domain.LiveAccount{
		TS: ts, Cash: bal.Cash, TotalEval: bal.TotalEval, TotalAsset: bal.TotalAsset, Note: note,
	}); err != nil {
		return nil, fmt.Errorf("append balance snapshot: %w", err)
	}
	positions := make([]*domain.LivePosition, 0, len(bal.Positions))
	for i := range bal.Positions {
		p := bal.Positions[i]
		if p.Qty <= 0 || strings.TrimSpace(p.Ticker) == "" {
			continue
		}
		p.Updated = ts
		if p.Name == "" {
			p.Name = p.Ticker
		}
		positions = append(positions, &p)
	}
	if err := e.livePosns.ReplaceAll(ctx, positions); err != nil {
		return nil, fmt.Errorf("replace live positions: %w", err)
	}
	return bal, nil
}

func (e *Executor) appendOrder(ctx context.Context, o *domain.LiveOrder) error {
	if _, err := e.liveOrders.Append(ctx, o); err != nil {
		return fmt.Errorf("append live order: %w", err)
	}
	observability.DefaultMetrics.LiveOrdersTotal.WithLabelValues(o.Side, o.Status).Inc()
	return nil
}

func (e *Executor) inquireBuyingPower(ctx context.Context, ticker string, price float64, cache map[string]*provider.BuyingPower, refresh bool) *provider.BuyingPower {
	inq, ok := e.market.(provider.BuyingPowerInquirer)
	if !ok {
		return nil
	}
	key := fmt.Sprintf("%s:%d:%s", ticker, int64(math.Round(math.Max(1, price))), e.cfg.OrderType)
	if !refresh {
		if bp, ok := cache[key]; ok {
			return bp
		}
	}
	bp, err := inq.InquireBuyingPower(ctx, ticker, price, e.cfg.OrderType)
	if err != nil || bp == nil {
		return nil
	}
	cache[key] = bp
	return bp
}

// sellRule applies the live exit triggers: the simulator's rules plus
// the pnl hard stop and the flow reversal/fade signals.
func sellRule(row domain.MarketRow, pos domain.LivePosition) (string, bool) {
	if pos.PnlPct <= hardStopPnl {
		return "hard_stop_pnl", true
	}
	if row.Ret1 <= stopLossRet {
		return "stop_loss_1h", true
	}
	if row.Drawdown20 < drawdownBreak {
		return "drawdown_break", true
	}
	if row.Flow < reversalFlow && row.Score < reversalScore {
		return "flow_reversal", true
	}
	if (row.Ret1 >= fadeRet && row.Flow < 0) || (pos.PnlPct >= fadePnl && row.Flow < fadeFlowCeiling) {
		return "take_profit_fade", true
	}
	return "", false
}

// calcBuyBudget derives spendable cash after the reserve and the
// optional absolute capital cap.
func calcBuyBudget(cashNow, totalAsset, usedCapital, capitalCap, reservePct float64) (buyBudget, reserveCash float64) {
	reserveCash = math.Max(0, totalAsset*math.Max(0, reservePct))
	spendable := math.Max(0, cashNow-reserveCash)
	if capitalCap > 0 {
		headroom := math.Max(0, capitalCap-usedCapital)
		return math.Min(spendable, headroom), reserveCash
	}
	return spendable, reserveCash
}

// isFundLimitError recognizes broker fund/margin rejections by error
// code or the Korean insufficient-funds phrases.
func isFundLimitError(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "apbk0952") ||
		strings.Contains(m, "주문가능금액") ||
		(strings.Contains(m, "증거금") && strings.Contains(m, "부족"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
