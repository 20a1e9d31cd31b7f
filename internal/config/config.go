// Package config loads runtime settings from the environment, with
// .env support for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"krx-momentum-lab/internal/coach"
	"krx-momentum-lab/internal/lab"
	"krx-momentum-lab/internal/live"
	"krx-momentum-lab/internal/newsrisk"
	"krx-momentum-lab/internal/paper"
	"krx-momentum-lab/internal/tuner"
)

// Settings is the full runtime configuration. Zero-credential fields
// are legal; operations requiring them fail at their own call sites.
type Settings struct {
	// Persistence. Empty PostgresDSN selects the in-memory backend.
	PostgresDSN   string
	ClickhouseDSN string

	// Observability. Empty disables the metrics listener.
	MetricsListenAddr string

	// Notification.
	TelegramBotToken string
	TelegramChatID   string

	// Market data / broker.
	DataProvider string // "kis" or "stub"
	KISAppKey    string
	KISAppSecret string
	KISAccountNo string
	KISIsPaper   bool

	// Realtime quote stream during the hourly scan.
	QuoteFeedEnable bool

	// Scan shape.
	Universe       string
	TopN           int
	MinValueKRW    float64
	MaxAbsReturn1h float64

	// Hourly run window (KST wall clock, inclusive).
	RunHourlyStart string
	RunHourlyEnd   string

	PaperEnable bool

	// Nightly toggles.
	StrategyLabEnable bool

	Paper paper.Config
	Live  live.Config
	Tuner tuner.Config
	Coach coach.Config
	News  newsrisk.Config

	LabMinRuns int
}

// Load reads settings from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	s := &Settings{
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:     os.Getenv("CLICKHOUSE_DSN"),
		MetricsListenAddr: os.Getenv("METRICS_LISTEN_ADDR"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:    os.Getenv("TELEGRAM_CHAT_ID"),
		DataProvider:      strings.TrimSpace(envStr("DATA_PROVIDER", "kis")),
		KISAppKey:         os.Getenv("KIS_APP_KEY"),
		KISAppSecret:      os.Getenv("KIS_APP_SECRET"),
		KISAccountNo:      os.Getenv("KIS_ACCOUNT_NO"),
		KISIsPaper:        envBool("KIS_IS_PAPER", true),
		QuoteFeedEnable:   envBool("QUOTE_FEED_ENABLE", false),
		Universe:          envStr("UNIVERSE", "KOSPI,KOSDAQ"),
		RunHourlyStart:    envStr("RUN_HOURLY_START", "08:00"),
		RunHourlyEnd:      envStr("RUN_HOURLY_END", "17:00"),
		PaperEnable:       envBool("PAPER_ENABLE", true),
		StrategyLabEnable: envBool("STRATEGY_LAB_ENABLE", true),
	}

	var err error
	if s.TopN, err = envInt("TOP_N", 5); err != nil {
		return nil, err
	}
	if s.MinValueKRW, err = envFloat("MIN_VALUE_KRW", 1_000_000_000); err != nil {
		return nil, err
	}
	if s.MaxAbsReturn1h, err = envFloat("MAX_ABS_RETURN_1H", 0.2); err != nil {
		return nil, err
	}

	s.Paper = paper.DefaultConfig()
	if s.Paper.InitialCash, err = envFloat("PAPER_INITIAL_CASH", s.Paper.InitialCash); err != nil {
		return nil, err
	}
	if s.Paper.MaxTradesPerDay, err = envInt("PAPER_MAX_TRADES_PER_DAY", s.Paper.MaxTradesPerDay); err != nil {
		return nil, err
	}
	if s.Paper.MaxPositions, err = envInt("PAPER_MAX_POSITIONS", s.Paper.MaxPositions); err != nil {
		return nil, err
	}
	if s.Paper.FeeBps, err = envFloat("PAPER_FEE_BPS", s.Paper.FeeBps); err != nil {
		return nil, err
	}
	if s.Paper.SlippageBps, err = envFloat("PAPER_SLIPPAGE_BPS", s.Paper.SlippageBps); err != nil {
		return nil, err
	}

	s.Live = live.Config{
		Enable:           envBool("LIVE_ENABLE", false),
		AutoStart:        envBool("LIVE_AUTO_START", false),
		AllowSell:        envBool("LIVE_ALLOW_SELL", true),
		OrderType:        envStr("LIVE_ORDER_TYPE", "01"),
		RetryOnFundError: envBool("LIVE_RETRY_ON_FUND_ERROR", true),
	}
	if s.Live.EntryScoreThreshold, err = envFloat("LIVE_ENTRY_SCORE_THRESHOLD", 60.0); err != nil {
		return nil, err
	}
	if s.Live.MaxTradesPerDay, err = envInt("LIVE_MAX_TRADES_PER_DAY", 3); err != nil {
		return nil, err
	}
	if s.Live.MaxPositions, err = envInt("LIVE_MAX_POSITIONS", 2); err != nil {
		return nil, err
	}
	if s.Live.MaxCapitalKRW, err = envFloat("LIVE_MAX_CAPITAL_KRW", 1_000_000); err != nil {
		return nil, err
	}
	if s.Live.MinOrderKRW, err = envFloat("LIVE_MIN_ORDER_KRW", 50_000); err != nil {
		return nil, err
	}
	if s.Live.MaxOrderPct, err = envFloat("LIVE_MAX_ORDER_PCT", 0.30); err != nil {
		return nil, err
	}
	if s.Live.CashReservePct, err = envFloat("LIVE_CASH_RESERVE_PCT", 0.15); err != nil {
		return nil, err
	}
	if s.Live.RiskOffDayLossPct, err = envFloat("LIVE_RISK_OFF_DAY_LOSS_PCT", 0.015); err != nil {
		return nil, err
	}
	if s.Live.RiskOffDrawdownPct, err = envFloat("LIVE_RISK_OFF_DRAWDOWN_PCT", 0.04); err != nil {
		return nil, err
	}
	if s.Live.RiskOnDayGainPct, err = envFloat("LIVE_RISK_ON_DAY_GAIN_PCT", 0.01); err != nil {
		return nil, err
	}
	s.Live.MaxOrderPct = clampF(s.Live.MaxOrderPct, 0.01, 1.0)
	s.Live.CashReservePct = clampF(s.Live.CashReservePct, 0.0, 0.9)

	s.Tuner = tuner.DefaultConfig()
	if s.Tuner.MaxDelta, err = envFloat("TUNER_MAX_DELTA", s.Tuner.MaxDelta); err != nil {
		return nil, err
	}
	if s.Tuner.MinSamples, err = envInt("TUNER_MIN_SAMPLES", s.Tuner.MinSamples); err != nil {
		return nil, err
	}
	if s.Tuner.WarmupDays, err = envInt("TUNER_WARMUP_DAYS", s.Tuner.WarmupDays); err != nil {
		return nil, err
	}

	s.Coach = coach.DefaultConfig()
	if s.Coach.LookbackDays, err = envInt("TRAINING_LOOKBACK_DAYS", s.Coach.LookbackDays); err != nil {
		return nil, err
	}
	if s.Coach.MinDays, err = envInt("TRAINING_MIN_DAYS", s.Coach.MinDays); err != nil {
		return nil, err
	}
	if s.Coach.MinTrades, err = envInt("TRAINING_MIN_TRADES", s.Coach.MinTrades); err != nil {
		return nil, err
	}
	if s.Coach.TargetReturn, err = envFloat("TRAINING_TARGET_RETURN", s.Coach.TargetReturn); err != nil {
		return nil, err
	}
	if s.Coach.MaxDrawdownLimit, err = envFloat("TRAINING_MAX_DRAWDOWN", s.Coach.MaxDrawdownLimit); err != nil {
		return nil, err
	}
	if s.Coach.BaseRiskPerTradePct, err = envFloat("TRAINING_BASE_RISK_PER_TRADE_PCT", s.Coach.BaseRiskPerTradePct); err != nil {
		return nil, err
	}
	if s.Coach.BaseDailyLossPct, err = envFloat("TRAINING_BASE_DAILY_LOSS_PCT", s.Coach.BaseDailyLossPct); err != nil {
		return nil, err
	}
	if s.Coach.BaseMaxNewPositions, err = envInt("TRAINING_BASE_MAX_NEW_POSITIONS", s.Coach.BaseMaxNewPositions); err != nil {
		return nil, err
	}

	s.News = newsrisk.Config{
		Enable:          envBool("EVENT_RISK_ENABLE", true),
		FeedURLs:        envStr("EVENT_FEED_URLS", ""),
		HighImpactDates: os.Getenv("HIGH_IMPACT_DATES"),
	}

	if s.LabMinRuns, err = envInt("LAB_MIN_RUNS", lab.DefaultMinRuns); err != nil {
		return nil, err
	}
	return s, nil
}

// RequireKISCredentials fails when the broker credentials needed by
// the kis provider are missing.
func (s *Settings) RequireKISCredentials() error {
	if s.KISAppKey == "" || s.KISAppSecret == "" {
		return fmt.Errorf("config: KIS_APP_KEY and KIS_APP_SECRET are required for provider %q", s.DataProvider)
	}
	return nil
}

func envStr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func envInt(name string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", name, raw, err)
	}
	return v, nil
}

func envFloat(name string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number: %w", name, raw, err)
	}
	return v, nil
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
