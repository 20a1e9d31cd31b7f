package domain

import "time"

// Training readiness levels.
const (
	LevelReady    = "READY"
	LevelWatch    = "WATCH"
	LevelTraining = "TRAINING"
)

// TrainingGate is one boolean readiness check.
type TrainingGate struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Pass   bool    `json:"pass"`
	Value  float64 `json:"value"`
	Target float64 `json:"target"`
}

// RiskPlan scales the caller's base risk limits by readiness level.
type RiskPlan struct {
	Mode              string  `json:"mode"`
	RiskPerTradePct   float64 `json:"risk_per_trade_pct"`
	DailyLossLimitPct float64 `json:"daily_loss_limit_pct"`
	MaxNewPositions   int     `json:"max_new_positions"`
}

// TrainingMetrics are the measurements behind a readiness score.
type TrainingMetrics struct {
	HistoryDays      int     `json:"history_days"`
	OrderTotal       int     `json:"order_total"`
	OrderLookback    int     `json:"order_lookback"`
	CumulativeReturn float64 `json:"cumulative_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	DailyWinRate     float64 `json:"daily_win_rate"`
	DailyRetMean     float64 `json:"daily_ret_mean"`
	DailyRetStd      float64 `json:"daily_ret_std"`
	OutcomeN         int     `json:"outcome_n"`
	OutcomeAvgRet1d  float64 `json:"outcome_avg_ret_1d"`
	OutcomeWinRate1d float64 `json:"outcome_win_rate_1d"`
	NavStart         float64 `json:"nav_start"`
	NavEnd           float64 `json:"nav_end"`
}

// TrainingReport is one append-only scored readiness snapshot.
type TrainingReport struct {
	ReportID  int64
	TS        time.Time
	Mode      string // manual | scheduled | nightly
	Score     float64
	Level     string
	Ready     bool
	Metrics   TrainingMetrics
	Gates     []TrainingGate
	RiskPlan  RiskPlan
	Checklist []string
	Note      string
}
