package domain

import "time"

// ExperimentParams is one grid-search combination.
type ExperimentParams struct {
	EntryScoreThreshold float64 `json:"entry_score_threshold"`
	MaxPositions        int     `json:"max_positions"`
}

// ExperimentMetrics are run-level return statistics for a combination.
type ExperimentMetrics struct {
	NRuns   int     `json:"n_runs"`
	AvgRet  float64 `json:"avg_ret"`
	WinRate float64 `json:"win_rate"`
	Vol     float64 `json:"vol"` // population std of run-level returns
}

// StrategyExperiment is the persisted best grid-search result.
// One active row; history is append-only.
type StrategyExperiment struct {
	ExpID     int64
	TS        time.Time
	Params    ExperimentParams
	Metrics   ExperimentMetrics
	Objective float64
	Active    bool
}
