package domain

import "time"

// Run represents one scan invocation.
// Corresponds to the runs table; run_id is assigned by the store.
type Run struct {
	RunID    int64
	TS       time.Time
	Provider string
	Universe string
	TopN     int
	Note     string
}

// Candidate is one top-N scored row for a run, immutable once written.
// Features holds the serialized raw-feature snapshot keyed by feature name.
type Candidate struct {
	RunID     int64
	Ticker    string
	Name      string
	Score     float64 // 0-100, rounded to 2 decimals
	Price     float64
	Features  map[string]float64
	Rationale string
}
