package domain

import "time"

// Live order statuses.
const (
	OrderStatusSubmitted = "submitted"
	OrderStatusFailed    = "failed"
)

// LiveAccount is one append-only balance snapshot from the broker.
type LiveAccount struct {
	SnapID     int64
	TS         time.Time
	Cash       float64
	TotalEval  float64
	TotalAsset float64
	Note       string
}

// LivePosition mirrors one broker holding; full-replace per snapshot sync.
type LivePosition struct {
	Ticker     string
	Name       string
	Qty        int64
	AvgPrice   float64
	LastPrice  float64
	EvalAmount float64
	PnlAmount  float64
	PnlPct     float64
	Updated    time.Time
}

// LiveOrder is one real order attempt in the append-only log.
// Failed submissions are kept with status "failed" and the error in Reason.
type LiveOrder struct {
	OrderID int64
	TS      time.Time
	Side    string
	Ticker  string
	Name    string
	Qty     int64
	Price   float64
	OrderNo string
	Status  string
	Reason  string
	RunID   int64
}

// LiveOrderStats summarizes one day of live order outcomes.
type LiveOrderStats struct {
	Submitted int
	Failed    int
	Total     int
}
