package domain

import "time"

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// PaperAccount is one append-only NAV/cash snapshot of the paper ledger.
type PaperAccount struct {
	AccountID int64
	TS        time.Time
	Cash      float64
	NAV       float64
	Note      string
}

// PaperPosition is a current holding in the paper ledger.
// The positions table is full-replace per run; qty > 0 invariant.
type PaperPosition struct {
	Ticker   string
	Name     string
	Qty      int64
	AvgPrice float64
	Updated  time.Time
}

// PaperOrder is one simulated fill in the append-only trade log.
type PaperOrder struct {
	OrderID int64
	TS      time.Time
	Side    string
	Ticker  string
	Name    string
	Qty     int64
	Price   float64 // execution price including slippage
	Reason  string
	RunID   int64
}
