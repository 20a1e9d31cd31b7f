package domain

import "time"

// Bar represents one OHLCV bar for a ticker.
// Bars arrive sorted ascending by timestamp per ticker.
type Bar struct {
	Ticker string
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Value  float64 // traded value (KRW)
}

// UniverseEntry is one listed instrument returned by a market data provider.
type UniverseEntry struct {
	Ticker string
	Name   string
	Market string // KOSPI | KOSDAQ
}

// PriceSnapshot records the latest close per ticker at scan time.
// Corresponds to price_snapshots; keyed by (run_id, ticker).
type PriceSnapshot struct {
	RunID  int64
	TS     time.Time
	Ticker string
	Price  float64
}
