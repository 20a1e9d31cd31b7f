package domain

import "time"

// Horizon is a fixed forward offset over which realized return is measured.
type Horizon string

const (
	Horizon1h Horizon = "1h"
	Horizon4h Horizon = "4h"
	Horizon1d Horizon = "1d"
)

// Horizons lists all attribution horizons in resolution order.
var Horizons = []Horizon{Horizon1h, Horizon4h, Horizon1d}

// Duration returns the wall-clock offset of the horizon.
func (h Horizon) Duration() time.Duration {
	switch h {
	case Horizon1h:
		return time.Hour
	case Horizon4h:
		return 4 * time.Hour
	case Horizon1d:
		return 24 * time.Hour
	}
	return 0
}

// Outcome records the realized forward return of a candidate.
// Keyed by (run_id, ticker, horizon); upserted idempotently.
type Outcome struct {
	RunID      int64
	Ticker     string
	Horizon    Horizon
	Ret        float64 // price_later/price_then - 1
	PriceThen  float64
	PriceLater float64
}
