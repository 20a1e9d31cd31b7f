package domain

// MarketRow is the per-ticker market state one trading cycle needs for
// exit decisions. It is built from the latest feature rows and scores;
// Flow and Score are used by the live sell rules only.
type MarketRow struct {
	Ticker     string
	Name       string
	Price      float64
	Ret1       float64 // 1-bar return
	Drawdown20 float64 // 20-bar drawdown from peak
	Flow       float64 // investor flow score in [-1, 1]
	Score      float64 // composite score, 0-100
}
