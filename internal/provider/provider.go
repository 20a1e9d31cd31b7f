// Package provider defines the market-data and broker contracts the
// pipeline consumes, plus the KIS implementation and a stub for tests.
package provider

import (
	"context"

	"krx-momentum-lab/internal/domain"
)

// MarketDataProvider supplies the scan inputs.
type MarketDataProvider interface {
	// Universe resolves a universe spec (e.g. "KOSPI200") to entries.
	Universe(ctx context.Context, spec string) ([]domain.UniverseEntry, error)

	// LatestOHLCV returns recent bars per ticker, ascending by time.
	// Tickers with no data are simply absent from the result.
	LatestOHLCV(ctx context.Context, tickers []string, interval string) (map[string][]domain.Bar, error)

	// InvestorFlow returns per-ticker flow scores in [-1, 1].
	// Missing tickers mean neutral flow.
	InvestorFlow(ctx context.Context, tickers []string, windowDays int) (map[string]float64, error)

	// SectorMap returns ticker -> sector name. Missing means UNKNOWN.
	SectorMap(ctx context.Context, tickers []string) (map[string]string, error)
}

// BuzzProvider is the optional news-buzz capability.
type BuzzProvider interface {
	// BuzzScores returns per-ticker buzz in [0, 1].
	BuzzScores(ctx context.Context, tickers []string) (map[string]float64, error)
}

// Balance is one broker account snapshot.
type Balance struct {
	Cash        float64
	DepositCash float64
	TotalEval   float64
	TotalAsset  float64
	Positions   []domain.LivePosition
}

// OrderResult identifies a submitted broker order.
type OrderResult struct {
	OrderNo string
}

// BuyingPower is the broker's reported order capacity for one quote.
// Zero fields mean the broker reported nothing for that dimension.
type BuyingPower struct {
	MaxBuyQty   int64
	MaxBuyAmt   float64
	OrdPsblCash float64
}

// BrokerExecution is the optional live-trading capability. Callers
// discover it with a type assertion on the MarketDataProvider.
type BrokerExecution interface {
	// InquireBalance fetches cash, valuations and open positions.
	InquireBalance(ctx context.Context) (*Balance, error)

	// PlaceCashOrder submits a cash order. price 0 with a market
	// order type lets the broker fill at market.
	PlaceCashOrder(ctx context.Context, ticker string, qty int64, side, orderType string, price float64) (*OrderResult, error)
}

// BuyingPowerInquirer is the optional best-effort capacity check.
type BuyingPowerInquirer interface {
	InquireBuyingPower(ctx context.Context, ticker string, price float64, orderType string) (*BuyingPower, error)
}

// NeutralBuzz reports zero buzz for every ticker. Placeholder until a
// community data source is wired in.
type NeutralBuzz struct{}

var _ BuzzProvider = NeutralBuzz{}

func (NeutralBuzz) BuzzScores(_ context.Context, tickers []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		scores[t] = 0
	}
	return scores, nil
}
