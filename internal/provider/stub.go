package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/timeutil"
)

// StubProvider is a deterministic in-process market data source for
// development and tests (DATA_PROVIDER=stub). Prices follow a seeded
// sine walk so repeated scans produce stable, comparable features.
type StubProvider struct {
	now func() time.Time

	mu       sync.Mutex
	orderSeq int64
	balance  Balance
}

var (
	_ MarketDataProvider  = (*StubProvider)(nil)
	_ BrokerExecution     = (*StubProvider)(nil)
	_ BuyingPowerInquirer = (*StubProvider)(nil)
)

var stubTickers = []struct {
	ticker, name, sector string
}{
	{"005930", "Samsung Electronics", "IT"},
	{"000660", "SK hynix", "IT"},
	{"373220", "LG Energy Solution", "Battery"},
	{"005380", "Hyundai Motor", "Auto"},
	{"035420", "NAVER", "Internet"},
	{"035720", "Kakao", "Internet"},
	{"051910", "LG Chem", "Chemicals"},
	{"006400", "Samsung SDI", "Battery"},
	{"068270", "Celltrion", "Bio"},
	{"105560", "KB Financial", "Finance"},
	{"055550", "Shinhan Financial", "Finance"},
	{"003670", "POSCO Future M", "Battery"},
}

// NewStub returns a stub provider with a fixed paper-sized account.
func NewStub(now func() time.Time) *StubProvider {
	if now == nil {
		now = timeutil.NowKST
	}
	return &StubProvider{
		now: now,
		balance: Balance{
			Cash:        1_000_000,
			DepositCash: 1_000_000,
			TotalEval:   0,
			TotalAsset:  1_000_000,
		},
	}
}

func (s *StubProvider) Universe(ctx context.Context, spec string) ([]domain.UniverseEntry, error) {
	out := make([]domain.UniverseEntry, 0, len(stubTickers))
	for _, t := range stubTickers {
		out = append(out, domain.UniverseEntry{Ticker: t.ticker, Name: t.name})
	}
	return out, nil
}

func (s *StubProvider) LatestOHLCV(ctx context.Context, tickers []string, interval string) (map[string][]domain.Bar, error) {
	now := s.now().Truncate(time.Hour)
	out := make(map[string][]domain.Bar, len(tickers))
	for _, ticker := range tickers {
		bars := make([]domain.Bar, 0, 48)
		for i := 47; i >= 0; i-- {
			ts := now.Add(-time.Duration(i) * time.Hour)
			close := s.priceAt(ticker, ts)
			open := s.priceAt(ticker, ts.Add(-time.Hour))
			high := math.Max(open, close) * 1.004
			low := math.Min(open, close) * 0.996
			volume := 40_000 + float64(stubSeed(ticker)%60_000)
			bars = append(bars, domain.Bar{
				Ticker: ticker,
				TS:     ts,
				Open:   open,
				High:   high,
				Low:    low,
				Close:  close,
				Volume: volume,
				Value:  close * volume,
			})
		}
		out[ticker] = bars
	}
	return out, nil
}

func (s *StubProvider) InvestorFlow(ctx context.Context, tickers []string, windowDays int) (map[string]float64, error) {
	out := make(map[string]float64, len(tickers))
	for _, ticker := range tickers {
		seed := float64(stubSeed(ticker)%2000)/1000.0 - 1.0
		out[ticker] = math.Round(seed*100) / 100
	}
	return out, nil
}

func (s *StubProvider) SectorMap(ctx context.Context, tickers []string) (map[string]string, error) {
	bySector := make(map[string]string, len(stubTickers))
	for _, t := range stubTickers {
		bySector[t.ticker] = t.sector
	}
	out := make(map[string]string, len(tickers))
	for _, ticker := range tickers {
		if sector, ok := bySector[ticker]; ok {
			out[ticker] = sector
		} else {
			out[ticker] = "UNKNOWN"
		}
	}
	return out, nil
}

func (s *StubProvider) InquireBalance(ctx context.Context) (*Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balance
	bal.Positions = append([]domain.LivePosition(nil), s.balance.Positions...)
	return &bal, nil
}

func (s *StubProvider) PlaceCashOrder(ctx context.Context, ticker string, qty int64, side, orderType string, price float64) (*OrderResult, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("stub order %s: qty %d", ticker, qty)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderSeq++
	fill := price
	if fill <= 0 {
		fill = s.priceAt(ticker, s.now())
	}
	notional := fill * float64(qty)
	switch side {
	case domain.SideBuy:
		s.balance.Cash -= notional
		s.applyFill(ticker, qty, fill)
	case domain.SideSell:
		s.balance.Cash += notional
		s.applyFill(ticker, -qty, fill)
	default:
		return nil, fmt.Errorf("stub order %s: side %q", ticker, side)
	}
	s.balance.TotalEval = 0
	for _, p := range s.balance.Positions {
		s.balance.TotalEval += p.EvalAmount
	}
	s.balance.TotalAsset = s.balance.Cash + s.balance.TotalEval
	return &OrderResult{OrderNo: fmt.Sprintf("STUB%06d", s.orderSeq)}, nil
}

func (s *StubProvider) InquireBuyingPower(ctx context.Context, ticker string, price float64, orderType string) (*BuyingPower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bp := &BuyingPower{OrdPsblCash: s.balance.Cash}
	if price > 0 {
		bp.MaxBuyQty = int64(s.balance.Cash / price)
		bp.MaxBuyAmt = s.balance.Cash
	}
	return bp, nil
}

// applyFill updates the stub position book. Caller holds mu.
func (s *StubProvider) applyFill(ticker string, qty int64, price float64) {
	for i := range s.balance.Positions {
		p := &s.balance.Positions[i]
		if p.Ticker != ticker {
			continue
		}
		next := p.Qty + qty
		if next <= 0 {
			s.balance.Positions = append(s.balance.Positions[:i], s.balance.Positions[i+1:]...)
			return
		}
		if qty > 0 {
			p.AvgPrice = (p.AvgPrice*float64(p.Qty) + price*float64(qty)) / float64(next)
		}
		p.Qty = next
		p.LastPrice = price
		p.EvalAmount = price * float64(next)
		p.PnlAmount = (price - p.AvgPrice) * float64(next)
		if p.AvgPrice > 0 {
			p.PnlPct = price/p.AvgPrice - 1
		}
		p.Updated = s.now()
		return
	}
	if qty <= 0 {
		return
	}
	s.balance.Positions = append(s.balance.Positions, domain.LivePosition{
		Ticker:     ticker,
		Qty:        qty,
		AvgPrice:   price,
		LastPrice:  price,
		EvalAmount: price * float64(qty),
		Updated:    s.now(),
	})
}

// priceAt is a deterministic sine walk around a per-ticker base so
// returns and drawdowns differ across the stub universe.
func (s *StubProvider) priceAt(ticker string, ts time.Time) float64 {
	seed := stubSeed(ticker)
	base := 10_000 + float64(seed%90_000)
	phase := float64(seed % 628)
	hours := float64(ts.Unix()) / 3600.0
	drift := math.Sin(hours/24.0+phase) * 0.05
	wave := math.Sin(hours/6.0+phase*2) * 0.02
	price := base * (1 + drift + wave)
	return math.Round(price*100) / 100
}

func stubSeed(ticker string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(ticker))
	return h.Sum64()
}
