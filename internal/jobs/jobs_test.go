package jobs

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"strings"
	"testing"
	"time"

	"krx-momentum-lab/internal/coach"
	"krx-momentum-lab/internal/config"
	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/lab"
	"krx-momentum-lab/internal/paper"
	"krx-momentum-lab/internal/provider"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/storage/memory"
	"krx-momentum-lab/internal/timeutil"
	"krx-momentum-lab/internal/tuner"
)

type captureNotifier struct {
	msgs []string
}

func (c *captureNotifier) Send(ctx context.Context, text string) {
	c.msgs = append(c.msgs, text)
}

type jobsFixture struct {
	stores   *storage.Stores
	notifier *captureNotifier
	now      time.Time
	jobs     *Jobs
}

func newJobsFixture(t *testing.T) *jobsFixture {
	t.Helper()
	f := &jobsFixture{
		stores:   memory.NewStores(),
		notifier: &captureNotifier{},
		// Tuesday inside the run window.
		now: time.Date(2025, 6, 3, 10, 30, 0, 0, timeutil.KST),
	}
	settings := &config.Settings{
		DataProvider:   "stub",
		Universe:       "KOSPI200",
		TopN:           5,
		MinValueKRW:    0,
		MaxAbsReturn1h: 1.0,
		RunHourlyStart: "09:00",
		RunHourlyEnd:   "15:00",
		PaperEnable:    true,
		Paper:          paper.DefaultConfig(),
		Tuner:          tuner.DefaultConfig(),
		Coach:          coach.DefaultConfig(),
		LabMinRuns:     lab.DefaultMinRuns,
	}
	f.jobs = New(Options{
		Settings: settings,
		Stores:   f.stores,
		Provider: provider.NewStub(func() time.Time { return f.now }),
		Buzz:     provider.NeutralBuzz{},
		Notifier: f.notifier,
		Logger:   log.New(io.Discard, "", 0),
		Now:      func() time.Time { return f.now },
	})
	return f
}

func TestHourly_FullScan(t *testing.T) {
	f := newJobsFixture(t)
	ctx := context.Background()

	if err := f.jobs.Hourly(ctx); err != nil {
		t.Fatalf("Hourly: %v", err)
	}

	runs, err := f.stores.Runs.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	note := runs[0].Note
	if !strings.HasPrefix(note, "hourly-scan") {
		t.Errorf("note = %q", note)
	}
	if !strings.Contains(note, "regime=NEUTRAL") {
		t.Errorf("note missing default regime: %q", note)
	}
	if !strings.Contains(note, "paper_orders=") {
		t.Errorf("note missing paper summary: %q", note)
	}

	cands, err := f.stores.Candidates.GetByRun(ctx, runs[0].RunID)
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	if len(cands) != 5 {
		t.Fatalf("candidates = %d, want TopN", len(cands))
	}
	for i := 1; i < len(cands); i++ {
		if cands[i].Score > cands[i-1].Score {
			t.Errorf("candidates not sorted by score: %v then %v", cands[i-1].Score, cands[i].Score)
		}
	}
	for _, c := range cands {
		if c.Price <= 0 || len(c.Features) == 0 || c.Rationale == "" {
			t.Errorf("incomplete candidate %+v", c)
		}
	}

	// Snapshots cover the whole universe, not only the top entries.
	snap, err := f.stores.PriceSnapshots.EarliestAtOrAfter(ctx, "005930", f.now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("price snapshot missing: %v", err)
	}
	if snap.Price <= 0 || snap.RunID != runs[0].RunID {
		t.Errorf("snapshot = %+v", snap)
	}

	acct, err := f.stores.PaperAccounts.Latest(ctx)
	if err != nil {
		t.Fatalf("paper account missing: %v", err)
	}
	if !strings.HasPrefix(acct.Note, "paper-run:") {
		t.Errorf("account note = %q", acct.Note)
	}

	if len(f.notifier.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(f.notifier.msgs))
	}
}

func TestHourly_SkipsClosedDay(t *testing.T) {
	f := newJobsFixture(t)
	f.now = time.Date(2025, 6, 7, 10, 30, 0, 0, timeutil.KST) // Saturday

	if err := f.jobs.Hourly(context.Background()); err != nil {
		t.Fatalf("Hourly: %v", err)
	}
	runs, _ := f.stores.Runs.GetAll(context.Background())
	if len(runs) != 0 {
		t.Errorf("run recorded on a closed day: %+v", runs)
	}
	if len(f.notifier.msgs) != 0 {
		t.Errorf("messages sent on a closed day: %v", f.notifier.msgs)
	}
}

func TestHourly_SkipsOutsideWindow(t *testing.T) {
	f := newJobsFixture(t)
	f.now = time.Date(2025, 6, 3, 8, 0, 0, 0, timeutil.KST)

	if err := f.jobs.Hourly(context.Background()); err != nil {
		t.Fatalf("Hourly: %v", err)
	}
	runs, _ := f.stores.Runs.GetAll(context.Background())
	if len(runs) != 0 {
		t.Errorf("run recorded outside the window: %+v", runs)
	}
}

func TestNightly_EmptyBackend(t *testing.T) {
	f := newJobsFixture(t)
	ctx := context.Background()

	if err := f.jobs.Nightly(ctx); err != nil {
		t.Fatalf("Nightly: %v", err)
	}

	state, err := f.stores.StrategyStates.LoadActive(ctx)
	if err != nil {
		t.Fatalf("no strategy state after nightly: %v", err)
	}
	if state.Regime != domain.RegimeNeutral || state.EntryScoreThreshold != 55 {
		t.Errorf("state = %+v, want neutral defaults", state)
	}
	if state.Note != "balanced" {
		t.Errorf("state note = %q, want %q", state.Note, "balanced")
	}

	reports, err := f.stores.TrainingReports.Recent(ctx, 1)
	if err != nil || len(reports) != 1 {
		t.Fatalf("reports = %v, %v", reports, err)
	}
	if reports[0].Note != "nightly-summary" || reports[0].Mode != "nightly" {
		t.Errorf("report = %+v", reports[0])
	}

	if len(f.notifier.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(f.notifier.msgs))
	}
	if !strings.Contains(f.notifier.msgs[0], "nightly") {
		t.Errorf("message = %q", f.notifier.msgs[0])
	}
	if !strings.Contains(f.notifier.msgs[0], "regime: NEUTRAL (UPDATED, balanced)") {
		t.Errorf("message missing regime reason: %q", f.notifier.msgs[0])
	}
}

func TestNightly_FillsOutcomesFromLaterScan(t *testing.T) {
	f := newJobsFixture(t)
	ctx := context.Background()

	if err := f.jobs.Hourly(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	firstRun := int64(1)
	cands, err := f.stores.Candidates.GetByRun(ctx, firstRun)
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}

	// A second scan 25 hours later supplies mature prices for every
	// horizon of the first run.
	f.now = f.now.Add(25 * time.Hour)
	if err := f.jobs.Hourly(ctx); err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if err := f.jobs.Nightly(ctx); err != nil {
		t.Fatalf("Nightly: %v", err)
	}

	for _, h := range domain.Horizons {
		got, err := f.stores.Outcomes.GetByHorizon(ctx, h, 0)
		if err != nil {
			t.Fatalf("GetByHorizon %s: %v", h, err)
		}
		byRun := make(map[int64]int)
		for _, o := range got {
			byRun[o.RunID]++
			if o.PriceThen <= 0 || o.PriceLater <= 0 {
				t.Errorf("outcome with empty prices: %+v", o)
			}
		}
		if byRun[firstRun] != len(cands) {
			t.Errorf("horizon %s: %d outcomes for run 1, want %d", h, byRun[firstRun], len(cands))
		}
	}
}

type fakeQuoteSource struct {
	prices map[string]float64
	closed bool
}

func (q *fakeQuoteSource) Prices() map[string]float64 { return q.prices }

func (q *fakeQuoteSource) Close() error {
	q.closed = true
	return nil
}

func TestHourly_QuoteOverlayMarksPositions(t *testing.T) {
	f := newJobsFixture(t)
	ctx := context.Background()

	// Zero entry threshold so the scan opens positions for the
	// overlay to mark.
	_, err := f.stores.StrategyStates.Activate(ctx, &domain.StrategyState{
		TS:                  f.now,
		Regime:              domain.RegimeNeutral,
		EntryScoreThreshold: 0,
		PositionScale:       1,
		Note:                "balanced",
		Active:              true,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	const tickPrice = 50_000.0
	src := &fakeQuoteSource{}
	f.jobs.quoteDial = func(ctx context.Context, tickers []string) (provider.QuoteSource, error) {
		prices := make(map[string]float64, len(tickers))
		for _, ticker := range tickers {
			prices[ticker] = tickPrice
		}
		src.prices = prices
		return src, nil
	}

	if err := f.jobs.Hourly(ctx); err != nil {
		t.Fatalf("Hourly: %v", err)
	}
	if !src.closed {
		t.Error("quote source left open after scan")
	}

	positions, err := f.stores.PaperPositions.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll positions: %v", err)
	}
	if len(positions) == 0 {
		t.Fatal("no paper positions entered")
	}
	acct, err := f.stores.PaperAccounts.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest account: %v", err)
	}
	want := acct.Cash
	for _, p := range positions {
		want += tickPrice * float64(p.Qty)
	}
	if math.Abs(acct.NAV-want) > 1e-6 {
		t.Errorf("NAV = %v, want positions marked at the tick price (%v)", acct.NAV, want)
	}
}

func TestHourly_QuoteFeedFailureIsNonFatal(t *testing.T) {
	f := newJobsFixture(t)
	ctx := context.Background()
	f.jobs.quoteDial = func(ctx context.Context, tickers []string) (provider.QuoteSource, error) {
		return nil, errors.New("approval key refused")
	}

	if err := f.jobs.Hourly(ctx); err != nil {
		t.Fatalf("Hourly: %v", err)
	}
	if runs, err := f.stores.Runs.GetAll(ctx); err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v, err = %v, want one completed run", runs, err)
	}
}
