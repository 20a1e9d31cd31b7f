// Package jobs provides the scheduled pipeline entry points.
// Flow (hourly): universe → features → scoring → paper/live execution
// Flow (nightly): outcomes → tuner → diagnostics → regime → lab → coach
package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"krx-momentum-lab/internal/coach"
	"krx-momentum-lab/internal/config"
	"krx-momentum-lab/internal/domain"
	"krx-momentum-lab/internal/lab"
	"krx-momentum-lab/internal/live"
	"krx-momentum-lab/internal/newsrisk"
	"krx-momentum-lab/internal/notify"
	"krx-momentum-lab/internal/outcome"
	"krx-momentum-lab/internal/provider"
	"krx-momentum-lab/internal/regime"
	"krx-momentum-lab/internal/storage"
	"krx-momentum-lab/internal/timeutil"
	"krx-momentum-lab/internal/tuner"
)

// Options for creating Jobs.
type Options struct {
	Settings *config.Settings
	Stores   *storage.Stores
	Provider provider.MarketDataProvider

	// Optional capabilities. Nil disables the concern.
	Buzz     provider.BuzzProvider
	Notifier notify.Notifier
	News     *newsrisk.Scorer
	Logger   *log.Logger
	Now      func() time.Time

	// QuoteDial opens a realtime price stream for the scan's universe.
	// Hourly dials it at scan start and harvests ticks before the
	// execution passes; nil keeps the bar-close snapshot path only.
	QuoteDial func(ctx context.Context, tickers []string) (provider.QuoteSource, error)
}

// Jobs coordinates the hourly scan and the nightly feedback batch.
type Jobs struct {
	settings  *config.Settings
	stores    *storage.Stores
	provider  provider.MarketDataProvider
	buzz      provider.BuzzProvider
	notifier  notify.Notifier
	news      *newsrisk.Scorer
	logger    *log.Logger
	now       func() time.Time
	quoteDial func(ctx context.Context, tickers []string) (provider.QuoteSource, error)

	executor *live.Executor
	tuner    *tuner.Tuner
	regime   *regime.Updater
	lab      *lab.Lab
	coach    *coach.Coach
}

// New creates Jobs over the given backend and provider.
func New(opts Options) *Jobs {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = timeutil.NowKST
	}
	s := opts.Stores
	return &Jobs{
		settings:  opts.Settings,
		stores:    s,
		provider:  opts.Provider,
		buzz:      opts.Buzz,
		notifier:  opts.Notifier,
		news:      opts.News,
		logger:    opts.Logger,
		now:       opts.Now,
		quoteDial: opts.QuoteDial,

		executor: live.New(opts.Provider, s.LiveAccounts, s.LivePositions, s.LiveOrders, s.BotState, opts.Settings.Live),
		tuner:    tuner.New(s.Runs, s.Candidates, s.Outcomes, s.Weights, opts.Settings.Tuner),
		regime:   regime.NewUpdater(s.StrategyStates),
		lab:      lab.New(s.Runs, s.Candidates, s.Outcomes, s.Experiments, opts.Settings.LabMinRuns),
		coach:    coach.New(s.PaperAccounts, s.PaperOrders, s.Runs, s.Outcomes, opts.Settings.Coach),
	}
}

// NotifyError pushes a failure note through the configured channel so
// cron failures are visible without log access.
func (j *Jobs) NotifyError(ctx context.Context, op string, err error) {
	j.notifier.Send(ctx, op+" error\n"+err.Error())
}

// Attributor returns the outcome filler bound to this backend.
func (j *Jobs) Attributor() *outcome.Attributor {
	return outcome.NewAttributor(j.stores.Runs, j.stores.Candidates, j.stores.Outcomes, j.stores.PriceSnapshots, j.now)
}

// activeState loads the active strategy posture, defaulting to NEUTRAL
// before the first nightly regime decision.
func (j *Jobs) activeState(ctx context.Context) (*domain.StrategyState, error) {
	st, err := j.stores.StrategyStates.LoadActive(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		thr, scale := domain.RegimeParams(domain.RegimeNeutral)
		return &domain.StrategyState{
			Regime:              domain.RegimeNeutral,
			EntryScoreThreshold: thr,
			PositionScale:       scale,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// activeWeights loads the active vector, defaulting to the hard-coded
// one before the first tuner activation.
func (j *Jobs) activeWeights(ctx context.Context) (domain.WeightVector, error) {
	v, err := j.stores.Weights.LoadActive(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.DefaultWeights(), nil
	}
	if err != nil {
		return nil, err
	}
	return v.Weights, nil
}
