package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"

	"krx-momentum-lab/internal/config"
	"krx-momentum-lab/internal/newsrisk"
	"krx-momentum-lab/internal/notify"
	"krx-momentum-lab/internal/provider"
	"krx-momentum-lab/internal/storage"
	chstore "krx-momentum-lab/internal/storage/clickhouse"
	"krx-momentum-lab/internal/storage/memory"
	"krx-momentum-lab/internal/storage/migrations"
	pgstore "krx-momentum-lab/internal/storage/postgres"
	"krx-momentum-lab/internal/timeutil"
)

// Bootstrap assembles the backend, provider and notifier described by
// the settings and returns ready Jobs. The returned cleanup closes any
// database connections and must be called on shutdown.
func Bootstrap(ctx context.Context, settings *config.Settings, logger *log.Logger) (*Jobs, func(), error) {
	if logger == nil {
		logger = log.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var stores *storage.Stores
	if settings.PostgresDSN == "" {
		logger.Println("no POSTGRES_DSN, using in-memory storage")
		stores = memory.NewStores()
	} else {
		pool, err := pgstore.NewPool(ctx, settings.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		stores = pgstore.NewStores(pool)
	}

	// ClickHouse, when configured, takes over the snapshot timeseries.
	if settings.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, settings.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		stores.PriceSnapshots = chstore.NewPriceSnapshotStore(conn)
	}

	var market provider.MarketDataProvider
	var quoteDial func(ctx context.Context, tickers []string) (provider.QuoteSource, error)
	switch strings.ToLower(settings.DataProvider) {
	case "stub":
		market = provider.NewStub(timeutil.NowKST)
	case "kis":
		if err := settings.RequireKISCredentials(); err != nil {
			cleanup()
			return nil, nil, err
		}
		kis, err := provider.NewKIS(provider.KISConfig{
			AppKey:    settings.KISAppKey,
			AppSecret: settings.KISAppSecret,
			AccountNo: settings.KISAccountNo,
			IsPaper:   settings.KISIsPaper,
		}, nil, stores.BotState)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create kis provider: %w", err)
		}
		market = kis
		if settings.QuoteFeedEnable {
			quoteDial = func(ctx context.Context, tickers []string) (provider.QuoteSource, error) {
				key, err := kis.ApprovalKey(ctx)
				if err != nil {
					return nil, err
				}
				return provider.NewQuoteFeed(ctx, key, tickers, settings.KISIsPaper, nil)
			}
		}
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unknown DATA_PROVIDER %q", settings.DataProvider)
	}

	var notifier notify.Notifier = notify.Nop{}
	if settings.TelegramBotToken != "" && settings.TelegramChatID != "" {
		notifier = notify.NewTelegram(settings.TelegramBotToken, settings.TelegramChatID, nil, logger)
	}

	jobs := New(Options{
		Settings:  settings,
		Stores:    stores,
		Provider:  market,
		Buzz:      provider.NeutralBuzz{},
		Notifier:  notifier,
		News:      newsrisk.New(settings.News, nil),
		Logger:    logger,
		QuoteDial: quoteDial,
	})
	return jobs, cleanup, nil
}
