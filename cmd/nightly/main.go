// Package main runs the nightly feedback batch: outcome attribution,
// weight tuning, factor diagnostics, regime decision, strategy lab and
// the training report.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"krx-momentum-lab/internal/config"
	"krx-momentum-lab/internal/jobs"
	"krx-momentum-lab/internal/observability"
)

func main() {
	logger := log.New(os.Stdout, "[nightly] ", log.LstdFlags)
	if err := run(logger); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(logger *log.Logger) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go observability.Serve(ctx, settings.MetricsListenAddr, logger)

	j, cleanup, err := jobs.Bootstrap(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := j.Nightly(ctx); err != nil {
		j.NotifyError(context.Background(), "nightly-summary", err)
		return err
	}
	return nil
}
