// Package main builds an on-demand paper-trading readiness report and
// prints the scored gates.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"krx-momentum-lab/internal/config"
	"krx-momentum-lab/internal/jobs"
)

func main() {
	logger := log.New(os.Stdout, "[coach] ", log.LstdFlags)
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

	j, cleanup, err := jobs.Bootstrap(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := j.TrainingStatus(ctx)
	if err != nil {
		j.NotifyError(context.Background(), "training-status", err)
		return err
	}

	fmt.Printf("level: %s (score %.1f, ready=%t)\n", report.Level, report.Score, report.Ready)
	for _, g := range report.Gates {
		mark := "FAIL"
		if g.Pass {
			mark = "PASS"
		}
		fmt.Printf("[%s] %-28s %.2f / %.2f\n", mark, g.Label, g.Value, g.Target)
	}
	fmt.Printf("risk plan: %s, %.2f%%/trade, %.2f%%/day, %d new positions\n",
		report.RiskPlan.Mode, report.RiskPlan.RiskPerTradePct,
		report.RiskPlan.DailyLossLimitPct, report.RiskPlan.MaxNewPositions)
	for _, item := range report.Checklist {
		fmt.Printf("next: %s\n", item)
	}
	return nil
}
