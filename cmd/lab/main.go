// Package main runs the strategy lab grid search once against the
// stored scan history and prints the winning parameters.
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
	logger := log.New(os.Stdout, "[lab] ", log.LstdFlags)
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

	result, summary, err := j.LabSearch(ctx)
	if err != nil {
		j.NotifyError(context.Background(), "strategy-lab", err)
		return err
	}

	fmt.Println(summary)
	if result.Best != nil {
		fmt.Printf("objective: %.4f (activated exp_id=%d)\n",
			result.Best.Objective, result.Best.ExpID)
	}
	return nil
}
