// Package main is the entry point of the destination predictor.
//
// The binary exposes three commands:
//   - predict: batch prediction of a cohort into CSV sheets
//   - serve:   the single-student evaluation API with health and metrics
//   - migrate: schema management for the run store
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/butp-hub/destination-predictor/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(&cli.App{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "predictor: %v\n", err)
		stop()
		os.Exit(1)
	}
}
