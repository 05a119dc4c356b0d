package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lumenfeed/ingest/internal/app"
	"github.com/lumenfeed/ingest/internal/common"
)

func main() {
	common.LoadVersionFromFile()
	configPath := os.Getenv("INGEST_CONFIG")

	a, err := app.New(context.Background(), configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	a.Worker.Start(ctx)
	a.StartReconcile(ctx)

	a.Logger.Info().Int("pool_size", a.Config.Worker.PoolSize).Msg("worker started, draining job queue")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received, draining in-flight jobs")
	cancel()

	if err := a.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("failed to close app cleanly")
	}
	common.PrintShutdownBanner(a.Logger)
}
