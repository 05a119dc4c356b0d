package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	a.StartReconcile(context.Background())

	srv := a.Server()
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := a.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("failed to close app cleanly")
	}
	common.PrintShutdownBanner(a.Logger)
}
