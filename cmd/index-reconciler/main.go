package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/app"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/config"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Env).With().Str("component", "index-reconciler").Logger()
	logger.Info().Dur("interval", cfg.ReconcileInterval).Msg("index reconciler starting up")

	// An in-process index lives and dies with the api-server.
	if cfg.PostgresDSN == "" || cfg.RedisAddr == "" {
		logger.Fatal().Msg("POSTGRES_DSN and REDIS_ADDR (or REDIS_URL) are required")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	runOnce(rootCtx, a, logger)

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping index reconciler")
			return
		case <-ticker.C:
			runOnce(rootCtx, a, logger)
		}
	}
}

func runOnce(ctx context.Context, a *app.App, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if err := a.Reconcile(runCtx); err != nil {
		logger.Error().Err(err).Msg("reconcile run failed")
	}
}
