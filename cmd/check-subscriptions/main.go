// Command check-subscriptions downgrades pro accounts whose paid period has ended
// and emails their owners. Meant to run from cron once a day.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/menuqr/internal/bootstrap"
	"github.com/mihaimyh/menuqr/internal/config"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

func main() {
	batch := flag.Int("batch", 500, "maximum accounts handled per run")
	concurrency := flag.Int("concurrency", 4, "parallel downgrades")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := bootstrap.NewLogger(cfg).With().Str("command", "check-subscriptions").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer stores.Close()

	manager, err := menuqr.NewManager(stores.Accounts, stores.Catalog, menuqr.Config{
		Locker: stores.Locker,
		Logger: bootstrap.ComponentLogger(logger, "manager"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create manager")
	}

	sender, err := bootstrap.NewSender(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create sender")
	}

	report, err := menuqr.NewSweeper(manager, sender, menuqr.SweepConfig{
		BatchSize:   *batch,
		Concurrency: *concurrency,
	}).Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("sweep failed")
		stores.Close()
		os.Exit(1)
	}

	logger.Info().
		Int("downgraded", report.Downgraded).
		Int("notified", report.Notified).
		Int("rate_limited", report.RateLimited).
		Int("failed", report.Failed).
		Msg("sweep finished")
}
