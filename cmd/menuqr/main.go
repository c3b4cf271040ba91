// Command menuqr serves the owner API, public menus and the Stripe webhook.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/menuqr/internal/bootstrap"
	"github.com/mihaimyh/menuqr/internal/config"
	"github.com/mihaimyh/menuqr/pkg/api"
	"github.com/mihaimyh/menuqr/pkg/billing"
	billingmetrics "github.com/mihaimyh/menuqr/pkg/billing/metrics/prometheus"
	"github.com/mihaimyh/menuqr/pkg/billing/stripe"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
	menuqrmetrics "github.com/mihaimyh/menuqr/pkg/menuqr/metrics/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := bootstrap.NewLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Configuration, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager, err := menuqr.NewManager(stores.Accounts, stores.Catalog, menuqr.Config{
		CacheConfig:          &menuqr.CacheConfig{Enabled: true, AccountTTL: 30 * time.Second, MaxAccounts: 10000},
		CircuitBreakerConfig: &menuqr.CircuitBreakerConfig{Enabled: true, FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		Locker:               stores.Locker,
		Metrics:              menuqrmetrics.NewMetrics(reg, "menuqr"),
		Logger:               bootstrap.ComponentLogger(logger, "manager"),
	})
	if err != nil {
		return err
	}

	sender, err := bootstrap.NewSender(cfg, logger)
	if err != nil {
		return err
	}

	apiCfg := api.Config{
		Manager:            manager,
		CheckoutSuccessURL: cfg.CheckoutSuccessURL,
		CheckoutCancelURL:  cfg.CheckoutCancelURL,
		PortalReturnURL:    cfg.PortalReturnURL,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:             bootstrap.ComponentLogger(logger, "api"),
	}

	if cfg.Stripe.SecretKey != "" {
		provider, err := stripe.NewProvider(stripe.Config{
			Config: billing.Config{
				Accounts:       manager,
				Locker:         manager.Locker(),
				Events:         stores.Events,
				Notifier:       sender,
				CheckoutPrices: cfg.Stripe.CheckoutPrices,
				WebhookSecret:  cfg.Stripe.WebhookSecret,
				AllowUnsigned:  cfg.Stripe.AllowUnsigned,
				APIKey:         cfg.Stripe.SecretKey,
				Location:       cfg.Location(),
				Metrics:        billingmetrics.NewMetrics(reg, "menuqr_billing"),
				Logger:         bootstrap.ComponentLogger(logger, "billing"),
			},
			ProPriceID:        cfg.Stripe.ProPriceID,
			RateLimitRequests: cfg.Stripe.WebhookRateLimit,
			TrustProxies:      cfg.IsProduction(),
		})
		if err != nil {
			return err
		}
		apiCfg.Billing = provider
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, billing routes disabled")
	}

	handler, err := api.NewHandler(apiCfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
