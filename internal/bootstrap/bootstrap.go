// Package bootstrap builds the runtime dependencies shared by the menuqr binaries.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/menuqr/internal/config"
	"github.com/mihaimyh/menuqr/pkg/menuqr"
	zlog "github.com/mihaimyh/menuqr/pkg/menuqr/logger/zerolog"
	"github.com/mihaimyh/menuqr/pkg/notify"
	"github.com/mihaimyh/menuqr/pkg/notify/mailgun"
	"github.com/mihaimyh/menuqr/storage/memory"
	"github.com/mihaimyh/menuqr/storage/postgres"
	"github.com/mihaimyh/menuqr/storage/redis"
	"github.com/mihaimyh/menuqr/storage/tiered"
)

// Stores is the storage selected from configuration.
type Stores struct {
	Accounts menuqr.AccountStore
	Catalog  menuqr.CatalogStore
	Events   menuqr.EventLog
	// Locker is nil when no shared lock backend is configured
	Locker menuqr.Locker

	closers []func()
}

// Close releases connections in reverse order of creation.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// NewLogger returns a JSON zerolog logger on stdout at the configured level.
func NewLogger(cfg *config.Configuration) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("env", cfg.Env).
		Logger()
}

// OpenStores selects Postgres when DATABASE_URL is set and memory otherwise.
// With REDIS_ADDR set, Redis serves as the hot account tier, the event log and the lock.
func OpenStores(ctx context.Context, cfg *config.Configuration, logger zerolog.Logger) (*Stores, error) {
	stores := &Stores{}

	if cfg.DatabaseURL != "" {
		pgCfg := postgres.DefaultConfig()
		pgCfg.ConnectionString = cfg.DatabaseURL
		pg, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			stores.Close()
			return nil, err
		}
		stores.Accounts, stores.Catalog, stores.Events = pg, pg, pg
		logger.Info().Msg("using postgres storage")
	} else {
		mem := memory.New()
		stores.Accounts, stores.Catalog, stores.Events = mem, mem, mem
		logger.Warn().Msg("DATABASE_URL not set, using in-memory storage")
	}

	if cfg.RedisAddr == "" {
		return stores, nil
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	rs, err := redis.New(client, redis.DefaultConfig())
	if err != nil {
		_ = client.Close()
		stores.Close()
		return nil, err
	}
	stores.closers = append(stores.closers, func() { _ = rs.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		stores.Close()
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}

	tier, err := tiered.New(tiered.Config{
		Hot:            rs,
		Cold:           stores.Accounts,
		AsyncEventSync: true,
		AsyncErrorHandler: func(err error) {
			logger.Error().Err(err).Msg("tiered storage sync failed")
		},
	})
	if err != nil {
		stores.Close()
		return nil, err
	}
	stores.closers = append(stores.closers, func() { _ = tier.Close() })

	stores.Accounts, stores.Events, stores.Locker = tier, tier, rs
	logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("using redis hot tier and lock")
	return stores, nil
}

// NewSender returns a Mailgun sender when an API key is configured, else a LogSender.
func NewSender(cfg *config.Configuration, logger zerolog.Logger) (notify.Sender, error) {
	if cfg.Mailgun.APIKey == "" {
		return notify.NewLogSender(logger), nil
	}
	return mailgun.New(mailgun.Config{
		Domain:   cfg.Mailgun.Domain,
		APIKey:   cfg.Mailgun.APIKey,
		APIBase:  cfg.Mailgun.APIBase,
		FromName: cfg.Mailgun.FromName,
	})
}

// ComponentLogger adapts logger to menuqr.Logger.
func ComponentLogger(logger zerolog.Logger, component string) menuqr.Logger {
	return zlog.NewLogger(logger, component)
}
