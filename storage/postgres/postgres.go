// Package postgres provides a PostgreSQL implementation of the menuqr storage interfaces.
// Account writes run in a transaction with SELECT FOR UPDATE so the billing customer id
// rules are checked against the row being replaced.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Storage implements menuqr.AccountStore, menuqr.CatalogStore and menuqr.EventLog
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

var (
	_ menuqr.AccountStore = (*Storage)(nil)
	_ menuqr.CatalogStore = (*Storage)(nil)
	_ menuqr.EventLog     = (*Storage)(nil)
)

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often to run cleanup
	EventTTL        time.Duration // How long processed event ids are kept
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		CleanupEnabled:  true,
		CleanupInterval: time.Hour,
		EventTTL:        30 * 24 * time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}
	if config.CleanupEnabled && config.CleanupInterval > 0 && config.EventTTL > 0 {
		go s.startCleanup(cleanupCtx)
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

const accountColumns = `id, email, billing_customer_id, billing_subscription_id, plan,
	period_ends_at, is_cancellation_pending, payment_method_id, created_at, updated_at`

func scanAccount(row pgx.Row) (*menuqr.Account, error) {
	var acc menuqr.Account
	var customerID *string
	var plan string
	err := row.Scan(
		&acc.ID,
		&acc.Email,
		&customerID,
		&acc.BillingSubscriptionID,
		&plan,
		&acc.PeriodEndsAt,
		&acc.IsCancellationPending,
		&acc.PaymentMethodID,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, menuqr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	if customerID != nil {
		acc.BillingCustomerID = *customerID
	}
	acc.Plan = menuqr.Plan(plan)
	if acc.PeriodEndsAt != nil {
		t := acc.PeriodEndsAt.UTC()
		acc.PeriodEndsAt = &t
	}
	return &acc, nil
}

// GetAccount implements menuqr.AccountStore
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*menuqr.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
}

// FindByBillingCustomerID implements menuqr.AccountStore
func (s *Storage) FindByBillingCustomerID(ctx context.Context, customerID string) (*menuqr.Account, error) {
	if customerID == "" {
		return nil, menuqr.ErrAccountNotFound
	}
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE billing_customer_id = $1`, customerID))
}

// SaveAccount implements menuqr.AccountStore
func (s *Storage) SaveAccount(ctx context.Context, acc *menuqr.Account) error {
	if acc == nil || acc.ID == "" {
		return fmt.Errorf("%w: account id is required", menuqr.ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, acc.ID))
	if err != nil && !errors.Is(err, menuqr.ErrAccountNotFound) {
		return err
	}
	if err := menuqr.CheckCustomerIDChange(stored, acc); err != nil {
		return err
	}

	createdAt := acc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := acc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				email = EXCLUDED.email,
				billing_customer_id = EXCLUDED.billing_customer_id,
				billing_subscription_id = EXCLUDED.billing_subscription_id,
				plan = EXCLUDED.plan,
				period_ends_at = EXCLUDED.period_ends_at,
				is_cancellation_pending = EXCLUDED.is_cancellation_pending,
				payment_method_id = EXCLUDED.payment_method_id,
				updated_at = EXCLUDED.updated_at`,
		acc.ID, acc.Email, nullIfEmpty(acc.BillingCustomerID), acc.BillingSubscriptionID, string(acc.Plan),
		acc.PeriodEndsAt, acc.IsCancellationPending, acc.PaymentMethodID, createdAt, updatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return menuqr.ErrDuplicateCustomerID
		}
		return fmt.Errorf("failed to save account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit account: %w", err)
	}
	return nil
}

// ListExpired implements menuqr.AccountStore
func (s *Storage) ListExpired(ctx context.Context, now time.Time, limit int) ([]*menuqr.Account, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts
			WHERE plan = 'pro' AND period_ends_at IS NOT NULL AND period_ends_at < $1
			ORDER BY period_ends_at
			LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired accounts: %w", err)
	}
	defer rows.Close()

	var out []*menuqr.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// Seen implements menuqr.EventLog
func (s *Storage) Seen(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return exists, nil
}

// MarkProcessed implements menuqr.EventLog
func (s *Storage) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event: %w", err)
	}
	return nil
}

// startCleanup periodically removes processed event ids older than EventTTL.
// It stops when Close cancels ctx.
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.cleanupProcessedEvents(ctx)
		}
	}
}

func (s *Storage) cleanupProcessedEvents(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM processed_events WHERE processed_at < $1`,
		time.Now().UTC().Add(-s.config.EventTTL))
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
