package menuqr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config configures a Manager.
type Config struct {
	// CacheConfig enables the account cache (optional)
	CacheConfig *CacheConfig

	// CircuitBreakerConfig wraps account storage with a circuit breaker (optional)
	CircuitBreakerConfig *CircuitBreakerConfig

	// Locker serializes account mutations (default: in-memory keyed mutex)
	Locker Locker

	Metrics Metrics
	Logger  Logger

	// Now is the clock (default: time.Now)
	Now func() time.Time

	// NewID generates catalog ids (default: uuid.NewString)
	NewID func() string
}

// Manager is the application facade over account and catalog storage.
// It implements AccountStore, so billing reconciliation reads and writes through its cache.
type Manager struct {
	accounts AccountStore
	catalog  CatalogStore
	cache    Cache
	cacheTTL time.Duration
	locker   Locker
	metrics  Metrics
	logger   Logger
	now      func() time.Time
	newID    func() string
}

var _ AccountStore = (*Manager)(nil)

// NewManager creates a Manager. catalog may be nil when only billing features are used.
func NewManager(accounts AccountStore, catalog CatalogStore, config Config) (*Manager, error) {
	if accounts == nil {
		return nil, ErrStorageUnavailable
	}

	m := &Manager{
		accounts: accounts,
		catalog:  catalog,
		cache:    NewNoopCache(),
		locker:   config.Locker,
		metrics:  config.Metrics,
		logger:   OrNoop(config.Logger),
		now:      config.Now,
		newID:    config.NewID,
	}
	if m.metrics == nil {
		m.metrics = &NoopMetrics{}
	}
	if m.locker == nil {
		m.locker = NewMemoryLocker()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}

	if cc := config.CacheConfig; cc != nil && cc.Enabled {
		m.cache = NewLRUCache(cc.MaxAccounts)
		m.cacheTTL = cc.AccountTTL
		if m.cacheTTL <= 0 {
			m.cacheTTL = 30 * time.Second
		}
	}

	if cbc := config.CircuitBreakerConfig; cbc != nil && cbc.Enabled {
		cb := NewDefaultCircuitBreaker(*cbc, func(state CircuitBreakerState) {
			m.metrics.RecordCircuitBreakerStateChange(string(state))
			m.logger.Warn("account storage circuit breaker state changed", F("state", string(state)))
		})
		m.accounts = NewCircuitBreakerStore(accounts, cb)
	}

	return m, nil
}

// Locker returns the account locker shared with billing reconciliation.
func (m *Manager) Locker() Locker { return m.locker }

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time { return m.now() }

func (m *Manager) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrAccountNotFound) {
		err = nil
	}
	m.metrics.RecordStorageOperation(op, m.now().Sub(start), err)
}

// GetAccount implements AccountStore, reading through the cache.
func (m *Manager) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if acc, ok := m.cache.GetAccount(accountID); ok {
		m.metrics.RecordCacheHit("account")
		return acc, nil
	}
	m.metrics.RecordCacheMiss("account")

	start := m.now()
	acc, err := m.accounts.GetAccount(ctx, accountID)
	m.observe("get_account", start, err)
	if err != nil {
		return nil, err
	}
	m.cache.SetAccount(acc, m.cacheTTL)
	return acc, nil
}

// FindByBillingCustomerID implements AccountStore. It always reads storage so
// reconciliation works from the latest persisted state.
func (m *Manager) FindByBillingCustomerID(ctx context.Context, customerID string) (*Account, error) {
	if customerID == "" {
		return nil, ErrAccountNotFound
	}
	start := m.now()
	acc, err := m.accounts.FindByBillingCustomerID(ctx, customerID)
	m.observe("find_by_customer", start, err)
	return acc, err
}

// SaveAccount implements AccountStore.
func (m *Manager) SaveAccount(ctx context.Context, account *Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if account.Plan == "" {
		account.Plan = PlanFree
	}
	account.UpdatedAt = m.now().UTC()

	m.cache.InvalidateAccount(account.ID)
	start := m.now()
	err := m.accounts.SaveAccount(ctx, account)
	m.observe("save_account", start, err)
	return err
}

// ListExpired implements AccountStore.
func (m *Manager) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Account, error) {
	start := m.now()
	out, err := m.accounts.ListExpired(ctx, now, limit)
	m.observe("list_expired", start, err)
	return out, err
}

// CreateAccount registers a new free account.
func (m *Manager) CreateAccount(ctx context.Context, accountID, email string) (*Account, error) {
	email = strings.TrimSpace(email)
	if accountID == "" || email == "" {
		return nil, fmt.Errorf("%w: account id and email are required", ErrInvalidInput)
	}
	now := m.now().UTC()
	acc := &Account{ID: accountID, Email: email, Plan: PlanFree, CreatedAt: now}
	if err := m.SaveAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// AssignCustomerID sets the billing customer id of an account that has none.
// It is a no-op when the same id is already assigned.
func (m *Manager) AssignCustomerID(ctx context.Context, accountID, customerID string) (*Account, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	unlock, err := m.locker.Lock(ctx, "account:"+accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	acc, err := m.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.BillingCustomerID == customerID {
		return acc, nil
	}
	if acc.BillingCustomerID != "" {
		return nil, ErrCustomerIDImmutable
	}
	acc.BillingCustomerID = customerID
	if err := m.SaveAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// SubscriptionStatus is the owner-facing summary of an account's billing state.
type SubscriptionStatus struct {
	Plan                  Plan
	PeriodEndsAt          *time.Time
	IsCancellationPending bool
	Entitled              bool
	PaymentMethodID       string
}

// GetSubscription returns the subscription status of an account.
func (m *Manager) GetSubscription(ctx context.Context, accountID string) (*SubscriptionStatus, error) {
	acc, err := m.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &SubscriptionStatus{
		Plan:                  acc.Plan,
		PeriodEndsAt:          acc.PeriodEndsAt,
		IsCancellationPending: acc.IsCancellationPending,
		Entitled:              acc.IsEntitled(m.now()),
		PaymentMethodID:       acc.PaymentMethodID,
	}, nil
}

// EntitlementChecker is the subset of Manager used by request gating middleware.
type EntitlementChecker interface {
	CheckEntitlement(ctx context.Context, accountID string) (bool, error)
}

var _ EntitlementChecker = (*Manager)(nil)

// CheckEntitlement reports whether the account has an active pro subscription.
// Unknown accounts are not entitled.
func (m *Manager) CheckEntitlement(ctx context.Context, accountID string) (bool, error) {
	start := m.now()
	acc, err := m.GetAccount(ctx, accountID)
	if errors.Is(err, ErrAccountNotFound) {
		m.metrics.RecordEntitlementCheck(false, m.now().Sub(start))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	entitled := acc.IsEntitled(m.now())
	m.metrics.RecordEntitlementCheck(entitled, m.now().Sub(start))
	return entitled, nil
}

// RequireEntitled returns ErrNotEntitled unless the account is entitled.
func (m *Manager) RequireEntitled(ctx context.Context, accountID string) error {
	ok, err := m.CheckEntitlement(ctx, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEntitled
	}
	return nil
}
