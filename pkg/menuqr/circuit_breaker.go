package menuqr

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitBreakerState represents the current state of the circuit breaker.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to a backend that may become unavailable.
type CircuitBreaker interface {
	// Execute runs fn unless the circuit is open.
	Execute(ctx context.Context, fn func() error) error
	// State returns the current state of the circuit breaker.
	State() CircuitBreakerState
}

// DefaultCircuitBreaker opens after a number of consecutive backend failures and
// lets a single probe through once the reset timeout has elapsed.
// Lookup misses and validation errors are results, not failures, and never trip it.
type DefaultCircuitBreaker struct {
	mu sync.Mutex

	state               CircuitBreakerState
	failureThreshold    int
	resetTimeout        time.Duration
	consecutiveFailures int
	openedAt            time.Time
	now                 func() time.Time

	onStateChange func(state CircuitBreakerState)
}

// NewDefaultCircuitBreaker creates a circuit breaker from cfg.
func NewDefaultCircuitBreaker(cfg CircuitBreakerConfig, onStateChange func(state CircuitBreakerState)) *DefaultCircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &DefaultCircuitBreaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		resetTimeout:     cfg.ResetTimeout,
		now:              time.Now,
		onStateChange:    onStateChange,
	}
}

func (cb *DefaultCircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

func (cb *DefaultCircuitBreaker) currentState() CircuitBreakerState {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		cb.changeState(StateHalfOpen)
	}
	return cb.state
}

func (cb *DefaultCircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cb.State() == StateOpen {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && isBackendFailure(err) {
		cb.failure()
		return err
	}
	cb.success()
	return err
}

func (cb *DefaultCircuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	if cb.state != StateClosed {
		cb.changeState(StateClosed)
	}
}

func (cb *DefaultCircuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	state := cb.currentState()
	if state == StateHalfOpen || (state == StateClosed && cb.consecutiveFailures >= cb.failureThreshold) {
		cb.openedAt = cb.now()
		cb.changeState(StateOpen)
	}
}

func (cb *DefaultCircuitBreaker) changeState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	cb.state = newState
	if cb.onStateChange != nil {
		cb.onStateChange(newState)
	}
}

func isBackendFailure(err error) bool {
	switch {
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrCustomerIDImmutable),
		errors.Is(err, ErrDuplicateCustomerID),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// CircuitBreakerStore wraps an AccountStore with circuit breaker protection.
type CircuitBreakerStore struct {
	store AccountStore
	cb    CircuitBreaker
}

// NewCircuitBreakerStore creates a new AccountStore decorator.
func NewCircuitBreakerStore(store AccountStore, cb CircuitBreaker) *CircuitBreakerStore {
	return &CircuitBreakerStore{store: store, cb: cb}
}

func (s *CircuitBreakerStore) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var acc *Account
	err := s.cb.Execute(ctx, func() error {
		var e error
		acc, e = s.store.GetAccount(ctx, accountID)
		return e
	})
	return acc, err
}

func (s *CircuitBreakerStore) FindByBillingCustomerID(ctx context.Context, customerID string) (*Account, error) {
	var acc *Account
	err := s.cb.Execute(ctx, func() error {
		var e error
		acc, e = s.store.FindByBillingCustomerID(ctx, customerID)
		return e
	})
	return acc, err
}

func (s *CircuitBreakerStore) SaveAccount(ctx context.Context, account *Account) error {
	return s.cb.Execute(ctx, func() error {
		return s.store.SaveAccount(ctx, account)
	})
}

func (s *CircuitBreakerStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Account, error) {
	var out []*Account
	err := s.cb.Execute(ctx, func() error {
		var e error
		out, e = s.store.ListExpired(ctx, now, limit)
		return e
	})
	return out, err
}
