// Package tiered provides a Hot/Cold tiered account store that orchestrates
// fast ephemeral storage (Hot) with durable persistent storage (Cold) using
// different data strategies optimized for each operation type.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache storage (e.g., Redis, Memory) for reads on the webhook path
	Hot menuqr.AccountStore

	// Cold is the L2 persistence storage (e.g., Postgres, Firestore) as the source of truth
	Cold menuqr.AccountStore

	// AsyncEventSync makes MarkProcessed write Hot synchronously and Cold in the background.
	// If false, both writes are synchronous (slower but safer).
	AsyncEventSync bool

	// SyncBufferSize is the size of the buffered channel for async operations.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when an async or best-effort write fails.
	// Essential for monitoring consistency drift.
	AsyncErrorHandler func(error)
}

// Storage implements a Hot/Cold tiered architecture:
// - Read-Through: GetAccount, FindByBillingCustomerID, Seen (Hot → Cold)
// - Write-Through: SaveAccount (Cold → Hot)
// - Cold-Only: ListExpired (Hot may hold a partial set)
// - Hot-Primary/Async: MarkProcessed when AsyncEventSync is set
type Storage struct {
	hot  menuqr.AccountStore
	cold menuqr.AccountStore
	conf Config

	hotEvents  menuqr.EventLog
	coldEvents menuqr.EventLog

	// Channel for async synchronization
	syncQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

var (
	_ menuqr.AccountStore = (*Storage)(nil)
	_ menuqr.EventLog     = (*Storage)(nil)
)

// New creates a new tiered storage adapter.
// Event log methods use whichever tiers implement menuqr.EventLog.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}
	s.hotEvents, _ = config.Hot.(menuqr.EventLog)
	s.coldEvents, _ = config.Cold.(menuqr.EventLog)

	if config.AsyncEventSync {
		s.startWorker()
	}

	return s, nil
}

// Close gracefully shuts down the async worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncEventSync {
		select {
		case <-s.shutdown:
			// Already closed
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background synchronization loop.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				if err := job(); err != nil {
					s.reportError(fmt.Errorf("tiered sync failed: %w", err))
				}
			case <-s.shutdown:
				// Drain queue on shutdown (best effort)
				for {
					select {
					case job := <-s.syncQueue:
						_ = job() //nolint:errcheck // Best effort during shutdown
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) reportError(err error) {
	if s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(err)
	}
}

// --- Strategy: Read-Through (Hot → Cold → Populate Hot) ---

// GetAccount implements menuqr.AccountStore with read-through strategy.
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*menuqr.Account, error) {
	// 1. Try Hot
	acc, err := s.hot.GetAccount(ctx, accountID)
	if err == nil {
		return acc, nil
	}

	// 2. Try Cold (Source of Truth)
	acc, err = s.cold.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// 3. Populate Hot (Read-Repair)
	s.fillHot(ctx, acc)
	return acc, nil
}

// FindByBillingCustomerID implements menuqr.AccountStore with read-through strategy.
func (s *Storage) FindByBillingCustomerID(ctx context.Context, customerID string) (*menuqr.Account, error) {
	acc, err := s.hot.FindByBillingCustomerID(ctx, customerID)
	if err == nil {
		return acc, nil
	}

	acc, err = s.cold.FindByBillingCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	s.fillHot(ctx, acc)
	return acc, nil
}

func (s *Storage) fillHot(ctx context.Context, acc *menuqr.Account) {
	// Cache fill; a rejected write leaves Hot without the entry, which is still correct
	if err := s.hot.SaveAccount(ctx, acc); err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot fill for %s failed: %w", acc.ID, err))
	}
}

// --- Strategy: Write-Through (Cold → Hot) ---

// SaveAccount implements menuqr.AccountStore with write-through strategy.
// Cold decides the customer id rules; Hot mirrors whatever Cold accepted.
func (s *Storage) SaveAccount(ctx context.Context, acc *menuqr.Account) error {
	// 1. Write Cold (Durability)
	if err := s.cold.SaveAccount(ctx, acc); err != nil {
		return err
	}
	// 2. Write Hot (Availability)
	if err := s.hot.SaveAccount(ctx, acc); err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot write for %s failed: %w", acc.ID, err))
	}
	return nil
}

// --- Strategy: Cold-Only ---

// ListExpired implements menuqr.AccountStore from Cold, the only complete tier.
func (s *Storage) ListExpired(ctx context.Context, now time.Time, limit int) ([]*menuqr.Account, error) {
	return s.cold.ListExpired(ctx, now, limit)
}

// --- Event log ---

// Seen implements menuqr.EventLog with read-through strategy.
// Hot is checked first because async MarkProcessed reaches Cold later.
func (s *Storage) Seen(ctx context.Context, eventID string) (bool, error) {
	if s.hotEvents != nil {
		seen, err := s.hotEvents.Seen(ctx, eventID)
		if err == nil && seen {
			return true, nil
		}
	}
	if s.coldEvents != nil {
		return s.coldEvents.Seen(ctx, eventID)
	}
	return false, nil
}

// MarkProcessed implements menuqr.EventLog.
func (s *Storage) MarkProcessed(ctx context.Context, eventID string) error {
	if s.hotEvents != nil {
		if err := s.hotEvents.MarkProcessed(ctx, eventID); err != nil && s.coldEvents == nil {
			return err
		}
	}
	if s.coldEvents == nil {
		return nil
	}

	if !s.conf.AsyncEventSync {
		return s.coldEvents.MarkProcessed(ctx, eventID)
	}

	// Attempt to enqueue non-blocking
	select {
	case s.syncQueue <- func() error {
		// Context background ensures completion even if request cancels
		return s.coldEvents.MarkProcessed(context.Background(), eventID)
	}:
	default:
		s.reportError(errors.New("tiered storage: sync queue full, dropping cold event write"))
	}
	return nil
}
