// Package redis provides a Redis implementation of the menuqr account storage, event log and locker.
// Account writes run as Lua scripts so the billing customer id rules are checked atomically.
// In cluster mode the KeyPrefix must contain a hash tag (e.g. "{menuqr}:") so the
// keys touched by one script share a slot.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Storage implements menuqr.AccountStore, menuqr.EventLog and menuqr.Locker using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

var (
	_ menuqr.AccountStore = (*Storage)(nil)
	_ menuqr.EventLog     = (*Storage)(nil)
	_ menuqr.Locker       = (*Storage)(nil)
)

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "menuqr:")
	KeyPrefix string

	// EventTTL is how long processed event ids are remembered (default: 30 days)
	EventTTL time.Duration

	// LockTTL bounds how long a crashed holder can keep an account locked (default: 30 seconds)
	LockTTL time.Duration

	// LockRetryInterval is the pause between lock attempts (default: 50ms)
	LockRetryInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:         "menuqr:",
		EventTTL:          30 * 24 * time.Hour,
		LockTTL:           30 * time.Second,
		LockRetryInterval: 50 * time.Millisecond,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	defaults := DefaultConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.EventTTL == 0 {
		config.EventTTL = defaults.EventTTL
	}
	if config.LockTTL == 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.LockRetryInterval == 0 {
		config.LockRetryInterval = defaults.LockRetryInterval
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()

	return s, nil
}

// loadScripts compiles the Lua scripts used for atomic writes
func (s *Storage) loadScripts() {
	// KEYS: account hash, customer index key (unused when ARGV[2] is empty), expiry sorted set
	// ARGV: account id, customer id, json, expiry score ("" to remove)
	s.scripts["save_account"] = redis.NewScript(`
		local accountKey = KEYS[1]
		local customerKey = KEYS[2]
		local expiryKey = KEYS[3]
		local accountID = ARGV[1]
		local customerID = ARGV[2]
		local data = ARGV[3]
		local score = ARGV[4]

		local stored = redis.call('HGET', accountKey, 'customer')
		if stored and stored ~= '' and stored ~= customerID then
			return 'immutable'
		end

		if customerID ~= '' then
			local owner = redis.call('GET', customerKey)
			if owner and owner ~= accountID then
				return 'duplicate'
			end
			redis.call('SET', customerKey, accountID)
		end

		redis.call('HSET', accountKey, 'data', data, 'customer', customerID)

		if score ~= '' then
			redis.call('ZADD', expiryKey, score, accountID)
		else
			redis.call('ZREM', expiryKey, accountID)
		end

		return 'ok'
	`)

	// Releases a lock only if it is still held with the caller's token
	s.scripts["unlock"] = redis.NewScript(`
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		end
		return 0
	`)
}

func (s *Storage) accountKey(accountID string) string {
	return s.config.KeyPrefix + "account:" + accountID
}

func (s *Storage) customerKey(customerID string) string {
	return s.config.KeyPrefix + "customer:" + customerID
}

func (s *Storage) expiryKey() string {
	return s.config.KeyPrefix + "expiry"
}

func (s *Storage) eventKey(eventID string) string {
	return s.config.KeyPrefix + "event:" + eventID
}

func (s *Storage) lockKey(key string) string {
	return s.config.KeyPrefix + "lock:" + key
}

// GetAccount implements menuqr.AccountStore
func (s *Storage) GetAccount(ctx context.Context, accountID string) (*menuqr.Account, error) {
	data, err := s.client.HGet(ctx, s.accountKey(accountID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, menuqr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	var acc menuqr.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &acc, nil
}

// FindByBillingCustomerID implements menuqr.AccountStore
func (s *Storage) FindByBillingCustomerID(ctx context.Context, customerID string) (*menuqr.Account, error) {
	if customerID == "" {
		return nil, menuqr.ErrAccountNotFound
	}
	accountID, err := s.client.Get(ctx, s.customerKey(customerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, menuqr.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}
	return s.GetAccount(ctx, accountID)
}

// SaveAccount implements menuqr.AccountStore
func (s *Storage) SaveAccount(ctx context.Context, acc *menuqr.Account) error {
	if acc == nil || acc.ID == "" {
		return fmt.Errorf("%w: account id is required", menuqr.ErrInvalidInput)
	}

	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	score := ""
	if acc.Plan == menuqr.PlanPro && acc.PeriodEndsAt != nil {
		score = strconv.FormatInt(acc.PeriodEndsAt.UnixMilli(), 10)
	}

	result, err := s.scripts["save_account"].Run(ctx, s.client,
		[]string{s.accountKey(acc.ID), s.customerKey(acc.BillingCustomerID), s.expiryKey()},
		acc.ID, acc.BillingCustomerID, data, score,
	).Text()
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	switch result {
	case "ok":
		return nil
	case "immutable":
		return menuqr.ErrCustomerIDImmutable
	case "duplicate":
		return menuqr.ErrDuplicateCustomerID
	default:
		return fmt.Errorf("unexpected save result: %s", result)
	}
}

// ListExpired implements menuqr.AccountStore
func (s *Storage) ListExpired(ctx context.Context, now time.Time, limit int) ([]*menuqr.Account, error) {
	if limit <= 0 {
		limit = 1000
	}
	ids, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired accounts: %w", err)
	}

	out := make([]*menuqr.Account, 0, len(ids))
	for _, id := range ids {
		acc, err := s.GetAccount(ctx, id)
		if errors.Is(err, menuqr.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

// Seen implements menuqr.EventLog
func (s *Storage) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.eventKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed implements menuqr.EventLog
func (s *Storage) MarkProcessed(ctx context.Context, eventID string) error {
	if err := s.client.SetNX(ctx, s.eventKey(eventID), time.Now().Unix(), s.config.EventTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark event: %w", err)
	}
	return nil
}

// Lock implements menuqr.Locker. The lock expires after LockTTL if the holder never releases it.
func (s *Storage) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := s.lockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(s.config.LockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.config.LockTTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", menuqr.ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release with a fresh context so a canceled request still frees the key
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.scripts["unlock"].Run(releaseCtx, s.client, []string{lockKey}, token).Err()
		})
	}, nil
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
