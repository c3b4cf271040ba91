package menuqr

import (
	"sync"
	"time"
)

// Cache holds recently read accounts to keep entitlement checks off the storage backend.
type Cache interface {
	// GetAccount returns a copy of a cached account and true, or nil and false on a miss
	GetAccount(accountID string) (*Account, bool)

	// SetAccount stores a copy of the account with the given TTL
	SetAccount(account *Account, ttl time.Duration)

	// InvalidateAccount removes an account from the cache
	InvalidateAccount(accountID string)

	// Clear removes all entries from the cache
	Clear()

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type cacheEntry struct {
	account    *Account
	expiration time.Time
	accessTime time.Time
	sequence   int64 // tiebreak when access times are equal
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return now.After(e.expiration)
}

// NoopCache is used when caching is disabled.
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) GetAccount(string) (*Account, bool) { return nil, false }
func (c *NoopCache) SetAccount(*Account, time.Duration) {}
func (c *NoopCache) InvalidateAccount(string)           {}
func (c *NoopCache) Clear()                             {}
func (c *NoopCache) Stats() CacheStats                  { return CacheStats{} }

// LRUCache implements Cache with a bounded map, TTL expiry and least-recently-used eviction.
type LRUCache struct {
	mu        sync.Mutex
	entries   map[string]*cacheEntry
	max       int
	hits      int64
	misses    int64
	evictions int64
	sequence  int64
	now       func() time.Time
}

// NewLRUCache creates a new LRU cache holding at most maxAccounts entries.
func NewLRUCache(maxAccounts int) *LRUCache {
	if maxAccounts <= 0 {
		maxAccounts = 1000
	}
	return &LRUCache{
		entries: make(map[string]*cacheEntry, maxAccounts),
		max:     maxAccounts,
		now:     time.Now,
	}
}

func (c *LRUCache) GetAccount(accountID string) (*Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.entries[accountID]
	if !ok || entry.isExpired(now) {
		c.misses++
		return nil, false
	}
	entry.accessTime = now
	c.hits++
	return entry.account.Clone(), true
}

func (c *LRUCache) SetAccount(account *Account, ttl time.Duration) {
	if account == nil || account.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[account.ID]; !exists && len(c.entries) >= c.max {
		c.evictOldest()
	}

	seq := c.sequence
	c.sequence++
	c.entries[account.ID] = &cacheEntry{
		account:    account.Clone(),
		expiration: now.Add(ttl),
		accessTime: now,
		sequence:   seq,
	}
}

// evictOldest must be called with c.mu held.
func (c *LRUCache) evictOldest() {
	var oldestKey string
	var oldest *cacheEntry
	for key, entry := range c.entries {
		if oldest == nil || entry.accessTime.Before(oldest.accessTime) ||
			(entry.accessTime.Equal(oldest.accessTime) && entry.sequence < oldest.sequence) {
			oldestKey = key
			oldest = entry
		}
	}
	if oldest != nil {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

func (c *LRUCache) InvalidateAccount(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accountID)
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry, c.max)
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}
