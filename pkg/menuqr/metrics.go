package menuqr

import "time"

// Metrics tracks account storage, cache, entitlement and sweep activity.
type Metrics interface {
	// RecordEntitlementCheck records an entitlement check and its result.
	RecordEntitlementCheck(entitled bool, duration time.Duration)

	// RecordCacheHit records a cache hit for a cache type (e.g. "account").
	RecordCacheHit(cacheType string)

	// RecordCacheMiss records a cache miss for a cache type.
	RecordCacheMiss(cacheType string)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)

	// RecordExpiredDowngrade records an account downgraded by the expiry sweep.
	RecordExpiredDowngrade(notified bool)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEntitlementCheck(bool, time.Duration)          {}
func (n *NoopMetrics) RecordCacheHit(string)                               {}
func (n *NoopMetrics) RecordCacheMiss(string)                              {}
func (n *NoopMetrics) RecordStorageOperation(string, time.Duration, error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(string)              {}
func (n *NoopMetrics) RecordExpiredDowngrade(bool)                         {}
