package gatekit

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"

	"github.com/Sentinel-Gate/gatekit/event"
	"github.com/Sentinel-Gate/gatekit/persist"
)

// DefaultCacheCapacity bounds the decision cache. NewCachedEnforcer always
// uses it; the capacity cannot be set per enforcer.
const DefaultCacheCapacity = 1000

// CachedEnforcer wraps an Enforcer with a fingerprint -> verdict memo.
// Lookups happen before evaluation, stores after; every policy change
// empties the cache. Only all-string requests are cacheable — attribute
// objects have no stable fingerprint and fall through to evaluation.
type CachedEnforcer struct {
	*Enforcer

	cache   *ristretto.Cache[uint64, bool]
	ttl     time.Duration
	caching bool
}

// NewCachedEnforcer constructs the wrapped enforcer with the same arguments
// as NewEnforcer and subscribes its cache to policy changes.
func NewCachedEnforcer(ctx context.Context, modelArg any, adapterArg ...any) (*CachedEnforcer, error) {
	inner, err := NewEnforcer(ctx, modelArg, adapterArg...)
	if err != nil {
		return nil, err
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, bool]{
		NumCounters: DefaultCacheCapacity * 10,
		MaxCost:     DefaultCacheCapacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	ce := &CachedEnforcer{Enforcer: inner, cache: cache, caching: true}
	inner.OnPolicyChange(func(event.Data) {
		ce.InvalidateCache()
	})
	return ce, nil
}

// EnableCache toggles memoization; disabled, every request evaluates.
func (ce *CachedEnforcer) EnableCache(enabled bool) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.caching = enabled
}

// SetCacheTTL bounds the lifetime of memoized verdicts; zero keeps them
// until the next policy change.
func (ce *CachedEnforcer) SetCacheTTL(ttl time.Duration) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.ttl = ttl
}

// InvalidateCache drops every memoized verdict.
func (ce *CachedEnforcer) InvalidateCache() {
	ce.cache.Clear()
}

// Close releases the cache's internal resources.
func (ce *CachedEnforcer) Close() {
	ce.cache.Close()
}

// LoadPolicy reloads from the adapter and drops every memoized verdict.
func (ce *CachedEnforcer) LoadPolicy(ctx context.Context) error {
	err := ce.Enforcer.LoadPolicy(ctx)
	ce.InvalidateCache()
	return err
}

// LoadFilteredPolicy reloads a filtered subset and drops every memoized
// verdict.
func (ce *CachedEnforcer) LoadFilteredPolicy(ctx context.Context, f persist.Filter) error {
	err := ce.Enforcer.LoadFilteredPolicy(ctx, f)
	ce.InvalidateCache()
	return err
}

// ClearPolicy drops the in-memory rules and the memoized verdicts.
func (ce *CachedEnforcer) ClearPolicy() {
	ce.Enforcer.ClearPolicy()
	ce.InvalidateCache()
}

// Enforce memoizes Enforcer.Enforce by request fingerprint.
func (ce *CachedEnforcer) Enforce(rvals ...any) (bool, error) {
	return ce.enforceCached("", rvals)
}

// EnforceWithMatcher memoizes by fingerprint including the matcher key.
func (ce *CachedEnforcer) EnforceWithMatcher(matcher string, rvals ...any) (bool, error) {
	return ce.enforceCached(matcher, rvals)
}

func (ce *CachedEnforcer) enforceCached(matcher string, rvals []any) (bool, error) {
	ce.mu.RLock()
	caching := ce.caching
	ttl := ce.ttl
	ce.mu.RUnlock()

	key, cacheable := fingerprint(matcher, rvals)
	if !caching || !cacheable {
		return ce.Enforcer.EnforceWithMatcher(matcher, rvals...)
	}

	if res, ok := ce.cache.Get(key); ok {
		return res, nil
	}

	res, err := ce.Enforcer.EnforceWithMatcher(matcher, rvals...)
	if err != nil {
		return false, err
	}
	if ttl > 0 {
		ce.cache.SetWithTTL(key, res, 1, ttl)
	} else {
		ce.cache.Set(key, res, 1)
	}
	return res, nil
}

// fingerprint hashes the matcher key and the request tokens. Requests
// carrying non-string values are not fingerprintable.
func fingerprint(matcher string, rvals []any) (uint64, bool) {
	h := xxhash.New()
	h.WriteString(matcher)
	for _, v := range rvals {
		s, ok := v.(string)
		if !ok {
			return 0, false
		}
		h.Write([]byte{0x1e})
		h.WriteString(s)
	}
	return h.Sum64(), true
}
