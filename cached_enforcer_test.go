package gatekit

import (
	"context"
	"testing"
	"time"

	"github.com/Sentinel-Gate/gatekit/model"
	"github.com/Sentinel-Gate/gatekit/persist"
)

func newCachedEnforcer(t *testing.T) *CachedEnforcer {
	t.Helper()
	m, err := model.NewModelFromFile("examples/rbac_model.conf")
	if err != nil {
		t.Fatalf("NewModelFromFile() error: %v", err)
	}
	ce, err := NewCachedEnforcer(context.Background(), m, persist.NewMemoryAdapterFromText(rbacPolicyText))
	if err != nil {
		t.Fatalf("NewCachedEnforcer() error: %v", err)
	}
	t.Cleanup(ce.Close)
	return ce
}

func assertCachedEnforce(t *testing.T, ce *CachedEnforcer, want bool, rvals ...any) {
	t.Helper()
	got, err := ce.Enforce(rvals...)
	if err != nil {
		t.Fatalf("Enforce(%v) error: %v", rvals, err)
	}
	if got != want {
		t.Errorf("Enforce(%v) = %v, want %v", rvals, got, want)
	}
}

func TestCachedEnforceMatchesUncached(t *testing.T) {
	t.Parallel()

	ce := newCachedEnforcer(t)

	requests := []struct {
		rvals []any
		want  bool
	}{
		{[]any{"alice", "data1", "read"}, true},
		{[]any{"alice", "data2", "write"}, true},
		{[]any{"bob", "data1", "read"}, false},
		{[]any{"bob", "data2", "write"}, true},
	}
	// Twice: the second pass answers from the cache with the same verdicts.
	for pass := 0; pass < 2; pass++ {
		for _, req := range requests {
			assertCachedEnforce(t, ce, req.want, req.rvals...)
		}
		ce.cache.Wait()
	}
}

func TestCachedEnforceServesFromCache(t *testing.T) {
	t.Parallel()

	ce := newCachedEnforcer(t)

	assertCachedEnforce(t, ce, true, "alice", "data1", "read")
	ce.cache.Wait()

	key, ok := fingerprint("", []any{"alice", "data1", "read"})
	if !ok {
		t.Fatal("fingerprint() not cacheable for string request")
	}
	if res, hit := ce.cache.Get(key); !hit || !res {
		t.Errorf("cache entry = %v, %v, want hit with true", res, hit)
	}
}

func TestCacheInvalidatedOnMutation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ce := newCachedEnforcer(t)

	assertCachedEnforce(t, ce, false, "bob", "data2", "read")
	ce.cache.Wait()

	if _, err := ce.AddRoleForUser(ctx, "bob", "data2_admin"); err != nil {
		t.Fatalf("AddRoleForUser() error: %v", err)
	}

	key, _ := fingerprint("", []any{"bob", "data2", "read"})
	if _, hit := ce.cache.Get(key); hit {
		t.Error("cache still holds the pre-mutation verdict after a policy change")
	}
	// The fresh evaluation sees the new role.
	assertCachedEnforce(t, ce, true, "bob", "data2", "read")
}

func TestCacheInvalidatedOnReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ce := newCachedEnforcer(t)

	assertCachedEnforce(t, ce, true, "alice", "data1", "read")
	ce.cache.Wait()

	if err := ce.LoadPolicy(ctx); err != nil {
		t.Fatalf("LoadPolicy() error: %v", err)
	}
	key, _ := fingerprint("", []any{"alice", "data1", "read"})
	if _, hit := ce.cache.Get(key); hit {
		t.Error("cache still holds verdicts after a policy reload")
	}
}

func TestCacheDisabled(t *testing.T) {
	t.Parallel()

	ce := newCachedEnforcer(t)
	ce.EnableCache(false)

	assertCachedEnforce(t, ce, true, "alice", "data1", "read")
	ce.cache.Wait()

	key, _ := fingerprint("", []any{"alice", "data1", "read"})
	if _, hit := ce.cache.Get(key); hit {
		t.Error("disabled cache still stored a verdict")
	}
}

func TestCacheBypassForAttributeRequests(t *testing.T) {
	t.Parallel()

	if _, ok := fingerprint("", []any{map[string]any{"age": 19}, "/data1", "read"}); ok {
		t.Error("fingerprint() accepted a non-string request value")
	}
}

func TestCacheTTL(t *testing.T) {
	t.Parallel()

	ce := newCachedEnforcer(t)
	ce.SetCacheTTL(10 * time.Millisecond)

	assertCachedEnforce(t, ce, true, "alice", "data1", "read")
	ce.cache.Wait()

	time.Sleep(50 * time.Millisecond)
	key, _ := fingerprint("", []any{"alice", "data1", "read"})
	if _, hit := ce.cache.Get(key); hit {
		t.Error("cache entry outlived its TTL")
	}
	assertCachedEnforce(t, ce, true, "alice", "data1", "read")
}
