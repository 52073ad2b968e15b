// internal/tenant/resolver_test.go
//
// Unit-tests for Resolver.
//
// Context
// -------
// Each test builds an isolated Resolver over a MemoryStore, a mock clock,
// and tenanttest.Client, so no state leaks between tests.  The fake client
// counts calls, which is how "served from cache" is asserted:
//
//   • hit within TTL                       → one store call
//   • expiry and explicit invalidation     → a second store call
//   • not found and store failure          → never cached
//   • concurrent misses                    → one shared store call
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package tenant_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/yanizio/hostgate/internal/tenant"
	"github.com/yanizio/hostgate/internal/tenant/meta"
	"github.com/yanizio/hostgate/internal/tenant/tenanttest"
)

const ttl = time.Minute

func site(id, domain string, st meta.Status, alts ...string) meta.Record {
	return meta.Record{TenantID: id, Domain: domain, Status: st, AlternateDomains: alts}
}

func newResolver(t *testing.T, c tenant.Client, opts tenant.Options) (*tenant.Resolver, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	opts.Clock = clk
	opts.Logger = zaptest.NewLogger(t)
	store := tenant.NewMemoryStore(ttl, 16, clk)
	return tenant.NewResolver(c, store, opts), clk
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestResolve_HitWithinTTL(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive))
	r, clk := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	first := r.Resolve(ctx, "a.example.com")
	if first.Kind != tenant.Resolved || first.FromCache {
		t.Fatalf("first resolve = %+v, want fresh Resolved", first)
	}
	clk.Add(ttl) // exactly TTL is still fresh
	second := r.Resolve(ctx, "A.Example.COM.")
	if second.Kind != tenant.Resolved || !second.FromCache {
		t.Fatalf("second resolve = %+v, want cached Resolved", second)
	}
	if second.Record.TenantID != "t1" || second.Key != "a.example.com" {
		t.Fatalf("wrong record: %+v", second)
	}
	if n := c.DomainCalls(); n != 1 {
		t.Fatalf("client calls = %d, want 1", n)
	}
	if s := r.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("stats = %+v, want 1 hit / 1 miss", s)
	}
}

func TestResolve_ExpiredEntryRefetchesOnce(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive))
	r, clk := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	r.Resolve(ctx, "a.example.com")
	clk.Add(ttl + time.Nanosecond)

	res := r.Resolve(ctx, "a.example.com")
	if res.Kind != tenant.Resolved || res.FromCache {
		t.Fatalf("after expiry = %+v, want fresh Resolved", res)
	}
	if n := c.DomainCalls(); n != 2 {
		t.Fatalf("client calls = %d, want 2", n)
	}
	if res := r.Resolve(ctx, "a.example.com"); !res.FromCache {
		t.Fatal("refetched entry not cached")
	}
	if n := c.DomainCalls(); n != 2 {
		t.Fatalf("client calls = %d, want still 2", n)
	}
}

func TestInvalidateDomain_NormalizesAndForcesRefetch(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive))
	r, _ := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	r.Resolve(ctx, "a.example.com")
	r.InvalidateDomain(ctx, " A.EXAMPLE.com.:443 ")
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("len after invalidate = %d, want 0", n)
	}
	r.InvalidateDomain(ctx, "a.example.com") // absent: no-op

	if res := r.Resolve(ctx, "a.example.com"); res.FromCache {
		t.Fatal("resolve after invalidate served from cache")
	}
	if n := c.DomainCalls(); n != 2 {
		t.Fatalf("client calls = %d, want 2", n)
	}
}

func TestResolve_NotFoundIsNotCached(t *testing.T) {
	c := tenanttest.NewClient()
	r, _ := newResolver(t, c, tenant.Options{Retries: 3})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res := r.Resolve(ctx, "unknown.example.com")
		if res.Kind != tenant.Unresolved || !errors.Is(res.Err, tenant.ErrNotFound) {
			t.Fatalf("resolve %d = %+v, want Unresolved/ErrNotFound", i, res)
		}
	}
	if n := c.DomainCalls(); n != 2 {
		t.Fatalf("client calls = %d, want 2 (no retries, no caching)", n)
	}
	if s := r.Stats(); s.Misses != 2 || s.Hits != 0 {
		t.Fatalf("stats = %+v, want 2 misses", s)
	}
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}
}

func TestResolve_StoreFailureIsNotCached(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "c.example.com", meta.StatusActive))
	c.Fail(errors.New("connection refused"))
	r, _ := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	res := r.Resolve(ctx, "c.example.com")
	if res.Kind != tenant.Failed || !errors.Is(res.Err, tenant.ErrStoreUnavailable) {
		t.Fatalf("resolve = %+v, want Failed/ErrStoreUnavailable", res)
	}
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("len after failure = %d, want 0", n)
	}

	c.Fail(nil)
	if res := r.Resolve(ctx, "c.example.com"); res.Kind != tenant.Resolved || res.FromCache {
		t.Fatalf("recovery resolve = %+v", res)
	}
	if n := c.DomainCalls(); n != 2 {
		t.Fatalf("client calls = %d, want 2", n)
	}
}

func TestResolve_RetriesTransientFailures(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive))
	c.FailNext(2)
	r, _ := newResolver(t, c, tenant.Options{Retries: 2, RetryBackoff: time.Millisecond})

	res := r.Resolve(context.Background(), "a.example.com")
	if res.Kind != tenant.Resolved {
		t.Fatalf("resolve = %+v, want Resolved after retries", res)
	}
	if n := c.DomainCalls(); n != 3 {
		t.Fatalf("client calls = %d, want 3", n)
	}
}

func TestResolve_RetriesExhausted(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive))
	c.FailNext(5)
	r, _ := newResolver(t, c, tenant.Options{Retries: 1, RetryBackoff: time.Millisecond})

	res := r.Resolve(context.Background(), "a.example.com")
	if res.Kind != tenant.Failed {
		t.Fatalf("resolve = %+v, want Failed", res)
	}
	if n := c.DomainCalls(); n != 2 {
		t.Fatalf("client calls = %d, want 2", n)
	}
}

func TestResolve_TimeoutIsFailed(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "slow.example.com", meta.StatusActive))
	release := c.Block()
	defer release()
	r, _ := newResolver(t, c, tenant.Options{Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	res := r.Resolve(ctx, "slow.example.com")
	if res.Kind != tenant.Failed || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("resolve = %+v, want Failed with deadline", res)
	}
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("len after timeout = %d, want 0", n)
	}
}

// stuckClient never looks at its context; it returns only once released.
type stuckClient struct{ release chan struct{} }

func (c stuckClient) FetchByDomain(_ context.Context, domain string) (meta.Record, error) {
	<-c.release
	return site("t1", domain, meta.StatusActive), nil
}

func (c stuckClient) FetchByID(context.Context, string) (meta.Record, error) {
	<-c.release
	return meta.Record{}, tenant.ErrNotFound
}

func TestResolve_TimeoutBoundsClientIgnoringContext(t *testing.T) {
	c := stuckClient{release: make(chan struct{})}
	t.Cleanup(func() { close(c.release) })
	r, _ := newResolver(t, c, tenant.Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	res := r.Resolve(context.Background(), "a.example.com")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("resolve took %v with a 50ms timeout", elapsed)
	}
	if res.Kind != tenant.Failed {
		t.Fatalf("resolve = %+v, want Failed", res)
	}
	if !errors.Is(res.Err, tenant.ErrStoreUnavailable) || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want store unavailable wrapping deadline", res.Err)
	}
	if n := r.Len(context.Background()); n != 0 {
		t.Fatalf("len after timeout = %d, want 0", n)
	}
}

func TestResolve_CallerCancellation(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive))
	release := c.Block()
	defer release()
	r, _ := newResolver(t, c, tenant.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Resolve(ctx, "a.example.com")
	if res.Kind != tenant.Failed || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("resolve = %+v, want Failed/Canceled", res)
	}

	// The shared fetch finishes on its own and caches the whole record.
	release()
	waitFor(t, "shared fetch to cache", func() bool { return r.Len(context.Background()) == 1 })
	got := r.Resolve(context.Background(), "a.example.com")
	if !got.FromCache || got.Record.TenantID != "t1" {
		t.Fatalf("resolve after release = %+v", got)
	}
}

func TestResolve_CoalescesConcurrentMisses(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive))
	release := c.Block()
	defer release()
	r, _ := newResolver(t, c, tenant.Options{})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]tenant.Resolution, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), "a.example.com")
		}(i)
	}

	waitFor(t, "first fetch", func() bool { return c.DomainCalls() == 1 })
	time.Sleep(10 * time.Millisecond)
	release()
	wg.Wait()

	for i, res := range results {
		if res.Kind != tenant.Resolved || res.Record.TenantID != "t1" {
			t.Fatalf("caller %d got %+v", i, res)
		}
	}
	if n := c.DomainCalls(); n != 1 {
		t.Fatalf("client calls = %d, want 1", n)
	}
}

func TestResolve_NegativeCache(t *testing.T) {
	c := tenanttest.NewClient()
	r, clk := newResolver(t, c, tenant.Options{NegativeTTL: 30 * time.Second})
	ctx := context.Background()

	r.Resolve(ctx, "new.example.com")
	res := r.Resolve(ctx, "new.example.com")
	if res.Kind != tenant.Unresolved || !res.FromCache {
		t.Fatalf("second resolve = %+v, want negative hit", res)
	}
	if n := c.DomainCalls(); n != 1 {
		t.Fatalf("client calls = %d, want 1", n)
	}
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("negative entries leaked into store: len = %d", n)
	}

	clk.Add(31 * time.Second)
	r.Resolve(ctx, "new.example.com")
	if n := c.DomainCalls(); n != 2 {
		t.Fatalf("client calls after negative expiry = %d, want 2", n)
	}

	// A newly provisioned site shows up as soon as its domain is invalidated.
	c.Set(site("t9", "new.example.com", meta.StatusActive))
	r.InvalidateDomain(ctx, "new.example.com")
	if res := r.Resolve(ctx, "new.example.com"); res.Kind != tenant.Resolved {
		t.Fatalf("after provisioning = %+v, want Resolved", res)
	}
}

func TestResolve_LoopbackAliases(t *testing.T) {
	c := tenanttest.NewClient(
		site("t1", "a.example.com", meta.StatusActive),
		site("t2", "b.example.com", meta.StatusActive),
	)
	r, _ := newResolver(t, c, tenant.Options{LoopbackAliases: map[string]string{
		"localhost:3000": "a.example.com",
		"LOCALHOST":      "b.example.com",
	}})
	ctx := context.Background()

	cases := []struct{ host, key, tenant string }{
		{"localhost:3000", "localhost:3000", "t1"},
		{"localhost:4000", "localhost:4000", "t2"},
		{"localhost", "localhost", "t2"},
	}
	for _, tc := range cases {
		res := r.Resolve(ctx, tc.host)
		if res.Kind != tenant.Resolved || res.Record.TenantID != tc.tenant || res.Key != tc.key {
			t.Fatalf("Resolve(%q) = %+v, want %s under %s", tc.host, res, tc.tenant, tc.key)
		}
	}
}

func TestResolve_EmptyHost(t *testing.T) {
	c := tenanttest.NewClient()
	r, _ := newResolver(t, c, tenant.Options{})
	if res := r.Resolve(context.Background(), "  "); res.Kind != tenant.Unresolved {
		t.Fatalf("empty host = %+v", res)
	}
	if n := c.DomainCalls(); n != 0 {
		t.Fatalf("client called for empty host")
	}
}

func TestInvalidateAll_Idempotent(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive))
	r, _ := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	r.InvalidateAll(ctx)
	r.InvalidateAll(ctx)
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}

	r.Resolve(ctx, "a.example.com")
	r.InvalidateAll(ctx)
	r.InvalidateAll(ctx)
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("len after flush = %d, want 0", n)
	}
}

func TestInvalidateTenant(t *testing.T) {
	c := tenanttest.NewClient(
		site("t1", "a.example.com", meta.StatusActive, "www.a.example.com"),
		site("t2", "b.example.com", meta.StatusActive),
	)
	r, _ := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	for _, h := range []string{"a.example.com", "www.a.example.com", "b.example.com"} {
		r.Resolve(ctx, h)
	}
	if n := r.InvalidateTenant(ctx, "t1"); n != 2 {
		t.Fatalf("InvalidateTenant removed %d, want 2", n)
	}
	if n := r.Len(ctx); n != 1 {
		t.Fatalf("len = %d, want 1", n)
	}
	if n := r.InvalidateTenant(ctx, "nobody"); n != 0 {
		t.Fatalf("InvalidateTenant(nobody) = %d", n)
	}
}

func TestRefresh(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive, "www.a.example.com"))
	r, _ := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	r.Resolve(ctx, "a.example.com")
	c.Set(site("t1", "a.example.com", meta.StatusMaintenance, "www.a.example.com"))

	if err := r.Refresh(ctx, "t1"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n := r.Len(ctx); n != 2 {
		t.Fatalf("len after refresh = %d, want 2", n)
	}
	res := r.Resolve(ctx, "www.a.example.com")
	if !res.FromCache || res.Record.Status != meta.StatusMaintenance {
		t.Fatalf("refreshed entry = %+v", res)
	}
	calls := c.DomainCalls()

	c.Fail(errors.New("down"))
	if err := r.Refresh(ctx, "t1"); !errors.Is(err, tenant.ErrStoreUnavailable) {
		t.Fatalf("Refresh during outage = %v", err)
	}
	if n := r.Len(ctx); n != 2 {
		t.Fatalf("outage touched cache: len = %d", n)
	}
	c.Fail(nil)

	c.Set(site("t1", "a.example.com", meta.StatusArchived))
	if err := r.Refresh(ctx, "t1"); err != nil {
		t.Fatalf("Refresh archived: %v", err)
	}
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("archived tenant still cached: len = %d", n)
	}

	r.Resolve(ctx, "a.example.com")
	c.Delete("t1")
	if err := r.Refresh(ctx, "t1"); !errors.Is(err, tenant.ErrNotFound) {
		t.Fatalf("Refresh deleted = %v, want ErrNotFound", err)
	}
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("deleted tenant still cached: len = %d", n)
	}
	if c.DomainCalls() != calls+1 {
		t.Fatalf("refresh should use FetchByID, domain calls = %d", c.DomainCalls())
	}
}

func TestWarm(t *testing.T) {
	c := tenanttest.NewClient(
		site("t1", "a.example.com", meta.StatusActive, "www.a.example.com"),
		site("t2", "b.example.com", meta.StatusActive),
		site("t3", "c.example.com", meta.StatusDraft),
	)
	r, _ := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	n, err := r.Warm(ctx)
	if err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if n != 3 || r.Len(ctx) != 3 {
		t.Fatalf("warmed %d entries, len %d; want 3", n, r.Len(ctx))
	}
	if res := r.Resolve(ctx, "www.a.example.com"); !res.FromCache {
		t.Fatalf("warmed entry not served from cache: %+v", res)
	}
	if c.DomainCalls() != 0 {
		t.Fatalf("client called after warm")
	}
}

func TestResolve_RecordIsolation(t *testing.T) {
	c := tenanttest.NewClient(site("t1", "a.example.com", meta.StatusActive, "www.a.example.com"))
	r, _ := newResolver(t, c, tenant.Options{})
	ctx := context.Background()

	res := r.Resolve(ctx, "a.example.com")
	res.Record.AlternateDomains[0] = "mutated.example.com"

	again := r.Resolve(ctx, "a.example.com")
	if again.Record.AlternateDomains[0] != "www.a.example.com" {
		t.Fatalf("cached record mutated through caller copy: %v", again.Record.AlternateDomains)
	}
}
