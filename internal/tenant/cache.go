// internal/tenant/cache.go
//
// Cache store contract and the in-process implementation.
//
// Context
// -------
// Store is the seam between the resolver and wherever cached records live.
// MemoryStore keeps them in a bounded LRU inside this process; RedisStore
// (redis_store.go) keeps them in a shared Redis so every instance sees the
// same entries.  Both honour the same contract:
//
//   - Get never returns an entry older than the TTL,
//   - Put is atomic: the full record is cached or nothing is,
//   - Invalidate* never fail and are no-ops when nothing matches,
//   - no method panics on a backend fault; a broken backend reads as a miss.
//
// Methods take a context because the distributed variant blocks on the
// network.  MemoryStore ignores it.
//
// Notes
// -----
//   - Eviction policy is least-recently-used (see internal/cache).
//   - Records are cloned on the way in and out so callers never share the
//     cached slices or maps.
//   - Oxford commas, two spaces after periods.
package tenant

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/yanizio/hostgate/internal/cache"
	"github.com/yanizio/hostgate/internal/metrics"
	"github.com/yanizio/hostgate/internal/tenant/meta"
)

// Static defaults.  Override via config.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultMaxEntries    = 1000
	DefaultSweepInterval = time.Minute
)

// Store is a domain-keyed cache of site records.
type Store interface {
	Get(ctx context.Context, key string) (meta.Record, bool)
	Put(ctx context.Context, key string, rec meta.Record)
	Invalidate(ctx context.Context, key string)
	InvalidateTenant(ctx context.Context, tenantID string) int
	InvalidateAll(ctx context.Context)
	Len(ctx context.Context) int
}

// MemoryStore is a per-process Store.  Zero value is invalid; use
// NewMemoryStore.
type MemoryStore struct {
	lru *cache.LRU[string, meta.Record]
}

// NewMemoryStore returns a store holding at most maxEntries records for at
// most ttl each.  A nil clock uses wall time.
func NewMemoryStore(ttl time.Duration, maxEntries int, clk clock.Clock) *MemoryStore {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	s := &MemoryStore{}
	s.lru = cache.New(cache.Options[string, meta.Record]{
		Capacity: maxEntries,
		TTL:      ttl,
		Clock:    clk,
		OnEvict: func(_ string, _ meta.Record, reason cache.EvictReason) {
			metrics.TenantEvictTotal.WithLabelValues(reason.String()).Inc()
		},
	})
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (meta.Record, bool) {
	rec, ok := s.lru.Get(key)
	if !ok {
		s.gauge()
		return meta.Record{}, false
	}
	return rec.Clone(), true
}

func (s *MemoryStore) Put(_ context.Context, key string, rec meta.Record) {
	s.lru.Add(key, rec.Clone())
	s.gauge()
}

func (s *MemoryStore) Invalidate(_ context.Context, key string) {
	s.lru.Remove(key)
	s.gauge()
}

func (s *MemoryStore) InvalidateTenant(_ context.Context, tenantID string) int {
	n := s.lru.RemoveFunc(func(_ string, rec meta.Record) bool {
		return rec.TenantID == tenantID
	})
	s.gauge()
	return n
}

func (s *MemoryStore) InvalidateAll(_ context.Context) {
	s.lru.Purge()
	s.gauge()
}

func (s *MemoryStore) Len(_ context.Context) int { return s.lru.Len() }

// Sweep drops expired entries.  Called by the sweeper loop.
func (s *MemoryStore) Sweep(_ context.Context) int {
	n := s.lru.Sweep()
	s.gauge()
	return n
}

func (s *MemoryStore) gauge() { metrics.CachedTenants.Set(float64(s.lru.Len())) }
