// internal/tenant/resolver.go
//
// Host → site record resolution.
//
// Context
// -------
// Resolver is the single entry point the request pipeline calls for every
// inbound request.  It owns the read-through policy in front of the
// configuration store:
//
//  1. Normalize the host (see host.go).
//  2. Store.Get; a hit returns immediately.
//  3. On a miss, fetch from the Client under a timeout, retrying only
//     ErrStoreUnavailable, and only when retries are configured.
//  4. Success is cached; ErrNotFound is cached only in the optional
//     negative cache; failures are never cached.
//
// Concurrent misses for one key share a single fetch (singleflight).  The
// shared fetch runs detached from any one caller's cancellation but under
// the resolver timeout.  Each caller waits on its own context, also capped
// by the resolver timeout, so a client disconnect fails that caller alone,
// a stuck client cannot hang the request, and no partial entry is left
// behind.
//
// Resolve never panics and never returns a bare error: the outcome is
// always a Resolution whose Kind the status gate interprets.
//
// Notes
// -----
//   - No ordering is promised between a Put and a concurrent Invalidate of
//     the same key; last writer wins.
//   - Oxford commas, two spaces after periods.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/hostgate/internal/cache"
	"github.com/yanizio/hostgate/internal/metrics"
	"github.com/yanizio/hostgate/internal/tenant/meta"
)

const (
	DefaultTimeout      = 2 * time.Second
	DefaultRetryBackoff = 50 * time.Millisecond
)

// Kind classifies a Resolution.
type Kind int

const (
	Resolved   Kind = iota + 1 // record found (cache or store)
	Unresolved                 // no site answers to the host
	Failed                     // store unreachable or timed out
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Unresolved:
		return "unresolved"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Kind      Kind
	Key       string      // normalized host
	Record    meta.Record // valid when Kind == Resolved
	FromCache bool
	Err       error // ErrNotFound or ErrStoreUnavailable chain; nil when Resolved
}

// Stats is a point-in-time read of the resolver counters.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// Options tune a Resolver.  Zero values pick the defaults above.
type Options struct {
	Timeout            time.Duration
	Retries            int
	RetryBackoff       time.Duration
	NegativeTTL        time.Duration // > 0 enables the negative cache
	NegativeMaxEntries int
	LoopbackAliases    map[string]string // loopback key → store lookup domain
	Clock              clock.Clock
	Logger             *zap.Logger
}

// Resolver implements cache-first tenant lookup.
type Resolver struct {
	client       Client
	store        Store
	negative     *cache.LRU[string, struct{}]
	aliases      map[string]string
	timeout      time.Duration
	retries      int
	retryBackoff time.Duration
	sfg          singleflight.Group
	hits, misses atomic.Uint64
	log          *zap.Logger
	tracer       trace.Tracer
}

// NewResolver wires a client and a store.
func NewResolver(client Client, store Store, opts Options) *Resolver {
	r := &Resolver{
		client:       client,
		store:        store,
		timeout:      opts.Timeout,
		retries:      opts.Retries,
		retryBackoff: opts.RetryBackoff,
		log:          opts.Logger,
		tracer:       otel.Tracer("github.com/yanizio/hostgate/internal/tenant"),
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.retryBackoff <= 0 {
		r.retryBackoff = DefaultRetryBackoff
	}
	if r.retries < 0 {
		r.retries = 0
	}
	if r.log == nil {
		r.log = zap.L()
	}
	r.log = r.log.Named("tenant.resolver")

	if opts.NegativeTTL > 0 {
		n := opts.NegativeMaxEntries
		if n < 1 {
			n = DefaultMaxEntries
		}
		r.negative = cache.New(cache.Options[string, struct{}]{
			Capacity: n,
			TTL:      opts.NegativeTTL,
			Clock:    opts.Clock,
		})
	}

	r.aliases = make(map[string]string, len(opts.LoopbackAliases))
	for from, to := range opts.LoopbackAliases {
		if k := NormalizeHost(from); k != "" {
			r.aliases[k] = strings.ToLower(strings.TrimSpace(to))
		}
	}
	return r
}

// Resolve maps a Host header value to a Resolution.
func (r *Resolver) Resolve(ctx context.Context, host string) (res Resolution) {
	start := time.Now()
	key := NormalizeHost(host)

	ctx, span := r.tracer.Start(ctx, "tenant.Resolve",
		trace.WithAttributes(attribute.String("tenant.host", key)))
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic during resolve", zap.String("host", key), zap.Any("panic", p))
			res = Resolution{Kind: Failed, Key: key, Err: fmt.Errorf("%w: panic: %v", ErrStoreUnavailable, p)}
		}
		span.SetAttributes(
			attribute.String("tenant.outcome", res.Kind.String()),
			attribute.Bool("tenant.cache_hit", res.FromCache))
		if res.Kind == Failed {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "tenant resolution failed")
		}
		span.End()
		metrics.TenantResolveSeconds.Observe(time.Since(start).Seconds())
	}()

	if key == "" {
		return Resolution{Kind: Unresolved, Err: ErrNotFound}
	}

	if rec, ok := r.store.Get(ctx, key); ok {
		r.hits.Add(1)
		metrics.TenantCacheHitsTotal.Inc()
		return Resolution{Kind: Resolved, Key: key, Record: rec, FromCache: true}
	}
	r.misses.Add(1)
	metrics.TenantCacheMissesTotal.Inc()

	if r.negative != nil {
		if _, ok := r.negative.Get(key); ok {
			return Resolution{Kind: Unresolved, Key: key, FromCache: true, Err: ErrNotFound}
		}
	}

	rec, err := r.load(ctx, key)
	switch {
	case err == nil:
		return Resolution{Kind: Resolved, Key: key, Record: rec}
	case errors.Is(err, ErrNotFound):
		return Resolution{Kind: Unresolved, Key: key, Err: err}
	default:
		r.log.Error("tenant store unavailable", zap.String("host", key), zap.Error(err))
		return Resolution{Kind: Failed, Key: key, Err: err}
	}
}

// load runs one shared fetch per key and waits for it on ctx.
func (r *Resolver) load(ctx context.Context, key string) (meta.Record, error) {
	ch := r.sfg.DoChan(key, func() (v any, err error) {
		// DoChan re-panics on a fresh goroutine, out of reach of Resolve.
		defer func() {
			if p := recover(); p != nil {
				v, err = meta.Record{}, fmt.Errorf("%w: panic: %v", ErrStoreUnavailable, p)
			}
		}()

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		// Double-check after singleflight barrier.
		if rec, ok := r.store.Get(fctx, key); ok {
			return rec, nil
		}

		rec, err := r.fetch(fctx, key)
		switch {
		case err == nil:
			r.store.Put(fctx, key, rec)
		case errors.Is(err, ErrNotFound) && r.negative != nil:
			r.negative.Add(key, struct{}{})
		}
		return rec, err
	})

	// A client that ignores its context must not hold the caller past the
	// resolver timeout.
	wctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	select {
	case <-wctx.Done():
		return meta.Record{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, wctx.Err())
	case out := <-ch:
		if out.Err != nil {
			return meta.Record{}, out.Err
		}
		return out.Val.(meta.Record).Clone(), nil
	}
}

// fetch asks the client, retrying transient failures.
func (r *Resolver) fetch(ctx context.Context, key string) (meta.Record, error) {
	domain := r.lookupDomain(key)

	ctx, span := r.tracer.Start(ctx, "tenant.FetchByDomain",
		trace.WithAttributes(attribute.String("tenant.domain", domain)))
	defer span.End()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.retryBackoff
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.retries)), ctx)

	attempt := 0
	rec, err := backoff.RetryWithData[meta.Record](func() (meta.Record, error) {
		attempt++
		rec, err := r.client.FetchByDomain(ctx, domain)
		if errors.Is(err, ErrNotFound) {
			return rec, backoff.Permanent(err)
		}
		return rec, err
	}, b)
	span.SetAttributes(attribute.Int("tenant.attempts", attempt))

	switch {
	case err == nil:
		metrics.TenantLoadTotal.Inc()
		return rec, nil
	case errors.Is(err, ErrNotFound):
		metrics.TenantLoadErrorsTotal.WithLabelValues("not_found").Inc()
		return meta.Record{}, err
	default:
		metrics.TenantLoadErrorsTotal.WithLabelValues("unavailable").Inc()
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		span.RecordError(err)
		return meta.Record{}, err
	}
}

// lookupDomain applies loopback aliases.  An exact key match wins over a
// port-less match so localhost:3000 and localhost can differ.
func (r *Resolver) lookupDomain(key string) string {
	if to, ok := r.aliases[key]; ok {
		return to
	}
	if host := stripPort(key); host != key && isLoopback(host) {
		if to, ok := r.aliases[host]; ok {
			return to
		}
	}
	return key
}

// InvalidateDomain drops the cached entry for domain, normalized exactly as
// Resolve normalizes a host.
func (r *Resolver) InvalidateDomain(ctx context.Context, domain string) {
	key := NormalizeHost(domain)
	if key == "" {
		return
	}
	r.store.Invalidate(ctx, key)
	if r.negative != nil {
		r.negative.Remove(key)
	}
	r.sfg.Forget(key)
	metrics.TenantInvalidateTotal.WithLabelValues("domain").Inc()
	r.log.Debug("domain invalidated", zap.String("host", key))
}

// InvalidateTenant drops every cached domain that maps to tenantID and
// returns the count.
func (r *Resolver) InvalidateTenant(ctx context.Context, tenantID string) int {
	n := r.store.InvalidateTenant(ctx, tenantID)
	metrics.TenantInvalidateTotal.WithLabelValues("tenant").Inc()
	r.log.Debug("tenant invalidated", zap.String("tenant_id", tenantID), zap.Int("entries", n))
	return n
}

// InvalidateAll clears the cache and the negative cache.  Idempotent.
func (r *Resolver) InvalidateAll(ctx context.Context) {
	r.store.InvalidateAll(ctx)
	if r.negative != nil {
		r.negative.Purge()
	}
	metrics.TenantInvalidateTotal.WithLabelValues("all").Inc()
	r.log.Info("tenant cache flushed")
}

// Refresh re-reads one tenant by id and replaces its cache entries.  The
// old entries are dropped first; a missing or archived tenant is left
// uncached.  Returns ErrNotFound when the id no longer exists and leaves the
// cache untouched on ErrStoreUnavailable.
func (r *Resolver) Refresh(ctx context.Context, tenantID string) error {
	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rec, err := r.client.FetchByID(fctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		r.InvalidateTenant(ctx, tenantID)
		return err
	}
	if err != nil {
		if !errors.Is(err, ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return err
	}

	r.InvalidateTenant(ctx, tenantID)
	if rec.Status == meta.StatusArchived {
		return nil
	}
	for _, d := range rec.Domains() {
		if key := NormalizeHost(d); key != "" {
			r.store.Put(ctx, key, rec)
			if r.negative != nil {
				r.negative.Remove(key)
			}
		}
	}
	return nil
}

// Warm preloads every active site when the client can list them.  Returns
// the number of cache entries written.
func (r *Resolver) Warm(ctx context.Context) (int, error) {
	lister, ok := r.client.(Lister)
	if !ok {
		return 0, nil
	}
	recs, err := lister.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		for _, d := range rec.Domains() {
			if key := NormalizeHost(d); key != "" {
				r.store.Put(ctx, key, rec)
				n++
			}
		}
	}
	r.log.Info("tenant cache warmed", zap.Int("tenants", len(recs)), zap.Int("entries", n))
	return n, nil
}

// Len is the current cache entry count.
func (r *Resolver) Len(ctx context.Context) int { return r.store.Len(ctx) }

// Stats returns hit and miss counters since construction.
func (r *Resolver) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}
