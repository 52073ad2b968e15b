// Package tenanttest provides an in-memory tenant.Client for tests in this
// module.  It counts calls, can be told to fail, and can block fetches
// until released so tests can line up concurrent misses.
package tenanttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yanizio/hostgate/internal/tenant"
	"github.com/yanizio/hostgate/internal/tenant/meta"
)

// Client implements tenant.Client and tenant.Lister over a map of records.
type Client struct {
	mu       sync.Mutex
	sites    map[string]meta.Record // tenant id → record
	err      error
	failNext int
	block    chan struct{}

	domainCalls atomic.Int64
	idCalls     atomic.Int64
}

// NewClient returns a client seeded with recs.
func NewClient(recs ...meta.Record) *Client {
	c := &Client{sites: make(map[string]meta.Record)}
	for _, r := range recs {
		c.sites[r.TenantID] = r.Clone()
	}
	return c
}

// Set inserts or replaces a record.
func (c *Client) Set(rec meta.Record) {
	c.mu.Lock()
	c.sites[rec.TenantID] = rec.Clone()
	c.mu.Unlock()
}

// Delete removes a record.
func (c *Client) Delete(tenantID string) {
	c.mu.Lock()
	delete(c.sites, tenantID)
	c.mu.Unlock()
}

// Fail makes every fetch return err until Fail(nil).  A non-nil err that
// is not already ErrStoreUnavailable is wrapped in it.
func (c *Client) Fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// FailNext makes the next n fetches return ErrStoreUnavailable.
func (c *Client) FailNext(n int) {
	c.mu.Lock()
	c.failNext = n
	c.mu.Unlock()
}

// Block holds every FetchByDomain until the returned release func runs or
// the fetch context ends.
func (c *Client) Block() (release func()) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.block = ch
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.block = nil
			c.mu.Unlock()
			close(ch)
		})
	}
}

// DomainCalls is the number of FetchByDomain calls so far.
func (c *Client) DomainCalls() int { return int(c.domainCalls.Load()) }

// IDCalls is the number of FetchByID calls so far.
func (c *Client) IDCalls() int { return int(c.idCalls.Load()) }

func (c *Client) FetchByDomain(ctx context.Context, domain string) (meta.Record, error) {
	c.domainCalls.Add(1)
	if err := c.wait(ctx); err != nil {
		return meta.Record{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure(); err != nil {
		return meta.Record{}, err
	}

	var hits []meta.Record
	for _, r := range c.sites {
		for _, d := range r.Domains() {
			if strings.EqualFold(d, domain) {
				hits = append(hits, r)
				break
			}
		}
	}
	if len(hits) == 0 {
		return meta.Record{}, tenant.ErrNotFound
	}
	sort.Slice(hits, func(i, j int) bool {
		ai, aj := hits[i].Status == meta.StatusArchived, hits[j].Status == meta.StatusArchived
		if ai != aj {
			return !ai
		}
		return hits[i].TenantID < hits[j].TenantID
	})
	return hits[0].Clone(), nil
}

func (c *Client) FetchByID(ctx context.Context, tenantID string) (meta.Record, error) {
	c.idCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return meta.Record{}, fmt.Errorf("%w: %w", tenant.ErrStoreUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure(); err != nil {
		return meta.Record{}, err
	}
	r, ok := c.sites[tenantID]
	if !ok {
		return meta.Record{}, tenant.ErrNotFound
	}
	return r.Clone(), nil
}

func (c *Client) ListActive(ctx context.Context) ([]meta.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure(); err != nil {
		return nil, err
	}
	var out []meta.Record
	for _, r := range c.sites {
		if r.Status == meta.StatusActive {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	ch := c.block
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", tenant.ErrStoreUnavailable, ctx.Err())
	}
}

// failure must be called with mu held.
func (c *Client) failure() error {
	if c.failNext > 0 {
		c.failNext--
		return fmt.Errorf("%w: injected", tenant.ErrStoreUnavailable)
	}
	if c.err == nil {
		return nil
	}
	if errors.Is(c.err, tenant.ErrStoreUnavailable) {
		return c.err
	}
	return fmt.Errorf("%w: %w", tenant.ErrStoreUnavailable, c.err)
}
