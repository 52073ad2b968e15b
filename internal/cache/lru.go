// internal/cache/lru.go
//
// Bounded TTL cache with least-recently-used eviction.
//
// Context
// -------
// The tenant resolver keeps one LRU of domain → site record and, when a
// negative TTL is configured, a second LRU of unknown domains.  Both need
// the same three properties:
//
//   - entries older than TTL are never returned (checked lazily on Get),
//   - Add at capacity evicts exactly one entry, the least recently used,
//   - every method is safe for concurrent use.
//
// Expiry is measured from insertion.  A hit refreshes recency for the LRU
// list but never extends the entry's lifetime, so staleness stays bounded
// by TTL no matter how hot a key is.
//
// Notes
// -----
//   - Time comes from an injected clock.Clock so tests can advance it.
//   - Sweep lets a background loop drop expired entries early; Get still
//     performs its own check.
//   - Oxford commas, two spaces after periods.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// EvictReason tells an OnEvict callback why an entry left the cache.
type EvictReason int

const (
	EvictCapacity EvictReason = iota // LRU pressure on Add
	EvictExpired                     // TTL elapsed (lazy Get or Sweep)
)

func (r EvictReason) String() string {
	if r == EvictExpired {
		return "expired"
	}
	return "capacity"
}

// Options tune an LRU.  Zero TTL means entries never expire.
type Options[K comparable, V any] struct {
	Capacity int
	TTL      time.Duration
	Clock    clock.Clock
	OnEvict  func(key K, val V, reason EvictReason)
}

// LRU is a generic least-recently-used cache with insertion-time expiry.
type LRU[K comparable, V any] struct {
	mu      sync.Mutex
	cap     int
	ttl     time.Duration
	clk     clock.Clock
	onEvict func(K, V, EvictReason)
	ll      *list.List
	dict    map[K]*list.Element
}

type entry[K comparable, V any] struct {
	key        K
	val        V
	insertedAt time.Time
}

// New returns an LRU.  Panics on capacity < 1.
func New[K comparable, V any](opts Options[K, V]) *LRU[K, V] {
	if opts.Capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &LRU[K, V]{
		cap:     opts.Capacity,
		ttl:     opts.TTL,
		clk:     clk,
		onEvict: opts.OnEvict,
		ll:      list.New(),
		dict:    make(map[K]*list.Element, opts.Capacity),
	}
}

// Get returns the value for key when present and not expired, and marks it
// most recently used.  An expired entry is removed.
func (c *LRU[K, V]) Get(key K) (val V, ok bool) {
	c.mu.Lock()
	ele, hit := c.dict[key]
	if !hit {
		c.mu.Unlock()
		return val, false
	}
	ent := ele.Value.(*entry[K, V])
	if c.expired(ent, c.clk.Now()) {
		c.removeElement(ele)
		c.mu.Unlock()
		c.evicted(ent, EvictExpired)
		return val, false
	}
	c.ll.MoveToFront(ele)
	val = ent.val
	c.mu.Unlock()
	return val, true
}

// Add inserts or overwrites key with insertedAt = now.  A new key at
// capacity first evicts the least recently used entry.
func (c *LRU[K, V]) Add(key K, val V) {
	now := c.clk.Now()

	c.mu.Lock()
	if ele, hit := c.dict[key]; hit {
		ent := ele.Value.(*entry[K, V])
		ent.val = val
		ent.insertedAt = now
		c.ll.MoveToFront(ele)
		c.mu.Unlock()
		return
	}

	var victim *entry[K, V]
	if c.ll.Len() >= c.cap {
		last := c.ll.Back()
		victim = last.Value.(*entry[K, V])
		c.removeElement(last)
	}
	c.dict[key] = c.ll.PushFront(&entry[K, V]{key: key, val: val, insertedAt: now})
	c.mu.Unlock()

	if victim != nil {
		c.evicted(victim, EvictCapacity)
	}
}

// Remove drops key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ele, hit := c.dict[key]
	if !hit {
		return false
	}
	c.removeElement(ele)
	return true
}

// RemoveFunc drops every entry for which match returns true and returns the
// number removed.  match runs under the cache lock and must not call back
// into the cache.
func (c *LRU[K, V]) RemoveFunc(match func(key K, val V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for ele := c.ll.Front(); ele != nil; {
		next := ele.Next()
		ent := ele.Value.(*entry[K, V])
		if match(ent.key, ent.val) {
			c.removeElement(ele)
			n++
		}
		ele = next
	}
	return n
}

// Purge removes every entry.  Safe on an empty cache.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	c.ll.Init()
	c.dict = make(map[K]*list.Element, c.cap)
	c.mu.Unlock()
}

// Sweep removes all expired entries and returns how many it dropped.
func (c *LRU[K, V]) Sweep() int {
	if c.ttl <= 0 {
		return 0
	}
	now := c.clk.Now()
	var gone []*entry[K, V]

	c.mu.Lock()
	// Oldest entries sit toward the back only if nothing was re-Added, so
	// walk the whole list rather than stopping at the first live entry.
	for ele := c.ll.Back(); ele != nil; {
		prev := ele.Prev()
		ent := ele.Value.(*entry[K, V])
		if c.expired(ent, now) {
			c.removeElement(ele)
			gone = append(gone, ent)
		}
		ele = prev
	}
	c.mu.Unlock()

	for _, ent := range gone {
		c.evicted(ent, EvictExpired)
	}
	return len(gone)
}

// Len reports current size, including expired entries not yet swept.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LRU[K, V]) expired(ent *entry[K, V], now time.Time) bool {
	return c.ttl > 0 && now.Sub(ent.insertedAt) > c.ttl
}

func (c *LRU[K, V]) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.dict, ele.Value.(*entry[K, V]).key)
}

func (c *LRU[K, V]) evicted(ent *entry[K, V], reason EvictReason) {
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.val, reason)
	}
}
