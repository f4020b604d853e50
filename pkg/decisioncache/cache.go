// Package decisioncache stores authorization decisions keyed by credential
// fingerprint, bounded by a TTL and an optional LRU capacity. It also owns
// the per-fingerprint single-flight slots that collapse concurrent cold
// lookups into one verifier call.
package decisioncache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gatekeep/gatekeep/pkg/authware"
)

// Config tunes the cache.
type Config struct {
	// MaxEntries bounds the number of live entries; the least recently used
	// entry is evicted when the bound is exceeded. Zero means unbounded.
	MaxEntries int
}

type entry struct {
	decision  authware.Decision
	expiresAt time.Time
	elem      *list.Element // value is the fingerprint string
}

// Cache is a TTL decision store safe for concurrent use. Expired entries are
// dropped lazily on lookup; Sweep (or a background sweeper) reclaims the rest.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	lru        *list.List // front = most recently used
	maxEntries int

	flight singleflight.Group

	// now is swappable for TTL tests.
	now func() time.Time
}

var _ authware.DecisionCache = (*Cache)(nil)

// New creates an empty cache.
func New(cfg Config) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		lru:        list.New(),
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}
}

// Lookup returns the live decision for a fingerprint. Expired entries are
// removed on the way out and reported as a miss.
func (c *Cache) Lookup(fingerprint string) (authware.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return authware.Decision{}, false
	}
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(fingerprint, e)
		return authware.Decision{}, false
	}
	c.lru.MoveToFront(e.elem)
	return e.decision, true
}

// Store records a decision, overwriting any previous entry for the
// fingerprint (last writer wins) and restarting its TTL window.
func (c *Cache) Store(fingerprint string, d authware.Decision, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if e, ok := c.entries[fingerprint]; ok {
		e.decision = d
		e.expiresAt = expiresAt
		c.lru.MoveToFront(e.elem)
		return
	}

	e := &entry{
		decision:  d,
		expiresAt: expiresAt,
		elem:      c.lru.PushFront(fingerprint),
	}
	c.entries[fingerprint] = e

	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		back := c.lru.Back()
		if back == nil {
			break
		}
		fp := back.Value.(string)
		c.removeLocked(fp, c.entries[fp])
	}
}

// Invalidate removes the entry immediately. Idempotent; used for logout and
// credential revocation.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[fingerprint]; ok {
		c.removeLocked(fingerprint, e)
	}
}

// Len reports the number of entries, including not-yet-swept expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Flight runs fn in the single-flight slot for the fingerprint. Concurrent
// callers with the same fingerprint share one execution and one result. If
// ctx is cancelled while waiting, the caller detaches; the flight keeps
// running for the remaining waiters.
func (c *Cache) Flight(ctx context.Context, fingerprint string, fn func() (authware.Decision, error)) (authware.Decision, error) {
	ch := c.flight.DoChan(fingerprint, func() (any, error) {
		return fn()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return authware.Decision{}, res.Err
		}
		return res.Val.(authware.Decision), nil
	case <-ctx.Done():
		return authware.Decision{}, ctx.Err()
	}
}

// Sweep removes every entry that expired at or before now.
func (c *Cache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for fp, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.removeLocked(fp, e)
		}
	}
}

// StartSweeper launches a goroutine that sweeps at the given interval until
// ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				c.Sweep(now)
			}
		}
	}()
}

// removeLocked deletes an entry. Caller holds c.mu.
func (c *Cache) removeLocked(fingerprint string, e *entry) {
	c.lru.Remove(e.elem)
	delete(c.entries, fingerprint)
}
