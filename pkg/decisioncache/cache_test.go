package decisioncache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep/pkg/authware"
)

// fakeClock drives the cache's notion of time in TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(cfg Config) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(cfg)
	c.now = clock.Now
	return c, clock
}

func allowed(subject string) authware.Decision {
	return authware.Allow(&authware.Identity{Subject: subject})
}

func TestCache_TTL(t *testing.T) {
	c, clock := newTestCache(Config{})

	c.Store("fp", allowed("u1"), time.Second)

	clock.Advance(500 * time.Millisecond)
	d, ok := c.Lookup("fp")
	require.True(t, ok, "entry must be live at t=0.5s")
	assert.Equal(t, "u1", d.Identity.Subject)

	clock.Advance(time.Second)
	_, ok = c.Lookup("fp")
	assert.False(t, ok, "entry must be expired at t=1.5s")
	assert.Zero(t, c.Len(), "expired entry is dropped on lookup")
}

func TestCache_StoreOverwrites(t *testing.T) {
	c, clock := newTestCache(Config{})

	c.Store("fp", authware.Deny("old"), time.Second)
	clock.Advance(900 * time.Millisecond)
	c.Store("fp", allowed("u1"), time.Second)

	// The rewrite restarted the TTL window: still live past the first
	// entry's deadline.
	clock.Advance(500 * time.Millisecond)
	d, ok := c.Lookup("fp")
	require.True(t, ok)
	assert.True(t, d.Allowed, "last writer wins")
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(Config{})

	c.Store("fp", allowed("u1"), time.Minute)
	c.Invalidate("fp")
	_, ok := c.Lookup("fp")
	assert.False(t, ok)

	// Idempotent.
	c.Invalidate("fp")
	c.Invalidate("other")
}

func TestCache_LRUEviction(t *testing.T) {
	c, _ := newTestCache(Config{MaxEntries: 2})

	c.Store("a", allowed("ua"), time.Minute)
	c.Store("b", allowed("ub"), time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Lookup("a")
	require.True(t, ok)

	c.Store("c", allowed("uc"), time.Minute)

	_, ok = c.Lookup("b")
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = c.Lookup("a")
	assert.True(t, ok)
	_, ok = c.Lookup("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(Config{})

	c.Store("short", allowed("u1"), time.Second)
	c.Store("long", allowed("u2"), time.Minute)

	clock.Advance(2 * time.Second)
	c.Sweep(clock.Now())

	assert.Equal(t, 1, c.Len())
	_, ok := c.Lookup("long")
	assert.True(t, ok)
}

func TestCache_FlightCollapsesConcurrentCallers(t *testing.T) {
	c, _ := newTestCache(Config{})

	var executions atomic.Int32
	release := make(chan struct{})

	const n = 10
	var wg sync.WaitGroup
	results := make([]authware.Decision, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.Flight(context.Background(), "fp", func() (authware.Decision, error) {
				executions.Add(1)
				<-release
				return allowed("u1"), nil
			})
			require.NoError(t, err)
			results[i] = d
		}()
	}

	// Let all callers pile onto the slot before releasing the flight.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), executions.Load(), "one execution per key")
	for i, d := range results {
		assert.Equal(t, "u1", d.Identity.Subject, "caller %d", i)
	}
}

func TestCache_FlightWaiterDetachesOnCancel(t *testing.T) {
	c, _ := newTestCache(Config{})

	started := make(chan struct{})
	release := make(chan struct{})

	leaderDone := make(chan authware.Decision, 1)
	go func() {
		d, err := c.Flight(context.Background(), "fp", func() (authware.Decision, error) {
			close(started)
			<-release
			return allowed("u1"), nil
		})
		require.NoError(t, err)
		leaderDone <- d
	}()

	<-started

	// A waiter with a cancelled context must return promptly without
	// aborting the in-flight computation.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := c.Flight(ctx, "fp", func() (authware.Decision, error) {
		t.Error("waiter must join the existing flight, not start a new one")
		return authware.Decision{}, nil
	})
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	select {
	case d := <-leaderDone:
		assert.Equal(t, "u1", d.Identity.Subject, "flight completes for the remaining waiter")
	case <-time.After(time.Second):
		t.Fatal("leader never completed")
	}
}
