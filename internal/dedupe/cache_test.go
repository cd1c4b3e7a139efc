// ABOUTME: Tests for the dedupe cache
// ABOUTME: Window expiry, size bound, sweeping, and concurrent observers

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func TestCache_ObserveWithinWindow(t *testing.T) {
	clock := newClock()
	c := New(time.Second, 10, WithClock(clock.Now))
	defer c.Close()

	assert.False(t, c.Observe("login_failed"))
	assert.True(t, c.Observe("login_failed"))
	assert.True(t, c.Seen("login_failed"))
	assert.False(t, c.Seen("other"))

	clock.Advance(time.Second)
	assert.False(t, c.Seen("login_failed"))
	assert.False(t, c.Observe("login_failed"), "expired key counts as new")
}

func TestCache_RepeatDoesNotExtendWindow(t *testing.T) {
	clock := newClock()
	c := New(time.Second, 10, WithClock(clock.Now))
	defer c.Close()

	c.Observe("k")
	clock.Advance(600 * time.Millisecond)
	assert.True(t, c.Observe("k"))
	clock.Advance(600 * time.Millisecond)
	assert.False(t, c.Observe("k"))
}

func TestCache_EvictsOldest(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	c.Observe("a")
	c.Observe("b")
	c.Observe("c")

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Seen("a"))
	assert.True(t, c.Seen("b"))
	assert.True(t, c.Seen("c"))
}

func TestCache_Forget(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Close()

	c.Observe("k")
	c.Forget("k")
	c.Forget("missing")
	assert.False(t, c.Observe("k"))
}

func TestCache_Sweep(t *testing.T) {
	clock := newClock()
	c := New(time.Second, 10, WithClock(clock.Now))
	defer c.Close()

	c.Observe("old")
	clock.Advance(2 * time.Second)
	c.Observe("new")

	c.Sweep()
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("new"))
}

func TestCache_BackgroundSweep(t *testing.T) {
	c := New(5*time.Millisecond, 10, WithSweep(5*time.Millisecond))
	defer c.Close()

	c.Observe("k")
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCache_Key(t *testing.T) {
	assert.NotEqual(t, Key("a", "bc"), Key("ab", "c"))
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
}

func TestCache_ConcurrentObserveReportsOneNew(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Observe("same") {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(time.Minute, 1, WithSweep(time.Second))
	c.Close()
	assert.NotPanics(t, c.Close)
}
