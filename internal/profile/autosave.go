package profile

import (
	"log"
	"sync"
	"time"

	"github.com/prefd-io/prefd/internal/profile/store"
)

// DefaultAutosaveDelay is the quiet window that must elapse after the last
// setting edit before the coalesced durable write fires.
const DefaultAutosaveDelay = 5 * time.Second

// Coalescer merges rapid repeated write requests into one delayed write
// using trailing-edge debounce. Each Put cancels any pending flush and
// reschedules it a full delay out; only the most recent payload within the
// quiet window is ever written (last-write-wins).
type Coalescer struct {
	clock Clock
	delay time.Duration
	sink  func(*store.Profile) error

	mu      sync.Mutex
	timer   Timer
	pending *store.Profile
	gen     uint64
}

// NewCoalescer wraps sink with a trailing-edge debounce of the given delay.
func NewCoalescer(clock Clock, delay time.Duration, sink func(*store.Profile) error) *Coalescer {
	if clock == nil {
		clock = SystemClock()
	}
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}
	return &Coalescer{clock: clock, delay: delay, sink: sink}
}

// Put records profile as the payload of the next flush and restarts the
// quiet window. Any previously pending payload is discarded, never written.
func (c *Coalescer) Put(profile *store.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.pending = profile
	c.gen++

	gen := c.gen
	c.timer = c.clock.AfterFunc(c.delay, func() {
		c.fire(gen)
	})
}

// fire runs on timer expiry. The generation check makes a stale timer that
// lost the Stop race a no-op, so two flushes for the same sink never run
// with different payloads out of order.
func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.pending == nil {
		c.mu.Unlock()
		return
	}
	payload := c.pending
	c.pending = nil
	c.timer = nil
	c.mu.Unlock()

	if err := c.sink(payload); err != nil {
		log.Printf("[Autosave] WARNING: coalesced write failed: %v", err)
	}
}

// Flush writes any pending payload immediately and cancels the timer. It is
// the shutdown escape hatch: without it the last quiet-window edit would be
// lost when the process exits.
func (c *Coalescer) Flush() error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	payload := c.pending
	c.pending = nil
	c.gen++
	c.mu.Unlock()

	if payload == nil {
		return nil
	}
	return c.sink(payload)
}

// Discard drops any pending payload without writing it.
func (c *Coalescer) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
	c.gen++
}

// Pending reports whether a coalesced write is scheduled but not yet flushed.
func (c *Coalescer) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}
