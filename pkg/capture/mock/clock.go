package mock

import (
	"sync"
	"time"

	"github.com/areufunny/areufunny/pkg/capture"
)

// ─── Clock ────────────────────────────────────────────────────────────────────

// Clock is a manually advanced implementation of [capture.Clock]. Time only
// moves when the test calls [Clock.Advance], which fires due timers
// synchronously on the caller's goroutine in deadline order. Timer callbacks
// may read the clock and schedule further timers.
type Clock struct {
	// Lateness simulates scheduler jitter: every timer callback observes
	// Now() as its deadline plus this offset. Zero means perfectly
	// punctual firing. Set before Advance; not synchronised against a
	// concurrent Advance.
	Lateness time.Duration

	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*clockTimer
	delays []time.Duration
}

type clockTimer struct {
	clock    *Clock
	deadline time.Time
	fn       func()
	seq      int
	stopped  bool
	fired    bool
}

// NewClock creates a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now implements [capture.Clock].
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc implements [capture.Clock]. The callback runs during a future
// [Clock.Advance] whose window covers the deadline. A non-positive duration
// still waits for the next Advance; nothing fires inline.
func (c *Clock) AfterFunc(d time.Duration, fn func()) capture.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &clockTimer{clock: c, deadline: c.now.Add(d), fn: fn, seq: c.seq}
	c.seq++
	c.timers = append(c.timers, t)
	c.delays = append(c.delays, d)
	return t
}

// Stop implements [capture.Timer]. Reports whether the timer was still
// pending.
func (t *clockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls within the window. The clock steps to each deadline (plus Lateness)
// before the callback runs, so callbacks observe the time they actually
// fired at.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		next := c.nextDueLocked(target)
		if next == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.deadline.Add(c.Lateness)
		c.mu.Unlock()
		next.fn()
		c.mu.Lock()
	}
}

// Delays returns the duration argument of every AfterFunc call so far, in
// scheduling order. Use it to assert on drift-corrected rescheduling.
func (c *Clock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

// Pending reports how many timers are armed but not yet fired or stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// nextDueLocked returns the earliest live timer due at or before target,
// breaking deadline ties by scheduling order.
func (c *Clock) nextDueLocked(target time.Time) *clockTimer {
	var due *clockTimer
	for _, t := range c.timers {
		if t.fired || t.stopped || t.deadline.After(target) {
			continue
		}
		if due == nil || t.deadline.Before(due.deadline) || (t.deadline.Equal(due.deadline) && t.seq < due.seq) {
			due = t
		}
	}
	return due
}
