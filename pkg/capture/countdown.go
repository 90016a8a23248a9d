package capture

import (
	"sync"
	"time"
)

// Default countdown parameters.
const (
	// DefaultCountdownFrom is the number the pre-capture countdown starts at.
	DefaultCountdownFrom = 3

	// DefaultCountdownInterval is how long each countdown number is shown.
	DefaultCountdownInterval = time.Second
)

// Countdown ticks down a fixed integer at a fixed display cadence before a
// capture begins. It shares no timer state with the capture session.
//
// Each tick is scheduled as a fresh one-shot whose delay is the nominal
// interval minus the measured drift of the previous fire, and the ideal
// deadline advances by exactly the interval, so late callback firings do
// not accumulate into a slow countdown.
//
// A Countdown is restartable: every [Countdown.Start] begins a fresh run
// from the initial count, cancelling any run still in flight. All methods
// are safe for concurrent use.
type Countdown struct {
	from     int
	interval time.Duration
	clock    Clock

	mu        sync.Mutex
	run       int // distinguishes runs so a stale tick cannot advance a new run
	remaining int
	deadline  time.Time
	timer     Timer
	onTick    func(remaining int)
	onDone    func()
}

// NewCountdown creates a countdown starting at from with the given display
// interval. Non-positive arguments take [DefaultCountdownFrom] and
// [DefaultCountdownInterval]. clock may be nil for the system clock.
func NewCountdown(from int, interval time.Duration, clock Clock) *Countdown {
	if from <= 0 {
		from = DefaultCountdownFrom
	}
	if interval <= 0 {
		interval = DefaultCountdownInterval
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Countdown{from: from, interval: interval, clock: clock}
}

// Start begins a fresh countdown. onTick is invoked immediately with the
// initial count and then once per interval with the decremented value;
// onDone fires exactly once, when the count reaches zero, and no further
// tick is scheduled. Both callbacks run without the countdown lock held.
func (c *Countdown) Start(onTick func(remaining int), onDone func()) {
	c.mu.Lock()
	c.run++
	run := c.run
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.remaining = c.from
	c.onTick = onTick
	c.onDone = onDone
	// Ideal deadline for the first decrement.
	c.deadline = c.clock.Now().Add(c.interval)
	c.timer = c.clock.AfterFunc(c.interval, func() { c.tick(run) })
	from := c.from
	c.mu.Unlock()

	if onTick != nil {
		onTick(from)
	}
}

// Cancel aborts the countdown, clearing any pending tick. Neither callback
// fires after Cancel returns. No-op when nothing is running.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	c.run++ // invalidate in-flight ticks
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.onTick = nil
	c.onDone = nil
	c.mu.Unlock()
}

// tick handles one fire: decrement, notify, and reschedule with drift
// compensation, or complete when the count hits zero.
func (c *Countdown) tick(run int) {
	c.mu.Lock()
	if run != c.run {
		c.mu.Unlock()
		return
	}

	c.remaining--
	remaining := c.remaining
	onTick := c.onTick
	var onDone func()

	if remaining <= 0 {
		// Terminal tick: complete, schedule nothing further.
		onDone = c.onDone
		c.timer = nil
		c.onTick = nil
		c.onDone = nil
	} else {
		// The next delay is the nominal interval shortened by however late
		// this fire was; the ideal deadline advances by exactly one
		// interval so error never compounds.
		drift := c.clock.Now().Sub(c.deadline)
		delay := c.interval - drift
		if delay < 0 {
			delay = 0
		}
		c.deadline = c.deadline.Add(c.interval)
		c.timer = c.clock.AfterFunc(delay, func() { c.tick(run) })
	}
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if onDone != nil {
		onDone()
	}
}
