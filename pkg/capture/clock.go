package capture

import "time"

// Clock abstracts wall-clock reads and one-shot timer scheduling so that
// the drift-corrected countdown and the duration governor can be tested
// deterministically. Production code uses [SystemClock].
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc schedules f to run on its own goroutine after d and
	// returns a handle that can cancel the pending call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback scheduled via [Clock.AfterFunc].
type Timer interface {
	// Stop cancels the pending callback. It reports whether the call was
	// prevented from firing. Safe to call more than once.
	Stop() bool
}

// SystemClock returns the real-time [Clock] backed by the time package.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{time.AfterFunc(d, f)}
}

type systemTimer struct{ t *time.Timer }

func (st systemTimer) Stop() bool { return st.t.Stop() }
