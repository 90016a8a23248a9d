package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPreparingNotice is how long the flow waits in Preparing before
// surfacing a "taking longer than expected" notification.
const DefaultPreparingNotice = 2 * time.Second

// FlowConfig holds the dependencies and observer callbacks for a [Flow].
// All callbacks are optional except OnComplete, are invoked without the
// flow lock held, and must not block.
type FlowConfig struct {
	// Engine provides microphone access. Required.
	Engine Engine

	// Target is the capture configuration for every attempt this flow runs.
	Target Target

	// Clock drives countdown and capture timing. Defaults to [SystemClock].
	Clock Clock

	// CountdownFrom and CountdownInterval configure the pre-capture
	// countdown. Zero values take the package defaults.
	CountdownFrom     int
	CountdownInterval time.Duration

	// PreparingNotice is the Preparing-phase delay after which
	// OnSlowPreparing fires. Zero takes [DefaultPreparingNotice].
	PreparingNotice time.Duration

	// OnState observes every state transition.
	OnState func(State)

	// OnCountdown receives each countdown value, the initial count first.
	OnCountdown func(remaining int)

	// OnLevel receives the live amplitude sample at every cadence tick.
	OnLevel func(level float64)

	// OnSlowPreparing fires once per attempt if microphone acquisition
	// outlasts PreparingNotice. Purely informational; the state machine is
	// not affected.
	OnSlowPreparing func()

	// OnComplete receives the capture result, exactly once per attempt
	// that reaches Recording.
	OnComplete func(Result)

	// OnError receives the attempt-fatal error when acquisition or
	// recorder start fails. The flow is then in Errored; the caller must
	// explicitly begin a new attempt (or Acknowledge) to move on.
	OnError func(error)
}

// Flow sequences one capture attempt through
// Idle → CountingDown → Preparing → Recording → Stopped → Idle,
// with Errored reachable from Preparing. It is the surface UI code drives:
// [Flow.Begin] kicks off an attempt, [Flow.Stop] ends a recording early,
// and [Flow.Cancel] abandons the attempt from any state with deterministic
// resource release.
//
// All methods are safe for concurrent use.
type Flow struct {
	cfg       FlowConfig
	clock     Clock
	countdown *Countdown

	mu      sync.Mutex
	state   State
	session *Session
	notice  Timer
}

// NewFlow creates a flow in the Idle state.
func NewFlow(cfg FlowConfig) (*Flow, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("capture: flow requires an engine")
	}
	if cfg.OnComplete == nil {
		return nil, fmt.Errorf("capture: flow requires an OnComplete callback")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	cfg.Target = cfg.Target.withDefaults()
	if cfg.PreparingNotice <= 0 {
		cfg.PreparingNotice = DefaultPreparingNotice
	}
	return &Flow{
		cfg:       cfg,
		clock:     clock,
		countdown: NewCountdown(cfg.CountdownFrom, cfg.CountdownInterval, clock),
		state:     StateIdle,
	}, nil
}

// State returns the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Begin starts a new capture attempt. Valid from Idle (fresh attempt) and
// Errored (retry after a failure). Returns an error when an attempt is
// already in progress.
func (f *Flow) Begin(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateIdle && f.state != StateErrored {
		state := f.state
		f.mu.Unlock()
		return fmt.Errorf("capture: attempt already in progress (state %s)", state)
	}
	f.setStateLocked(StateCountingDown)
	f.mu.Unlock()

	f.countdown.Start(f.cfg.OnCountdown, func() { f.beginPreparing(ctx) })
	return nil
}

// Stop ends the attempt early. During Recording this produces a [Result]
// via the normal completion path; during CountingDown or Preparing it is
// equivalent to [Flow.Cancel]. No-op otherwise.
func (f *Flow) Stop() {
	f.mu.Lock()
	state := f.state
	sess := f.session
	f.mu.Unlock()

	switch state {
	case StateRecording:
		sess.Stop(StopManual)
	case StateCountingDown, StatePreparing:
		f.Cancel()
	}
}

// Cancel abandons the attempt from any state: it clears any pending
// countdown tick, releases a microphone stream whether acquired or still
// being acquired, and returns the flow to Idle. Cancelling during Recording
// finalises the capture like a manual stop (a Result is still delivered).
func (f *Flow) Cancel() {
	f.mu.Lock()
	if f.notice != nil {
		f.notice.Stop()
		f.notice = nil
	}
	sess := f.session
	switch f.state {
	case StateCountingDown, StatePreparing:
		f.session = nil
		f.setStateLocked(StateIdle)
	}
	f.mu.Unlock()

	f.countdown.Cancel()
	if sess != nil {
		// During Recording this runs the completion path; during Preparing
		// it only releases the device.
		sess.Stop(StopManual)
	}
}

// Acknowledge clears an Errored attempt back to Idle. No-op in any other
// state.
func (f *Flow) Acknowledge() {
	f.mu.Lock()
	if f.state == StateErrored {
		f.setStateLocked(StateIdle)
	}
	f.mu.Unlock()
}

// beginPreparing runs on countdown completion: it creates the session,
// arms the slow-preparing notice, and starts acquisition on its own
// goroutine (the only suspending step in the pipeline).
func (f *Flow) beginPreparing(ctx context.Context) {
	f.mu.Lock()
	if f.state != StateCountingDown {
		// Cancelled while the terminal tick was in flight.
		f.mu.Unlock()
		return
	}

	sess, err := NewSession(SessionConfig{
		Engine:     f.cfg.Engine,
		Target:     f.cfg.Target,
		Clock:      f.clock,
		OnLevel:    f.cfg.OnLevel,
		OnComplete: f.handleComplete,
	})
	if err != nil {
		// Only reachable through programmer error (nil engine is rejected
		// in NewFlow), but fail the attempt properly anyway.
		f.setStateLocked(StateErrored)
		f.mu.Unlock()
		if f.cfg.OnError != nil {
			f.cfg.OnError(err)
		}
		return
	}
	f.session = sess
	f.setStateLocked(StatePreparing)
	if f.cfg.OnSlowPreparing != nil {
		f.notice = f.clock.AfterFunc(f.cfg.PreparingNotice, f.cfg.OnSlowPreparing)
	}
	f.mu.Unlock()

	go func() {
		if err := sess.Start(ctx); err != nil {
			f.failAttempt(err)
			return
		}
		f.markRecording(sess)
	}()
}

// markRecording transitions Preparing → Recording once the recorder is
// actually running. A cancelled attempt (state no longer Preparing) is left
// alone; the session has already released its resources.
func (f *Flow) markRecording(sess *Session) {
	f.mu.Lock()
	if f.notice != nil {
		f.notice.Stop()
		f.notice = nil
	}
	if f.state != StatePreparing || f.session != sess || sess.State() != StateRecording {
		f.mu.Unlock()
		return
	}
	f.setStateLocked(StateRecording)
	f.mu.Unlock()
}

// failAttempt transitions Preparing → Errored after an acquisition or
// recorder failure. The session has already torn itself down.
func (f *Flow) failAttempt(err error) {
	f.mu.Lock()
	if f.notice != nil {
		f.notice.Stop()
		f.notice = nil
	}
	f.session = nil
	f.setStateLocked(StateErrored)
	f.mu.Unlock()

	slog.Warn("capture attempt failed", "err", err)
	if f.cfg.OnError != nil {
		f.cfg.OnError(err)
	}
}

// handleComplete is the session's completion callback: hand the result to
// the caller from Stopped, then return to Idle for the next attempt.
func (f *Flow) handleComplete(res Result) {
	f.mu.Lock()
	if f.notice != nil {
		f.notice.Stop()
		f.notice = nil
	}
	f.session = nil
	f.setStateLocked(StateStopped)
	f.mu.Unlock()

	f.cfg.OnComplete(res)

	f.mu.Lock()
	if f.state == StateStopped {
		f.setStateLocked(StateIdle)
	}
	f.mu.Unlock()
}

// setStateLocked records a transition and notifies the observer. Caller
// must hold the lock; OnState runs under it and must not call back into
// the flow.
func (f *Flow) setStateLocked(s State) {
	if f.state == s {
		return
	}
	f.state = s
	if f.cfg.OnState != nil {
		f.cfg.OnState(s)
	}
}
