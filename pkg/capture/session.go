package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// analyserWindow is the number of time-domain bytes read per amplitude
// sample. Matches a 256-point analysis window.
const analyserWindow = 256

// SessionConfig holds the dependencies and callbacks for a [Session].
type SessionConfig struct {
	// Engine provides microphone access. Required.
	Engine Engine

	// Target is the per-attempt capture configuration. Zero fields take the
	// package defaults.
	Target Target

	// Clock drives the duration governor and the amplitude sampler.
	// Defaults to [SystemClock].
	Clock Clock

	// OnLevel, if set, receives the most recent amplitude sample (in
	// [0, 100]) at every sample cadence tick, for live visualisation.
	// Invoked without the session lock held; must not block.
	OnLevel func(level float64)

	// OnComplete receives the [Result] when the capture ends. Fires exactly
	// once per successful start, after hardware teardown, regardless of how
	// the capture stopped. Never fires when acquisition failed or when the
	// session was cancelled before the recorder started.
	OnComplete func(Result)
}

// Session is a single capture attempt: it owns the microphone stream, the
// analysis tap, the recorder, and the waveform accumulator, and it
// guarantees the capture never exceeds the target duration.
//
// A Session is single-use: create one per attempt with [NewSession], call
// [Session.Start] once, and [Session.Stop] any number of times. All methods
// are safe for concurrent use.
type Session struct {
	engine     Engine
	target     Target
	clock      Clock
	onLevel    func(float64)
	onComplete func(Result)

	mu          sync.Mutex
	state       State
	stream      Stream
	rec         Recorder
	analyser    Analyser
	analyserBuf []byte
	wave        waveform
	governor    Timer
	sampler     Timer
	startedAt   time.Time
	completed   bool
}

// NewSession creates a session in the Preparing state. The capture does not
// begin until [Session.Start] is called.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("capture: session requires an engine")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &Session{
		engine:      cfg.Engine,
		target:      cfg.Target.withDefaults(),
		clock:       clock,
		onLevel:     cfg.OnLevel,
		onComplete:  cfg.OnComplete,
		state:       StatePreparing,
		analyserBuf: make([]byte, analyserWindow),
	}, nil
}

// Target returns the session's capture configuration.
func (s *Session) Target() Target { return s.target }

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires the microphone, negotiates the recording codec, starts the
// recorder, and schedules the duration governor and the amplitude sampler.
//
// Acquisition is the only blocking step; it may suspend on an OS permission
// prompt. If the session is stopped while acquisition is in flight, the
// acquired stream is released immediately and no [Result] is produced.
//
// On any acquisition or recorder failure the session transitions to
// Errored with all resources released, and the error wraps one of the
// package sentinels where the engine reported one.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		// Cancelled before the attempt got going.
		s.mu.Unlock()
		return nil
	}
	if s.state != StatePreparing {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("capture: session already started (state %s)", state)
	}
	s.wave.reset()
	s.mu.Unlock()

	stream, err := s.engine.Acquire(ctx)

	s.mu.Lock()
	if s.state == StateStopped {
		// Cancelled while the permission prompt was up. The capture never
		// began; release the device and walk away.
		s.mu.Unlock()
		if stream != nil {
			stream.Release()
		}
		return nil
	}
	if err != nil {
		s.state = StateErrored
		s.mu.Unlock()
		return fmt.Errorf("capture: acquire input: %w", err)
	}

	s.stream = stream
	s.analyser = stream.Analyser()

	codec := negotiateCodec(s.engine, PreferredCodecs)
	rec, err := stream.NewRecorder(codec)
	if err != nil {
		s.failLocked()
		return fmt.Errorf("capture: create recorder (codec %q): %w", codec, err)
	}
	if err := rec.Start(); err != nil {
		s.failLocked()
		return fmt.Errorf("capture: start recorder: %w", err)
	}

	s.rec = rec
	s.startedAt = s.clock.Now()
	s.state = StateRecording
	s.governor = s.clock.AfterFunc(s.target.Duration, func() { s.Stop(StopTimeout) })
	s.sampler = s.clock.AfterFunc(s.target.SampleCadence, s.sampleTick)
	s.mu.Unlock()

	slog.Debug("capture started",
		"target", s.target.Duration,
		"cadence", s.target.SampleCadence,
		"codec", codec,
	)
	return nil
}

// Stop ends the capture. Idempotent: stopping a session that is not
// recording is a no-op, so a late governor fire after a manual stop (or a
// double stop) is harmless.
//
// For StopTimeout the stored duration is the target exactly; for StopManual
// it is the measured elapsed time rounded to the millisecond and clamped to
// [0, target]. Either way the microphone, the analysis tap, and all pending
// scheduled callbacks are released before the completion callback runs.
//
// Stopping during Preparing cancels the attempt: any stream acquired in
// flight is released and no [Result] is produced.
func (s *Session) Stop(reason StopReason) {
	s.mu.Lock()
	switch s.state {
	case StatePreparing:
		// Start's acquisition continuation observes this and releases the
		// stream; nothing else has been created yet.
		s.state = StateStopped
		s.teardownLocked()
		s.mu.Unlock()
		return
	case StateRecording:
		// proceed below
	default:
		s.mu.Unlock()
		return
	}

	// Cancel pending callbacks synchronously before any teardown so the
	// governor cannot fire into a dismantled session.
	if s.governor != nil {
		s.governor.Stop()
		s.governor = nil
	}
	if s.sampler != nil {
		s.sampler.Stop()
		s.sampler = nil
	}

	var dur time.Duration
	if reason == StopTimeout {
		// The forced path stores the target exactly; wall-clock drift on the
		// governor's timer must not leak into the result.
		dur = s.target.Duration
	} else {
		dur = s.clock.Now().Sub(s.startedAt).Round(time.Millisecond)
		if dur < 0 {
			dur = 0
		}
		if dur > s.target.Duration {
			dur = s.target.Duration
		}
	}

	payload, codec, recErr := s.rec.Stop()
	wave := s.wave.take()
	s.teardownLocked()
	s.state = StateStopped

	fire := !s.completed && s.onComplete != nil
	s.completed = true
	onComplete := s.onComplete
	s.mu.Unlock()

	if recErr != nil {
		slog.Warn("capture: recorder finalise error", "err", recErr)
	}
	slog.Info("capture stopped",
		"reason", reason,
		"duration", dur,
		"payload_bytes", len(payload),
		"waveform_samples", len(wave),
		"codec", codec,
	)

	if fire {
		onComplete(Result{
			Payload:  payload,
			Duration: dur,
			Waveform: wave,
			Codec:    codec,
		})
	}
}

// sampleTick reads one analyser window, records the loudness sample, and
// reschedules itself at the sample cadence. A tick that lands after the
// session stopped does nothing.
func (s *Session) sampleTick() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	var level float64
	if s.analyser != nil {
		n := s.analyser.TimeDomain(s.analyserBuf)
		level = Level(s.analyserBuf[:n])
	}
	s.wave.append(level)
	s.sampler = s.clock.AfterFunc(s.target.SampleCadence, s.sampleTick)
	onLevel := s.onLevel
	s.mu.Unlock()

	if onLevel != nil {
		onLevel(level)
	}
}

// failLocked releases resources and marks the session Errored. Caller must
// hold the lock; the lock is released on return.
func (s *Session) failLocked() {
	s.teardownLocked()
	s.state = StateErrored
	s.mu.Unlock()
}

// teardownLocked releases the stream and cancels pending callbacks. Safe to
// call repeatedly and from any exit path; the handle checks make repeated
// invocation a no-op. Caller must hold the lock.
func (s *Session) teardownLocked() {
	if s.governor != nil {
		s.governor.Stop()
		s.governor = nil
	}
	if s.sampler != nil {
		s.sampler.Stop()
		s.sampler = nil
	}
	if s.stream != nil {
		s.stream.Release()
		s.stream = nil
	}
	s.analyser = nil
	s.rec = nil
}
