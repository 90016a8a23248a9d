package capture

import (
	"errors"
	"time"
)

// Default target parameters for a capture attempt.
const (
	// DefaultDuration is the hard cap on a single set.
	DefaultDuration = 60 * time.Second

	// DefaultMinValid is the floor below which a completed capture is
	// considered too short to publish.
	DefaultMinValid = 1 * time.Second

	// DefaultSampleCadence is the interval between amplitude samples.
	DefaultSampleCadence = 150 * time.Millisecond
)

// Target is the per-attempt capture configuration. It is fixed when a
// session starts and never mutated afterwards.
type Target struct {
	// Duration is the maximum length of the recording. The session is
	// force-stopped when this much time has elapsed.
	Duration time.Duration

	// MinValid is the minimum duration for a capture to be considered
	// publishable. The capture pipeline itself does not enforce it; the
	// upload pipeline rejects results below this floor.
	MinValid time.Duration

	// SampleCadence is the interval between amplitude samples fed to the
	// live level observer and the waveform.
	SampleCadence time.Duration
}

// withDefaults returns a copy of t with zero fields replaced by the
// package defaults.
func (t Target) withDefaults() Target {
	if t.Duration <= 0 {
		t.Duration = DefaultDuration
	}
	if t.MinValid <= 0 {
		t.MinValid = DefaultMinValid
	}
	if t.SampleCadence <= 0 {
		t.SampleCadence = DefaultSampleCadence
	}
	return t
}

// Result is the sole output of a capture attempt. It is constructed exactly
// once, when the recorder finalises, and is immutable afterwards.
type Result struct {
	// Payload is the encoded audio, in the container chosen during codec
	// negotiation. May be empty if the recorder produced no data; callers
	// are expected to reject empty payloads.
	Payload []byte

	// Duration is the actual recorded length. Always in
	// [0, Target.Duration]: exactly Target.Duration when the session ran to
	// its timeout, wall-clock elapsed time (clamped) when stopped early.
	Duration time.Duration

	// Waveform is the ordered sequence of amplitude samples collected
	// during the capture, one per sample cadence tick, each in [0, 100].
	Waveform []float64

	// Codec is the codec identifier the engine actually recorded with,
	// which may differ from the requested one when the engine fell back to
	// its default.
	Codec string
}

// State identifies a phase of the recording flow.
type State int

const (
	// StateIdle means no capture attempt is in progress.
	StateIdle State = iota

	// StateCountingDown means the pre-capture countdown is running.
	StateCountingDown

	// StatePreparing covers the gap between countdown completion and the
	// recorder actually running (microphone acquisition).
	StatePreparing

	// StateRecording means audio is being captured.
	StateRecording

	// StateStopped means the capture finished and a [Result] was produced.
	StateStopped

	// StateErrored means the attempt failed (typically microphone
	// acquisition) and no Result will be produced.
	StateErrored
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCountingDown:
		return "COUNTING_DOWN"
	case StatePreparing:
		return "PREPARING"
	case StateRecording:
		return "RECORDING"
	case StateStopped:
		return "STOPPED"
	case StateErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// StopReason distinguishes why a session stopped; it selects how the actual
// duration is computed.
type StopReason int

const (
	// StopTimeout means the duration governor fired: the stored duration is
	// the target duration exactly, ignoring scheduler jitter.
	StopTimeout StopReason = iota

	// StopManual means the user (or a cancellation) ended the capture
	// early: the stored duration is the measured elapsed time, clamped to
	// [0, target].
	StopManual
)

// String returns the human-readable name of the stop reason.
func (r StopReason) String() string {
	switch r {
	case StopTimeout:
		return "TIMEOUT"
	case StopManual:
		return "MANUAL"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors returned by [Engine.Acquire]. Adapters wrap their
// platform-specific failures so callers can match with [errors.Is].
var (
	// ErrPermissionDenied means the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("capture: microphone permission denied")

	// ErrDeviceNotFound means no audio input device is present.
	ErrDeviceNotFound = errors.New("capture: no audio input device found")

	// ErrSecurityRestriction means the execution context forbids capture
	// (for example an unprivileged or sandboxed environment).
	ErrSecurityRestriction = errors.New("capture: capture not permitted in this context")
)
