// Package capture implements the one-minute set recording pipeline for
// areufunny: a countdown, a capped-duration microphone capture with live
// amplitude sampling, a compact waveform summary, and a single completion
// hand-off of the encoded audio.
//
// The three layers, outermost first:
//
//   - [Flow] — the per-attempt state machine (countdown → preparing →
//     recording → stopped/errored) that UI code drives.
//   - [Session] — one capture: owns the stream, the analyser, the recorder,
//     the waveform accumulator, and the duration governor.
//   - [Engine] / [Stream] / [Recorder] / [Analyser] — the narrow hardware
//     abstraction that platform adapter packages (e.g. capture/portaudio)
//     implement.
//
// This package lives under pkg/ because external code (alternative capture
// backends) is expected to implement [Engine] and friends.
package capture

import "context"

// PreferredCodecs is the ordered list of codec identifiers a session asks
// the engine about, first match wins. Engines that support none of these
// fall back to their default codec, and the [Result] records whatever the
// engine actually used.
var PreferredCodecs = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
}

// Engine is the entry point for a microphone capture backend.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Acquire requests access to the default audio input device and returns
	// a live [Stream]. This is the only blocking call in the pipeline: it
	// may suspend on an OS permission prompt. The context governs the
	// acquisition attempt only; a returned Stream stays valid until
	// [Stream.Release].
	//
	// Failures are reported with the package sentinels: wraps
	// [ErrPermissionDenied], [ErrDeviceNotFound], or
	// [ErrSecurityRestriction] as appropriate.
	Acquire(ctx context.Context) (Stream, error)

	// SupportsCodec reports whether the engine can record in the codec
	// identified by id (a MIME-style identifier such as
	// "audio/webm;codecs=opus"). Used by codec negotiation.
	SupportsCodec(id string) bool
}

// Stream is an open microphone stream. Exactly one [Session] owns a Stream
// at a time; no other component may touch it.
type Stream interface {
	// Analyser returns the level-analysis tap for this stream. The analyser
	// observes the signal without affecting what the recorder captures.
	// May return nil if the backend cannot provide analysis; the sampler
	// then emits zero levels.
	Analyser() Analyser

	// NewRecorder creates a recorder bound to this stream. codec is the
	// negotiated identifier; the empty string selects the engine default.
	// The recorder reports the codec it actually used when it finalises.
	NewRecorder(codec string) (Recorder, error)

	// Release stops the underlying input tracks and frees the device.
	// Idempotent; safe to call after a failed recorder construction or at
	// any teardown path.
	Release()
}

// Analyser exposes the current time-domain samples of a live stream for
// loudness analysis.
type Analyser interface {
	// TimeDomain fills buf with 8-bit unsigned time-domain samples centred
	// at 128 (silence) and returns the number of bytes written. Returns 0
	// when no data is available, for example while the stream is tearing
	// down.
	TimeDomain(buf []byte) int
}

// Recorder accumulates encoded audio from a stream.
type Recorder interface {
	// Start begins encoding. Must be called exactly once.
	Start() error

	// Stop finalises the recording, flushing any buffered chunk, and
	// returns the complete payload together with the codec identifier that
	// was actually used. Stop may be called even if Start failed; it then
	// returns an empty payload.
	Stop() (payload []byte, codec string, err error)
}

// negotiateCodec walks the preference list and returns the first codec the
// engine supports, or the empty string (engine default) when none match.
func negotiateCodec(e Engine, prefs []string) string {
	for _, id := range prefs {
		if e.SupportsCodec(id) {
			return id
		}
	}
	return ""
}
