// Package mock provides in-memory mock implementations of the [capture.Engine],
// [capture.Stream], [capture.Analyser], and [capture.Recorder] interfaces for
// use in unit tests, plus a manually advanced [Clock].
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported
// fields that the test can set to control return values.
//
// Typical usage:
//
//	stream := &mock.Stream{
//	    AnalyserResult:    &mock.Analyser{},
//	    NewRecorderResult: &mock.Recorder{StopPayload: []byte("opus")},
//	}
//	engine := &mock.Engine{AcquireResult: stream}
//	clock := mock.NewClock(time.Unix(0, 0))
package mock

import (
	"context"
	"sync"

	"github.com/areufunny/areufunny/pkg/capture"
)

// ─── Engine ───────────────────────────────────────────────────────────────────

// Engine is a mock implementation of [capture.Engine].
// Set the exported Result fields before use; inspect the Call* fields after.
type Engine struct {
	mu sync.Mutex

	// AcquireResult is the [capture.Stream] returned by Acquire.
	AcquireResult capture.Stream

	// AcquireError is the error returned by Acquire.
	AcquireError error

	// AcquireGate, when non-nil, makes Acquire block until the channel is
	// closed or the context is cancelled. Use it to hold a session in its
	// preparing phase.
	AcquireGate <-chan struct{}

	// AcquireStarted, when non-nil, is closed the first time Acquire is
	// invoked, before any gate wait. Use it to synchronise with an
	// acquisition running on another goroutine.
	AcquireStarted chan struct{}

	// Codecs lists the codec identifiers SupportsCodec reports as
	// available. A nil slice means every codec is supported.
	Codecs []string

	// CallCountAcquire records how many times Acquire was called.
	CallCountAcquire int

	// SupportsCodecCalls records the codec identifier passed to each
	// SupportsCodec invocation, in order.
	SupportsCodecCalls []string
}

// Acquire implements [capture.Engine]. Records the call and returns
// AcquireResult / AcquireError, after the gate opens if one is set.
func (e *Engine) Acquire(ctx context.Context) (capture.Stream, error) {
	e.mu.Lock()
	e.CallCountAcquire++
	if e.AcquireStarted != nil && e.CallCountAcquire == 1 {
		close(e.AcquireStarted)
	}
	gate := e.AcquireGate
	stream, err := e.AcquireResult, e.AcquireError
	e.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return stream, err
}

// SupportsCodec implements [capture.Engine]. Records the codec and reports
// whether it appears in Codecs (or always true when Codecs is nil).
func (e *Engine) SupportsCodec(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SupportsCodecCalls = append(e.SupportsCodecCalls, id)
	if e.Codecs == nil {
		return true
	}
	for _, c := range e.Codecs {
		if c == id {
			return true
		}
	}
	return false
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [capture.Stream].
type Stream struct {
	mu sync.Mutex

	// AnalyserResult is returned by [Stream.Analyser].
	// Defaults to a silent [Analyser] if left nil.
	AnalyserResult capture.Analyser

	// NewRecorderResult is the [capture.Recorder] returned by NewRecorder.
	NewRecorderResult capture.Recorder

	// NewRecorderError is the error returned by NewRecorder.
	NewRecorderError error

	// NewRecorderCalls records the codec passed to each NewRecorder
	// invocation, in order.
	NewRecorderCalls []string

	// CallCountRelease records how many times Release was called.
	CallCountRelease int
}

// Analyser implements [capture.Stream]. Returns AnalyserResult, or a shared
// silent analyser if unset.
func (s *Stream) Analyser() capture.Analyser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AnalyserResult == nil {
		s.AnalyserResult = &Analyser{}
	}
	return s.AnalyserResult
}

// NewRecorder implements [capture.Stream]. Records the codec and returns
// NewRecorderResult / NewRecorderError.
func (s *Stream) NewRecorder(codec string) (capture.Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NewRecorderCalls = append(s.NewRecorderCalls, codec)
	return s.NewRecorderResult, s.NewRecorderError
}

// Release implements [capture.Stream]. Records the call.
func (s *Stream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountRelease++
}

// Released reports whether Release has been called at least once.
func (s *Stream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountRelease > 0
}

// ─── Analyser ─────────────────────────────────────────────────────────────────

// Analyser is a mock implementation of [capture.Analyser].
type Analyser struct {
	mu sync.Mutex

	// Samples are served to successive TimeDomain calls in order; the last
	// entry repeats once the queue is exhausted. An empty queue yields
	// silence (every byte 128).
	Samples [][]byte

	next int

	// CallCountTimeDomain records how many times TimeDomain was called.
	CallCountTimeDomain int
}

// TimeDomain implements [capture.Analyser]. Fills buf from the sample queue
// and returns the number of bytes written.
func (a *Analyser) TimeDomain(buf []byte) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CallCountTimeDomain++
	if len(a.Samples) == 0 {
		for i := range buf {
			buf[i] = 128
		}
		return len(buf)
	}
	sample := a.Samples[a.next]
	if a.next < len(a.Samples)-1 {
		a.next++
	}
	return copy(buf, sample)
}

// ─── Recorder ─────────────────────────────────────────────────────────────────

// Recorder is a mock implementation of [capture.Recorder].
type Recorder struct {
	mu sync.Mutex

	// StartError is returned by [Recorder.Start].
	StartError error

	// StopPayload, StopCodec, and StopError are returned by [Recorder.Stop].
	StopPayload []byte
	StopCodec   string
	StopError   error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Start implements [capture.Recorder]. Records the call and returns StartError.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStart++
	return r.StartError
}

// Stop implements [capture.Recorder]. Records the call and returns the
// configured payload, codec, and error.
func (r *Recorder) Stop() ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStop++
	return r.StopPayload, r.StopCodec, r.StopError
}
