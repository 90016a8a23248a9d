package capture_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/areufunny/areufunny/pkg/capture"
	"github.com/areufunny/areufunny/pkg/capture/mock"
)

type sessionFixture struct {
	clock  *mock.Clock
	engine *mock.Engine
	stream *mock.Stream
	rec    *mock.Recorder

	levels  []float64
	results []capture.Result

	sess *capture.Session
}

func newSessionFixture(t *testing.T, target capture.Target) *sessionFixture {
	t.Helper()

	f := &sessionFixture{
		clock: mock.NewClock(time.Unix(0, 0)),
		rec: &mock.Recorder{
			StopPayload: []byte("encoded-audio"),
			StopCodec:   "audio/webm;codecs=opus",
		},
	}
	f.stream = &mock.Stream{
		AnalyserResult: &mock.Analyser{
			Samples: [][]byte{bytes.Repeat([]byte{141, 115}, 128)},
		},
		NewRecorderResult: f.rec,
	}
	f.engine = &mock.Engine{AcquireResult: f.stream}

	sess, err := capture.NewSession(capture.SessionConfig{
		Engine:     f.engine,
		Target:     target,
		Clock:      f.clock,
		OnLevel:    func(l float64) { f.levels = append(f.levels, l) },
		OnComplete: func(r capture.Result) { f.results = append(f.results, r) },
	})
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	f.sess = sess
	return f
}

func TestSession_TimeoutStoresTargetExactly(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, capture.Target{Duration: 60 * time.Second})
	// Every timer fires 200ms late; the stored duration must not care.
	f.clock.Lateness = 200 * time.Millisecond

	if err := f.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	f.clock.Advance(60 * time.Second)

	if len(f.results) != 1 {
		t.Fatalf("results = %d, want 1", len(f.results))
	}
	res := f.results[0]
	if res.Duration != 60*time.Second {
		t.Errorf("Duration = %v, want exactly %v", res.Duration, 60*time.Second)
	}
	if string(res.Payload) != "encoded-audio" {
		t.Errorf("Payload = %q, want %q", res.Payload, "encoded-audio")
	}
	if res.Codec != "audio/webm;codecs=opus" {
		t.Errorf("Codec = %q, want %q", res.Codec, "audio/webm;codecs=opus")
	}
	for i, l := range res.Waveform {
		if l < 0 || l > 100 {
			t.Fatalf("Waveform[%d] = %v, want within [0, 100]", i, l)
		}
	}
	if got := f.sess.State(); got != capture.StateStopped {
		t.Errorf("State() = %s, want %s", got, capture.StateStopped)
	}
	if !f.stream.Released() {
		t.Error("stream was not released after timeout")
	}
	if n := f.clock.Pending(); n != 0 {
		t.Errorf("pending timers after stop = %d, want 0", n)
	}
}

func TestSession_ManualStopMeasuresElapsed(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, capture.Target{})

	if err := f.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	f.clock.Advance(12345 * time.Millisecond)
	f.sess.Stop(capture.StopManual)

	if len(f.results) != 1 {
		t.Fatalf("results = %d, want 1", len(f.results))
	}
	res := f.results[0]
	if res.Duration != 12345*time.Millisecond {
		t.Errorf("Duration = %v, want %v", res.Duration, 12345*time.Millisecond)
	}

	// One sample per 150ms cadence tick over 12345ms.
	wantSamples := 82
	if got := len(res.Waveform); got < wantSamples-1 || got > wantSamples+1 {
		t.Errorf("Waveform samples = %d, want %d±1", got, wantSamples)
	}
	if len(f.levels) != len(res.Waveform) {
		t.Errorf("live level samples = %d, want %d", len(f.levels), len(res.Waveform))
	}
	if !f.stream.Released() {
		t.Error("stream was not released after manual stop")
	}
	if n := f.clock.Pending(); n != 0 {
		t.Errorf("pending timers after stop = %d, want 0", n)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, capture.Target{})
	if err := f.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	f.clock.Advance(time.Second)

	f.sess.Stop(capture.StopManual)
	f.sess.Stop(capture.StopManual)
	f.sess.Stop(capture.StopTimeout)

	if len(f.results) != 1 {
		t.Errorf("results = %d, want exactly 1", len(f.results))
	}
	if f.rec.CallCountStop != 1 {
		t.Errorf("recorder Stop calls = %d, want 1", f.rec.CallCountStop)
	}
	if f.stream.CallCountRelease != 1 {
		t.Errorf("stream Release calls = %d, want 1", f.stream.CallCountRelease)
	}
}

func TestSession_ImmediateStopDeliversEmptyWaveform(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, capture.Target{})
	if err := f.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	f.sess.Stop(capture.StopManual)

	if len(f.results) != 1 {
		t.Fatalf("results = %d, want 1", len(f.results))
	}
	res := f.results[0]
	if res.Duration != 0 {
		t.Errorf("Duration = %v, want 0", res.Duration)
	}
	if res.Waveform == nil {
		t.Error("Waveform is nil, want empty non-nil slice")
	}
	if len(res.Waveform) != 0 {
		t.Errorf("Waveform samples = %d, want 0", len(res.Waveform))
	}
}

func TestSession_CancelDuringAcquire(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, capture.Target{})
	gate := make(chan struct{})
	f.engine.AcquireGate = gate
	f.engine.AcquireStarted = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- f.sess.Start(context.Background()) }()

	<-f.engine.AcquireStarted
	f.sess.Stop(capture.StopManual)
	close(gate)

	if err := <-errc; err != nil {
		t.Fatalf("Start() after cancel error: %v", err)
	}
	if !f.stream.Released() {
		t.Error("stream acquired mid-cancel was not released")
	}
	if len(f.results) != 0 {
		t.Errorf("results = %d, want 0 for a cancelled attempt", len(f.results))
	}
	if got := f.sess.State(); got != capture.StateStopped {
		t.Errorf("State() = %s, want %s", got, capture.StateStopped)
	}
	if n := f.clock.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}
}

func TestSession_AcquireFailureWrapsSentinel(t *testing.T) {
	t.Parallel()

	sentinels := []struct {
		name string
		err  error
	}{
		{name: "permission denied", err: capture.ErrPermissionDenied},
		{name: "no device", err: capture.ErrDeviceNotFound},
		{name: "security restriction", err: capture.ErrSecurityRestriction},
	}

	for _, tt := range sentinels {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newSessionFixture(t, capture.Target{})
			f.engine.AcquireResult = nil
			f.engine.AcquireError = fmt.Errorf("input device: %w", tt.err)

			err := f.sess.Start(context.Background())
			if err == nil {
				t.Fatal("Start() returned nil, want error")
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("Start() error = %v, want wrap of %v", err, tt.err)
			}
			if got := f.sess.State(); got != capture.StateErrored {
				t.Errorf("State() = %s, want %s", got, capture.StateErrored)
			}
			if len(f.results) != 0 {
				t.Errorf("results = %d, want 0", len(f.results))
			}
			if n := f.clock.Pending(); n != 0 {
				t.Errorf("pending timers after failure = %d, want 0", n)
			}
		})
	}
}

func TestSession_RecorderStartFailureReleasesStream(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t, capture.Target{})
	f.rec.StartError = errors.New("encoder init failed")

	err := f.sess.Start(context.Background())
	if err == nil {
		t.Fatal("Start() returned nil, want error")
	}
	if !f.stream.Released() {
		t.Error("stream was not released after recorder failure")
	}
	if got := f.sess.State(); got != capture.StateErrored {
		t.Errorf("State() = %s, want %s", got, capture.StateErrored)
	}
	if len(f.results) != 0 {
		t.Errorf("results = %d, want 0", len(f.results))
	}
}

func TestSession_CodecNegotiation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		supported []string
		want      string
	}{
		{
			name:      "first preference wins",
			supported: nil, // everything supported
			want:      "audio/webm;codecs=opus",
		},
		{
			name:      "falls through to later preference",
			supported: []string{"audio/mp4"},
			want:      "audio/mp4",
		},
		{
			name:      "nothing supported selects engine default",
			supported: []string{},
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newSessionFixture(t, capture.Target{})
			f.engine.Codecs = tt.supported

			if err := f.sess.Start(context.Background()); err != nil {
				t.Fatalf("Start() error: %v", err)
			}
			if len(f.stream.NewRecorderCalls) != 1 {
				t.Fatalf("NewRecorder calls = %d, want 1", len(f.stream.NewRecorderCalls))
			}
			if got := f.stream.NewRecorderCalls[0]; got != tt.want {
				t.Errorf("negotiated codec = %q, want %q", got, tt.want)
			}
			f.sess.Stop(capture.StopManual)
		})
	}
}
