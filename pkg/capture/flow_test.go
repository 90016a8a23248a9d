package capture_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/areufunny/areufunny/pkg/capture"
	"github.com/areufunny/areufunny/pkg/capture/mock"
)

type flowFixture struct {
	clock  *mock.Clock
	engine *mock.Engine
	stream *mock.Stream

	states  chan capture.State
	counts  chan int
	slow    chan struct{}
	results chan capture.Result
	errs    chan error

	flow *capture.Flow
}

func newFlowFixture(t *testing.T, target capture.Target) *flowFixture {
	t.Helper()

	f := &flowFixture{
		clock:   mock.NewClock(time.Unix(0, 0)),
		states:  make(chan capture.State, 32),
		counts:  make(chan int, 32),
		slow:    make(chan struct{}, 4),
		results: make(chan capture.Result, 4),
		errs:    make(chan error, 4),
	}
	f.stream = &mock.Stream{
		NewRecorderResult: &mock.Recorder{
			StopPayload: []byte("encoded-audio"),
			StopCodec:   "audio/webm;codecs=opus",
		},
	}
	f.engine = &mock.Engine{AcquireResult: f.stream}

	flow, err := capture.NewFlow(capture.FlowConfig{
		Engine:            f.engine,
		Target:            target,
		Clock:             f.clock,
		CountdownFrom:     3,
		CountdownInterval: time.Second,
		OnState:           func(s capture.State) { f.states <- s },
		OnCountdown:       func(r int) { f.counts <- r },
		OnSlowPreparing:   func() { f.slow <- struct{}{} },
		OnComplete:        func(r capture.Result) { f.results <- r },
		OnError:           func(err error) { f.errs <- err },
	})
	if err != nil {
		t.Fatalf("NewFlow() error: %v", err)
	}
	f.flow = flow
	return f
}

// waitState consumes state notifications until want arrives. The recorder
// start runs on its own goroutine, so tests must rendezvous on state before
// advancing the clock further.
func (f *flowFixture) waitState(t *testing.T, want capture.State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-f.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s (flow is %s)", want, f.flow.State())
		}
	}
}

func (f *flowFixture) waitResult(t *testing.T) capture.Result {
	t.Helper()
	select {
	case r := <-f.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for capture result")
		return capture.Result{}
	}
}

func TestFlow_FullAttempt(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t, capture.Target{
		Duration:      600 * time.Millisecond,
		SampleCadence: 150 * time.Millisecond,
	})

	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	f.waitState(t, capture.StateCountingDown)

	f.clock.Advance(3 * time.Second)
	f.waitState(t, capture.StatePreparing)
	f.waitState(t, capture.StateRecording)

	var counts []int
	for len(counts) < 4 {
		select {
		case c := <-f.counts:
			counts = append(counts, c)
		case <-time.After(2 * time.Second):
			t.Fatalf("countdown values = %v, want [3 2 1 0]", counts)
		}
	}
	for i, want := range []int{3, 2, 1, 0} {
		if counts[i] != want {
			t.Fatalf("countdown values = %v, want [3 2 1 0]", counts)
		}
	}

	f.clock.Advance(600 * time.Millisecond)
	res := f.waitResult(t)
	if res.Duration != 600*time.Millisecond {
		t.Errorf("Duration = %v, want %v", res.Duration, 600*time.Millisecond)
	}
	if string(res.Payload) != "encoded-audio" {
		t.Errorf("Payload = %q, want %q", res.Payload, "encoded-audio")
	}

	f.waitState(t, capture.StateStopped)
	f.waitState(t, capture.StateIdle)
	if !f.stream.Released() {
		t.Error("stream was not released after the attempt")
	}
	if n := f.clock.Pending(); n != 0 {
		t.Errorf("pending timers after attempt = %d, want 0", n)
	}
}

func TestFlow_ManualStop(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t, capture.Target{})

	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	f.clock.Advance(3 * time.Second)
	f.waitState(t, capture.StateRecording)

	f.clock.Advance(300 * time.Millisecond)
	f.flow.Stop()

	res := f.waitResult(t)
	if res.Duration != 300*time.Millisecond {
		t.Errorf("Duration = %v, want %v", res.Duration, 300*time.Millisecond)
	}
	f.waitState(t, capture.StateIdle)
}

func TestFlow_CancelDuringCountdown(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t, capture.Target{})

	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	f.clock.Advance(time.Second)
	f.flow.Cancel()
	f.waitState(t, capture.StateIdle)

	f.clock.Advance(10 * time.Second)
	if f.engine.CallCountAcquire != 0 {
		t.Errorf("Acquire calls = %d, want 0 for a cancelled countdown", f.engine.CallCountAcquire)
	}
	select {
	case r := <-f.results:
		t.Errorf("unexpected result after cancel: %+v", r)
	default:
	}
	if got := f.flow.State(); got != capture.StateIdle {
		t.Errorf("State() = %s, want %s", got, capture.StateIdle)
	}
}

func TestFlow_SlowPreparingNotice(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t, capture.Target{})
	gate := make(chan struct{})
	f.engine.AcquireGate = gate
	f.engine.AcquireStarted = make(chan struct{})

	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	f.clock.Advance(3 * time.Second)
	f.waitState(t, capture.StatePreparing)
	<-f.engine.AcquireStarted

	// Acquisition is stuck on the gate; crossing the notice threshold must
	// surface the slow-preparing signal without changing state.
	f.clock.Advance(capture.DefaultPreparingNotice)
	select {
	case <-f.slow:
	case <-time.After(2 * time.Second):
		t.Fatal("slow-preparing notice never fired")
	}
	if got := f.flow.State(); got != capture.StatePreparing {
		t.Errorf("State() = %s, want %s", got, capture.StatePreparing)
	}

	close(gate)
	f.waitState(t, capture.StateRecording)

	f.flow.Cancel()
	f.waitResult(t)
	f.waitState(t, capture.StateIdle)
}

func TestFlow_CancelDuringPreparingReleasesStream(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t, capture.Target{})
	gate := make(chan struct{})
	f.engine.AcquireGate = gate
	f.engine.AcquireStarted = make(chan struct{})

	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	f.clock.Advance(3 * time.Second)
	f.waitState(t, capture.StatePreparing)
	<-f.engine.AcquireStarted

	f.flow.Cancel()
	f.waitState(t, capture.StateIdle)
	close(gate)

	// The acquisition goroutine finishes after the cancel; it must release
	// the stream it obtained and deliver nothing.
	deadline := time.After(2 * time.Second)
	for !f.stream.Released() {
		select {
		case <-deadline:
			t.Fatal("stream acquired mid-cancel was never released")
		case <-time.After(time.Millisecond):
		}
	}
	select {
	case r := <-f.results:
		t.Errorf("unexpected result after cancel: %+v", r)
	default:
	}
}

func TestFlow_AcquireFailureEntersErrored(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t, capture.Target{})
	f.engine.AcquireResult = nil
	f.engine.AcquireError = fmt.Errorf("input device: %w", capture.ErrPermissionDenied)

	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	f.clock.Advance(3 * time.Second)
	f.waitState(t, capture.StateErrored)

	select {
	case err := <-f.errs:
		if !errors.Is(err, capture.ErrPermissionDenied) {
			t.Errorf("attempt error = %v, want wrap of %v", err, capture.ErrPermissionDenied)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("attempt error never surfaced")
	}

	// Errored is retryable: a new Begin starts a fresh countdown.
	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() after failure error: %v", err)
	}
	f.waitState(t, capture.StateCountingDown)
	f.flow.Cancel()
}

func TestFlow_BeginWhileActiveFails(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t, capture.Target{})
	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if err := f.flow.Begin(context.Background()); err == nil {
		t.Error("second Begin() returned nil, want error")
	}
	f.flow.Cancel()
}

func TestFlow_AcknowledgeClearsError(t *testing.T) {
	t.Parallel()

	f := newFlowFixture(t, capture.Target{})
	f.engine.AcquireResult = nil
	f.engine.AcquireError = capture.ErrDeviceNotFound

	if err := f.flow.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	f.clock.Advance(3 * time.Second)
	f.waitState(t, capture.StateErrored)

	f.flow.Acknowledge()
	if got := f.flow.State(); got != capture.StateIdle {
		t.Errorf("State() = %s, want %s", got, capture.StateIdle)
	}
}
