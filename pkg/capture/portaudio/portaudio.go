// Package portaudio implements the capture hardware abstraction on top of
// the PortAudio default input device, encoding to Opus with gopus.
//
// The engine records mono 48 kHz audio in 20 ms frames. Payloads are raw
// Opus packets with a 2-byte big-endian length prefix per packet (codec
// identifier "audio/opus"); none of the browser container identifiers in
// [capture.PreferredCodecs] are claimed, so codec negotiation falls through
// to the engine default.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"layeh.com/gopus"

	"github.com/areufunny/areufunny/pkg/audio"
	"github.com/areufunny/areufunny/pkg/capture"
)

const (
	sampleRate = 48000
	channels   = 1

	// frameSize is the number of samples per 20 ms frame, the Opus native
	// frame length.
	frameSize = sampleRate * 20 / 1000 // 960

	// maxPacketBytes bounds one encoded Opus packet.
	maxPacketBytes = 4000
)

// Codec is the identifier this engine records with: length-prefixed raw
// Opus packets.
const Codec = "audio/opus"

// Engine acquires the default PortAudio input device. The zero value is
// ready to use.
type Engine struct{}

// NewEngine returns a PortAudio-backed [capture.Engine].
func NewEngine() *Engine { return &Engine{} }

var _ capture.Engine = (*Engine)(nil)

// SupportsCodec implements [capture.Engine]. Only the engine's own raw
// Opus identifier is claimed; negotiation against the browser-style
// preference list therefore selects the engine default.
func (e *Engine) SupportsCodec(id string) bool {
	return id == Codec
}

// Acquire implements [capture.Engine]: it initialises PortAudio, opens the
// default mono input stream, and starts the frame pump. Acquisition runs on
// its own goroutine so a stalled device never outlives ctx; a stream opened
// after cancellation is released in the background.
func (e *Engine) Acquire(ctx context.Context) (capture.Stream, error) {
	type outcome struct {
		s   *stream
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		s, err := openDefaultStream()
		done <- outcome{s, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if o := <-done; o.s != nil {
				o.s.Release()
			}
		}()
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		return o.s, nil
	}
}

// openDefaultStream opens and starts the default input device.
func openDefaultStream() (*stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", capture.ErrSecurityRestriction, err)
	}

	buf := make([]float32, frameSize)
	pa, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), frameSize, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, wrapOpenError(err)
	}
	if err := pa.Start(); err != nil {
		pa.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start input stream: %v", capture.ErrDeviceNotFound, err)
	}

	s := &stream{
		pa:     pa,
		buf:    buf,
		frames: make(chan []float32, 8),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// wrapOpenError maps a PortAudio open failure onto the capture sentinels.
func wrapOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no default input device"),
		strings.Contains(msg, "invalid device"),
		strings.Contains(msg, "device unavailable"):
		return fmt.Errorf("%w: %v", capture.ErrDeviceNotFound, err)
	case strings.Contains(msg, "permission"),
		strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", capture.ErrPermissionDenied, err)
	default:
		return fmt.Errorf("capture: open input stream: %w", err)
	}
}

// stream is an open PortAudio input stream: one pump goroutine reads frames
// from the device, keeps the analyser tap fresh, and forwards frames to the
// recorder while one is running.
type stream struct {
	pa  *portaudio.Stream
	buf []float32

	mu        sync.Mutex
	tap       [frameSize]byte
	tapLen    int
	recording bool

	frames  chan []float32
	done    chan struct{}
	release sync.Once
}

var _ capture.Stream = (*stream)(nil)

// pump reads device frames until the stream is released.
func (s *stream) pump() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.pa.Read(); err != nil {
			// Overflows just lose a frame; anything else ends the pump.
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			return
		}

		s.mu.Lock()
		for i, sample := range s.buf {
			s.tap[i] = audio.FloatToByte(sample)
		}
		s.tapLen = len(s.buf)
		recording := s.recording
		s.mu.Unlock()

		if recording {
			frame := make([]float32, len(s.buf))
			copy(frame, s.buf)
			select {
			case s.frames <- frame:
			default:
				// Encoder fell behind; drop the frame rather than block
				// the device read.
			}
		}
	}
}

// Analyser implements [capture.Stream].
func (s *stream) Analyser() capture.Analyser {
	return &analyser{s: s}
}

// NewRecorder implements [capture.Stream]. Only the engine default codec
// (empty string) and [Codec] itself are accepted.
func (s *stream) NewRecorder(codec string) (capture.Recorder, error) {
	if codec != "" && codec != Codec {
		return nil, fmt.Errorf("capture: codec %q is not recordable by the portaudio engine", codec)
	}
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("capture: create opus encoder: %w", err)
	}
	return &recorder{s: s, enc: enc, stop: make(chan struct{})}, nil
}

// Release implements [capture.Stream]. Idempotent.
func (s *stream) Release() {
	s.release.Do(func() {
		close(s.done)
		s.pa.Stop()
		s.pa.Close()
		portaudio.Terminate()
	})
}

// analyser serves the latest device frame as 8-bit unsigned samples.
type analyser struct {
	s *stream
}

var _ capture.Analyser = (*analyser)(nil)

// TimeDomain implements [capture.Analyser].
func (a *analyser) TimeDomain(buf []byte) int {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	n := copy(buf, a.s.tap[:a.s.tapLen])
	return n
}

// recorder encodes pumped frames to Opus on its own goroutine.
type recorder struct {
	s   *stream
	enc *gopus.Encoder

	mu      sync.Mutex
	payload bytes.Buffer

	stop    chan struct{}
	stopped sync.WaitGroup
	started bool
}

var _ capture.Recorder = (*recorder)(nil)

// Start implements [capture.Recorder].
func (r *recorder) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("capture: recorder already started")
	}
	r.started = true
	r.mu.Unlock()

	r.s.mu.Lock()
	r.s.recording = true
	r.s.mu.Unlock()

	r.stopped.Add(1)
	go r.encodeLoop()
	return nil
}

// encodeLoop drains frames into the payload until stopped.
func (r *recorder) encodeLoop() {
	defer r.stopped.Done()
	for {
		select {
		case <-r.stop:
			// Drain whatever the pump already queued.
			for {
				select {
				case frame := <-r.s.frames:
					r.encodeFrame(frame)
				default:
					return
				}
			}
		case frame := <-r.s.frames:
			r.encodeFrame(frame)
		}
	}
}

// encodeFrame appends one length-prefixed Opus packet to the payload.
func (r *recorder) encodeFrame(frame []float32) {
	pcm := make([]int16, len(frame))
	audio.FloatsToInt16(pcm, frame)
	packet, err := r.enc.Encode(pcm, frameSize, maxPacketBytes)
	if err != nil {
		return
	}

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(packet)))
	r.mu.Lock()
	r.payload.Write(prefix[:])
	r.payload.Write(packet)
	r.mu.Unlock()
}

// Stop implements [capture.Recorder].
func (r *recorder) Stop() ([]byte, string, error) {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil, Codec, nil
	}

	r.s.mu.Lock()
	r.s.recording = false
	r.s.mu.Unlock()

	close(r.stop)
	r.stopped.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payload.Bytes(), Codec, nil
}
