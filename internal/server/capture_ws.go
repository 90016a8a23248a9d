package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/areufunny/areufunny/pkg/capture"
)

// publishTimeout bounds the publish of a finished capture. The publish is
// detached from the socket's context so a disconnect right after stopping
// does not lose the recording.
const publishTimeout = 30 * time.Second

// captureCommand is a client→server frame on the capture socket.
type captureCommand struct {
	// Action is one of "begin", "stop", "cancel", or "ack".
	Action string `json:"action"`
}

// captureEvent is a server→client frame on the capture socket.
type captureEvent struct {
	Type      string  `json:"type"`
	State     string  `json:"state,omitempty"`
	Remaining *int    `json:"remaining,omitempty"`
	Level     float64 `json:"level,omitempty"`
	Error     string  `json:"error,omitempty"`
	Set       *setDTO `json:"set,omitempty"`
}

// handleCapture serves GET /ws/capture: a WebSocket that drives one capture
// flow per connection. The client sends commands ("begin", "stop",
// "cancel", "ack") and receives state transitions, countdown ticks, live
// levels, and finally the published set.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if s.cfg.Engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "capture is not available"})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("capture socket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	sess := &captureSocket{
		server: s,
		userID: userID,
		events: make(chan captureEvent, 64),
	}

	target, countdownFrom := s.captureTuning()
	flow, err := capture.NewFlow(capture.FlowConfig{
		Engine:        s.cfg.Engine,
		Target:        target,
		CountdownFrom: countdownFrom,
		OnState: func(st capture.State) {
			sess.send(captureEvent{Type: "state", State: st.String()})
		},
		OnCountdown: func(remaining int) {
			sess.send(captureEvent{Type: "countdown", Remaining: &remaining})
		},
		OnLevel: func(level float64) {
			// Levels are cosmetic; drop them rather than stall the flow.
			sess.trySend(captureEvent{Type: "level", Level: level})
		},
		OnSlowPreparing: func() {
			sess.send(captureEvent{Type: "slow_preparing"})
		},
		OnComplete: sess.complete,
		OnError: func(err error) {
			s.metrics.RecordCapture(ctx, "error", "", 0)
			sess.send(captureEvent{Type: "error", Error: err.Error()})
		},
	})
	if err != nil {
		slog.Error("capture flow init failed", "err", err)
		return
	}
	sess.flow = flow

	s.metrics.ActiveCaptures.Add(ctx, 1)
	defer s.metrics.ActiveCaptures.Add(ctx, -1)

	// Writer: drain events to the socket.
	writeCtx, stopWriter := context.WithCancel(ctx)
	defer stopWriter()
	go sess.writeLoop(writeCtx, conn)

	// Reader: apply client commands until the socket closes.
	for {
		var cmd captureCommand
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Disconnect mid-attempt abandons the capture.
			sess.gone.Store(true)
			flow.Cancel()
			return
		}
		if err := json.Unmarshal(data, &cmd); err != nil {
			sess.send(captureEvent{Type: "error", Error: "malformed command"})
			continue
		}

		switch cmd.Action {
		case "begin":
			if err := flow.Begin(ctx); err != nil {
				sess.send(captureEvent{Type: "error", Error: err.Error()})
			}
		case "stop":
			flow.Stop()
		case "cancel":
			sess.gone.Store(true)
			flow.Cancel()
			sess.gone.Store(false)
		case "ack":
			flow.Acknowledge()
		default:
			sess.send(captureEvent{Type: "error", Error: "unknown action " + cmd.Action})
		}
	}
}

// captureSocket holds the per-connection capture state.
type captureSocket struct {
	server *Server
	userID string
	flow   *capture.Flow
	events chan captureEvent

	// gone marks the capture abandoned: results delivered while set are
	// discarded instead of published.
	gone atomic.Bool
}

// send enqueues an event, blocking until there is room.
func (c *captureSocket) send(ev captureEvent) {
	c.events <- ev
}

// trySend enqueues an event if the buffer has room, dropping it otherwise.
func (c *captureSocket) trySend(ev captureEvent) {
	select {
	case c.events <- ev:
	default:
	}
}

// writeLoop drains events to the socket until ctx ends.
func (c *captureSocket) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("capture event marshal failed", "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// complete publishes a finished capture and reports the stored set back
// over the socket. Cancelled attempts are discarded.
func (c *captureSocket) complete(res capture.Result) {
	if c.gone.Load() {
		c.server.metrics.RecordCapture(context.Background(), "cancelled", "", 0)
		return
	}
	c.server.metrics.RecordCapture(context.Background(), "completed", "", res.Duration)

	go c.publish(res)
}

// publish stores a finished capture and reports the result. The socket may
// be gone by the time the publish finishes; the writer no longer drains, so
// the result events must never block.
func (c *captureSocket) publish(res capture.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	set, err := c.server.cfg.Uploads.Publish(ctx, c.userID, res)
	if err != nil {
		c.trySend(captureEvent{Type: "publish_error", Error: err.Error()})
		return
	}
	dto := toSetDTO(set, 1)
	c.trySend(captureEvent{Type: "published", Set: &dto})
}
