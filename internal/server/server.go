// Package server exposes the areufunny HTTP surface: the public feed, set
// lifecycle endpoints, the playback coordinator, and the capture WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/areufunny/areufunny/internal/feed"
	"github.com/areufunny/areufunny/internal/health"
	"github.com/areufunny/areufunny/internal/observe"
	"github.com/areufunny/areufunny/internal/playback"
	"github.com/areufunny/areufunny/internal/resilience"
	"github.com/areufunny/areufunny/internal/store"
	"github.com/areufunny/areufunny/internal/upload"
	"github.com/areufunny/areufunny/pkg/capture"
)

// shutdownTimeout bounds graceful HTTP shutdown after ctx cancellation.
const shutdownTimeout = 10 * time.Second

// Config holds the dependencies for a [Server].
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., ":8080").
	ListenAddr string

	// Feed serves feed pages and votes. Required.
	Feed *feed.Service

	// Uploads publishes, posts, and scratches sets. Required.
	Uploads *upload.Pipeline

	// Sets is used for direct set reads. Required.
	Sets store.SetStore

	// Engine provides microphone access for server-driven capture
	// sessions. When nil, /ws/capture responds 503.
	Engine capture.Engine

	// CaptureTarget configures capture attempts started over the
	// WebSocket. Zero values take the capture package defaults.
	CaptureTarget capture.Target

	// CountdownFrom is the pre-capture countdown start. Zero takes the
	// capture package default.
	CountdownFrom int

	// FeedPageSize is the page size used when a feed request does not ask
	// for one. Zero takes [feed.DefaultPageSize].
	FeedPageSize int

	// Metrics records HTTP and domain instruments. Nil takes
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Identity extracts the calling user's ID from a request. Nil takes
	// [HeaderIdentity].
	Identity func(*http.Request) string

	// Checkers are added to the /readyz readiness probe.
	Checkers []health.Checker

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// HeaderIdentity reads the user ID from the X-User-ID header. The identity
// proxy in front of the server is trusted to have authenticated it.
func HeaderIdentity(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// Server is the areufunny HTTP server. Create one with [New] and drive it
// with [Server.Run].
type Server struct {
	cfg      Config
	metrics  *observe.Metrics
	identity func(*http.Request) string
	handler  http.Handler

	// tuneMu guards the hot-reloadable knobs below. New requests and
	// capture sessions pick up the current values.
	tuneMu        sync.Mutex
	captureTarget capture.Target
	countdownFrom int
	feedPageSize  int

	// players holds one playback coordinator per user so all of a user's
	// open tabs agree on which set is playing.
	playersMu sync.Mutex
	players   map[string]*playback.Coordinator
}

// New creates a Server with all routes registered.
func New(cfg Config) (*Server, error) {
	var errs []error
	if cfg.Feed == nil {
		errs = append(errs, errors.New("server: feed service is required"))
	}
	if cfg.Uploads == nil {
		errs = append(errs, errors.New("server: upload pipeline is required"))
	}
	if cfg.Sets == nil {
		errs = append(errs, errors.New("server: set store is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	s := &Server{
		cfg:           cfg,
		metrics:       cfg.Metrics,
		identity:      cfg.Identity,
		captureTarget: cfg.CaptureTarget,
		countdownFrom: cfg.CountdownFrom,
		feedPageSize:  cfg.FeedPageSize,
		players:       make(map[string]*playback.Coordinator),
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.identity == nil {
		s.identity = HeaderIdentity
	}

	mux := http.NewServeMux()
	s.routes(mux)
	health.New(cfg.Checkers...).Register(mux)
	s.handler = observe.Middleware(s.metrics)(mux)
	return s, nil
}

// Handler returns the server's root handler, middleware included. Exposed
// for tests driving the server through httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// SetCaptureTuning replaces the capture target and countdown start for
// sessions opened after the call. Active sessions are untouched.
func (s *Server) SetCaptureTuning(target capture.Target, countdownFrom int) {
	s.tuneMu.Lock()
	defer s.tuneMu.Unlock()
	s.captureTarget = target
	s.countdownFrom = countdownFrom
}

// SetFeedPageSize replaces the default feed page size for subsequent
// requests.
func (s *Server) SetFeedPageSize(n int) {
	s.tuneMu.Lock()
	defer s.tuneMu.Unlock()
	s.feedPageSize = n
}

func (s *Server) captureTuning() (capture.Target, int) {
	s.tuneMu.Lock()
	defer s.tuneMu.Unlock()
	return s.captureTarget, s.countdownFrom
}

func (s *Server) defaultFeedLimit() int {
	s.tuneMu.Lock()
	defer s.tuneMu.Unlock()
	return s.feedPageSize
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/feed", s.handleFeed)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/sets", s.handlePublish)
	mux.HandleFunc("GET /api/sets/{id}", s.handleGetSet)
	mux.HandleFunc("POST /api/sets/{id}/post", s.handlePost)
	mux.HandleFunc("DELETE /api/sets/{id}", s.handleScratch)
	mux.HandleFunc("POST /api/sets/{id}/vote", s.handleVote)
	mux.HandleFunc("GET /api/playback", s.handlePlaybackActive)
	mux.HandleFunc("POST /api/playback/{id}/play", s.handlePlaybackPlay)
	mux.HandleFunc("POST /api/playback/{id}/pause", s.handlePlaybackPause)
	mux.HandleFunc("GET /ws/capture", s.handleCapture)
	// The OTel Prometheus exporter registers into the default registry.
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", s.cfg.ListenAddr, "tls", s.cfg.TLSCertFile != "")
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			err = srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// coordinatorFor returns the playback coordinator shared by all of userID's
// connections, creating it on first use.
func (s *Server) coordinatorFor(userID string) *playback.Coordinator {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	c, ok := s.players[userID]
	if !ok {
		c = playback.NewCoordinator()
		s.players[userID] = c
	}
	return c
}

// ─── Response helpers ────────────────────────────────────────────────────────

// setDTO is the JSON shape of a set in API responses.
type setDTO struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	AudioURL   string    `json:"audio_url"`
	DurationMS int64     `json:"duration_ms"`
	Waveform   []float64 `json:"waveform"`
	Codec      string    `json:"codec"`
	Posted     bool      `json:"posted"`
	UpVotes    int       `json:"up_votes"`
	DownVotes  int       `json:"down_votes"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
	CallerVote int       `json:"caller_vote"`
}

func toSetDTO(set store.Set, callerVote int) setDTO {
	return setDTO{
		ID:         set.ID,
		OwnerID:    set.OwnerID,
		AudioURL:   set.AudioURL,
		DurationMS: set.Duration.Milliseconds(),
		Waveform:   set.Waveform,
		Codec:      set.Codec,
		Posted:     set.Posted,
		UpVotes:    set.UpVotes,
		DownVotes:  set.DownVotes,
		Score:      set.Score(),
		CreatedAt:  set.CreatedAt,
		CallerVote: callerVote,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

// writeError maps domain sentinels onto HTTP status codes and emits a JSON
// error body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrSetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrInvalidVote),
		errors.Is(err, feed.ErrUnknownTab),
		errors.Is(err, upload.ErrEmptyPayload),
		errors.Is(err, upload.ErrBelowMinimumDuration):
		status = http.StatusBadRequest
	case errors.Is(err, upload.ErrDailyLimitReached):
		status = http.StatusTooManyRequests
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		// Do not leak internals to clients.
		err = errors.New("internal error")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requireUser resolves the caller's identity, writing a 401 when absent.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := s.identity(r)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}
	return userID, true
}
