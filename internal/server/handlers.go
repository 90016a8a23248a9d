package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/areufunny/areufunny/internal/feed"
	"github.com/areufunny/areufunny/internal/store"
	"github.com/areufunny/areufunny/pkg/capture"
)

// maxUploadBytes caps the audio payload size of a direct publish. One
// minute of Opus at typical web bitrates is well under a megabyte.
const maxUploadBytes = 16 << 20

// handleFeed serves GET /api/feed?tab=hot&limit=10&offset=0.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	tab := store.FeedTab(r.URL.Query().Get("tab"))
	if tab == "" {
		tab = store.FeedHot
	}
	limit := queryInt(r, "limit")
	if limit == 0 {
		limit = s.defaultFeedLimit()
	}
	offset := queryInt(r, "offset")

	page, err := s.cfg.Feed.Page(r.Context(), tab, s.identity(r), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	entries := make([]setDTO, 0, len(page.Entries))
	for _, e := range page.Entries {
		entries = append(entries, toSetDTO(e.Set, e.CallerVote))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"has_more": page.HasMore,
	})
}

// handlePublish serves POST /api/sets: a multipart upload of a finished
// capture (the browser-side capture path; server-side captures publish over
// the WebSocket instead). Fields: audio (file), duration_ms, codec,
// waveform (comma-separated floats).
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed multipart body"})
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file field is required"})
		return
	}
	defer file.Close()
	payload, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable audio payload"})
		return
	}

	durationMS, err := strconv.ParseInt(r.FormValue("duration_ms"), 10, 64)
	if err != nil || durationMS < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration_ms must be a non-negative integer"})
		return
	}
	waveform, err := parseWaveform(r.FormValue("waveform"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res := capture.Result{
		Payload:  payload,
		Duration: time.Duration(durationMS) * time.Millisecond,
		Waveform: waveform,
		Codec:    r.FormValue("codec"),
	}
	set, err := s.cfg.Uploads.Publish(r.Context(), userID, res)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSetDTO(set, 1))
}

// handleGetSet serves GET /api/sets/{id}.
func (s *Server) handleGetSet(w http.ResponseWriter, r *http.Request) {
	set, err := s.cfg.Sets.GetSet(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSetDTO(set, 0))
}

// handleHistory serves GET /api/history?limit=10&offset=0: the caller's own
// sets, newest first, posted or not.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit")
	if limit <= 0 {
		limit = s.defaultFeedLimit()
	}
	if limit <= 0 {
		limit = feed.DefaultPageSize
	}
	if limit > feed.MaxPageSize {
		limit = feed.MaxPageSize
	}
	offset := queryInt(r, "offset")
	if offset < 0 {
		offset = 0
	}

	sets, hasMore, err := s.cfg.Sets.ListSetsByOwner(r.Context(), userID, store.Page{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}
	entries := make([]setDTO, 0, len(sets))
	for _, set := range sets {
		entries = append(entries, toSetDTO(set, 0))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"has_more": hasMore,
	})
}

// handlePost serves POST /api/sets/{id}/post: the owner puts the set on the
// public feed.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Uploads.Post(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleScratch serves DELETE /api/sets/{id}: the owner discards the set
// and its audio.
func (s *Server) handleScratch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Uploads.Scratch(r.Context(), r.PathValue("id"), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleVote serves POST /api/sets/{id}/vote with body {"value": 1|-1}.
func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var body struct {
		Value int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return
	}
	set, err := s.cfg.Feed.Vote(r.Context(), r.PathValue("id"), userID, body.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSetDTO(set, body.Value))
}

// handlePlaybackActive serves GET /api/playback: which of the caller's
// players, if any, is currently playing.
func (s *Server) handlePlaybackActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"active_id": s.coordinatorFor(userID).Active(),
	})
}

// handlePlaybackPlay serves POST /api/playback/{id}/play. Starting one set
// supersedes whichever the user had playing before.
func (s *Server) handlePlaybackPlay(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	c := s.coordinatorFor(userID)
	c.Play(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"active_id": c.Active()})
}

// handlePlaybackPause serves POST /api/playback/{id}/pause. Pausing a set
// that is no longer active is a harmless no-op.
func (s *Server) handlePlaybackPause(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	c := s.coordinatorFor(userID)
	c.Pause(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"active_id": c.Active()})
}

// queryInt parses an integer query parameter, returning 0 when absent or
// malformed (the services apply their own defaults and clamps).
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

// parseWaveform decodes a comma-separated list of amplitude samples.
func parseWaveform(raw string) ([]float64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	samples := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("waveform sample %q is not a number", p)
		}
		samples = append(samples, f)
	}
	return samples, nil
}
