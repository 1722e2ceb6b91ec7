package apihttp

import (
	"errors"
	"net/http"
	"strings"

	"radiostream/internal/domain"
)

type volumeRequest struct {
	Volume int `json:"volume"`
}

// handlePlayback routes the /playback/* admin command surface. Every
// endpoint here mirrors a WebSocket command so a control panel can use
// plain HTTP.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	if s.playback == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "playback not initialized")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	action := strings.Trim(pathSuffix(r.URL.Path, "/playback/"), "/")
	switch {
	case action == "next":
		if err := s.playback.PlayTopNow(r.Context()); err != nil {
			s.writePlaybackError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "playing"})

	case strings.HasPrefix(action, "play/"):
		songID := domain.SongID(strings.TrimPrefix(action, "play/"))
		if songID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "song id is required")
			return
		}
		if err := s.playback.PlaySpecific(r.Context(), songID); err != nil {
			s.writePlaybackError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "playing"})

	case action == "pause":
		if err := s.playback.Pause(r.Context()); err != nil {
			s.writePlaybackError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})

	case action == "resume":
		if err := s.playback.Resume(r.Context()); err != nil {
			s.writePlaybackError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "playing"})

	case action == "volume":
		var req volumeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
		if err := s.playback.SetVolume(r.Context(), req.Volume); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"volume": req.Volume})

	case action == "stop":
		if err := s.playback.Stop(r.Context()); err != nil {
			s.writePlaybackError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})

	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown playback action")
	}
}

func (s *Server) writePlaybackError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrQueueEmpty) {
		writeError(w, http.StatusConflict, "queue_empty", "the queue is empty")
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "song not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "playback_error", err.Error())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	songs, err := s.songs.Queue(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"songs": songs})
}

func (s *Server) handleRecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	limit, err := parseOptionalIntQuery(r.URL.Query().Get("limit"), 20)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	songs, err := s.songs.RecentlyPlayed(r.Context(), limit)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"songs": songs})
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.playback == nil {
		writeJSON(w, http.StatusOK, map[string]any{"song": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"song": s.playback.CurrentSong()})
}
