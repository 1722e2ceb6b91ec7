package apihttp

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"radiostream/internal/domain"
)

// cacheInvalidator is implemented by resolvers that cache resolutions.
type cacheInvalidator interface {
	Invalidate(externalURL string)
}

// handleStream redirects the player to a direct audio URL for a queued
// song. Resolution goes through the caching resolver, so a pre-fetched
// song redirects without touching the extractor again. When extraction
// fails the player is pointed at a random offline track instead, so an
// airing never stalls on a dead link.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	songID := domain.SongID(strings.Trim(pathSuffix(r.URL.Path, "/stream/"), "/"))
	if songID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "song id is required")
		return
	}

	song, err := s.songs.Get(r.Context(), songID)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	// A player that hit a dead direct URL retries with refresh=1 to force
	// re-extraction instead of being served the same stale cache entry.
	if r.URL.Query().Get("refresh") == "1" {
		if inv, ok := s.resolver.(cacheInvalidator); ok {
			inv.Invalidate(song.URL)
			s.logger.Info("stream cache invalidated on refresh",
				slog.String("songId", string(songID)))
		}
	}

	streamURL, err := s.resolver.ResolveStreamURL(r.Context(), song.URL)
	if err != nil {
		s.logger.Warn("stream resolution failed, falling back to offline library",
			slog.String("songId", string(songID)),
			slog.String("error", err.Error()))
		track, libErr := s.library.RandomTrack()
		if libErr != nil {
			writeError(w, http.StatusBadGateway, "extraction_failed", "stream unavailable")
			return
		}
		http.Redirect(w, r, "/stream-offline/"+track, http.StatusFound)
		return
	}

	http.Redirect(w, r, streamURL, http.StatusFound)
}

// handleStreamOffline serves a track from the local fallback library.
// http.ServeFile handles byte ranges, so seeking works for free.
func (s *Server) handleStreamOffline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	name := strings.Trim(pathSuffix(r.URL.Path, "/stream-offline/"), "/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "file name is required")
		return
	}

	path, err := s.library.Resolve(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "track not found")
		return
	}
	w.Header().Set("Content-Type", audioContentType(filepath.Ext(path)))
	http.ServeFile(w, r, path)
}

// handleAnnouncement serves synthesized DJ intro audio from the TTS cache.
func (s *Server) handleAnnouncement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	name := strings.Trim(pathSuffix(r.URL.Path, "/announcements/"), "/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "file name is required")
		return
	}

	path, err := s.announcements.CachedFile(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "announcement not found")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

// handleSongMetadata probes a queued song's external source live, so an
// admin can check whether a link is still playable before it airs.
// GET /songs/{id}/metadata
func (s *Server) handleSongMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	rest := strings.Trim(pathSuffix(r.URL.Path, "/songs/"), "/")
	id, ok := strings.CutSuffix(rest, "/metadata")
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "not_found", "unknown song resource")
		return
	}
	if s.metadata == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "metadata probing is not configured")
		return
	}

	song, err := s.songs.Get(r.Context(), domain.SongID(id))
	if err != nil {
		writeRepoError(w, err)
		return
	}

	info, err := s.metadata.Metadata(r.Context(), song.URL)
	if err != nil {
		s.logger.Warn("metadata probe failed",
			slog.String("songId", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "extraction_failed", "metadata unavailable")
		return
	}
	writeJSON(w, http.StatusOK, info)
}
