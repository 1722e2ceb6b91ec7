package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"radiostream/internal/domain"
	"radiostream/internal/domain/ports"
)

// PlaybackController is the playback core as seen by the transport layer:
// admin commands, listener queries and the reconnect replay.
type PlaybackController interface {
	PlayTopNow(ctx context.Context) error
	PlaySpecific(ctx context.Context, id domain.SongID) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetVolume(ctx context.Context, volume int) error
	Stop(ctx context.Context) error
	OnSongEnded(ctx context.Context)
	NoteSongStarted(event domain.PlayEvent)
	NotePosition(ctx context.Context, position float64)
	CurrentSong() *domain.Song
	LockedSlot() (*domain.PreparedSlot, bool)
	PlaybackStateForReconnect(ctx context.Context) (*domain.PlayEvent, bool)
	ClearPresence()
}

// ScheduleRegistrar keeps the cron runner in sync with schedule CRUD.
type ScheduleRegistrar interface {
	AddJob(schedule domain.Schedule) error
	Reload(schedule domain.Schedule) error
	RemoveJob(id domain.ScheduleID)
}

// OfflineLibrary serves the local fallback collection.
type OfflineLibrary interface {
	RandomTrack() (string, error)
	Resolve(name string) (string, error)
}

// AnnouncementFiles maps announcement names to cached audio paths.
type AnnouncementFiles interface {
	CachedFile(name string) (string, error)
}

type Server struct {
	playback       PlaybackController
	scheduler      ScheduleRegistrar
	songs          ports.SongRepository
	schedules      ports.ScheduleRepository
	resolver       ports.StreamResolver
	metadata       ports.MetadataProber
	library        OfflineLibrary
	announcements  AnnouncementFiles
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
	arbiter        *arbiter
}

type ServerOption func(*Server)

func WithSongs(repo ports.SongRepository) ServerOption {
	return func(s *Server) { s.songs = repo }
}

func WithSchedules(repo ports.ScheduleRepository) ServerOption {
	return func(s *Server) { s.schedules = repo }
}

func WithScheduler(registrar ScheduleRegistrar) ServerOption {
	return func(s *Server) { s.scheduler = registrar }
}

func WithResolver(resolver ports.StreamResolver) ServerOption {
	return func(s *Server) { s.resolver = resolver }
}

func WithMetadata(prober ports.MetadataProber) ServerOption {
	return func(s *Server) { s.metadata = prober }
}

func WithLibrary(lib OfflineLibrary) ServerOption {
	return func(s *Server) { s.library = lib }
}

func WithAnnouncements(files AnnouncementFiles) ServerOption {
	return func(s *Server) { s.announcements = files }
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func NewServer(opts ...ServerOption) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/schedules", s.handleSchedules)
	mux.HandleFunc("/schedules/", s.handleScheduleByID)
	mux.HandleFunc("/playback/", s.handlePlayback)
	mux.HandleFunc("/queue", s.handleQueue)
	mux.HandleFunc("/songs/", s.handleSongMetadata)
	mux.HandleFunc("/recently-played", s.handleRecentlyPlayed)
	mux.HandleFunc("/now-playing", s.handleNowPlaying)
	mux.HandleFunc("/stream/", s.handleStream)
	mux.HandleFunc("/stream-offline/", s.handleStreamOffline)
	mux.HandleFunc("/announcements/", s.handleAnnouncement)
	mux.HandleFunc("/internal/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "radio-server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/internal/health"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

// SetPlayback wires the playback controller after construction: the
// controller broadcasts through this server, so it is built second.
func (s *Server) SetPlayback(playback PlaybackController) {
	s.playback = playback
	s.arbiter = newArbiter(playback, s.logger)
	s.wsHub.commands = &wsCommandRouter{
		playback: playback,
		arbiter:  s.arbiter,
		logger:   s.logger,
	}
}

// SetScheduler wires the cron runner after construction.
func (s *Server) SetScheduler(registrar ScheduleRegistrar) {
	s.scheduler = registrar
}

// Broadcast fans a typed event out to every connected listener.
func (s *Server) Broadcast(event string, data any) {
	s.wsHub.Broadcast(event, data)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects every WebSocket client.
func (s *Server) Close() {
	s.wsHub.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.playback == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := newWSClient(s.wsHub, conn)
	s.wsHub.register(client)
	s.sendSnapshot(client)
	go client.writePump()
	go client.readPump()
}

// sendSnapshot brings a fresh connection up to date without a REST
// round-trip: what is playing now and what is locked next.
func (s *Server) sendSnapshot(client *wsClient) {
	if song := s.playback.CurrentSong(); song != nil {
		client.sendEvent(domain.EventCurrentSong, map[string]any{"song": song})
	}
	if slot, ok := s.playback.LockedSlot(); ok {
		client.sendEvent(domain.EventNextSongLocked, domain.LockedNotice{
			Song:            slot.Song,
			HasAnnouncement: slot.Announcement != nil,
			Offline:         slot.Offline,
			DownloadFailed:  slot.DownloadFailed,
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"listeners": s.wsHub.clientCount(),
	})
}

func pathSuffix(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
