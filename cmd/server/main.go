package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"radiostream/internal/announcer"
	apihttp "radiostream/internal/api/http"
	"radiostream/internal/app"
	"radiostream/internal/extractor"
	"radiostream/internal/library"
	"radiostream/internal/metrics"
	"radiostream/internal/playback"
	mongorepo "radiostream/internal/repository/mongo"
	"radiostream/internal/scheduler"
	"radiostream/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "radio-server")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "radio-server"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("libraryDir", cfg.LibraryDir),
		slog.String("timezone", cfg.Timezone),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoMonitor := otelmongo.NewMonitor()
	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(mongoMonitor))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	songRepo := mongorepo.NewSongRepository(mongoClient, cfg.MongoDatabase)
	scheduleRepo := mongorepo.NewScheduleRepository(mongoClient, cfg.MongoDatabase)
	stateRepo := mongorepo.NewPlaybackStateRepository(mongoClient, cfg.MongoDatabase)
	chatRepo := mongorepo.NewChatRepository(mongoClient, cfg.MongoDatabase)

	if err := songRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("song index creation failed", slog.String("error", err.Error()))
	}
	if err := scheduleRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("schedule index creation failed", slog.String("error", err.Error()))
	}
	if err := chatRepo.EnsureIndexes(ctx); err != nil {
		logger.Warn("chat index creation failed", slog.String("error", err.Error()))
	}

	ytdlp := extractor.New(cfg.YTDLPPath)
	resolver := extractor.NewCache(ytdlp, time.Duration(cfg.StreamURLTTLSecs)*time.Second)
	resolver.StartSweeping(rootCtx, time.Minute)

	dj := announcer.New(cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAITTSVoice, cfg.TTSCacheDir, logger)
	offlineLib := library.New(cfg.LibraryDir)

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, falling back to local",
			slog.String("timezone", cfg.Timezone),
			slog.String("error", err.Error()))
		location = time.Local
	}

	handler := apihttp.NewServer(
		apihttp.WithSongs(songRepo),
		apihttp.WithSchedules(scheduleRepo),
		apihttp.WithResolver(resolver),
		apihttp.WithMetadata(ytdlp),
		apihttp.WithLibrary(offlineLib),
		apihttp.WithAnnouncements(dj),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithLogger(logger),
	)

	slots := playback.NewSlotStore()
	prefetcher := playback.NewPrefetcher(songRepo, resolver, dj, offlineLib, handler, slots, logger)
	controller := playback.NewController(songRepo, scheduleRepo, stateRepo, resolver, dj, offlineLib, slots, handler, logger)
	if err := controller.LoadState(ctx); err != nil {
		logger.Warn("playback state load failed", slog.String("error", err.Error()))
	}

	// The server broadcasts for the controller and the controller serves the
	// server's commands, so playback is wired after both exist.
	handler.SetPlayback(controller)

	sched := scheduler.NewScheduler(scheduleRepo, chatRepo, controller, prefetcher, location, logger)
	if err := sched.Initialize(ctx); err != nil {
		logger.Error("scheduler init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handler.SetScheduler(sched)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sched.Stop()
	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
