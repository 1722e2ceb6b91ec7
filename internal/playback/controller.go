package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"radiostream/internal/domain"
	"radiostream/internal/domain/ports"
	"radiostream/internal/metrics"
)

const (
	// reentryWindow makes a cron firing a no-op when the same schedule was
	// already played, typically by the admin consuming the locked slot
	// early.
	reentryWindow = 10 * time.Minute

	// replayWindow bounds how stale a cached play event may be and still
	// be replayed to a reconnecting admin.
	replayWindow = 10 * time.Minute
)

// Controller owns every "what plays next" decision: scheduled firings,
// manual admin commands and auto-next burst chaining all funnel through
// it.
type Controller struct {
	songs       ports.SongRepository
	schedules   ports.ScheduleRepository
	state       ports.PlaybackStateRepository
	resolver    ports.StreamResolver
	announcer   ports.Announcer
	library     ports.Library
	slots       *SlotStore
	broadcaster ports.Broadcaster
	logger      *slog.Logger

	Now func() time.Time

	mu               sync.Mutex
	remainingInBurst int
	nextPrepared     *domain.PreparedSlot
	currentlyPlaying *domain.Song
	playbackCache    *domain.PlayEvent
	volume           int
}

func NewController(
	songs ports.SongRepository,
	schedules ports.ScheduleRepository,
	state ports.PlaybackStateRepository,
	resolver ports.StreamResolver,
	announcer ports.Announcer,
	library ports.Library,
	slots *SlotStore,
	broadcaster ports.Broadcaster,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		songs:       songs,
		schedules:   schedules,
		state:       state,
		resolver:    resolver,
		announcer:   announcer,
		library:     library,
		slots:       slots,
		broadcaster: broadcaster,
		logger:      logger,
		Now:         time.Now,
		volume:      50,
	}
}

// LoadState picks up the persisted volume on startup.
func (c *Controller) LoadState(ctx context.Context) error {
	state, err := c.state.GetCurrent(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.volume = state.Volume
	c.mu.Unlock()
	return nil
}

// ExecuteSchedule is the cron firing entry point. A schedule whose lastRun
// is within the re-entry window is skipped: the admin already consumed its
// locked slot.
func (c *Controller) ExecuteSchedule(ctx context.Context, schedule domain.Schedule) {
	now := c.Now()
	if !schedule.LastRun.IsZero() && now.Sub(schedule.LastRun) < reentryWindow {
		c.logger.Info("schedule already ran recently, skipping",
			slog.String("scheduleId", string(schedule.ID)),
			slog.Time("lastRun", schedule.LastRun))
		metrics.ScheduleRunsTotal.WithLabelValues("skipped").Inc()
		return
	}
	if err := c.schedules.SetLastRun(ctx, schedule.ID, now); err != nil {
		c.logger.Warn("failed to record lastRun",
			slog.String("scheduleId", string(schedule.ID)),
			slog.String("error", err.Error()))
	}

	c.mu.Lock()
	c.remainingInBurst = schedule.SongCount - 1
	if c.remainingInBurst < 0 {
		c.remainingInBurst = 0
	}
	c.nextPrepared = nil
	c.volume = schedule.Volume
	remaining := c.remainingInBurst
	c.mu.Unlock()

	slot, ok := c.slots.Take(schedule.ID)
	if !ok {
		// Pre-fetch never ran or was discarded; select synchronously.
		slot = c.prepareNow(ctx)
	}
	c.play(ctx, slot, schedule.Volume, remaining > 0)

	if remaining > 0 {
		go c.prefillNext()
	}
	metrics.ScheduleRunsTotal.WithLabelValues("executed").Inc()
}

// PlayTopNow is the admin "Next" button. A locked slot always wins over a
// freshly computed top; consuming it marks the schedule's lastRun so the
// impending cron firing self-skips.
func (c *Controller) PlayTopNow(ctx context.Context) error {
	c.resetBurst()

	if id, slot, ok := c.slots.TakeAny(); ok {
		if err := c.schedules.SetLastRun(ctx, id, c.Now()); err != nil {
			c.logger.Warn("failed to record lastRun for early trigger",
				slog.String("scheduleId", string(id)),
				slog.String("error", err.Error()))
		}
		c.play(ctx, slot, c.currentVolume(), false)
		return nil
	}

	// No slot ready: abort any in-flight preparation and select live.
	c.slots.CancelAll()
	slot := c.prepareNow(ctx)
	c.play(ctx, slot, c.currentVolume(), false)
	return nil
}

// PlaySpecific airs an explicit song chosen by the admin.
func (c *Controller) PlaySpecific(ctx context.Context, id domain.SongID) error {
	c.resetBurst()

	song, err := c.songs.Get(ctx, id)
	if err != nil {
		return err
	}
	if !song.Played {
		if err := c.songs.Reserve(ctx, song.ID, c.Now()); err != nil {
			return err
		}
	}

	streamURL, err := c.resolver.ResolveStreamURL(ctx, song.URL)
	if err != nil {
		if !song.Played {
			c.restore(song.ID)
		}
		return fmt.Errorf("stream resolution failed: %w", err)
	}

	slot := &domain.PreparedSlot{
		Song:         &song,
		StreamURL:    streamURL,
		Announcement: c.announceIfDedicated(ctx, song),
		PreparedAt:   c.Now(),
	}
	c.play(ctx, slot, c.currentVolume(), false)
	return nil
}

func (c *Controller) Pause(ctx context.Context) error {
	if err := c.saveState(ctx, func(s *domain.PlaybackState) { s.Playing = false }); err != nil {
		return err
	}
	c.broadcaster.Broadcast(domain.EventPlaybackPaused, nil)
	return nil
}

func (c *Controller) Resume(ctx context.Context) error {
	if err := c.saveState(ctx, func(s *domain.PlaybackState) { s.Playing = true }); err != nil {
		return err
	}
	c.broadcaster.Broadcast(domain.EventPlaybackResumed, nil)
	return nil
}

func (c *Controller) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > 100 {
		return errors.New("volume must be within [0,100]")
	}
	c.mu.Lock()
	c.volume = volume
	c.mu.Unlock()

	if err := c.saveState(ctx, func(s *domain.PlaybackState) { s.Volume = volume }); err != nil {
		return err
	}
	c.broadcaster.Broadcast(domain.EventVolumeChanged, map[string]int{"volume": volume})
	return nil
}

// Stop halts playback entirely: singleton state cleared, caches dropped,
// any burst abandoned.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.remainingInBurst = 0
	c.nextPrepared = nil
	c.currentlyPlaying = nil
	c.playbackCache = nil
	volume := c.volume
	c.mu.Unlock()

	err := c.state.Save(ctx, domain.PlaybackState{Volume: volume})
	if err != nil {
		c.logger.Error("failed to persist stopped state", slog.String("error", err.Error()))
	}
	c.broadcaster.Broadcast(domain.EventPlaybackStopped, nil)
	return err
}

// OnSongEnded advances a burst or closes out the airing. Called when the
// broadcaster client reports the audio element finished.
func (c *Controller) OnSongEnded(ctx context.Context) {
	c.mu.Lock()
	if c.remainingInBurst > 0 {
		c.remainingInBurst--
		remaining := c.remainingInBurst
		slot := c.nextPrepared
		c.nextPrepared = nil
		c.mu.Unlock()

		if slot == nil {
			// Pre-fetch has not finished; select synchronously.
			slot = c.prepareNow(ctx)
		}
		c.play(ctx, slot, c.currentVolume(), remaining > 0)
		if remaining > 0 {
			go c.prefillNext()
		}
		return
	}
	c.currentlyPlaying = nil
	c.mu.Unlock()

	if err := c.saveState(ctx, func(s *domain.PlaybackState) {
		s.Playing = false
		s.CurrentSongID = ""
		s.Position = 0
	}); err != nil {
		c.logger.Warn("failed to persist ended state", slog.String("error", err.Error()))
	}
	c.broadcaster.Broadcast(domain.EventSongEnded, nil)
}

// NoteSongStarted records what the broadcaster actually started playing
// and tells listeners, without re-broadcasting play-song (which would loop
// playback).
func (c *Controller) NoteSongStarted(event domain.PlayEvent) {
	event.EmittedAt = c.Now()
	c.mu.Lock()
	c.currentlyPlaying = event.Song
	c.playbackCache = &event
	c.mu.Unlock()

	c.broadcaster.Broadcast(domain.EventSongPlayingUpdate, map[string]any{"song": event.Song})
}

// NotePosition persists the broadcaster's reported position so a restart
// resumes close to where it was.
func (c *Controller) NotePosition(ctx context.Context, position float64) {
	if err := c.saveState(ctx, func(s *domain.PlaybackState) { s.Position = position }); err != nil {
		c.logger.Warn("failed to persist position", slog.String("error", err.Error()))
	}
}

// PlaybackStateForReconnect replays the cached play event to a returning
// admin when playback is still live and the cache is fresh.
func (c *Controller) PlaybackStateForReconnect(ctx context.Context) (*domain.PlayEvent, bool) {
	c.mu.Lock()
	cached := c.playbackCache
	c.mu.Unlock()
	if cached == nil {
		return nil, false
	}
	if c.Now().Sub(cached.EmittedAt) > replayWindow {
		return nil, false
	}
	state, err := c.state.GetCurrent(ctx)
	if err != nil || !state.Playing {
		return nil, false
	}
	event := *cached
	event.IsReconnect = true
	return &event, true
}

// CurrentSong answers "what is playing?" without touching the database.
func (c *Controller) CurrentSong() *domain.Song {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentlyPlaying
}

// LockedSlot exposes the pending slot for connection snapshots.
func (c *Controller) LockedSlot() (*domain.PreparedSlot, bool) {
	return c.slots.Peek()
}

// ClearPresence drops the now-playing memory after the admin's grace
// window expires.
func (c *Controller) ClearPresence() {
	c.mu.Lock()
	c.currentlyPlaying = nil
	c.playbackCache = nil
	c.mu.Unlock()
}

// play emits the queue change first, then the play event, then the
// recently-played refresh, and persists the singleton state.
func (c *Controller) play(ctx context.Context, slot *domain.PreparedSlot, volume int, autoNext bool) {
	event := domain.PlayEvent{
		Song:      slot.Song,
		StreamURL: slot.StreamURL,
		Volume:    volume,
		AutoNext:  autoNext,
		Offline:   slot.Offline,
		EmittedAt: c.Now(),
	}
	if slot.Announcement != nil {
		event.AnnouncementText = slot.Announcement.Text
		event.AnnouncementURL = slot.Announcement.AudioURL
	}

	c.broadcaster.Broadcast(domain.EventQueueUpdated, nil)
	if event.HasAnnouncement() {
		c.broadcaster.Broadcast(domain.EventPlayAnnouncement, event)
	} else {
		c.broadcaster.Broadcast(domain.EventPlaySong, event)
	}
	c.broadcaster.Broadcast(domain.EventRecentlyPlayedUpdated, nil)
	metrics.SongsAiredTotal.Inc()

	state := domain.PlaybackState{Playing: true, Volume: volume}
	if slot.Song != nil {
		state.CurrentSongID = slot.Song.ID
	}
	if err := c.state.Save(ctx, state); err != nil {
		c.logger.Warn("failed to persist playback state", slog.String("error", err.Error()))
	}
}

// prepareNow is the synchronous selection path used when no prepared slot
// exists. It mirrors the pre-fetch pipeline but blocks the caller.
func (c *Controller) prepareNow(ctx context.Context) *domain.PreparedSlot {
	song, err := c.songs.TopUnplayed(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrQueueEmpty) {
			c.logger.Error("top song lookup failed", slog.String("error", err.Error()))
		}
		return c.offlineSlot()
	}
	if err := c.songs.Reserve(ctx, song.ID, c.Now()); err != nil {
		c.logger.Error("song reservation failed",
			slog.String("songId", string(song.ID)),
			slog.String("error", err.Error()))
		return c.offlineSlot()
	}
	streamURL, err := c.resolver.ResolveStreamURL(ctx, song.URL)
	if err != nil {
		c.logger.Warn("stream URL extraction failed, restoring reservation",
			slog.String("songId", string(song.ID)),
			slog.String("error", err.Error()))
		c.restore(song.ID)
		slot := c.offlineSlot()
		slot.DownloadFailed = true
		return slot
	}
	return &domain.PreparedSlot{
		Song:         &song,
		StreamURL:    streamURL,
		Announcement: c.announceIfDedicated(ctx, song),
		PreparedAt:   c.Now(),
	}
}

// prefillNext readies the following burst song in the background.
func (c *Controller) prefillNext() {
	ctx, cancel := context.WithTimeout(context.Background(), prefetchBudget)
	defer cancel()

	slot := c.prepareNow(ctx)
	if slot.Offline && slot.StreamURL == "" {
		// Nothing playable; let OnSongEnded fall back synchronously.
		return
	}
	c.mu.Lock()
	if c.remainingInBurst > 0 {
		c.nextPrepared = slot
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// Burst was reset while preparing; return the reservation.
	if slot.Song != nil {
		c.restore(slot.Song.ID)
	}
}

func (c *Controller) announceIfDedicated(ctx context.Context, song domain.Song) *domain.Announcement {
	if !song.HasDedication() {
		return nil
	}
	ann, err := c.announcer.Announce(ctx, song)
	if err != nil {
		c.logger.Warn("announcement failed, airing without one",
			slog.String("songId", string(song.ID)),
			slog.String("error", err.Error()))
		return nil
	}
	return &ann
}

func (c *Controller) offlineSlot() *domain.PreparedSlot {
	slot := &domain.PreparedSlot{Offline: true, PreparedAt: c.Now()}
	if track, err := c.library.RandomTrack(); err == nil {
		slot.StreamURL = "/stream-offline/" + track
	} else {
		c.logger.Warn("offline fallback has no library track", slog.String("error", err.Error()))
	}
	return slot
}

func (c *Controller) resetBurst() {
	c.mu.Lock()
	c.remainingInBurst = 0
	c.nextPrepared = nil
	c.mu.Unlock()
}

func (c *Controller) currentVolume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *Controller) saveState(ctx context.Context, mutate func(*domain.PlaybackState)) error {
	state, err := c.state.GetCurrent(ctx)
	if err != nil {
		return err
	}
	mutate(&state)
	return c.state.Save(ctx, state)
}

func (c *Controller) restore(id domain.SongID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.songs.Restore(ctx, id); err != nil {
		c.logger.Error("failed to restore reservation",
			slog.String("songId", string(id)),
			slog.String("error", err.Error()))
	}
}
