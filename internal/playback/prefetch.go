package playback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"radiostream/internal/domain"
	"radiostream/internal/domain/ports"
	"radiostream/internal/metrics"
)

// prefetchBudget bounds the whole preparation. The pre-fetch job fires at
// T-5m; a slot not ready by T-1m is useless.
const prefetchBudget = 4 * time.Minute

// Prefetcher reserves the next song ahead of a schedule firing and leaves
// the system in one of two states: song reserved and streamable, or
// offline fallback. Never reserved-but-unplayable.
type Prefetcher struct {
	songs       ports.SongRepository
	resolver    ports.StreamResolver
	announcer   ports.Announcer
	library     ports.Library
	broadcaster ports.Broadcaster
	slots       *SlotStore
	logger      *slog.Logger

	Now func() time.Time
}

func NewPrefetcher(
	songs ports.SongRepository,
	resolver ports.StreamResolver,
	announcer ports.Announcer,
	library ports.Library,
	broadcaster ports.Broadcaster,
	slots *SlotStore,
	logger *slog.Logger,
) *Prefetcher {
	return &Prefetcher{
		songs:       songs,
		resolver:    resolver,
		announcer:   announcer,
		library:     library,
		broadcaster: broadcaster,
		slots:       slots,
		logger:      logger,
		Now:         time.Now,
	}
}

// PrepareScheduledSong locks the top-voted song for the firing at airTime,
// resolves its stream URL and, for dedicated songs, an announcement. All
// failures degrade to an offline-fallback slot.
func (p *Prefetcher) PrepareScheduledSong(ctx context.Context, schedule domain.Schedule, airTime time.Time) {
	budgetCtx, cancelBudget := context.WithTimeout(ctx, prefetchBudget)
	defer cancelBudget()

	prepCtx, cancel := p.slots.BeginPrepare(budgetCtx, schedule.ID)
	defer cancel()
	defer p.slots.EndPrepare(schedule.ID)

	song, err := p.songs.TopUnplayed(prepCtx)
	if err != nil {
		if !errors.Is(err, domain.ErrQueueEmpty) {
			p.logger.Error("top song lookup failed",
				slog.String("scheduleId", string(schedule.ID)),
				slog.String("error", err.Error()))
		}
		if prepCtx.Err() != nil {
			return
		}
		p.installOffline(schedule.ID, airTime, false)
		return
	}

	if err := p.songs.Reserve(prepCtx, song.ID, p.Now()); err != nil {
		p.logger.Error("song reservation failed",
			slog.String("songId", string(song.ID)),
			slog.String("error", err.Error()))
		if prepCtx.Err() != nil {
			return
		}
		p.installOffline(schedule.ID, airTime, false)
		return
	}

	streamURL, err := p.resolver.ResolveStreamURL(prepCtx, song.URL)
	if err != nil {
		p.logger.Warn("stream URL extraction failed, restoring reservation",
			slog.String("songId", string(song.ID)),
			slog.String("error", err.Error()))
		p.restore(song.ID)
		if prepCtx.Err() != nil && budgetCtx.Err() == nil {
			// Cancelled by an admin action, not by the budget.
			return
		}
		p.installOffline(schedule.ID, airTime, true)
		return
	}

	var announcement *domain.Announcement
	if song.HasDedication() {
		ann, err := p.announcer.Announce(prepCtx, song)
		if err != nil {
			p.logger.Warn("announcement failed, airing without one",
				slog.String("songId", string(song.ID)),
				slog.String("error", err.Error()))
		} else {
			announcement = &ann
		}
	}

	slot := &domain.PreparedSlot{
		Song:         &song,
		StreamURL:    streamURL,
		Announcement: announcement,
		PreparedAt:   p.Now(),
	}
	p.slots.Put(schedule.ID, slot)
	metrics.PrefetchTotal.WithLabelValues("prepared").Inc()

	p.broadcaster.Broadcast(domain.EventNextSongLocked, domain.LockedNotice{
		Song:            &song,
		ScheduleTime:    airTime.Format("15:04"),
		HasAnnouncement: announcement != nil,
	})
	p.broadcaster.Broadcast(domain.EventQueueUpdated, nil)

	p.logger.Info("next song locked",
		slog.String("scheduleId", string(schedule.ID)),
		slog.String("songId", string(song.ID)),
		slog.String("airTime", airTime.Format("15:04")))
}

// CancelScheduledSong aborts any in-flight preparation for the schedule
// and discards its slot, restoring a held reservation.
func (p *Prefetcher) CancelScheduledSong(id domain.ScheduleID) {
	slot, ok := p.slots.Take(id)
	p.slots.Cancel(id)
	if ok && slot.Song != nil {
		p.restore(slot.Song.ID)
	}
}

func (p *Prefetcher) installOffline(id domain.ScheduleID, airTime time.Time, downloadFailed bool) {
	outcome := "offline"
	if downloadFailed {
		outcome = "download_failed"
	}
	metrics.PrefetchTotal.WithLabelValues(outcome).Inc()

	slot := &domain.PreparedSlot{
		Offline:        true,
		DownloadFailed: downloadFailed,
		PreparedAt:     p.Now(),
	}
	if track, err := p.library.RandomTrack(); err == nil {
		slot.StreamURL = "/stream-offline/" + track
	} else {
		p.logger.Warn("offline fallback has no library track",
			slog.String("scheduleId", string(id)),
			slog.String("error", err.Error()))
	}
	p.slots.Put(id, slot)

	p.broadcaster.Broadcast(domain.EventNextSongLocked, domain.LockedNotice{
		ScheduleTime:   airTime.Format("15:04"),
		Offline:        true,
		DownloadFailed: downloadFailed,
	})
	p.broadcaster.Broadcast(domain.EventQueueUpdated, nil)
}

// restore uses a fresh context: the preparation context may already be
// cancelled, and a reservation must never outlive a failed pre-fetch.
func (p *Prefetcher) restore(id domain.SongID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.songs.Restore(ctx, id); err != nil {
		p.logger.Error("failed to restore reservation",
			slog.String("songId", string(id)),
			slog.String("error", err.Error()))
	}
}
