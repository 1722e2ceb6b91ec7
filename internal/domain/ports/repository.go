package ports

import (
	"context"
	"time"

	"radiostream/internal/domain"
)

type SongRepository interface {
	// TopUnplayed returns the highest-priority unplayed song, ordered by
	// starred DESC, votes DESC, addedAt ASC. Returns domain.ErrQueueEmpty
	// when no unplayed song exists.
	TopUnplayed(ctx context.Context) (domain.Song, error)
	Get(ctx context.Context, id domain.SongID) (domain.Song, error)
	// Reserve marks the song played so concurrent voting cannot change the
	// outcome of an upcoming airing.
	Reserve(ctx context.Context, id domain.SongID, at time.Time) error
	// Restore undoes a reservation after a failed pre-fetch.
	Restore(ctx context.Context, id domain.SongID) error
	RecentlyPlayed(ctx context.Context, limit int) ([]domain.Song, error)
	Queue(ctx context.Context) ([]domain.Song, error)
}

type ScheduleRepository interface {
	Get(ctx context.Context, id domain.ScheduleID) (domain.Schedule, error)
	List(ctx context.Context) ([]domain.Schedule, error)
	ListActive(ctx context.Context) ([]domain.Schedule, error)
	Create(ctx context.Context, s domain.Schedule) error
	Update(ctx context.Context, s domain.Schedule) error
	Delete(ctx context.Context, id domain.ScheduleID) error
	SetLastRun(ctx context.Context, id domain.ScheduleID, at time.Time) error
	SetNextRun(ctx context.Context, id domain.ScheduleID, at time.Time) error
}

type PlaybackStateRepository interface {
	// GetCurrent is a find-or-create over the singleton row.
	GetCurrent(ctx context.Context) (domain.PlaybackState, error)
	Save(ctx context.Context, state domain.PlaybackState) error
}

type ChatRepository interface {
	// DeleteOlderThan removes chat messages created before the cutoff and
	// returns the number deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
