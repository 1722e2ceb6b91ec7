package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"radiostream/internal/domain"
	"radiostream/internal/domain/ports"
	"radiostream/internal/metrics"
)

const (
	// jobTimeout bounds a single schedule execution end to end.
	jobTimeout = 5 * time.Minute

	// chatRetention is how long chat messages are kept before the daily
	// cleanup removes them.
	chatRetention = 72 * time.Hour

	chatCleanupExpr = "0 4 * * *"
)

// MainExecutor runs a schedule at its cron time.
type MainExecutor interface {
	ExecuteSchedule(ctx context.Context, schedule domain.Schedule)
}

// PrefetchExecutor prepares a schedule's first song ahead of its air time
// and discards the preparation when the schedule goes away.
type PrefetchExecutor interface {
	PrepareScheduledSong(ctx context.Context, schedule domain.Schedule, airTime time.Time)
	CancelScheduledSong(id domain.ScheduleID)
}

type jobPair struct {
	main     cron.EntryID
	prefetch cron.EntryID
	// hasPrefetch is false when the expression could not be shifted.
	hasPrefetch bool
}

// Scheduler owns the cron runner. Every active schedule gets a main job at
// its cron time and, where derivable, a prefetch job five minutes earlier.
type Scheduler struct {
	cron      *cron.Cron
	schedules ports.ScheduleRepository
	chat      ports.ChatRepository
	main      MainExecutor
	prefetch  PrefetchExecutor
	logger    *slog.Logger
	location  *time.Location

	mu   sync.Mutex
	jobs map[domain.ScheduleID]jobPair

	Now func() time.Time
}

func NewScheduler(
	schedules ports.ScheduleRepository,
	chat ports.ChatRepository,
	main MainExecutor,
	prefetch PrefetchExecutor,
	location *time.Location,
	logger *slog.Logger,
) *Scheduler {
	if location == nil {
		location = time.Local
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(location), cron.WithParser(standardParser)),
		schedules: schedules,
		chat:      chat,
		main:      main,
		prefetch:  prefetch,
		logger:    logger,
		location:  location,
		jobs:      make(map[domain.ScheduleID]jobPair),
		Now:       time.Now,
	}
}

// Initialize registers every active schedule plus the daily chat cleanup,
// then starts the cron runner.
func (s *Scheduler) Initialize(ctx context.Context) error {
	active, err := s.schedules.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, schedule := range active {
		if err := s.AddJob(schedule); err != nil {
			s.logger.Error("skipping schedule with invalid cron expression",
				slog.String("scheduleId", string(schedule.ID)),
				slog.String("cronExpr", schedule.CronExpr),
				slog.String("error", err.Error()))
		}
	}
	if _, err := s.cron.AddFunc(chatCleanupExpr, s.cleanupChat); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		slog.Int("schedules", len(active)),
		slog.String("timezone", s.location.String()))
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// AddJob registers the main and prefetch jobs for a schedule. A schedule
// whose expression cannot be shifted runs without pre-fetch; an invalid
// expression is an error.
func (s *Scheduler) AddJob(schedule domain.Schedule) error {
	if err := ValidateExpr(schedule.CronExpr); err != nil {
		return err
	}

	mainID, err := s.cron.AddFunc(schedule.CronExpr, func() {
		s.runMain(schedule.ID)
	})
	if err != nil {
		return err
	}

	pair := jobPair{main: mainID}
	prefetchExpr, err := prefetchExpression(schedule.CronExpr)
	if err != nil {
		s.logger.Warn("schedule runs without pre-fetch",
			slog.String("scheduleId", string(schedule.ID)),
			slog.String("cronExpr", schedule.CronExpr),
			slog.String("reason", err.Error()))
	} else {
		prefetchID, err := s.cron.AddFunc(prefetchExpr, func() {
			s.runPrefetch(schedule.ID)
		})
		if err != nil {
			s.cron.Remove(mainID)
			return err
		}
		pair.prefetch = prefetchID
		pair.hasPrefetch = true
	}

	s.mu.Lock()
	if old, ok := s.jobs[schedule.ID]; ok {
		s.removeLocked(old)
	}
	s.jobs[schedule.ID] = pair
	s.mu.Unlock()

	if next, err := NextFiring(schedule.CronExpr, s.Now().In(s.location)); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.schedules.SetNextRun(ctx, schedule.ID, next); err != nil {
			s.logger.Warn("failed to record nextRun",
				slog.String("scheduleId", string(schedule.ID)),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// RemoveJob unregisters a schedule's jobs and discards any prepared slot.
// Unknown IDs are a no-op.
func (s *Scheduler) RemoveJob(id domain.ScheduleID) {
	s.mu.Lock()
	if pair, ok := s.jobs[id]; ok {
		s.removeLocked(pair)
		delete(s.jobs, id)
	}
	s.mu.Unlock()
	s.prefetch.CancelScheduledSong(id)
}

// Reload re-registers a schedule after an update: inactive schedules are
// removed, active ones replaced.
func (s *Scheduler) Reload(schedule domain.Schedule) error {
	if !schedule.Active {
		s.RemoveJob(schedule.ID)
		return nil
	}
	return s.AddJob(schedule)
}

// ReloadAll drops every registered schedule job and re-registers from the
// store. The chat cleanup job is untouched.
func (s *Scheduler) ReloadAll(ctx context.Context) error {
	s.mu.Lock()
	for id, pair := range s.jobs {
		s.removeLocked(pair)
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	active, err := s.schedules.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, schedule := range active {
		if err := s.AddJob(schedule); err != nil {
			s.logger.Error("skipping schedule with invalid cron expression",
				slog.String("scheduleId", string(schedule.ID)),
				slog.String("cronExpr", schedule.CronExpr),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Scheduler) removeLocked(pair jobPair) {
	s.cron.Remove(pair.main)
	if pair.hasPrefetch {
		s.cron.Remove(pair.prefetch)
	}
}

// runMain re-reads the schedule at fire time so edits between registration
// and firing take effect, then hands off to the playback controller.
func (s *Scheduler) runMain(id domain.ScheduleID) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	schedule, err := s.schedules.Get(ctx, id)
	if err != nil {
		s.logger.Error("schedule vanished before firing",
			slog.String("scheduleId", string(id)),
			slog.String("error", err.Error()))
		return
	}
	if !schedule.Active {
		return
	}

	now := s.Now().In(s.location)
	s.logger.Info("schedule firing",
		slog.String("scheduleId", string(id)),
		slog.String("name", schedule.Name))

	s.main.ExecuteSchedule(ctx, schedule)

	// The controller owns lastRun (it doubles as the re-entrancy guard for
	// manual early triggers); the scheduler only advances nextRun.
	if next, err := NextFiring(schedule.CronExpr, now); err == nil {
		if err := s.schedules.SetNextRun(ctx, id, next); err != nil {
			s.logger.Warn("failed to record nextRun",
				slog.String("scheduleId", string(id)),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Scheduler) runPrefetch(id domain.ScheduleID) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	schedule, err := s.schedules.Get(ctx, id)
	if err != nil || !schedule.Active {
		return
	}

	now := s.Now().In(s.location)
	airTime, err := NextFiring(schedule.CronExpr, now)
	if err != nil {
		return
	}
	s.prefetch.PrepareScheduledSong(ctx, schedule, airTime)
}

func (s *Scheduler) cleanupChat() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.Now().Add(-chatRetention)
	deleted, err := s.chat.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("chat cleanup failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		metrics.ChatMessagesDeletedTotal.Add(float64(deleted))
		s.logger.Info("chat cleanup done", slog.Int64("deleted", deleted))
	}
}
