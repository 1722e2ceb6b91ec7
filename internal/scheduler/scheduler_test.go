package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"radiostream/internal/domain"
)

type fakeScheduleRepo struct {
	schedules map[domain.ScheduleID]domain.Schedule
	lastRun   map[domain.ScheduleID]time.Time
	nextRun   map[domain.ScheduleID]time.Time
}

func newFakeScheduleRepo(schedules ...domain.Schedule) *fakeScheduleRepo {
	repo := &fakeScheduleRepo{
		schedules: map[domain.ScheduleID]domain.Schedule{},
		lastRun:   map[domain.ScheduleID]time.Time{},
		nextRun:   map[domain.ScheduleID]time.Time{},
	}
	for _, s := range schedules {
		repo.schedules[s.ID] = s
	}
	return repo
}

func (f *fakeScheduleRepo) Get(ctx context.Context, id domain.ScheduleID) (domain.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return domain.Schedule{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeScheduleRepo) List(ctx context.Context) ([]domain.Schedule, error) {
	out := make([]domain.Schedule, 0, len(f.schedules))
	for _, s := range f.schedules {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeScheduleRepo) ListActive(ctx context.Context) ([]domain.Schedule, error) {
	out := []domain.Schedule{}
	for _, s := range f.schedules {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) Create(ctx context.Context, s domain.Schedule) error {
	f.schedules[s.ID] = s
	return nil
}

func (f *fakeScheduleRepo) Update(ctx context.Context, s domain.Schedule) error {
	f.schedules[s.ID] = s
	return nil
}

func (f *fakeScheduleRepo) Delete(ctx context.Context, id domain.ScheduleID) error {
	delete(f.schedules, id)
	return nil
}

func (f *fakeScheduleRepo) SetLastRun(ctx context.Context, id domain.ScheduleID, at time.Time) error {
	f.lastRun[id] = at
	return nil
}

func (f *fakeScheduleRepo) SetNextRun(ctx context.Context, id domain.ScheduleID, at time.Time) error {
	f.nextRun[id] = at
	return nil
}

type fakeChatRepo struct {
	deleted int64
	cutoff  time.Time
}

func (f *fakeChatRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

type recordingMain struct {
	executed []domain.Schedule
}

func (r *recordingMain) ExecuteSchedule(ctx context.Context, schedule domain.Schedule) {
	r.executed = append(r.executed, schedule)
}

type recordingPrefetch struct {
	prepared  []domain.Schedule
	airTimes  []time.Time
	cancelled []domain.ScheduleID
}

func (r *recordingPrefetch) PrepareScheduledSong(ctx context.Context, schedule domain.Schedule, airTime time.Time) {
	r.prepared = append(r.prepared, schedule)
	r.airTimes = append(r.airTimes, airTime)
}

func (r *recordingPrefetch) CancelScheduledSong(id domain.ScheduleID) {
	r.cancelled = append(r.cancelled, id)
}

func testSchedule() domain.Schedule {
	return domain.Schedule{
		ID:        "sched-1",
		Name:      "Evening show",
		CronExpr:  "0 20 * * *",
		Volume:    75,
		SongCount: 2,
		Active:    true,
	}
}

func newTestScheduler(repo *fakeScheduleRepo, main *recordingMain, prefetch *recordingPrefetch) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(repo, &fakeChatRepo{}, main, prefetch, time.UTC, logger)
}

func TestAddJobRegistersMainAndPrefetch(t *testing.T) {
	s := newTestScheduler(newFakeScheduleRepo(testSchedule()), &recordingMain{}, &recordingPrefetch{})

	if err := s.AddJob(testSchedule()); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("cron entries = %d, want 2 (main + prefetch)", got)
	}

	pair := s.jobs["sched-1"]
	if !pair.hasPrefetch {
		t.Error("hasPrefetch = false, want true for shiftable expression")
	}
}

func TestAddJobWithoutPrefetchForUnshiftableExpr(t *testing.T) {
	schedule := testSchedule()
	schedule.CronExpr = "*/30 * * * *"
	s := newTestScheduler(newFakeScheduleRepo(schedule), &recordingMain{}, &recordingPrefetch{})

	if err := s.AddJob(schedule); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if got := len(s.cron.Entries()); got != 1 {
		t.Errorf("cron entries = %d, want 1 (main only)", got)
	}
	if s.jobs["sched-1"].hasPrefetch {
		t.Error("hasPrefetch = true, want false")
	}
}

func TestAddJobRejectsInvalidExpr(t *testing.T) {
	schedule := testSchedule()
	schedule.CronExpr = "not a cron"
	s := newTestScheduler(newFakeScheduleRepo(schedule), &recordingMain{}, &recordingPrefetch{})

	if err := s.AddJob(schedule); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if got := len(s.cron.Entries()); got != 0 {
		t.Errorf("cron entries = %d, want 0", got)
	}
}

func TestRemoveJobDiscardsPreparedSlot(t *testing.T) {
	prefetch := &recordingPrefetch{}
	s := newTestScheduler(newFakeScheduleRepo(testSchedule()), &recordingMain{}, prefetch)
	if err := s.AddJob(testSchedule()); err != nil {
		t.Fatal(err)
	}

	s.RemoveJob("sched-1")
	if got := len(s.cron.Entries()); got != 0 {
		t.Errorf("cron entries = %d, want 0 after removal", got)
	}
	if _, ok := s.jobs["sched-1"]; ok {
		t.Error("job pair still tracked after removal")
	}
	if len(prefetch.cancelled) != 1 || prefetch.cancelled[0] != "sched-1" {
		t.Errorf("cancelled = %v, want [sched-1]", prefetch.cancelled)
	}

	// Unknown IDs still discard any stray slot.
	s.RemoveJob("missing")
}

func TestReloadDeactivatedScheduleRemovesJobs(t *testing.T) {
	s := newTestScheduler(newFakeScheduleRepo(testSchedule()), &recordingMain{}, &recordingPrefetch{})
	if err := s.AddJob(testSchedule()); err != nil {
		t.Fatal(err)
	}

	updated := testSchedule()
	updated.Active = false
	if err := s.Reload(updated); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := len(s.cron.Entries()); got != 0 {
		t.Errorf("cron entries = %d, want 0 after deactivation", got)
	}
}

func TestAddJobReplacesExisting(t *testing.T) {
	s := newTestScheduler(newFakeScheduleRepo(testSchedule()), &recordingMain{}, &recordingPrefetch{})
	if err := s.AddJob(testSchedule()); err != nil {
		t.Fatal(err)
	}

	updated := testSchedule()
	updated.CronExpr = "30 21 * * *"
	if err := s.AddJob(updated); err != nil {
		t.Fatalf("AddJob replace: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("cron entries = %d, want 2 after replacement", got)
	}
}

func TestRunMainExecutesAndAdvancesNextRun(t *testing.T) {
	repo := newFakeScheduleRepo(testSchedule())
	main := &recordingMain{}
	s := newTestScheduler(repo, main, &recordingPrefetch{})

	fireAt := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return fireAt }

	s.runMain("sched-1")

	if len(main.executed) != 1 {
		t.Fatalf("executed %d schedules, want 1", len(main.executed))
	}
	if main.executed[0].ID != "sched-1" {
		t.Errorf("executed schedule %q", main.executed[0].ID)
	}
	wantNext := time.Date(2026, 3, 15, 20, 0, 0, 0, time.UTC)
	if !repo.nextRun["sched-1"].Equal(wantNext) {
		t.Errorf("nextRun = %v, want %v", repo.nextRun["sched-1"], wantNext)
	}
}

func TestAddJobPersistsNextRun(t *testing.T) {
	repo := newFakeScheduleRepo(testSchedule())
	s := newTestScheduler(repo, &recordingMain{}, &recordingPrefetch{})
	s.Now = func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	}

	if err := s.AddJob(testSchedule()); err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	if !repo.nextRun["sched-1"].Equal(want) {
		t.Errorf("nextRun = %v, want %v", repo.nextRun["sched-1"], want)
	}
}

func TestRunMainSkipsInactiveSchedule(t *testing.T) {
	schedule := testSchedule()
	schedule.Active = false
	main := &recordingMain{}
	s := newTestScheduler(newFakeScheduleRepo(schedule), main, &recordingPrefetch{})

	s.runMain("sched-1")
	if len(main.executed) != 0 {
		t.Errorf("executed %d schedules, want 0 for inactive", len(main.executed))
	}
}

func TestRunPrefetchPassesUpcomingAirTime(t *testing.T) {
	repo := newFakeScheduleRepo(testSchedule())
	prefetch := &recordingPrefetch{}
	s := newTestScheduler(repo, &recordingMain{}, prefetch)

	// Prefetch fires at 19:55; the air time is the 20:00 firing.
	s.Now = func() time.Time {
		return time.Date(2026, 3, 14, 19, 55, 0, 0, time.UTC)
	}

	s.runPrefetch("sched-1")

	if len(prefetch.prepared) != 1 {
		t.Fatalf("prepared %d schedules, want 1", len(prefetch.prepared))
	}
	wantAir := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	if !prefetch.airTimes[0].Equal(wantAir) {
		t.Errorf("airTime = %v, want %v", prefetch.airTimes[0], wantAir)
	}
}

func TestCleanupChatUsesRetentionCutoff(t *testing.T) {
	chat := &fakeChatRepo{deleted: 12}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(newFakeScheduleRepo(), chat, &recordingMain{}, &recordingPrefetch{}, time.UTC, logger)

	now := time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	s.cleanupChat()

	wantCutoff := now.Add(-72 * time.Hour)
	if !chat.cutoff.Equal(wantCutoff) {
		t.Errorf("cutoff = %v, want %v", chat.cutoff, wantCutoff)
	}
}
