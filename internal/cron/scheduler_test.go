package cron_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/wangmax2011/maxclaw/internal/cron"
	"github.com/wangmax2011/maxclaw/internal/store"
)

// waitFor polls check at short intervals until it returns true or the
// deadline elapses, avoiding fixed sleeps that cause flaky tests.
func waitFor(t *testing.T, deadline time.Duration, check func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestProject(t *testing.T, s *store.Store) store.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), store.Project{
		Name:         "proj-" + t.Name(),
		AbsolutePath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func newTestScheduler(s *store.Store, interval time.Duration) *cron.Scheduler {
	sched := cron.New(cron.Config{Store: s, Logger: slog.Default(), Interval: interval})
	sched.Register(store.TaskReminder, cron.ReminderExecutor())
	return sched
}

func TestScheduler_FiresDueSchedule(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj := createTestProject(t, s)

	past := time.Now().Add(-5 * time.Minute)
	sch, err := s.CreateSchedule(ctx, store.Schedule{
		ProjectID:      proj.ID,
		Name:           "test-reminder",
		CronExpression: "*/5 * * * *",
		TaskKind:       store.TaskReminder,
		Message:        "hello",
		Enabled:        true,
		NextRunAt:      &past,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sched := newTestScheduler(s, 50*time.Millisecond)
	sched.Start(ctx)
	defer sched.Stop()

	waitFor(t, 3*time.Second, func() bool {
		logs, err := s.ListScheduleLogs(ctx, sch.ID, 10)
		return err == nil && len(logs) > 0 && logs[0].Status != store.RunRunning
	})

	logs, err := s.ListScheduleLogs(ctx, sch.ID, 10)
	if err != nil {
		t.Fatalf("list schedule logs: %v", err)
	}
	if logs[0].Status != store.RunCompleted {
		t.Fatalf("expected completed log, got %+v", logs[0])
	}
}

func TestScheduler_DisabledScheduleNotFired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj := createTestProject(t, s)

	past := time.Now().Add(-5 * time.Minute)
	sch, err := s.CreateSchedule(ctx, store.Schedule{
		ProjectID:      proj.ID,
		Name:           "disabled-reminder",
		CronExpression: "*/5 * * * *",
		TaskKind:       store.TaskReminder,
		Enabled:        false,
		NextRunAt:      &past,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sched := newTestScheduler(s, 50*time.Millisecond)
	sched.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	sched.Stop()

	logs, err := s.ListScheduleLogs(ctx, sch.ID, 10)
	if err != nil {
		t.Fatalf("list schedule logs: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("expected no logs for disabled schedule, got %d", len(logs))
	}
}

func TestScheduler_MissingExecutorFailsLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj := createTestProject(t, s)

	past := time.Now().Add(-time.Minute)
	sch, err := s.CreateSchedule(ctx, store.Schedule{
		ProjectID:      proj.ID,
		Name:           "github-sync",
		CronExpression: "0 * * * *",
		TaskKind:       store.TaskGithubSync,
		Enabled:        true,
		NextRunAt:      &past,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sched := newTestScheduler(s, 50*time.Millisecond) // no github-sync executor registered
	sched.Start(ctx)
	defer sched.Stop()

	waitFor(t, 3*time.Second, func() bool {
		logs, err := s.ListScheduleLogs(ctx, sch.ID, 10)
		return err == nil && len(logs) > 0
	})

	logs, _ := s.ListScheduleLogs(ctx, sch.ID, 10)
	if logs[0].Status != store.RunFailed {
		t.Fatalf("expected failed log for schedule with no bound executor, got %+v", logs[0])
	}
}

func TestScheduler_AdvancesNextRunAfterFiring(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj := createTestProject(t, s)

	past := time.Now().Add(-time.Minute)
	sch, err := s.CreateSchedule(ctx, store.Schedule{
		ProjectID:      proj.ID,
		Name:           "ticker",
		CronExpression: "*/10 * * * *",
		TaskKind:       store.TaskReminder,
		Enabled:        true,
		NextRunAt:      &past,
	})
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}

	sched := newTestScheduler(s, 50*time.Millisecond)
	sched.Start(ctx)
	defer sched.Stop()

	waitFor(t, 3*time.Second, func() bool {
		got, err := s.GetSchedule(ctx, sch.ID)
		return err == nil && got.LastRunAt != nil
	})

	got, err := s.GetSchedule(ctx, sch.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.RunCount != 1 {
		t.Fatalf("expected run count 1, got %d", got.RunCount)
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(past) {
		t.Fatalf("expected next_run_at after original, got %v", got.NextRunAt)
	}
}

func TestValidate_RejectsInvalidExpression(t *testing.T) {
	if cron.Validate("not a cron expr") {
		t.Fatal("expected invalid expression to fail validation")
	}
	if !cron.Validate("*/5 * * * *") {
		t.Fatal("expected valid 5-field expression to pass validation")
	}
}
