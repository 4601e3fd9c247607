// Package cron provides the daemon's periodic sweep over due Schedules: it
// detects due work, dispatches it asynchronously to a pluggable registry of
// taskKind executors, and records the outcome in a ScheduleLog.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/wangmax2011/maxclaw/internal/store"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom,
// month, dow) — no seconds field.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// NextRunTime returns the next occurrence of cronExpr strictly after after,
// or an error if the expression cannot be parsed.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// Validate reports whether expr is a syntactically valid 5-field cron
// expression.
func Validate(expr string) bool {
	_, err := cronParser.Parse(expr)
	return err == nil
}

// Notifier is the narrow interface the scheduler uses to report execution
// outcomes; implemented by internal/notifier.
type Notifier interface {
	NotifyScheduleResult(ctx context.Context, projectID, scheduleName string, success bool, output, errMsg string)
}

// Config holds the dependencies for the cron Scheduler.
type Config struct {
	Store    *store.Store
	Logger   *slog.Logger
	Notifier Notifier
	Interval time.Duration // sweep interval; defaults to 60s if zero
}

// Scheduler periodically sweeps the store for due Schedules and dispatches
// each one to the registered executor for its taskKind.
type Scheduler struct {
	store    *store.Store
	logger   *slog.Logger
	notifier Notifier
	interval time.Duration

	execMu    sync.RWMutex
	executors map[store.TaskKind]Executor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler with an empty executor table. Callers bind the
// built-in executors (and any custom ones) via Register.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:     cfg.Store,
		logger:    logger,
		notifier:  cfg.Notifier,
		interval:  interval,
		executors: make(map[store.TaskKind]Executor),
	}
	return s
}

// Register binds an Executor to taskKind; a later call with the same
// taskKind replaces the previous binding.
func (s *Scheduler) Register(kind store.TaskKind, exec Executor) {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	s.executors[kind] = exec
}

func (s *Scheduler) executorFor(kind store.TaskKind) (Executor, bool) {
	s.execMu.RLock()
	defer s.execMu.RUnlock()
	exec, ok := s.executors[kind]
	return exec, ok
}

// Start begins the sweep loop in a background goroutine. An immediate sweep
// fires before the first tick, per the "0 starts it immediately" rule.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("cron scheduler started", "interval", s.interval)
}

// Stop cancels the sweep loop and waits for in-flight dispatches to be
// kicked off (dispatch itself is fire-and-forget and is not awaited here).
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep queries due schedules and dispatches each one without waiting for
// its execution to complete.
func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.store.DueSchedules(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("cron_sweep_query_failed", "error", err)
		return
	}
	for _, sched := range due {
		go s.dispatch(ctx, sched)
	}
}

// dispatch executes the flow in spec §4.4 for one due Schedule.
func (s *Scheduler) dispatch(ctx context.Context, sched store.Schedule) {
	startedAt := time.Now().UTC()
	log, err := s.store.CreateScheduleLog(ctx, store.ScheduleLog{
		ScheduleID: sched.ID,
		Status:     store.RunRunning,
		StartedAt:  startedAt,
	})
	if err != nil {
		s.logger.Error("cron_log_create_failed", "schedule_id", sched.ID, "error", err)
		return
	}

	exec, ok := s.executorFor(sched.TaskKind)
	if !ok {
		_ = s.store.CompleteScheduleLog(ctx, log.ID, store.RunFailed, "", "no executor registered for task kind", 0)
		s.advance(ctx, sched, startedAt, false, "", "no executor registered for task kind")
		return
	}

	result := exec(ctx, sched)
	status := store.RunCompleted
	if !result.Success {
		status = store.RunFailed
	}
	if err := s.store.CompleteScheduleLog(ctx, log.ID, status, result.Output, result.Error, result.DurationMillis); err != nil {
		s.logger.Error("cron_log_complete_failed", "schedule_id", sched.ID, "error", err)
	}
	s.advance(ctx, sched, startedAt, result.Success, result.Output, result.Error)
}

func (s *Scheduler) advance(ctx context.Context, sched store.Schedule, startedAt time.Time, success bool, output, errMsg string) {
	var nextRun *time.Time
	if t, err := NextRunTime(sched.CronExpression, startedAt); err == nil {
		nextRun = &t
	} else {
		s.logger.Warn("cron_next_run_compute_failed", "schedule_id", sched.ID, "cron_expr", sched.CronExpression, "error", err)
	}

	if err := s.store.RecordScheduleRun(ctx, sched.ID, startedAt, nextRun); err != nil {
		s.logger.Error("cron_record_run_failed", "schedule_id", sched.ID, "error", err)
	}

	s.logger.Info("cron_schedule_fired",
		"schedule_id", sched.ID, "schedule_name", sched.Name, "success", success, "next_run_at", nextRun)

	// Notifier failures must not fail the schedule's execution.
	if s.notifier != nil {
		func() {
			defer func() { _ = recover() }()
			s.notifier.NotifyScheduleResult(ctx, sched.ProjectID, sched.Name, success, output, errMsg)
		}()
	}
}
