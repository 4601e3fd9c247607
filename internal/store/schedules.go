package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreateSchedule inserts a new Schedule. Callers are expected to have
// already computed NextRunAt when Enabled is true (see cron.NextRunTime);
// the invariant enabled ⇒ nextRunAt defined is enforced by the cron
// engine, not the store.
func (s *Store) CreateSchedule(ctx context.Context, sch Schedule) (Schedule, error) {
	sch.ID = uuid.NewString()
	now := time.Now().UTC()
	sch.CreatedAt, sch.UpdatedAt = now, now
	skillArgs, err := json.Marshal(sch.SkillArgs)
	if err != nil {
		return Schedule{}, Validation("encode skill args: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, project_id, name, description, cron_expression, task_kind,
			command, skill_name, skill_command, skill_args, message, enabled, last_run_at,
			next_run_at, run_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?);
	`, sch.ID, sch.ProjectID, sch.Name, sch.Description, sch.CronExpression, sch.TaskKind,
		sch.Command, sch.SkillName, sch.SkillCommand, string(skillArgs), sch.Message, sch.Enabled,
		sch.LastRunAt, sch.NextRunAt, sch.CreatedAt, sch.UpdatedAt)
	if err != nil {
		return Schedule{}, Operational("create schedule", err)
	}
	return sch, nil
}

// GetSchedule returns the Schedule with id, or NotFound.
func (s *Store) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	row := s.db.QueryRowContext(ctx, scheduleSelect+` WHERE id = ?;`, id)
	return scanSchedule(row)
}

// ListSchedules returns every Schedule for a project (or all projects if
// projectID is empty).
func (s *Store) ListSchedules(ctx context.Context, projectID string) ([]Schedule, error) {
	var rows *sql.Rows
	var err error
	if projectID == "" {
		rows, err = s.db.QueryContext(ctx, scheduleSelect+` ORDER BY created_at;`)
	} else {
		rows, err = s.db.QueryContext(ctx, scheduleSelect+` WHERE project_id = ? ORDER BY created_at;`, projectID)
	}
	if err != nil {
		return nil, Operational("list schedules", err)
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, Operational("list schedules", rows.Err())
}

// DueSchedules returns every enabled Schedule whose NextRunAt is unset or
// at/before now.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, scheduleSelect+`
		WHERE enabled = 1 AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY next_run_at;
	`, now)
	if err != nil {
		return nil, Operational("due schedules", err)
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, Operational("due schedules", rows.Err())
}

// SetScheduleEnabled toggles a Schedule's enabled flag and, when enabling,
// sets NextRunAt; when disabling, clears it (enabled ⇔ nextRunAt defined).
func (s *Store) SetScheduleEnabled(ctx context.Context, id string, enabled bool, nextRunAt *time.Time) error {
	if !enabled {
		nextRunAt = nil
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET enabled = ?, next_run_at = ?, updated_at = ? WHERE id = ?;
	`, enabled, nextRunAt, now, id)
	if err != nil {
		return Operational("set schedule enabled", err)
	}
	return checkAffected(res, "schedule")
}

// RecordScheduleRun updates a Schedule's run bookkeeping after one execution:
// lastRunAt = startedAt, runCount += 1, nextRunAt = the freshly computed
// next occurrence (nil when the schedule has since been disabled).
func (s *Store) RecordScheduleRun(ctx context.Context, id string, startedAt time.Time, nextRunAt *time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET last_run_at = ?, next_run_at = ?, run_count = run_count + 1, updated_at = ?
		WHERE id = ?;
	`, startedAt, nextRunAt, now, id)
	if err != nil {
		return Operational("record schedule run", err)
	}
	return checkAffected(res, "schedule")
}

// DeleteSchedule removes a Schedule and cascades its ScheduleLogs.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?;`, id)
	if err != nil {
		return Operational("delete schedule", err)
	}
	return checkAffected(res, "schedule")
}

const scheduleSelect = `
	SELECT id, project_id, name, description, cron_expression, task_kind, command, skill_name,
		skill_command, skill_args, message, enabled, last_run_at, next_run_at, run_count,
		created_at, updated_at
	FROM schedules`

func scanSchedule(row rowScanner) (Schedule, error) {
	var sch Schedule
	var skillArgs string
	var lastRun, nextRun sql.NullTime
	err := row.Scan(&sch.ID, &sch.ProjectID, &sch.Name, &sch.Description, &sch.CronExpression,
		&sch.TaskKind, &sch.Command, &sch.SkillName, &sch.SkillCommand, &skillArgs, &sch.Message,
		&sch.Enabled, &lastRun, &nextRun, &sch.RunCount, &sch.CreatedAt, &sch.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Schedule{}, NotFound("schedule not found")
		}
		return Schedule{}, Operational("scan schedule", err)
	}
	if lastRun.Valid {
		t := lastRun.Time
		sch.LastRunAt = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		sch.NextRunAt = &t
	}
	if err := json.Unmarshal([]byte(skillArgs), &sch.SkillArgs); err != nil {
		return Schedule{}, Operational("decode skill args", err)
	}
	return sch, nil
}

// CreateScheduleLog inserts a new ScheduleLog in status pending/running.
func (s *Store) CreateScheduleLog(ctx context.Context, log ScheduleLog) (ScheduleLog, error) {
	log.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule_logs (id, schedule_id, status, started_at, completed_at, output, error, duration_millis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`, log.ID, log.ScheduleID, log.Status, log.StartedAt, log.CompletedAt, log.Output, log.Error, log.DurationMillis)
	if err != nil {
		return ScheduleLog{}, Operational("create schedule log", err)
	}
	return log, nil
}

// CompleteScheduleLog transitions a ScheduleLog to a terminal status.
func (s *Store) CompleteScheduleLog(ctx context.Context, id string, status ScheduleRunStatus, output, errMsg string, durationMillis int64) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedule_logs SET status = ?, completed_at = ?, output = ?, error = ?, duration_millis = ?
		WHERE id = ?;
	`, status, now, output, errMsg, durationMillis, id)
	if err != nil {
		return Operational("complete schedule log", err)
	}
	return checkAffected(res, "schedule log")
}

// DeleteScheduleLog removes a log (used when cancelling before it starts
// running).
func (s *Store) DeleteScheduleLog(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_logs WHERE id = ?;`, id)
	if err != nil {
		return Operational("delete schedule log", err)
	}
	return checkAffected(res, "schedule log")
}

// ListScheduleLogs returns a Schedule's execution history, most recent first.
func (s *Store) ListScheduleLogs(ctx context.Context, scheduleID string, limit int) ([]ScheduleLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, status, started_at, completed_at, output, error, duration_millis
		FROM schedule_logs WHERE schedule_id = ? ORDER BY started_at DESC LIMIT ?;
	`, scheduleID, limit)
	if err != nil {
		return nil, Operational("list schedule logs", err)
	}
	defer rows.Close()
	var out []ScheduleLog
	for rows.Next() {
		var l ScheduleLog
		var completedAt sql.NullTime
		if err := rows.Scan(&l.ID, &l.ScheduleID, &l.Status, &l.StartedAt, &completedAt, &l.Output, &l.Error, &l.DurationMillis); err != nil {
			return nil, Operational("scan schedule log", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			l.CompletedAt = &t
		}
		out = append(out, l)
	}
	return out, Operational("list schedule logs", rows.Err())
}
