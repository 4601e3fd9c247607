// Package store provides transactional persistence for the daemon's
// entities: Project, Session, Activity, Schedule, ScheduleLog, Team,
// TeamMember, TeamTask, TeamSession, and SkillRecord. It is the sole
// authority for persisted state; all mutation paths serialise through a
// single SQLite connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a SQLite connection with entity-specific accessors. All
// operations are all-or-nothing per call; multi-statement mutations run
// inside a transaction.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default data.db location under dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "data.db")
}

// Open opens (creating if necessary) the SQLite-backed store at path and
// applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, Fatal("create data directory", err)
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, Fatal("open sqlite3", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	ctx := context.Background()
	if err := s.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components (e.g. the skill host's
// db:read/db:write permission checks) that need direct access.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) configurePragmas(ctx context.Context) error {
	for _, q := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return Fatal("set pragma "+q, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Fatal("begin schema tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			absolute_path TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			tech_stack TEXT NOT NULL DEFAULT '[]',
			discovered_at DATETIME NOT NULL,
			last_accessed_at DATETIME,
			notification_webhook TEXT NOT NULL DEFAULT '',
			notification_platform TEXT NOT NULL DEFAULT '',
			notification_min_level TEXT NOT NULL DEFAULT 'info'
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			status TEXT NOT NULL CHECK(status IN ('active','completed','interrupted')),
			summary TEXT NOT NULL DEFAULT '',
			summary_status TEXT NOT NULL DEFAULT '',
			summary_generated_at DATETIME,
			os_process_id INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
			ON sessions(project_id) WHERE status = 'active';`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			session_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			details TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_project ON activities(project_id, timestamp);`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			cron_expression TEXT NOT NULL,
			task_kind TEXT NOT NULL,
			command TEXT NOT NULL DEFAULT '',
			skill_name TEXT NOT NULL DEFAULT '',
			skill_command TEXT NOT NULL DEFAULT '',
			skill_args TEXT NOT NULL DEFAULT '[]',
			message TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			last_run_at DATETIME,
			next_run_at DATETIME,
			run_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(enabled, next_run_at);`,
		`CREATE TABLE IF NOT EXISTS schedule_logs (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			output TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_millis INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_logs_schedule ON schedule_logs(schedule_id, started_at);`,
		`CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			lead_member_id TEXT NOT NULL DEFAULT '',
			member_ids TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'idle',
			created_at DATETIME NOT NULL,
			config TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE TABLE IF NOT EXISTS team_members (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			specialty TEXT NOT NULL DEFAULT '[]',
			expertise TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'idle',
			current_task_id TEXT NOT NULL DEFAULT '',
			max_concurrent_tasks INTEGER NOT NULL DEFAULT 3
		);`,
		`CREATE INDEX IF NOT EXISTS idx_team_members_team ON team_members(team_id);`,
		`CREATE TABLE IF NOT EXISTS team_tasks (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			session_id TEXT NOT NULL DEFAULT '',
			assignee_member_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			dependencies TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			completed_at DATETIME,
			result TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			required_skills TEXT NOT NULL DEFAULT '[]',
			priority INTEGER NOT NULL DEFAULT 3
		);`,
		`CREATE INDEX IF NOT EXISTS idx_team_tasks_team ON team_tasks(team_id);`,
		`CREATE INDEX IF NOT EXISTS idx_team_tasks_assignee ON team_tasks(assignee_member_id, status);`,
		`CREATE TABLE IF NOT EXISTS team_sessions (
			id TEXT PRIMARY KEY,
			team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			status TEXT NOT NULL DEFAULT 'idle',
			goal TEXT NOT NULL DEFAULT '',
			task_ids TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			version TEXT NOT NULL,
			source TEXT NOT NULL,
			path TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			config TEXT NOT NULL DEFAULT '{}',
			loaded_at DATETIME,
			error TEXT NOT NULL DEFAULT '',
			manifest TEXT NOT NULL DEFAULT '{}'
		);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Fatal("apply schema", err)
		}
	}
	return toFatal(tx.Commit())
}

func toFatal(err error) error {
	if err == nil {
		return nil
	}
	return Fatal("commit schema tx", err)
}

// retryOnBusy retries f while SQLite reports the database as busy/locked,
// backing off with bounded jitter. The driver's own busy_timeout handles
// short contention; this covers the rarer case of a write colliding with a
// concurrent schema-level operation.
func retryOnBusy(ctx context.Context, f func() error) error {
	const maxAttempts = 5
	const base = 25 * time.Millisecond
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = f()
		if err == nil || !isBusy(err) {
			return err
		}
		delay := base << uint(attempt)
		delay += time.Duration(rand.Intn(int(delay / 2)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
