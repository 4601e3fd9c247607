package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// StartSession creates a new active Session for a project, generating its
// id. The unique partial index on (project_id) WHERE status='active'
// enforces the at-most-one-active-Session invariant; a violation surfaces
// as Conflict.
func (s *Store) StartSession(ctx context.Context, projectID string, osProcessID int) (Session, error) {
	return s.StartSessionWithID(ctx, uuid.NewString(), projectID, osProcessID)
}

// StartSessionWithID is StartSession with a caller-supplied id. Callers that
// must hand the id to a child process before the Session record exists (so
// the child's environment can carry its own session id) generate the id
// first and pass it here.
func (s *Store) StartSessionWithID(ctx context.Context, id, projectID string, osProcessID int) (Session, error) {
	sess := Session{
		ID:          id,
		ProjectID:   projectID,
		StartedAt:   time.Now().UTC(),
		Status:      SessionActive,
		OSProcessID: osProcessID,
	}
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, project_id, started_at, status, os_process_id)
			VALUES (?, ?, ?, ?, ?);
		`, sess.ID, sess.ProjectID, sess.StartedAt, sess.Status, sess.OSProcessID)
		return execErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Session{}, Conflict("a session is already active for this project")
		}
		return Session{}, Operational("start session", err)
	}
	return sess, nil
}

// GetSession returns the Session with id, or NotFound.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, started_at, ended_at, status, summary, summary_status,
			summary_generated_at, os_process_id
		FROM sessions WHERE id = ?;
	`, id)
	return scanSession(row)
}

// ActiveSessionForProject returns the active Session for a project, if any.
func (s *Store) ActiveSessionForProject(ctx context.Context, projectID string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, started_at, ended_at, status, summary, summary_status,
			summary_generated_at, os_process_id
		FROM sessions WHERE project_id = ? AND status = 'active';
	`, projectID)
	return scanSession(row)
}

// ListActiveSessions returns every currently active Session.
func (s *Store) ListActiveSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, started_at, ended_at, status, summary, summary_status,
			summary_generated_at, os_process_id
		FROM sessions WHERE status = 'active' ORDER BY started_at;
	`)
	if err != nil {
		return nil, Operational("list active sessions", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, Operational("list active sessions", rows.Err())
}

// ListSessionsForProject returns a project's Sessions across every status,
// most recent first, bounded by limit (a limit of 0 or less means 100).
func (s *Store) ListSessionsForProject(ctx context.Context, projectID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, started_at, ended_at, status, summary, summary_status,
			summary_generated_at, os_process_id
		FROM sessions WHERE project_id = ? ORDER BY started_at DESC LIMIT ?;
	`, projectID, limit)
	if err != nil {
		return nil, Operational("list sessions for project", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, Operational("list sessions for project", rows.Err())
}

// EndSession transitions a Session to a terminal status, setting EndedAt.
// Terminal states are final; ending an already-terminal Session is a no-op
// that returns the current record rather than erroring, matching the
// idempotent-stop contract used by graceful shutdown.
func (s *Store) EndSession(ctx context.Context, id string, status SessionStatus) (Session, error) {
	if status != SessionCompleted && status != SessionInterrupted {
		return Session{}, Validation("end session: status must be completed or interrupted")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = 'active';
	`, status, now, id)
	if err != nil {
		return Session{}, Operational("end session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, getErr := s.GetSession(ctx, id)
		if getErr != nil {
			return Session{}, getErr
		}
		if existing.Status != SessionActive {
			return existing, nil
		}
		return Session{}, Operational("end session", errors.New("unexpected no-op update"))
	}
	return s.GetSession(ctx, id)
}

// SetSessionSummary records an AI-generated session summary.
func (s *Store) SetSessionSummary(ctx context.Context, id, summary, status string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET summary = ?, summary_status = ?, summary_generated_at = ? WHERE id = ?;
	`, summary, status, now, id)
	if err != nil {
		return Operational("set session summary", err)
	}
	return checkAffected(res, "session")
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var endedAt, summaryGeneratedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.StartedAt, &endedAt, &sess.Status,
		&sess.Summary, &sess.SummaryStatus, &summaryGeneratedAt, &sess.OSProcessID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, NotFound("session not found")
		}
		return Session{}, Operational("scan session", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if summaryGeneratedAt.Valid {
		t := summaryGeneratedAt.Time
		sess.SummaryGeneratedAt = &t
	}
	return sess, nil
}
