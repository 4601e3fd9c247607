package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecordActivity appends an Activity entry. The log is append-only: there
// is no update or delete path other than cascade-delete with the Project.
func (s *Store) RecordActivity(ctx context.Context, a Activity) (Activity, error) {
	a.ID = uuid.NewString()
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if a.Details == nil {
		a.Details = map[string]any{}
	}
	details, err := json.Marshal(a.Details)
	if err != nil {
		return Activity{}, Validation("encode activity details: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activities (id, project_id, session_id, kind, timestamp, details)
		VALUES (?, ?, ?, ?, ?, ?);
	`, a.ID, a.ProjectID, a.SessionID, a.Kind, a.Timestamp, string(details))
	if err != nil {
		return Activity{}, Operational("record activity", err)
	}
	return a, nil
}

// ListActivities returns a project's activity log, most recent first. A
// zero projectID returns activity across all projects.
func (s *Store) ListActivities(ctx context.Context, projectID string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if projectID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, project_id, session_id, kind, timestamp, details
			FROM activities ORDER BY timestamp DESC LIMIT ?;
		`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, project_id, session_id, kind, timestamp, details
			FROM activities WHERE project_id = ? ORDER BY timestamp DESC LIMIT ?;
		`, projectID, limit)
	}
	if err != nil {
		return nil, Operational("list activities", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		var details string
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.SessionID, &a.Kind, &a.Timestamp, &details); err != nil {
			return nil, Operational("scan activity", err)
		}
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return nil, Operational("decode activity details", err)
		}
		out = append(out, a)
	}
	return out, Operational("list activities", rows.Err())
}
