package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateProject inserts a new Project. Unique by AbsolutePath; a duplicate
// path returns a Conflict error.
func (s *Store) CreateProject(ctx context.Context, p Project) (Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = time.Now().UTC()
	}
	if p.NotificationMinLevel == "" {
		p.NotificationMinLevel = "info"
	}
	techStack, err := json.Marshal(p.TechStack)
	if err != nil {
		return Project{}, Validation("encode tech stack: " + err.Error())
	}

	err = retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO projects (id, name, absolute_path, description, tech_stack, discovered_at,
				notification_webhook, notification_platform, notification_min_level)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
		`, p.ID, p.Name, p.AbsolutePath, p.Description, string(techStack), p.DiscoveredAt,
			p.NotificationWebhook, p.NotificationPlatform, p.NotificationMinLevel)
		return execErr
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Project{}, Conflict("project already exists at " + p.AbsolutePath)
		}
		return Project{}, Operational("create project", err)
	}
	return p, nil
}

// GetProject returns the Project with id, or NotFound.
func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, absolute_path, description, tech_stack, discovered_at, last_accessed_at,
			notification_webhook, notification_platform, notification_min_level
		FROM projects WHERE id = ?;
	`, id)
	return scanProject(row)
}

// GetProjectByPath looks up a Project by its absolute path.
func (s *Store) GetProjectByPath(ctx context.Context, absPath string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, absolute_path, description, tech_stack, discovered_at, last_accessed_at,
			notification_webhook, notification_platform, notification_min_level
		FROM projects WHERE absolute_path = ?;
	`, absPath)
	return scanProject(row)
}

// GetProjectByName resolves either an id or a (case-insensitive) name.
func (s *Store) GetProjectByName(ctx context.Context, nameOrID string) (Project, error) {
	if p, err := s.GetProject(ctx, nameOrID); err == nil {
		return p, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, absolute_path, description, tech_stack, discovered_at, last_accessed_at,
			notification_webhook, notification_platform, notification_min_level
		FROM projects WHERE name = ? COLLATE NOCASE LIMIT 1;
	`, nameOrID)
	return scanProject(row)
}

// ListProjects returns every Project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, absolute_path, description, tech_stack, discovered_at, last_accessed_at,
			notification_webhook, notification_platform, notification_min_level
		FROM projects ORDER BY name COLLATE NOCASE;
	`)
	if err != nil {
		return nil, Operational("list projects", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, Operational("list projects", rows.Err())
}

// TouchProjectAccess records a project access timestamp.
func (s *Store) TouchProjectAccess(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET last_accessed_at = ? WHERE id = ?;`, now, id)
	if err != nil {
		return Operational("touch project", err)
	}
	return checkAffected(res, "project")
}

// UpdateProjectNotification sets a project's notification configuration.
func (s *Store) UpdateProjectNotification(ctx context.Context, id, webhook, platform, minLevel string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET notification_webhook = ?, notification_platform = ?, notification_min_level = ?
		WHERE id = ?;
	`, webhook, platform, minLevel, id)
	if err != nil {
		return Operational("update project notification", err)
	}
	return checkAffected(res, "project")
}

// AddTechStackTags merges new tags into a Project's tech stack (dedup, order-preserving).
func (s *Store) AddTechStackTags(ctx context.Context, id string, tags ...string) error {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(p.TechStack))
	for _, t := range p.TechStack {
		seen[t] = struct{}{}
	}
	merged := p.TechStack
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return Validation("encode tech stack: " + err.Error())
	}
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET tech_stack = ? WHERE id = ?;`, string(encoded), id)
	if err != nil {
		return Operational("update tech stack", err)
	}
	return checkAffected(res, "project")
}

// DeleteProject removes a Project and cascades to Sessions, Activities,
// Schedules, and Teams via foreign keys.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?;`, id)
	if err != nil {
		return Operational("delete project", err)
	}
	return checkAffected(res, "project")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var p Project
	var techStack string
	var lastAccessed sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.AbsolutePath, &p.Description, &techStack, &p.DiscoveredAt,
		&lastAccessed, &p.NotificationWebhook, &p.NotificationPlatform, &p.NotificationMinLevel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, NotFound("project not found")
		}
		return Project{}, Operational("scan project", err)
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time
		p.LastAccessedAt = &t
	}
	if err := json.Unmarshal([]byte(techStack), &p.TechStack); err != nil {
		return Project{}, Operational("decode tech stack", err)
	}
	return p, nil
}

func checkAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return Operational("rows affected", err)
	}
	if n == 0 {
		return NotFound(what + " not found")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
