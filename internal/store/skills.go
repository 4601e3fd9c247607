package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// UpsertSkill records or updates a Skill's persisted projection, keyed by
// its unique name.
func (s *Store) UpsertSkill(ctx context.Context, rec SkillRecord) (SkillRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Config == nil {
		rec.Config = map[string]any{}
	}
	if rec.Manifest == nil {
		rec.Manifest = map[string]any{}
	}
	config, err := json.Marshal(rec.Config)
	if err != nil {
		return SkillRecord{}, Validation("encode skill config: " + err.Error())
	}
	manifest, err := json.Marshal(rec.Manifest)
	if err != nil {
		return SkillRecord{}, Validation("encode skill manifest: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO skills (id, name, version, source, path, enabled, config, loaded_at, error, manifest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version, source = excluded.source, path = excluded.path,
			enabled = excluded.enabled, config = excluded.config, loaded_at = excluded.loaded_at,
			error = excluded.error, manifest = excluded.manifest;
	`, rec.ID, rec.Name, rec.Version, rec.Source, rec.Path, rec.Enabled, string(config),
		rec.LoadedAt, rec.Error, string(manifest))
	if err != nil {
		return SkillRecord{}, Operational("upsert skill", err)
	}
	return rec, nil
}

// GetSkillByName returns the SkillRecord named name, or NotFound.
func (s *Store) GetSkillByName(ctx context.Context, name string) (SkillRecord, error) {
	row := s.db.QueryRowContext(ctx, skillSelect+` WHERE name = ?;`, name)
	return scanSkill(row)
}

// ListSkills returns every persisted SkillRecord.
func (s *Store) ListSkills(ctx context.Context) ([]SkillRecord, error) {
	rows, err := s.db.QueryContext(ctx, skillSelect+` ORDER BY name;`)
	if err != nil {
		return nil, Operational("list skills", err)
	}
	defer rows.Close()
	var out []SkillRecord
	for rows.Next() {
		rec, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, Operational("list skills", rows.Err())
}

// SetSkillEnabled toggles a Skill's enabled flag.
func (s *Store) SetSkillEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE skills SET enabled = ? WHERE name = ?;`, enabled, name)
	if err != nil {
		return Operational("set skill enabled", err)
	}
	return checkAffected(res, "skill")
}

// DeleteSkill removes a Skill's persisted record.
func (s *Store) DeleteSkill(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE name = ?;`, name)
	if err != nil {
		return Operational("delete skill", err)
	}
	return checkAffected(res, "skill")
}

const skillSelect = `
	SELECT id, name, version, source, path, enabled, config, loaded_at, error, manifest
	FROM skills`

func scanSkill(row rowScanner) (SkillRecord, error) {
	var rec SkillRecord
	var config, manifest string
	var loadedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.Source, &rec.Path, &rec.Enabled,
		&config, &loadedAt, &rec.Error, &manifest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SkillRecord{}, NotFound("skill not found")
		}
		return SkillRecord{}, Operational("scan skill", err)
	}
	if loadedAt.Valid {
		t := loadedAt.Time
		rec.LoadedAt = &t
	}
	if err := json.Unmarshal([]byte(config), &rec.Config); err != nil {
		return SkillRecord{}, Operational("decode skill config", err)
	}
	if err := json.Unmarshal([]byte(manifest), &rec.Manifest); err != nil {
		return SkillRecord{}, Operational("decode skill manifest", err)
	}
	return rec, nil
}
