package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreateTeam inserts a new Team.
func (s *Store) CreateTeam(ctx context.Context, t Team) (Team, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = TeamIdle
	}
	if t.Config == nil {
		t.Config = map[string]any{}
	}
	memberIDs, err := json.Marshal(t.MemberIDs)
	if err != nil {
		return Team{}, Validation("encode member ids: " + err.Error())
	}
	config, err := json.Marshal(t.Config)
	if err != nil {
		return Team{}, Validation("encode team config: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, project_id, lead_member_id, member_ids, status, created_at, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`, t.ID, t.Name, t.ProjectID, t.LeadMemberID, string(memberIDs), t.Status, t.CreatedAt, string(config))
	if err != nil {
		return Team{}, Operational("create team", err)
	}
	return t, nil
}

// GetTeam returns the Team with id, or NotFound.
func (s *Store) GetTeam(ctx context.Context, id string) (Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, project_id, lead_member_id, member_ids, status, created_at, config
		FROM teams WHERE id = ?;
	`, id)
	return scanTeam(row)
}

// ListTeams returns every Team for a project.
func (s *Store) ListTeams(ctx context.Context, projectID string) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, project_id, lead_member_id, member_ids, status, created_at, config
		FROM teams WHERE project_id = ? ORDER BY created_at;
	`, projectID)
	if err != nil {
		return nil, Operational("list teams", err)
	}
	defer rows.Close()
	var out []Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, Operational("list teams", rows.Err())
}

// SetTeamStatus updates a Team's status.
func (s *Store) SetTeamStatus(ctx context.Context, id string, status TeamStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE teams SET status = ? WHERE id = ?;`, status, id)
	if err != nil {
		return Operational("set team status", err)
	}
	return checkAffected(res, "team")
}

// AddTeamMemberID appends a member id to a Team's roster.
func (s *Store) AddTeamMemberID(ctx context.Context, teamID, memberID string) error {
	t, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	t.MemberIDs = append(t.MemberIDs, memberID)
	encoded, err := json.Marshal(t.MemberIDs)
	if err != nil {
		return Validation("encode member ids: " + err.Error())
	}
	res, err := s.db.ExecContext(ctx, `UPDATE teams SET member_ids = ? WHERE id = ?;`, string(encoded), teamID)
	if err != nil {
		return Operational("add team member id", err)
	}
	return checkAffected(res, "team")
}

func scanTeam(row rowScanner) (Team, error) {
	var t Team
	var memberIDs, config string
	err := row.Scan(&t.ID, &t.Name, &t.ProjectID, &t.LeadMemberID, &memberIDs, &t.Status, &t.CreatedAt, &config)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Team{}, NotFound("team not found")
		}
		return Team{}, Operational("scan team", err)
	}
	if err := json.Unmarshal([]byte(memberIDs), &t.MemberIDs); err != nil {
		return Team{}, Operational("decode member ids", err)
	}
	if err := json.Unmarshal([]byte(config), &t.Config); err != nil {
		return Team{}, Operational("decode team config", err)
	}
	return t, nil
}

// CreateTeamMember inserts a new TeamMember.
func (s *Store) CreateTeamMember(ctx context.Context, m TeamMember) (TeamMember, error) {
	m.ID = uuid.NewString()
	if m.MaxConcurrentTasks == 0 {
		m.MaxConcurrentTasks = 3
	}
	if m.Status == "" {
		m.Status = MemberIdle
	}
	specialty, err := json.Marshal(setToSlice(m.Specialty))
	if err != nil {
		return TeamMember{}, Validation("encode specialty: " + err.Error())
	}
	expertise, err := json.Marshal(setToSlice(m.Expertise))
	if err != nil {
		return TeamMember{}, Validation("encode expertise: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO team_members (id, team_id, name, role, specialty, expertise, status,
			current_task_id, max_concurrent_tasks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, m.ID, m.TeamID, m.Name, m.Role, string(specialty), string(expertise), m.Status,
		m.CurrentTaskID, m.MaxConcurrentTasks)
	if err != nil {
		return TeamMember{}, Operational("create team member", err)
	}
	return m, nil
}

// ListTeamMembers returns every TeamMember on a Team.
func (s *Store) ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, name, role, specialty, expertise, status, current_task_id, max_concurrent_tasks
		FROM team_members WHERE team_id = ? ORDER BY id;
	`, teamID)
	if err != nil {
		return nil, Operational("list team members", err)
	}
	defer rows.Close()
	var out []TeamMember
	for rows.Next() {
		m, err := scanTeamMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, Operational("list team members", rows.Err())
}

// GetTeamMember returns the TeamMember with id, or NotFound.
func (s *Store) GetTeamMember(ctx context.Context, id string) (TeamMember, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, name, role, specialty, expertise, status, current_task_id, max_concurrent_tasks
		FROM team_members WHERE id = ?;
	`, id)
	return scanTeamMember(row)
}

// SetMemberCapacity updates a TeamMember's MaxConcurrentTasks. Values
// outside [1,10] are rejected as Validation.
func (s *Store) SetMemberCapacity(ctx context.Context, id string, capacity int) error {
	if capacity < 1 || capacity > 10 {
		return Validation("member capacity must be between 1 and 10")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE team_members SET max_concurrent_tasks = ? WHERE id = ?;`, capacity, id)
	if err != nil {
		return Operational("set member capacity", err)
	}
	return checkAffected(res, "team member")
}

// AssignMemberTask updates a TeamMember's current task and status in one
// call, used when smart-assignment picks a candidate.
func (s *Store) AssignMemberTask(ctx context.Context, id, taskID string, status MemberStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE team_members SET current_task_id = ?, status = ? WHERE id = ?;
	`, taskID, status, id)
	if err != nil {
		return Operational("assign member task", err)
	}
	return checkAffected(res, "team member")
}

// SetMemberStatus updates a TeamMember's status (e.g. offline detection).
func (s *Store) SetMemberStatus(ctx context.Context, id string, status MemberStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE team_members SET status = ? WHERE id = ?;`, status, id)
	if err != nil {
		return Operational("set member status", err)
	}
	return checkAffected(res, "team member")
}

func scanTeamMember(row rowScanner) (TeamMember, error) {
	var m TeamMember
	var specialty, expertise string
	err := row.Scan(&m.ID, &m.TeamID, &m.Name, &m.Role, &specialty, &expertise, &m.Status,
		&m.CurrentTaskID, &m.MaxConcurrentTasks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TeamMember{}, NotFound("team member not found")
		}
		return TeamMember{}, Operational("scan team member", err)
	}
	var specialtySlice, expertiseSlice []string
	if err := json.Unmarshal([]byte(specialty), &specialtySlice); err != nil {
		return TeamMember{}, Operational("decode specialty", err)
	}
	if err := json.Unmarshal([]byte(expertise), &expertiseSlice); err != nil {
		return TeamMember{}, Operational("decode expertise", err)
	}
	m.Specialty = sliceToSet(specialtySlice)
	m.Expertise = sliceToSet(expertiseSlice)
	return m, nil
}

// CreateTeamTask inserts a new TeamTask.
func (s *Store) CreateTeamTask(ctx context.Context, t TeamTask) (TeamTask, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	if t.Status == "" {
		t.Status = TeamTaskPending
	}
	if t.Priority == 0 {
		t.Priority = 3
	}
	deps, err := json.Marshal(setToSlice(t.Dependencies))
	if err != nil {
		return TeamTask{}, Validation("encode dependencies: " + err.Error())
	}
	skills, err := json.Marshal(t.RequiredSkills)
	if err != nil {
		return TeamTask{}, Validation("encode required skills: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO team_tasks (id, team_id, session_id, assignee_member_id, title, description,
			status, dependencies, created_at, result, kind, required_skills, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, t.ID, t.TeamID, t.SessionID, t.AssigneeID, t.Title, t.Description, t.Status, string(deps),
		t.CreatedAt, t.Result, t.Kind, string(skills), t.Priority)
	if err != nil {
		return TeamTask{}, Operational("create team task", err)
	}
	return t, nil
}

// ListTeamTasks returns every TeamTask on a Team.
func (s *Store) ListTeamTasks(ctx context.Context, teamID string) ([]TeamTask, error) {
	rows, err := s.db.QueryContext(ctx, teamTaskSelect+` WHERE team_id = ? ORDER BY created_at;`, teamID)
	if err != nil {
		return nil, Operational("list team tasks", err)
	}
	defer rows.Close()
	var out []TeamTask
	for rows.Next() {
		t, err := scanTeamTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, Operational("list team tasks", rows.Err())
}

// CountActiveTasksForMember returns the number of TeamTasks assigned to a
// Member in status pending or in_progress — the currentTaskCount used by
// the smart-assignment scorer.
func (s *Store) CountActiveTasksForMember(ctx context.Context, memberID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM team_tasks
		WHERE assignee_member_id = ? AND status IN ('pending','in_progress');
	`, memberID).Scan(&n)
	if err != nil {
		return 0, Operational("count active tasks", err)
	}
	return n, nil
}

// AssignTeamTask sets a TeamTask's assignee and moves it to in_progress.
func (s *Store) AssignTeamTask(ctx context.Context, taskID, memberID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE team_tasks SET assignee_member_id = ?, status = 'in_progress' WHERE id = ?;
	`, memberID, taskID)
	if err != nil {
		return Operational("assign team task", err)
	}
	return checkAffected(res, "team task")
}

// CompleteTeamTask transitions a TeamTask to completed with a result.
func (s *Store) CompleteTeamTask(ctx context.Context, taskID, result string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE team_tasks SET status = 'completed', result = ?, completed_at = ? WHERE id = ?;
	`, result, now, taskID)
	if err != nil {
		return Operational("complete team task", err)
	}
	return checkAffected(res, "team task")
}

const teamTaskSelect = `
	SELECT id, team_id, session_id, assignee_member_id, title, description, status, dependencies,
		created_at, completed_at, result, kind, required_skills, priority
	FROM team_tasks`

func scanTeamTask(row rowScanner) (TeamTask, error) {
	var t TeamTask
	var deps, skills string
	var completedAt sql.NullTime
	err := row.Scan(&t.ID, &t.TeamID, &t.SessionID, &t.AssigneeID, &t.Title, &t.Description,
		&t.Status, &deps, &t.CreatedAt, &completedAt, &t.Result, &t.Kind, &skills, &t.Priority)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TeamTask{}, NotFound("team task not found")
		}
		return TeamTask{}, Operational("scan team task", err)
	}
	if completedAt.Valid {
		ct := completedAt.Time
		t.CompletedAt = &ct
	}
	var depSlice []string
	if err := json.Unmarshal([]byte(deps), &depSlice); err != nil {
		return TeamTask{}, Operational("decode dependencies", err)
	}
	t.Dependencies = sliceToSet(depSlice)
	if err := json.Unmarshal([]byte(skills), &t.RequiredSkills); err != nil {
		return TeamTask{}, Operational("decode required skills", err)
	}
	return t, nil
}

// CreateTeamSession inserts a new TeamSession.
func (s *Store) CreateTeamSession(ctx context.Context, ts TeamSession) (TeamSession, error) {
	ts.ID = uuid.NewString()
	ts.StartedAt = time.Now().UTC()
	if ts.Status == "" {
		ts.Status = TeamActive
	}
	taskIDs, err := json.Marshal(ts.TaskIDs)
	if err != nil {
		return TeamSession{}, Validation("encode task ids: " + err.Error())
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO team_sessions (id, team_id, project_id, started_at, status, goal, task_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, ts.ID, ts.TeamID, ts.ProjectID, ts.StartedAt, ts.Status, ts.Goal, string(taskIDs))
	if err != nil {
		return TeamSession{}, Operational("create team session", err)
	}
	return ts, nil
}

// EndTeamSession marks a TeamSession complete.
func (s *Store) EndTeamSession(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE team_sessions SET status = 'completed', ended_at = ? WHERE id = ?;
	`, now, id)
	if err != nil {
		return Operational("end team session", err)
	}
	return checkAffected(res, "team session")
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func sliceToSet(sl []string) map[string]struct{} {
	out := make(map[string]struct{}, len(sl))
	for _, s := range sl {
		out[s] = struct{}{}
	}
	return out
}
