package team_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wangmax2011/maxclaw/internal/store"
	"github.com/wangmax2011/maxclaw/internal/team"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateTeam(t *testing.T, s *store.Store, projectID string) store.Team {
	t.Helper()
	tm, err := s.CreateTeam(context.Background(), store.Team{Name: "eng", ProjectID: projectID})
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	return tm
}

func mustCreateMember(t *testing.T, s *store.Store, m store.TeamMember) store.TeamMember {
	t.Helper()
	created, err := s.CreateTeamMember(context.Background(), m)
	if err != nil {
		t.Fatalf("create team member: %v", err)
	}
	return created
}

func setOf(vals ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}

func TestSuggestAssignments_NoRequiredSkillsAllScoreOne(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj, err := s.CreateProject(ctx, store.Project{Name: "p", AbsolutePath: t.TempDir()})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tm := mustCreateTeam(t, s, proj.ID)
	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "a", Role: store.RoleDeveloper, MaxConcurrentTasks: 3})

	a := team.New(s)
	candidates, err := a.SuggestAssignments(ctx, tm.ID, nil)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(candidates) != 1 || candidates[0].OverallScore != 1 {
		t.Fatalf("expected one candidate with score 1, got %+v", candidates)
	}
}

func TestSuggestAssignments_SkillMatchRanking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj, err := s.CreateProject(ctx, store.Project{Name: "p", AbsolutePath: t.TempDir()})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tm := mustCreateTeam(t, s, proj.ID)

	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "A", Role: store.RoleDeveloper,
		Expertise: setOf("frontend", "react"), MaxConcurrentTasks: 3})
	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "B", Role: store.RoleDeveloper,
		Expertise: setOf("backend", "api"), MaxConcurrentTasks: 5})
	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "C", Role: store.RoleDeveloper,
		Expertise: setOf("frontend", "backend", "db", "ts", "node"), MaxConcurrentTasks: 4})

	a := team.New(s)
	candidates, err := a.SuggestAssignments(ctx, tm.ID, []string{"frontend", "backend"})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].Member.Name != "C" || candidates[0].SkillMatchScore != 1 || candidates[0].OverallScore != 1.0 {
		t.Fatalf("expected C first with score 1.0, got %+v", candidates[0])
	}
	for _, c := range candidates[1:] {
		if c.SkillMatchScore != 0.5 {
			t.Fatalf("expected 0.5 skill match for %s, got %v", c.Member.Name, c.SkillMatchScore)
		}
	}
}

func TestSuggestAssignments_ExcludesLeadOfflineAndAtCapacity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj, err := s.CreateProject(ctx, store.Project{Name: "p", AbsolutePath: t.TempDir()})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tm := mustCreateTeam(t, s, proj.ID)

	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "lead", Role: store.RoleLead, MaxConcurrentTasks: 3})
	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "offline", Role: store.RoleDeveloper, Status: store.MemberOffline, MaxConcurrentTasks: 3})
	atCap := mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "full", Role: store.RoleDeveloper, MaxConcurrentTasks: 1})
	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "available", Role: store.RoleDeveloper, MaxConcurrentTasks: 2})

	if _, err := s.CreateTeamTask(ctx, store.TeamTask{TeamID: tm.ID, AssigneeID: atCap.ID, Title: "busy-work"}); err != nil {
		t.Fatalf("create team task: %v", err)
	}

	a := team.New(s)
	candidates, err := a.SuggestAssignments(ctx, tm.ID, nil)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Member.Name != "available" {
		t.Fatalf("expected only 'available' eligible, got %+v", candidates)
	}
}

func TestSuggestAssignments_TieBreaksByTaskCountThenID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj, err := s.CreateProject(ctx, store.Project{Name: "p", AbsolutePath: t.TempDir()})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tm := mustCreateTeam(t, s, proj.ID)

	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "x", Role: store.RoleDeveloper, MaxConcurrentTasks: 4})
	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "y", Role: store.RoleDeveloper, MaxConcurrentTasks: 4})

	a := team.New(s)
	candidates, err := a.SuggestAssignments(ctx, tm.ID, nil)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Member.ID >= candidates[1].Member.ID {
		t.Fatalf("expected ascending member id tie-break, got %s then %s", candidates[0].Member.ID, candidates[1].Member.ID)
	}
}

func TestCreateTaskWithAutoAssign_AssignsTopCandidate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj, err := s.CreateProject(ctx, store.Project{Name: "p", AbsolutePath: t.TempDir()})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tm := mustCreateTeam(t, s, proj.ID)
	best := mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "best", Role: store.RoleDeveloper,
		Expertise: setOf("go"), MaxConcurrentTasks: 3})
	mustCreateMember(t, s, store.TeamMember{TeamID: tm.ID, Name: "other", Role: store.RoleDeveloper, MaxConcurrentTasks: 3})

	a := team.New(s)
	task, err := a.CreateTaskWithAutoAssign(ctx, tm.ID, "sess-1", "fix bug", "desc", []string{"go"})
	if err != nil {
		t.Fatalf("create task with auto assign: %v", err)
	}
	if task.AssigneeID != best.ID {
		t.Fatalf("expected task assigned to %s, got %s", best.ID, task.AssigneeID)
	}

	member, err := s.GetTeamMember(ctx, best.ID)
	if err != nil {
		t.Fatalf("get team member: %v", err)
	}
	if member.CurrentTaskID != task.ID || member.Status != store.MemberBusy {
		t.Fatalf("expected member updated with task+busy status, got %+v", member)
	}
}

func TestCreateTaskWithAutoAssign_NoCapacityFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	proj, err := s.CreateProject(ctx, store.Project{Name: "p", AbsolutePath: t.TempDir()})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	tm := mustCreateTeam(t, s, proj.ID)

	a := team.New(s)
	_, err = a.CreateTaskWithAutoAssign(ctx, tm.ID, "sess-1", "fix bug", "desc", nil)
	if err == nil {
		t.Fatal("expected NoCapacity error with no eligible members")
	}
	if store.KindOf(err) != store.KindValidation {
		t.Fatalf("expected validation kind error, got %v", err)
	}
}
