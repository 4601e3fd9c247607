// Package team implements Team Smart-Assignment: ranking eligible
// TeamMembers for a set of required skills and dispatching TeamTasks to the
// top candidate.
package team

import (
	"context"
	"sort"
	"strings"

	"github.com/wangmax2011/maxclaw/internal/store"
)

const (
	skillWeight    = 0.6
	workloadWeight = 0.4
)

// Candidate is one eligible Member ranked for a set of required skills.
type Candidate struct {
	Member           store.TeamMember
	CurrentTaskCount int
	SkillMatchScore  float64
	WorkloadFactor   float64
	OverallScore     float64
}

// Assigner ranks Members and dispatches TeamTasks against a Store.
type Assigner struct {
	store *store.Store
}

// New creates an Assigner backed by st.
func New(st *store.Store) *Assigner {
	return &Assigner{store: st}
}

// SuggestAssignments returns every eligible Member of teamID ranked by
// overallScore descending, ties broken by lower currentTaskCount then by
// Member id ascending.
func (a *Assigner) SuggestAssignments(ctx context.Context, teamID string, requiredSkills []string) ([]Candidate, error) {
	members, err := a.store.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, m := range members {
		if m.Role == store.RoleLead || m.Status == store.MemberOffline {
			continue
		}
		count, err := a.store.CountActiveTasksForMember(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if count >= m.MaxConcurrentTasks {
			continue
		}
		skillScore := skillMatchScore(requiredSkills, m)
		workload := workloadFactor(count, m.MaxConcurrentTasks)
		candidates = append(candidates, Candidate{
			Member:           m,
			CurrentTaskCount: count,
			SkillMatchScore:  skillScore,
			WorkloadFactor:   workload,
			OverallScore:     skillWeight*skillScore + workloadWeight*workload,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.OverallScore != cj.OverallScore {
			return ci.OverallScore > cj.OverallScore
		}
		if ci.CurrentTaskCount != cj.CurrentTaskCount {
			return ci.CurrentTaskCount < cj.CurrentTaskCount
		}
		return ci.Member.ID < cj.Member.ID
	})
	return candidates, nil
}

// skillMatchScore returns 1 when requiredSkills is empty, otherwise the
// fraction of requiredSkills present in the Member's expertise∪specialty,
// matched case-insensitively.
func skillMatchScore(requiredSkills []string, m store.TeamMember) float64 {
	if len(requiredSkills) == 0 {
		return 1
	}
	have := make(map[string]struct{}, len(m.Expertise)+len(m.Specialty))
	for s := range m.Expertise {
		have[strings.ToLower(s)] = struct{}{}
	}
	for s := range m.Specialty {
		have[strings.ToLower(s)] = struct{}{}
	}
	matched := 0
	for _, req := range requiredSkills {
		if _, ok := have[strings.ToLower(req)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(requiredSkills))
}

func workloadFactor(currentTaskCount, maxConcurrentTasks int) float64 {
	if maxConcurrentTasks == 0 {
		return 0
	}
	return 1 - float64(currentTaskCount)/float64(maxConcurrentTasks)
}

// ErrNoCapacity is returned by CreateTaskWithAutoAssign when no Member is
// eligible to take the task.
const ErrNoCapacity = "no capacity: no eligible team member"

// CreateTaskWithAutoAssign creates a TeamTask and assigns it to the top
// ranked candidate. Fails with ErrNoCapacity if no Member is eligible.
func (a *Assigner) CreateTaskWithAutoAssign(ctx context.Context, teamID, sessionID, title, description string, requiredSkills []string) (store.TeamTask, error) {
	candidates, err := a.SuggestAssignments(ctx, teamID, requiredSkills)
	if err != nil {
		return store.TeamTask{}, err
	}
	if len(candidates) == 0 {
		return store.TeamTask{}, store.Validation(ErrNoCapacity)
	}
	top := candidates[0]

	task, err := a.store.CreateTeamTask(ctx, store.TeamTask{
		TeamID:         teamID,
		SessionID:      sessionID,
		Title:          title,
		Description:    description,
		RequiredSkills: requiredSkills,
	})
	if err != nil {
		return store.TeamTask{}, err
	}

	if err := a.store.AssignTeamTask(ctx, task.ID, top.Member.ID); err != nil {
		return store.TeamTask{}, err
	}
	if err := a.store.AssignMemberTask(ctx, top.Member.ID, task.ID, store.MemberBusy); err != nil {
		return store.TeamTask{}, err
	}
	task.AssigneeID = top.Member.ID
	task.Status = store.TeamTaskInProgress
	return task, nil
}
