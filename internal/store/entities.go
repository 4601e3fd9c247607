package store

import "time"

// Project is a discovered source tree identified by one or more marker files.
type Project struct {
	ID                   string
	Name                 string
	AbsolutePath         string
	Description          string
	TechStack            []string
	DiscoveredAt         time.Time
	LastAccessedAt       *time.Time
	NotificationWebhook  string
	NotificationPlatform string
	NotificationMinLevel string
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionCompleted   SessionStatus = "completed"
	SessionInterrupted SessionStatus = "interrupted"
)

// Session is a running (or completed) invocation of the coding agent against
// a single Project. At most one Session per ProjectID may be active.
type Session struct {
	ID                 string
	ProjectID          string
	StartedAt          time.Time
	EndedAt            *time.Time
	Status             SessionStatus
	Summary            string
	SummaryStatus      string
	SummaryGeneratedAt *time.Time
	OSProcessID        int
}

// ActivityKind enumerates the append-only audit log's event kinds.
type ActivityKind string

const (
	ActivityStart      ActivityKind = "start"
	ActivityCommand    ActivityKind = "command"
	ActivityComplete   ActivityKind = "complete"
	ActivityDiscover   ActivityKind = "discover"
	ActivityAdd        ActivityKind = "add"
	ActivityRemove     ActivityKind = "remove"
	ActivityTeamStart  ActivityKind = "team_start"
	ActivityTeamStop   ActivityKind = "team_stop"
)

// Activity is an append-only audit log entry.
type Activity struct {
	ID        string
	ProjectID string
	SessionID string
	Kind      ActivityKind
	Timestamp time.Time
	Details   map[string]any
}

// TaskKind enumerates the recognised Schedule task kinds.
type TaskKind string

const (
	TaskReminder   TaskKind = "reminder"
	TaskBackup     TaskKind = "backup"
	TaskCommand    TaskKind = "command"
	TaskSkill      TaskKind = "skill"
	TaskGithubSync TaskKind = "github-sync"
)

// Schedule is a cron-triggered task attached to a Project.
type Schedule struct {
	ID             string
	ProjectID      string
	Name           string
	Description    string
	CronExpression string
	TaskKind       TaskKind
	Command        string
	SkillName      string
	SkillCommand   string
	SkillArgs      []string
	Message        string
	Enabled        bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	RunCount       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduleRunStatus is the lifecycle state of one Schedule execution.
type ScheduleRunStatus string

const (
	RunPending   ScheduleRunStatus = "pending"
	RunRunning   ScheduleRunStatus = "running"
	RunCompleted ScheduleRunStatus = "completed"
	RunFailed    ScheduleRunStatus = "failed"
)

// ScheduleLog records one execution of a Schedule.
type ScheduleLog struct {
	ID             string
	ScheduleID     string
	Status         ScheduleRunStatus
	StartedAt      time.Time
	CompletedAt    *time.Time
	Output         string
	Error          string
	DurationMillis int64
}

// TeamStatus is the lifecycle state of a Team.
type TeamStatus string

const (
	TeamIdle      TeamStatus = "idle"
	TeamActive    TeamStatus = "active"
	TeamCompleted TeamStatus = "completed"
)

// Team is a group of simulated software-engineering personas (Members) to
// which Tasks are assigned.
type Team struct {
	ID           string
	Name         string
	ProjectID    string
	LeadMemberID string
	MemberIDs    []string
	Status       TeamStatus
	CreatedAt    time.Time
	Config       map[string]any
}

// MemberRole enumerates a TeamMember's role.
type MemberRole string

const (
	RoleLead      MemberRole = "lead"
	RoleDeveloper MemberRole = "developer"
	RoleArchitect MemberRole = "architect"
	RoleQA        MemberRole = "qa"
	RolePM        MemberRole = "pm"
	RoleAnalyst   MemberRole = "analyst"
)

// MemberStatus is the lifecycle state of a TeamMember.
type MemberStatus string

const (
	MemberIdle    MemberStatus = "idle"
	MemberBusy    MemberStatus = "busy"
	MemberOffline MemberStatus = "offline"
)

// TeamMember is a simulated software-engineering persona within a Team.
type TeamMember struct {
	ID                 string
	TeamID             string
	Name               string
	Role               MemberRole
	Specialty          map[string]struct{}
	Expertise          map[string]struct{}
	Status             MemberStatus
	CurrentTaskID      string
	MaxConcurrentTasks int
}

// TaskStatus is the lifecycle state of a TeamTask.
type TaskStatus string

const (
	TeamTaskPending    TaskStatus = "pending"
	TeamTaskInProgress TaskStatus = "in_progress"
	TeamTaskCompleted  TaskStatus = "completed"
	TeamTaskBlocked    TaskStatus = "blocked"
)

// TeamTask is a unit of work dispatched to a TeamMember.
type TeamTask struct {
	ID             string
	TeamID         string
	SessionID      string
	AssigneeID     string
	Title          string
	Description    string
	Status         TaskStatus
	Dependencies   map[string]struct{}
	CreatedAt      time.Time
	CompletedAt    *time.Time
	Result         string
	Kind           string
	RequiredSkills []string
	Priority       int
}

// TeamSession records one run of a Team against a goal.
type TeamSession struct {
	ID        string
	TeamID    string
	ProjectID string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    TeamStatus
	Goal      string
	TaskIDs   []string
}

// SkillSource distinguishes where a Skill's manifest was loaded from.
type SkillSource string

const (
	SkillBuiltin  SkillSource = "builtin"
	SkillExternal SkillSource = "external"
)

// SkillRecord is the persisted projection of a loaded Skill.
type SkillRecord struct {
	ID        string
	Name      string
	Version   string
	Source    SkillSource
	Path      string
	Enabled   bool
	Config    map[string]any
	LoadedAt  *time.Time
	Error     string
	Manifest  map[string]any
}
