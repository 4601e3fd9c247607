package notifier

import "time"

// Trigger is one of the five notification shapes: generic message, session
// summary, team-task completion, error alert, and schedule execution result.
type Trigger interface {
	Level() Level
	title() string
	fields() map[string]any
}

// GenericNotification is a free-form message with an explicit level.
type GenericNotification struct {
	Message string
	Lvl     Level
}

func (g GenericNotification) Level() Level { return g.Lvl }
func (g GenericNotification) title() string { return "Notification" }
func (g GenericNotification) fields() map[string]any {
	return map[string]any{"message": g.Message}
}

// SessionSummary reports a finished Session; Duration is computed from
// StartedAt/EndedAt.
type SessionSummary struct {
	ProjectName string
	SessionID   string
	StartedAt   time.Time
	EndedAt     time.Time
	Summary     string
}

func (s SessionSummary) Level() Level  { return LevelInfo }
func (s SessionSummary) title() string { return "Session Summary" }
func (s SessionSummary) fields() map[string]any {
	return map[string]any{
		"project":  s.ProjectName,
		"sessionId": s.SessionID,
		"duration": s.EndedAt.Sub(s.StartedAt).String(),
		"summary":  s.Summary,
	}
}

// TeamTaskCompletion reports a TeamTask finishing.
type TeamTaskCompletion struct {
	TeamName string
	TaskID   string
	Title    string
	Result   string
}

func (t TeamTaskCompletion) Level() Level  { return LevelInfo }
func (t TeamTaskCompletion) title() string { return "Team Task Completed" }
func (t TeamTaskCompletion) fields() map[string]any {
	return map[string]any{
		"team":   t.TeamName,
		"taskId": t.TaskID,
		"title":  t.Title,
		"result": t.Result,
	}
}

// ErrorAlert reports an unexpected failure, with optional extra context and
// a stack trace.
type ErrorAlert struct {
	Message string
	Context map[string]string
	Stack   string
}

func (e ErrorAlert) Level() Level  { return LevelError }
func (e ErrorAlert) title() string { return "Error Alert" }
func (e ErrorAlert) fields() map[string]any {
	f := map[string]any{"message": e.Message}
	if len(e.Context) > 0 {
		f["context"] = e.Context
	}
	if e.Stack != "" {
		f["stack"] = e.Stack
	}
	return f
}

// ScheduleResult reports one Schedule execution outcome.
type ScheduleResult struct {
	ScheduleName string
	Success      bool
	Output       string
	ErrMessage   string
}

func (r ScheduleResult) Level() Level {
	if r.Success {
		return LevelInfo
	}
	return LevelError
}
func (r ScheduleResult) title() string { return "Schedule Execution Result" }
func (r ScheduleResult) fields() map[string]any {
	f := map[string]any{"schedule": r.ScheduleName, "success": r.Success}
	if r.Output != "" {
		f["output"] = r.Output
	}
	if r.ErrMessage != "" {
		f["error"] = r.ErrMessage
	}
	return f
}
