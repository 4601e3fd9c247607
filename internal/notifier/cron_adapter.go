package notifier

import "context"

// ScheduleNotifier adapts a Notifier and a per-project Target resolver into
// the cron package's narrow Notifier interface.
type ScheduleNotifier struct {
	notifier   *Notifier
	targetFunc func(projectID string) (Target, bool)
}

// NewScheduleNotifier creates a ScheduleNotifier. targetFunc resolves a
// Project's notification Target, returning ok=false when the Project has no
// webhook configured.
func NewScheduleNotifier(n *Notifier, targetFunc func(projectID string) (Target, bool)) *ScheduleNotifier {
	return &ScheduleNotifier{notifier: n, targetFunc: targetFunc}
}

// NotifyScheduleResult implements the cron package's Notifier interface.
func (s *ScheduleNotifier) NotifyScheduleResult(ctx context.Context, projectID, scheduleName string, success bool, output, errMsg string) {
	target, ok := s.targetFunc(projectID)
	if !ok {
		return
	}
	_ = s.notifier.Deliver(ctx, target, ScheduleResult{
		ScheduleName: scheduleName,
		Success:      success,
		Output:       output,
		ErrMessage:   errMsg,
	})
}
