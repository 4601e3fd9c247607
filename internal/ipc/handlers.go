package ipc

import "context"

// Handlers is implemented by the daemon coordinator and supplies the
// business logic behind every method in the wire protocol's method table.
// Implementations must be safe for concurrent use: the server dispatches
// each request on its own goroutine and responses may complete out of
// request order.
type Handlers interface {
	SessionStart(ctx context.Context, params SessionStartParams) (SessionStartResult, error)
	SessionStop(ctx context.Context, params SessionStopParams) (SuccessResult, error)
	SessionStatus(ctx context.Context, params SessionStatusParams) (SessionStatusResult, error)
	SessionList(ctx context.Context) ([]SessionSnapshot, error)
	SessionResume(ctx context.Context, params SessionResumeParams) (SessionStartResult, error)
	DaemonStatus(ctx context.Context) (DaemonStatusResult, error)
	DaemonStop(ctx context.Context) (SuccessResult, error)
}
