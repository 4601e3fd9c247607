package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wangmax2011/maxclaw/internal/bus"
	"github.com/wangmax2011/maxclaw/internal/config"
	"github.com/wangmax2011/maxclaw/internal/ipc"
	"github.com/wangmax2011/maxclaw/internal/pool"
	"github.com/wangmax2011/maxclaw/internal/process"
	"github.com/wangmax2011/maxclaw/internal/store"
)

const defaultCodingAgentBinary = "claude"

// sessionManager implements ipc.Handlers on top of the Store, Session Pool,
// and process Supervisor: it is the one place that owns the mapping from a
// Session record to the OS process enacting it.
type sessionManager struct {
	st     *store.Store
	pool   *pool.Pool
	bus    *bus.Bus
	cfg    config.Config
	logger *slog.Logger

	startedAt    time.Time
	totalHandled atomic.Int64

	mu    sync.Mutex
	procs map[string]*process.Process // sessionId -> owned child process
}

func newSessionManager(st *store.Store, p *pool.Pool, b *bus.Bus, cfg config.Config, logger *slog.Logger) *sessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionManager{
		st:        st,
		pool:      p,
		bus:       b,
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now().UTC(),
		procs:     make(map[string]*process.Process),
	}
}

func codingAgentBinary() string {
	if bin := os.Getenv("CLAUDE_BINARY"); bin != "" {
		return bin
	}
	return defaultCodingAgentBinary
}

func (m *sessionManager) SessionStart(ctx context.Context, params ipc.SessionStartParams) (ipc.SessionStartResult, error) {
	if params.ProjectID == "" {
		return ipc.SessionStartResult{}, ipc.NewDomainError("project unknown: projectId required")
	}

	project, err := m.st.GetProject(ctx, params.ProjectID)
	if err != nil {
		if store.IsNotFound(err) {
			return ipc.SessionStartResult{}, ipc.NewDomainError(fmt.Sprintf("project unknown: %s", params.ProjectID))
		}
		return ipc.SessionStartResult{}, err
	}

	if _, err := m.st.ActiveSessionForProject(ctx, project.ID); err == nil {
		return ipc.SessionStartResult{}, ipc.NewDomainError(fmt.Sprintf("session already exists for project %s", project.ID))
	} else if !store.IsNotFound(err) {
		return ipc.SessionStartResult{}, err
	}

	decision := m.pool.Admit(project.ID)
	if !decision.Allocated {
		return ipc.SessionStartResult{}, ipc.NewDomainError(fmt.Sprintf("AlreadyActive: %s", decision.Reason))
	}

	sessionID := uuid.NewString()
	args := buildAgentArgs(params)
	proc, err := process.Start(process.Spec{
		Command:   codingAgentBinary(),
		Args:      args,
		Dir:       project.AbsolutePath,
		SessionID: sessionID,
		ProjectID: project.ID,
		ExtraEnv:  apiKeyEnv(m.cfg),
	})
	if err != nil {
		return ipc.SessionStartResult{}, fmt.Errorf("spawn coding agent: %w", err)
	}

	sess, err := m.st.StartSessionWithID(ctx, sessionID, project.ID, proc.PID())
	if err != nil {
		_ = proc.Stop(ctx, process.DefaultStopGrace)
		return ipc.SessionStartResult{}, err
	}

	m.mu.Lock()
	m.procs[sess.ID] = proc
	m.mu.Unlock()

	m.pool.Allocate(sess.ID, project.ID)
	m.totalHandled.Add(1)
	m.bus.Publish("session.started", bus.Message{Type: bus.TypeNotification, Payload: map[string]any{
		"sessionId": sess.ID, "projectId": project.ID, "osProcessId": proc.PID(),
	}})

	go m.awaitExit(sess.ID, project.ID, proc)

	return ipc.SessionStartResult{SessionID: sess.ID, Status: "started"}, nil
}

func buildAgentArgs(params ipc.SessionStartParams) []string {
	var args []string
	for _, tool := range params.AllowedTools {
		args = append(args, "--allowedTools", tool)
	}
	if params.InitialPrompt != "" {
		args = append(args, "--print", params.InitialPrompt)
	}
	return args
}

func apiKeyEnv(cfg config.Config) []string {
	if key := cfg.APIKey(); key != "" {
		return []string{"ANTHROPIC_API_KEY=" + key}
	}
	return nil
}

// awaitExit watches a spawned child to completion and reconciles Store and
// Pool state once it exits on its own, without an explicit session.stop.
func (m *sessionManager) awaitExit(sessionID, projectID string, proc *process.Process) {
	<-proc.Done()

	status := store.SessionCompleted
	if proc.ExitErr() != nil {
		status = store.SessionInterrupted
	}

	ctx := context.Background()
	if _, err := m.st.EndSession(ctx, sessionID, status); err != nil {
		m.logger.Error("end session after exit", slog.String("session_id", sessionID), slog.Any("error", err))
	}
	m.pool.Release(sessionID)

	m.mu.Lock()
	delete(m.procs, sessionID)
	m.mu.Unlock()

	m.bus.Publish("session.ended", bus.Message{Type: bus.TypeNotification, Payload: map[string]any{
		"sessionId": sessionID, "projectId": projectID, "status": string(status),
	}})
}

func (m *sessionManager) SessionStop(ctx context.Context, params ipc.SessionStopParams) (ipc.SuccessResult, error) {
	if params.SessionID == "" {
		return ipc.SuccessResult{}, ipc.NewDomainError("NotFound")
	}

	sess, err := m.st.GetSession(ctx, params.SessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return ipc.SuccessResult{}, ipc.NewDomainError("NotFound")
		}
		return ipc.SuccessResult{}, err
	}
	if sess.Status != store.SessionActive {
		return ipc.SuccessResult{}, ipc.NewDomainError("NotActive")
	}

	m.mu.Lock()
	proc, owned := m.procs[sess.ID]
	m.mu.Unlock()

	if owned {
		// proc.Stop triggers awaitExit, which will end the Session as
		// "interrupted" once the child actually exits.
		if err := proc.Stop(ctx, process.DefaultStopGrace); err != nil {
			m.logger.Error("stop session process", slog.String("session_id", sess.ID), slog.Any("error", err))
		}
		return ipc.SuccessResult{Success: true}, nil
	}

	// Recovered but unowned: the daemon never spawned this lifetime's
	// process, so it cannot signal it. Mark the record terminal directly.
	if _, err := m.st.EndSession(ctx, sess.ID, store.SessionInterrupted); err != nil {
		return ipc.SuccessResult{}, err
	}
	m.pool.Release(sess.ID)
	return ipc.SuccessResult{Success: true}, nil
}

func (m *sessionManager) SessionStatus(ctx context.Context, params ipc.SessionStatusParams) (ipc.SessionStatusResult, error) {
	if params.SessionID == "" {
		return ipc.SessionStatusResult{}, ipc.NewDomainError("NotFound")
	}
	sess, err := m.st.GetSession(ctx, params.SessionID)
	if err != nil {
		if store.IsNotFound(err) {
			return ipc.SessionStatusResult{}, ipc.NewDomainError("NotFound")
		}
		return ipc.SessionStatusResult{}, err
	}
	return ipc.SessionStatusResult{Status: string(sess.Status), OSProcessID: sess.OSProcessID}, nil
}

func (m *sessionManager) SessionList(ctx context.Context) ([]ipc.SessionSnapshot, error) {
	sessions, err := m.st.ListActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.SessionSnapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, ipc.SessionSnapshot{
			SessionID:   sess.ID,
			ProjectID:   sess.ProjectID,
			Status:      string(sess.Status),
			OSProcessID: sess.OSProcessID,
			StartedAt:   sess.StartedAt.Format(time.RFC3339),
		})
	}
	return out, nil
}

func (m *sessionManager) SessionResume(ctx context.Context, params ipc.SessionResumeParams) (ipc.SessionStartResult, error) {
	if params.ProjectID != "" {
		sess, err := m.st.ActiveSessionForProject(ctx, params.ProjectID)
		if err != nil {
			if store.IsNotFound(err) {
				return ipc.SessionStartResult{}, ipc.NewDomainError("NoActiveSessions")
			}
			return ipc.SessionStartResult{}, err
		}
		return ipc.SessionStartResult{SessionID: sess.ID, Status: "started"}, nil
	}

	sessions, err := m.st.ListActiveSessions(ctx)
	if err != nil {
		return ipc.SessionStartResult{}, err
	}
	if len(sessions) == 0 {
		return ipc.SessionStartResult{}, ipc.NewDomainError("NoActiveSessions")
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.After(sessions[j].StartedAt) })
	return ipc.SessionStartResult{SessionID: sessions[0].ID, Status: "started"}, nil
}

func (m *sessionManager) DaemonStatus(ctx context.Context) (ipc.DaemonStatusResult, error) {
	return ipc.DaemonStatusResult{
		Running:              true,
		OSProcessID:          os.Getpid(),
		StartedAt:            m.startedAt.Format(time.RFC3339),
		UptimeSeconds:        int64(time.Since(m.startedAt).Seconds()),
		ActiveSessions:       m.pool.ActiveCount(),
		TotalSessionsHandled: m.totalHandled.Load(),
	}, nil
}

// recover implements session recovery (restart-time reconciliation): every
// persisted active Session either had its process die while the daemon was
// down (transitioned to interrupted) or is still running under a PID the
// daemon did not spawn this lifetime (retained but left unowned in procs,
// so SessionStop will not attempt to signal it).
func (m *sessionManager) recover(ctx context.Context) error {
	sessions, err := m.st.ListActiveSessions(ctx)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if !process.Alive(sess.OSProcessID) {
			if _, err := m.st.EndSession(ctx, sess.ID, store.SessionInterrupted); err != nil {
				m.logger.Error("recover session", slog.String("session_id", sess.ID), slog.Any("error", err))
			}
			continue
		}
		m.pool.Allocate(sess.ID, sess.ProjectID)
		m.logger.Info("recovered unowned active session", slog.String("session_id", sess.ID), slog.Int("pid", sess.OSProcessID))
	}
	return nil
}

// shutdownAll stops every daemon-owned child process and records a terminal
// Session for it, used by graceful shutdown.
func (m *sessionManager) shutdownAll(ctx context.Context) {
	m.mu.Lock()
	procs := make(map[string]*process.Process, len(m.procs))
	for id, p := range m.procs {
		procs[id] = p
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for sessionID, proc := range procs {
		wg.Add(1)
		go func(sessionID string, proc *process.Process) {
			defer wg.Done()
			if err := proc.Stop(ctx, process.DefaultStopGrace); err != nil {
				m.logger.Error("shutdown stop session", slog.String("session_id", sessionID), slog.Any("error", err))
			}
		}(sessionID, proc)
	}
	wg.Wait()
}
