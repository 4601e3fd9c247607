package ipc_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wangmax2011/maxclaw/internal/ipc"
)

type fakeHandlers struct {
	active map[string]string
}

func newFakeHandlers() *fakeHandlers {
	return &fakeHandlers{active: map[string]string{}}
}

func (f *fakeHandlers) SessionStart(ctx context.Context, p ipc.SessionStartParams) (ipc.SessionStartResult, error) {
	if p.ProjectID == "" {
		return ipc.SessionStartResult{}, ipc.NewDomainError("project unknown")
	}
	if _, ok := f.active[p.ProjectID]; ok {
		return ipc.SessionStartResult{}, ipc.NewDomainError("AlreadyActive")
	}
	f.active[p.ProjectID] = "s-" + p.ProjectID
	return ipc.SessionStartResult{SessionID: "s-" + p.ProjectID, Status: "started"}, nil
}

func (f *fakeHandlers) SessionStop(ctx context.Context, p ipc.SessionStopParams) (ipc.SuccessResult, error) {
	for proj, sid := range f.active {
		if sid == p.SessionID {
			delete(f.active, proj)
			return ipc.SuccessResult{Success: true}, nil
		}
	}
	return ipc.SuccessResult{}, ipc.NewDomainError("NotFound")
}

func (f *fakeHandlers) SessionStatus(ctx context.Context, p ipc.SessionStatusParams) (ipc.SessionStatusResult, error) {
	for _, sid := range f.active {
		if sid == p.SessionID {
			return ipc.SessionStatusResult{Status: "active"}, nil
		}
	}
	return ipc.SessionStatusResult{}, ipc.NewDomainError("NotFound")
}

func (f *fakeHandlers) SessionList(ctx context.Context) ([]ipc.SessionSnapshot, error) {
	out := make([]ipc.SessionSnapshot, 0, len(f.active))
	for proj, sid := range f.active {
		out = append(out, ipc.SessionSnapshot{SessionID: sid, ProjectID: proj, Status: "active"})
	}
	return out, nil
}

func (f *fakeHandlers) SessionResume(ctx context.Context, p ipc.SessionResumeParams) (ipc.SessionStartResult, error) {
	if len(f.active) == 0 {
		return ipc.SessionStartResult{}, ipc.NewDomainError("NoActiveSessions")
	}
	for _, sid := range f.active {
		return ipc.SessionStartResult{SessionID: sid, Status: "started"}, nil
	}
	return ipc.SessionStartResult{}, nil
}

func (f *fakeHandlers) DaemonStatus(ctx context.Context) (ipc.DaemonStatusResult, error) {
	return ipc.DaemonStatusResult{Running: true, ActiveSessions: len(f.active)}, nil
}

func (f *fakeHandlers) DaemonStop(ctx context.Context) (ipc.SuccessResult, error) {
	return ipc.SuccessResult{Success: true}, nil
}

func startTestServer(t *testing.T, handlers ipc.Handlers) (string, func()) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	srv := ipc.NewServer(handlers, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, socketPath) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err := ipc.Dial(socketPath, 100*time.Millisecond)
		if err == nil {
			c.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	return socketPath, func() {
		cancel()
		srv.Close()
	}
}

func TestServer_SessionStartExclusivity(t *testing.T) {
	socketPath, stop := startTestServer(t, newFakeHandlers())
	defer stop()

	c, err := ipc.Dial(socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	var first ipc.SessionStartResult
	if err := c.Call("session.start", ipc.SessionStartParams{ProjectID: "p1"}, &first); err != nil {
		t.Fatalf("session.start: %v", err)
	}
	if first.Status != "started" || first.SessionID == "" {
		t.Fatalf("unexpected result: %+v", first)
	}

	c2, err := ipc.Dial(socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial second conn: %v", err)
	}
	defer c2.Close()

	var second ipc.SessionStartResult
	err = c2.Call("session.start", ipc.SessionStartParams{ProjectID: "p1"}, &second)
	if err == nil {
		t.Fatal("expected AlreadyActive error on duplicate session.start")
	}

	var stopResult ipc.SuccessResult
	if err := c.Call("session.stop", ipc.SessionStopParams{SessionID: first.SessionID}, &stopResult); err != nil {
		t.Fatalf("session.stop: %v", err)
	}
	if !stopResult.Success {
		t.Fatalf("expected success=true, got %+v", stopResult)
	}
}

func TestServer_MethodNotFound(t *testing.T) {
	socketPath, stop := startTestServer(t, newFakeHandlers())
	defer stop()

	c, err := ipc.Dial(socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	err = c.Call("bogus.method", nil, nil)
	if err == nil {
		t.Fatal("expected method not found error")
	}
}

func TestServer_DaemonStatus(t *testing.T) {
	handlers := newFakeHandlers()
	socketPath, stop := startTestServer(t, handlers)
	defer stop()

	c, err := ipc.Dial(socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	var status ipc.DaemonStatusResult
	if err := c.Call("daemon.status", nil, &status); err != nil {
		t.Fatalf("daemon.status: %v", err)
	}
	if !status.Running {
		t.Fatalf("expected running=true, got %+v", status)
	}
}

func TestServer_PipelinedRequestsOnOneConnection(t *testing.T) {
	socketPath, stop := startTestServer(t, newFakeHandlers())
	defer stop()

	c, err := ipc.Dial(socketPath, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	for i := 0; i < 5; i++ {
		var result ipc.SessionStartResult
		projectID := "proj-" + string(rune('a'+i))
		if err := c.Call("session.start", ipc.SessionStartParams{ProjectID: projectID}, &result); err != nil {
			t.Fatalf("session.start %d: %v", i, err)
		}
	}

	var list []ipc.SessionSnapshot
	if err := c.Call("session.list", nil, &list); err != nil {
		t.Fatalf("session.list: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 active sessions, got %d", len(list))
	}
}
