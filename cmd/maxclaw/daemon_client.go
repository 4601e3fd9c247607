package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wangmax2011/maxclaw/internal/config"
	"github.com/wangmax2011/maxclaw/internal/daemon"
	"github.com/wangmax2011/maxclaw/internal/ipc"
)

const dialTimeout = 3 * time.Second

// dialDaemon connects to the running daemon's control socket, returning a
// friendly error if no daemon is listening.
func dialDaemon(cfg config.Config) (*ipc.Client, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = cfg.HomeDir
	}
	client, err := ipc.Dial(daemon.SocketPath(dataDir), dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("daemon not running (dial %s: %w)", daemon.SocketPath(dataDir), err)
	}
	return client, nil
}

func runStatusCommand(ctx context.Context, args []string) int {
	_ = ctx
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw status")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	client, err := dialDaemon(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer client.Close()

	var result ipc.DaemonStatusResult
	if err := client.Call("daemon.status", nil, &result); err != nil {
		fmt.Fprintf(os.Stderr, "daemon.status: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "running=%t pid=%d startedAt=%s uptimeSeconds=%d activeSessions=%d totalSessionsHandled=%d\n",
		result.Running, result.OSProcessID, result.StartedAt, result.UptimeSeconds,
		result.ActiveSessions, result.TotalSessionsHandled)
	return 0
}

func runStartCommand(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw start <projectOrName>")
		return 2
	}

	st, cfg, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	project, err := st.GetProjectByName(ctx, args[0])
	st.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup project: %v\n", err)
		return 1
	}

	client, err := dialDaemon(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer client.Close()

	var result ipc.SessionStartResult
	if err := client.Call("session.start", ipc.SessionStartParams{ProjectID: project.ID}, &result); err != nil {
		fmt.Fprintf(os.Stderr, "session.start: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "started session %s (%s)\n", result.SessionID, result.Status)
	return 0
}
