//go:build darwin || linux

// Package daemon wires the Store, Session Pool, Session Queue, Bus, Cron
// Engine, Notifier, Search, and Skill Host into the singleton background
// process that owns every Session's child and serves the IPC control
// socket.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/wangmax2011/maxclaw/internal/bus"
	"github.com/wangmax2011/maxclaw/internal/config"
	"github.com/wangmax2011/maxclaw/internal/cron"
	"github.com/wangmax2011/maxclaw/internal/ipc"
	"github.com/wangmax2011/maxclaw/internal/notifier"
	"github.com/wangmax2011/maxclaw/internal/pool"
	"github.com/wangmax2011/maxclaw/internal/search"
	"github.com/wangmax2011/maxclaw/internal/skills"
	"github.com/wangmax2011/maxclaw/internal/store"
)

// DefaultHeartbeatInterval is used when config does not override it.
const DefaultHeartbeatInterval = 30 * time.Second

// Daemon is the singleton coordinator process described by the daemon
// lifecycle: PID-file-plus-flock singleton enforcement, session recovery,
// the IPC control socket, the cron sweep, and the liveness heartbeat.
type Daemon struct {
	*sessionManager

	cfg    config.Config
	logger *slog.Logger

	store     *store.Store
	pool      *pool.Pool
	bus       *bus.Bus
	cron      *cron.Scheduler
	notifier  *notifier.Notifier
	searcher  *search.Searcher
	skills    *skills.Registry
	ipcServer *ipc.Server

	lock *pidLock

	stopOnce sync.Once
	stopped  chan struct{}
}

// New constructs a Daemon from cfg without touching the filesystem beyond
// opening the Store.
func New(cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(store.DefaultPath(cfg.DataDir))
	if err != nil {
		return nil, store.Fatal("open store", err)
	}

	b := bus.New(logger)
	p := pool.New(pool.Config{
		MaxGlobalConcurrent: cfg.Multiplex.MaxSessions,
		MaxPerProject:       cfg.Multiplex.MaxSessionsPerProject,
	}, b)

	noti := notifier.New(logger)
	scheduleNotifier := notifier.NewScheduleNotifier(noti, func(projectID string) (notifier.Target, bool) {
		project, err := st.GetProject(context.Background(), projectID)
		if err != nil || project.NotificationWebhook == "" {
			return notifier.Target{}, false
		}
		return notifier.Target{
			Webhook:  project.NotificationWebhook,
			Platform: notifier.Platform(project.NotificationPlatform),
			MinLevel: notifier.Level(project.NotificationMinLevel),
		}, true
	})

	scheduler := cron.New(cron.Config{Store: st, Logger: logger, Notifier: scheduleNotifier})

	ripgrepPath, _ := exec.LookPath("rg")
	searcher := search.New(st, ripgrepPath, search.Config{})

	skillsRegistry := skills.NewRegistry(st, b, logger, cfg.DataDir, func(projectID string) (string, error) {
		project, err := st.GetProject(context.Background(), projectID)
		if err != nil {
			return "", err
		}
		return project.AbsolutePath, nil
	})

	scheduler.Register(store.TaskReminder, cron.ReminderExecutor())
	scheduler.Register(store.TaskBackup, cron.BackupExecutor(st, cfg.DataDir))
	scheduler.Register(store.TaskCommand, cron.CommandExecutor(st))
	scheduler.Register(store.TaskSkill, cron.SkillExecutor(skillsRunnerAdapter{registry: skillsRegistry}))

	b.Subscribe("session.started", func(msg bus.Message) {
		skillsRegistry.TriggerHook(context.Background(), "session:started", msg.Payload)
	})
	b.Subscribe("session.ended", func(msg bus.Message) {
		skillsRegistry.TriggerHook(context.Background(), "session:ended", msg.Payload)
	})

	sm := newSessionManager(st, p, b, cfg, logger)

	d := &Daemon{
		sessionManager: sm,
		cfg:            cfg,
		logger:         logger,
		store:          st,
		pool:           p,
		bus:            b,
		cron:           scheduler,
		notifier:       noti,
		searcher:       searcher,
		skills:         skillsRegistry,
		stopped:        make(chan struct{}),
	}
	d.ipcServer = ipc.NewServer(d, logger)
	return d, nil
}

// skillsRunnerAdapter satisfies cron.SkillRunner over a skills.Registry.
type skillsRunnerAdapter struct {
	registry *skills.Registry
}

func (a skillsRunnerAdapter) Execute(ctx context.Context, skillName, command string, args []string, options map[string]any) (string, error) {
	return a.registry.Execute(ctx, skillName, command, args, options)
}

// SocketPath returns the daemon's control socket path within its data dir.
func SocketPath(dataDir string) string {
	return filepath.Join(dataDir, "daemon.sock")
}

// PIDPath returns the daemon's PID file path within its data dir.
func PIDPath(dataDir string) string {
	return filepath.Join(dataDir, "daemon.pid")
}

// Start acquires the singleton lock, recovers Sessions, starts the IPC
// server, the cron sweep, and the heartbeat loop, and returns once the
// daemon is ready to serve. It blocks in background goroutines, not in
// Start itself; callers typically follow with a wait on ctx.Done().
func (d *Daemon) Start(ctx context.Context) error {
	lock, err := acquirePIDLock(PIDPath(d.cfg.DataDir))
	if err != nil {
		if already, ok := err.(*ErrAlreadyRunning); ok {
			return already
		}
		return store.Fatal("acquire daemon lock", err)
	}
	d.lock = lock

	socketDir := filepath.Dir(SocketPath(d.cfg.DataDir))
	if err := os.MkdirAll(socketDir, 0o700); err != nil {
		d.lock.Unlock()
		return store.Fatal("create socket directory", err)
	}

	if err := d.sessionManager.recover(ctx); err != nil {
		d.logger.Error("session recovery", slog.Any("error", err))
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- d.ipcServer.Serve(ctx, SocketPath(d.cfg.DataDir))
	}()

	d.cron.Start(ctx)

	heartbeat := d.cfg.HeartbeatIntervalSeconds
	interval := DefaultHeartbeatInterval
	if heartbeat > 0 {
		interval = time.Duration(heartbeat) * time.Second
	}
	go d.heartbeatLoop(ctx, interval)

	select {
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("ipc server: %w", err)
		}
	default:
	}

	d.logger.Info("daemon started", slog.Int("pid", os.Getpid()), slog.String("socket", SocketPath(d.cfg.DataDir)))
	return nil
}

func (d *Daemon) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopped:
			return
		case <-ticker.C:
			d.logger.Debug("heartbeat",
				slog.Int("active_sessions", d.pool.ActiveCount()),
				slog.Int64("dropped_bus_events", d.bus.DroppedEventCount()))
		}
	}
}

// Stop performs graceful shutdown: stop accepting IPC connections, stop the
// cron engine, SIGTERM-then-grace-then-SIGKILL every daemon-owned Session
// process, write terminal Session records, close the socket, and remove the
// PID and socket files. Idempotent across multiple calls.
func (d *Daemon) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		close(d.stopped)
		d.ipcServer.Close()
		d.cron.Stop()
		d.sessionManager.shutdownAll(ctx)
		os.Remove(SocketPath(d.cfg.DataDir))
		if d.lock != nil {
			d.lock.Unlock()
		}
		if err := d.store.Close(); err != nil {
			d.logger.Error("close store", slog.Any("error", err))
		}
		d.logger.Info("daemon stopped")
	})
	return nil
}

// DaemonStop implements ipc.Handlers: it schedules a graceful Stop after
// this RPC's response has been written, since Stop closes the very IPC
// server handling the call.
func (d *Daemon) DaemonStop(ctx context.Context) (ipc.SuccessResult, error) {
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = d.Stop(context.Background())
	}()
	return ipc.SuccessResult{Success: true}, nil
}
