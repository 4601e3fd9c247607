// Command maxclaw is the CLI entrypoint and, when run with -daemon, the
// daemon process itself: it discovers projects, supervises coding-agent
// Sessions against them, and serves the control socket described in the
// daemon's IPC contract.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wangmax2011/maxclaw/internal/config"
	"github.com/wangmax2011/maxclaw/internal/daemon"
	"github.com/wangmax2011/maxclaw/internal/telemetry"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

DAEMON MODE:
  %s -daemon                  Run the daemon in the foreground

SUBCOMMANDS:
  %s list                          List known projects
  %s discover <path>               Walk path for project roots
  %s add <path> [--name NAME]      Register a project
  %s remove <projectOrName>        Unregister a project
  %s status                        Show daemon status
  %s history <projectOrName>       Show a project's Session history
  %s activity [projectOrName]      Show the activity log
  %s config [--add-path P | --remove-path P]
                                    Inspect or edit scan paths
  %s start <projectOrName>         Start a coding-agent Session
  %s --help                        Show this message

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0],
		os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  MAXCLAW_HOME            Data directory (default: ~/.maxclaw)
  ANTHROPIC_API_KEY        Coding-agent API key
  CLAUDE_BINARY            Overrides the resolved coding-agent binary path
`)
}

func main() {
	runDaemon := flag.Bool("daemon", false, "run the daemon in the foreground")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*runDaemon && len(args) > 0 {
		switch strings.ToLower(strings.TrimSpace(args[0])) {
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		case "list":
			os.Exit(runListCommand(ctx, args[1:]))
		case "discover":
			os.Exit(runDiscoverCommand(ctx, args[1:]))
		case "add":
			os.Exit(runAddCommand(ctx, args[1:]))
		case "remove":
			os.Exit(runRemoveCommand(ctx, args[1:]))
		case "status":
			os.Exit(runStatusCommand(ctx, args[1:]))
		case "history":
			os.Exit(runHistoryCommand(ctx, args[1:]))
		case "activity":
			os.Exit(runActivityCommand(ctx, args[1:]))
		case "config":
			os.Exit(runConfigCommand(ctx, args[1:]))
		case "start":
			os.Exit(runStartCommand(ctx, args[1:]))
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
			printUsage()
			os.Exit(2)
		}
		return
	}

	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw -daemon takes no positional arguments")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := telemetry.NewLogger(cfg.DataDir, cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("daemon init failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start failed", slog.Any("error", err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Stop(shutdownCtx); err != nil {
		logger.Error("daemon stop failed", slog.Any("error", err))
		os.Exit(1)
	}
}
