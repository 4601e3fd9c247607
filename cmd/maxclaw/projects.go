package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wangmax2011/maxclaw/internal/config"
	"github.com/wangmax2011/maxclaw/internal/discovery"
	"github.com/wangmax2011/maxclaw/internal/store"
)

// openStore loads config and opens the Store at its data directory. CLI
// commands that only read or write persisted state do not require a running
// daemon: the Store serialises its own operations.
func openStore() (*store.Store, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("config load: %w", err)
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = cfg.HomeDir
	}
	st, err := store.Open(store.DefaultPath(dataDir))
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("open store: %w", err)
	}
	return st, cfg, nil
}

func runListCommand(ctx context.Context, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw list")
		return 2
	}

	st, _, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer st.Close()

	projects, err := st.ListProjects(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list projects: %v\n", err)
		return 1
	}
	if len(projects) == 0 {
		fmt.Fprintln(os.Stdout, "no projects registered")
		return 0
	}
	for _, p := range projects {
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", p.ID, p.Name, p.AbsolutePath)
	}
	return 0
}

func runDiscoverCommand(ctx context.Context, args []string) int {
	_ = ctx
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw discover <path>")
		return 2
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve path: %v\n", err)
		return 1
	}
	found, err := discovery.Walk(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discover: %v\n", err)
		return 1
	}
	if len(found) == 0 {
		fmt.Fprintln(os.Stdout, "no projects found")
		return 0
	}
	for _, f := range found {
		fmt.Fprintf(os.Stdout, "%s\t%s\n", f.AbsolutePath, f.TechStack)
	}
	return 0
}

func runAddCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("maxclaw add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	name := fs.String("name", "", "project display name (defaults to the directory name)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 1 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw add <path> [--name NAME]")
		return 2
	}

	absPath, err := filepath.Abs(fs.Args()[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve path: %v\n", err)
		return 1
	}
	info, err := os.Stat(absPath)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "not a directory: %s\n", absPath)
		return 1
	}

	st, _, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer st.Close()

	projectName := *name
	if projectName == "" {
		projectName = filepath.Base(absPath)
	}

	var techStack []string
	found, walkErr := discovery.Walk(absPath)
	if walkErr == nil {
		for _, f := range found {
			if f.AbsolutePath == absPath {
				techStack = f.TechStack
				break
			}
		}
	}

	project, err := st.CreateProject(ctx, store.Project{
		Name:         projectName,
		AbsolutePath: absPath,
		TechStack:    techStack,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "add project: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "added %s (%s)\n", project.Name, project.ID)
	return 0
}

func runRemoveCommand(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw remove <projectOrName>")
		return 2
	}

	st, _, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer st.Close()

	project, err := st.GetProjectByName(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup project: %v\n", err)
		return 1
	}
	if err := st.DeleteProject(ctx, project.ID); err != nil {
		fmt.Fprintf(os.Stderr, "remove project: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "removed %s\n", project.Name)
	return 0
}

func runHistoryCommand(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw history <projectOrName>")
		return 2
	}

	st, _, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer st.Close()

	project, err := st.GetProjectByName(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup project: %v\n", err)
		return 1
	}
	sessions, err := st.ListSessionsForProject(ctx, project.ID, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list sessions: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Fprintln(os.Stdout, "no sessions recorded")
		return 0
	}
	for _, sess := range sessions {
		ended := "-"
		if sess.EndedAt != nil {
			ended = sess.EndedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\n", sess.ID, sess.Status, sess.StartedAt.Format("2006-01-02T15:04:05Z07:00"), ended)
	}
	return 0
}

func runActivityCommand(ctx context.Context, args []string) int {
	if len(args) > 1 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw activity [projectOrName]")
		return 2
	}

	st, _, err := openStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer st.Close()

	projectID := ""
	if len(args) == 1 {
		project, err := st.GetProjectByName(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "lookup project: %v\n", err)
			return 1
		}
		projectID = project.ID
	}

	activities, err := st.ListActivities(ctx, projectID, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list activities: %v\n", err)
		return 1
	}
	if len(activities) == 0 {
		fmt.Fprintln(os.Stdout, "no activity recorded")
		return 0
	}
	for _, a := range activities {
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", a.Timestamp.Format("2006-01-02T15:04:05Z07:00"), a.Kind, a.ProjectID)
	}
	return 0
}

func runConfigCommand(ctx context.Context, args []string) int {
	_ = ctx
	fs := flag.NewFlagSet("maxclaw config", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addPath := fs.String("add-path", "", "add a discovery scan path")
	removePath := fs.String("remove-path", "", "remove a discovery scan path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if len(fs.Args()) != 0 {
		fmt.Fprintln(os.Stderr, "usage: maxclaw config [--add-path P | --remove-path P]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		return 1
	}

	if *addPath != "" {
		abs, err := filepath.Abs(*addPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve path: %v\n", err)
			return 1
		}
		if err := config.AddScanPath(cfg.HomeDir, abs); err != nil {
			fmt.Fprintf(os.Stderr, "add scan path: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "added scan path %s\n", abs)
		return 0
	}
	if *removePath != "" {
		abs, err := filepath.Abs(*removePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve path: %v\n", err)
			return 1
		}
		if err := config.RemoveScanPath(cfg.HomeDir, abs); err != nil {
			fmt.Fprintf(os.Stderr, "remove scan path: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "removed scan path %s\n", abs)
		return 0
	}

	for _, p := range cfg.ScanPaths {
		fmt.Fprintln(os.Stdout, p)
	}
	return 0
}
