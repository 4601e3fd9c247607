package main

import (
	"context"
	"testing"
)

func setTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("MAXCLAW_HOME", home)
	return home
}

func TestRunAddAndListCommands(t *testing.T) {
	setTestHome(t)
	projectDir := t.TempDir()
	ctx := context.Background()

	if code := runAddCommand(ctx, []string{"--name", "demo", projectDir}); code != 0 {
		t.Fatalf("add: got exit code %d", code)
	}
	if code := runListCommand(ctx, nil); code != 0 {
		t.Fatalf("list: got exit code %d", code)
	}
}

func TestRunAddCommand_RejectsNonDirectory(t *testing.T) {
	setTestHome(t)
	ctx := context.Background()
	if code := runAddCommand(ctx, []string{"/does/not/exist"}); code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestRunRemoveCommand_UnknownProject(t *testing.T) {
	setTestHome(t)
	ctx := context.Background()
	if code := runRemoveCommand(ctx, []string{"nonexistent"}); code != 1 {
		t.Fatalf("got exit code %d, want 1", code)
	}
}

func TestRunAddThenRemoveCommand(t *testing.T) {
	setTestHome(t)
	projectDir := t.TempDir()
	ctx := context.Background()

	if code := runAddCommand(ctx, []string{"--name", "demo", projectDir}); code != 0 {
		t.Fatalf("add: got exit code %d", code)
	}
	if code := runRemoveCommand(ctx, []string{"demo"}); code != 0 {
		t.Fatalf("remove: got exit code %d", code)
	}
}

func TestRunHistoryCommand_NoSessions(t *testing.T) {
	setTestHome(t)
	projectDir := t.TempDir()
	ctx := context.Background()

	if code := runAddCommand(ctx, []string{"--name", "demo", projectDir}); code != 0 {
		t.Fatalf("add: got exit code %d", code)
	}
	if code := runHistoryCommand(ctx, []string{"demo"}); code != 0 {
		t.Fatalf("history: got exit code %d", code)
	}
}

func TestRunActivityCommand_NoArgs(t *testing.T) {
	setTestHome(t)
	ctx := context.Background()
	if code := runActivityCommand(ctx, nil); code != 0 {
		t.Fatalf("activity: got exit code %d", code)
	}
}

func TestRunConfigCommand_AddAndRemovePath(t *testing.T) {
	home := setTestHome(t)
	_ = home
	scanDir := t.TempDir()
	ctx := context.Background()

	if code := runConfigCommand(ctx, []string{"--add-path", scanDir}); code != 0 {
		t.Fatalf("config --add-path: got exit code %d", code)
	}
	if code := runConfigCommand(ctx, []string{"--remove-path", scanDir}); code != 0 {
		t.Fatalf("config --remove-path: got exit code %d", code)
	}
}

func TestRunListCommand_ExtraArgs(t *testing.T) {
	if code := runListCommand(context.Background(), []string{"extra"}); code != 2 {
		t.Fatalf("got exit code %d, want 2", code)
	}
}

func TestRunDiscoverCommand_EmptyRootSucceeds(t *testing.T) {
	setTestHome(t)
	root := t.TempDir()
	ctx := context.Background()
	if code := runDiscoverCommand(ctx, []string{root}); code != 0 {
		t.Fatalf("discover: got exit code %d", code)
	}
}
