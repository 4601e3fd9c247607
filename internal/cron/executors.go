package cron

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/wangmax2011/maxclaw/internal/store"
)

// ExecResult is the outcome an Executor reports for one Schedule firing.
type ExecResult struct {
	Success        bool
	Output         string
	Error          string
	DurationMillis int64
}

// Executor runs one Schedule's task kind and reports the outcome. Executors
// must not block indefinitely; ctx carries the daemon's shutdown signal.
type Executor func(ctx context.Context, sched store.Schedule) ExecResult

func timed(fn func() (string, error)) ExecResult {
	start := time.Now()
	output, err := fn()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ExecResult{Success: false, Error: err.Error(), DurationMillis: elapsed}
	}
	return ExecResult{Success: true, Output: output, DurationMillis: elapsed}
}

// ReminderExecutor always succeeds, logging the Schedule's message (or a
// default) as its output.
func ReminderExecutor() Executor {
	return func(ctx context.Context, sched store.Schedule) ExecResult {
		return timed(func() (string, error) {
			msg := sched.Message
			if msg == "" {
				msg = fmt.Sprintf("reminder: %s", sched.Name)
			}
			return msg, nil
		})
	}
}

// BackupExecutor serialises the Project record to
// <dataDir>/backups/{projectId}/backup-{isoTimestamp}.json.
func BackupExecutor(st *store.Store, dataDir string) Executor {
	return func(ctx context.Context, sched store.Schedule) ExecResult {
		return timed(func() (string, error) {
			proj, err := st.GetProject(ctx, sched.ProjectID)
			if err != nil {
				return "", fmt.Errorf("load project: %w", err)
			}
			dir := filepath.Join(dataDir, "backups", sched.ProjectID)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("create backup dir: %w", err)
			}
			ts := time.Now().UTC().Format("20060102T150405Z")
			path := filepath.Join(dir, fmt.Sprintf("backup-%s.json", ts))
			encoded, err := json.MarshalIndent(proj, "", "  ")
			if err != nil {
				return "", fmt.Errorf("encode project: %w", err)
			}
			if err := os.WriteFile(path, encoded, 0o644); err != nil {
				return "", fmt.Errorf("write backup: %w", err)
			}
			return path, nil
		})
	}
}

// CommandExecutor runs sched.Command as a shell command in the Project's
// absolute path, capturing combined stdout/stderr.
func CommandExecutor(st *store.Store) Executor {
	return func(ctx context.Context, sched store.Schedule) ExecResult {
		return timed(func() (string, error) {
			if sched.Command == "" {
				return "", fmt.Errorf("schedule has no command")
			}
			proj, err := st.GetProject(ctx, sched.ProjectID)
			if err != nil {
				return "", fmt.Errorf("load project: %w", err)
			}
			cmd := exec.CommandContext(ctx, "sh", "-c", sched.Command)
			cmd.Dir = proj.AbsolutePath
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = &out
			if err := cmd.Run(); err != nil {
				return out.String(), fmt.Errorf("command failed: %w", err)
			}
			return out.String(), nil
		})
	}
}

// SkillRunner is the narrow Skill Host interface the skill executor depends
// on, avoiding an import cycle with internal/skills.
type SkillRunner interface {
	Execute(ctx context.Context, skillName, command string, args []string, options map[string]any) (string, error)
}

// SkillExecutor invokes registry.execute(skillName, skillCommand, skillArgs, {}).
func SkillExecutor(runner SkillRunner) Executor {
	return func(ctx context.Context, sched store.Schedule) ExecResult {
		return timed(func() (string, error) {
			if sched.SkillName == "" {
				return "", fmt.Errorf("schedule has no skill name")
			}
			return runner.Execute(ctx, sched.SkillName, sched.SkillCommand, sched.SkillArgs, map[string]any{})
		})
	}
}
