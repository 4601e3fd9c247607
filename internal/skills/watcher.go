package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher emits an update event when any skill.yaml-backed skill source
// changes. It watches root dirs and their immediate child dirs.
type Watcher struct {
	dirs   []string
	logger *slog.Logger
	events chan string
}

func NewWatcher(dirs []string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	cp := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		cp = append(cp, d)
	}
	return &Watcher{
		dirs:   cp,
		logger: logger,
		events: make(chan string, 16),
	}
}

func (w *Watcher) Events() <-chan string {
	return w.events
}

func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}

	addDir := func(dir string) {
		if strings.TrimSpace(dir) == "" {
			return
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			w.logger.Warn("skills watcher: abs failed", "dir", dir, "error", err)
			return
		}
		if err := fsw.Add(abs); err != nil {
			if os.IsNotExist(err) {
				return
			}
			w.logger.Warn("skills watcher: add failed", "dir", abs, "error", err)
			return
		}

		entries, err := os.ReadDir(abs)
		if err != nil {
			return
		}
		for _, ent := range entries {
			if !ent.IsDir() {
				continue
			}
			_ = fsw.Add(filepath.Join(abs, ent.Name()))
		}
	}

	for _, dir := range w.dirs {
		addDir(dir)
	}

	go func() {
		defer func() {
			_ = fsw.Close()
			close(w.events)
		}()

		var pending bool
		var timer *time.Timer
		var timerC <-chan time.Time
		flush := func() {
			if !pending {
				return
			}
			pending = false
			select {
			case w.events <- "skills":
			default:
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}

				createdDir := false
				if ev.Op&fsnotify.Create != 0 {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						createdDir = true
						_ = fsw.Add(ev.Name)
					}
				}

				// Only fire updates for skill-relevant files: the manifest
				// itself, or the skill directory's entry point (any file
				// directly inside a skill directory that is not the
				// manifest can be the declared entry, so any change one
				// level below a watched root is relevant).
				isRelevant := filepath.Base(ev.Name) == "skill.yaml" || createdDir
				if !isRelevant {
					isRelevant = w.isSkillDirMember(ev.Name)
				}
				if !isRelevant {
					continue
				}

				pending = true
				if timer == nil {
					timer = time.NewTimer(150 * time.Millisecond)
					timerC = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(150 * time.Millisecond)
					timerC = timer.C
				}

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("skills watcher error", "error", err)
			case <-timerC:
				flush()
				timerC = nil
			}
		}
	}()

	return nil
}

// isSkillDirMember reports whether path's parent directory is itself a
// direct child of one of the watched roots, i.e. path sits inside a
// candidate skill directory rather than a deeper subdirectory.
func (w *Watcher) isSkillDirMember(path string) bool {
	parent := filepath.Dir(path)
	grandparent := filepath.Dir(parent)
	for _, root := range w.dirs {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if grandparent == abs {
			return true
		}
	}
	return false
}
