package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wangmax2011/maxclaw/internal/bus"
	"github.com/wangmax2011/maxclaw/internal/policy"
	"github.com/wangmax2011/maxclaw/internal/store"
)

// maxFetchBody caps how much of a fetched URL's body a Skill may read
// through FetchURL.
const maxFetchBody = 4 << 20

// ErrAlreadyRegistered is returned by Register when the name is already taken.
var ErrAlreadyRegistered = errors.New("skills: already registered")

// ErrNotFound is returned when an unknown skill name is targeted.
var ErrNotFound = errors.New("skills: not found")

// ErrDisabled is returned by Execute when the target skill is disabled.
var ErrDisabled = errors.New("skills: disabled")

// ErrUnknownCommand is returned by Execute when the command is not declared
// in the skill's manifest.
var ErrUnknownCommand = errors.New("skills: command not declared")

// Context is passed to a Skill's activation and is available to the Skill
// Host for subsequent execute/hook calls.
type Context struct {
	Grant          policy.Grant
	Logger         *slog.Logger
	SkillDir       string
	GetProjectPath func(projectID string) (string, error) // guarded by fs:read
	WriteFile      func(path string, data []byte) error   // guarded by fs:write
	FetchURL       func(url string) ([]byte, error)       // guarded by network
	Emit           func(event string, data any)
}

// HasPermission reports whether tag is granted to the Skill.
func (c Context) HasPermission(tag policy.Tag) bool { return c.Grant.Has(tag) }

type handle struct {
	manifest Manifest
	ctx      Context
	enabled  bool
}

// Registry is the Skill Host: it tracks activated skills and implements the
// register/unregister/enable/disable/execute/triggerHook contract.
type Registry struct {
	mu      sync.RWMutex
	skills  map[string]*handle // canonical name -> handle
	store   *store.Store
	bus     *bus.Bus
	logger  *slog.Logger
	dataDir string

	// projectPath resolves a project id to its absolute path for
	// Context.GetProjectPath; nil disables the lookup.
	projectPath func(projectID string) (string, error)
}

// NewRegistry builds an empty Registry. dataDir roots the subprocess
// environment's MAXCLAW_DATA_DIR; projectPath may be nil.
func NewRegistry(st *store.Store, b *bus.Bus, logger *slog.Logger, dataDir string, projectPath func(string) (string, error)) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		skills:      make(map[string]*handle),
		store:       st,
		bus:         b,
		logger:      logger,
		dataDir:     dataDir,
		projectPath: projectPath,
	}
}

// Register activates a loaded skill under grantTags and fails if a skill of
// that name is already registered.
func (r *Registry) Register(ctx context.Context, ls LoadedSkill, grantTags []string) error {
	name := CanonicalSkillKey(ls.Manifest.Name)

	r.mu.Lock()
	if _, exists := r.skills[name]; exists {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r.mu.Unlock()

	grant, err := policy.NewGrant(grantTags)
	if err != nil {
		return fmt.Errorf("skills: register %s: %w", name, err)
	}

	skillCtx := Context{
		Grant:          grant,
		Logger:         r.logger.With("skill", name),
		SkillDir:       ls.SourceDir,
		GetProjectPath: r.guardedProjectPath(grant),
		WriteFile:      guardedWriteFile(grant, ls.SourceDir),
		FetchURL:       guardedFetchURL(grant),
		Emit:           func(event string, data any) { r.publish(name, event, data) },
	}

	if _, err := r.runLifecycle(ctx, ls, skillCtx, "activate", nil, nil); err != nil {
		return fmt.Errorf("skills: activate %s: %w", name, err)
	}

	h := &handle{manifest: ls.Manifest, ctx: skillCtx, enabled: true}

	r.mu.Lock()
	r.skills[name] = h
	r.mu.Unlock()

	if r.store != nil {
		now := time.Now().UTC()
		manifestMap, _ := manifestToMap(ls.Manifest)
		_, _ = r.store.UpsertSkill(ctx, store.SkillRecord{
			Name:     ls.Manifest.Name,
			Version:  ls.Manifest.Version,
			Source:   sourceKind(ls.Source),
			Path:     ls.SourceDir,
			Enabled:  true,
			LoadedAt: &now,
			Manifest: manifestMap,
		})
	}

	return nil
}

// Unregister removes an active skill. Idempotent.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	key := CanonicalSkillKey(name)
	r.mu.Lock()
	delete(r.skills, key)
	r.mu.Unlock()
	if r.store != nil {
		_ = r.store.DeleteSkill(ctx, name)
	}
	return nil
}

// Enable marks a registered skill enabled. Idempotent.
func (r *Registry) Enable(ctx context.Context, name string) error {
	return r.setEnabled(ctx, name, true)
}

// Disable marks a registered skill disabled. Idempotent.
func (r *Registry) Disable(ctx context.Context, name string) error {
	return r.setEnabled(ctx, name, false)
}

func (r *Registry) setEnabled(ctx context.Context, name string, enabled bool) error {
	key := CanonicalSkillKey(name)
	r.mu.Lock()
	h, ok := r.skills[key]
	if ok {
		h.enabled = enabled
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if r.store != nil {
		_ = r.store.SetSkillEnabled(ctx, name, enabled)
	}
	return nil
}

// Execute invokes commandName on skillName with args and options, and emits
// command:executed on success. It fails if the skill is disabled, unknown,
// or the command is not declared in its manifest.
func (r *Registry) Execute(ctx context.Context, skillName, commandName string, args []string, options map[string]any) (string, error) {
	key := CanonicalSkillKey(skillName)
	r.mu.RLock()
	h, ok := r.skills[key]
	r.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if !h.enabled {
		return "", ErrDisabled
	}
	if !h.manifest.hasCommand(commandName) {
		return "", ErrUnknownCommand
	}

	out, err := r.runSkillCommand(ctx, h, commandName, args, options)
	if err != nil {
		return "", err
	}
	r.publish(key, "command:executed", map[string]any{"command": commandName, "args": args})
	return out, nil
}

// TriggerHook invokes handleHook(event,data) on every enabled skill whose
// manifest lists event in its hooks table. Handler failures are logged and
// do not propagate.
func (r *Registry) TriggerHook(ctx context.Context, event string, data any) {
	r.mu.RLock()
	var targets []*handle
	for _, h := range r.skills {
		if !h.enabled {
			continue
		}
		if _, ok := h.manifest.Hooks[event]; ok {
			targets = append(targets, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range targets {
		if _, err := r.runHook(ctx, h, event, data); err != nil {
			r.logger.Warn("skill hook handler failed", "skill", h.manifest.Name, "event", event, "error", err)
		}
	}
}

// List returns a snapshot of every registered skill's manifest and source
// directory, ordered by name. Eligible is true for every entry; the
// enabled flag is not part of the snapshot.
func (r *Registry) List() []LoadedSkill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LoadedSkill, 0, len(r.skills))
	for _, h := range r.skills {
		out = append(out, LoadedSkill{Manifest: h.manifest, SourceDir: h.ctx.SkillDir, Eligible: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

func (r *Registry) publish(skillName, event string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish("skill."+skillName+"."+event, bus.Message{
		Type:    bus.TypeNotification,
		Sender:  "skill:" + skillName,
		Topic:   "skill." + skillName + "." + event,
		Payload: data,
	})
}

func (r *Registry) guardedProjectPath(grant policy.Grant) func(string) (string, error) {
	return func(projectID string) (string, error) {
		if !grant.Has(policy.TagFSRead) && !grant.Has(policy.TagAll) {
			return "", fmt.Errorf("skills: fs:read permission required")
		}
		if r.projectPath == nil {
			return "", fmt.Errorf("skills: project path resolution unavailable")
		}
		return r.projectPath(projectID)
	}
}

// guardedWriteFile restricts a Skill's writes to its own source directory
// and requires the fs:write tag.
func guardedWriteFile(grant policy.Grant, skillDir string) func(string, []byte) error {
	return func(path string, data []byte) error {
		if !grant.Has(policy.TagFSWrite) && !grant.Has(policy.TagAll) {
			return fmt.Errorf("skills: fs:write permission required")
		}
		if !policy.AllowPath(path, []string{skillDir}) {
			return fmt.Errorf("skills: path %q escapes skill directory", path)
		}
		return os.WriteFile(path, data, 0o644)
	}
}

// guardedFetchURL requires the network tag and rejects URLs whose host is
// localhost or a loopback, private, link-local or unspecified IP literal;
// hostnames are not resolved.
func guardedFetchURL(grant policy.Grant) func(string) ([]byte, error) {
	return func(raw string) ([]byte, error) {
		if !grant.Has(policy.TagNetwork) && !grant.Has(policy.TagAll) {
			return nil, fmt.Errorf("skills: network permission required")
		}
		if !policy.AllowHTTPURL(raw, false) {
			return nil, fmt.Errorf("skills: url %q not allowed", raw)
		}
		resp, err := http.Get(raw)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", raw, err)
		}
		defer resp.Body.Close()
		return io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	}
}

func (m Manifest) hasCommand(name string) bool {
	for _, c := range m.Commands {
		if c.Name == name {
			return true
		}
	}
	return false
}

func sourceKind(source string) store.SkillSource {
	if source == "builtin" {
		return store.SkillBuiltin
	}
	return store.SkillExternal
}

func manifestToMap(m Manifest) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// runLifecycle, runSkillCommand, and runHook each invoke the Skill's entry
// point as a plain subprocess under the declared permission set.

func (r *Registry) runLifecycle(ctx context.Context, ls LoadedSkill, skillCtx Context, phase string, args []string, payload any) (string, error) {
	return r.runEntry(ctx, ls.SourceDir, ls.Manifest.Entry, skillCtx.Grant, append([]string{phase}, args...), payload)
}

func (r *Registry) runSkillCommand(ctx context.Context, h *handle, command string, args []string, options map[string]any) (string, error) {
	cmdArgs := append([]string{"execute", command}, args...)
	var payload any
	if len(options) > 0 {
		payload = options
	}
	return r.runEntry(ctx, h.ctx.SkillDir, h.manifest.Entry, h.ctx.Grant, cmdArgs, payload)
}

func (r *Registry) runHook(ctx context.Context, h *handle, event string, data any) (string, error) {
	return r.runEntry(ctx, h.ctx.SkillDir, h.manifest.Entry, h.ctx.Grant, []string{"hook", event}, data)
}

func (r *Registry) runEntry(ctx context.Context, skillDir, entry string, grant policy.Grant, args []string, payload any) (string, error) {
	entryPath := entry
	if !filepath.IsAbs(entryPath) {
		entryPath = filepath.Join(skillDir, entry)
	}
	if _, err := os.Stat(entryPath); err != nil {
		return "", fmt.Errorf("skill entry point not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, entryPath, args...)
	cmd.Dir = skillDir
	cmd.Env = append(os.Environ(),
		"MAXCLAW_SKILL_DIR="+skillDir,
		"MAXCLAW_DATA_DIR="+r.dataDir,
		"MAXCLAW_PERMISSIONS="+strings.Join(grant.Tags(), ","),
	)

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode skill payload: %w", err)
		}
		cmd.Stdin = bytes.NewReader(data)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("skill entry point failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
