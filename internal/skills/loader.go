// Package skills implements the Skill Host: directory discovery, manifest
// validation, eligibility checks, and the register/execute/triggerHook
// registry contract.
package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// maxManifestSize is the maximum allowed size for a skill.yaml file (1 MiB).
const maxManifestSize = 1 << 20

// CanonicalSkillKey returns a normalized key used for collision detection.
func CanonicalSkillKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LoadedSkill is one Skill discovered on disk, with its manifest and
// eligibility outcome.
type LoadedSkill struct {
	Manifest  Manifest
	Source    string // "project", "user", "installed"
	SourceDir string // absolute path to the skill directory
	Eligible  bool
	Missing   []string // human-readable missing requirements
}

// Loader scans the project, user, and installed skill directories for
// skill.yaml manifests.
type Loader struct {
	projectDir   string // <workspace>/skills/
	userDir      string // <dataDir>/skills/
	installedDir string // <dataDir>/installed/
	logger       *slog.Logger
}

func NewLoader(projectDir, userDir, installedDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		projectDir:   projectDir,
		userDir:      userDir,
		installedDir: installedDir,
		logger:       logger,
	}
}

// LoadAll scans project, then user, then installed directories in that
// order. The first source to declare a given canonical name wins; later
// duplicates are skipped and logged.
func (l *Loader) LoadAll(ctx context.Context) ([]LoadedSkill, error) {
	type scanSpec struct {
		dir    string
		source string
	}
	specs := []scanSpec{
		{dir: l.projectDir, source: "project"},
		{dir: l.userDir, source: "user"},
		{dir: l.installedDir, source: "installed"},
	}

	seen := make(map[string]string) // canonical name -> winning source
	var out []LoadedSkill
	var errs []error

	for _, spec := range specs {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if strings.TrimSpace(spec.dir) == "" {
			continue
		}
		base, err := filepath.Abs(spec.dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("abs skills dir (%s): %w", spec.dir, err))
			continue
		}

		entries, err := os.ReadDir(base)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("read skills dir (%s): %w", base, err))
			continue
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, ent := range entries {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if !ent.IsDir() {
				if ent.Type()&os.ModeSymlink != 0 {
					l.log().Warn("skill directory is a symlink; symlinks are not followed",
						"name", ent.Name(), "dir", base)
				}
				continue
			}
			canonicalName := ent.Name()
			key := CanonicalSkillKey(canonicalName)
			if winner, ok := seen[key]; ok {
				l.log().Info("skill collision: skipping lower-priority duplicate",
					"skill", canonicalName, "winner_source", winner, "skipped_source", spec.source)
				continue
			}

			skillDir := filepath.Join(base, canonicalName)
			manifestPath := filepath.Join(skillDir, "skill.yaml")
			if _, err := os.Stat(manifestPath); err != nil {
				if os.IsNotExist(err) {
					continue
				}
				errs = append(errs, fmt.Errorf("stat skill.yaml (%s): %w", manifestPath, err))
				continue
			}

			ls, err := l.LoadOne(ctx, skillDir, spec.source)
			if err != nil {
				errs = append(errs, fmt.Errorf("load skill (%s): %w", canonicalName, err))
				continue
			}
			out = append(out, ls)
			seen[key] = spec.source
		}
	}

	return out, errors.Join(errs...)
}

// LoadOne parses and validates the skill.yaml under dir and checks host
// eligibility.
func (l *Loader) LoadOne(ctx context.Context, dir string, source string) (LoadedSkill, error) {
	if ctx.Err() != nil {
		return LoadedSkill{}, ctx.Err()
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return LoadedSkill{}, fmt.Errorf("abs dir: %w", err)
	}
	manifestPath := filepath.Join(absDir, "skill.yaml")
	fi, err := os.Stat(manifestPath)
	if err != nil {
		return LoadedSkill{}, fmt.Errorf("stat skill.yaml: %w", err)
	}
	if fi.Size() > maxManifestSize {
		return LoadedSkill{}, fmt.Errorf("skill.yaml too large: %d bytes (max %d)", fi.Size(), maxManifestSize)
	}
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return LoadedSkill{}, fmt.Errorf("read skill.yaml: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return LoadedSkill{}, err
	}

	eligible, missing := checkEligibility(m)

	return LoadedSkill{
		Manifest:  m,
		Source:    source,
		SourceDir: absDir,
		Eligible:  eligible,
		Missing:   missing,
	}, nil
}

func (l *Loader) log() *slog.Logger {
	if l != nil && l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

func checkEligibility(m Manifest) (eligible bool, missing []string) {
	eligible = true

	for _, b := range m.Requires.Bins {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, err := exec.LookPath(b); err != nil {
			eligible = false
			missing = append(missing, fmt.Sprintf("missing bin: %s", b))
		}
	}

	if len(m.Requires.AnyBins) > 0 {
		foundAny := false
		for _, b := range m.Requires.AnyBins {
			b = strings.TrimSpace(b)
			if b == "" {
				continue
			}
			if _, err := exec.LookPath(b); err == nil {
				foundAny = true
				break
			}
		}
		if !foundAny {
			eligible = false
			missing = append(missing, fmt.Sprintf("missing anyBins: %s", strings.Join(m.Requires.AnyBins, ",")))
		}
	}

	for _, k := range m.Requires.Env {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if os.Getenv(k) == "" {
			eligible = false
			missing = append(missing, fmt.Sprintf("missing env: %s", k))
		}
	}

	if len(m.Requires.OS) > 0 {
		ok := false
		for _, v := range m.Requires.OS {
			if strings.TrimSpace(v) == runtime.GOOS {
				ok = true
				break
			}
		}
		if !ok {
			eligible = false
			missing = append(missing, fmt.Sprintf("unsupported os: %s", runtime.GOOS))
		}
	}

	return eligible, missing
}
