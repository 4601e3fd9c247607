package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/wangmax2011/maxclaw/internal/store"
)

const maxSearchFileBytes = 4 * 1024 * 1024

// searchCodeInProject searches file contents within one Project: ripgrep
// when available, otherwise a directory walk.
func (s *Searcher) searchCodeInProject(ctx context.Context, proj store.Project, re *regexp.Regexp, opts Options) ([]Match, bool, error) {
	if s.ripgrepPath != "" {
		matches, hasMore, err := s.ripgrepSearch(ctx, proj, re, opts)
		if err == nil {
			return matches, hasMore, nil
		}
		// fall through to the walker on ripgrep failure
	}
	return walkContentSearch(proj.AbsolutePath, re, opts)
}

// searchFilesInProject matches file paths against re.
func (s *Searcher) searchFilesInProject(ctx context.Context, proj store.Project, re *regexp.Regexp, opts Options) ([]Match, bool, error) {
	var matches []Match
	hasMore := false
	err := filepath.WalkDir(proj.AbsolutePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() != "." && isIgnoredDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if len(matches) >= opts.PerProjectLimit {
			hasMore = true
			return fs.SkipAll
		}
		rel, relErr := filepath.Rel(proj.AbsolutePath, path)
		if relErr != nil {
			rel = path
		}
		if re.MatchString(rel) {
			matches = append(matches, Match{Path: rel})
		}
		return nil
	})
	return matches, hasMore, err
}

// walkContentSearch recursively walks root, matching re against each line of
// every non-ignored text file.
func walkContentSearch(root string, re *regexp.Regexp, opts Options) ([]Match, bool, error) {
	var matches []Match
	hasMore := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(matches) >= opts.PerProjectLimit {
			hasMore = true
			return fs.SkipAll
		}
		if d.IsDir() {
			if d.Name() != filepath.Base(root) && isIgnoredDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if isIgnoredFile(d.Name()) || !matchesLanguage(path, opts.Language) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > maxSearchFileBytes {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		fileMatches, err := matchFile(path, rel, re, opts)
		if err != nil {
			return nil
		}
		for _, m := range fileMatches {
			if len(matches) >= opts.PerProjectLimit {
				hasMore = true
				break
			}
			matches = append(matches, m)
		}
		return nil
	})
	return matches, hasMore, err
}

func matchFile(path, rel string, re *regexp.Regexp, opts Options) ([]Match, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	var out []Match
	for i, line := range lines {
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		m := Match{Path: rel, Line: i + 1, Column: loc[0] + 1, Content: line}
		if opts.ContextLines > 0 {
			m.Context = contextAround(lines, i, opts.ContextLines)
		}
		out = append(out, m)
	}
	return out, nil
}

func contextAround(lines []string, idx, n int) []string {
	start := idx - n
	if start < 0 {
		start = 0
	}
	end := idx + n + 1
	if end > len(lines) {
		end = len(lines)
	}
	return append([]string{}, lines[start:end]...)
}

// ResolveRipgrep looks up an external ripgrep-equivalent binary on PATH,
// returning "" if none is installed.
func ResolveRipgrep() string {
	path, err := exec.LookPath("rg")
	if err != nil {
		return ""
	}
	return path
}

// rgMessage mirrors the subset of ripgrep's --json message schema this
// searcher consumes; only type "match" records carry a useful payload.
type rgMessage struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		LineNumber int `json:"line_number"`
		Lines      struct {
			Text string `json:"text"`
		} `json:"lines"`
		Submatches []struct {
			Start int `json:"start"`
		} `json:"submatches"`
	} `json:"data"`
}

// ripgrepSearch invokes ripgrep with --json output and parses each match
// record. A non-nil error tells the caller to fall back to the walker.
func (s *Searcher) ripgrepSearch(ctx context.Context, proj store.Project, re *regexp.Regexp, opts Options) ([]Match, bool, error) {
	args := []string{
		"--json", "--line-number", "--column",
		"--max-count", strconv.Itoa(opts.PerProjectLimit),
	}
	if opts.CaseSensitive {
		args = append(args, "--case-sensitive")
	} else {
		args = append(args, "--ignore-case")
	}
	for dir := range ignoredDirs {
		args = append(args, "--glob", "!"+dir)
	}
	for _, pattern := range ignoredFilePatterns {
		args = append(args, "--glob", "!"+pattern)
	}
	args = append(args, re.String(), proj.AbsolutePath)

	cmd := exec.CommandContext(ctx, s.ripgrepPath, args...)
	out, runErr := cmd.Output()
	// ripgrep exits 1 when no matches are found; that is not a failure.
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); !ok || exitErr.ExitCode() > 1 {
			return nil, false, runErr
		}
	}

	var matches []Match
	hasMore := false
	dec := json.NewDecoder(bytes.NewReader(out))
	for dec.More() {
		var msg rgMessage
		if err := dec.Decode(&msg); err != nil {
			break
		}
		if msg.Type != "match" {
			continue
		}
		if len(matches) >= opts.PerProjectLimit {
			hasMore = true
			break
		}
		rel, err := filepath.Rel(proj.AbsolutePath, msg.Data.Path.Text)
		if err != nil {
			rel = msg.Data.Path.Text
		}
		if !matchesLanguage(rel, opts.Language) {
			continue
		}
		col := 0
		if len(msg.Data.Submatches) > 0 {
			col = msg.Data.Submatches[0].Start + 1
		}
		matches = append(matches, Match{
			Path:    rel,
			Line:    msg.Data.LineNumber,
			Column:  col,
			Content: msg.Data.Lines.Text,
		})
	}
	return matches, hasMore, nil
}
