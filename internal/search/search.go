// Package search implements cross-project code search: searching file
// contents, file names, and symbol declarations across every discovered
// Project, with a ripgrep-or-fallback strategy and a TTL results cache.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wangmax2011/maxclaw/internal/store"
)

const (
	// DefaultPerProjectLimit bounds matches returned for a single project.
	DefaultPerProjectLimit = 50
	// DefaultConcurrency bounds how many projects are searched at once.
	DefaultConcurrency = 5
	// DefaultCacheTTL is how long a cached result set stays valid.
	DefaultCacheTTL = 5 * time.Minute
)

var ignoredDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, "dist": {}, "build": {}, "coverage": {},
	".cache": {}, ".next": {}, "vendor": {}, "__pycache__": {}, ".venv": {},
	"venv": {}, "target": {}, ".idea": {}, ".vscode": {},
}

var ignoredFilePatterns = []string{
	"*.min.js", "*.bundle.js", "*.lock", "package-lock.json", "pnpm-lock.yaml", "yarn.lock",
}

// languageExtensions maps a language tag to the file extensions it covers.
var languageExtensions = map[string][]string{
	"go":         {".go"},
	"javascript": {".js", ".jsx", ".mjs", ".cjs"},
	"typescript": {".ts", ".tsx"},
	"python":     {".py"},
	"java":       {".java"},
	"ruby":       {".rb"},
	"rust":       {".rs"},
	"c":          {".c", ".h"},
	"cpp":        {".cpp", ".cc", ".hpp", ".hh"},
	"markdown":   {".md"},
	"yaml":       {".yaml", ".yml"},
	"json":       {".json"},
}

// Options configures a search call.
type Options struct {
	Projects        []string // project ids or names; all when empty
	Language        string
	PerProjectLimit int
	Regex           bool
	CaseSensitive   bool
	ContextLines    int
}

func (o Options) normalized() Options {
	if o.PerProjectLimit <= 0 {
		o.PerProjectLimit = DefaultPerProjectLimit
	}
	return o
}

// Match is one hit within a project.
type Match struct {
	Path    string   `json:"path"`
	Line    int      `json:"line"`
	Column  int      `json:"column"`
	Content string   `json:"content"`
	Context []string `json:"context,omitempty"`
}

// GroupResult bundles every Match found within one Project.
type GroupResult struct {
	ProjectID   string  `json:"projectId"`
	ProjectName string  `json:"projectName"`
	Matches     []Match `json:"matches"`
	HasMore     bool    `json:"hasMore"`
}

// Result is the outcome of a search call across every searched Project.
type Result struct {
	Groups     []GroupResult `json:"groups"`
	TotalCount int           `json:"totalCount"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Searcher runs searches across the Store's Projects.
type Searcher struct {
	store       *store.Store
	concurrency int
	cache       *resultCache
	ripgrepPath string // resolved once; empty means fall back to the walker
}

// Config configures a Searcher.
type Config struct {
	Concurrency int
	CacheTTL    time.Duration
}

// New creates a Searcher. ripgrepPath, when non-empty, is the resolved path
// to a ripgrep-equivalent binary; pass "" to always use the directory-walk
// fallback.
func New(st *store.Store, ripgrepPath string, cfg Config) *Searcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Searcher{
		store:       st,
		concurrency: concurrency,
		cache:       newResultCache(ttl),
		ripgrepPath: ripgrepPath,
	}
}

// ClearCache empties the results cache.
func (s *Searcher) ClearCache() {
	s.cache.clear()
}

// SearchCode searches file contents for query across the selected Projects.
func (s *Searcher) SearchCode(ctx context.Context, query string, opts Options) (Result, error) {
	return s.run(ctx, "code", query, opts, s.searchCodeInProject)
}

// SearchFiles searches file paths matching pattern across the selected
// Projects.
func (s *Searcher) SearchFiles(ctx context.Context, pattern string, opts Options) (Result, error) {
	return s.run(ctx, "files", pattern, opts, s.searchFilesInProject)
}

// SearchSymbols searches for declarations of symbol across the selected
// Projects.
func (s *Searcher) SearchSymbols(ctx context.Context, symbol string, opts Options) (Result, error) {
	return s.run(ctx, "symbols", symbol, opts, s.searchSymbolsInProject)
}

type projectSearchFunc func(ctx context.Context, proj store.Project, re *regexp.Regexp, opts Options) ([]Match, bool, error)

func (s *Searcher) run(ctx context.Context, kind, query string, opts Options, fn projectSearchFunc) (Result, error) {
	opts = opts.normalized()

	cacheKey := serializeKey(kind, query, opts)
	if cached, ok := s.cache.get(cacheKey); ok {
		return cached, nil
	}

	start := time.Now()
	projects, err := s.selectProjects(ctx, opts.Projects)
	if err != nil {
		return Result{}, err
	}

	re, err := compilePattern(query, opts)
	if err != nil {
		return Result{}, store.Validation("invalid search pattern: " + err.Error())
	}

	groups := make([]GroupResult, len(projects))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, proj := range projects {
		wg.Add(1)
		go func(i int, proj store.Project) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			matches, hasMore, err := fn(ctx, proj, re, opts)
			if err != nil {
				matches, hasMore = nil, false
			}
			groups[i] = GroupResult{ProjectID: proj.ID, ProjectName: proj.Name, Matches: matches, HasMore: hasMore}
		}(i, proj)
	}
	wg.Wait()

	total := 0
	for _, g := range groups {
		total += len(g.Matches)
	}
	result := Result{Groups: groups, TotalCount: total, Elapsed: time.Since(start)}
	s.cache.set(cacheKey, result)
	return result, nil
}

func (s *Searcher) selectProjects(ctx context.Context, idsOrNames []string) ([]store.Project, error) {
	all, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if len(idsOrNames) == 0 {
		return all, nil
	}
	want := make(map[string]struct{}, len(idsOrNames))
	for _, v := range idsOrNames {
		want[v] = struct{}{}
	}
	var out []store.Project
	for _, p := range all {
		if _, ok := want[p.ID]; ok {
			out = append(out, p)
			continue
		}
		if _, ok := want[p.Name]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func compilePattern(query string, opts Options) (*regexp.Regexp, error) {
	pattern := query
	if !opts.Regex {
		pattern = regexp.QuoteMeta(query)
	}
	if !opts.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func matchesLanguage(path string, language string) bool {
	if language == "" {
		return true
	}
	exts, ok := languageExtensions[strings.ToLower(language)]
	if !ok {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func isIgnoredDir(name string) bool {
	_, ok := ignoredDirs[name]
	return ok
}

func isIgnoredFile(name string) bool {
	for _, pattern := range ignoredFilePatterns {
		if ok, _ := regexp.MatchString(globToRegex(pattern), name); ok {
			return true
		}
	}
	return false
}

func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '.':
			b.WriteString(`\.`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("$")
	return b.String()
}

func serializeKey(kind, query string, opts Options) string {
	b, _ := json.Marshal(struct {
		Kind  string
		Query string
		Opts  Options
	}{kind, query, opts})
	return fmt.Sprintf("%x", b)
}
