package search_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wangmax2011/maxclaw/internal/search"
	"github.com/wangmax2011/maxclaw/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func mustCreateProject(t *testing.T, s *store.Store, name, path string) store.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), store.Project{Name: name, AbsolutePath: path})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestSearchCode_FindsMatchAcrossProjects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dirA := t.TempDir()
	writeFile(t, dirA, "main.go", "package main\n\nfunc helloWorld() {}\n")
	mustCreateProject(t, s, "a", dirA)

	dirB := t.TempDir()
	writeFile(t, dirB, "lib.go", "package lib\n\nfunc unrelated() {}\n")
	mustCreateProject(t, s, "b", dirB)

	searcher := search.New(s, "", search.Config{})
	result, err := searcher.SearchCode(ctx, "helloWorld", search.Options{})
	if err != nil {
		t.Fatalf("search code: %v", err)
	}
	if result.TotalCount != 1 {
		t.Fatalf("expected 1 total match, got %d (%+v)", result.TotalCount, result.Groups)
	}
}

func TestSearchCode_IgnoresVendorDirectories(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "vendor/pkg/file.go", "func needle() {}\n")
	writeFile(t, dir, "src/file.go", "func needle() {}\n")
	mustCreateProject(t, s, "p", dir)

	searcher := search.New(s, "", search.Config{})
	result, err := searcher.SearchCode(ctx, "needle", search.Options{})
	if err != nil {
		t.Fatalf("search code: %v", err)
	}
	if result.TotalCount != 1 {
		t.Fatalf("expected vendor/ skipped, got %d matches", result.TotalCount)
	}
}

func TestSearchCode_RespectsPerProjectLimitAndHasMore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	content := ""
	for i := 0; i < 5; i++ {
		content += "needle\n"
	}
	writeFile(t, dir, "file.go", content)
	mustCreateProject(t, s, "p", dir)

	searcher := search.New(s, "", search.Config{})
	result, err := searcher.SearchCode(ctx, "needle", search.Options{PerProjectLimit: 2})
	if err != nil {
		t.Fatalf("search code: %v", err)
	}
	if len(result.Groups) != 1 || len(result.Groups[0].Matches) != 2 || !result.Groups[0].HasMore {
		t.Fatalf("expected 2 matches with hasMore, got %+v", result.Groups)
	}
}

func TestSearchFiles_MatchesPathPattern(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "internal/store/store.go", "package store\n")
	writeFile(t, dir, "internal/bus/bus.go", "package bus\n")
	mustCreateProject(t, s, "p", dir)

	searcher := search.New(s, "", search.Config{})
	result, err := searcher.SearchFiles(ctx, "store", search.Options{})
	if err != nil {
		t.Fatalf("search files: %v", err)
	}
	if result.TotalCount != 1 {
		t.Fatalf("expected 1 file match, got %d", result.TotalCount)
	}
}

func TestSearchSymbols_ClassifiesFunctionDeclaration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n\nfunc computeTotal(x int) int { return x }\n")
	mustCreateProject(t, s, "p", dir)

	searcher := search.New(s, "", search.Config{})
	result, err := searcher.SearchSymbols(ctx, "computeTotal", search.Options{})
	if err != nil {
		t.Fatalf("search symbols: %v", err)
	}
	if result.TotalCount != 1 {
		t.Fatalf("expected 1 symbol match, got %d (%+v)", result.TotalCount, result.Groups)
	}
}

func TestSearchCode_ScopedToSelectedProjects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dirA := t.TempDir()
	writeFile(t, dirA, "a.go", "needle\n")
	projA := mustCreateProject(t, s, "a", dirA)

	dirB := t.TempDir()
	writeFile(t, dirB, "b.go", "needle\n")
	mustCreateProject(t, s, "b", dirB)

	searcher := search.New(s, "", search.Config{})
	result, err := searcher.SearchCode(ctx, "needle", search.Options{Projects: []string{projA.ID}})
	if err != nil {
		t.Fatalf("search code: %v", err)
	}
	if len(result.Groups) != 1 || result.Groups[0].ProjectID != projA.ID {
		t.Fatalf("expected only project a searched, got %+v", result.Groups)
	}
}

func TestSearchCode_CachesRepeatedQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "needle\n")
	mustCreateProject(t, s, "p", dir)

	searcher := search.New(s, "", search.Config{CacheTTL: time.Hour})
	first, err := searcher.SearchCode(ctx, "needle", search.Options{})
	if err != nil {
		t.Fatalf("search code: %v", err)
	}

	// Remove the file; a cache hit should still report the original result.
	os.Remove(filepath.Join(dir, "a.go"))
	second, err := searcher.SearchCode(ctx, "needle", search.Options{})
	if err != nil {
		t.Fatalf("search code (cached): %v", err)
	}
	if second.TotalCount != first.TotalCount {
		t.Fatalf("expected cached result unaffected by filesystem change, got %d vs %d", second.TotalCount, first.TotalCount)
	}

	searcher.ClearCache()
	third, err := searcher.SearchCode(ctx, "needle", search.Options{})
	if err != nil {
		t.Fatalf("search code (post-clear): %v", err)
	}
	if third.TotalCount != 0 {
		t.Fatalf("expected 0 matches after cache clear and file removal, got %d", third.TotalCount)
	}
}
