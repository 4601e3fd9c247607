// Package discovery walks a directory tree looking for project roots,
// identified by marker files, and augments each with a tech-stack tag
// sequence.
package discovery

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var skippedDirNames = map[string]struct{}{
	"node_modules": {}, "target": {}, "dist": {}, "build": {},
}

// marker pairs a file name with the tech-stack tag it contributes.
type marker struct {
	file string
	tag  string
}

// markers is checked in order; the first match for a directory determines
// whether it is a project root, but every matching marker's tag is kept.
var markers = []marker{
	{".git", "Git"},
	{"package.json", "Node.js"},
	{"Cargo.toml", "Rust"},
	{"pyproject.toml", "Python"},
	{"setup.py", "Python"},
	{"requirements.txt", "Python"},
	{"go.mod", "Go"},
	{"Dockerfile", "Docker"},
	{"docker-compose.yml", "Docker"},
}

// packageDependencyTags maps an npm dependency name to the tech-stack tag it
// contributes when present in package.json, checked in this fixed order for
// deterministic tag ordering.
var packageDependencyTags = []struct {
	dep string
	tag string
}{
	{"react", "React"},
	{"vue", "Vue"},
	{"angular", "Angular"},
	{"next", "Next.js"},
	{"nuxt", "Nuxt"},
	{"typescript", "TypeScript"},
	{"tsx", "TSX"},
	{"express", "Express"},
	{"@nestjs/core", "NestJS"},
	{"prisma", "Prisma"},
	{"tailwindcss", "Tailwind CSS"},
}

// Found is one discovered project root.
type Found struct {
	Name         string
	AbsolutePath string
	TechStack    []string
	HasClaudeMD  bool
}

// Walk scans root for project directories, skipping node_modules, target,
// dist, build, and any dot-directory, and not descending into a directory
// already identified as a project.
func Walk(root string) ([]Found, error) {
	var found []Found

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || isSkippedDir(name)) {
			return fs.SkipDir
		}

		tags, isProject, hasClaudeMD := inspectDir(path)
		if !isProject {
			return nil
		}
		found = append(found, Found{
			Name:         filepath.Base(path),
			AbsolutePath: path,
			TechStack:    tags,
			HasClaudeMD:  hasClaudeMD,
		})
		return fs.SkipDir // do not descend into an identified project
	})
	return found, err
}

func isSkippedDir(name string) bool {
	_, ok := skippedDirNames[name]
	return ok
}

// inspectDir checks dir's immediate children for marker files, returning the
// ordered tech-stack tags and whether any marker was found.
func inspectDir(dir string) ([]string, bool, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false, false
	}
	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		present[e.Name()] = struct{}{}
	}

	var tags []string
	seen := make(map[string]struct{})
	isProject := false
	for _, m := range markers {
		if _, ok := present[m.file]; !ok {
			continue
		}
		isProject = true
		if _, dup := seen[m.tag]; !dup {
			seen[m.tag] = struct{}{}
			tags = append(tags, m.tag)
		}
	}
	if !isProject {
		return nil, false, false
	}

	if _, ok := present["package.json"]; ok {
		tags = append(tags, packageDependencyTagsFor(filepath.Join(dir, "package.json"), seen)...)
	}

	_, hasClaudeMD := present["CLAUDE.md"]
	return tags, true, hasClaudeMD
}

// packageDependencyTagsFor reads path's dependencies/devDependencies and
// returns the ordered, deduplicated tags contributed by known packages.
func packageDependencyTagsFor(path string, seen map[string]struct{}) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil
	}

	has := func(dep string) bool {
		_, ok := pkg.Dependencies[dep]
		if ok {
			return true
		}
		_, ok = pkg.DevDependencies[dep]
		return ok
	}

	var tags []string
	for _, entry := range packageDependencyTags {
		if !has(entry.dep) {
			continue
		}
		if _, dup := seen[entry.tag]; dup {
			continue
		}
		seen[entry.tag] = struct{}{}
		tags = append(tags, entry.tag)
	}
	return tags
}
