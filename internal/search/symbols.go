package search

import (
	"context"
	"fmt"
	"regexp"

	"github.com/wangmax2011/maxclaw/internal/store"
)

// symbolType classifies a declaration hit.
type symbolType string

const (
	SymbolFunction symbolType = "function"
	SymbolMethod   symbolType = "method"
	SymbolClass    symbolType = "class"
	SymbolType     symbolType = "type"
	SymbolStruct   symbolType = "struct"
	SymbolVariable symbolType = "variable"
	SymbolConstant symbolType = "constant"
)

// symbolPatterns is the typed pattern table used to classify a hit once the
// disjunction below has already matched a line. Patterns are deliberately
// language-neutral and kept loose — they overmatch rather than risk missing
// a declaration in an unfamiliar language, preserved verbatim from the
// reference behavior rather than tightened.
var symbolPatterns = []struct {
	typ     symbolType
	pattern *regexp.Regexp
}{
	{SymbolFunction, regexp.MustCompile(`\b(?:func|function|def|fn)\s+(\w+)`)},
	{SymbolMethod, regexp.MustCompile(`\)\s*(\w+)\s*\(`)},
	{SymbolClass, regexp.MustCompile(`\bclass\s+(\w+)`)},
	{SymbolType, regexp.MustCompile(`\b(?:type|interface|enum)\s+(\w+)`)},
	{SymbolStruct, regexp.MustCompile(`\bstruct\s+(\w+)`)},
	{SymbolConstant, regexp.MustCompile(`\bconst\s+(\w+)`)},
	{SymbolVariable, regexp.MustCompile(`\b(?:var|let)\s+(\w+)`)},
}

// symbolDisjunction is the single pattern used to find candidate lines
// before per-type classification; built by OR-ing every typed pattern.
var symbolDisjunction = buildSymbolDisjunction()

func buildSymbolDisjunction() *regexp.Regexp {
	parts := make([]string, 0, len(symbolPatterns))
	for _, p := range symbolPatterns {
		parts = append(parts, p.pattern.String())
	}
	combined := ""
	for i, p := range parts {
		if i > 0 {
			combined += "|"
		}
		combined += "(?:" + p + ")"
	}
	return regexp.MustCompile(combined)
}

// classify re-matches line against the typed pattern table, returning the
// first matching {symbolType, symbolName}.
func classify(line string) (symbolType, string, bool) {
	for _, p := range symbolPatterns {
		if m := p.pattern.FindStringSubmatch(line); m != nil {
			name := ""
			if len(m) > 1 {
				name = m[1]
			}
			return p.typ, name, true
		}
	}
	return "", "", false
}

func (s *Searcher) searchSymbolsInProject(ctx context.Context, proj store.Project, re *regexp.Regexp, opts Options) ([]Match, bool, error) {
	// re here is the symbol-name filter (compiled by compilePattern from the
	// raw symbol text); restrict content matches to lines that also match
	// the language-neutral declaration disjunction.
	matches, hasMore, err := walkContentSearch(proj.AbsolutePath, symbolDisjunction, opts)
	if err != nil {
		return nil, false, err
	}

	var out []Match
	for _, m := range matches {
		if !re.MatchString(m.Content) {
			continue
		}
		typ, name, ok := classify(m.Content)
		if !ok {
			continue
		}
		m.Content = fmt.Sprintf("%s %s: %s", typ, name, m.Content)
		out = append(out, m)
		if len(out) >= opts.PerProjectLimit {
			hasMore = true
			break
		}
	}
	return out, hasMore, nil
}
