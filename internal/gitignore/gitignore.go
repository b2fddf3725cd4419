package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file read from each directory.
const FileName = ".gitignore"

// Matcher holds compiled rules. It is safe for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	glob     string
	negation bool
	dirOnly  bool
	base     string // slash path the rule is relative to; "" for the root
}

// New creates an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern adds one gitignore line relative to base.
// Blank lines, comments and invalid globs are skipped.
func (m *Matcher) AddPattern(line, base string) {
	r, ok := parseLine(line)
	if !ok {
		return
	}
	r.base = strings.Trim(filepath.ToSlash(base), "/")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFromFile reads every line of a gitignore file.
func (m *Matcher) AddFromFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open gitignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPattern(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read gitignore file: %w", err)
	}
	return nil
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether relPath is ignored.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	p := strings.Trim(filepath.ToSlash(relPath), "/")
	if p == "" || p == "." {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Parents first: once a directory is ignored, nothing under it can be re-included.
	for _, dir := range parents(p) {
		if m.matchOne(dir, true) {
			return true
		}
	}
	return m.matchOne(p, isDir)
}

func (m *Matcher) matchOne(p string, isDir bool) bool {
	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		rel, ok := relativeTo(p, r.base)
		if !ok {
			continue
		}
		if matched, _ := doublestar.Match(r.glob, rel); matched {
			ignored = !r.negation
		}
	}
	return ignored
}

// parseLine converts one gitignore line to a rule.
func parseLine(line string) (rule, bool) {
	line = strings.TrimRight(line, "\r")
	escapedSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)
	if escapedSpace {
		line = strings.TrimSuffix(line, `\`) + " "
	}
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}

	var r rule
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negation = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}

	anchored := strings.HasPrefix(line, "/") || strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return rule{}, false
	}
	if anchored {
		r.glob = line
	} else {
		r.glob = "**/" + line
	}

	if !doublestar.ValidatePattern(r.glob) {
		return rule{}, false
	}
	return r, true
}

func relativeTo(p, base string) (string, bool) {
	if base == "" {
		return p, true
	}
	if !strings.HasPrefix(p, base+"/") {
		return "", false
	}
	return p[len(base)+1:], true
}

// parents returns the ancestor directories of p, outermost first.
func parents(p string) []string {
	var out []string
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		out = append([]string{dir}, out...)
	}
	return out
}

// ParsePatterns returns the non-empty, non-comment lines of content.
func ParsePatterns(content string) []string {
	var patterns []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`)) {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}
