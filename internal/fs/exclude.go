package fs

import (
	"path"
	"path/filepath"
	"strings"
)

// ExcludeMatcher decides which directory entries an import skips.
type ExcludeMatcher struct {
	names []string // matched against the base name
	paths []string // matched against the slash-separated relative path
}

// NewExcludeMatcher parses glob patterns. Blank patterns and comments
// starting with '#' are ignored.
func NewExcludeMatcher(patterns []string) *ExcludeMatcher {
	m := &ExcludeMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "" || strings.HasPrefix(p, "#"):
		case strings.Contains(p, "/"):
			m.paths = append(m.paths, strings.TrimPrefix(p, "/"))
		default:
			m.names = append(m.names, p)
		}
	}
	return m
}

// Match reports whether rel, a path relative to the scanned directory,
// is excluded. Malformed patterns never match.
func (m *ExcludeMatcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)
	for _, p := range m.names {
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	for _, p := range m.paths {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
	}
	return false
}
