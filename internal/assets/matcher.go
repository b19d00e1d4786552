package assets

import (
	"path/filepath"
	"strings"
)

// pattern is a parsed allow pattern with its matching strategy.
type pattern struct {
	glob      string
	matchPath bool // true = match against the slash path; false = match against basename only
}

// Matcher checks file names against a set of allowed glob patterns.
// Patterns without '/' match against the file's basename only.
// Patterns with '/' match against the whole path. Matching ignores case,
// so "*.jpg" accepts "IMG_0042.JPG".
type Matcher struct {
	patterns []pattern
}

// NewMatcher creates a Matcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewMatcher(rawPatterns []string) *Matcher {
	var patterns []pattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, pattern{
			glob:      strings.ToLower(raw),
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &Matcher{patterns: patterns}
}

// Allowed reports whether path matches at least one pattern.
// A Matcher without patterns allows everything.
func (m *Matcher) Allowed(path string) bool {
	if len(m.patterns) == 0 {
		return true
	}

	normalized := strings.ToLower(filepath.ToSlash(path))
	basename := strings.ToLower(filepath.Base(path))

	for _, p := range m.patterns {
		target := basename
		if p.matchPath {
			target = normalized
		}
		matched, err := filepath.Match(p.glob, target)
		if err != nil {
			// Bad pattern, skip it.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
