package loader

import "strings"

// skipMatcher filters crawl paths against the user's skip patterns.
// Patterns come pre-validated from DecodeWebDetails: each is an absolute
// path, optionally ending in "*" for prefix matching.
type skipMatcher struct {
	exact    map[string]struct{}
	prefixes []string
}

func newSkipMatcher(patterns []string) *skipMatcher {
	m := &skipMatcher{exact: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			m.prefixes = append(m.prefixes, prefix)
			continue
		}
		m.exact[p] = struct{}{}
	}
	return m
}

// Skip reports whether the path matches any skip pattern. An exact pattern
// matches the path itself; a "*" pattern matches any path under its prefix.
func (m *skipMatcher) Skip(path string) bool {
	if path == "" {
		path = "/"
	}
	if _, ok := m.exact[path]; ok {
		return true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
