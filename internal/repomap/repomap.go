// Package repomap resolves logical repository ids from file paths by
// longest-prefix matching against a configured prefix table. Only the
// path-based provider (perforce depots) needs this; the index is built once
// from integration configuration and is read-only afterwards, safe for
// unsynchronized concurrent reads.
package repomap

import "strings"

// Entry maps one path prefix to a repository id.
type Entry struct {
	PathPrefix string `yaml:"path_prefix"`
	RepoID     string `yaml:"repo_id"`
}

type indexedEntry struct {
	prefix  string
	matchOn string
	repoID  string
	order   int
}

// Matcher is an immutable longest-prefix index.
type Matcher struct {
	entries       []indexedEntry
	caseSensitive bool
}

// NewMatcher builds a matcher from configured entries. Duplicate prefixes
// keep the first-registered mapping; empty prefixes are skipped. Never
// panics, including on empty configuration.
func NewMatcher(entries []Entry, caseSensitive bool) *Matcher {
	matcher := &Matcher{caseSensitive: caseSensitive}
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		if entry.PathPrefix == "" {
			continue
		}
		matchOn := entry.PathPrefix
		if !caseSensitive {
			matchOn = strings.ToLower(matchOn)
		}
		if _, dup := seen[matchOn]; dup {
			continue
		}
		seen[matchOn] = struct{}{}
		matcher.entries = append(matcher.entries, indexedEntry{
			prefix:  entry.PathPrefix,
			matchOn: matchOn,
			repoID:  entry.RepoID,
			order:   i,
		})
	}
	return matcher
}

// Match returns the repo id of the longest matching prefix for the path.
// Ties between prefixes of equal length resolve to the first-registered
// entry. The second return is false when no prefix matches.
func (m *Matcher) Match(path string) (string, bool) {
	if m == nil {
		return "", false
	}
	candidate := path
	if !m.caseSensitive {
		candidate = strings.ToLower(path)
	}

	best := -1
	bestLen := -1
	for i, entry := range m.entries {
		if !strings.HasPrefix(candidate, entry.matchOn) {
			continue
		}
		length := len(entry.matchOn)
		if length > bestLen {
			best, bestLen = i, length
		}
	}
	if best < 0 {
		return "", false
	}
	return m.entries[best].repoID, true
}

// MatchAll resolves every path and returns the distinct repo ids hit, in
// first-match order.
func (m *Matcher) MatchAll(paths []string) []string {
	seen := make(map[string]struct{})
	repoIDs := make([]string, 0)
	for _, path := range paths {
		repoID, ok := m.Match(path)
		if !ok {
			continue
		}
		if _, dup := seen[repoID]; dup {
			continue
		}
		seen[repoID] = struct{}{}
		repoIDs = append(repoIDs, repoID)
	}
	return repoIDs
}

// Len reports how many prefixes are indexed.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}
