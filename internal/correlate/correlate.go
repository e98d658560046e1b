// Package correlate extracts issue-tracker keys and work-item identifiers
// from free text such as commit messages, pull-request titles, and branch
// names. Extraction is pure and total: malformed or empty input yields
// empty, never-nil results.
package correlate

import (
	"regexp"
	"sort"
)

// issueKeyPattern matches tracker keys like PROJ-123. Case sensitive on
// purpose: lowercase prefixes are overwhelmingly branch noise, not keys.
var issueKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9_]*-\d+\b`)

// defaultWorkitemPattern matches bare numeric work-item ids.
var defaultWorkitemPattern = regexp.MustCompile(`\b\d+\b`)

// Correlator scans free text for issue keys and work-item ids. The zero
// value uses the default numeric work-item pattern.
type Correlator struct {
	workitemPattern *regexp.Regexp
}

// New returns a Correlator with a custom work-item pattern. An empty or
// invalid pattern falls back to the default.
func New(workitemPattern string) *Correlator {
	compiled, err := regexp.Compile(workitemPattern)
	if workitemPattern == "" || err != nil {
		compiled = defaultWorkitemPattern
	}
	return &Correlator{workitemPattern: compiled}
}

// IssueKeys returns the de-duplicated, sorted issue-tracker keys found in
// the given texts.
func (c *Correlator) IssueKeys(texts ...string) []string {
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, match := range issueKeyPattern.FindAllString(text, -1) {
			seen[match] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Workitems returns the de-duplicated, sorted work-item ids found in the
// given texts. Issue-key matches are removed before scanning so the numeric
// suffix of a key (the 42 in PROJ-42) is not also reported as a work item.
func (c *Correlator) Workitems(texts ...string) []string {
	pattern := c.workitemPattern
	if pattern == nil {
		pattern = defaultWorkitemPattern
	}
	seen := make(map[string]struct{})
	for _, text := range texts {
		stripped := issueKeyPattern.ReplaceAllString(text, " ")
		for _, match := range pattern.FindAllString(stripped, -1) {
			seen[match] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

var defaultCorrelator = &Correlator{workitemPattern: defaultWorkitemPattern}

// IssueKeys extracts issue keys using the default correlator.
func IssueKeys(texts ...string) []string {
	return defaultCorrelator.IssueKeys(texts...)
}

// Workitems extracts work-item ids using the default correlator.
func Workitems(texts ...string) []string {
	return defaultCorrelator.Workitems(texts...)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
