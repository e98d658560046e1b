// Package providers defines the adapter contract every source-control
// platform implements: a pure, deterministic transformation from one raw
// provider payload plus caller-supplied context into canonical records.
// Adapters never perform I/O and never fail on missing optional fields;
// recoverable data problems are carried as diagnostics in the result so
// the service layer can log and count them.
package providers

import (
	"encoding/json"
	"fmt"

	"github.com/devinsights/scm-normalizer/internal/correlate"
	"github.com/devinsights/scm-normalizer/internal/mergestate"
	"github.com/devinsights/scm-normalizer/internal/models"
	"github.com/devinsights/scm-normalizer/internal/repomap"
)

// Kind tags one source-control platform.
type Kind string

const (
	KindGitHub          Kind = "github"
	KindGitLab          Kind = "gitlab"
	KindBitbucket       Kind = "bitbucket"
	KindBitbucketServer Kind = "bitbucket_server"
	KindAzureDevops     Kind = "azure_devops"
	KindHelix           Kind = "helix"
)

// Kinds lists every supported provider kind.
func Kinds() []Kind {
	return []Kind{KindGitHub, KindGitLab, KindBitbucket, KindBitbucketServer, KindAzureDevops, KindHelix}
}

// ParseKind validates a raw kind string.
func ParseKind(raw string) (Kind, error) {
	for _, kind := range Kinds() {
		if string(kind) == raw {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown provider kind %q", raw)
}

// Context carries the caller-supplied normalization inputs. IntegrationID
// and EventTimeMillis are required; validating them is the caller's
// responsibility (boundary contract), adapters assume they are present.
type Context struct {
	IntegrationID string
	// RepoID is the logical repository id for single-repo providers.
	RepoID string
	// Project overrides the project name where the payload has none.
	Project string
	// EventTimeMillis is the event timestamp in epoch milliseconds, used
	// where the provider supplies no reliable timestamp and to derive the
	// day-aligned ingested-at field. Supplied by the caller, never read
	// from the wall clock, so normalization stays deterministic.
	EventTimeMillis int64
	// ReviewSplit selects the approve+comment split behavior for
	// direct-review-list providers.
	ReviewSplit mergestate.SplitMode
	// PathMatcher resolves repo ids from depot paths; only the path-based
	// provider consults it.
	PathMatcher *repomap.Matcher
	// Correlator carries the integration's work-item pattern. Nil means
	// the default numeric pattern.
	Correlator *correlate.Correlator
}

// IngestedAt derives the canonical day-aligned ingest timestamp.
func (c Context) IngestedAt() int64 {
	return models.TruncateToDay(c.EventTimeMillis)
}

// RepoIDs normalizes the context repo id to the non-empty list every
// canonical record carries.
func (c Context) RepoIDs() []string {
	if c.RepoID == "" {
		return []string{models.Unknown}
	}
	return []string{c.RepoID}
}

// ProjectOrRepo picks the project name, falling back to the repo id.
func (c Context) ProjectOrRepo() string {
	if c.Project != "" {
		return c.Project
	}
	return c.RepoID
}

// IssueKeys extracts issue-tracker keys from the given texts.
func (c Context) IssueKeys(texts ...string) []string {
	if c.Correlator != nil {
		return c.Correlator.IssueKeys(texts...)
	}
	return correlate.IssueKeys(texts...)
}

// Workitems extracts work-item ids from the given texts using the
// integration's pattern.
func (c Context) Workitems(texts ...string) []string {
	if c.Correlator != nil {
		return c.Correlator.Workitems(texts...)
	}
	return correlate.Workitems(texts...)
}

// Diagnostic is one recoverable data problem observed while normalizing.
type Diagnostic struct {
	Provider Kind   `json:"provider"`
	Reason   string `json:"reason"`
	File     string `json:"file,omitempty"`
	Detail   string `json:"detail"`
}

// Diagnostic reasons.
const (
	ReasonDiffParseFailure = "diff_parse_failure"
	ReasonUnknownAction    = "unknown_action"
)

// Result is the canonical output of one adapter invocation.
type Result struct {
	Commits      []models.ScmCommit      `json:"commits"`
	PullRequests []models.ScmPullRequest `json:"pull_requests"`
	Issues       []models.ScmIssue       `json:"issues"`
	Files        []models.ScmFile        `json:"files"`
	Tags         []models.ScmTag         `json:"tags"`
	Diagnostics  []Diagnostic            `json:"-"`
}

// Counts reports how many records of each type the result carries.
func (r Result) Counts() map[string]int {
	return map[string]int{
		"commits":       len(r.Commits),
		"pull_requests": len(r.PullRequests),
		"issues":        len(r.Issues),
		"files":         len(r.Files),
		"tags":          len(r.Tags),
	}
}

// Adapter converts one provider's raw payload envelope into canonical
// records. Implementations are stateless and safe for concurrent use; the
// only returned error is a malformed envelope, which is a boundary
// contract violation, not a data condition.
type Adapter interface {
	Kind() Kind
	Normalize(ctx Context, payload json.RawMessage) (Result, error)
}

// DecodeEnvelope unmarshals a payload envelope with a provider-tagged
// error. Unknown fields are tolerated: payload schemas are externally
// owned and read defensively.
func DecodeEnvelope(kind Kind, payload json.RawMessage, target any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return nil
}
