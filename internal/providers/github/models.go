// Package github normalizes GitHub-style payloads into canonical records.
// The payload models mirror the externally-owned REST schema; every field
// is read defensively because any of them may be absent.
package github

import "time"

// Event is the raw payload envelope one adapter invocation consumes.
type Event struct {
	Commits      []Commit      `json:"commits"`
	PullRequests []PullRequest `json:"pull_requests"`
	Issues       []Issue       `json:"issues"`
	Tags         []Tag         `json:"tags"`
}

// User is a GitHub account fragment.
type User struct {
	Login                   string   `json:"login"`
	Name                    string   `json:"name"`
	OrgVerifiedDomainEmails []string `json:"organization_verified_domain_emails"`
}

// CommitUser is the raw git signature on a commit.
type CommitUser struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Date  *time.Time `json:"date"`
}

// CommitStats is the pre-aggregated commit stat block.
type CommitStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Total     int `json:"total"`
}

// CommitFile is one changed file on a commit.
type CommitFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Changes   int    `json:"changes"`
}

// Commit is a GitHub commit payload.
type Commit struct {
	SHA          string       `json:"sha"`
	URL          string       `json:"url"`
	Message      string       `json:"message"`
	Branch       string       `json:"branch"`
	Author       *User        `json:"author"`
	Committer    *User        `json:"committer"`
	GitAuthor    *CommitUser  `json:"git_author"`
	GitCommitter *CommitUser  `json:"git_committer"`
	Stats        *CommitStats `json:"stats"`
	Files        []CommitFile `json:"files"`
}

// Label is a GitHub issue/PR label.
type Label struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Ref is one side of a pull request.
type Ref struct {
	Ref  string   `json:"ref"`
	SHA  string   `json:"sha"`
	Repo *RepoRef `json:"repo"`
}

// RepoRef identifies the repository a ref lives in.
type RepoRef struct {
	FullName string `json:"full_name"`
}

// Review is one entry of the pull request's direct review list.
type Review struct {
	ID          string     `json:"id"`
	User        *User      `json:"user"`
	State       string     `json:"state"`
	Body        string     `json:"body"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

// PullRequest is a GitHub pull request payload with its review and commit
// lists inlined.
type PullRequest struct {
	Number         int        `json:"number"`
	State          string     `json:"state"`
	Title          string     `json:"title"`
	User           *User      `json:"user"`
	Head           *Ref       `json:"head"`
	Base           *Ref       `json:"base"`
	MergeCommitSHA string     `json:"merge_commit_sha"`
	Assignees      []User     `json:"assignees"`
	Labels         []Label    `json:"labels"`
	Reviews        []Review   `json:"reviews"`
	Commits        []Commit   `json:"commits"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
	MergedAt       *time.Time `json:"merged_at"`
	ClosedAt       *time.Time `json:"closed_at"`
}

// IssueComment is one comment on an issue.
type IssueComment struct {
	User      *User      `json:"user"`
	CreatedAt *time.Time `json:"created_at"`
}

// Issue is a GitHub issue payload.
type Issue struct {
	Number    int            `json:"number"`
	Title     string         `json:"title"`
	State     string         `json:"state"`
	User      *User          `json:"user"`
	Assignees []User         `json:"assignees"`
	Labels    []Label        `json:"labels"`
	Comments  []IssueComment `json:"comment_list"`
	CreatedAt *time.Time     `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at"`
	ClosedAt  *time.Time     `json:"closed_at"`
}

// Tag is a GitHub tag payload.
type Tag struct {
	Name string `json:"name"`
	SHA  string `json:"sha"`
}
