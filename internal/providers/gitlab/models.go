// Package gitlab normalizes GitLab-style payloads into canonical records.
package gitlab

import "time"

// Event is the raw payload envelope one adapter invocation consumes.
type Event struct {
	Commits       []Commit       `json:"commits"`
	MergeRequests []MergeRequest `json:"merge_requests"`
	Issues        []Issue        `json:"issues"`
	Tags          []Tag          `json:"tags"`
}

// User is a GitLab account fragment.
type User struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

// CommitStat is the pre-aggregated commit stat block.
type CommitStat struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Total     int `json:"total"`
}

// Change is one changed file on a commit. GitLab reports paths only, no
// per-file line counts.
type Change struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// Commit is a GitLab commit payload.
type Commit struct {
	ID               string      `json:"id"`
	Message          string      `json:"message"`
	WebURL           string      `json:"web_url"`
	AuthorName       string      `json:"author_name"`
	CommitterName    string      `json:"committer_name"`
	AuthorDetails    *User       `json:"author_details"`
	CommitterDetails *User       `json:"committer_details"`
	RefBranch        string      `json:"ref_branch"`
	CreatedAt        *time.Time  `json:"created_at"`
	CommittedDate    *time.Time  `json:"committed_date"`
	Stats            *CommitStat `json:"stats"`
	Changes          []Change    `json:"changes"`
}

// MREventAuthor is the author fragment on a merge-request event.
type MREventAuthor struct {
	Username   string `json:"username"`
	AuthorName string `json:"author_name"`
}

// MREvent is one entry of the project event stream.
type MREvent struct {
	ID             string         `json:"id"`
	TargetID       string         `json:"target_id"`
	ProjectID      string         `json:"project_id"`
	ActionName     string         `json:"action_name"`
	AuthorUsername string         `json:"author_username"`
	Author         *MREventAuthor `json:"author"`
	CreatedAt      *time.Time     `json:"created_at"`
}

// MergeRequest is a GitLab merge request payload with its commit list and
// the project event stream it is resolved against.
type MergeRequest struct {
	ID            string     `json:"id"`
	IID           string     `json:"iid"`
	ProjectID     int64      `json:"project_id"`
	Title         string     `json:"title"`
	State         string     `json:"state"`
	SourceBranch  string     `json:"source_branch"`
	TargetBranch  string     `json:"target_branch"`
	SHA           string     `json:"sha"`
	Author        *User      `json:"author"`
	ClosedBy      *User      `json:"closed_by"`
	MergedBy      *User      `json:"merged_by"`
	Assignees     []User     `json:"assignees"`
	Labels        []string   `json:"labels"`
	Commits       []Commit   `json:"commits"`
	Events        []MREvent  `json:"merge_request_events"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
	MergedAt      *time.Time `json:"merged_at"`
	ClosedAt      *time.Time `json:"closed_at"`
}

// IssueNote is one note on an issue.
type IssueNote struct {
	Author    *User      `json:"author"`
	CreatedAt *time.Time `json:"created_at"`
}

// Issue is a GitLab issue payload.
type Issue struct {
	IID       string      `json:"iid"`
	Title     string      `json:"title"`
	State     string      `json:"state"`
	Author    *User       `json:"author"`
	Assignees []User      `json:"assignees"`
	Labels    []string    `json:"labels"`
	Notes     []IssueNote `json:"notes"`
	CreatedAt *time.Time  `json:"created_at"`
	UpdatedAt *time.Time  `json:"updated_at"`
	ClosedAt  *time.Time  `json:"closed_at"`
}

// TagCommit is the commit a tag points at.
type TagCommit struct {
	ID        string     `json:"id"`
	CreatedAt *time.Time `json:"created_at"`
}

// Tag is a GitLab tag payload.
type Tag struct {
	Name   string     `json:"name"`
	Commit *TagCommit `json:"commit"`
}
