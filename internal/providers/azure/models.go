// Package azure normalizes Azure DevOps payloads into canonical records.
// One integration covers both git repositories and legacy TFVC
// collections; the envelope carries git commits and TFVC changesets side
// by side.
package azure

import "time"

// Event is the raw payload envelope one adapter invocation consumes.
type Event struct {
	Commits      []Commit      `json:"commits"`
	Changesets   []Changeset   `json:"changesets"`
	PullRequests []PullRequest `json:"pull_requests"`
	WorkItems    []WorkItem    `json:"work_items"`
	Tags         []Tag         `json:"tags"`
}

// Identity is an Azure DevOps identity reference.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// GitUserDate is the git-signature side of a commit.
type GitUserDate struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Date  *time.Time `json:"date"`
}

// ChangeCounts is the server-computed file change summary on a commit.
type ChangeCounts struct {
	Add    int `json:"Add"`
	Edit   int `json:"Edit"`
	Delete int `json:"Delete"`
}

// Commit is an Azure DevOps git commit payload.
type Commit struct {
	CommitID     string        `json:"commitId"`
	Comment      string        `json:"comment"`
	Author       *GitUserDate  `json:"author"`
	Committer    *GitUserDate  `json:"committer"`
	ChangeCounts *ChangeCounts `json:"changeCounts"`
	RemoteURL    string        `json:"remoteUrl"`
}

// Changeset is a TFVC changeset payload. TFVC reports no line-level
// statistics.
type Changeset struct {
	ChangesetID int64      `json:"changesetId"`
	Comment     string     `json:"comment"`
	Author      *Identity  `json:"author"`
	CheckedInBy *Identity  `json:"checkedInBy"`
	CreatedDate *time.Time `json:"createdDate"`
}

// CommitRef points at a git commit.
type CommitRef struct {
	CommitID string `json:"commitId"`
}

// Reviewer is a pull-request reviewer with their current vote.
type Reviewer struct {
	Identity
	Vote int `json:"vote"`
}

// PullRequest is an Azure DevOps pull request payload.
type PullRequest struct {
	PullRequestID   int64      `json:"pullRequestId"`
	Title           string     `json:"title"`
	Status          string     `json:"status"`
	CreatedBy       *Identity  `json:"createdBy"`
	SourceRefName   string     `json:"sourceRefName"`
	TargetRefName   string     `json:"targetRefName"`
	Reviewers       []Reviewer `json:"reviewers"`
	Commits         []CommitRef `json:"commits"`
	LastMergeCommit *CommitRef `json:"lastMergeCommit"`
	CreationDate    *time.Time `json:"creationDate"`
	ClosedDate      *time.Time `json:"closedDate"`
	Labels          []Label    `json:"labels"`
}

// Label is a pull-request label.
type Label struct {
	Name string `json:"name"`
}

// WorkItemComment is one comment on a work item.
type WorkItemComment struct {
	CreatedBy   *Identity  `json:"createdBy"`
	CreatedDate *time.Time `json:"createdDate"`
}

// WorkItem is an Azure Boards work item, normalized upstream from the
// fields map into a flat shape.
type WorkItem struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	State       string            `json:"state"`
	CreatedBy   *Identity         `json:"createdBy"`
	AssignedTo  *Identity         `json:"assignedTo"`
	Tags        []string          `json:"tags"`
	Comments    []WorkItemComment `json:"comments"`
	CreatedDate *time.Time        `json:"createdDate"`
	ChangedDate *time.Time        `json:"changedDate"`
	ClosedDate  *time.Time        `json:"closedDate"`
}

// Tag is a git annotated-tag payload.
type Tag struct {
	Name         string     `json:"name"`
	ObjectID     string     `json:"objectId"`
	TaggedObject *CommitRef `json:"taggedObject"`
	Date         *time.Time `json:"date"`
}
