// Package bitbucket normalizes Bitbucket cloud payloads into canonical
// records.
package bitbucket

import "time"

// Event is the raw payload envelope one adapter invocation consumes.
type Event struct {
	Commits      []Commit      `json:"commits"`
	PullRequests []PullRequest `json:"pull_requests"`
	Issues       []Issue       `json:"issues"`
	Tags         []Tag         `json:"tags"`
}

// User is a Bitbucket cloud account fragment.
type User struct {
	AccountID   string `json:"account_id"`
	UUID        string `json:"uuid"`
	DisplayName string `json:"display_name"`
	Nickname    string `json:"nickname"`
}

// CommitAuthor pairs the raw git signature with the linked account.
type CommitAuthor struct {
	Raw  string `json:"raw"`
	User *User  `json:"user"`
}

// PathRef names a file on one side of a diff.
type PathRef struct {
	Path string `json:"path"`
}

// DiffStat is one file's diff statistics.
type DiffStat struct {
	Status       string   `json:"status"`
	LinesAdded   int      `json:"lines_added"`
	LinesRemoved int      `json:"lines_removed"`
	Old          *PathRef `json:"old"`
	New          *PathRef `json:"new"`
}

// Commit is a Bitbucket cloud commit payload.
type Commit struct {
	Hash      string        `json:"hash"`
	Message   string        `json:"message"`
	Date      *time.Time    `json:"date"`
	Author    *CommitAuthor `json:"author"`
	DiffStats []DiffStat    `json:"diff_stats"`
}

// Branch names a branch ref.
type Branch struct {
	Name string `json:"name"`
}

// CommitRef points at a commit.
type CommitRef struct {
	Hash string `json:"hash"`
}

// Endpoint is one side of a pull request.
type Endpoint struct {
	Branch *Branch    `json:"branch"`
	Commit *CommitRef `json:"commit"`
}

// Approval is an approval activity entry.
type Approval struct {
	Date *time.Time `json:"date"`
	User *User      `json:"user"`
}

// CommentContent is the body of a comment activity.
type CommentContent struct {
	Raw string `json:"raw"`
}

// Comment is a comment activity entry.
type Comment struct {
	ID        int64           `json:"id"`
	CreatedOn *time.Time      `json:"created_on"`
	User      *User           `json:"user"`
	Content   *CommentContent `json:"content"`
}

// Activity is one pull-request activity entry; exactly one of the members
// is set.
type Activity struct {
	Approval *Approval `json:"approval"`
	Comment  *Comment  `json:"comment"`
}

// PullRequest is a Bitbucket cloud pull request payload.
type PullRequest struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	State       string     `json:"state"`
	Author      *User      `json:"author"`
	Source      *Endpoint  `json:"source"`
	Destination *Endpoint  `json:"destination"`
	MergeCommit *CommitRef `json:"merge_commit"`
	Reviewers   []User     `json:"reviewers"`
	Activities  []Activity `json:"activities"`
	Commits     []Commit   `json:"commits"`
	CreatedOn   *time.Time `json:"created_on"`
	UpdatedOn   *time.Time `json:"updated_on"`
}

// IssueContent is the body of an issue.
type IssueContent struct {
	Raw string `json:"raw"`
}

// IssueComment is one comment on an issue.
type IssueComment struct {
	User      *User      `json:"user"`
	CreatedOn *time.Time `json:"created_on"`
}

// Issue is a Bitbucket cloud issue payload.
type Issue struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	State     string         `json:"state"`
	Reporter  *User          `json:"reporter"`
	Assignee  *User          `json:"assignee"`
	Comments  []IssueComment `json:"comment_list"`
	CreatedOn *time.Time     `json:"created_on"`
	UpdatedOn *time.Time     `json:"updated_on"`
}

// Tag is a Bitbucket cloud tag payload.
type Tag struct {
	Name   string     `json:"name"`
	Target *CommitRef `json:"target"`
	Date   *time.Time `json:"date"`
}
