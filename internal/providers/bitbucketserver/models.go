// Package bitbucketserver normalizes Bitbucket Server (self-hosted)
// payloads into canonical records. Server timestamps are epoch
// milliseconds throughout.
package bitbucketserver

// Event is the raw payload envelope one adapter invocation consumes.
type Event struct {
	Commits      []Commit      `json:"commits"`
	PullRequests []PullRequest `json:"pull_requests"`
	Tags         []Tag         `json:"tags"`
}

// User is a Bitbucket Server account fragment.
type User struct {
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
	Slug         string `json:"slug"`
}

// Commit is a Bitbucket Server commit payload. The server API exposes no
// per-commit diff statistics.
type Commit struct {
	ID                 string `json:"id"`
	Message            string `json:"message"`
	Author             *User  `json:"author"`
	AuthorTimestamp    int64  `json:"authorTimestamp"`
	Committer          *User  `json:"committer"`
	CommitterTimestamp int64  `json:"committerTimestamp"`
}

// Project names a server-side project.
type Project struct {
	Key string `json:"key"`
}

// Repository names a repository inside a project.
type Repository struct {
	Slug    string   `json:"slug"`
	Project *Project `json:"project"`
}

// Ref is one side of a pull request.
type Ref struct {
	DisplayID    string      `json:"displayId"`
	LatestCommit string      `json:"latestCommit"`
	Repository   *Repository `json:"repository"`
}

// Participant wraps a user in a pull-request role.
type Participant struct {
	User   *User  `json:"user"`
	Status string `json:"status"`
}

// CommitRef points at a commit from an activity entry.
type CommitRef struct {
	ID string `json:"id"`
}

// ActivityComment is the comment body carried by COMMENTED activities.
type ActivityComment struct {
	Text string `json:"text"`
}

// Activity is one pull-request activity-log entry.
type Activity struct {
	ID          int64            `json:"id"`
	CreatedDate int64            `json:"createdDate"`
	User        *User            `json:"user"`
	Action      string           `json:"action"`
	Commit      *CommitRef       `json:"commit"`
	Comment     *ActivityComment `json:"comment"`
}

// PullRequest is a Bitbucket Server pull request payload. Merge state is
// not an explicit field; it is recovered from the activity log.
type PullRequest struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	State       string        `json:"state"`
	Open        bool          `json:"open"`
	Author      *Participant  `json:"author"`
	FromRef     *Ref          `json:"fromRef"`
	ToRef       *Ref          `json:"toRef"`
	Reviewers   []Participant `json:"reviewers"`
	Activities  []Activity    `json:"activities"`
	Commits     []Commit      `json:"commits"`
	CreatedDate int64         `json:"createdDate"`
	UpdatedDate int64         `json:"updatedDate"`
	ClosedDate  int64         `json:"closedDate"`
}

// Tag is a Bitbucket Server tag payload.
type Tag struct {
	DisplayID    string `json:"displayId"`
	LatestCommit string `json:"latestCommit"`
}
