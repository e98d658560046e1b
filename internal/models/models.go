// Package models defines the provider-neutral canonical records produced by
// the normalization engine: commits, pull requests, reviews, issues, files,
// tags, and the resolved user identities embedded in them.
package models

import "sort"

// Unknown is the sentinel substituted for genuinely absent identity data.
// Downstream joins rely on it being a stable non-empty string, so it is
// never replaced with null or "".
const Unknown = "_UNKNOWN_"

// CommitMessageMaxLength bounds the denormalized commit message.
const CommitMessageMaxLength = 25

// VCSType identifies the version-control model behind a record.
type VCSType string

const (
	VCSTypeGit      VCSType = "GIT"
	VCSTypeTfvc     VCSType = "TFVC"
	VCSTypePerforce VCSType = "PERFORCE"
)

// Canonical review-state vocabulary. Provider vocabularies map into this
// set; unmapped non-blank values pass through uppercased instead.
const (
	ReviewStateReviewed   = "REVIEWED"
	ReviewStateApproved   = "APPROVED"
	ReviewStateUnapproved = "UNAPPROVED"
	ReviewStateDeclined   = "DECLINED"
	ReviewStateNeedsWork  = "NEEDS_WORK"
	ReviewStateCommented  = "COMMENTED"
	ReviewStateRescoped   = "RESCOPED"
	ReviewStateMerged     = "MERGED"
	ReviewStateUnknown    = "UNKNOWN"
)

// ScmUser is a resolved canonical identity.
type ScmUser struct {
	IntegrationID       string   `json:"integration_id"`
	CloudID             string   `json:"cloud_id"`
	DisplayName         string   `json:"display_name"`
	OriginalDisplayName string   `json:"original_display_name"`
	Emails              []string `json:"emails,omitempty"`
}

// UnknownUser returns a fully-sentineled identity for the integration.
func UnknownUser(integrationID string) ScmUser {
	return ScmUser{
		IntegrationID:       integrationID,
		CloudID:             Unknown,
		DisplayName:         Unknown,
		OriginalDisplayName: Unknown,
	}
}

// ScmCommit is the canonical commit record.
type ScmCommit struct {
	IntegrationID  string   `json:"integration_id"`
	RepoIDs        []string `json:"repo_ids"`
	VCSType        VCSType  `json:"vcs_type"`
	Project        string   `json:"project"`
	CommitSHA      string   `json:"commit_sha"`
	Committer      string   `json:"committer"`
	Author         string   `json:"author"`
	CommitterInfo  ScmUser  `json:"committer_info"`
	AuthorInfo     ScmUser  `json:"author_info"`
	CommitURL      string   `json:"commit_url,omitempty"`
	Message        string   `json:"message"`
	Branch         string   `json:"branch,omitempty"`
	FilesCt        int      `json:"files_ct"`
	Additions      int      `json:"additions"`
	Deletions      int      `json:"deletions"`
	Changes        int      `json:"changes"`
	IssueKeys      []string `json:"issue_keys"`
	WorkitemIDs    []string `json:"workitem_ids"`
	DirectMerge    bool     `json:"direct_merge"`
	CommittedAt    int64    `json:"committed_at"`
	CommitPushedAt int64    `json:"commit_pushed_at,omitempty"`
	IngestedAt     int64    `json:"ingested_at"`
}

// ScmReview is one canonical review event on a pull request.
type ScmReview struct {
	PRID         string  `json:"pr_id,omitempty"`
	ReviewID     string  `json:"review_id"`
	Reviewer     string  `json:"reviewer"`
	ReviewerInfo ScmUser `json:"reviewer_info"`
	State        string  `json:"state"`
	ReviewedAt   int64   `json:"reviewed_at"`
}

// ScmPullRequest is the canonical pull/merge request record.
type ScmPullRequest struct {
	IntegrationID  string            `json:"integration_id"`
	RepoIDs        []string          `json:"repo_ids"`
	Project        string            `json:"project"`
	Number         string            `json:"number"`
	Title          string            `json:"title"`
	State          string            `json:"state"`
	SourceBranch   string            `json:"source_branch"`
	TargetBranch   string            `json:"target_branch"`
	Creator        string            `json:"creator"`
	CreatorInfo    ScmUser           `json:"creator_info"`
	Merged         bool              `json:"merged"`
	MergeSHA       string            `json:"merge_sha,omitempty"`
	Assignees      []string          `json:"assignees"`
	AssigneesInfo  []ScmUser         `json:"assignees_info"`
	Reviewers      []string          `json:"reviewers"`
	ReviewersInfo  []ScmUser         `json:"reviewers_info"`
	Approvers      []string          `json:"approvers"`
	ApproversInfo  []ScmUser         `json:"approvers_info"`
	Commenters     []string          `json:"commenters"`
	CommentersInfo []ScmUser         `json:"commenters_info"`
	Labels         []string          `json:"labels"`
	CommitSHAs     []string          `json:"commit_shas"`
	Reviews        []ScmReview       `json:"reviews"`
	IssueKeys      []string          `json:"issue_keys"`
	WorkitemIDs    []string          `json:"workitem_ids"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	PRCreatedAt    int64             `json:"pr_created_at"`
	PRUpdatedAt    int64             `json:"pr_updated_at"`
	PRMergedAt     int64             `json:"pr_merged_at,omitempty"`
	PRClosedAt     int64             `json:"pr_closed_at,omitempty"`
}

// RollupReviewParticipants derives the reviewer, approver, and commenter
// lists from the review events. Names are de-duplicated and sorted with
// the identity lists in matching order. Reviewers carrying the unknown
// sentinel are kept: an unattributed approval is still an approval.
func (pr *ScmPullRequest) RollupReviewParticipants() {
	reviewers := participantSet{}
	approvers := participantSet{}
	commenters := participantSet{}
	for _, review := range pr.Reviews {
		reviewers.add(review.Reviewer, review.ReviewerInfo)
		switch review.State {
		case ReviewStateApproved:
			approvers.add(review.Reviewer, review.ReviewerInfo)
		case ReviewStateCommented, ReviewStateReviewed, ReviewStateNeedsWork:
			commenters.add(review.Reviewer, review.ReviewerInfo)
		}
	}
	pr.Reviewers, pr.ReviewersInfo = reviewers.sorted()
	pr.Approvers, pr.ApproversInfo = approvers.sorted()
	pr.Commenters, pr.CommentersInfo = commenters.sorted()
}

// MergeParticipants merges two aligned name/identity lists, de-duplicating
// by name, and returns the result sorted. The first list wins on conflict.
func MergeParticipants(names []string, infos []ScmUser, moreNames []string, moreInfos []ScmUser) ([]string, []ScmUser) {
	merged := participantSet{}
	for i, name := range names {
		merged.add(name, infos[i])
	}
	for i, name := range moreNames {
		merged.add(name, moreInfos[i])
	}
	return merged.sorted()
}

type participantSet map[string]ScmUser

func (s participantSet) add(name string, info ScmUser) {
	if name == "" {
		return
	}
	if _, ok := s[name]; !ok {
		s[name] = info
	}
}

func (s participantSet) sorted() ([]string, []ScmUser) {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	infos := make([]ScmUser, 0, len(names))
	for _, name := range names {
		infos = append(infos, s[name])
	}
	return names, infos
}

// ScmIssue is the canonical issue / work-item record.
type ScmIssue struct {
	IntegrationID   string   `json:"integration_id"`
	RepoID          string   `json:"repo_id"`
	Project         string   `json:"project"`
	Number          string   `json:"number"`
	Title           string   `json:"title"`
	State           string   `json:"state"`
	Creator         string   `json:"creator"`
	CreatorInfo     ScmUser  `json:"creator_info"`
	Assignees       []string `json:"assignees"`
	Labels          []string `json:"labels"`
	NumComments     int      `json:"num_comments"`
	IssueCreatedAt  int64    `json:"issue_created_at"`
	IssueUpdatedAt  int64    `json:"issue_updated_at"`
	IssueClosedAt   int64    `json:"issue_closed_at,omitempty"`
	FirstCommentAt  int64    `json:"first_comment_at,omitempty"`
	IngestedAt      int64    `json:"ingested_at"`
}

// ScmFile is one per-commit file change in canonical form.
type ScmFile struct {
	IntegrationID string `json:"integration_id"`
	RepoID        string `json:"repo_id"`
	Project       string `json:"project"`
	Filename      string `json:"filename"`
	Filetype      string `json:"filetype"`
	CommitSHA     string `json:"commit_sha"`
	Additions     int    `json:"additions"`
	Deletions     int    `json:"deletions"`
	Changes       int    `json:"changes"`
	CommittedAt   int64  `json:"committed_at"`
}

// ScmTag is the canonical tag record.
type ScmTag struct {
	IntegrationID string `json:"integration_id"`
	RepoID        string `json:"repo_id"`
	Project       string `json:"project"`
	Tag           string `json:"tag"`
	CommitSHA     string `json:"commit_sha"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}
