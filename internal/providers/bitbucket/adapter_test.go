package bitbucket

import (
	"strings"
	"testing"
	"time"

	"github.com/devinsights/scm-normalizer/internal/models"
	"github.com/devinsights/scm-normalizer/internal/providers"
)

func testContext() providers.Context {
	return providers.Context{
		IntegrationID:   "2",
		RepoID:          "acme/widgets",
		EventTimeMillis: time.Date(2023, 4, 12, 10, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCommitRecordSumsFileStats(t *testing.T) {
	t.Parallel()

	committed := time.Date(2023, 4, 11, 9, 30, 0, 0, time.UTC)
	commit := CommitRecord(Commit{
		Hash:    "abc123",
		Message: "Implement PROJ-42 retry path",
		Date:    timePtr(committed),
		Author: &CommitAuthor{
			Raw:  "Alice <alice@example.com>",
			User: &User{AccountID: "acct-1", DisplayName: "Alice"},
		},
		DiffStats: []DiffStat{
			{LinesAdded: 3, LinesRemoved: 1, New: &PathRef{Path: "a.go"}},
			{LinesAdded: 0, LinesRemoved: 2, Old: &PathRef{Path: "b.go"}},
		},
	}, testContext())

	if commit.Additions != 3 || commit.Deletions != 3 || commit.Changes != 6 || commit.FilesCt != 2 {
		t.Fatalf("stats = +%d -%d ~%d files=%d, want +3 -3 ~6 files=2",
			commit.Additions, commit.Deletions, commit.Changes, commit.FilesCt)
	}
	if commit.Author != "Alice" || commit.AuthorInfo.CloudID != "acct-1" {
		t.Fatalf("author = %q / %+v, want linked account", commit.Author, commit.AuthorInfo)
	}
	if commit.CommittedAt != committed.Unix() {
		t.Fatalf("committed at = %d", commit.CommittedAt)
	}
}

func TestCommitRecordUnlinkedAuthor(t *testing.T) {
	t.Parallel()

	commit := CommitRecord(Commit{
		Hash:   "deadbeef",
		Author: &CommitAuthor{Raw: "Bob <bob@example.com>"},
	}, testContext())

	if commit.Author != "Bob <bob@example.com>" {
		t.Fatalf("author = %q, want raw signature fallback", commit.Author)
	}
	if commit.AuthorInfo.CloudID != "Bob <bob@example.com>" {
		t.Fatalf("author info = %+v", commit.AuthorInfo)
	}

	empty := CommitRecord(Commit{Hash: "deadbeef"}, testContext())
	if empty.Author != models.Unknown || empty.AuthorInfo.CloudID != models.Unknown {
		t.Fatalf("missing author should resolve to sentinel, got %q", empty.Author)
	}
}

func TestPullRequestRecordMergeState(t *testing.T) {
	t.Parallel()

	updated := time.Date(2023, 4, 10, 12, 0, 0, 0, time.UTC)
	merged := PullRequestRecord(PullRequest{
		ID:          7,
		State:       "MERGED",
		Author:      &User{AccountID: "acct-1", DisplayName: "Alice"},
		MergeCommit: &CommitRef{Hash: "merge123"},
		UpdatedOn:   timePtr(updated),
	}, testContext())

	if !merged.Merged || merged.MergeSHA != "merge123" || merged.PRMergedAt != updated.Unix() {
		t.Fatalf("merged pr = merged=%v sha=%q at=%d", merged.Merged, merged.MergeSHA, merged.PRMergedAt)
	}

	declined := PullRequestRecord(PullRequest{
		ID:          8,
		State:       "DECLINED",
		Author:      &User{AccountID: "acct-1"},
		MergeCommit: &CommitRef{Hash: "stale"},
		UpdatedOn:   timePtr(updated),
	}, testContext())
	if declined.Merged || declined.PRMergedAt != 0 {
		t.Fatal("declined pr must not be merged even with a stale merge commit")
	}

	noSHA := PullRequestRecord(PullRequest{ID: 9, State: "MERGED", UpdatedOn: timePtr(updated)}, testContext())
	if noSHA.Merged {
		t.Fatal("merged state without a merge commit hash must not flag merged")
	}
}

func TestReviewRecordsFromActivities(t *testing.T) {
	t.Parallel()

	approvedAt := time.Date(2023, 4, 9, 8, 0, 0, 0, time.UTC)
	commentedAt := time.Date(2023, 4, 9, 9, 0, 0, 0, time.UTC)
	pr := PullRequestRecord(PullRequest{
		ID:     11,
		State:  "OPEN",
		Author: &User{AccountID: "acct-1", DisplayName: "Alice"},
		Activities: []Activity{
			{Approval: &Approval{Date: timePtr(approvedAt), User: &User{AccountID: "acct-2", DisplayName: "Bob"}}},
			{Comment: &Comment{ID: 501, CreatedOn: timePtr(commentedAt), User: &User{AccountID: "acct-3", DisplayName: "Carol"}}},
			{},
		},
	}, testContext())

	if len(pr.Reviews) != 2 {
		t.Fatalf("reviews = %d, want approval and comment only", len(pr.Reviews))
	}
	if pr.Reviews[0].State != models.ReviewStateApproved || pr.Reviews[0].Reviewer != "Bob" {
		t.Fatalf("approval review = %+v", pr.Reviews[0])
	}
	if pr.Reviews[0].ReviewedAt != approvedAt.Unix() {
		t.Fatalf("approval time = %d", pr.Reviews[0].ReviewedAt)
	}
	if pr.Reviews[1].State != models.ReviewStateCommented || pr.Reviews[1].ReviewID != "501" {
		t.Fatalf("comment review = %+v", pr.Reviews[1])
	}
	if len(pr.Approvers) != 1 || pr.Approvers[0] != "Bob" {
		t.Fatalf("approvers = %v, want [Bob]", pr.Approvers)
	}
	if len(pr.Commenters) != 1 || pr.Commenters[0] != "Carol" {
		t.Fatalf("commenters = %v, want [Carol]", pr.Commenters)
	}
}

func TestPullRequestDeclaredReviewersMergedIntoRollup(t *testing.T) {
	t.Parallel()

	approvedAt := time.Date(2023, 4, 9, 8, 0, 0, 0, time.UTC)
	pr := PullRequestRecord(PullRequest{
		ID:    12,
		State: "OPEN",
		Reviewers: []User{
			{AccountID: "acct-9", DisplayName: "Dora"},
		},
		Activities: []Activity{
			{Approval: &Approval{Date: timePtr(approvedAt), User: &User{AccountID: "acct-2", DisplayName: "Bob"}}},
		},
	}, testContext())

	reviewers := strings.Join(pr.Reviewers, ",")
	if reviewers != "Bob,Dora" {
		t.Fatalf("reviewers = %q, want declared list merged with activity participants", reviewers)
	}
	if len(pr.ReviewersInfo) != 2 || pr.ReviewersInfo[1].CloudID != "acct-9" {
		t.Fatalf("reviewers info = %+v", pr.ReviewersInfo)
	}
	if len(pr.Assignees) != 0 {
		t.Fatalf("assignees = %v, declared reviewers must not masquerade as assignees", pr.Assignees)
	}
}

func TestIssueRecordFirstResponse(t *testing.T) {
	t.Parallel()

	selfComment := time.Date(2023, 4, 1, 1, 0, 0, 0, time.UTC)
	reply := time.Date(2023, 4, 1, 2, 0, 0, 0, time.UTC)
	issue := issueRecord(Issue{
		ID:       3,
		Title:    "build fails on 2.x",
		Reporter: &User{AccountID: "acct-1", DisplayName: "Alice"},
		Comments: []IssueComment{
			{User: &User{AccountID: "acct-1", DisplayName: "Alice"}, CreatedOn: timePtr(selfComment)},
			{User: &User{AccountID: "acct-2", DisplayName: "Bob"}, CreatedOn: timePtr(reply)},
		},
	}, testContext())

	if issue.FirstCommentAt != reply.Unix() {
		t.Fatalf("first response = %d, want %d", issue.FirstCommentAt, reply.Unix())
	}
	if issue.NumComments != 2 {
		t.Fatalf("num comments = %d", issue.NumComments)
	}
}
