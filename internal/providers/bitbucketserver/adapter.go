package bitbucketserver

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/devinsights/scm-normalizer/internal/diffstat"
	"github.com/devinsights/scm-normalizer/internal/mergestate"
	"github.com/devinsights/scm-normalizer/internal/models"
	"github.com/devinsights/scm-normalizer/internal/providers"
)

// Adapter normalizes Bitbucket Server payloads.
type Adapter struct{}

// Kind implements providers.Adapter.
func (Adapter) Kind() providers.Kind { return providers.KindBitbucketServer }

// Normalize implements providers.Adapter.
func (Adapter) Normalize(ctx providers.Context, payload json.RawMessage) (providers.Result, error) {
	var event Event
	if err := providers.DecodeEnvelope(providers.KindBitbucketServer, payload, &event); err != nil {
		return providers.Result{}, err
	}

	result := providers.Result{}
	for _, commit := range event.Commits {
		result.Commits = append(result.Commits, CommitRecord(commit, ctx))
	}
	for _, pr := range event.PullRequests {
		result.PullRequests = append(result.PullRequests, PullRequestRecord(pr, ctx))
	}
	for _, tag := range event.Tags {
		result.Tags = append(result.Tags, tagRecord(tag, ctx))
	}
	return result, nil
}

// CommitRecord converts one Bitbucket Server commit. The server exposes no
// per-commit diff statistics, so additions, deletions and changes are
// reported as zero rather than guessed.
func CommitRecord(source Commit, ctx providers.Context) models.ScmCommit {
	stats := diffstat.FromFiles(nil, diffstat.ChangesNotReported)

	return models.ScmCommit{
		IntegrationID:  ctx.IntegrationID,
		RepoIDs:        ctx.RepoIDs(),
		VCSType:        models.VCSTypeGit,
		Project:        ctx.ProjectOrRepo(),
		CommitSHA:      source.ID,
		Committer:      userName(source.Committer),
		CommitterInfo:  userIdentity(source.Committer, ctx.IntegrationID),
		Author:         userName(source.Author),
		AuthorInfo:     userIdentity(source.Author, ctx.IntegrationID),
		Message:        models.TruncateMessage(source.Message),
		Additions:      stats.Additions,
		Deletions:      stats.Deletions,
		Changes:        stats.Changes,
		IssueKeys:      ctx.IssueKeys(source.Message),
		WorkitemIDs:    ctx.Workitems(source.Message),
		DirectMerge:    false,
		CommittedAt:    commitTime(source, ctx),
		CommitPushedAt: ctx.EventTimeMillis / 1000,
		IngestedAt:     ctx.IngestedAt(),
	}
}

// PullRequestRecord converts one Bitbucket Server pull request. Merge
// state comes from the activity log: a closed request is merged exactly
// when a MERGED activity exists, and that entry carries the merge commit
// and time.
func PullRequestRecord(source PullRequest, ctx providers.Context) models.ScmPullRequest {
	activities := neutralActivities(source)
	mergeInfo := mergestate.FromActivityLog(source.Open, activities)

	sourceBranch, targetBranch := "", ""
	if source.FromRef != nil {
		sourceBranch = source.FromRef.DisplayID
	}
	if source.ToRef != nil {
		targetBranch = source.ToRef.DisplayID
	}

	var commitSHAs []string
	for _, commit := range source.Commits {
		commitSHAs = append(commitSHAs, commit.ID)
	}

	var creatorUser *User
	if source.Author != nil {
		creatorUser = source.Author.User
	}

	declared := make([]string, 0, len(source.Reviewers))
	declaredInfo := make([]models.ScmUser, 0, len(source.Reviewers))
	for _, reviewer := range source.Reviewers {
		declared = append(declared, userName(reviewer.User))
		declaredInfo = append(declaredInfo, userIdentity(reviewer.User, ctx.IntegrationID))
	}

	record := models.ScmPullRequest{
		IntegrationID: ctx.IntegrationID,
		RepoIDs:       ctx.RepoIDs(),
		Project:       ctx.ProjectOrRepo(),
		Number:        strconv.FormatInt(source.ID, 10),
		Title:         source.Title,
		State:         source.State,
		SourceBranch:  sourceBranch,
		TargetBranch:  targetBranch,
		Creator:       userName(creatorUser),
		CreatorInfo:   userIdentity(creatorUser, ctx.IntegrationID),
		Merged:        mergeInfo.Merged,
		MergeSHA:      mergeInfo.MergeSHA,
		Assignees:     []string{},
		AssigneesInfo: []models.ScmUser{},
		CommitSHAs:    commitSHAs,
		Reviews:       reviewRecords(source, activities, ctx),
		IssueKeys:     ctx.IssueKeys(source.Title, sourceBranch),
		WorkitemIDs:   ctx.Workitems(source.Title, sourceBranch),
		PRCreatedAt:   source.CreatedDate / 1000,
		PRUpdatedAt:   source.UpdatedDate / 1000,
		PRMergedAt:    mergeInfo.MergedAt,
		PRClosedAt:    source.ClosedDate / 1000,
	}
	record.RollupReviewParticipants()
	record.Reviewers, record.ReviewersInfo = models.MergeParticipants(
		record.Reviewers, record.ReviewersInfo, declared, declaredInfo)
	return record
}

// reviewRecords filters the activity log through the review-action
// allow-list; non-review entries like OPENED or MERGED never surface as
// reviews.
func reviewRecords(source PullRequest, activities []mergestate.Activity, ctx providers.Context) []models.ScmReview {
	byID := make(map[string]Activity, len(source.Activities))
	for _, activity := range source.Activities {
		byID[strconv.FormatInt(activity.ID, 10)] = activity
	}

	var reviews []models.ScmReview
	for _, entry := range mergestate.FilterReviewActivities(activities) {
		reviews = append(reviews, models.ScmReview{
			ReviewID:     entry.ID,
			Reviewer:     entry.User,
			ReviewerInfo: userIdentity(byID[entry.ID].User, ctx.IntegrationID),
			State:        normalizeAction(entry.Action),
			ReviewedAt:   entry.CreatedAt,
		})
	}
	return reviews
}

func neutralActivities(source PullRequest) []mergestate.Activity {
	entries := make([]mergestate.Activity, 0, len(source.Activities))
	for _, activity := range source.Activities {
		body := ""
		if activity.Comment != nil {
			body = activity.Comment.Text
		}
		commitID := ""
		if activity.Commit != nil {
			commitID = activity.Commit.ID
		}
		entries = append(entries, mergestate.Activity{
			ID:        strconv.FormatInt(activity.ID, 10),
			Action:    activity.Action,
			User:      userName(activity.User),
			CommitID:  commitID,
			Body:      body,
			CreatedAt: activity.CreatedDate / 1000,
		})
	}
	return entries
}

// normalizeAction collapses the two spellings of the needs-work action
// into the canonical underscore form.
func normalizeAction(action string) string {
	upper := strings.ToUpper(action)
	if upper == "NEEDS WORK" {
		return models.ReviewStateNeedsWork
	}
	return upper
}

func tagRecord(source Tag, ctx providers.Context) models.ScmTag {
	return models.ScmTag{
		IntegrationID: ctx.IntegrationID,
		RepoID:        ctx.RepoIDs()[0],
		Project:       ctx.ProjectOrRepo(),
		Tag:           source.DisplayID,
		CommitSHA:     source.LatestCommit,
		CreatedAt:     ctx.EventTimeMillis / 1000,
		UpdatedAt:     ctx.EventTimeMillis / 1000,
	}
}

// userIdentity resolves a server account fragment. The slug is the stable
// id, falling back through name and email for git-only signatures.
func userIdentity(user *User, integrationID string) models.ScmUser {
	if user == nil {
		return models.UnknownUser(integrationID)
	}
	cloudID := models.FirstNonBlank(user.Slug, user.Name, user.EmailAddress)
	display := models.FirstNonBlank(user.DisplayName, user.Name, user.EmailAddress)
	if cloudID == models.Unknown && display == models.Unknown {
		return models.UnknownUser(integrationID)
	}
	identity := models.ScmUser{
		IntegrationID:       integrationID,
		CloudID:             cloudID,
		DisplayName:         display,
		OriginalDisplayName: display,
	}
	if user.EmailAddress != "" {
		identity.Emails = []string{user.EmailAddress}
	}
	return identity
}

func userName(user *User) string {
	if user == nil {
		return models.Unknown
	}
	return models.FirstNonBlank(user.DisplayName, user.Name, user.EmailAddress)
}

func commitTime(commit Commit, ctx providers.Context) int64 {
	if commit.CommitterTimestamp > 0 {
		return commit.CommitterTimestamp / 1000
	}
	if commit.AuthorTimestamp > 0 {
		return commit.AuthorTimestamp / 1000
	}
	return ctx.EventTimeMillis / 1000
}
