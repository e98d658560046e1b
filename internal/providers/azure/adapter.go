package azure

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/devinsights/scm-normalizer/internal/diffstat"
	"github.com/devinsights/scm-normalizer/internal/mergestate"
	"github.com/devinsights/scm-normalizer/internal/models"
	"github.com/devinsights/scm-normalizer/internal/providers"
)

const (
	statusCompleted = "completed"
	refHeadsPrefix  = "refs/heads/"
)

// Reviewer vote values as the API defines them. Zero means no vote cast
// and produces no review event.
const (
	voteApproved                = 10
	voteApprovedWithSuggestions = 5
	voteWaitingForAuthor        = -5
	voteRejected                = -10
)

// Adapter normalizes Azure DevOps payloads, both git and TFVC.
type Adapter struct{}

// Kind implements providers.Adapter.
func (Adapter) Kind() providers.Kind { return providers.KindAzureDevops }

// Normalize implements providers.Adapter.
func (Adapter) Normalize(ctx providers.Context, payload json.RawMessage) (providers.Result, error) {
	var event Event
	if err := providers.DecodeEnvelope(providers.KindAzureDevops, payload, &event); err != nil {
		return providers.Result{}, err
	}

	result := providers.Result{}
	for _, commit := range event.Commits {
		result.Commits = append(result.Commits, CommitRecord(commit, ctx))
	}
	for _, changeset := range event.Changesets {
		result.Commits = append(result.Commits, ChangesetRecord(changeset, ctx))
	}
	for _, pr := range event.PullRequests {
		result.PullRequests = append(result.PullRequests, PullRequestRecord(pr, ctx))
	}
	for _, item := range event.WorkItems {
		result.Issues = append(result.Issues, WorkItemRecord(item, ctx))
	}
	for _, tag := range event.Tags {
		result.Tags = append(result.Tags, tagRecord(tag, ctx))
	}
	return result, nil
}

// CommitRecord converts one git commit. The change counts are file-level
// summaries computed server-side and pass through as reported.
func CommitRecord(source Commit, ctx providers.Context) models.ScmCommit {
	additions, deletions, edits := 0, 0, 0
	if source.ChangeCounts != nil {
		additions = source.ChangeCounts.Add
		deletions = source.ChangeCounts.Delete
		edits = source.ChangeCounts.Edit
	}
	stats := diffstat.FromAggregate(additions, deletions, additions+deletions+edits, additions+deletions+edits)

	return models.ScmCommit{
		IntegrationID:  ctx.IntegrationID,
		RepoIDs:        ctx.RepoIDs(),
		VCSType:        models.VCSTypeGit,
		Project:        ctx.ProjectOrRepo(),
		CommitSHA:      source.CommitID,
		Committer:      gitUserName(source.Committer),
		CommitterInfo:  gitUserIdentity(source.Committer, ctx.IntegrationID),
		Author:         gitUserName(source.Author),
		AuthorInfo:     gitUserIdentity(source.Author, ctx.IntegrationID),
		CommitURL:      source.RemoteURL,
		Message:        models.TruncateMessage(source.Comment),
		FilesCt:        stats.FilesCount,
		Additions:      stats.Additions,
		Deletions:      stats.Deletions,
		Changes:        stats.Changes,
		IssueKeys:      ctx.IssueKeys(source.Comment),
		WorkitemIDs:    ctx.Workitems(source.Comment),
		DirectMerge:    false,
		CommittedAt:    gitCommitTime(source, ctx),
		CommitPushedAt: ctx.EventTimeMillis / 1000,
		IngestedAt:     ctx.IngestedAt(),
	}
}

// ChangesetRecord converts one TFVC changeset. TFVC exposes no line
// statistics at all, so every count is reported as zero.
func ChangesetRecord(source Changeset, ctx providers.Context) models.ScmCommit {
	stats := diffstat.FromFiles(nil, diffstat.ChangesNotReported)
	committer := source.CheckedInBy
	if committer == nil {
		committer = source.Author
	}

	return models.ScmCommit{
		IntegrationID:  ctx.IntegrationID,
		RepoIDs:        ctx.RepoIDs(),
		VCSType:        models.VCSTypeTfvc,
		Project:        ctx.ProjectOrRepo(),
		CommitSHA:      strconv.FormatInt(source.ChangesetID, 10),
		Committer:      identityName(committer),
		CommitterInfo:  identityRecord(committer, ctx.IntegrationID),
		Author:         identityName(source.Author),
		AuthorInfo:     identityRecord(source.Author, ctx.IntegrationID),
		Message:        models.TruncateMessage(source.Comment),
		Additions:      stats.Additions,
		Deletions:      stats.Deletions,
		Changes:        stats.Changes,
		IssueKeys:      ctx.IssueKeys(source.Comment),
		WorkitemIDs:    ctx.Workitems(source.Comment),
		DirectMerge:    false,
		CommittedAt:    changesetTime(source, ctx),
		CommitPushedAt: ctx.EventTimeMillis / 1000,
		IngestedAt:     ctx.IngestedAt(),
	}
}

// PullRequestRecord converts one pull request. Merge state is explicit: a
// completed request with a last-merge commit is merged at its close time.
func PullRequestRecord(source PullRequest, ctx providers.Context) models.ScmPullRequest {
	mergeSHA := ""
	if source.LastMergeCommit != nil {
		mergeSHA = source.LastMergeCommit.CommitID
	}
	mergedAt := int64(0)
	if strings.EqualFold(source.Status, statusCompleted) && mergeSHA != "" {
		mergedAt = epoch(source.ClosedDate)
	}
	mergeInfo := mergestate.FromMergedAt(mergedAt, mergeSHA)

	declared := make([]string, 0, len(source.Reviewers))
	declaredInfo := make([]models.ScmUser, 0, len(source.Reviewers))
	for _, reviewer := range source.Reviewers {
		declared = append(declared, identityName(&reviewer.Identity))
		declaredInfo = append(declaredInfo, identityRecord(&reviewer.Identity, ctx.IntegrationID))
	}

	labels := make([]string, 0, len(source.Labels))
	for _, label := range source.Labels {
		labels = append(labels, strings.ToLower(label.Name))
	}

	var commitSHAs []string
	for _, commit := range source.Commits {
		commitSHAs = append(commitSHAs, commit.CommitID)
	}

	sourceBranch := strings.TrimPrefix(source.SourceRefName, refHeadsPrefix)
	targetBranch := strings.TrimPrefix(source.TargetRefName, refHeadsPrefix)

	record := models.ScmPullRequest{
		IntegrationID: ctx.IntegrationID,
		RepoIDs:       ctx.RepoIDs(),
		Project:       ctx.ProjectOrRepo(),
		Number:        strconv.FormatInt(source.PullRequestID, 10),
		Title:         source.Title,
		State:         source.Status,
		SourceBranch:  sourceBranch,
		TargetBranch:  targetBranch,
		Creator:       identityName(source.CreatedBy),
		CreatorInfo:   identityRecord(source.CreatedBy, ctx.IntegrationID),
		Merged:        mergeInfo.Merged,
		MergeSHA:      mergeInfo.MergeSHA,
		Assignees:     []string{},
		AssigneesInfo: []models.ScmUser{},
		Labels:        labels,
		CommitSHAs:    commitSHAs,
		Reviews:       reviewRecords(source, ctx),
		IssueKeys:     ctx.IssueKeys(source.Title, sourceBranch),
		WorkitemIDs:   ctx.Workitems(source.Title, sourceBranch),
		PRCreatedAt:   epoch(source.CreationDate),
		PRUpdatedAt:   epoch(source.ClosedDate),
		PRMergedAt:    mergedAt,
		PRClosedAt:    epoch(source.ClosedDate),
	}
	record.RollupReviewParticipants()
	record.Reviewers, record.ReviewersInfo = models.MergeParticipants(
		record.Reviewers, record.ReviewersInfo, declared, declaredInfo)
	return record
}

// reviewRecords maps the current reviewer votes to review events. The API
// reports only the latest vote per reviewer and no vote timestamp, so the
// review time falls back to the close time, then the event time.
func reviewRecords(source PullRequest, ctx providers.Context) []models.ScmReview {
	reviewedAt := epoch(source.ClosedDate)
	if reviewedAt == 0 {
		reviewedAt = ctx.EventTimeMillis / 1000
	}

	var reviews []models.ScmReview
	for _, reviewer := range source.Reviewers {
		state, ok := voteState(reviewer.Vote)
		if !ok {
			continue
		}
		reviews = append(reviews, models.ScmReview{
			ReviewID:     strconv.FormatInt(source.PullRequestID, 10) + "-" + models.FirstNonBlank(reviewer.ID, reviewer.UniqueName),
			Reviewer:     identityName(&reviewer.Identity),
			ReviewerInfo: identityRecord(&reviewer.Identity, ctx.IntegrationID),
			State:        state,
			ReviewedAt:   reviewedAt,
		})
	}
	return reviews
}

func voteState(vote int) (string, bool) {
	switch vote {
	case voteApproved, voteApprovedWithSuggestions:
		return models.ReviewStateApproved, true
	case voteRejected:
		return models.ReviewStateDeclined, true
	case voteWaitingForAuthor:
		return "WAITING", true
	default:
		return "", false
	}
}

// WorkItemRecord converts one work item into a canonical issue.
// First-response time is the earliest comment not authored by the
// creator, matched on identity id.
func WorkItemRecord(source WorkItem, ctx providers.Context) models.ScmIssue {
	creatorID := ""
	if source.CreatedBy != nil {
		creatorID = source.CreatedBy.ID
	}

	var assignees []string
	if source.AssignedTo != nil {
		assignees = append(assignees, identityName(source.AssignedTo))
	}

	var firstCommentAt int64
	for _, comment := range source.Comments {
		if comment.CreatedBy != nil && comment.CreatedBy.ID == creatorID {
			continue
		}
		at := epoch(comment.CreatedDate)
		if at == 0 {
			continue
		}
		if firstCommentAt == 0 || at < firstCommentAt {
			firstCommentAt = at
		}
	}

	return models.ScmIssue{
		IntegrationID:  ctx.IntegrationID,
		RepoID:         ctx.RepoIDs()[0],
		Project:        ctx.ProjectOrRepo(),
		Number:         strconv.FormatInt(source.ID, 10),
		Title:          source.Title,
		State:          source.State,
		Creator:        identityName(source.CreatedBy),
		CreatorInfo:    identityRecord(source.CreatedBy, ctx.IntegrationID),
		Assignees:      assignees,
		Labels:         source.Tags,
		NumComments:    len(source.Comments),
		IssueCreatedAt: epoch(source.CreatedDate),
		IssueUpdatedAt: epoch(source.ChangedDate),
		IssueClosedAt:  epoch(source.ClosedDate),
		FirstCommentAt: firstCommentAt,
		IngestedAt:     ctx.IngestedAt(),
	}
}

func tagRecord(source Tag, ctx providers.Context) models.ScmTag {
	sha := source.ObjectID
	if source.TaggedObject != nil && source.TaggedObject.CommitID != "" {
		sha = source.TaggedObject.CommitID
	}
	at := epoch(source.Date)
	if at == 0 {
		at = ctx.EventTimeMillis / 1000
	}
	return models.ScmTag{
		IntegrationID: ctx.IntegrationID,
		RepoID:        ctx.RepoIDs()[0],
		Project:       ctx.ProjectOrRepo(),
		Tag:           source.Name,
		CommitSHA:     sha,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

// identityRecord resolves an Azure identity reference. The GUID is the
// stable id; unique name (usually the email) and display name fall back
// in turn.
func identityRecord(identity *Identity, integrationID string) models.ScmUser {
	if identity == nil {
		return models.UnknownUser(integrationID)
	}
	cloudID := models.FirstNonBlank(identity.ID, identity.UniqueName)
	display := models.FirstNonBlank(identity.DisplayName, identity.UniqueName)
	if cloudID == models.Unknown && display == models.Unknown {
		return models.UnknownUser(integrationID)
	}
	record := models.ScmUser{
		IntegrationID:       integrationID,
		CloudID:             cloudID,
		DisplayName:         display,
		OriginalDisplayName: display,
	}
	if strings.Contains(identity.UniqueName, "@") {
		record.Emails = []string{identity.UniqueName}
	}
	return record
}

func identityName(identity *Identity) string {
	if identity == nil {
		return models.Unknown
	}
	return models.FirstNonBlank(identity.DisplayName, identity.UniqueName)
}

func gitUserIdentity(user *GitUserDate, integrationID string) models.ScmUser {
	if user == nil || (user.Email == "" && user.Name == "") {
		return models.UnknownUser(integrationID)
	}
	cloudID := models.FirstNonBlank(user.Email, user.Name)
	display := models.FirstNonBlank(user.Name, user.Email)
	record := models.ScmUser{
		IntegrationID:       integrationID,
		CloudID:             cloudID,
		DisplayName:         display,
		OriginalDisplayName: display,
	}
	if user.Email != "" {
		record.Emails = []string{user.Email}
	}
	return record
}

func gitUserName(user *GitUserDate) string {
	if user == nil {
		return models.Unknown
	}
	return models.FirstNonBlank(user.Name, user.Email)
}

func gitCommitTime(commit Commit, ctx providers.Context) int64 {
	if commit.Committer != nil && commit.Committer.Date != nil {
		return commit.Committer.Date.Unix()
	}
	if commit.Author != nil && commit.Author.Date != nil {
		return commit.Author.Date.Unix()
	}
	return ctx.EventTimeMillis / 1000
}

func changesetTime(changeset Changeset, ctx providers.Context) int64 {
	if changeset.CreatedDate != nil {
		return changeset.CreatedDate.Unix()
	}
	return ctx.EventTimeMillis / 1000
}

func epoch(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
