package bitbucket

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/devinsights/scm-normalizer/internal/diffstat"
	"github.com/devinsights/scm-normalizer/internal/mergestate"
	"github.com/devinsights/scm-normalizer/internal/models"
	"github.com/devinsights/scm-normalizer/internal/providers"
)

const stateMerged = "MERGED"

// Adapter normalizes Bitbucket cloud payloads.
type Adapter struct{}

// Kind implements providers.Adapter.
func (Adapter) Kind() providers.Kind { return providers.KindBitbucket }

// Normalize implements providers.Adapter.
func (Adapter) Normalize(ctx providers.Context, payload json.RawMessage) (providers.Result, error) {
	var event Event
	if err := providers.DecodeEnvelope(providers.KindBitbucket, payload, &event); err != nil {
		return providers.Result{}, err
	}

	result := providers.Result{}
	for _, commit := range event.Commits {
		result.Commits = append(result.Commits, CommitRecord(commit, ctx))
		result.Files = append(result.Files, fileRecords(commit, ctx)...)
	}
	for _, pr := range event.PullRequests {
		result.PullRequests = append(result.PullRequests, PullRequestRecord(pr, ctx))
	}
	for _, issue := range event.Issues {
		result.Issues = append(result.Issues, issueRecord(issue, ctx))
	}
	for _, tag := range event.Tags {
		result.Tags = append(result.Tags, tagRecord(tag, ctx))
	}
	return result, nil
}

// CommitRecord converts one Bitbucket cloud commit. The API reports diff
// statistics per file only, so every aggregate is summed across the
// diffstat entries.
func CommitRecord(source Commit, ctx providers.Context) models.ScmCommit {
	stats := diffstat.FromFiles(fileStats(source), diffstat.ChangesFromFiles)
	author := commitActor(source.Author)

	return models.ScmCommit{
		IntegrationID:  ctx.IntegrationID,
		RepoIDs:        ctx.RepoIDs(),
		VCSType:        models.VCSTypeGit,
		Project:        ctx.ProjectOrRepo(),
		CommitSHA:      source.Hash,
		Committer:      author,
		CommitterInfo:  commitIdentity(source.Author, ctx.IntegrationID),
		Author:         author,
		AuthorInfo:     commitIdentity(source.Author, ctx.IntegrationID),
		Message:        models.TruncateMessage(source.Message),
		FilesCt:        stats.FilesCount,
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

// PullRequestRecord converts one Bitbucket cloud pull request. Merge state
// is explicit: the MERGED state plus the merge commit hash; the merge time
// is the last update on the pull request.
func PullRequestRecord(source PullRequest, ctx providers.Context) models.ScmPullRequest {
	sourceBranch, targetBranch := "", ""
	var commitSHAs []string
	if source.Source != nil {
		if source.Source.Branch != nil {
			sourceBranch = source.Source.Branch.Name
		}
	}
	if source.Destination != nil && source.Destination.Branch != nil {
		targetBranch = source.Destination.Branch.Name
	}
	for _, commit := range source.Commits {
		commitSHAs = append(commitSHAs, commit.Hash)
	}

	mergeSHA := ""
	if source.MergeCommit != nil {
		mergeSHA = source.MergeCommit.Hash
	}
	mergedAt := int64(0)
	if source.State == stateMerged && mergeSHA != "" {
		mergedAt = epoch(source.UpdatedOn)
	}
	mergeInfo := mergestate.FromMergedAt(mergedAt, mergeSHA)

	declared := make([]string, 0, len(source.Reviewers))
	declaredInfo := make([]models.ScmUser, 0, len(source.Reviewers))
	for _, reviewer := range source.Reviewers {
		reviewer := reviewer
		declared = append(declared, userName(&reviewer))
		declaredInfo = append(declaredInfo, userIdentity(&reviewer, ctx.IntegrationID))
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
		Creator:       userName(source.Author),
		CreatorInfo:   userIdentity(source.Author, ctx.IntegrationID),
		Merged:        mergeInfo.Merged,
		MergeSHA:      mergeInfo.MergeSHA,
		Assignees:     []string{},
		AssigneesInfo: []models.ScmUser{},
		CommitSHAs:    commitSHAs,
		Reviews:       reviewRecords(source, ctx),
		IssueKeys:     ctx.IssueKeys(source.Title, sourceBranch),
		WorkitemIDs:   ctx.Workitems(source.Title, sourceBranch),
		PRCreatedAt:   epoch(source.CreatedOn),
		PRUpdatedAt:   epoch(source.UpdatedOn),
		PRMergedAt:    mergedAt,
	}
	record.RollupReviewParticipants()
	record.Reviewers, record.ReviewersInfo = models.MergeParticipants(
		record.Reviewers, record.ReviewersInfo, declared, declaredInfo)
	return record
}

// reviewRecords flattens the activity stream: approvals become APPROVED
// reviews, comments become COMMENTED reviews. Other activity kinds carry
// no review signal and are skipped.
func reviewRecords(source PullRequest, ctx providers.Context) []models.ScmReview {
	var reviews []models.ScmReview
	for _, activity := range source.Activities {
		switch {
		case activity.Approval != nil:
			approval := activity.Approval
			reviews = append(reviews, models.ScmReview{
				ReviewID:     strconv.FormatInt(source.ID, 10) + "-" + userName(approval.User) + "-approval",
				Reviewer:     userName(approval.User),
				ReviewerInfo: userIdentity(approval.User, ctx.IntegrationID),
				State:        models.ReviewStateApproved,
				ReviewedAt:   epoch(approval.Date),
			})
		case activity.Comment != nil:
			comment := activity.Comment
			reviews = append(reviews, models.ScmReview{
				ReviewID:     strconv.FormatInt(comment.ID, 10),
				Reviewer:     userName(comment.User),
				ReviewerInfo: userIdentity(comment.User, ctx.IntegrationID),
				State:        models.ReviewStateCommented,
				ReviewedAt:   epoch(comment.CreatedOn),
			})
		}
	}
	return reviews
}

func issueRecord(source Issue, ctx providers.Context) models.ScmIssue {
	creator := userName(source.Reporter)

	var assignees []string
	if source.Assignee != nil {
		assignees = append(assignees, userName(source.Assignee))
	}

	var firstCommentAt int64
	for _, comment := range source.Comments {
		if userName(comment.User) == creator {
			continue
		}
		at := epoch(comment.CreatedOn)
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
		Creator:        creator,
		CreatorInfo:    userIdentity(source.Reporter, ctx.IntegrationID),
		Assignees:      assignees,
		NumComments:    len(source.Comments),
		IssueCreatedAt: epoch(source.CreatedOn),
		IssueUpdatedAt: epoch(source.UpdatedOn),
		FirstCommentAt: firstCommentAt,
		IngestedAt:     ctx.IngestedAt(),
	}
}

func fileRecords(commit Commit, ctx providers.Context) []models.ScmFile {
	files := make([]models.ScmFile, 0, len(commit.DiffStats))
	for _, stat := range commit.DiffStats {
		name := diffStatPath(stat)
		files = append(files, models.ScmFile{
			IntegrationID: ctx.IntegrationID,
			RepoID:        ctx.RepoIDs()[0],
			Project:       ctx.ProjectOrRepo(),
			Filename:      name,
			Filetype:      models.Filetype(name),
			CommitSHA:     commit.Hash,
			Additions:     stat.LinesAdded,
			Deletions:     stat.LinesRemoved,
			Changes:       stat.LinesAdded + stat.LinesRemoved,
			CommittedAt:   commitTime(commit, ctx),
		})
	}
	return files
}

func tagRecord(source Tag, ctx providers.Context) models.ScmTag {
	sha := ""
	if source.Target != nil {
		sha = source.Target.Hash
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

func fileStats(commit Commit) []diffstat.FileStat {
	stats := make([]diffstat.FileStat, 0, len(commit.DiffStats))
	for _, stat := range commit.DiffStats {
		stats = append(stats, diffstat.FileStat{
			Filename:  diffStatPath(stat),
			Additions: stat.LinesAdded,
			Deletions: stat.LinesRemoved,
			Changes:   stat.LinesAdded + stat.LinesRemoved,
		})
	}
	return stats
}

// diffStatPath prefers the post-change path; deletions only carry the old
// side.
func diffStatPath(stat DiffStat) string {
	if stat.New != nil && stat.New.Path != "" {
		return stat.New.Path
	}
	if stat.Old != nil {
		return stat.Old.Path
	}
	return ""
}

// userIdentity resolves a Bitbucket cloud account fragment. The account id
// is the stable cloud id; display name prefers the profile name, then the
// nickname.
func userIdentity(user *User, integrationID string) models.ScmUser {
	if user == nil {
		return models.UnknownUser(integrationID)
	}
	cloudID := models.FirstNonBlank(user.AccountID, user.UUID)
	display := models.FirstNonBlank(user.DisplayName, user.Nickname, user.AccountID)
	if cloudID == models.Unknown && display == models.Unknown {
		return models.UnknownUser(integrationID)
	}
	return models.ScmUser{
		IntegrationID:       integrationID,
		CloudID:             cloudID,
		DisplayName:         display,
		OriginalDisplayName: display,
	}
}

func commitIdentity(author *CommitAuthor, integrationID string) models.ScmUser {
	if author == nil {
		return models.UnknownUser(integrationID)
	}
	if author.User != nil {
		if identity := userIdentity(author.User, integrationID); identity.CloudID != models.Unknown {
			return identity
		}
	}
	if author.Raw != "" {
		return models.ScmUser{
			IntegrationID:       integrationID,
			CloudID:             author.Raw,
			DisplayName:         author.Raw,
			OriginalDisplayName: author.Raw,
		}
	}
	return models.UnknownUser(integrationID)
}

func commitActor(author *CommitAuthor) string {
	if author == nil {
		return models.Unknown
	}
	if author.User != nil {
		if name := userName(author.User); name != models.Unknown {
			return name
		}
	}
	return models.FirstNonBlank(author.Raw)
}

func userName(user *User) string {
	if user == nil {
		return models.Unknown
	}
	return models.FirstNonBlank(user.DisplayName, user.Nickname, user.AccountID)
}

func commitTime(commit Commit, ctx providers.Context) int64 {
	if commit.Date != nil {
		return commit.Date.Unix()
	}
	return ctx.EventTimeMillis / 1000
}

func epoch(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
