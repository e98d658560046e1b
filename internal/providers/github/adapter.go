package github

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
	baseURL    = "https://github.com/"
	pullPath   = "/pull/"
	prLinkKey  = "pr_link"
	nullPRLink = "#"
)

// Adapter normalizes GitHub payloads.
type Adapter struct{}

// Kind implements providers.Adapter.
func (Adapter) Kind() providers.Kind { return providers.KindGitHub }

// Normalize implements providers.Adapter.
func (Adapter) Normalize(ctx providers.Context, payload json.RawMessage) (providers.Result, error) {
	var event Event
	if err := providers.DecodeEnvelope(providers.KindGitHub, payload, &event); err != nil {
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
		result.Issues = append(result.Issues, IssueRecord(issue, ctx))
	}
	for _, tag := range event.Tags {
		result.Tags = append(result.Tags, tagRecord(tag, ctx))
	}
	return result, nil
}

// CommitRecord converts one GitHub commit. Additions and deletions come
// from the pre-aggregated stat block; the changes total is summed across
// the per-file stats, matching how the upstream API reports them.
func CommitRecord(source Commit, ctx providers.Context) models.ScmCommit {
	files := make([]diffstat.FileStat, 0, len(source.Files))
	for _, file := range source.Files {
		files = append(files, diffstat.FileStat{
			Filename:  file.Filename,
			Additions: file.Additions,
			Deletions: file.Deletions,
			Changes:   file.Changes,
		})
	}
	changes := diffstat.FromFiles(files, diffstat.ChangesFromFiles).Changes

	additions, deletions := 0, 0
	if source.Stats != nil {
		additions = source.Stats.Additions
		deletions = source.Stats.Deletions
	}

	return models.ScmCommit{
		IntegrationID:  ctx.IntegrationID,
		RepoIDs:        ctx.RepoIDs(),
		VCSType:        models.VCSTypeGit,
		Project:        ctx.ProjectOrRepo(),
		CommitSHA:      source.SHA,
		Committer:      commitActor(source.Committer, source.GitCommitter),
		CommitterInfo:  commitIdentity(source.Committer, source.GitCommitter, ctx.IntegrationID),
		Author:         commitActor(source.Author, source.GitAuthor),
		AuthorInfo:     commitIdentity(source.Author, source.GitAuthor, ctx.IntegrationID),
		CommitURL:      source.URL,
		Message:        models.TruncateMessage(source.Message),
		Branch:         source.Branch,
		FilesCt:        len(source.Files),
		Additions:      additions,
		Deletions:      deletions,
		Changes:        changes,
		IssueKeys:      ctx.IssueKeys(source.Message),
		WorkitemIDs:    ctx.Workitems(source.Message),
		DirectMerge:    false,
		CommittedAt:    committedAt(source, ctx),
		CommitPushedAt: ctx.EventTimeMillis / 1000,
		IngestedAt:     ctx.IngestedAt(),
	}
}

// PullRequestRecord converts one GitHub pull request. Merge state is the
// explicit merged-at field; reviews come from the direct review list with
// the optional approve+comment split.
func PullRequestRecord(source PullRequest, ctx providers.Context) models.ScmPullRequest {
	sourceBranch, targetBranch := "", ""
	if source.Head != nil {
		sourceBranch = source.Head.Ref
	}
	if source.Base != nil {
		targetBranch = source.Base.Ref
	}

	assignees := make([]string, 0, len(source.Assignees))
	assigneesInfo := make([]models.ScmUser, 0, len(source.Assignees))
	for _, assignee := range source.Assignees {
		assignees = append(assignees, assignee.Login)
		assigneesInfo = append(assigneesInfo, models.ScmUser{
			IntegrationID:       ctx.IntegrationID,
			CloudID:             assignee.Login,
			DisplayName:         assignee.Login,
			OriginalDisplayName: assignee.Login,
		})
	}

	labels := make([]string, 0, len(source.Labels))
	for _, label := range source.Labels {
		labels = append(labels, strings.ToLower(label.Name))
	}

	commitSHAs := make([]string, 0, len(source.Commits))
	for _, commit := range source.Commits {
		commitSHAs = append(commitSHAs, commit.SHA)
	}

	mergeInfo := mergestate.FromMergedAt(epoch(source.MergedAt), source.MergeCommitSHA)

	creator := models.Unknown
	if source.User != nil && source.User.Login != "" {
		creator = source.User.Login
	}

	record := models.ScmPullRequest{
		IntegrationID: ctx.IntegrationID,
		RepoIDs:       ctx.RepoIDs(),
		Project:       ctx.ProjectOrRepo(),
		Number:        strconv.Itoa(source.Number),
		Title:         source.Title,
		State:         source.State,
		SourceBranch:  sourceBranch,
		TargetBranch:  targetBranch,
		Creator:       creator,
		CreatorInfo:   userIdentity(source.User, ctx.IntegrationID),
		Merged:        mergeInfo.Merged,
		MergeSHA:      source.MergeCommitSHA,
		Assignees:     assignees,
		AssigneesInfo: assigneesInfo,
		Labels:        labels,
		CommitSHAs:    commitSHAs,
		Reviews:       reviewRecords(source.Reviews, ctx),
		IssueKeys:     ctx.IssueKeys(source.Title, sourceBranch),
		WorkitemIDs:   ctx.Workitems(source.Title, sourceBranch),
		Metadata:      prLinkMetadata(source),
		PRCreatedAt:   epoch(source.CreatedAt),
		PRUpdatedAt:   epoch(source.UpdatedAt),
		PRMergedAt:    epoch(source.MergedAt),
		PRClosedAt:    epoch(source.ClosedAt),
	}
	record.RollupReviewParticipants()
	return record
}

func reviewRecords(reviews []Review, ctx providers.Context) []models.ScmReview {
	entries := make([]mergestate.Activity, 0, len(reviews))
	byID := make(map[string]Review, len(reviews))
	for _, review := range reviews {
		login := ""
		if review.User != nil {
			login = review.User.Login
		}
		entries = append(entries, mergestate.Activity{
			ID:        review.ID,
			Action:    review.State,
			User:      login,
			Body:      review.Body,
			CreatedAt: epoch(review.SubmittedAt),
		})
		byID[review.ID] = review
	}

	return mergestate.SplitReviews(entries, ctx.ReviewSplit, func(entry mergestate.Activity, reviewID, state string) models.ScmReview {
		review := byID[entry.ID]
		return models.ScmReview{
			ReviewID:     reviewID,
			Reviewer:     entry.User,
			ReviewerInfo: userIdentity(review.User, ctx.IntegrationID),
			State:        state,
			ReviewedAt:   entry.CreatedAt,
		}
	})
}

// IssueRecord converts one GitHub issue. First-response time is the
// earliest comment not authored by the issue creator.
func IssueRecord(source Issue, ctx providers.Context) models.ScmIssue {
	creator := models.Unknown
	if source.User != nil && source.User.Login != "" {
		creator = source.User.Login
	}

	assignees := make([]string, 0, len(source.Assignees))
	for _, assignee := range source.Assignees {
		assignees = append(assignees, assignee.Login)
	}
	labels := make([]string, 0, len(source.Labels))
	for _, label := range source.Labels {
		labels = append(labels, label.Name)
	}

	var firstCommentAt int64
	for _, comment := range source.Comments {
		if comment.User != nil && comment.User.Login == creator {
			continue
		}
		at := epoch(comment.CreatedAt)
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
		Number:         strconv.Itoa(source.Number),
		Title:          source.Title,
		State:          source.State,
		Creator:        creator,
		CreatorInfo:    userIdentity(source.User, ctx.IntegrationID),
		Assignees:      assignees,
		Labels:         labels,
		NumComments:    len(source.Comments),
		IssueCreatedAt: epoch(source.CreatedAt),
		IssueUpdatedAt: epoch(source.UpdatedAt),
		IssueClosedAt:  epoch(source.ClosedAt),
		FirstCommentAt: firstCommentAt,
		IngestedAt:     ctx.IngestedAt(),
	}
}

func fileRecords(commit Commit, ctx providers.Context) []models.ScmFile {
	files := make([]models.ScmFile, 0, len(commit.Files))
	for _, file := range commit.Files {
		files = append(files, models.ScmFile{
			IntegrationID: ctx.IntegrationID,
			RepoID:        ctx.RepoIDs()[0],
			Project:       ctx.ProjectOrRepo(),
			Filename:      file.Filename,
			Filetype:      models.Filetype(file.Filename),
			CommitSHA:     commit.SHA,
			Additions:     file.Additions,
			Deletions:     file.Deletions,
			Changes:       file.Changes,
			CommittedAt:   committedAt(commit, ctx),
		})
	}
	return files
}

func tagRecord(source Tag, ctx providers.Context) models.ScmTag {
	return models.ScmTag{
		IntegrationID: ctx.IntegrationID,
		RepoID:        ctx.RepoIDs()[0],
		Project:       ctx.ProjectOrRepo(),
		Tag:           source.Name,
		CommitSHA:     source.SHA,
		CreatedAt:     ctx.EventTimeMillis / 1000,
		UpdatedAt:     ctx.EventTimeMillis / 1000,
	}
}

// userIdentity resolves a GitHub account fragment: login is the stable
// cloud id, display name prefers the profile name over the login.
func userIdentity(user *User, integrationID string) models.ScmUser {
	if user == nil || user.Login == "" {
		return models.UnknownUser(integrationID)
	}
	display := models.FirstNonBlank(user.Name, user.Login)
	return models.ScmUser{
		IntegrationID:       integrationID,
		CloudID:             user.Login,
		DisplayName:         display,
		OriginalDisplayName: display,
		Emails:              user.OrgVerifiedDomainEmails,
	}
}

// commitIdentity prefers the linked account's login and falls back to the
// raw git signature email for unlinked commits.
func commitIdentity(user *User, git *CommitUser, integrationID string) models.ScmUser {
	if user != nil && user.Login != "" {
		return userIdentity(user, integrationID)
	}
	if git != nil && git.Email != "" {
		return models.ScmUser{
			IntegrationID:       integrationID,
			CloudID:             git.Email,
			DisplayName:         git.Email,
			OriginalDisplayName: git.Email,
		}
	}
	return models.UnknownUser(integrationID)
}

func commitActor(user *User, git *CommitUser) string {
	if user != nil && user.Login != "" {
		return user.Login
	}
	if git != nil && git.Email != "" {
		return git.Email
	}
	return models.Unknown
}

func committedAt(commit Commit, ctx providers.Context) int64 {
	if commit.GitCommitter != nil && commit.GitCommitter.Date != nil {
		return commit.GitCommitter.Date.Unix()
	}
	if commit.GitAuthor != nil && commit.GitAuthor.Date != nil {
		return commit.GitAuthor.Date.Unix()
	}
	return ctx.EventTimeMillis / 1000
}

func prLinkMetadata(source PullRequest) map[string]string {
	if source.Base == nil || source.Base.Repo == nil {
		return nil
	}
	fullName := source.Base.Repo.FullName
	if fullName == "" {
		return map[string]string{prLinkKey: nullPRLink}
	}
	return map[string]string{prLinkKey: baseURL + fullName + pullPath + strconv.Itoa(source.Number)}
}

func epoch(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
