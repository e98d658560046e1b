package gitlab

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/devinsights/scm-normalizer/internal/mergestate"
	"github.com/devinsights/scm-normalizer/internal/models"
	"github.com/devinsights/scm-normalizer/internal/providers"
)

const (
	baseURL   = "https://gitlab.com/"
	mrPath    = "/-/merge_requests/"
	prLinkKey = "pr_link"
)

// eventActionStates maps GitLab event-stream action names to canonical
// review states. Built once; unmapped non-blank actions pass through
// uppercased, blank actions map to UNKNOWN.
var eventActionStates = map[string]string{
	"approved":     models.ReviewStateApproved,
	"unapproved":   models.ReviewStateUnapproved,
	"accepted":     models.ReviewStateMerged,
	"commented on": models.ReviewStateCommented,
	"commented":    models.ReviewStateCommented,
}

// Adapter normalizes GitLab payloads.
type Adapter struct{}

// Kind implements providers.Adapter.
func (Adapter) Kind() providers.Kind { return providers.KindGitLab }

// Normalize implements providers.Adapter.
func (Adapter) Normalize(ctx providers.Context, payload json.RawMessage) (providers.Result, error) {
	var event Event
	if err := providers.DecodeEnvelope(providers.KindGitLab, payload, &event); err != nil {
		return providers.Result{}, err
	}

	result := providers.Result{}
	for _, commit := range event.Commits {
		result.Commits = append(result.Commits, CommitRecord(commit, ctx))
	}
	for _, mr := range event.MergeRequests {
		result.PullRequests = append(result.PullRequests, MergeRequestRecord(mr, ctx))
	}
	for _, issue := range event.Issues {
		result.Issues = append(result.Issues, issueRecord(issue, ctx))
	}
	for _, tag := range event.Tags {
		result.Tags = append(result.Tags, tagRecord(tag, ctx))
	}
	return result, nil
}

// CommitRecord converts one GitLab commit. Additions and deletions come
// from the stat block; the changes total stays 0 because the upstream API
// does not report changed lines. Documented limitation, not a bug.
func CommitRecord(source Commit, ctx providers.Context) models.ScmCommit {
	additions, deletions := 0, 0
	if source.Stats != nil {
		additions = source.Stats.Additions
		deletions = source.Stats.Deletions
	}

	return models.ScmCommit{
		IntegrationID: ctx.IntegrationID,
		RepoIDs:       ctx.RepoIDs(),
		VCSType:       models.VCSTypeGit,
		Project:       ctx.ProjectOrRepo(),
		CommitSHA:     source.ID,
		Committer:     models.FirstNonBlank(source.CommitterName),
		CommitterInfo: userIdentity(source.CommitterDetails, ctx.IntegrationID),
		Author:        models.FirstNonBlank(source.AuthorName),
		AuthorInfo:    userIdentity(source.AuthorDetails, ctx.IntegrationID),
		CommitURL:     source.WebURL,
		Message:       models.TruncateMessage(source.Message),
		Branch:        source.RefBranch,
		FilesCt:       len(source.Changes),
		Additions:     additions,
		Deletions:     deletions,
		Changes:       0,
		IssueKeys:     ctx.IssueKeys(source.Message),
		WorkitemIDs:   ctx.Workitems(source.Message),
		DirectMerge:   false,
		CommittedAt:   committedAt(source, ctx),
		IngestedAt:    ctx.IngestedAt(),
	}
}

// MergeRequestRecord converts one GitLab merge request. Merge state is
// the explicit merged-at field; review events come from the project event
// stream filtered down to this request.
func MergeRequestRecord(source MergeRequest, ctx providers.Context) models.ScmPullRequest {
	assignees := make([]string, 0)
	assigneesInfo := make([]models.ScmUser, 0)
	seen := make(map[string]struct{})
	collect := func(user *User) {
		if user == nil {
			return
		}
		login := models.FirstNonBlank(user.Username)
		if _, dup := seen[login]; dup {
			return
		}
		seen[login] = struct{}{}
		assignees = append(assignees, login)
		assigneesInfo = append(assigneesInfo, userIdentity(user, ctx.IntegrationID))
	}
	collect(source.Author)
	collect(source.ClosedBy)
	collect(source.MergedBy)
	for i := range source.Assignees {
		collect(&source.Assignees[i])
	}

	commitSHAs := make([]string, 0, len(source.Commits))
	for _, commit := range source.Commits {
		commitSHAs = append(commitSHAs, commit.ID)
	}

	labels := source.Labels
	if labels == nil {
		labels = []string{}
	}

	creator := models.Unknown
	if source.Author != nil && source.Author.Username != "" {
		creator = source.Author.Username
	}

	mergeInfo := mergestate.FromMergedAt(epoch(source.MergedAt), source.SHA)

	var metadata map[string]string
	if ctx.RepoID != "" {
		metadata = map[string]string{prLinkKey: baseURL + ctx.RepoID + mrPath + source.IID}
	}

	record := models.ScmPullRequest{
		IntegrationID: ctx.IntegrationID,
		RepoIDs:       ctx.RepoIDs(),
		Project:       ctx.ProjectOrRepo(),
		Number:        source.IID,
		Title:         source.Title,
		State:         source.State,
		SourceBranch:  source.SourceBranch,
		TargetBranch:  source.TargetBranch,
		Creator:       creator,
		CreatorInfo:   userIdentity(source.Author, ctx.IntegrationID),
		Merged:        mergeInfo.Merged,
		MergeSHA:      source.SHA,
		Assignees:     assignees,
		AssigneesInfo: assigneesInfo,
		Labels:        labels,
		CommitSHAs:    commitSHAs,
		Reviews:       reviewRecords(source, ctx),
		IssueKeys:     ctx.IssueKeys(source.Title, source.SourceBranch),
		WorkitemIDs:   ctx.Workitems(source.Title, source.SourceBranch),
		Metadata:      metadata,
		PRCreatedAt:   epoch(source.CreatedAt),
		PRUpdatedAt:   epoch(source.UpdatedAt),
		PRMergedAt:    epoch(source.MergedAt),
		PRClosedAt:    epoch(source.ClosedAt),
	}
	record.RollupReviewParticipants()
	return record
}

// reviewRecords filters the event stream to events targeting this merge
// request within its project, then maps action names through the lookup
// table. Unmapped non-blank actions pass through uppercased rather than
// being discarded; blank actions surface as UNKNOWN.
func reviewRecords(source MergeRequest, ctx providers.Context) []models.ScmReview {
	reviews := make([]models.ScmReview, 0, len(source.Events))
	for _, event := range source.Events {
		if event.TargetID == "" || event.ProjectID == "" {
			continue
		}
		projectID, err := strconv.ParseInt(event.ProjectID, 10, 64)
		if err != nil || projectID != source.ProjectID || event.TargetID != source.ID {
			continue
		}
		reviews = append(reviews, models.ScmReview{
			PRID:         source.IID,
			ReviewID:     event.ID,
			Reviewer:     event.AuthorUsername,
			ReviewerInfo: eventAuthorIdentity(event.Author, ctx.IntegrationID),
			State:        mergestate.MapEventAction(eventActionStates, event.ActionName),
			ReviewedAt:   epoch(event.CreatedAt),
		})
	}
	return reviews
}

func issueRecord(source Issue, ctx providers.Context) models.ScmIssue {
	creator := models.Unknown
	if source.Author != nil && source.Author.Username != "" {
		creator = source.Author.Username
	}

	assignees := make([]string, 0, len(source.Assignees))
	for _, assignee := range source.Assignees {
		assignees = append(assignees, models.FirstNonBlank(assignee.Username))
	}
	labels := source.Labels
	if labels == nil {
		labels = []string{}
	}

	var firstCommentAt int64
	for _, note := range source.Notes {
		if note.Author != nil && note.Author.Username == creator {
			continue
		}
		at := epoch(note.CreatedAt)
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
		Number:         source.IID,
		Title:          source.Title,
		State:          source.State,
		Creator:        creator,
		CreatorInfo:    userIdentity(source.Author, ctx.IntegrationID),
		Assignees:      assignees,
		Labels:         labels,
		NumComments:    len(source.Notes),
		IssueCreatedAt: epoch(source.CreatedAt),
		IssueUpdatedAt: epoch(source.UpdatedAt),
		IssueClosedAt:  epoch(source.ClosedAt),
		FirstCommentAt: firstCommentAt,
		IngestedAt:     ctx.IngestedAt(),
	}
}

func tagRecord(source Tag, ctx providers.Context) models.ScmTag {
	sha := ""
	createdAt := ctx.EventTimeMillis / 1000
	if source.Commit != nil {
		sha = source.Commit.ID
		if source.Commit.CreatedAt != nil {
			createdAt = source.Commit.CreatedAt.Unix()
		}
	}
	return models.ScmTag{
		IntegrationID: ctx.IntegrationID,
		RepoID:        ctx.RepoIDs()[0],
		Project:       ctx.ProjectOrRepo(),
		Tag:           source.Name,
		CommitSHA:     sha,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

// userIdentity resolves a GitLab account fragment: username is the
// stable cloud id, display name prefers the profile name and falls back
// to the username.
func userIdentity(user *User, integrationID string) models.ScmUser {
	if user == nil {
		return models.UnknownUser(integrationID)
	}
	display := models.FirstNonBlank(user.Name, user.Username)
	return models.ScmUser{
		IntegrationID:       integrationID,
		CloudID:             models.FirstNonBlank(user.Username),
		DisplayName:         display,
		OriginalDisplayName: display,
	}
}

func eventAuthorIdentity(author *MREventAuthor, integrationID string) models.ScmUser {
	if author == nil {
		return models.UnknownUser(integrationID)
	}
	display := models.FirstNonBlank(author.AuthorName, author.Username)
	return models.ScmUser{
		IntegrationID:       integrationID,
		CloudID:             models.FirstNonBlank(author.Username),
		DisplayName:         display,
		OriginalDisplayName: display,
	}
}

func committedAt(source Commit, ctx providers.Context) int64 {
	if source.CommittedDate != nil {
		return source.CommittedDate.Unix()
	}
	if source.CreatedAt != nil {
		return source.CreatedAt.Unix()
	}
	return ctx.EventTimeMillis / 1000
}

func epoch(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
