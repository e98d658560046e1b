package helix

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/devinsights/scm-normalizer/internal/diffstat"
	"github.com/devinsights/scm-normalizer/internal/mergestate"
	"github.com/devinsights/scm-normalizer/internal/models"
	"github.com/devinsights/scm-normalizer/internal/providers"
)

const (
	activityTypeReview = "review"
	// Perforce has no branch concept on a review; the canonical record
	// carries this fixed placeholder.
	reviewBranch = "unknown"
)

// Adapter normalizes Helix Core changelists and Helix Swarm reviews.
type Adapter struct{}

// Kind implements providers.Adapter.
func (Adapter) Kind() providers.Kind { return providers.KindHelix }

// Normalize implements providers.Adapter.
func (Adapter) Normalize(ctx providers.Context, payload json.RawMessage) (providers.Result, error) {
	var event Event
	if err := providers.DecodeEnvelope(providers.KindHelix, payload, &event); err != nil {
		return providers.Result{}, err
	}

	result := providers.Result{}
	for _, change := range event.ChangeLists {
		commit, files, diagnostics := ChangeListRecord(change, ctx)
		result.Commits = append(result.Commits, commit)
		result.Files = append(result.Files, files...)
		result.Diagnostics = append(result.Diagnostics, diagnostics...)
	}
	for _, review := range event.Reviews {
		result.PullRequests = append(result.PullRequests, ReviewRecord(review, ctx))
	}
	return result, nil
}

// ChangeListRecord converts one submitted changelist. Line statistics are
// recovered by parsing each file's unified-diff text; a file whose diff
// cannot be parsed contributes zeroed stats and a diagnostic instead of
// failing the changelist. Repo ids come from longest-prefix matching of
// the depot paths against the configured mapping.
func ChangeListRecord(source ChangeList, ctx providers.Context) (models.ScmCommit, []models.ScmFile, []providers.Diagnostic) {
	var diagnostics []providers.Diagnostic
	stats := make([]diffstat.FileStat, 0, len(source.Files))
	paths := make([]string, 0, len(source.Files))
	for _, file := range source.Files {
		paths = append(paths, file.DepotFile)
		stat, err := diffstat.ParseUnifiedDiff(file.DepotFile, file.Diff)
		if err != nil {
			diagnostics = append(diagnostics, providers.Diagnostic{
				Provider: providers.KindHelix,
				Reason:   providers.ReasonDiffParseFailure,
				File:     file.DepotFile,
				Detail:   err.Error(),
			})
		}
		stats = append(stats, stat)
	}
	aggregate := diffstat.FromFiles(stats, diffstat.ChangesFromFiles)

	repoIDs := repoIDsForPaths(paths, ctx)
	committedAt := source.Time
	if committedAt == 0 {
		committedAt = ctx.EventTimeMillis / 1000
	}

	commit := models.ScmCommit{
		IntegrationID:  ctx.IntegrationID,
		RepoIDs:        repoIDs,
		VCSType:        models.VCSTypePerforce,
		Project:        ctx.ProjectOrRepo(),
		CommitSHA:      strconv.FormatInt(source.ID, 10),
		Committer:      models.FirstNonBlank(source.User),
		CommitterInfo:  userIdentity(source.User, ctx.IntegrationID),
		Author:         models.FirstNonBlank(source.User),
		AuthorInfo:     userIdentity(source.User, ctx.IntegrationID),
		Message:        models.TruncateMessage(source.Description),
		FilesCt:        aggregate.FilesCount,
		Additions:      aggregate.Additions,
		Deletions:      aggregate.Deletions,
		Changes:        aggregate.Changes,
		IssueKeys:      ctx.IssueKeys(source.Description),
		WorkitemIDs:    ctx.Workitems(source.Description),
		DirectMerge:    false,
		CommittedAt:    committedAt,
		CommitPushedAt: ctx.EventTimeMillis / 1000,
		IngestedAt:     ctx.IngestedAt(),
	}

	files := make([]models.ScmFile, 0, len(source.Files))
	for i, file := range source.Files {
		repoID, ok := ctx.PathMatcher.Match(file.DepotFile)
		if !ok {
			repoID = repoIDs[0]
		}
		files = append(files, models.ScmFile{
			IntegrationID: ctx.IntegrationID,
			RepoID:        repoID,
			Project:       ctx.ProjectOrRepo(),
			Filename:      file.DepotFile,
			Filetype:      models.Filetype(file.DepotFile),
			CommitSHA:     commit.CommitSHA,
			Additions:     stats[i].Additions,
			Deletions:     stats[i].Deletions,
			Changes:       stats[i].Changes,
			CommittedAt:   committedAt,
		})
	}

	return commit, files, diagnostics
}

// ReviewRecord converts one Swarm review. Swarm has no merge signal at
// all; merged is derived from the review state equalling "approved". The
// review events come from the activity stream filtered to review-type
// entries, with the Swarm action vocabulary uppercased into the canonical
// form.
func ReviewRecord(source SwarmReview, ctx providers.Context) models.ScmPullRequest {
	mergeInfo := mergestate.FromApprovalState(source.State, source.Updated)

	participants := make([]string, 0, len(source.Participants))
	for participant := range source.Participants {
		participants = append(participants, participant)
	}
	sort.Strings(participants)
	participantsInfo := make([]models.ScmUser, 0, len(participants))
	for _, participant := range participants {
		participantsInfo = append(participantsInfo, userIdentity(participant, ctx.IntegrationID))
	}

	var commitSHAs []string
	for _, change := range source.Commits {
		commitSHAs = append(commitSHAs, strconv.FormatInt(change, 10))
	}

	record := models.ScmPullRequest{
		IntegrationID: ctx.IntegrationID,
		RepoIDs:       ctx.RepoIDs(),
		Project:       ctx.ProjectOrRepo(),
		Number:        strconv.FormatInt(source.ID, 10),
		Title:         firstLine(source.Description),
		State:         source.State,
		SourceBranch:  reviewBranch,
		TargetBranch:  reviewBranch,
		Creator:       models.FirstNonBlank(source.Author),
		CreatorInfo:   userIdentity(source.Author, ctx.IntegrationID),
		Merged:        mergeInfo.Merged,
		Assignees:     []string{},
		AssigneesInfo: []models.ScmUser{},
		CommitSHAs:    commitSHAs,
		Reviews:       reviewEvents(source, ctx),
		IssueKeys:     ctx.IssueKeys(source.Description),
		WorkitemIDs:   ctx.Workitems(source.Description),
		PRCreatedAt:   source.Created,
		PRUpdatedAt:   source.Updated,
		PRMergedAt:    mergeInfo.MergedAt,
	}
	record.RollupReviewParticipants()
	record.Reviewers, record.ReviewersInfo = models.MergeParticipants(
		record.Reviewers, record.ReviewersInfo, participants, participantsInfo)
	return record
}

func reviewEvents(source SwarmReview, ctx providers.Context) []models.ScmReview {
	var reviews []models.ScmReview
	for _, activity := range source.Activities {
		if activity.Type != activityTypeReview {
			continue
		}
		reviews = append(reviews, models.ScmReview{
			ReviewID:     strconv.FormatInt(activity.ID, 10),
			Reviewer:     models.FirstNonBlank(activity.User),
			ReviewerInfo: userIdentity(activity.User, ctx.IntegrationID),
			State:        actionState(activity.Action),
			ReviewedAt:   activity.Time,
		})
	}
	return reviews
}

// actionState maps the Swarm activity action ("commented on", "approved",
// "requested further review of") into the canonical vocabulary. Comment
// actions collapse to COMMENTED; unmapped actions pass through uppercased
// with spaces as underscores.
func actionState(action string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed == "" {
		return models.ReviewStateUnknown
	}
	if strings.EqualFold(trimmed, "commented on") {
		return models.ReviewStateCommented
	}
	return strings.ToUpper(strings.ReplaceAll(trimmed, " ", "_"))
}

// repoIDsForPaths resolves the distinct repo ids the depot paths map to,
// sorted for deterministic output, falling back to the context repo list
// when nothing matches.
func repoIDsForPaths(paths []string, ctx providers.Context) []string {
	matched := ctx.PathMatcher.MatchAll(paths)
	if len(matched) == 0 {
		return ctx.RepoIDs()
	}
	sort.Strings(matched)
	return matched
}

// firstLine keeps only the summary line of a multi-line review
// description.
func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSpace(text)
}

func userIdentity(user string, integrationID string) models.ScmUser {
	if user == "" {
		return models.UnknownUser(integrationID)
	}
	return models.ScmUser{
		IntegrationID:       integrationID,
		CloudID:             user,
		DisplayName:         user,
		OriginalDisplayName: user,
	}
}
