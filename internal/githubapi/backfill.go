package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	ghprovider "github.com/devinsights/scm-normalizer/internal/providers/github"
	gogithub "github.com/google/go-github/v75/github"
	"go.uber.org/zap"
)

const backfillPageSize = 100

// Backfiller assembles provider payload envelopes from the live GitHub
// API so historical repository activity can be replayed through the
// normal ingest path. Fetching is read-only and bounded by the window.
type Backfiller struct {
	rest   *RESTClient
	logger *zap.Logger
}

// NewBackfiller creates a backfiller over an authenticated REST client.
func NewBackfiller(rest *RESTClient, logger *zap.Logger) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{rest: rest, logger: logger}
}

// RepoEvent fetches commits, pull requests with their reviews, and tags
// for one repository since the window start and marshals them into a
// payload envelope. Issues are not backfilled; their comment timelines
// arrive only through live events.
func (b *Backfiller) RepoEvent(ctx context.Context, owner, repo string, since time.Time) (json.RawMessage, error) {
	if b.rest == nil || b.rest.Client == nil {
		return nil, fmt.Errorf("rest client is required")
	}

	event := ghprovider.Event{}

	commits, err := b.fetchCommits(ctx, owner, repo, since)
	if err != nil {
		return nil, fmt.Errorf("backfill commits for %s/%s: %w", owner, repo, err)
	}
	event.Commits = commits

	pullRequests, err := b.fetchPullRequests(ctx, owner, repo, since)
	if err != nil {
		return nil, fmt.Errorf("backfill pull requests for %s/%s: %w", owner, repo, err)
	}
	event.PullRequests = pullRequests

	tags, err := b.fetchTags(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("backfill tags for %s/%s: %w", owner, repo, err)
	}
	event.Tags = tags

	b.logger.Info("assembled backfill payload",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.Time("since", since),
		zap.Int("commits", len(event.Commits)),
		zap.Int("pull_requests", len(event.PullRequests)),
		zap.Int("tags", len(event.Tags)),
	)

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal backfill payload for %s/%s: %w", owner, repo, err)
	}
	return payload, nil
}

func (b *Backfiller) fetchCommits(ctx context.Context, owner, repo string, since time.Time) ([]ghprovider.Commit, error) {
	client := b.rest.Client
	options := &gogithub.CommitsListOptions{
		Since:       since,
		ListOptions: gogithub.ListOptions{PerPage: backfillPageSize},
	}

	var commits []ghprovider.Commit
	for {
		page, resp, err := client.Repositories.ListCommits(ctx, owner, repo, options)
		if err != nil {
			return nil, err
		}
		for _, listed := range page {
			// The list endpoint omits stats and files; each commit needs
			// a detail fetch.
			detailed, _, err := client.Repositories.GetCommit(ctx, owner, repo, listed.GetSHA(), nil)
			if err != nil {
				return nil, err
			}
			commits = append(commits, convertCommit(detailed))
		}
		if resp == nil || resp.NextPage == 0 {
			return commits, nil
		}
		options.Page = resp.NextPage
	}
}

func (b *Backfiller) fetchPullRequests(ctx context.Context, owner, repo string, since time.Time) ([]ghprovider.PullRequest, error) {
	client := b.rest.Client
	options := &gogithub.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gogithub.ListOptions{PerPage: backfillPageSize},
	}

	var pullRequests []ghprovider.PullRequest
	for {
		page, resp, err := client.PullRequests.List(ctx, owner, repo, options)
		if err != nil {
			return nil, err
		}
		for _, listed := range page {
			// Updated-descending order: the first pull request older than
			// the window ends the scan.
			if listed.GetUpdatedAt().Time.Before(since) {
				return pullRequests, nil
			}
			reviews, err := b.fetchReviews(ctx, owner, repo, listed.GetNumber())
			if err != nil {
				return nil, err
			}
			pullRequests = append(pullRequests, convertPullRequest(listed, reviews))
		}
		if resp == nil || resp.NextPage == 0 {
			return pullRequests, nil
		}
		options.Page = resp.NextPage
	}
}

func (b *Backfiller) fetchReviews(ctx context.Context, owner, repo string, number int) ([]ghprovider.Review, error) {
	client := b.rest.Client
	options := &gogithub.ListOptions{PerPage: backfillPageSize}

	var reviews []ghprovider.Review
	for {
		page, resp, err := client.PullRequests.ListReviews(ctx, owner, repo, number, options)
		if err != nil {
			return nil, err
		}
		for _, review := range page {
			reviews = append(reviews, convertReview(review))
		}
		if resp == nil || resp.NextPage == 0 {
			return reviews, nil
		}
		options.Page = resp.NextPage
	}
}

func (b *Backfiller) fetchTags(ctx context.Context, owner, repo string) ([]ghprovider.Tag, error) {
	client := b.rest.Client
	options := &gogithub.ListOptions{PerPage: backfillPageSize}

	var tags []ghprovider.Tag
	for {
		page, resp, err := client.Repositories.ListTags(ctx, owner, repo, options)
		if err != nil {
			return nil, err
		}
		for _, tag := range page {
			tags = append(tags, ghprovider.Tag{
				Name: tag.GetName(),
				SHA:  tag.GetCommit().GetSHA(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			return tags, nil
		}
		options.Page = resp.NextPage
	}
}

func convertCommit(source *gogithub.RepositoryCommit) ghprovider.Commit {
	commit := ghprovider.Commit{
		SHA:     source.GetSHA(),
		Message: source.GetCommit().GetMessage(),
	}
	if author := source.GetAuthor(); author != nil {
		commit.Author = &ghprovider.User{Login: author.GetLogin(), Name: author.GetName()}
	}
	if committer := source.GetCommitter(); committer != nil {
		commit.Committer = &ghprovider.User{Login: committer.GetLogin(), Name: committer.GetName()}
	}
	commit.GitAuthor = convertCommitUser(source.GetCommit().GetAuthor())
	commit.GitCommitter = convertCommitUser(source.GetCommit().GetCommitter())
	if stats := source.GetStats(); stats != nil {
		commit.Stats = &ghprovider.CommitStats{
			Additions: stats.GetAdditions(),
			Deletions: stats.GetDeletions(),
			Total:     stats.GetTotal(),
		}
	}
	for _, file := range source.Files {
		commit.Files = append(commit.Files, ghprovider.CommitFile{
			Filename:  file.GetFilename(),
			Status:    file.GetStatus(),
			Additions: file.GetAdditions(),
			Deletions: file.GetDeletions(),
			Changes:   file.GetChanges(),
		})
	}
	return commit
}

func convertCommitUser(source *gogithub.CommitAuthor) *ghprovider.CommitUser {
	if source == nil {
		return nil
	}
	user := &ghprovider.CommitUser{
		Name:  source.GetName(),
		Email: source.GetEmail(),
	}
	if date := source.GetDate(); !date.IsZero() {
		dateValue := date.Time
		user.Date = &dateValue
	}
	return user
}

func convertPullRequest(source *gogithub.PullRequest, reviews []ghprovider.Review) ghprovider.PullRequest {
	pullRequest := ghprovider.PullRequest{
		Number:         source.GetNumber(),
		State:          source.GetState(),
		Title:          source.GetTitle(),
		MergeCommitSHA: source.GetMergeCommitSHA(),
		Reviews:        reviews,
		CreatedAt:      timestampPointer(source.GetCreatedAt()),
		UpdatedAt:      timestampPointer(source.GetUpdatedAt()),
		MergedAt:       timestampPointer(source.GetMergedAt()),
		ClosedAt:       timestampPointer(source.GetClosedAt()),
	}
	if user := source.GetUser(); user != nil {
		pullRequest.User = &ghprovider.User{Login: user.GetLogin(), Name: user.GetName()}
	}
	if head := source.GetHead(); head != nil {
		pullRequest.Head = &ghprovider.Ref{Ref: head.GetRef(), SHA: head.GetSHA()}
	}
	if base := source.GetBase(); base != nil {
		pullRequest.Base = &ghprovider.Ref{Ref: base.GetRef(), SHA: base.GetSHA()}
	}
	for _, assignee := range source.Assignees {
		pullRequest.Assignees = append(pullRequest.Assignees, ghprovider.User{Login: assignee.GetLogin(), Name: assignee.GetName()})
	}
	for _, label := range source.Labels {
		pullRequest.Labels = append(pullRequest.Labels, ghprovider.Label{Name: label.GetName()})
	}
	return pullRequest
}

func convertReview(source *gogithub.PullRequestReview) ghprovider.Review {
	review := ghprovider.Review{
		ID:          strconv.FormatInt(source.GetID(), 10),
		State:       source.GetState(),
		Body:        source.GetBody(),
		SubmittedAt: timestampPointer(source.GetSubmittedAt()),
	}
	if user := source.GetUser(); user != nil {
		review.User = &ghprovider.User{Login: user.GetLogin(), Name: user.GetName()}
	}
	return review
}

func timestampPointer(source gogithub.Timestamp) *time.Time {
	if source.IsZero() {
		return nil
	}
	value := source.Time
	return &value
}
