package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devinsights/scm-normalizer/internal/providers"
)

type pgxExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore writes canonical records into the relational tables the
// downstream query layer reads. All writes are identity upserts.
type PostgresStore struct {
	pool pgxExecutor
}

// NewPostgresStore connects a pgx pool.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func newPostgresStoreFromExecutor(pool pgxExecutor) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping implements RecordSink.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	return s.pool.Ping(ctx)
}

// Close implements RecordSink.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const upsertCommitSQL = `
INSERT INTO scm_commits (
  integration_id, commit_sha, repo_ids, vcs_type, project, author, author_info,
  committer, committer_info, message, branch, files_ct, additions, deletions,
  changes, issue_keys, workitem_ids, direct_merge, committed_at, ingested_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (integration_id, commit_sha) DO UPDATE SET
  repo_ids = EXCLUDED.repo_ids, message = EXCLUDED.message,
  files_ct = EXCLUDED.files_ct, additions = EXCLUDED.additions,
  deletions = EXCLUDED.deletions, changes = EXCLUDED.changes,
  issue_keys = EXCLUDED.issue_keys, workitem_ids = EXCLUDED.workitem_ids,
  ingested_at = EXCLUDED.ingested_at`

const upsertPullRequestSQL = `
INSERT INTO scm_pull_requests (
  integration_id, number, repo_ids, project, title, state, source_branch,
  target_branch, creator, creator_info, merged, merge_sha, assignees,
  reviewers, approvers, commenters, labels,
  commit_shas, reviews, issue_keys, workitem_ids, metadata,
  pr_created_at, pr_updated_at, pr_merged_at, pr_closed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
ON CONFLICT (integration_id, number) DO UPDATE SET
  title = EXCLUDED.title, state = EXCLUDED.state, merged = EXCLUDED.merged,
  merge_sha = EXCLUDED.merge_sha, reviews = EXCLUDED.reviews,
  reviewers = EXCLUDED.reviewers, approvers = EXCLUDED.approvers,
  commenters = EXCLUDED.commenters,
  commit_shas = EXCLUDED.commit_shas, pr_updated_at = EXCLUDED.pr_updated_at,
  pr_merged_at = EXCLUDED.pr_merged_at, pr_closed_at = EXCLUDED.pr_closed_at`

const upsertIssueSQL = `
INSERT INTO scm_issues (
  integration_id, number, repo_id, project, title, state, creator,
  creator_info, assignees, labels, num_comments, issue_created_at,
  issue_updated_at, issue_closed_at, first_comment_at, ingested_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (integration_id, number) DO UPDATE SET
  title = EXCLUDED.title, state = EXCLUDED.state,
  num_comments = EXCLUDED.num_comments,
  issue_updated_at = EXCLUDED.issue_updated_at,
  issue_closed_at = EXCLUDED.issue_closed_at,
  first_comment_at = EXCLUDED.first_comment_at,
  ingested_at = EXCLUDED.ingested_at`

const upsertFileSQL = `
INSERT INTO scm_files (
  integration_id, commit_sha, filename, repo_id, project, filetype,
  additions, deletions, changes, committed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (integration_id, commit_sha, filename) DO UPDATE SET
  additions = EXCLUDED.additions, deletions = EXCLUDED.deletions,
  changes = EXCLUDED.changes`

const upsertTagSQL = `
INSERT INTO scm_tags (
  integration_id, repo_id, tag, project, commit_sha, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (integration_id, repo_id, tag) DO UPDATE SET
  commit_sha = EXCLUDED.commit_sha, updated_at = EXCLUDED.updated_at`

// SaveResult implements RecordSink.
func (s *PostgresStore) SaveResult(ctx context.Context, integrationID string, result providers.Result) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	if integrationID == "" {
		return fmt.Errorf("integration id is required")
	}

	for _, commit := range result.Commits {
		authorInfo, err := json.Marshal(commit.AuthorInfo)
		if err != nil {
			return fmt.Errorf("marshal author info: %w", err)
		}
		committerInfo, err := json.Marshal(commit.CommitterInfo)
		if err != nil {
			return fmt.Errorf("marshal committer info: %w", err)
		}
		if _, err := s.pool.Exec(ctx, upsertCommitSQL,
			integrationID, commit.CommitSHA, commit.RepoIDs, string(commit.VCSType),
			commit.Project, commit.Author, authorInfo, commit.Committer, committerInfo,
			commit.Message, commit.Branch, commit.FilesCt, commit.Additions,
			commit.Deletions, commit.Changes, commit.IssueKeys, commit.WorkitemIDs,
			commit.DirectMerge, commit.CommittedAt, commit.IngestedAt,
		); err != nil {
			return fmt.Errorf("upsert commit %s: %w", commit.CommitSHA, err)
		}
	}

	for _, pr := range result.PullRequests {
		creatorInfo, err := json.Marshal(pr.CreatorInfo)
		if err != nil {
			return fmt.Errorf("marshal creator info: %w", err)
		}
		reviews, err := json.Marshal(pr.Reviews)
		if err != nil {
			return fmt.Errorf("marshal reviews: %w", err)
		}
		metadata, err := json.Marshal(pr.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if _, err := s.pool.Exec(ctx, upsertPullRequestSQL,
			integrationID, pr.Number, pr.RepoIDs, pr.Project, pr.Title, pr.State,
			pr.SourceBranch, pr.TargetBranch, pr.Creator, creatorInfo, pr.Merged,
			pr.MergeSHA, pr.Assignees, pr.Reviewers, pr.Approvers, pr.Commenters,
			pr.Labels, pr.CommitSHAs, reviews,
			pr.IssueKeys, pr.WorkitemIDs, metadata,
			pr.PRCreatedAt, pr.PRUpdatedAt, pr.PRMergedAt, pr.PRClosedAt,
		); err != nil {
			return fmt.Errorf("upsert pull request %s: %w", pr.Number, err)
		}
	}

	for _, issue := range result.Issues {
		creatorInfo, err := json.Marshal(issue.CreatorInfo)
		if err != nil {
			return fmt.Errorf("marshal issue creator info: %w", err)
		}
		if _, err := s.pool.Exec(ctx, upsertIssueSQL,
			integrationID, issue.Number, issue.RepoID, issue.Project, issue.Title,
			issue.State, issue.Creator, creatorInfo, issue.Assignees, issue.Labels,
			issue.NumComments, issue.IssueCreatedAt, issue.IssueUpdatedAt,
			issue.IssueClosedAt, issue.FirstCommentAt, issue.IngestedAt,
		); err != nil {
			return fmt.Errorf("upsert issue %s: %w", issue.Number, err)
		}
	}

	for _, file := range result.Files {
		if _, err := s.pool.Exec(ctx, upsertFileSQL,
			integrationID, file.CommitSHA, file.Filename, file.RepoID, file.Project,
			file.Filetype, file.Additions, file.Deletions, file.Changes, file.CommittedAt,
		); err != nil {
			return fmt.Errorf("upsert file %s@%s: %w", file.Filename, file.CommitSHA, err)
		}
	}

	for _, tag := range result.Tags {
		if _, err := s.pool.Exec(ctx, upsertTagSQL,
			integrationID, tag.RepoID, tag.Tag, tag.Project, tag.CommitSHA,
			tag.CreatedAt, tag.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert tag %s: %w", tag.Tag, err)
		}
	}

	return nil
}
