// Package store persists canonical records. Three backends share one
// sink contract: an in-memory store for tests and single-node use, a
// Redis store, and a Postgres store.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devinsights/scm-normalizer/internal/models"
	"github.com/devinsights/scm-normalizer/internal/providers"
)

// RecordSink persists the canonical records of one adapter invocation.
// Writes are idempotent on record identity: replaying the same payload
// overwrites rather than duplicates.
type RecordSink interface {
	SaveResult(ctx context.Context, integrationID string, result providers.Result) error
	Ping(ctx context.Context) error
	Close() error
}

// Record identity keys. Every backend derives the same key for the same
// record so cross-backend migrations stay stable.

func commitKey(integrationID, sha string) string {
	return strings.Join([]string{"commit", integrationID, sha}, "|")
}

func pullRequestKey(integrationID, number string) string {
	return strings.Join([]string{"pr", integrationID, number}, "|")
}

func issueKey(integrationID, number string) string {
	return strings.Join([]string{"issue", integrationID, number}, "|")
}

func fileKey(integrationID, sha, filename string) string {
	return strings.Join([]string{"file", integrationID, sha, filename}, "|")
}

func tagKey(integrationID, repoID, tag string) string {
	return strings.Join([]string{"tag", integrationID, repoID, tag}, "|")
}

type storedRecord struct {
	value     any
	updatedAt time.Time
}

// MemoryStore is an in-memory record sink.
type MemoryStore struct {
	mu        sync.RWMutex
	retention time.Duration
	records   map[string]storedRecord
	now       func() time.Time
}

// NewMemoryStore creates a memory sink. A zero retention keeps records
// forever.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		retention: retention,
		records:   make(map[string]storedRecord),
		now:       time.Now,
	}
}

// SaveResult implements RecordSink.
func (s *MemoryStore) SaveResult(_ context.Context, integrationID string, result providers.Result) error {
	if integrationID == "" {
		return fmt.Errorf("integration id is required")
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, commit := range result.Commits {
		s.records[commitKey(integrationID, commit.CommitSHA)] = storedRecord{value: commit, updatedAt: now}
	}
	for _, pr := range result.PullRequests {
		s.records[pullRequestKey(integrationID, pr.Number)] = storedRecord{value: pr, updatedAt: now}
	}
	for _, issue := range result.Issues {
		s.records[issueKey(integrationID, issue.Number)] = storedRecord{value: issue, updatedAt: now}
	}
	for _, file := range result.Files {
		s.records[fileKey(integrationID, file.CommitSHA, file.Filename)] = storedRecord{value: file, updatedAt: now}
	}
	for _, tag := range result.Tags {
		s.records[tagKey(integrationID, tag.RepoID, tag.Tag)] = storedRecord{value: tag, updatedAt: now}
	}
	return nil
}

// Ping implements RecordSink.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements RecordSink.
func (s *MemoryStore) Close() error { return nil }

// GC deletes records older than the retention window.
func (s *MemoryStore) GC(now time.Time) {
	if s.retention <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.records {
		if now.Sub(record.updatedAt) > s.retention {
			delete(s.records, key)
		}
	}
}

// Len reports how many records the store holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Keys returns the sorted record keys.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Commit returns a stored commit, for tests and the query surface.
func (s *MemoryStore) Commit(integrationID, sha string) (models.ScmCommit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[commitKey(integrationID, sha)]
	if !ok {
		return models.ScmCommit{}, false
	}
	commit, ok := record.value.(models.ScmCommit)
	return commit, ok
}

// PullRequest returns a stored pull request.
func (s *MemoryStore) PullRequest(integrationID, number string) (models.ScmPullRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[pullRequestKey(integrationID, number)]
	if !ok {
		return models.ScmPullRequest{}, false
	}
	pr, ok := record.value.(models.ScmPullRequest)
	return pr, ok
}
