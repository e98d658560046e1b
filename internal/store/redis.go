package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devinsights/scm-normalizer/internal/providers"
)

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStoreConfig configures the Redis-backed record sink.
type RedisStoreConfig struct {
	Namespace string
	Retention time.Duration
}

// RedisStore stores canonical records as JSON values in Redis with an
// index set per integration.
type RedisStore struct {
	client    redisCommander
	closeFn   func() error
	namespace string
	retention time.Duration
}

// NewRedisStore creates a Redis-backed record sink.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisStoreFromCommander(client, closeFn, cfg)
}

func newRedisStoreFromCommander(client redisCommander, closeFn func() error, cfg RedisStoreConfig) *RedisStore {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "scm-normalizer"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}

	return &RedisStore{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
		retention: cfg.Retention,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// Ping implements RecordSink.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	return s.client.Ping(ctx).Err()
}

// SaveResult implements RecordSink. Each record becomes one JSON value
// keyed by its identity hash, indexed per integration so retention sweeps
// can find stale index entries.
func (s *RedisStore) SaveResult(ctx context.Context, integrationID string, result providers.Result) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}
	if integrationID == "" {
		return fmt.Errorf("integration id is required")
	}

	for _, commit := range result.Commits {
		if err := s.writeRecord(ctx, integrationID, commitKey(integrationID, commit.CommitSHA), commit); err != nil {
			return err
		}
	}
	for _, pr := range result.PullRequests {
		if err := s.writeRecord(ctx, integrationID, pullRequestKey(integrationID, pr.Number), pr); err != nil {
			return err
		}
	}
	for _, issue := range result.Issues {
		if err := s.writeRecord(ctx, integrationID, issueKey(integrationID, issue.Number), issue); err != nil {
			return err
		}
	}
	for _, file := range result.Files {
		if err := s.writeRecord(ctx, integrationID, fileKey(integrationID, file.CommitSHA, file.Filename), file); err != nil {
			return err
		}
	}
	for _, tag := range result.Tags {
		if err := s.writeRecord(ctx, integrationID, tagKey(integrationID, tag.RepoID, tag.Tag), tag); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) writeRecord(ctx context.Context, integrationID, identity string, record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", identity, err)
	}

	recordID := hashRecordID(identity)
	if err := s.client.Set(ctx, s.recordDataKey(recordID), encoded, s.retention).Err(); err != nil {
		return fmt.Errorf("write record %s: %w", identity, err)
	}
	if err := s.client.SAdd(ctx, s.indexKey(integrationID), recordID).Err(); err != nil {
		return fmt.Errorf("index record %s: %w", identity, err)
	}
	return nil
}

// GC removes stale index references where record keys have already
// expired.
func (s *RedisStore) GC(ctx context.Context, integrationID string) {
	if s == nil || s.client == nil {
		return
	}

	recordIDs, err := s.client.SMembers(ctx, s.indexKey(integrationID)).Result()
	if err != nil {
		return
	}

	for _, recordID := range recordIDs {
		exists, err := s.client.Exists(ctx, s.recordDataKey(recordID)).Result()
		if err != nil {
			continue
		}
		if exists == 0 {
			_ = s.client.SRem(ctx, s.indexKey(integrationID), recordID).Err()
		}
	}
}

func (s *RedisStore) prefixed(suffix string) string {
	return s.namespace + ":" + suffix
}

func (s *RedisStore) indexKey(integrationID string) string {
	return s.prefixed("index:" + integrationID)
}

func (s *RedisStore) recordDataKey(recordID string) string {
	return s.prefixed("record:" + recordID)
}

func hashRecordID(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
