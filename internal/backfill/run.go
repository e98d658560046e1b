// Package backfill replays historical GitHub repository activity through
// the normalization pipeline. It fetches raw data with an authenticated
// GitHub App client, assembles provider payload envelopes, and persists
// the normalized records to the same sink the ingest path writes to.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devinsights/scm-normalizer/internal/config"
	"github.com/devinsights/scm-normalizer/internal/correlate"
	"github.com/devinsights/scm-normalizer/internal/githubapi"
	"github.com/devinsights/scm-normalizer/internal/providers"
	"github.com/devinsights/scm-normalizer/internal/providers/registry"
	"github.com/devinsights/scm-normalizer/internal/store"
	"go.uber.org/zap"
)

// PayloadFetcher assembles one repository's raw payload envelope.
type PayloadFetcher interface {
	RepoEvent(ctx context.Context, owner, repo string, since time.Time) ([]byte, error)
}

// Run executes one backfill pass over every configured repository.
func Run(ctx context.Context, cfg *config.Config, sink store.RecordSink, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}
	return runWithFetcher(ctx, cfg, sink, fetcher, logger)
}

func newFetcher(cfg *config.Config, logger *zap.Logger) (PayloadFetcher, error) {
	rest, err := githubapi.NewAppClient(githubapi.AppAuth{
		AppID:          cfg.Backfill.AppID,
		InstallationID: cfg.Backfill.InstallationID,
		PrivateKeyPath: cfg.Backfill.PrivateKeyPath,
		RequestTimeout: cfg.Backfill.RequestTimeout,
		APIBaseURL:     cfg.Backfill.APIBaseURL,
		Transport: githubapi.NewRetryTransport(nil, githubapi.RetryConfig{
			MaxAttempts:    4,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		}, githubapi.RateLimitPolicy{
			MinRemainingThreshold: 20,
			MinResetBuffer:        2 * time.Second,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("build github app client: %w", err)
	}
	return &restFetcher{backfiller: githubapi.NewBackfiller(rest, logger)}, nil
}

type restFetcher struct {
	backfiller *githubapi.Backfiller
}

func (f *restFetcher) RepoEvent(ctx context.Context, owner, repo string, since time.Time) ([]byte, error) {
	return f.backfiller.RepoEvent(ctx, owner, repo, since)
}

func runWithFetcher(ctx context.Context, cfg *config.Config, sink store.RecordSink, fetcher PayloadFetcher, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	integration, ok := cfg.Integration(cfg.Backfill.IntegrationID)
	if !ok {
		return fmt.Errorf("backfill integration %q is not configured", cfg.Backfill.IntegrationID)
	}
	if integration.Kind != providers.KindGitHub {
		return fmt.Errorf("backfill supports only github integrations, got %q", integration.Kind)
	}
	adapter, err := registry.ForKind(integration.Kind)
	if err != nil {
		return err
	}
	if len(cfg.Backfill.Repos) == 0 {
		return fmt.Errorf("backfill has no repositories configured")
	}

	var correlator *correlate.Correlator
	if integration.WorkitemPattern != "" {
		correlator = correlate.New(integration.WorkitemPattern)
	}

	window := cfg.Backfill.Window
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	now := time.Now()
	since := now.Add(-window)

	var runErr error
	for _, configured := range cfg.Backfill.Repos {
		owner, repo := splitRepo(cfg.Backfill.Org, configured)
		if repo == "" {
			runErr = errors.Join(runErr, fmt.Errorf("invalid backfill repo %q", configured))
			continue
		}

		payload, err := fetcher.RepoEvent(ctx, owner, repo, since)
		if err != nil {
			logger.Error("backfill fetch failed", zap.String("repo", owner+"/"+repo), zap.Error(err))
			runErr = errors.Join(runErr, err)
			continue
		}

		repoID := integration.RepoID
		if repoID == "" {
			repoID = owner + "/" + repo
		}
		result, err := adapter.Normalize(providers.Context{
			IntegrationID:   integration.ID,
			RepoID:          repoID,
			Project:         projectFor(integration, owner),
			EventTimeMillis: now.UnixMilli(),
			Correlator:      correlator,
		}, payload)
		if err != nil {
			logger.Error("backfill payload rejected", zap.String("repo", owner+"/"+repo), zap.Error(err))
			runErr = errors.Join(runErr, err)
			continue
		}

		if err := sink.SaveResult(ctx, integration.ID, result); err != nil {
			logger.Error("backfill persist failed", zap.String("repo", owner+"/"+repo), zap.Error(err))
			runErr = errors.Join(runErr, err)
			continue
		}

		logger.Info("backfilled repository",
			zap.String("repo", owner+"/"+repo),
			zap.Time("since", since),
			zap.Int("commits", len(result.Commits)),
			zap.Int("pull_requests", len(result.PullRequests)),
			zap.Int("tags", len(result.Tags)),
			zap.Int("diagnostics", len(result.Diagnostics)),
		)
	}
	return runErr
}

// splitRepo resolves "owner/name" entries, falling back to the configured
// organization for bare names.
func splitRepo(org, configured string) (string, string) {
	trimmed := strings.TrimSpace(configured)
	if owner, repo, found := strings.Cut(trimmed, "/"); found {
		return owner, repo
	}
	return org, trimmed
}

func projectFor(integration config.IntegrationConfig, owner string) string {
	if integration.Project != "" {
		return integration.Project
	}
	return owner
}
