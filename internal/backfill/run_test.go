package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devinsights/scm-normalizer/internal/config"
	"github.com/devinsights/scm-normalizer/internal/providers"
	"github.com/devinsights/scm-normalizer/internal/store"
)

type fetchedRepo struct {
	owner string
	repo  string
}

type stubFetcher struct {
	payloads map[string][]byte
	errs     map[string]error
	fetched  []fetchedRepo
}

func (f *stubFetcher) RepoEvent(_ context.Context, owner, repo string, _ time.Time) ([]byte, error) {
	f.fetched = append(f.fetched, fetchedRepo{owner: owner, repo: repo})
	key := owner + "/" + repo
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.payloads[key], nil
}

func backfillConfig(repos ...string) *config.Config {
	return &config.Config{
		Integrations: []config.IntegrationConfig{
			{ID: "gh-1", Kind: providers.KindGitHub},
			{ID: "bb-1", Kind: providers.KindBitbucket},
		},
		Backfill: config.BackfillConfig{
			Enabled:       true,
			IntegrationID: "gh-1",
			Org:           "acme",
			Repos:         repos,
			Window:        7 * 24 * time.Hour,
		},
	}
}

const repoPayload = `{"commits": [{"sha": "abc123", "message": "seed data", "author": {"login": "octocat"}}]}`

func TestRunNormalizesAndPersists(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{payloads: map[string][]byte{
		"acme/widgets": []byte(repoPayload),
	}}
	memory := store.NewMemoryStore(0)
	cfg := backfillConfig("widgets")

	if err := runWithFetcher(context.Background(), cfg, memory, fetcher, nil); err != nil {
		t.Fatalf("runWithFetcher() unexpected error: %v", err)
	}

	if len(fetcher.fetched) != 1 || fetcher.fetched[0].owner != "acme" || fetcher.fetched[0].repo != "widgets" {
		t.Fatalf("fetched = %v, want bare name resolved against the org", fetcher.fetched)
	}
	commit, ok := memory.Commit("gh-1", "abc123")
	if !ok {
		t.Fatal("commit not persisted")
	}
	if commit.RepoIDs[0] != "acme/widgets" {
		t.Fatalf("RepoIDs = %v, want derived owner/name", commit.RepoIDs)
	}
}

func TestRunExplicitOwnerOverridesOrg(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{payloads: map[string][]byte{
		"other/tools": []byte(repoPayload),
	}}
	cfg := backfillConfig("other/tools")

	if err := runWithFetcher(context.Background(), cfg, store.NewMemoryStore(0), fetcher, nil); err != nil {
		t.Fatalf("runWithFetcher() unexpected error: %v", err)
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0].owner != "other" {
		t.Fatalf("fetched = %v, want explicit owner", fetcher.fetched)
	}
}

func TestRunContinuesAfterFetchError(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("server unreachable")
	fetcher := &stubFetcher{
		payloads: map[string][]byte{"acme/widgets": []byte(repoPayload)},
		errs:     map[string]error{"acme/broken": fetchErr},
	}
	memory := store.NewMemoryStore(0)
	cfg := backfillConfig("broken", "widgets")

	err := runWithFetcher(context.Background(), cfg, memory, fetcher, nil)
	if !errors.Is(err, fetchErr) {
		t.Fatalf("error = %v, want wrapped fetch error", err)
	}
	if _, ok := memory.Commit("gh-1", "abc123"); !ok {
		t.Fatal("healthy repo should still be backfilled after a failure")
	}
}

func TestRunRejectsMisconfiguredIntegration(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		integrationID string
	}{
		{name: "unknown_integration", integrationID: "nope"},
		{name: "non_github_integration", integrationID: "bb-1"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := backfillConfig("widgets")
			cfg.Backfill.IntegrationID = testCase.integrationID
			err := runWithFetcher(context.Background(), cfg, store.NewMemoryStore(0), &stubFetcher{}, nil)
			if err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestRunRequiresRepos(t *testing.T) {
	t.Parallel()

	cfg := backfillConfig()
	err := runWithFetcher(context.Background(), cfg, store.NewMemoryStore(0), &stubFetcher{}, nil)
	if err == nil {
		t.Fatal("expected error with no repositories configured")
	}
}
