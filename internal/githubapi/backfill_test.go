package githubapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ghprovider "github.com/devinsights/scm-normalizer/internal/providers/github"
)

func newBackfillServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		writeFixture(t, w, `[{"sha": "abc123"}]`)
	})
	mux.HandleFunc("/repos/acme/widgets/commits/abc123", func(w http.ResponseWriter, r *http.Request) {
		writeFixture(t, w, `{
			"sha": "abc123",
			"commit": {
				"message": "fix widget pagination for large orgs",
				"author": {"name": "Mona Octocat", "email": "mona@example.test", "date": "2024-03-01T10:00:00Z"}
			},
			"author": {"login": "octocat"},
			"stats": {"additions": 3, "deletions": 1, "total": 4},
			"files": [
				{"filename": "main.go", "status": "modified", "additions": 3, "deletions": 1, "changes": 4}
			]
		}`)
	})
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeFixture(t, w, `[
			{
				"number": 5,
				"state": "closed",
				"title": "Add exporter",
				"user": {"login": "octocat"},
				"head": {"ref": "feature/export", "sha": "feedbee"},
				"base": {"ref": "main", "sha": "abc123"},
				"merge_commit_sha": "deadbeef",
				"labels": [{"name": "Enhancement"}],
				"created_at": "2024-03-01T09:00:00Z",
				"updated_at": "2024-03-02T09:00:00Z",
				"merged_at": "2024-03-02T09:00:00Z",
				"closed_at": "2024-03-02T09:00:00Z"
			},
			{
				"number": 4,
				"state": "closed",
				"title": "Stale change",
				"updated_at": "2023-01-01T00:00:00Z"
			}
		]`)
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/5/reviews", func(w http.ResponseWriter, r *http.Request) {
		writeFixture(t, w, `[
			{
				"id": 9001,
				"user": {"login": "hubot"},
				"state": "APPROVED",
				"submitted_at": "2024-03-02T08:00:00Z"
			}
		]`)
	})
	mux.HandleFunc("/repos/acme/widgets/tags", func(w http.ResponseWriter, r *http.Request) {
		writeFixture(t, w, `[{"name": "v1.2.0", "commit": {"sha": "abc123"}}]`)
	})

	return httptest.NewServer(mux)
}

func writeFixture(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(body)); err != nil {
		t.Errorf("write fixture: %v", err)
	}
}

func TestRepoEventAssemblesPayload(t *testing.T) {
	t.Parallel()

	server := newBackfillServer(t)
	defer server.Close()

	rest, err := NewRESTClient(server.Client(), server.URL+"/")
	if err != nil {
		t.Fatalf("NewRESTClient() unexpected error: %v", err)
	}

	backfiller := NewBackfiller(rest, nil)
	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	payload, err := backfiller.RepoEvent(context.Background(), "acme", "widgets", since)
	if err != nil {
		t.Fatalf("RepoEvent() unexpected error: %v", err)
	}

	var event ghprovider.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if len(event.Commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(event.Commits))
	}
	commit := event.Commits[0]
	if commit.SHA != "abc123" {
		t.Fatalf("commit SHA = %q", commit.SHA)
	}
	if commit.Author == nil || commit.Author.Login != "octocat" {
		t.Fatalf("commit author = %+v, want linked octocat", commit.Author)
	}
	if commit.GitAuthor == nil || commit.GitAuthor.Email != "mona@example.test" {
		t.Fatalf("git author = %+v, want signature email", commit.GitAuthor)
	}
	if commit.Stats == nil || commit.Stats.Total != 4 {
		t.Fatalf("commit stats = %+v, want detail fetch totals", commit.Stats)
	}
	if len(commit.Files) != 1 || commit.Files[0].Filename != "main.go" {
		t.Fatalf("commit files = %+v", commit.Files)
	}

	if len(event.PullRequests) != 1 {
		t.Fatalf("pull requests = %d, want window cutoff at the stale entry", len(event.PullRequests))
	}
	pullRequest := event.PullRequests[0]
	if pullRequest.Number != 5 || pullRequest.MergeCommitSHA != "deadbeef" {
		t.Fatalf("pull request = %+v", pullRequest)
	}
	if len(pullRequest.Reviews) != 1 || pullRequest.Reviews[0].ID != "9001" {
		t.Fatalf("reviews = %+v, want inlined review 9001", pullRequest.Reviews)
	}
	if pullRequest.Reviews[0].State != "APPROVED" {
		t.Fatalf("review state = %q", pullRequest.Reviews[0].State)
	}

	if len(event.Tags) != 1 || event.Tags[0].Name != "v1.2.0" || event.Tags[0].SHA != "abc123" {
		t.Fatalf("tags = %+v", event.Tags)
	}
}

func TestRepoEventRequiresClient(t *testing.T) {
	t.Parallel()

	backfiller := NewBackfiller(nil, nil)
	if _, err := backfiller.RepoEvent(context.Background(), "acme", "widgets", time.Time{}); err == nil {
		t.Fatal("expected error without a rest client")
	}
}
