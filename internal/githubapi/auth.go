package githubapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
)

// AppAuth identifies the GitHub App installation the backfill runs as,
// mirroring the backfill config block field for field.
type AppAuth struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	RequestTimeout time.Duration
	// APIBaseURL points at a GitHub Enterprise API root. Blank means
	// github.com.
	APIBaseURL string
	// Transport sits under the app-token transport; the backfill passes
	// its retry transport here. Nil falls back to the default transport.
	Transport http.RoundTripper
}

func (a AppAuth) validate() error {
	var problems []string
	if a.AppID <= 0 {
		problems = append(problems, "app id must be positive")
	}
	if a.InstallationID <= 0 {
		problems = append(problems, "installation id must be positive")
	}
	if strings.TrimSpace(a.PrivateKeyPath) == "" {
		problems = append(problems, "private key path is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("github app auth: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RESTClient wraps the typed go-github client.
type RESTClient struct {
	Client *github.Client
}

// NewAppClient builds an installation-authenticated REST client. Token
// minting and refresh happen inside the ghinstallation transport, on top
// of whatever retry transport the caller supplies.
func NewAppClient(auth AppAuth) (*RESTClient, error) {
	if err := auth.validate(); err != nil {
		return nil, err
	}

	base := auth.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport, err := ghinstallation.NewKeyFromFile(base, auth.AppID, auth.InstallationID, auth.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}

	return NewRESTClient(&http.Client{
		Transport: transport,
		Timeout:   auth.RequestTimeout,
	}, auth.APIBaseURL)
}

// NewRESTClient wraps an HTTP client in the typed go-github client with
// an optional API base URL override. Tests point the base URL at a local
// server; NewAppClient passes the enterprise root through.
func NewRESTClient(httpClient *http.Client, apiBaseURL string) (*RESTClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := github.NewClient(httpClient)
	trimmed := strings.TrimSpace(apiBaseURL)
	if trimmed == "" {
		return &RESTClient{Client: client}, nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	client.BaseURL = parsed
	return &RESTClient{Client: client}, nil
}
