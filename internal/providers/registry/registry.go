// Package registry wires the per-provider adapters to their kind tags so
// callers dispatch on integration configuration instead of importing
// every provider package.
package registry

import (
	"fmt"

	"github.com/devinsights/scm-normalizer/internal/providers"
	"github.com/devinsights/scm-normalizer/internal/providers/azure"
	"github.com/devinsights/scm-normalizer/internal/providers/bitbucket"
	"github.com/devinsights/scm-normalizer/internal/providers/bitbucketserver"
	"github.com/devinsights/scm-normalizer/internal/providers/github"
	"github.com/devinsights/scm-normalizer/internal/providers/gitlab"
	"github.com/devinsights/scm-normalizer/internal/providers/helix"
)

// adapters is built once at init and read-only afterward.
var adapters = map[providers.Kind]providers.Adapter{
	providers.KindGitHub:          github.Adapter{},
	providers.KindGitLab:          gitlab.Adapter{},
	providers.KindBitbucket:       bitbucket.Adapter{},
	providers.KindBitbucketServer: bitbucketserver.Adapter{},
	providers.KindAzureDevops:     azure.Adapter{},
	providers.KindHelix:           helix.Adapter{},
}

// ForKind returns the adapter for a provider kind.
func ForKind(kind providers.Kind) (providers.Adapter, error) {
	adapter, ok := adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider kind %q", kind)
	}
	return adapter, nil
}
