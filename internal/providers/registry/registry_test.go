package registry

import (
	"testing"

	"github.com/devinsights/scm-normalizer/internal/providers"
)

func TestForKindCoversEveryKind(t *testing.T) {
	t.Parallel()

	for _, kind := range providers.Kinds() {
		adapter, err := ForKind(kind)
		if err != nil {
			t.Fatalf("ForKind(%q): %v", kind, err)
		}
		if adapter.Kind() != kind {
			t.Fatalf("adapter for %q reports kind %q", kind, adapter.Kind())
		}
	}
}

func TestForKindUnknown(t *testing.T) {
	t.Parallel()

	if _, err := ForKind(providers.Kind("svn")); err == nil {
		t.Fatal("unknown kind must error")
	}
}
