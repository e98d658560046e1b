package providers

import (
	"reflect"
	"testing"

	"github.com/devinsights/scm-normalizer/internal/correlate"
	"github.com/devinsights/scm-normalizer/internal/models"
)

func TestContextWorkitems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		correlator *correlate.Correlator
		texts      []string
		want       []string
	}{
		{
			name:  "nil_correlator_uses_numeric_default",
			texts: []string{"fixes 42 and 108"},
			want:  []string{"108", "42"},
		},
		{
			name:       "custom_pattern_scans_commit_message",
			correlator: correlate.New(`WI\d+`),
			texts:      []string{"closes WI991"},
			want:       []string{"WI991"},
		},
		{
			name:       "custom_pattern_ignores_bare_numbers",
			correlator: correlate.New(`WI\d+`),
			texts:      []string{"bump to version 3"},
			want:       []string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := Context{Correlator: tc.correlator}
			if got := ctx.Workitems(tc.texts...); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Workitems(%v) = %v, want %v", tc.texts, got, tc.want)
			}
		})
	}
}

func TestContextIssueKeys(t *testing.T) {
	t.Parallel()

	ctx := Context{Correlator: correlate.New(`WI\d+`)}
	got := ctx.IssueKeys("PROJ-7 touches WI12")
	if !reflect.DeepEqual(got, []string{"PROJ-7"}) {
		t.Fatalf("IssueKeys = %v, want [PROJ-7]", got)
	}
}

func TestContextRepoIDs(t *testing.T) {
	t.Parallel()

	if got := (Context{}).RepoIDs(); !reflect.DeepEqual(got, []string{models.Unknown}) {
		t.Fatalf("RepoIDs = %v, want unknown sentinel", got)
	}
	if got := (Context{RepoID: "acme/widgets"}).RepoIDs(); !reflect.DeepEqual(got, []string{"acme/widgets"}) {
		t.Fatalf("RepoIDs = %v, want [acme/widgets]", got)
	}
}
