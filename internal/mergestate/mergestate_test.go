package mergestate

import (
	"reflect"
	"testing"

	"github.com/devinsights/scm-normalizer/internal/models"
)

func TestFromMergedAt(t *testing.T) {
	t.Parallel()

	merged := FromMergedAt(1700000000, "abc123")
	if !merged.Merged || merged.MergeSHA != "abc123" || merged.MergedAt != 1700000000 {
		t.Fatalf("FromMergedAt merged case = %+v", merged)
	}

	open := FromMergedAt(0, "abc123")
	if open.Merged || open.MergeSHA != "" || open.MergedAt != 0 {
		t.Fatalf("FromMergedAt without timestamp = %+v, want zero value", open)
	}
}

func TestFromActivityLog(t *testing.T) {
	t.Parallel()

	activities := []Activity{
		{Action: "APPROVED"},
		{Action: "MERGED", CommitID: "abc123", CreatedAt: 1000},
	}

	testCases := []struct {
		name       string
		open       bool
		activities []Activity
		want       MergeInfo
	}{
		{
			name:       "merged_activity_found",
			open:       false,
			activities: activities,
			want:       MergeInfo{Merged: true, MergeSHA: "abc123", MergedAt: 1000},
		},
		{
			name:       "open_request_never_merged",
			open:       true,
			activities: activities,
			want:       MergeInfo{},
		},
		{
			name:       "no_activity_log",
			open:       false,
			activities: nil,
			want:       MergeInfo{},
		},
		{
			name:       "no_merged_entry",
			open:       false,
			activities: []Activity{{Action: "APPROVED"}, {Action: "COMMENTED"}},
			want:       MergeInfo{},
		},
		{
			name:       "first_merged_entry_wins",
			open:       false,
			activities: []Activity{
				{Action: "merged", CommitID: "first", CreatedAt: 1},
				{Action: "MERGED", CommitID: "second", CreatedAt: 2},
			},
			want: MergeInfo{Merged: true, MergeSHA: "first", MergedAt: 1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FromActivityLog(tc.open, tc.activities); got != tc.want {
				t.Fatalf("FromActivityLog = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestFromApprovalState(t *testing.T) {
	t.Parallel()

	if got := FromApprovalState("approved", 500); !got.Merged || got.MergedAt != 500 {
		t.Fatalf("approved state should count as merged, got %+v", got)
	}
	if got := FromApprovalState("needsReview", 500); got.Merged {
		t.Fatalf("non-approved state should not be merged, got %+v", got)
	}
}

func TestFilterReviewActivities(t *testing.T) {
	t.Parallel()

	activities := []Activity{
		{Action: "APPROVED"},
		{Action: "MERGED"},
		{Action: "OPENED"},
		{Action: "NEEDS_WORK"},
		{Action: "RESCOPED"},
	}
	got := FilterReviewActivities(activities)
	want := []Activity{{Action: "APPROVED"}, {Action: "NEEDS_WORK"}, {Action: "RESCOPED"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FilterReviewActivities = %+v, want %+v", got, want)
	}
}

func TestMapEventAction(t *testing.T) {
	t.Parallel()

	lookup := map[string]string{
		"approved":     models.ReviewStateApproved,
		"commented on": models.ReviewStateCommented,
	}

	testCases := []struct {
		name   string
		action string
		want   string
	}{
		{name: "mapped_action", action: "approved", want: "APPROVED"},
		{name: "mapped_multiword_action", action: "commented on", want: "COMMENTED"},
		{name: "unmapped_passes_through_uppercased", action: "pushed to", want: "PUSHED TO"},
		{name: "blank_maps_to_unknown", action: "   ", want: "UNKNOWN"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := MapEventAction(lookup, tc.action); got != tc.want {
				t.Fatalf("MapEventAction(%q) = %q, want %q", tc.action, got, tc.want)
			}
		})
	}
}

func TestSplitReviews(t *testing.T) {
	t.Parallel()

	entries := []Activity{
		{ID: "r1", Action: "APPROVED", Body: "lgtm, nit: rename x", User: "alice", CreatedAt: 42},
		{ID: "r2", Action: "COMMENTED", Body: "just a comment", User: "bob", CreatedAt: 43},
		{ID: "r3", Action: "APPROVED", Body: "  ", User: "carol", CreatedAt: 44},
	}
	makeReview := func(entry Activity, reviewID, state string) models.ScmReview {
		return models.ScmReview{ReviewID: reviewID, Reviewer: entry.User, State: state, ReviewedAt: entry.CreatedAt}
	}

	split := SplitReviews(entries, SeparateApprovalAndComment, makeReview)
	want := []models.ScmReview{
		{ReviewID: "r1", Reviewer: "alice", State: "APPROVED", ReviewedAt: 42},
		{ReviewID: "r1-comment", Reviewer: "alice", State: "COMMENTED", ReviewedAt: 42},
		{ReviewID: "r2", Reviewer: "bob", State: "COMMENTED", ReviewedAt: 43},
		{ReviewID: "r3", Reviewer: "carol", State: "APPROVED", ReviewedAt: 44},
	}
	if !reflect.DeepEqual(split, want) {
		t.Fatalf("split mode reviews = %+v, want %+v", split, want)
	}

	flat := SplitReviews(entries, KeepApprovalAndCommentTogether, makeReview)
	if len(flat) != 3 {
		t.Fatalf("non-split mode should map 1:1, got %d reviews", len(flat))
	}
}
