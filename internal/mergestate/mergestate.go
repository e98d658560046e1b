// Package mergestate infers pull/merge-request lifecycle state from the
// signals each provider family exposes: explicit fields, activity logs,
// event streams, direct review lists, or an approval state alone. Inputs
// are provider-neutral; adapters map their payload shapes into them.
package mergestate

import (
	"strings"

	"github.com/devinsights/scm-normalizer/internal/models"
)

// MergeInfo is the three-way merge outcome collapsed to the canonical
// shape: Merged is always concrete, absence of evidence is false.
type MergeInfo struct {
	Merged   bool
	MergeSHA string
	MergedAt int64
}

// Activity is one provider activity-log or review-list entry in neutral
// form. Timestamps are epoch seconds.
type Activity struct {
	ID        string
	Action    string
	User      string
	UserName  string
	CommitID  string
	Body      string
	CreatedAt int64
}

// FromMergedAt resolves merge state for explicit-field providers: merged
// exactly when a merge timestamp is present.
func FromMergedAt(mergedAt int64, mergeSHA string) MergeInfo {
	if mergedAt == 0 {
		return MergeInfo{}
	}
	return MergeInfo{Merged: true, MergeSHA: mergeSHA, MergedAt: mergedAt}
}

// FromActivityLog resolves merge state for activity-log providers. An open
// request, or one with no activity log, is not merged. Otherwise the first
// entry whose action equals MERGED carries the merge commit and timestamp.
func FromActivityLog(open bool, activities []Activity) MergeInfo {
	if open || len(activities) == 0 {
		return MergeInfo{}
	}
	for _, activity := range activities {
		if !strings.EqualFold(activity.Action, models.ReviewStateMerged) {
			continue
		}
		return MergeInfo{
			Merged:   true,
			MergeSHA: activity.CommitID,
			MergedAt: activity.CreatedAt,
		}
	}
	return MergeInfo{}
}

// FromApprovalState resolves merge state for providers with no merge
// signal at all: merged is derived from the request state equalling the
// provider's approved vocabulary, case-insensitive.
func FromApprovalState(state string, updatedAt int64) MergeInfo {
	if !strings.EqualFold(state, models.ReviewStateApproved) {
		return MergeInfo{}
	}
	return MergeInfo{Merged: true, MergedAt: updatedAt}
}

// reviewActions is the fixed allow-list of review-related activity-log
// actions that surface as canonical review events.
var reviewActions = map[string]struct{}{
	models.ReviewStateReviewed:   {},
	models.ReviewStateApproved:   {},
	models.ReviewStateUnapproved: {},
	models.ReviewStateDeclined:   {},
	"NEEDS_WORK":                 {},
	"NEEDS WORK":                 {},
	models.ReviewStateCommented:  {},
	models.ReviewStateRescoped:   {},
}

// FilterReviewActivities keeps only activity-log entries whose action is in
// the review allow-list, preserving order.
func FilterReviewActivities(activities []Activity) []Activity {
	reviews := make([]Activity, 0, len(activities))
	for _, activity := range activities {
		if _, ok := reviewActions[strings.ToUpper(activity.Action)]; ok {
			reviews = append(reviews, activity)
		}
	}
	return reviews
}

// MapEventAction maps an event-stream action name into the canonical
// review vocabulary via the lookup table. Unmapped non-blank names pass
// through uppercased rather than being dropped; blank names map to the
// explicit UNKNOWN state.
func MapEventAction(lookup map[string]string, action string) string {
	trimmed := strings.TrimSpace(action)
	if trimmed == "" {
		return models.ReviewStateUnknown
	}
	if state, ok := lookup[strings.ToLower(trimmed)]; ok {
		return state
	}
	return strings.ToUpper(trimmed)
}
