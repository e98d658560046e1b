package mergestate

import (
	"strings"

	"github.com/devinsights/scm-normalizer/internal/models"
)

// SplitMode controls whether a review that both approves (or otherwise
// acts) and carries a comment body is surfaced as two review events.
type SplitMode bool

const (
	// SeparateApprovalAndComment synthesizes a second COMMENTED review for
	// entries with a non-blank body whose state is not already COMMENTED.
	SeparateApprovalAndComment SplitMode = true
	// KeepApprovalAndCommentTogether maps each review entry 1:1.
	KeepApprovalAndCommentTogether SplitMode = false
)

// commentSuffix distinguishes the synthesized comment review's id from the
// review it was split from.
const commentSuffix = "-comment"

// SplitReviews maps direct-review-list entries to canonical reviews,
// optionally splitting approve+comment entries. makeReview builds the
// canonical review for one entry with the given id and state.
func SplitReviews(entries []Activity, mode SplitMode, makeReview func(entry Activity, reviewID, state string) models.ScmReview) []models.ScmReview {
	reviews := make([]models.ScmReview, 0, len(entries))
	for _, entry := range entries {
		reviews = append(reviews, makeReview(entry, entry.ID, entry.Action))
		if mode != SeparateApprovalAndComment {
			continue
		}
		hasComment := strings.TrimSpace(entry.Body) != ""
		alreadyComment := entry.Action == models.ReviewStateCommented
		if hasComment && !alreadyComment {
			reviews = append(reviews, makeReview(entry, entry.ID+commentSuffix, models.ReviewStateCommented))
		}
	}
	return reviews
}
