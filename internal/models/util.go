package models

import (
	"path"
	"strings"
	"time"
)

// TruncateMessage caps a commit message at CommitMessageMaxLength runes for
// the denormalized listing representation.
func TruncateMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= CommitMessageMaxLength {
		return message
	}
	return string(runes[:CommitMessageMaxLength])
}

// TruncateToDay converts a caller-supplied event time in epoch milliseconds
// to the start of its UTC day in epoch seconds. Ingest timestamps are
// day-aligned so re-ingesting the same payload stays idempotent.
func TruncateToDay(epochMillis int64) int64 {
	return time.UnixMilli(epochMillis).UTC().Truncate(24 * time.Hour).Unix()
}

// FirstNonBlank returns the first value that is not blank, or Unknown when
// every candidate is blank.
func FirstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return Unknown
}

// Filetype extracts the lowercased extension of a filename, without the
// dot. Files with no extension report "NA".
func Filetype(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		return "NA"
	}
	return strings.ToLower(ext)
}
