package diffstat

import (
	"bufio"
	"fmt"
	"strings"
)

// maxDiffSize guards against pathological diff blobs.
const maxDiffSize = 16 << 20

// ParseUnifiedDiff recovers additions and deletions from a unified-diff
// text blob. On failure it returns zeroed stats and an error tagged with
// the file name; callers keep the zeroed stats and surface the error
// through their diagnostic channel instead of aborting the record.
func ParseUnifiedDiff(filename, diff string) (FileStat, error) {
	stat := FileStat{Filename: filename}
	if strings.TrimSpace(diff) == "" {
		return stat, nil
	}
	if len(diff) > maxDiffSize {
		return stat, fmt.Errorf("parse diff for %q: blob exceeds %d bytes", filename, maxDiffSize)
	}

	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), maxDiffSize)
	sawHunk := false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "@@"):
			sawHunk = true
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// file headers, not content
		case strings.HasPrefix(line, "+"):
			stat.Additions++
		case strings.HasPrefix(line, "-"):
			stat.Deletions++
		}
	}
	if err := scanner.Err(); err != nil {
		return FileStat{Filename: filename}, fmt.Errorf("parse diff for %q: %w", filename, err)
	}
	if !sawHunk {
		return FileStat{Filename: filename}, fmt.Errorf("parse diff for %q: no hunk header", filename)
	}

	stat.Changes = stat.Additions + stat.Deletions
	return stat, nil
}
