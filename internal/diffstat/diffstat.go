// Package diffstat normalizes per-commit change statistics across the
// three shapes providers expose them in: pre-aggregated counters, per-file
// stats, and raw unified-diff text.
package diffstat

// ChangesPolicy states how a provider's total line-change figure is
// obtained.
type ChangesPolicy int

const (
	// ChangesFromFiles sums the per-file changed-line counts.
	ChangesFromFiles ChangesPolicy = iota
	// ChangesNotReported pins changes to 0: the upstream API does not
	// report changed lines for this provider. Documented limitation, not
	// a bug; a genuine zero-line-change commit is indistinguishable.
	ChangesNotReported
)

// Stats holds normalized change statistics. All fields are concrete ints;
// absent upstream data is zero.
type Stats struct {
	Additions  int
	Deletions  int
	Changes    int
	FilesCount int
}

// FileStat is one file's change statistics in provider-neutral form.
type FileStat struct {
	Filename  string
	Additions int
	Deletions int
	Changes   int
}

// FromAggregate passes pre-aggregated provider counters through.
func FromAggregate(additions, deletions, changes, filesCount int) Stats {
	return Stats{
		Additions:  additions,
		Deletions:  deletions,
		Changes:    changes,
		FilesCount: filesCount,
	}
}

// FromFiles aggregates per-file stats. Additions and deletions are always
// summed; the changes total follows the provider's policy.
func FromFiles(files []FileStat, policy ChangesPolicy) Stats {
	stats := Stats{FilesCount: len(files)}
	for _, file := range files {
		stats.Additions += file.Additions
		stats.Deletions += file.Deletions
		if policy == ChangesFromFiles {
			stats.Changes += file.Changes
		}
	}
	return stats
}
