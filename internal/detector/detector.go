// Package detector classifies scan results against the previous snapshot
// into changed and deleted deltas. Diffing is O(n) over hash-map lookups;
// folders can hold thousands of entries.
package detector

import (
	"github.com/SimoKiihamaki/cognicore/internal/scanner"
	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// Snapshot is the last known state of a folder: path -> (mtime, size).
// Ephemeral; rebuilt from the index on scheduler start, never persisted.
type Snapshot map[string]types.FileStat

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Changes is the result of diffing one scan against the prior snapshot.
type Changes struct {
	Changed []types.Delta // added or modified
	Deleted []types.Delta
}

// Empty reports whether the scan produced no deltas.
func (c Changes) Empty() bool {
	return len(c.Changed) == 0 && len(c.Deleted) == 0
}

// Diff compares the current scan list against prev. Paths with an unchanged
// (mtime, size) pair are dropped; new paths are added deltas, changed pairs
// are modified deltas, and snapshot paths missing from current are deleted
// deltas.
func Diff(current []scanner.FileEntry, prev Snapshot) Changes {
	var changes Changes
	seen := make(map[string]struct{}, len(current))

	for _, entry := range current {
		seen[entry.Path] = struct{}{}
		prevStat, known := prev[entry.Path]
		if known && prevStat.ModTime.Equal(entry.Stat.ModTime) && prevStat.SizeBytes == entry.Stat.SizeBytes {
			continue
		}
		kind := types.DeltaAdded
		if known {
			kind = types.DeltaModified
		}
		changes.Changed = append(changes.Changed, types.Delta{
			Kind: kind,
			Path: entry.Path,
			Name: entry.Name,
			Stat: entry.Stat,
		})
	}

	for path, stat := range prev {
		if _, stillPresent := seen[path]; !stillPresent {
			changes.Deleted = append(changes.Deleted, types.Delta{
				Kind: types.DeltaDeleted,
				Path: path,
				Stat: stat,
			})
		}
	}

	return changes
}

// Apply folds a scan result into a fresh snapshot. The caller swaps it in
// only after all deltas from the corresponding scan have been applied.
func Apply(current []scanner.FileEntry) Snapshot {
	next := make(Snapshot, len(current))
	for _, entry := range current {
		next[entry.Path] = entry.Stat
	}
	return next
}
