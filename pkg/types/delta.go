package types

import "time"

// DeltaKind classifies a detected change between two scans of a folder.
type DeltaKind string

// Delta kinds.
const (
	DeltaAdded    DeltaKind = "added"
	DeltaModified DeltaKind = "modified"
	DeltaDeleted  DeltaKind = "deleted"
)

// FileStat is the (mtime, size) pair tracked per path in a scan snapshot.
type FileStat struct {
	ModTime   time.Time
	SizeBytes int64
}

// Delta is one detected change for a single path.
type Delta struct {
	Kind DeltaKind
	Path string
	Name string
	Stat FileStat
}

// SimilarityResult ranks one candidate item against a target vector.
// Output-only; never persisted.
type SimilarityResult struct {
	ItemID string
	Score  float64
	Rank   int
}

// OrganizationSuggestion proposes moving an item to a better-matching
// folder. The caller decides whether to apply it; the core never mutates
// folder assignment.
type OrganizationSuggestion struct {
	ItemID          string
	CurrentFolder   string
	SuggestedFolder string
	Score           float64
}

// MonitoringStats is the aggregate view derived from the index. It is
// recomputed after every index mutation, never mutated independently.
type MonitoringStats struct {
	TotalFiles        int
	ActiveMonitors    int
	FileTypeHistogram map[string]int
	LastScanTime      time.Time
}
