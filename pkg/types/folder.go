package types

import "time"

// Default folder options.
const (
	DefaultPollIntervalMs   = 5000
	DefaultMaxFileSizeBytes = 10 * 1024 * 1024
	DefaultMaxDepth         = 32
)

// FolderOptions is the per-folder configuration surface. Options are set at
// add-folder time and may only be mutated while the folder is inactive.
type FolderOptions struct {
	PollIntervalMs      int
	MaxFileSizeBytes    int64
	MaxDepth            int
	TextFilesOnly       bool
	SkipExcludedDirs    bool
	IncludeAllFileTypes bool
}

// DefaultFolderOptions returns the options applied when a folder is added
// without explicit configuration.
func DefaultFolderOptions() FolderOptions {
	return FolderOptions{
		PollIntervalMs:   DefaultPollIntervalMs,
		MaxFileSizeBytes: DefaultMaxFileSizeBytes,
		MaxDepth:         DefaultMaxDepth,
		TextFilesOnly:    true,
		SkipExcludedDirs: true,
	}
}

// PollInterval returns the configured poll interval as a duration, falling
// back to the default for zero or negative values.
func (o FolderOptions) PollInterval() time.Duration {
	ms := o.PollIntervalMs
	if ms <= 0 {
		ms = DefaultPollIntervalMs
	}
	return time.Duration(ms) * time.Millisecond
}

// MonitoredFolder is the persistent record for one directory tree under
// monitoring. The polling scheduler is the only writer of IsActive and the
// error fields.
type MonitoredFolder struct {
	ID                string
	DisplayPath       string
	IsActive          bool
	Options           FolderOptions
	ConsecutiveErrors int
	LastError         string
	LastScanTime      time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
