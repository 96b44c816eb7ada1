package types

import "errors"

// Failure taxonomy. Every failure in the core is folder- or item-scoped and
// degrades to a partial index; nothing here is process-fatal.
var (
	// ErrAccessDenied means a capability handle's permission was revoked.
	// The owning folder is deactivated and not retried automatically.
	ErrAccessDenied = errors.New("access denied")

	// ErrScanFailed is a transient I/O failure during one scan. The
	// scheduler retries with backoff.
	ErrScanFailed = errors.New("scan failed")

	// ErrExtractionFailed means a supported file's content could not be
	// decoded. The item is kept with empty text.
	ErrExtractionFailed = errors.New("content extraction failed")

	// ErrEmbeddingFailed means the embedding provider exhausted the
	// per-job attempt cap. The job is surfaced as failed and the queue
	// continues.
	ErrEmbeddingFailed = errors.New("embedding failed")
)
