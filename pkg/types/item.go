package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// IndexedItem is the persistent record for a single file observed under a
// monitored folder.
//
// TextContent is empty for items indexed metadata-only (binary or unreadable
// files). EmbeddingVector, when non-nil, was computed from the exact
// TextContent currently stored; any content change clears the vector until
// the pipeline recomputes it.
type IndexedItem struct {
	ID              string
	FolderID        string
	Filename        string
	Filepath        string
	FileExtension   string
	LastModified    time.Time
	SizeBytes       int64
	TextContent     string
	EmbeddingVector []float32
	IsDeleted       bool

	// Revision increments on every store write and drives per-item
	// compare-and-update. A writer that read revision N may only apply an
	// update while the stored revision is still N.
	Revision int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasVector reports whether the item carries a current embedding.
func (it *IndexedItem) HasVector() bool {
	return len(it.EmbeddingVector) > 0
}

// ItemID derives the deterministic record ID for a file path. The same path
// always yields the same ID, keeping records stable across rescans.
func ItemID(filepath string) string {
	h := sha256.Sum256([]byte(filepath))
	return hex.EncodeToString(h[:])
}

// ContentHash computes the SHA-256 hash of extracted text. The embedding
// pipeline uses it to detect that an item's content changed between enqueue
// and completion.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
