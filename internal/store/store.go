package store

import (
	"context"
	"errors"
	"time"

	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a duplicate record.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict is returned when a compare-and-update loses the race:
	// the stored revision no longer matches the caller's expected one.
	ErrConflict = errors.New("revision conflict")
	// ErrUnknownIndex is returned for an unrecognized index name.
	ErrUnknownIndex = errors.New("unknown index")
)

// Secondary index names accepted by QueryItemsByIndex.
const (
	IndexFilepath  = "filepath"
	IndexFolderID  = "folder_id"
	IndexExtension = "extension"
)

// ItemUpdate is a partial update to an indexed item. Nil pointer fields are
// left untouched. SetVector and ClearVector are mutually exclusive;
// ClearVector wins if both are set.
type ItemUpdate struct {
	TextContent  *string
	SetVector    []float32
	ClearVector  bool
	LastModified *time.Time
	SizeBytes    *int64
	IsDeleted    *bool
	LastError    *string
}

// Store is the persistent record collection the core writes to. Writers use
// per-item compare-and-update (UpdateItem with the revision they read)
// rather than any global lock, so folder loops stay independent.
//
// QueryItemsByIndex and ActiveItems exclude soft-deleted records; GetItem
// and GetAllItems include them, preserving history for undo/audit.
type Store interface {
	// Item operations
	AddItem(ctx context.Context, item *types.IndexedItem) error
	GetItem(ctx context.Context, id string) (*types.IndexedItem, error)
	UpdateItem(ctx context.Context, id string, expectedRevision int64, upd ItemUpdate) (*types.IndexedItem, error)
	DeleteItem(ctx context.Context, id string) error
	GetAllItems(ctx context.Context) ([]*types.IndexedItem, error)
	ActiveItems(ctx context.Context) ([]*types.IndexedItem, error)
	QueryItemsByIndex(ctx context.Context, name, value string) ([]*types.IndexedItem, error)

	// Folder operations
	AddFolder(ctx context.Context, folder *types.MonitoredFolder) error
	GetFolder(ctx context.Context, id string) (*types.MonitoredFolder, error)
	UpdateFolder(ctx context.Context, folder *types.MonitoredFolder) error
	DeleteFolder(ctx context.Context, id string) error
	ListFolders(ctx context.Context) ([]*types.MonitoredFolder, error)

	Close() error
}
