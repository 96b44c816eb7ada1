// Package capability defines the permission-scoped directory access
// boundary. A Handle is granted by the host platform for one directory
// tree; the core never fabricates access and never persists raw paths
// beyond the handle it was given.
package capability

import (
	"context"
	"errors"

	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// Errors returned by handles.
var (
	// ErrPermissionDenied signals a revoked or never-granted permission.
	// Callers treat it as types.ErrAccessDenied at the folder level.
	ErrPermissionDenied = errors.New("capability: permission denied")

	// ErrNotFound signals a ref that no longer resolves to an entry.
	ErrNotFound = errors.New("capability: entry not found")
)

// EntryKind distinguishes files from directories in a listing.
type EntryKind string

// Entry kinds.
const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// Entry is one directory listing result. Ref is an opaque token the handle
// understands; it is only valid for the handle that produced it.
type Entry struct {
	Name string
	Kind EntryKind
	Ref  string
	Stat types.FileStat
}

// PermissionMode is the access level requested from the platform.
type PermissionMode string

// Permission modes.
const (
	ModeRead      PermissionMode = "read"
	ModeReadWrite PermissionMode = "readwrite"
)

// Handle is an opaque, revocable reference to a granted directory.
//
// ListEntries lists the immediate children of a directory ref; an empty ref
// addresses the handle's root. ReadFile returns the raw bytes of a file ref.
// RequestPermission re-confirms access and returns ErrPermissionDenied if
// the grant is gone.
type Handle interface {
	ListEntries(ctx context.Context, dirRef string) ([]Entry, error)
	ReadFile(ctx context.Context, fileRef string) ([]byte, error)
	RequestPermission(ctx context.Context, mode PermissionMode) error
}
