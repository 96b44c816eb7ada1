// Package types provides shared type definitions for the CogniCore
// monitoring and embedding core.
//
// This package defines domain types used across multiple components:
// monitored folders, indexed items, scan deltas, similarity results, and
// aggregate monitoring statistics.
//
// # Core Types
//
// MonitoredFolder describes one directory tree the user granted access to:
//
//	folder := &types.MonitoredFolder{
//	    ID:          uuid.NewString(),
//	    DisplayPath: "/home/user/notes",
//	    IsActive:    true,
//	}
//
// IndexedItem is the per-file record kept in the persistent store. Its ID is
// deterministic (SHA-256 of the file path) so rescans always resolve to the
// same record:
//
//	item := &types.IndexedItem{
//	    ID:       types.ItemID("/home/user/notes/todo.md"),
//	    Filename: "todo.md",
//	    Filepath: "/home/user/notes/todo.md",
//	}
//
// Items are never physically removed; deletion marks IsDeleted and active
// queries exclude such records.
package types
