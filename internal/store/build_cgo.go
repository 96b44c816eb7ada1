//go:build cgosqlite
// +build cgosqlite

package store

// This file is compiled when building with CGO and the cgosqlite tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "cgosqlite" ./...
//
// The CGO implementation provides:
//   - Faster large-index writes
//   - Recommended for production deployments with big folder trees
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
