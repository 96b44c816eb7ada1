// Package scanner enumerates files under a capability handle, applying the
// folder's extension, size, and exclusion filters. A failed subtree is
// logged and skipped; partial results are expected when permissions change
// mid-walk.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/SimoKiihamaki/cognicore/internal/capability"
	"github.com/SimoKiihamaki/cognicore/internal/extractor"
	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// excludedDirs are directory names never descended into when
// SkipExcludedDirs is set: build output, version control, dependency caches.
var excludedDirs = map[string]struct{}{
	".git":         {},
	".svn":         {},
	".hg":          {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
	"__pycache__":  {},
	".venv":        {},
	".cache":       {},
	".idea":        {},
	".vscode":      {},
}

// ignoredExtensions are binary formats skipped unless IncludeAllFileTypes
// is set.
var ignoredExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".bin": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".wav": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".7z": {}, ".rar": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".db": {}, ".sqlite": {}, ".wasm": {},
}

// FileEntry is one file found by a scan.
type FileEntry struct {
	Path string // slash-separated path relative to the folder root
	Name string
	Ref  string // opaque ref for the handle that produced it
	Stat types.FileStat
}

// Scanner walks a capability handle recursively.
type Scanner struct {
	// nothing held between scans; the scanner is stateless and safe to
	// share across folders
}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan enumerates all files under the handle's root that pass the folder's
// filters. A subtree whose listing fails is skipped with a logged warning.
// Scan fails outright only when the root itself cannot be listed; a revoked
// grant surfaces as types.ErrAccessDenied.
func (s *Scanner) Scan(ctx context.Context, handle capability.Handle, opts types.FolderOptions) ([]FileEntry, error) {
	var out []FileEntry
	if err := s.walk(ctx, handle, "", 0, opts, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scanner) walk(ctx context.Context, handle capability.Handle, dirRef string, depth int, opts types.FolderOptions, out *[]FileEntry, isRoot bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = types.DefaultMaxDepth
	}
	if depth > maxDepth {
		return nil
	}

	entries, err := handle.ListEntries(ctx, dirRef)
	if err != nil {
		if errors.Is(err, capability.ErrPermissionDenied) {
			if isRoot {
				return fmt.Errorf("%w: %s", types.ErrAccessDenied, dirRef)
			}
			log.Printf("scanner: permission lost under %q, skipping subtree", dirRef)
			return nil
		}
		if isRoot {
			return fmt.Errorf("%w: list root: %v", types.ErrScanFailed, err)
		}
		// Partial results are acceptable; keep what we have.
		log.Printf("scanner: failed to list %q, skipping subtree: %v", dirRef, err)
		return nil
	}

	for _, entry := range entries {
		switch entry.Kind {
		case capability.KindDirectory:
			if opts.SkipExcludedDirs {
				if _, excluded := excludedDirs[entry.Name]; excluded {
					continue
				}
			}
			if err := s.walk(ctx, handle, entry.Ref, depth+1, opts, out, false); err != nil {
				return err
			}
		case capability.KindFile:
			if !s.acceptFile(entry, opts) {
				continue
			}
			*out = append(*out, FileEntry{
				Path: entry.Ref,
				Name: entry.Name,
				Ref:  entry.Ref,
				Stat: entry.Stat,
			})
		}
	}
	return nil
}

// acceptFile applies the extension and size filters.
func (s *Scanner) acceptFile(entry capability.Entry, opts types.FolderOptions) bool {
	if !opts.IncludeAllFileTypes {
		ext := strings.ToLower(path.Ext(entry.Name))
		if _, ignored := ignoredExtensions[ext]; ignored {
			return false
		}
		if opts.TextFilesOnly && !extractor.IsTextExtension(ext) {
			return false
		}
	}
	maxSize := opts.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = types.DefaultMaxFileSizeBytes
	}
	if entry.Stat.SizeBytes > maxSize {
		return false
	}
	return true
}
