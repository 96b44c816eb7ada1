package capability

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// OSHandle implements Handle over a local directory. Refs are paths
// relative to the granted root; anything escaping the root is rejected.
type OSHandle struct {
	root string
}

// NewOSHandle grants access to the directory at root. The directory must
// exist and be readable at grant time.
func NewOSHandle(root string) (*OSHandle, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", abs)
	}
	return &OSHandle{root: abs}, nil
}

// Root returns the granted directory path.
func (h *OSHandle) Root() string {
	return h.root
}

// resolve maps a ref to an absolute path, rejecting escapes from the root.
func (h *OSHandle) resolve(ref string) (string, error) {
	if ref == "" {
		return h.root, nil
	}
	p := filepath.Join(h.root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(h.root, p)
	if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", ErrPermissionDenied
	}
	return p, nil
}

// ListEntries lists the immediate children of dirRef.
func (h *OSHandle) ListEntries(ctx context.Context, dirRef string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := h.resolve(dirRef)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("list %s: %w", dirRef, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		ref := de.Name()
		if dirRef != "" {
			ref = dirRef + "/" + de.Name()
		}
		entry := Entry{Name: de.Name(), Ref: ref}
		if de.IsDir() {
			entry.Kind = KindDirectory
		} else {
			entry.Kind = KindFile
			info, err := de.Info()
			if err != nil {
				// Entry vanished between ReadDir and Info; skip it.
				continue
			}
			entry.Stat = types.FileStat{ModTime: info.ModTime(), SizeBytes: info.Size()}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ReadFile returns the raw bytes of fileRef.
func (h *OSHandle) ReadFile(ctx context.Context, fileRef string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := h.resolve(fileRef)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", fileRef, err)
	}
	return data, nil
}

// RequestPermission re-confirms access to the root. Local directories only
// support confirming readability; write mode additionally checks for a
// writable root.
func (h *OSHandle) RequestPermission(ctx context.Context, mode PermissionMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(h.root)
	if err != nil {
		return ErrPermissionDenied
	}
	_ = f.Close()
	if mode == ModeReadWrite {
		probe, err := os.CreateTemp(h.root, ".cognicore-probe-*")
		if err != nil {
			return ErrPermissionDenied
		}
		name := probe.Name()
		_ = probe.Close()
		_ = os.Remove(name)
	}
	return nil
}
