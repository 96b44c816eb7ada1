package capability

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// MemHandle is an in-memory Handle used by tests and by hosts that stage
// content outside a real file system. Refs are slash-separated relative
// paths. All methods are safe for concurrent use.
type MemHandle struct {
	mu      sync.RWMutex
	files   map[string]memFile // ref -> file
	revoked bool
	failDir map[string]error // dirRef -> forced listing error
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMemHandle creates an empty in-memory handle.
func NewMemHandle() *MemHandle {
	return &MemHandle{
		files:   make(map[string]memFile),
		failDir: make(map[string]error),
	}
}

// WriteFile creates or replaces a file. Parent directories are implicit.
func (h *MemHandle) WriteFile(ref string, data []byte, modTime time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[ref] = memFile{data: data, modTime: modTime}
}

// RemoveFile deletes a file if present.
func (h *MemHandle) RemoveFile(ref string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.files, ref)
}

// Revoke simulates the platform withdrawing the grant. All subsequent
// operations fail with ErrPermissionDenied until Restore is called.
func (h *MemHandle) Revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revoked = true
}

// Restore re-grants a revoked handle.
func (h *MemHandle) Restore() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.revoked = false
}

// FailDir forces ListEntries on dirRef to return err, simulating a subtree
// that became unreadable mid-walk. Pass nil to clear.
func (h *MemHandle) FailDir(dirRef string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.failDir, dirRef)
		return
	}
	h.failDir[dirRef] = err
}

// ListEntries lists immediate children of dirRef.
func (h *MemHandle) ListEntries(ctx context.Context, dirRef string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.revoked {
		return nil, ErrPermissionDenied
	}
	if err, ok := h.failDir[dirRef]; ok {
		return nil, err
	}

	prefix := ""
	if dirRef != "" {
		prefix = dirRef + "/"
	}

	seen := make(map[string]Entry)
	for ref, f := range h.files {
		if !strings.HasPrefix(ref, prefix) {
			continue
		}
		rest := strings.TrimPrefix(ref, prefix)
		if rest == "" {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			// Child directory implied by a deeper file.
			name := rest[:i]
			seen[name] = Entry{Name: name, Kind: KindDirectory, Ref: prefix + name}
			continue
		}
		seen[rest] = Entry{
			Name: rest,
			Kind: KindFile,
			Ref:  ref,
			Stat: types.FileStat{ModTime: f.modTime, SizeBytes: int64(len(f.data))},
		}
	}

	entries := make([]Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// ReadFile returns the bytes of fileRef.
func (h *MemHandle) ReadFile(ctx context.Context, fileRef string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.revoked {
		return nil, ErrPermissionDenied
	}
	f, ok := h.files[fileRef]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

// RequestPermission reports whether the grant is still live.
func (h *MemHandle) RequestPermission(ctx context.Context, mode PermissionMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.revoked {
		return ErrPermissionDenied
	}
	return nil
}
