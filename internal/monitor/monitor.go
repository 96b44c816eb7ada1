// Package monitor owns the monitored-folder registry: folder lifecycle,
// the scan cycle wiring scanner -> detector -> extractor -> pipeline, and
// stats aggregation. It is an explicitly constructed instance holding
// injected collaborators, so tests build independent registries.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SimoKiihamaki/cognicore/internal/capability"
	"github.com/SimoKiihamaki/cognicore/internal/detector"
	"github.com/SimoKiihamaki/cognicore/internal/embedder"
	"github.com/SimoKiihamaki/cognicore/internal/events"
	"github.com/SimoKiihamaki/cognicore/internal/pipeline"
	"github.com/SimoKiihamaki/cognicore/internal/scanner"
	"github.com/SimoKiihamaki/cognicore/internal/scheduler"
	"github.com/SimoKiihamaki/cognicore/internal/similarity"
	"github.com/SimoKiihamaki/cognicore/internal/store"
	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// Registry errors.
var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrFolderActive   = errors.New("folder is active; stop monitoring before mutating its options")
	ErrNoHandle       = errors.New("folder has no capability handle; re-grant access to resume monitoring")
)

// deltaWorkers bounds concurrent content reads while applying one scan's
// deltas. Scans for a single folder remain strictly sequential.
const deltaWorkers = 4

// Registry is the top-level owner of all monitored folders.
type Registry struct {
	store    store.Store
	provider embedder.Provider
	pipeline *pipeline.Pipeline
	scanner  *scanner.Scanner
	bus      *events.Bus

	mu      sync.RWMutex
	folders map[string]*folderState
}

// folderState is the in-memory side of one monitored folder.
type folderState struct {
	mu       sync.Mutex
	folder   *types.MonitoredFolder
	handle   capability.Handle // nil until (re-)granted
	sched    *scheduler.PollingScheduler
	snapshot detector.Snapshot
}

// NewRegistry creates a registry over the given collaborators. The
// pipeline must already be started by the caller.
func NewRegistry(st store.Store, provider embedder.Provider, pipe *pipeline.Pipeline, bus *events.Bus) *Registry {
	return &Registry{
		store:    st,
		provider: provider,
		pipeline: pipe,
		scanner:  scanner.New(),
		bus:      bus,
		folders:  make(map[string]*folderState),
	}
}

// LoadFolders restores persisted folders. Capability handles are never
// persisted, so restored folders come back inactive until AttachHandle
// re-grants access.
func (r *Registry) LoadFolders(ctx context.Context) error {
	persisted, err := r.store.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("load folders: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, folder := range persisted {
		if folder.IsActive {
			folder.IsActive = false
			if err := r.store.UpdateFolder(ctx, folder); err != nil {
				return fmt.Errorf("deactivate restored folder %s: %w", folder.ID, err)
			}
		}
		r.folders[folder.ID] = &folderState{folder: folder}
	}
	return nil
}

// AddFolder registers a new directory tree for monitoring and starts its
// polling loop immediately.
func (r *Registry) AddFolder(ctx context.Context, displayPath string, handle capability.Handle, opts types.FolderOptions) (*types.MonitoredFolder, error) {
	if handle == nil {
		return nil, ErrNoHandle
	}
	if err := handle.RequestPermission(ctx, capability.ModeRead); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAccessDenied, err)
	}

	folder := &types.MonitoredFolder{
		ID:          uuid.NewString(),
		DisplayPath: displayPath,
		IsActive:    true,
		Options:     opts,
	}
	if err := r.store.AddFolder(ctx, folder); err != nil {
		return nil, err
	}

	fs := &folderState{folder: folder, handle: handle, snapshot: detector.Snapshot{}}
	fs.sched = r.newScheduler(fs)

	r.mu.Lock()
	r.folders[folder.ID] = fs
	r.mu.Unlock()

	fs.sched.Start()
	return folder, nil
}

// AttachHandle re-grants access to a restored folder and resumes
// monitoring.
func (r *Registry) AttachHandle(ctx context.Context, folderID string, handle capability.Handle) error {
	if handle == nil {
		return ErrNoHandle
	}
	fs, err := r.folderState(folderID)
	if err != nil {
		return err
	}
	if err := handle.RequestPermission(ctx, capability.ModeRead); err != nil {
		return fmt.Errorf("%w: %v", types.ErrAccessDenied, err)
	}

	fs.mu.Lock()
	fs.handle = handle
	fs.mu.Unlock()
	return r.StartMonitoring(ctx, folderID)
}

// RemoveFolder stops monitoring and destroys the folder record. Indexed
// items under it are soft-deleted, never physically removed.
func (r *Registry) RemoveFolder(ctx context.Context, folderID string) error {
	r.mu.Lock()
	fs, ok := r.folders[folderID]
	if ok {
		delete(r.folders, folderID)
	}
	r.mu.Unlock()
	if !ok {
		return ErrFolderNotFound
	}

	if fs.sched != nil {
		fs.sched.Stop()
	}

	items, err := r.store.QueryItemsByIndex(ctx, store.IndexFolderID, folderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := r.softDeleteItem(ctx, item.ID); err != nil {
			log.Printf("monitor: soft-delete %s on folder removal: %v", item.ID, err)
		}
	}

	if err := r.store.DeleteFolder(ctx, folderID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	r.publishStats(ctx)
	return nil
}

// StopMonitoring halts a folder's polling loop. Timers are released
// synchronously; an in-flight scan discards its results.
func (r *Registry) StopMonitoring(ctx context.Context, folderID string) error {
	fs, err := r.folderState(folderID)
	if err != nil {
		return err
	}

	if fs.sched != nil {
		fs.sched.Stop()
	}

	fs.mu.Lock()
	fs.folder.IsActive = false
	folder := *fs.folder
	fs.mu.Unlock()

	if err := r.store.UpdateFolder(ctx, &folder); err != nil {
		return err
	}
	r.publishStats(ctx)
	return nil
}

// StartMonitoring (re)starts a folder's polling loop. The scan snapshot is
// rebuilt from the index so unchanged files do not re-emit deltas.
func (r *Registry) StartMonitoring(ctx context.Context, folderID string) error {
	fs, err := r.folderState(folderID)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	if fs.handle == nil {
		fs.mu.Unlock()
		return ErrNoHandle
	}
	folder := *fs.folder
	fs.mu.Unlock()

	// Rebuild before flipping IsActive so a failed rebuild leaves the
	// folder inactive instead of active with no scheduler running.
	snapshot, err := r.rebuildSnapshot(ctx, &folder)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	fs.folder.IsActive = true
	fs.folder.ConsecutiveErrors = 0
	fs.folder.LastError = ""
	fs.snapshot = snapshot
	if fs.sched == nil {
		fs.sched = r.newScheduler(fs)
	}
	sched := fs.sched
	folder = *fs.folder
	fs.mu.Unlock()

	if err := r.store.UpdateFolder(ctx, &folder); err != nil {
		return err
	}
	sched.Start()
	r.publishStats(ctx)
	return nil
}

// SetFolderOptions mutates a folder's configuration. Only inactive folders
// may be reconfigured; callers stop, apply, and restart.
func (r *Registry) SetFolderOptions(ctx context.Context, folderID string, opts types.FolderOptions) error {
	fs, err := r.folderState(folderID)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	if fs.folder.IsActive {
		fs.mu.Unlock()
		return ErrFolderActive
	}
	fs.folder.Options = opts
	// Interval may have changed; the next Start builds a fresh scheduler.
	fs.sched = nil
	folder := *fs.folder
	fs.mu.Unlock()

	return r.store.UpdateFolder(ctx, &folder)
}

// Folders returns a copy of all registered folder records.
func (r *Registry) Folders() []*types.MonitoredFolder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.MonitoredFolder, 0, len(r.folders))
	for _, fs := range r.folders {
		fs.mu.Lock()
		folder := *fs.folder
		fs.mu.Unlock()
		out = append(out, &folder)
	}
	return out
}

// GetFolder returns a copy of one folder record.
func (r *Registry) GetFolder(folderID string) (*types.MonitoredFolder, error) {
	fs, err := r.folderState(folderID)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	folder := *fs.folder
	return &folder, nil
}

// Close stops every folder loop. The pipeline and store are closed by
// their owner.
func (r *Registry) Close() {
	r.mu.Lock()
	states := make([]*folderState, 0, len(r.folders))
	for _, fs := range r.folders {
		states = append(states, fs)
	}
	r.mu.Unlock()

	for _, fs := range states {
		if fs.sched != nil {
			fs.sched.Stop()
			fs.sched.Wait()
		}
	}
}

// Stats recomputes the aggregate view from the index.
func (r *Registry) Stats(ctx context.Context) (*types.MonitoringStats, error) {
	items, err := r.store.ActiveItems(ctx)
	if err != nil {
		return nil, err
	}

	stats := &types.MonitoringStats{
		TotalFiles:        len(items),
		FileTypeHistogram: make(map[string]int),
	}
	for _, item := range items {
		ext := item.FileExtension
		if ext == "" {
			ext = "(none)"
		}
		stats.FileTypeHistogram[ext]++
	}

	r.mu.RLock()
	for _, fs := range r.folders {
		fs.mu.Lock()
		if fs.folder.IsActive {
			stats.ActiveMonitors++
		}
		if fs.folder.LastScanTime.After(stats.LastScanTime) {
			stats.LastScanTime = fs.folder.LastScanTime
		}
		fs.mu.Unlock()
	}
	r.mu.RUnlock()

	return stats, nil
}

// SearchSimilar embeds the query text and ranks all embedded, non-deleted
// items against it.
func (r *Registry) SearchSimilar(ctx context.Context, query string, threshold float64, maxResults int) ([]types.SimilarityResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", embedder.ErrInvalidInput)
	}
	vectors, err := r.provider.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	items, err := r.store.ActiveItems(ctx)
	if err != nil {
		return nil, err
	}
	return similarity.FindSimilar(vectors[0], items, threshold, maxResults), nil
}

// SuggestOrganization proposes folder moves for embedded items whose
// vectors sit closer to another folder's centroid.
func (r *Registry) SuggestOrganization(ctx context.Context, threshold float64) ([]types.OrganizationSuggestion, error) {
	items, err := r.store.ActiveItems(ctx)
	if err != nil {
		return nil, err
	}
	return similarity.SuggestOrganization(items, threshold), nil
}

// folderState looks up the live state for a folder ID.
func (r *Registry) folderState(folderID string) (*folderState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fs, ok := r.folders[folderID]
	if !ok {
		return nil, ErrFolderNotFound
	}
	return fs, nil
}

// newScheduler builds the polling loop for one folder.
func (r *Registry) newScheduler(fs *folderState) *scheduler.PollingScheduler {
	fs.folder.Options = normalizeOptions(fs.folder.Options)
	return scheduler.New(fs.folder.Options.PollInterval(), func(ctx context.Context) error {
		return r.runScan(ctx, fs)
	})
}

func normalizeOptions(opts types.FolderOptions) types.FolderOptions {
	defaults := types.DefaultFolderOptions()
	if opts.PollIntervalMs <= 0 {
		opts.PollIntervalMs = defaults.PollIntervalMs
	}
	if opts.MaxFileSizeBytes <= 0 {
		opts.MaxFileSizeBytes = defaults.MaxFileSizeBytes
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaults.MaxDepth
	}
	return opts
}

// rebuildSnapshot reconstructs the last-known state from persisted items.
func (r *Registry) rebuildSnapshot(ctx context.Context, folder *types.MonitoredFolder) (detector.Snapshot, error) {
	items, err := r.store.QueryItemsByIndex(ctx, store.IndexFolderID, folder.ID)
	if err != nil {
		return nil, err
	}
	snapshot := make(detector.Snapshot, len(items))
	for _, item := range items {
		rel := relativePath(folder.DisplayPath, item.Filepath)
		snapshot[rel] = types.FileStat{ModTime: item.LastModified, SizeBytes: item.SizeBytes}
	}
	return snapshot, nil
}

// itemPath joins the folder's display path with a scan-relative path to
// form the item's stable, globally unique file path.
func itemPath(displayPath, relPath string) string {
	return strings.TrimRight(displayPath, "/") + "/" + relPath
}

func relativePath(displayPath, fullPath string) string {
	return strings.TrimPrefix(fullPath, strings.TrimRight(displayPath, "/")+"/")
}

// extOf returns the lowercase extension of a file name.
func extOf(name string) string {
	return strings.ToLower(path.Ext(name))
}

// now is swappable in tests.
var now = time.Now
