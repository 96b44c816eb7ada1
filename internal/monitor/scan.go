package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/SimoKiihamaki/cognicore/internal/capability"
	"github.com/SimoKiihamaki/cognicore/internal/detector"
	"github.com/SimoKiihamaki/cognicore/internal/events"
	"github.com/SimoKiihamaki/cognicore/internal/extractor"
	"github.com/SimoKiihamaki/cognicore/internal/store"
	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

// casRetries bounds re-reads when an item update loses a revision race
// with the embedding pipeline.
const casRetries = 3

// runScan is one full scan cycle for a folder: enumerate, diff, apply
// deltas, swap the snapshot, persist folder state, publish stats.
func (r *Registry) runScan(ctx context.Context, fs *folderState) error {
	fs.mu.Lock()
	if !fs.folder.IsActive || fs.handle == nil {
		fs.mu.Unlock()
		return nil
	}
	handle := fs.handle
	folder := *fs.folder
	snapshot := fs.snapshot.Clone()
	fs.mu.Unlock()

	entries, err := r.scanner.Scan(ctx, handle, folder.Options)
	if err != nil {
		if errors.Is(err, types.ErrAccessDenied) {
			r.deactivate(ctx, fs, err)
			return nil // already handled; no backoff retry for revoked grants
		}
		r.recordScanFailure(ctx, fs, err)
		return fmt.Errorf("%w: %v", types.ErrScanFailed, err)
	}

	changes := detector.Diff(entries, snapshot)

	// The folder may have been removed while the scan ran; if so the
	// results are discarded wholesale.
	if !r.stillRegistered(fs) {
		return nil
	}

	if err := r.applyChanges(ctx, fs, &folder, changes); err != nil {
		if errors.Is(err, types.ErrAccessDenied) {
			r.deactivate(ctx, fs, err)
			return nil
		}
		r.recordScanFailure(ctx, fs, err)
		return fmt.Errorf("%w: %v", types.ErrScanFailed, err)
	}

	// Only now does the snapshot advance: a scan's deltas are fully
	// applied before the next scan can start.
	fs.mu.Lock()
	fs.snapshot = detector.Apply(entries)
	fs.folder.ConsecutiveErrors = 0
	fs.folder.LastError = ""
	fs.folder.LastScanTime = now()
	updated := *fs.folder
	fs.mu.Unlock()

	if err := r.store.UpdateFolder(ctx, &updated); err != nil {
		log.Printf("monitor: persist folder %s after scan: %v", updated.ID, err)
	}

	if !changes.Empty() {
		r.publishStats(ctx)
	}
	return nil
}

// applyChanges indexes changed entries and soft-deletes removed ones.
// Content reads run with bounded concurrency; one failed entry does not
// abort the rest unless access itself was revoked.
func (r *Registry) applyChanges(ctx context.Context, fs *folderState, folder *types.MonitoredFolder, changes detector.Changes) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deltaWorkers)

	for _, delta := range changes.Changed {
		g.Go(func() error {
			return r.applyChanged(gctx, fs, folder, delta)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, delta := range changes.Deleted {
		id := types.ItemID(itemPath(folder.DisplayPath, delta.Path))
		if err := r.softDeleteItem(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("monitor: soft-delete %s: %v", delta.Path, err)
		}
	}
	return nil
}

// applyChanged indexes one added or modified file.
func (r *Registry) applyChanged(ctx context.Context, fs *folderState, folder *types.MonitoredFolder, delta types.Delta) error {
	fs.mu.Lock()
	handle := fs.handle
	fs.mu.Unlock()
	if handle == nil {
		return nil
	}

	data, err := handle.ReadFile(ctx, delta.Path)
	if err != nil {
		if errors.Is(err, capability.ErrPermissionDenied) {
			return fmt.Errorf("%w: read %s", types.ErrAccessDenied, delta.Path)
		}
		if errors.Is(err, capability.ErrNotFound) {
			// Deleted between listing and read; the next scan emits the
			// deleted delta.
			return nil
		}
		return fmt.Errorf("read %s: %w", delta.Path, err)
	}

	fullPath := itemPath(folder.DisplayPath, delta.Path)
	ext := extOf(delta.Name)
	text, supported := extractor.Extract(data, ext)

	id := types.ItemID(fullPath)
	_, err = r.store.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		item := &types.IndexedItem{
			ID:            id,
			FolderID:      folder.ID,
			Filename:      delta.Name,
			Filepath:      fullPath,
			FileExtension: ext,
			LastModified:  delta.Stat.ModTime,
			SizeBytes:     delta.Stat.SizeBytes,
			TextContent:   text,
		}
		if err := r.store.AddItem(ctx, item); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				// Raced with another producer; fall through to update.
				return r.updateExisting(ctx, id, delta, text, supported)
			}
			return err
		}
		r.bus.Publish(events.Event{Kind: events.ItemIndexed, Item: item})
		if supported && text != "" {
			r.pipeline.Enqueue(id, text)
		}
		return nil
	}
	if err != nil {
		return err
	}
	return r.updateExisting(ctx, id, delta, text, supported)
}

// updateExisting applies a content/metadata change to an already-indexed
// item with compare-and-update semantics. A content change clears the
// stored vector in the same write that updates the text, so no reader ever
// observes a stale vector.
func (r *Registry) updateExisting(ctx context.Context, id string, delta types.Delta, text string, supported bool) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		item, err := r.store.GetItem(ctx, id)
		if err != nil {
			return err
		}

		textChanged := item.TextContent != text
		revived := item.IsDeleted

		upd := store.ItemUpdate{
			LastModified: &delta.Stat.ModTime,
			SizeBytes:    &delta.Stat.SizeBytes,
		}
		if textChanged {
			upd.TextContent = &text
			upd.ClearVector = true
		}
		if revived {
			notDeleted := false
			upd.IsDeleted = &notDeleted
		}

		updated, err := r.store.UpdateItem(ctx, id, item.Revision, upd)
		if err == nil {
			r.bus.Publish(events.Event{Kind: events.ItemUpdated, Item: updated})
			if (textChanged || (revived && !updated.HasVector())) && supported && text != "" {
				r.pipeline.Enqueue(id, text)
			}
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		// Lost a revision race (embedding completion, most likely);
		// re-read and retry.
	}
	return fmt.Errorf("update %s: %w", id, store.ErrConflict)
}

// softDeleteItem marks an item deleted, retaining the record for
// undo/audit.
func (r *Registry) softDeleteItem(ctx context.Context, id string) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		item, err := r.store.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item.IsDeleted {
			return nil
		}
		deleted := true
		if _, err := r.store.UpdateItem(ctx, id, item.Revision, store.ItemUpdate{IsDeleted: &deleted}); err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			return err
		}
		r.bus.Publish(events.Event{Kind: events.ItemDeleted, ItemID: id})
		return nil
	}
	return fmt.Errorf("soft-delete %s: %w", id, store.ErrConflict)
}

// deactivate handles a revoked grant: the folder goes inactive and is not
// retried in a tight loop; the failure surfaces once as a scan error.
func (r *Registry) deactivate(ctx context.Context, fs *folderState, cause error) {
	fs.mu.Lock()
	fs.folder.IsActive = false
	fs.folder.LastError = cause.Error()
	folder := *fs.folder
	sched := fs.sched
	fs.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	if err := r.store.UpdateFolder(ctx, &folder); err != nil {
		log.Printf("monitor: persist deactivated folder %s: %v", folder.ID, err)
	}

	r.bus.Publish(events.Event{
		Kind:     events.ScanError,
		FolderID: folder.ID,
		Err:      cause.Error(),
	})
	r.publishStats(ctx)
}

// recordScanFailure mirrors a transient failure onto the folder record.
// Backoff itself is the scheduler's job.
func (r *Registry) recordScanFailure(ctx context.Context, fs *folderState, cause error) {
	fs.mu.Lock()
	fs.folder.ConsecutiveErrors++
	fs.folder.LastError = cause.Error()
	folder := *fs.folder
	fs.mu.Unlock()

	if err := r.store.UpdateFolder(ctx, &folder); err != nil {
		log.Printf("monitor: persist folder %s after failure: %v", folder.ID, err)
	}
	r.bus.Publish(events.Event{
		Kind:     events.ScanError,
		FolderID: folder.ID,
		Err:      cause.Error(),
	})
}

// stillRegistered reports whether fs is still the live state for its
// folder ID.
func (r *Registry) stillRegistered(fs *folderState) bool {
	fs.mu.Lock()
	id := fs.folder.ID
	fs.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.folders[id] == fs
}

// publishStats recomputes and broadcasts the aggregate stats.
func (r *Registry) publishStats(ctx context.Context) {
	stats, err := r.Stats(ctx)
	if err != nil {
		log.Printf("monitor: recompute stats: %v", err)
		return
	}
	r.bus.Publish(events.Event{Kind: events.StatsUpdated, Stats: stats})
}
