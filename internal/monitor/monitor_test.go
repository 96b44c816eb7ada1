package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimoKiihamaki/cognicore/internal/capability"
	"github.com/SimoKiihamaki/cognicore/internal/embedder"
	"github.com/SimoKiihamaki/cognicore/internal/events"
	"github.com/SimoKiihamaki/cognicore/internal/pipeline"
	"github.com/SimoKiihamaki/cognicore/internal/store"
	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

const testDisplayPath = "/granted/docs"

// fastOptions polls quickly so tests converge in a few hundred ms.
func fastOptions() types.FolderOptions {
	opts := types.DefaultFolderOptions()
	opts.PollIntervalMs = 25
	return opts
}

type fixture struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	bus      *events.Bus
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)

	provider := embedder.NewLocalProvider(embedder.NewCache(1000))
	bus := events.NewBus()
	pipe := pipeline.New(provider, st, bus, pipeline.Config{})
	pipe.Start()

	reg := NewRegistry(st, provider, pipe, bus)
	t.Cleanup(func() {
		reg.Close()
		pipe.Stop()
		bus.Close()
		_ = st.Close()
	})

	return &fixture{store: st, pipeline: pipe, bus: bus, registry: reg}
}

func itemID(rel string) string {
	return types.ItemID(testDisplayPath + "/" + rel)
}

func waitActiveItems(t *testing.T, fx *fixture, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		items, err := fx.store.ActiveItems(context.Background())
		return err == nil && len(items) == want
	}, 5*time.Second, 10*time.Millisecond, "index never reached %d active items", want)
}

func TestIndexModifyDeleteCycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	handle := capability.NewMemHandle()
	handle.WriteFile("a.md", []byte("# Notes about cats"), t0)
	handle.WriteFile("b.txt", []byte("dog facts"), t0)

	sub, cancel := fx.bus.Subscribe()
	defer cancel()

	folder, err := fx.registry.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)
	assert.True(t, folder.IsActive)

	// Both files are picked up by the first scan.
	waitActiveItems(t, fx, 2)

	a, err := fx.store.GetItem(ctx, itemID("a.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Notes about cats", a.TextContent)
	assert.Equal(t, folder.ID, a.FolderID)
	assert.Equal(t, ".md", a.FileExtension)

	indexed := 0
	drainTimeout := time.After(2 * time.Second)
	for indexed < 2 {
		select {
		case ev := <-sub:
			if ev.Kind == events.ItemIndexed {
				indexed++
			}
		case <-drainTimeout:
			t.Fatalf("saw %d ItemIndexed events, want 2", indexed)
		}
	}

	// The pipeline attaches vectors shortly after indexing.
	require.Eventually(t, func() bool {
		a, err := fx.store.GetItem(ctx, itemID("a.md"))
		return err == nil && a.HasVector()
	}, 5*time.Second, 10*time.Millisecond, "vector never attached")

	// Modify a.md: text updates and the vector is recomputed.
	handle.WriteFile("a.md", []byte("# Notes about cats and dogs"), t0.Add(time.Minute))
	require.Eventually(t, func() bool {
		a, err := fx.store.GetItem(ctx, itemID("a.md"))
		return err == nil && a.TextContent == "# Notes about cats and dogs"
	}, 5*time.Second, 10*time.Millisecond, "modification never indexed")

	require.Eventually(t, func() bool {
		a, err := fx.store.GetItem(ctx, itemID("a.md"))
		return err == nil && a.HasVector()
	}, 5*time.Second, 10*time.Millisecond, "vector not recomputed after modification")

	// Delete b.txt: the record survives as soft-deleted.
	handle.RemoveFile("b.txt")
	waitActiveItems(t, fx, 1)

	b, err := fx.store.GetItem(ctx, itemID("b.txt"))
	require.NoError(t, err)
	assert.True(t, b.IsDeleted)
	assert.Equal(t, "dog facts", b.TextContent, "soft-deleted record keeps its content")
}

func TestUnchangedFilesEmitNoUpdates(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	handle := capability.NewMemHandle()
	handle.WriteFile("stable.md", []byte("unchanging"), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	_, err := fx.registry.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)
	waitActiveItems(t, fx, 1)

	require.Eventually(t, func() bool {
		item, err := fx.store.GetItem(ctx, itemID("stable.md"))
		return err == nil && item.HasVector()
	}, 5*time.Second, 10*time.Millisecond)

	item, err := fx.store.GetItem(ctx, itemID("stable.md"))
	require.NoError(t, err)
	revision := item.Revision

	// Several more polls pass; an unchanged file must not be rewritten.
	time.Sleep(200 * time.Millisecond)
	item, err = fx.store.GetItem(ctx, itemID("stable.md"))
	require.NoError(t, err)
	assert.Equal(t, revision, item.Revision, "unchanged file was rewritten")
}

func TestRevokedHandleDeactivatesFolder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	handle := capability.NewMemHandle()
	handle.WriteFile("a.md", []byte("content"), time.Now())

	folder, err := fx.registry.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)
	waitActiveItems(t, fx, 1)

	sub, cancel := fx.bus.Subscribe()
	defer cancel()

	handle.Revoke()

	require.Eventually(t, func() bool {
		got, err := fx.registry.GetFolder(folder.ID)
		return err == nil && !got.IsActive
	}, 5*time.Second, 10*time.Millisecond, "folder stayed active after revocation")

	// The failure surfaces as a scan error event, and the index is intact.
	var sawScanError bool
	deadline := time.After(2 * time.Second)
	for !sawScanError {
		select {
		case ev := <-sub:
			if ev.Kind == events.ScanError && ev.FolderID == folder.ID {
				sawScanError = true
			}
		case <-deadline:
			t.Fatal("no ScanError event after revocation")
		}
	}

	items, err := fx.store.ActiveItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1, "revocation must not drop indexed items")
}

func TestAddFolderDeniedPermission(t *testing.T) {
	fx := newFixture(t)

	handle := capability.NewMemHandle()
	handle.Revoke()

	_, err := fx.registry.AddFolder(context.Background(), testDisplayPath, handle, fastOptions())
	assert.ErrorIs(t, err, types.ErrAccessDenied)
	assert.Empty(t, fx.registry.Folders())
}

func TestRemoveFolderSoftDeletesItems(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	handle := capability.NewMemHandle()
	handle.WriteFile("a.md", []byte("alpha"), time.Now())
	handle.WriteFile("b.md", []byte("beta"), time.Now())

	folder, err := fx.registry.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)
	waitActiveItems(t, fx, 2)

	require.NoError(t, fx.registry.RemoveFolder(ctx, folder.ID))
	assert.Empty(t, fx.registry.Folders())
	assert.ErrorIs(t, fx.registry.RemoveFolder(ctx, folder.ID), ErrFolderNotFound)

	active, err := fx.store.ActiveItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Records survive for undo/audit.
	all, err := fx.store.GetAllItems(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, item := range all {
		assert.True(t, item.IsDeleted)
	}
}

func TestSetFolderOptionsRequiresStopped(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	handle := capability.NewMemHandle()
	handle.WriteFile("a.md", []byte("alpha"), time.Now())

	folder, err := fx.registry.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)

	opts := fastOptions()
	opts.MaxDepth = 2
	assert.ErrorIs(t, fx.registry.SetFolderOptions(ctx, folder.ID, opts), ErrFolderActive)

	require.NoError(t, fx.registry.StopMonitoring(ctx, folder.ID))
	require.NoError(t, fx.registry.SetFolderOptions(ctx, folder.ID, opts))

	got, err := fx.registry.GetFolder(folder.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Options.MaxDepth)
	assert.False(t, got.IsActive)

	require.NoError(t, fx.registry.StartMonitoring(ctx, folder.ID))
	got, err = fx.registry.GetFolder(folder.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestRestoredFoldersComeBackInactive(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "restore.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	provider := embedder.NewLocalProvider(nil)
	ctx := context.Background()

	// First lifetime: a folder is added and indexed.
	bus1 := events.NewBus()
	pipe1 := pipeline.New(provider, st, bus1, pipeline.Config{})
	pipe1.Start()
	reg1 := NewRegistry(st, provider, pipe1, bus1)

	handle := capability.NewMemHandle()
	handle.WriteFile("a.md", []byte("alpha"), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	folder, err := reg1.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items, err := st.ActiveItems(ctx)
		return err == nil && len(items) == 1 && items[0].HasVector()
	}, 5*time.Second, 10*time.Millisecond)

	reg1.Close()
	pipe1.Stop()
	bus1.Close()

	// Second lifetime: the folder is restored without a handle.
	bus2 := events.NewBus()
	pipe2 := pipeline.New(provider, st, bus2, pipeline.Config{})
	pipe2.Start()
	reg2 := NewRegistry(st, provider, pipe2, bus2)
	defer func() {
		reg2.Close()
		pipe2.Stop()
		bus2.Close()
	}()

	require.NoError(t, reg2.LoadFolders(ctx))
	restored, err := reg2.GetFolder(folder.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsActive, "capability handles are never persisted")

	assert.ErrorIs(t, reg2.StartMonitoring(ctx, folder.ID), ErrNoHandle)

	// Re-granting resumes monitoring, and the rebuilt snapshot keeps the
	// unchanged file from being re-indexed.
	item, err := st.GetItem(ctx, itemID("a.md"))
	require.NoError(t, err)
	revision := item.Revision

	require.NoError(t, reg2.AttachHandle(ctx, folder.ID, handle))
	resumed, err := reg2.GetFolder(folder.ID)
	require.NoError(t, err)
	assert.True(t, resumed.IsActive)

	time.Sleep(200 * time.Millisecond)
	item, err = st.GetItem(ctx, itemID("a.md"))
	require.NoError(t, err)
	assert.Equal(t, revision, item.Revision, "unchanged file re-indexed after restore")
}

func TestStats(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	handle := capability.NewMemHandle()
	handle.WriteFile("a.md", []byte("alpha"), time.Now())
	handle.WriteFile("b.md", []byte("beta"), time.Now())
	handle.WriteFile("c.txt", []byte("gamma"), time.Now())

	_, err := fx.registry.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)
	waitActiveItems(t, fx, 3)

	stats, err := fx.registry.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 1, stats.ActiveMonitors)
	assert.Equal(t, 2, stats.FileTypeHistogram[".md"])
	assert.Equal(t, 1, stats.FileTypeHistogram[".txt"])
}

func TestSearchSimilar(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	handle := capability.NewMemHandle()
	handle.WriteFile("a.md", []byte("exact match text"), time.Now())
	handle.WriteFile("b.md", []byte("entirely different"), time.Now())

	_, err := fx.registry.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)
	waitActiveItems(t, fx, 2)

	require.Eventually(t, func() bool {
		items, err := fx.store.ActiveItems(ctx)
		if err != nil {
			return false
		}
		for _, item := range items {
			if !item.HasVector() {
				return false
			}
		}
		return len(items) == 2
	}, 5*time.Second, 10*time.Millisecond, "vectors never attached")

	// The local provider is deterministic, so the identical text scores 1.
	results, err := fx.registry.SearchSimilar(ctx, "exact match text", 0.99, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, itemID("a.md"), results[0].ItemID)

	_, err = fx.registry.SearchSimilar(ctx, "   ", 0, 0)
	assert.Error(t, err)
}

func TestFolderNotFoundErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, fx.registry.StopMonitoring(ctx, "missing"), ErrFolderNotFound)
	assert.ErrorIs(t, fx.registry.StartMonitoring(ctx, "missing"), ErrFolderNotFound)
	_, err := fx.registry.GetFolder("missing")
	assert.ErrorIs(t, err, ErrFolderNotFound)
	assert.True(t, errors.Is(fx.registry.AttachHandle(ctx, "missing", capability.NewMemHandle()), ErrFolderNotFound))
}

// flakyIndexStore fails secondary-index queries on demand while delegating
// everything else to the real store.
type flakyIndexStore struct {
	store.Store
	failQueries atomic.Bool
}

func (s *flakyIndexStore) QueryItemsByIndex(ctx context.Context, name, value string) ([]*types.IndexedItem, error) {
	if s.failQueries.Load() {
		return nil, errors.New("index query failed")
	}
	return s.Store.QueryItemsByIndex(ctx, name, value)
}

func TestStartMonitoringRebuildFailureLeavesFolderInactive(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	flaky := &flakyIndexStore{Store: st}

	provider := embedder.NewLocalProvider(embedder.NewCache(1000))
	bus := events.NewBus()
	pipe := pipeline.New(provider, flaky, bus, pipeline.Config{})
	pipe.Start()
	reg := NewRegistry(flaky, provider, pipe, bus)
	t.Cleanup(func() {
		reg.Close()
		pipe.Stop()
		bus.Close()
		_ = st.Close()
	})
	ctx := context.Background()

	handle := capability.NewMemHandle()
	handle.WriteFile("a.md", []byte("alpha"), time.Now())
	folder, err := reg.AddFolder(ctx, testDisplayPath, handle, fastOptions())
	require.NoError(t, err)
	require.NoError(t, reg.StopMonitoring(ctx, folder.ID))

	flaky.failQueries.Store(true)
	require.Error(t, reg.StartMonitoring(ctx, folder.ID))

	got, err := reg.GetFolder(folder.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive, "failed snapshot rebuild must leave the folder inactive")

	// Once the index answers again, the folder starts normally.
	flaky.failQueries.Store(false)
	require.NoError(t, reg.StartMonitoring(ctx, folder.ID))
	got, err = reg.GetFolder(folder.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}
