package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SimoKiihamaki/cognicore/internal/capability"
	"github.com/SimoKiihamaki/cognicore/pkg/types"
)

func scanPaths(t *testing.T, handle capability.Handle, opts types.FolderOptions) map[string]bool {
	t.Helper()
	entries, err := New().Scan(context.Background(), handle, opts)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	paths := make(map[string]bool, len(entries))
	for _, e := range entries {
		paths[e.Path] = true
	}
	return paths
}

func defaultOpts() types.FolderOptions {
	return types.DefaultFolderOptions()
}

func TestScanWalksSubdirectories(t *testing.T) {
	h := capability.NewMemHandle()
	now := time.Now()
	h.WriteFile("a.md", []byte("a"), now)
	h.WriteFile("sub/b.md", []byte("b"), now)
	h.WriteFile("sub/deep/c.md", []byte("c"), now)

	paths := scanPaths(t, h, defaultOpts())
	for _, want := range []string{"a.md", "sub/b.md", "sub/deep/c.md"} {
		if !paths[want] {
			t.Errorf("missing %q in scan results", want)
		}
	}
}

func TestScanSkipsExcludedDirs(t *testing.T) {
	h := capability.NewMemHandle()
	now := time.Now()
	h.WriteFile("keep.md", []byte("x"), now)
	h.WriteFile(".git/config.txt", []byte("x"), now)
	h.WriteFile("node_modules/pkg/index.js", []byte("x"), now)

	paths := scanPaths(t, h, defaultOpts())
	if len(paths) != 1 || !paths["keep.md"] {
		t.Errorf("scan results = %v, want only keep.md", paths)
	}

	// With the skip disabled, excluded directories are walked.
	opts := defaultOpts()
	opts.SkipExcludedDirs = false
	paths = scanPaths(t, h, opts)
	if !paths[".git/config.txt"] || !paths["node_modules/pkg/index.js"] {
		t.Errorf("scan results = %v, want excluded dirs included", paths)
	}
}

func TestScanExtensionFilters(t *testing.T) {
	h := capability.NewMemHandle()
	now := time.Now()
	h.WriteFile("doc.md", []byte("x"), now)
	h.WriteFile("image.png", []byte("x"), now)
	h.WriteFile("unknown.xyz", []byte("x"), now)

	t.Run("text files only", func(t *testing.T) {
		paths := scanPaths(t, h, defaultOpts())
		if len(paths) != 1 || !paths["doc.md"] {
			t.Errorf("scan results = %v, want only doc.md", paths)
		}
	})

	t.Run("any extension except ignored binaries", func(t *testing.T) {
		opts := defaultOpts()
		opts.TextFilesOnly = false
		paths := scanPaths(t, h, opts)
		if !paths["doc.md"] || !paths["unknown.xyz"] {
			t.Errorf("scan results = %v, want doc.md and unknown.xyz", paths)
		}
		if paths["image.png"] {
			t.Error("ignored binary extension was scanned")
		}
	})

	t.Run("include all file types", func(t *testing.T) {
		opts := defaultOpts()
		opts.IncludeAllFileTypes = true
		paths := scanPaths(t, h, opts)
		if len(paths) != 3 {
			t.Errorf("scan results = %v, want all 3 files", paths)
		}
	})
}

func TestScanMaxFileSize(t *testing.T) {
	h := capability.NewMemHandle()
	now := time.Now()
	h.WriteFile("small.md", []byte("ok"), now)
	h.WriteFile("big.md", make([]byte, 100), now)

	opts := defaultOpts()
	opts.MaxFileSizeBytes = 50
	paths := scanPaths(t, h, opts)
	if !paths["small.md"] || paths["big.md"] {
		t.Errorf("scan results = %v, want only small.md", paths)
	}
}

func TestScanMaxDepth(t *testing.T) {
	h := capability.NewMemHandle()
	now := time.Now()
	h.WriteFile("top.md", []byte("x"), now)
	h.WriteFile("l1/mid.md", []byte("x"), now)
	h.WriteFile("l1/l2/deep.md", []byte("x"), now)

	opts := defaultOpts()
	opts.MaxDepth = 1
	paths := scanPaths(t, h, opts)
	if !paths["top.md"] || !paths["l1/mid.md"] {
		t.Errorf("scan results = %v, want top.md and l1/mid.md", paths)
	}
	if paths["l1/l2/deep.md"] {
		t.Error("file beyond MaxDepth was scanned")
	}
}

func TestScanPartialFailure(t *testing.T) {
	h := capability.NewMemHandle()
	now := time.Now()
	h.WriteFile("good.md", []byte("x"), now)
	h.WriteFile("broken/lost.md", []byte("x"), now)
	h.FailDir("broken", errors.New("disk error"))

	// A failed subtree is skipped; the rest of the scan survives.
	paths := scanPaths(t, h, defaultOpts())
	if !paths["good.md"] {
		t.Error("good.md missing after partial failure")
	}
	if paths["broken/lost.md"] {
		t.Error("file under failed subtree reported")
	}
}

func TestScanRevokedRootFails(t *testing.T) {
	h := capability.NewMemHandle()
	h.WriteFile("a.md", []byte("x"), time.Now())
	h.Revoke()

	_, err := New().Scan(context.Background(), h, defaultOpts())
	if !errors.Is(err, types.ErrAccessDenied) {
		t.Errorf("Scan() error = %v, want %v", err, types.ErrAccessDenied)
	}
}

func TestScanRootListingError(t *testing.T) {
	h := capability.NewMemHandle()
	h.WriteFile("a.md", []byte("x"), time.Now())
	h.FailDir("", errors.New("io failure"))

	_, err := New().Scan(context.Background(), h, defaultOpts())
	if !errors.Is(err, types.ErrScanFailed) {
		t.Errorf("Scan() error = %v, want %v", err, types.ErrScanFailed)
	}
}

func TestScanCancelledContext(t *testing.T) {
	h := capability.NewMemHandle()
	h.WriteFile("a.md", []byte("x"), time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Scan(ctx, h, defaultOpts()); err == nil {
		t.Error("Scan() with cancelled context should fail")
	}
}
