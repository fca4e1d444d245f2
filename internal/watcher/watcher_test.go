package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (f *fakeIndexer) IndexFile(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, path)
	return nil
}

func (f *fakeIndexer) RemovePath(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeIndexer) snapshot() (indexed, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.indexed...), append([]string(nil), f.removed...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWatcher_IndexesCreatedFile(t *testing.T) {
	root := t.TempDir()
	indexer := &fakeIndexer{}
	w, err := New(root, indexer, 20*time.Millisecond, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.AddRecursive())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx) //nolint:errcheck

	path := filepath.Join(root, "new.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	require.Eventually(t, func() bool {
		indexed, _ := indexer.snapshot()
		return len(indexed) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestWatcher_DebouncesRepeatedWrites(t *testing.T) {
	root := t.TempDir()
	indexer := &fakeIndexer{}
	w, err := New(root, indexer, 50*time.Millisecond, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.AddRecursive())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx) //nolint:errcheck

	path := filepath.Join(root, "burst.jpg")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	indexed, _ := indexer.snapshot()
	assert.Len(t, indexed, 1, "a burst of writes to the same path within the debounce window should index once")
}

func TestWatcher_RemovesDeletedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	indexer := &fakeIndexer{}
	w, err := New(root, indexer, 20*time.Millisecond, testLogger())
	require.NoError(t, err)
	require.NoError(t, w.AddRecursive())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx) //nolint:errcheck

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		_, removed := indexer.snapshot()
		return len(removed) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestNew_DefaultsDebounceWhenZero(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, &fakeIndexer{}, 0, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, w.debounce)
	require.NoError(t, w.Close())
}
