package discovery

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

type fakeItemStore struct {
	byKey     map[string]*models.Item
	byPath    map[string]string // path -> key
	isPrimary map[string]bool   // "key/path" -> isPrimary
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{
		byKey:     map[string]*models.Item{},
		byPath:    map[string]string{},
		isPrimary: map[string]bool{},
	}
}

func (f *fakeItemStore) GetByKey(_ context.Context, key string) (*models.Item, error) {
	return f.byKey[key], nil
}

func (f *fakeItemStore) FindByPath(_ context.Context, path string) (*models.ItemPath, *models.Item, error) {
	key, ok := f.byPath[path]
	if !ok {
		return nil, nil, nil
	}
	item := f.byKey[key]
	if item == nil {
		return nil, nil, nil
	}
	return &models.ItemPath{ItemKey: key, Path: path, IsPrimary: f.isPrimary[key+"/"+path]}, item, nil
}

func (f *fakeItemStore) AddPath(_ context.Context, key, path string, isPrimary bool) error {
	f.byPath[path] = key
	f.isPrimary[key+"/"+path] = isPrimary
	return nil
}

func (f *fakeItemStore) RepointPrimaryPath(_ context.Context, key, newPath string) error {
	item := f.byKey[key]
	if item == nil {
		return nil
	}
	item.PrimaryPath = newPath
	return nil
}

func (f *fakeItemStore) Upsert(_ context.Context, item *models.Item) error {
	f.byKey[item.ItemKey] = item
	return nil
}

func (f *fakeItemStore) AllPaths(_ context.Context) ([]models.ItemPath, error) {
	var out []models.ItemPath
	for path, key := range f.byPath {
		out = append(out, models.ItemPath{ItemKey: key, Path: path, IsPrimary: f.isPrimary[key+"/"+path]})
	}
	return out, nil
}

func (f *fakeItemStore) DeletePath(_ context.Context, key, path string) error {
	delete(f.byPath, path)
	delete(f.isPrimary, key+"/"+path)
	return nil
}

type fakeAdmitter struct {
	admitted []string
}

func (a *fakeAdmitter) AddFile(key, path string) pipeline.AdmitOutcome {
	a.admitted = append(a.admitted, key+"|"+path)
	return pipeline.Accepted
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScanner_IndexesNewFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "photo.jpg"), []byte("some jpeg bytes"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 10, testLogger())

	stats, err := scanner.Scan(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.New)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 0, stats.Skipped)
	assert.Len(t, admitter.admitted, 1)
	assert.Len(t, store.byKey, 1)
}

func TestScanner_DetectsMotionSidecar(t *testing.T) {
	root := t.TempDir()
	photoPath := filepath.Join(root, "IMG_0001.jpg")
	moviePath := filepath.Join(root, "IMG_0001.mov")
	require.NoError(t, os.WriteFile(photoPath, []byte("some jpeg bytes"), 0o644))
	require.NoError(t, os.WriteFile(moviePath, []byte("some mov bytes"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 10, testLogger())

	stats, err := scanner.Scan(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.New)

	var item *models.Item
	for _, it := range store.byKey {
		item = it
	}
	require.NotNil(t, item)
	assert.True(t, item.MotionPhoto)
	require.NotNil(t, item.MotionVideoPath)
	assert.Equal(t, moviePath, *item.MotionVideoPath)
}

func TestScanner_NoMotionSidecarLeavesFlagUnset(t *testing.T) {
	root := t.TempDir()
	photoPath := filepath.Join(root, "IMG_0002.jpg")
	require.NoError(t, os.WriteFile(photoPath, []byte("some jpeg bytes"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 10, testLogger())

	_, err := scanner.Scan(context.Background(), root, nil)
	require.NoError(t, err)

	var item *models.Item
	for _, it := range store.byKey {
		item = it
	}
	require.NotNil(t, item)
	assert.False(t, item.MotionPhoto)
	assert.Nil(t, item.MotionVideoPath)
}

func TestScanner_UnchangedFileIsSkipped(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("some jpeg bytes"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 10, testLogger())

	ctx := context.Background()
	_, err := scanner.Scan(ctx, root, nil)
	require.NoError(t, err)

	stats, err := scanner.Scan(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.New)
	assert.Equal(t, 1, stats.Skipped)
	assert.Len(t, admitter.admitted, 1, "second scan must not re-admit the unchanged file")
}

func TestScanner_KnownContentNewPathRegistersSecondPath(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.jpg")
	require.NoError(t, os.WriteFile(oldPath, []byte("identical bytes"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 10, testLogger())

	ctx := context.Background()
	_, err := scanner.Scan(ctx, root, nil)
	require.NoError(t, err)

	newPath := filepath.Join(root, "new.jpg")
	require.NoError(t, os.WriteFile(newPath, []byte("identical bytes"), 0o644))

	stats, err := scanner.Scan(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated, "new file with known content hash is an update, not a new item")
	assert.Equal(t, 1, stats.Skipped, "old.jpg is unchanged")
	assert.Len(t, store.byKey, 1, "no new item was created for duplicate content")

	_, item, err := store.FindByPath(ctx, newPath)
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestScanner_RepointsPrimaryPathWhenOriginalFileGone(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.jpg")
	require.NoError(t, os.WriteFile(oldPath, []byte("identical bytes"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 10, testLogger())

	ctx := context.Background()
	_, err := scanner.Scan(ctx, root, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(oldPath))
	newPath := filepath.Join(root, "new.jpg")
	require.NoError(t, os.WriteFile(newPath, []byte("identical bytes"), 0o644))

	_, err = scanner.Scan(ctx, root, nil)
	require.NoError(t, err)

	key := ""
	for k := range store.byKey {
		key = k
	}
	require.NotEmpty(t, key)
	assert.Equal(t, newPath, store.byKey[key].PrimaryPath, "primary path must repoint once the old file disappears")
}

func TestScanner_CleansUpRemovedFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.jpg")
	require.NoError(t, os.WriteFile(path, []byte("some bytes"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 10, testLogger())

	ctx := context.Background()
	_, err := scanner.Scan(ctx, root, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	stats, err := scanner.Scan(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)
	assert.NotContains(t, store.byPath, path)
}

func TestScanner_CancelledScanSkipsCleanup(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("bytes a"), 0o644))

	store := newFakeItemStore()
	// A path record for a file the scanner has not yet reached on disk,
	// simulating work a full (uncancelled) walk would have seen.
	stalePath := filepath.Join(root, "stale.jpg")
	require.NoError(t, store.Upsert(context.Background(), &models.Item{
		ItemKey: "stale-key", PrimaryPath: stalePath, Size: 1, MTime: time.Now(), MimeType: "image/jpeg",
	}))
	require.NoError(t, store.AddPath(context.Background(), "stale-key", stalePath, true))

	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 1, testLogger())

	stats, err := scanner.Scan(context.Background(), root, func() bool { return true })
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Removed, "a cancelled scan must not run the cleanup pass")
	assert.Contains(t, store.byPath, stalePath, "stale path record must survive a cancelled scan")
}

func TestScanner_OversizedFileIsSkippedNotErrored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "huge.jpg"), []byte("0123456789"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 5, 10, testLogger())

	stats, err := scanner.Scan(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.New)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, admitter.admitted)
}

func TestScanner_UnsupportedExtensionIsIgnored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.txt"), []byte("not a photo"), 0o644))

	store := newFakeItemStore()
	admitter := &fakeAdmitter{}
	scanner := New(store, admitter, []string{"jpg"}, 0, 10, testLogger())

	stats, err := scanner.Scan(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestAbsDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, absDuration(-2*time.Second))
	assert.Equal(t, 2*time.Second, absDuration(2*time.Second))
}
