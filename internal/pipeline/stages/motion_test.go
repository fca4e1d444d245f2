package stages

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMotionMediaStore struct {
	tempDir   string
	published map[string][]byte
}

func newFakeMotionMediaStore(t *testing.T) *fakeMotionMediaStore {
	return &fakeMotionMediaStore{tempDir: t.TempDir(), published: map[string][]byte{}}
}

func (m *fakeMotionMediaStore) MotionVideoPath(key string) string {
	return key + "_motion.mp4"
}

func (m *fakeMotionMediaStore) CreateMotionVideoTemp(pattern string) (*os.File, error) {
	return os.CreateTemp(m.tempDir, pattern)
}

func (m *fakeMotionMediaStore) PublishTemp(tempAbsPath, relativePath string) error {
	data, err := os.ReadFile(tempAbsPath)
	if err != nil {
		return err
	}
	m.published[relativePath] = data
	os.Remove(tempAbsPath)
	return nil
}

type fakeMotionWriter struct {
	isMotion    *bool
	videoPath   *string
}

func (f *fakeMotionWriter) SetMotionPhotoFlag(_ context.Context, _ string, isMotion bool) error {
	f.isMotion = &isMotion
	return nil
}

func (f *fakeMotionWriter) SetMotionVideo(_ context.Context, _ string, path string) error {
	f.videoPath = &path
	return nil
}

func TestMotionEnricher_ExtractsEmbeddedVideo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.jpg")

	jpegBytes := []byte("\xff\xd8\xff\xe0fake jpeg header data")
	mp4Box := append([]byte{0, 0, 0, 24}, []byte("ftypisom")...)
	mp4Box = append(mp4Box, []byte("rest of mp4 payload data")...)
	require.NoError(t, os.WriteFile(path, append(jpegBytes, mp4Box...), 0o644))

	resolver := &fakeFileResolver{paths: map[string]string{"k1": path}}
	media := newFakeMotionMediaStore(t)
	writer := &fakeMotionWriter{}

	enricher := NewMotionEnricher(resolver, media, writer)
	_, err := enricher(context.Background(), "k1")
	require.NoError(t, err)

	require.NotNil(t, writer.isMotion)
	assert.True(t, *writer.isMotion)
	require.NotNil(t, writer.videoPath)
	assert.Equal(t, "k1_motion.mp4", *writer.videoPath)
	assert.Contains(t, string(media.published["k1_motion.mp4"]), "ftypisom")
}

func TestMotionEnricher_NoSignatureClearsFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.jpg")
	require.NoError(t, os.WriteFile(path, []byte("just a regular jpeg, no embedded video"), 0o644))

	resolver := &fakeFileResolver{paths: map[string]string{"k1": path}}
	media := newFakeMotionMediaStore(t)
	writer := &fakeMotionWriter{}

	enricher := NewMotionEnricher(resolver, media, writer)
	_, err := enricher(context.Background(), "k1")
	require.NoError(t, err)

	require.NotNil(t, writer.isMotion)
	assert.False(t, *writer.isMotion)
	assert.Nil(t, writer.videoPath)
	assert.Empty(t, media.published)
}
