package stages

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHashWriter struct {
	phash, ahash, dhash *string
}

func (f *fakeHashWriter) SetHashes(_ context.Context, _ string, phash, ahash, dhash *string) error {
	f.phash, f.ahash, f.dhash = phash, ahash, dhash
	return nil
}

func TestHashingEnricher_ComputesAllThreeHashes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	writeTestPNG(t, path, 64, 64)

	resolver := &fakeFileResolver{paths: map[string]string{"k1": path}}
	writer := &fakeHashWriter{}

	enricher := NewHashingEnricher(resolver, writer)
	_, err := enricher(context.Background(), "k1")
	require.NoError(t, err)

	require.NotNil(t, writer.phash)
	require.NotNil(t, writer.ahash)
	require.NotNil(t, writer.dhash)
	assert.NotEmpty(t, *writer.phash)
	assert.NotEmpty(t, *writer.ahash)
	assert.NotEmpty(t, *writer.dhash)
}
