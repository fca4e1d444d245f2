package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmattsson/photocurator/internal/pipeline/stages"
)

func TestFaceWriterAdapter_ReplaceFacesEncodesEmbeddings(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	items := NewItemRepository(db)
	faces := NewFaceRepository(db)
	seedItem(t, items, "k1", "/photos/a.jpg")

	adapter := NewFaceWriterAdapter(faces, items)
	require.NoError(t, adapter.ReplaceFaces(ctx, "k1", []stages.DetectedFace{
		{Embedding: []float64{0.1, 0.2, 0.3}, BBoxX: 0.1, BBoxY: 0.2, BBoxW: 0.3, BBoxH: 0.4},
	}))
	require.NoError(t, adapter.SetFacesDetected(ctx, "k1"))

	embeddings, err := faces.AllEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, embeddings, 1)

	item, err := items.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, item.FacesDetected)
}
