package repository

import (
	"context"
	"fmt"

	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/pipeline/stages"
)

// FaceWriterAdapter bridges the Faces stage enricher's narrow FaceWriter
// contract to FaceRepository and ItemRepository, encoding embeddings the
// same way BatchStoreAdapter decodes them.
type FaceWriterAdapter struct {
	faces FaceRepository
	items ItemRepository
}

// NewFaceWriterAdapter creates a FaceWriterAdapter.
func NewFaceWriterAdapter(faces FaceRepository, items ItemRepository) *FaceWriterAdapter {
	return &FaceWriterAdapter{faces: faces, items: items}
}

// ReplaceFaces implements stages.FaceWriter.
func (a *FaceWriterAdapter) ReplaceFaces(ctx context.Context, key string, detected []stages.DetectedFace) error {
	faces := make([]*models.Face, 0, len(detected))
	for _, d := range detected {
		faces = append(faces, &models.Face{
			ItemKey:   key,
			Embedding: EncodeEmbedding(d.Embedding),
			BBoxX:     d.BBoxX,
			BBoxY:     d.BBoxY,
			BBoxW:     d.BBoxW,
			BBoxH:     d.BBoxH,
		})
	}
	if err := a.faces.ReplaceForItem(ctx, key, faces); err != nil {
		return fmt.Errorf("replacing faces for %s: %w", key, err)
	}
	return nil
}

// SetFacesDetected implements stages.FaceWriter.
func (a *FaceWriterAdapter) SetFacesDetected(ctx context.Context, key string) error {
	return a.items.SetFacesDetected(ctx, key)
}

var _ stages.FaceWriter = (*FaceWriterAdapter)(nil)
