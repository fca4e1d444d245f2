package repository

import (
	"context"
	"fmt"

	"github.com/tmattsson/photocurator/internal/models"
	"gorm.io/gorm"
)

// faceRepo implements FaceRepository using GORM.
type faceRepo struct {
	db *gorm.DB
}

// NewFaceRepository creates a new FaceRepository.
func NewFaceRepository(db *gorm.DB) *faceRepo {
	return &faceRepo{db: db}
}

func (r *faceRepo) ReplaceForItem(ctx context.Context, itemKey string, faces []*models.Face) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("item_key = ?", itemKey).Delete(&models.Face{}).Error; err != nil {
			return fmt.Errorf("clearing existing faces: %w", err)
		}
		if len(faces) == 0 {
			return nil
		}
		if err := tx.Create(faces).Error; err != nil {
			return fmt.Errorf("inserting faces: %w", err)
		}
		return nil
	})
}

func (r *faceRepo) AllEmbeddings(ctx context.Context) ([]FaceEmbedding, error) {
	var faces []models.Face
	if err := r.db.WithContext(ctx).Find(&faces).Error; err != nil {
		return nil, fmt.Errorf("listing face embeddings: %w", err)
	}

	embeddings := make([]FaceEmbedding, 0, len(faces))
	for _, f := range faces {
		embeddings = append(embeddings, FaceEmbedding{
			FaceID:    f.ID,
			ItemKey:   f.ItemKey,
			Embedding: f.Embedding,
			PersonID:  f.PersonID,
		})
	}
	return embeddings, nil
}

func (r *faceRepo) AssignPerson(ctx context.Context, faceID models.ULID, personID models.ULID) error {
	if err := r.db.WithContext(ctx).Model(&models.Face{}).Where("id = ?", faceID).
		Update("person_id", personID).Error; err != nil {
		return fmt.Errorf("assigning person to face: %w", err)
	}
	return nil
}

func (r *faceRepo) ClearPersonAssignments(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Model(&models.Face{}).Where("person_id IS NOT NULL").
		Update("person_id", nil).Error; err != nil {
		return fmt.Errorf("clearing person assignments: %w", err)
	}
	return nil
}

var _ FaceRepository = (*faceRepo)(nil)
