package repository

import (
	"context"
	"fmt"

	"github.com/tmattsson/photocurator/internal/models"
	"gorm.io/gorm"
)

// personRepo implements PersonRepository using GORM.
type personRepo struct {
	db *gorm.DB
}

// NewPersonRepository creates a new PersonRepository.
func NewPersonRepository(db *gorm.DB) *personRepo {
	return &personRepo{db: db}
}

func (r *personRepo) Create(ctx context.Context, person *models.Person) error {
	if err := r.db.WithContext(ctx).Create(person).Error; err != nil {
		return fmt.Errorf("creating person: %w", err)
	}
	return nil
}

func (r *personRepo) GetByID(ctx context.Context, id models.ULID) (*models.Person, error) {
	var person models.Person
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&person).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting person by id: %w", err)
	}
	return &person, nil
}

func (r *personRepo) List(ctx context.Context) ([]*models.Person, error) {
	var persons []*models.Person
	if err := r.db.WithContext(ctx).Order("member_photo_count DESC").Find(&persons).Error; err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}
	return persons, nil
}

func (r *personRepo) SetDisplayName(ctx context.Context, id models.ULID, name string) error {
	if err := r.db.WithContext(ctx).Model(&models.Person{}).Where("id = ?", id).
		Update("display_name", name).Error; err != nil {
		return fmt.Errorf("setting person display name: %w", err)
	}
	return nil
}

func (r *personRepo) SetMemberPhotoCount(ctx context.Context, id models.ULID, count int) error {
	if err := r.db.WithContext(ctx).Model(&models.Person{}).Where("id = ?", id).
		Update("member_photo_count", count).Error; err != nil {
		return fmt.Errorf("setting person member count: %w", err)
	}
	return nil
}

func (r *personRepo) PersonsForFaces(ctx context.Context, faceIDs []models.ULID) (map[models.ULID]models.ULID, error) {
	if len(faceIDs) == 0 {
		return map[models.ULID]models.ULID{}, nil
	}

	var faces []models.Face
	if err := r.db.WithContext(ctx).
		Select("id, person_id").
		Where("id IN ? AND person_id IS NOT NULL", faceIDs).
		Find(&faces).Error; err != nil {
		return nil, fmt.Errorf("looking up persons for faces: %w", err)
	}

	result := make(map[models.ULID]models.ULID, len(faces))
	for _, f := range faces {
		if f.PersonID != nil {
			result[f.ID] = *f.PersonID
		}
	}
	return result, nil
}

var _ PersonRepository = (*personRepo)(nil)
