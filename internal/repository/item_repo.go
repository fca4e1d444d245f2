package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/pipeline"
	"gorm.io/gorm"
)

// itemRepo implements ItemRepository using GORM.
type itemRepo struct {
	db *gorm.DB
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(db *gorm.DB) *itemRepo {
	return &itemRepo{db: db}
}

func (r *itemRepo) Upsert(ctx context.Context, item *models.Item) error {
	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		return fmt.Errorf("upserting item: %w", err)
	}
	return nil
}

func (r *itemRepo) GetByKey(ctx context.Context, key string) (*models.Item, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Where("item_key = ?", key).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting item by key: %w", err)
	}
	return &item, nil
}

func (r *itemRepo) FindByPath(ctx context.Context, path string) (*models.ItemPath, *models.Item, error) {
	var itemPath models.ItemPath
	if err := r.db.WithContext(ctx).Where("path = ?", path).First(&itemPath).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("finding item path: %w", err)
	}

	item, err := r.GetByKey(ctx, itemPath.ItemKey)
	if err != nil {
		return nil, nil, err
	}
	return &itemPath, item, nil
}

func (r *itemRepo) AddPath(ctx context.Context, key, path string, isPrimary bool) error {
	itemPath := models.ItemPath{ItemKey: key, Path: path, IsPrimary: isPrimary}
	if err := r.db.WithContext(ctx).Save(&itemPath).Error; err != nil {
		return fmt.Errorf("adding item path: %w", err)
	}
	return nil
}

func (r *itemRepo) RepointPrimaryPath(ctx context.Context, key, newPath string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ItemPath{}).
			Where("item_key = ?", key).
			Update("is_primary", false).Error; err != nil {
			return fmt.Errorf("clearing primary path flag: %w", err)
		}

		if err := tx.Model(&models.ItemPath{}).
			Where("item_key = ? AND path = ?", key, newPath).
			Update("is_primary", true).Error; err != nil {
			return fmt.Errorf("setting new primary path: %w", err)
		}

		if err := tx.Model(&models.Item{}).
			Where("item_key = ?", key).
			Update("primary_path", newPath).Error; err != nil {
			return fmt.Errorf("updating item primary path: %w", err)
		}
		return nil
	})
}

func (r *itemRepo) ResolvePath(ctx context.Context, key string) (string, bool, error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Select("primary_path").Where("item_key = ?", key).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolving item path: %w", err)
	}
	return item.PrimaryPath, true, nil
}

// stageFlagColumn maps a required-or-fast-pathable stage to its completion column.
func stageFlagColumn(stage pipeline.Stage) (string, bool) {
	switch stage {
	case pipeline.EXIF:
		return "exif_extracted", true
	case pipeline.Thumbnails:
		return "thumbnail_generated", true
	case pipeline.Hashing:
		return "perceptual_hashed", true
	case pipeline.Faces:
		return "faces_detected", true
	case pipeline.Captioning:
		return "ollama_captioned", true
	default:
		return "", false
	}
}

func (r *itemRepo) StageComplete(ctx context.Context, stage pipeline.Stage, key string) (bool, error) {
	column, ok := stageFlagColumn(stage)
	if !ok {
		// GEOCODING and MOTION have no boolean flag; they are never
		// fast-pathed and always invoke the enricher, which is itself
		// idempotent (re-geocoding the same coordinates is harmless).
		return false, nil
	}

	var item models.Item
	if err := r.db.WithContext(ctx).Select(column).Where("item_key = ?", key).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, fmt.Errorf("item not found: %s", key)
		}
		return false, fmt.Errorf("checking stage completion: %w", err)
	}

	switch stage {
	case pipeline.EXIF:
		return item.EXIFExtracted, nil
	case pipeline.Thumbnails:
		return item.ThumbnailGenerated, nil
	case pipeline.Hashing:
		return item.PerceptualHashed, nil
	case pipeline.Faces:
		return item.FacesDetected, nil
	case pipeline.Captioning:
		return item.OllamaCaptioned, nil
	default:
		return false, nil
	}
}

func (r *itemRepo) SetEXIF(ctx context.Context, key string, dateTaken *time.Time, lat, lon *float64) error {
	updates := map[string]any{
		"date_taken":     dateTaken,
		"gps_latitude":   lat,
		"gps_longitude":  lon,
		"exif_extracted": true,
	}
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key).Updates(updates).Error; err != nil {
		return fmt.Errorf("setting exif fields: %w", err)
	}
	return nil
}

// Coordinates returns the GPS coordinates EXIF extraction recorded for key.
// Implements stages.ItemCoordinates.
func (r *itemRepo) Coordinates(ctx context.Context, key string) (lat, lon *float64, ok bool, err error) {
	var item models.Item
	if err := r.db.WithContext(ctx).Select("gps_latitude, gps_longitude").Where("item_key = ?", key).First(&item).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("getting coordinates: %w", err)
	}
	return item.GPSLatitude, item.GPSLongitude, true, nil
}

func (r *itemRepo) SetGeocoding(ctx context.Context, key string, city, country, address *string) error {
	updates := map[string]any{
		"location_city":    city,
		"location_country": country,
		"location_address": address,
	}
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key).Updates(updates).Error; err != nil {
		return fmt.Errorf("setting geocoding fields: %w", err)
	}
	return nil
}

func (r *itemRepo) SetThumbnailsGenerated(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key).
		Update("thumbnail_generated", true).Error; err != nil {
		return fmt.Errorf("setting thumbnails flag: %w", err)
	}
	return nil
}

func (r *itemRepo) SetMotionVideo(ctx context.Context, key string, path string) error {
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key).
		Update("motion_video_path", path).Error; err != nil {
		return fmt.Errorf("setting motion video path: %w", err)
	}
	return nil
}

func (r *itemRepo) SetMotionPhotoFlag(ctx context.Context, key string, isMotion bool) error {
	q := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key)
	if !isMotion {
		// Never clear a flag Discovery already set from a .mov sidecar; only
		// the Motion stage's own embedded-video finding may override itself.
		q = q.Where("motion_video_path IS NULL")
	}
	if err := q.Update("motion_photo", isMotion).Error; err != nil {
		return fmt.Errorf("setting motion photo flag: %w", err)
	}
	return nil
}

func (r *itemRepo) SetHashes(ctx context.Context, key string, phash, ahash, dhash *string) error {
	updates := map[string]any{
		"p_hash":            phash,
		"a_hash":            ahash,
		"d_hash":            dhash,
		"perceptual_hashed": true,
	}
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key).Updates(updates).Error; err != nil {
		return fmt.Errorf("setting hash fields: %w", err)
	}
	return nil
}

func (r *itemRepo) SetFacesDetected(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key).
		Update("faces_detected", true).Error; err != nil {
		return fmt.Errorf("setting faces detected flag: %w", err)
	}
	return nil
}

func (r *itemRepo) SetCaption(ctx context.Context, key string, caption, tags *string) error {
	updates := map[string]any{
		"caption":          caption,
		"tags":             tags,
		"ollama_captioned": true,
	}
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key).Updates(updates).Error; err != nil {
		return fmt.Errorf("setting caption fields: %w", err)
	}
	return nil
}

func (r *itemRepo) SetFavorite(ctx context.Context, key string, favorite bool) error {
	if err := r.db.WithContext(ctx).Model(&models.Item{}).Where("item_key = ?", key).
		Update("favorite", favorite).Error; err != nil {
		return fmt.Errorf("setting favorite flag: %w", err)
	}
	return nil
}

func (r *itemRepo) MissingRequiredFlags(ctx context.Context, limit, offset int) ([]*models.Item, error) {
	var items []*models.Item
	if err := r.db.WithContext(ctx).
		Where("NOT exif_extracted OR NOT thumbnail_generated OR NOT perceptual_hashed").
		Order("item_key ASC").
		Limit(limit).Offset(offset).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing items missing required flags: %w", err)
	}
	return items, nil
}

func (r *itemRepo) AllPaths(ctx context.Context) ([]models.ItemPath, error) {
	var paths []models.ItemPath
	if err := r.db.WithContext(ctx).Find(&paths).Error; err != nil {
		return nil, fmt.Errorf("listing all item paths: %w", err)
	}
	return paths, nil
}

func (r *itemRepo) DeletePath(ctx context.Context, key, path string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("item_key = ? AND path = ?", key, path).
			Delete(&models.ItemPath{}).Error; err != nil {
			return fmt.Errorf("deleting item path: %w", err)
		}

		var remaining int64
		if err := tx.Model(&models.ItemPath{}).Where("item_key = ?", key).Count(&remaining).Error; err != nil {
			return fmt.Errorf("counting remaining paths: %w", err)
		}
		if remaining > 0 {
			return nil
		}

		if err := tx.Unscoped().Where("item_key = ?", key).Delete(&models.Face{}).Error; err != nil {
			return fmt.Errorf("deleting orphaned faces: %w", err)
		}
		if err := tx.Unscoped().Where("item_key = ?", key).Delete(&models.Item{}).Error; err != nil {
			return fmt.Errorf("deleting orphaned item: %w", err)
		}
		return nil
	})
}

func (r *itemRepo) List(ctx context.Context, limit, offset int) ([]*models.Item, int64, error) {
	var items []*models.Item
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Item{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting items: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Order("date_taken DESC").
		Limit(limit).Offset(offset).
		Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("listing items: %w", err)
	}
	return items, total, nil
}

func (r *itemRepo) AllTimed(ctx context.Context) ([]TimedItem, error) {
	var items []models.Item
	if err := r.db.WithContext(ctx).
		Where("date_taken IS NOT NULL").
		Order("date_taken ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("listing timed items: %w", err)
	}

	timed := make([]TimedItem, 0, len(items))
	for _, item := range items {
		timed = append(timed, TimedItem{
			ItemKey:      item.ItemKey,
			DateTaken:    *item.DateTaken,
			GPSLatitude:  item.GPSLatitude,
			GPSLongitude: item.GPSLongitude,
			City:         item.LocationCity,
			Country:      item.LocationCountry,
		})
	}
	return timed, nil
}

func (r *itemRepo) ClearAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range []string{
			"DELETE FROM event_members",
			"DELETE FROM events",
			"DELETE FROM faces",
			"DELETE FROM persons",
			"DELETE FROM item_paths",
			"DELETE FROM items",
		} {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("clearing index (%s): %w", stmt, err)
			}
		}
		return nil
	})
}

var _ ItemRepository = (*itemRepo)(nil)
