package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

func seedItem(t *testing.T, repo *itemRepo, key, path string) {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), &models.Item{
		ItemKey:     key,
		PrimaryPath: path,
		Size:        100,
		MTime:       time.Now().UTC(),
		MimeType:    "image/jpeg",
	}))
	require.NoError(t, repo.AddPath(context.Background(), key, path, true))
}

func TestItemRepo_UpsertAndGetByKey(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")

	item, err := repo.GetByKey(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "/photos/a.jpg", item.PrimaryPath)
}

func TestItemRepo_GetByKey_NotFoundReturnsNilNil(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t))
	item, err := repo.GetByKey(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestItemRepo_ResolvePath(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")

	path, ok, err := repo.ResolvePath(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/photos/a.jpg", path)
}

func TestItemRepo_ResolvePath_MissingReturnsFalse(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t))
	_, ok, err := repo.ResolvePath(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestItemRepo_SetEXIFSetsFlagAndStageComplete(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")

	done, err := repo.StageComplete(ctx, pipeline.EXIF, "k1")
	require.NoError(t, err)
	assert.False(t, done)

	taken := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lat, lon := 48.8584, 2.2945
	require.NoError(t, repo.SetEXIF(ctx, "k1", &taken, &lat, &lon))

	done, err = repo.StageComplete(ctx, pipeline.EXIF, "k1")
	require.NoError(t, err)
	assert.True(t, done)

	item, err := repo.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.InDelta(t, 48.8584, *item.GPSLatitude, 1e-6)

	gotLat, gotLon, ok, err := repo.Coordinates(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, gotLat)
	require.NotNil(t, gotLon)
	assert.InDelta(t, 48.8584, *gotLat, 1e-6)
	assert.InDelta(t, 2.2945, *gotLon, 1e-6)
}

func TestItemRepo_CoordinatesUnknownKeyReturnsFalse(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))

	_, _, ok, err := repo.Coordinates(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestItemRepo_GeocodingHasNoCompletionFlag(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")

	done, err := repo.StageComplete(ctx, pipeline.Geocoding, "k1")
	require.NoError(t, err)
	assert.False(t, done)

	city, country := "Paris", "FR"
	require.NoError(t, repo.SetGeocoding(ctx, "k1", &city, &country, nil))

	item, err := repo.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "Paris", *item.LocationCity)
}

func TestItemRepo_SetMotionPhotoFlag_DoesNotClearSidecarDetection(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t))
	sidecar := "/photos/IMG_0001.mov"
	require.NoError(t, repo.Upsert(context.Background(), &models.Item{
		ItemKey:         "k1",
		PrimaryPath:     "/photos/IMG_0001.jpg",
		Size:            100,
		MTime:           time.Now().UTC(),
		MimeType:        "image/jpeg",
		MotionPhoto:     true,
		MotionVideoPath: &sidecar,
	}))

	require.NoError(t, repo.SetMotionPhotoFlag(context.Background(), "k1", false))

	item, err := repo.GetByKey(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, item.MotionPhoto)
	require.NotNil(t, item.MotionVideoPath)
	assert.Equal(t, sidecar, *item.MotionVideoPath)
}

func TestItemRepo_SetMotionPhotoFlag_ClearsWhenNoVideoPath(t *testing.T) {
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")
	require.NoError(t, repo.SetMotionPhotoFlag(context.Background(), "k1", true))

	require.NoError(t, repo.SetMotionPhotoFlag(context.Background(), "k1", false))

	item, err := repo.GetByKey(context.Background(), "k1")
	require.NoError(t, err)
	assert.False(t, item.MotionPhoto)
}

func TestItemRepo_RepointPrimaryPath(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/old.jpg")
	require.NoError(t, repo.AddPath(ctx, "k1", "/photos/new.jpg", false))

	require.NoError(t, repo.RepointPrimaryPath(ctx, "k1", "/photos/new.jpg"))

	item, err := repo.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "/photos/new.jpg", item.PrimaryPath)
}

func TestItemRepo_FindByPath(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")

	itemPath, item, err := repo.FindByPath(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	require.NotNil(t, itemPath)
	require.NotNil(t, item)
	assert.Equal(t, "k1", item.ItemKey)
}

func TestItemRepo_DeletePathRemovesItemWhenLastPath(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")

	require.NoError(t, repo.DeletePath(ctx, "k1", "/photos/a.jpg"))

	item, err := repo.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestItemRepo_DeletePathKeepsItemWhenOtherPathsRemain(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")
	require.NoError(t, repo.AddPath(ctx, "k1", "/photos/b.jpg", false))

	require.NoError(t, repo.DeletePath(ctx, "k1", "/photos/a.jpg"))

	item, err := repo.GetByKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestItemRepo_MissingRequiredFlags(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")
	seedItem(t, repo, "k2", "/photos/b.jpg")

	taken := time.Now().UTC()
	require.NoError(t, repo.SetEXIF(ctx, "k2", &taken, nil, nil))
	require.NoError(t, repo.SetThumbnailsGenerated(ctx, "k2"))
	require.NoError(t, repo.SetHashes(ctx, "k2", nil, nil, nil))

	missing, err := repo.MissingRequiredFlags(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "k1", missing[0].ItemKey)
}

func TestItemRepo_ClearAll(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")

	require.NoError(t, repo.ClearAll(ctx))

	item, err := repo.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestItemRepo_AllTimedOrdersAscending(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(setupTestDB(t))
	seedItem(t, repo, "k1", "/photos/a.jpg")
	seedItem(t, repo, "k2", "/photos/b.jpg")

	later := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	earlier := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetEXIF(ctx, "k1", &later, nil, nil))
	require.NoError(t, repo.SetEXIF(ctx, "k2", &earlier, nil, nil))

	timed, err := repo.AllTimed(ctx)
	require.NoError(t, err)
	require.Len(t, timed, 2)
	assert.Equal(t, "k2", timed[0].ItemKey)
	assert.Equal(t, "k1", timed[1].ItemKey)
}
