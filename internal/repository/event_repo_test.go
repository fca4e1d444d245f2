package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmattsson/photocurator/internal/models"
)

func TestEventRepo_ReplaceAllInsertsEventsAndMembers(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	items := NewItemRepository(db)
	events := NewEventRepository(db)

	seedItem(t, items, "k1", "/photos/a.jpg")
	seedItem(t, items, "k2", "/photos/b.jpg")

	location := "Paris, FR"
	ev := &models.Event{
		Name:             "Jun 1, 2024 (Paris, FR)",
		Start:            time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		End:              time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Location:         &location,
		MemberPhotoCount: 2,
	}
	require.NoError(t, events.ReplaceAll(ctx, []*models.Event{ev}, map[int][]string{0: {"k1", "k2"}}))

	list, err := events.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	full, err := events.GetByID(ctx, list[0].ID)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Len(t, full.Members, 2)
}

func TestEventRepo_ReplaceAllClearsPriorEvents(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	items := NewItemRepository(db)
	events := NewEventRepository(db)

	seedItem(t, items, "k1", "/photos/a.jpg")
	loc := "Paris, FR"
	first := &models.Event{Name: "first", Start: time.Now().UTC(), End: time.Now().UTC(), Location: &loc, MemberPhotoCount: 1}
	require.NoError(t, events.ReplaceAll(ctx, []*models.Event{first}, map[int][]string{0: {"k1"}}))

	require.NoError(t, events.ReplaceAll(ctx, nil, nil))

	list, err := events.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
