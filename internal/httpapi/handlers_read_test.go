package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/repository"
)

func newTestReadHandler(t *testing.T) (*ReadHandler, repository.ItemRepository, repository.PersonRepository, repository.EventRepository) {
	t.Helper()
	db := setupTestDB(t)
	items := repository.NewItemRepository(db)
	persons := repository.NewPersonRepository(db)
	events := repository.NewEventRepository(db)
	return NewReadHandler(items, persons, events), items, persons, events
}

func TestReadHandler_ListItemsDefaultsLimit(t *testing.T) {
	h, items, _, _ := newTestReadHandler(t)
	require.NoError(t, items.Upsert(context.Background(), &models.Item{
		ItemKey: "k1", PrimaryPath: "/photos/a.jpg", Size: 1, MTime: time.Now(),
	}))

	out, err := h.ListItems(context.Background(), &ListItemsInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Body.Total)
	require.Len(t, out.Body.Items, 1)
	assert.Equal(t, "k1", out.Body.Items[0].ItemKey)
}

func TestReadHandler_GetItemNotFound(t *testing.T) {
	h, _, _, _ := newTestReadHandler(t)
	_, err := h.GetItem(context.Background(), &ItemKeyInput{Key: "missing"})
	require.Error(t, err)
}

func TestReadHandler_SetItemFavorite(t *testing.T) {
	h, items, _, _ := newTestReadHandler(t)
	require.NoError(t, items.Upsert(context.Background(), &models.Item{
		ItemKey: "k1", PrimaryPath: "/photos/a.jpg", Size: 1, MTime: time.Now(),
	}))

	input := &SetItemFavoriteInput{Key: "k1"}
	input.Body.Favorite = true
	_, err := h.SetItemFavorite(context.Background(), input)
	require.NoError(t, err)

	item, err := items.GetByKey(context.Background(), "k1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.True(t, item.Favorite)
}

func TestReadHandler_ListPersonsEmpty(t *testing.T) {
	h, _, _, _ := newTestReadHandler(t)
	out, err := h.ListPersons(context.Background(), &ListPersonsInput{})
	require.NoError(t, err)
	assert.Empty(t, out.Body.Persons)
}

func TestReadHandler_RenamePersonRoundTrip(t *testing.T) {
	h, _, persons, _ := newTestReadHandler(t)
	p := &models.Person{}
	require.NoError(t, persons.Create(context.Background(), p))

	input := &RenamePersonInput{ID: p.ID.String()}
	input.Body.DisplayName = "Alice"
	_, err := h.RenamePerson(context.Background(), input)
	require.NoError(t, err)

	out, err := h.GetPerson(context.Background(), &PersonIDInput{ID: p.ID.String()})
	require.NoError(t, err)
	require.NotNil(t, out.Body.DisplayName)
	assert.Equal(t, "Alice", *out.Body.DisplayName)
}

func TestReadHandler_GetPersonInvalidID(t *testing.T) {
	h, _, _, _ := newTestReadHandler(t)
	_, err := h.GetPerson(context.Background(), &PersonIDInput{ID: "not-a-ulid"})
	require.Error(t, err)
}

func TestReadHandler_ListEventsEmpty(t *testing.T) {
	h, _, _, _ := newTestReadHandler(t)
	out, err := h.ListEvents(context.Background(), &ListEventsInput{})
	require.NoError(t, err)
	assert.Empty(t, out.Body.Events)
}

func TestReadHandler_GetEventNotFound(t *testing.T) {
	h, _, _, _ := newTestReadHandler(t)
	_, err := h.GetEvent(context.Background(), &EventIDInput{ID: models.NewULID().String()})
	require.Error(t, err)
}
