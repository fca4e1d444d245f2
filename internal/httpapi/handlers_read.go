package httpapi

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/repository"
)

// ReadHandler exposes thin read endpoints over items, persons, and events
// so the control surface has something to report on. Wire shapes are
// otherwise unspecified and follow straightforward REST conventions.
type ReadHandler struct {
	items   repository.ItemRepository
	persons repository.PersonRepository
	events  repository.EventRepository
}

// NewReadHandler builds a ReadHandler.
func NewReadHandler(items repository.ItemRepository, persons repository.PersonRepository, events repository.EventRepository) *ReadHandler {
	return &ReadHandler{items: items, persons: persons, events: events}
}

// Register wires every read/write operation onto api.
func (h *ReadHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listItems",
		Method:      "GET",
		Path:        "/api/v1/items",
		Summary:     "List items, most recently taken first",
		Tags:        []string{"Items"},
	}, h.ListItems)

	huma.Register(api, huma.Operation{
		OperationID: "getItem",
		Method:      "GET",
		Path:        "/api/v1/items/{key}",
		Summary:     "Get an item by content key",
		Tags:        []string{"Items"},
	}, h.GetItem)

	huma.Register(api, huma.Operation{
		OperationID: "setItemFavorite",
		Method:      "PUT",
		Path:        "/api/v1/items/{key}/favorite",
		Summary:     "Set an item's favorite flag",
		Tags:        []string{"Items"},
	}, h.SetItemFavorite)

	huma.Register(api, huma.Operation{
		OperationID: "listPersons",
		Method:      "GET",
		Path:        "/api/v1/persons",
		Summary:     "List clustered persons, most photos first",
		Tags:        []string{"Persons"},
	}, h.ListPersons)

	huma.Register(api, huma.Operation{
		OperationID: "getPerson",
		Method:      "GET",
		Path:        "/api/v1/persons/{id}",
		Summary:     "Get a person by id",
		Tags:        []string{"Persons"},
	}, h.GetPerson)

	huma.Register(api, huma.Operation{
		OperationID: "renamePerson",
		Method:      "PUT",
		Path:        "/api/v1/persons/{id}/name",
		Summary:     "Set a person's display name",
		Tags:        []string{"Persons"},
	}, h.RenamePerson)

	huma.Register(api, huma.Operation{
		OperationID: "listEvents",
		Method:      "GET",
		Path:        "/api/v1/events",
		Summary:     "List events, most recent first",
		Tags:        []string{"Events"},
	}, h.ListEvents)

	huma.Register(api, huma.Operation{
		OperationID: "getEvent",
		Method:      "GET",
		Path:        "/api/v1/events/{id}",
		Summary:     "Get an event with its member photos",
		Tags:        []string{"Events"},
	}, h.GetEvent)
}

// ListItemsInput paginates the item listing.
type ListItemsInput struct {
	Limit  int `query:"limit" doc:"Page size" default:"50"`
	Offset int `query:"offset" doc:"Page offset" default:"0"`
}

// ListItemsOutput is the paginated item listing response.
type ListItemsOutput struct {
	Body struct {
		Items []*models.Item `json:"items"`
		Total int64          `json:"total"`
	}
}

// ListItems lists items, most recently taken first.
func (h *ReadHandler) ListItems(ctx context.Context, input *ListItemsInput) (*ListItemsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	items, total, err := h.items.List(ctx, limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list items", err)
	}
	out := &ListItemsOutput{}
	out.Body.Items = items
	out.Body.Total = total
	return out, nil
}

// ItemKeyInput identifies an item by its content key.
type ItemKeyInput struct {
	Key string `path:"key" doc:"Item content key (lowercase hex SHA-256)"`
}

// GetItemOutput wraps a single item.
type GetItemOutput struct {
	Body *models.Item
}

// GetItem returns a single item by content key.
func (h *ReadHandler) GetItem(ctx context.Context, input *ItemKeyInput) (*GetItemOutput, error) {
	item, err := h.items.GetByKey(ctx, input.Key)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get item", err)
	}
	if item == nil {
		return nil, huma.Error404NotFound("item not found")
	}
	return &GetItemOutput{Body: item}, nil
}

// SetItemFavoriteInput sets an item's favorite flag.
type SetItemFavoriteInput struct {
	Key  string `path:"key" doc:"Item content key"`
	Body struct {
		Favorite bool `json:"favorite"`
	}
}

// SetItemFavorite implements the favorite-toggle endpoint.
func (h *ReadHandler) SetItemFavorite(ctx context.Context, input *SetItemFavoriteInput) (*StatusOutput, error) {
	if err := h.items.SetFavorite(ctx, input.Key, input.Body.Favorite); err != nil {
		return nil, huma.Error500InternalServerError("failed to set favorite", err)
	}
	out := &StatusOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// ListPersonsInput is empty; the person listing has no parameters.
type ListPersonsInput struct{}

// ListPersonsOutput is the person listing response.
type ListPersonsOutput struct {
	Body struct {
		Persons []*models.Person `json:"persons"`
	}
}

// ListPersons lists every clustered person.
func (h *ReadHandler) ListPersons(ctx context.Context, _ *ListPersonsInput) (*ListPersonsOutput, error) {
	persons, err := h.persons.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list persons", err)
	}
	out := &ListPersonsOutput{}
	out.Body.Persons = persons
	return out, nil
}

// PersonIDInput identifies a person by ULID.
type PersonIDInput struct {
	ID string `path:"id" doc:"Person ID (ULID)"`
}

// GetPersonOutput wraps a single person.
type GetPersonOutput struct {
	Body *models.Person
}

// GetPerson returns a single person by id.
func (h *ReadHandler) GetPerson(ctx context.Context, input *PersonIDInput) (*GetPersonOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid person id", err)
	}
	person, err := h.persons.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get person", err)
	}
	if person == nil {
		return nil, huma.Error404NotFound("person not found")
	}
	return &GetPersonOutput{Body: person}, nil
}

// RenamePersonInput sets a person's display name.
type RenamePersonInput struct {
	ID   string `path:"id" doc:"Person ID (ULID)"`
	Body struct {
		DisplayName string `json:"display_name"`
	}
}

// RenamePerson sets a person's user-editable display name.
func (h *ReadHandler) RenamePerson(ctx context.Context, input *RenamePersonInput) (*StatusOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid person id", err)
	}
	if err := h.persons.SetDisplayName(ctx, id, input.Body.DisplayName); err != nil {
		return nil, huma.Error500InternalServerError("failed to rename person", err)
	}
	out := &StatusOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// ListEventsInput is empty; the event listing has no parameters.
type ListEventsInput struct{}

// ListEventsOutput is the event listing response.
type ListEventsOutput struct {
	Body struct {
		Events []*models.Event `json:"events"`
	}
}

// ListEvents lists every event, most recent first.
func (h *ReadHandler) ListEvents(ctx context.Context, _ *ListEventsInput) (*ListEventsOutput, error) {
	events, err := h.events.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list events", err)
	}
	out := &ListEventsOutput{}
	out.Body.Events = events
	return out, nil
}

// EventIDInput identifies an event by ULID.
type EventIDInput struct {
	ID string `path:"id" doc:"Event ID (ULID)"`
}

// GetEventOutput wraps a single event, with its member photos preloaded.
type GetEventOutput struct {
	Body *models.Event
}

// GetEvent returns a single event with its member photos.
func (h *ReadHandler) GetEvent(ctx context.Context, input *EventIDInput) (*GetEventOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid event id", err)
	}
	event, err := h.events.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get event", err)
	}
	if event == nil {
		return nil, huma.Error404NotFound("event not found")
	}
	return &GetEventOutput{Body: event}, nil
}
