package repository

import (
	"context"
	"fmt"

	"github.com/tmattsson/photocurator/internal/models"
	"gorm.io/gorm"
)

// eventRepo implements EventRepository using GORM.
type eventRepo struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *gorm.DB) *eventRepo {
	return &eventRepo{db: db}
}

// ReplaceAll deletes every event/event_member row and inserts the given set
// transactionally, matching the batch stage's "replace wholesale" semantics.
func (r *eventRepo) ReplaceAll(ctx context.Context, events []*models.Event, membersByIndex map[int][]string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM event_members").Error; err != nil {
			return fmt.Errorf("clearing event members: %w", err)
		}
		if err := tx.Exec("DELETE FROM events").Error; err != nil {
			return fmt.Errorf("clearing events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		if err := tx.Create(events).Error; err != nil {
			return fmt.Errorf("inserting events: %w", err)
		}

		var members []models.EventMember
		for idx, event := range events {
			for _, itemKey := range membersByIndex[idx] {
				members = append(members, models.EventMember{EventID: event.ID, ItemKey: itemKey})
			}
		}
		if len(members) > 0 {
			if err := tx.Create(members).Error; err != nil {
				return fmt.Errorf("inserting event members: %w", err)
			}
		}
		return nil
	})
}

func (r *eventRepo) List(ctx context.Context) ([]*models.Event, error) {
	var events []*models.Event
	if err := r.db.WithContext(ctx).Order("start DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

func (r *eventRepo) GetByID(ctx context.Context, id models.ULID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).Preload("Members").Where("id = ?", id).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting event by id: %w", err)
	}
	return &event, nil
}

var _ EventRepository = (*eventRepo)(nil)
