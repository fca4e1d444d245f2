package models

// Event is a time/location cluster of items recomputed by the EVENTS
// batch stage. Event records are replaced wholesale on each batch run,
// not incrementally updated.
type Event struct {
	BaseModel

	Name     string `gorm:"not null" json:"name"`
	Start    Time   `json:"start"`
	End      Time   `json:"end"`
	Location *string `json:"location,omitempty"`

	MemberPhotoCount int `gorm:"not null;default:0" json:"member_photo_count"`

	Members []EventMember `gorm:"foreignKey:EventID;references:ID" json:"members,omitempty"`
}

// TableName overrides the default pluralization.
func (Event) TableName() string {
	return "events"
}

// EventMember joins an Event to the items it contains.
type EventMember struct {
	EventID ULID   `gorm:"primarykey;type:varchar(26)" json:"event_id"`
	ItemKey string `gorm:"primarykey;type:varchar(64)" json:"item_key"`
}

// TableName overrides the default pluralization.
func (EventMember) TableName() string {
	return "event_members"
}
