package models

// Face is a detected face within an item, produced by the FACES stage.
// Embedding is a serialized float64 vector (little-endian) used for
// clustering distance.
type Face struct {
	BaseModel

	ItemKey string `gorm:"not null;index;type:varchar(64)" json:"item_key"`

	Embedding []byte `gorm:"type:blob" json:"-"`

	BBoxX float64 `gorm:"not null" json:"bbox_x"`
	BBoxY float64 `gorm:"not null" json:"bbox_y"`
	BBoxW float64 `gorm:"not null" json:"bbox_w"`
	BBoxH float64 `gorm:"not null" json:"bbox_h"`

	PersonID *ULID `gorm:"index;type:varchar(26)" json:"person_id,omitempty"`
}

// TableName overrides the default pluralization.
func (Face) TableName() string {
	return "faces"
}
