package models

// Person is a clustered identity recomputed by the FACES batch stage.
// DisplayName starts nil and is user-editable thereafter.
type Person struct {
	BaseModel

	DisplayName *string `json:"display_name,omitempty"`

	RepresentativeFaceID *ULID `gorm:"type:varchar(26)" json:"representative_face_id,omitempty"`

	MemberPhotoCount int `gorm:"not null;default:0" json:"member_photo_count"`
}

// TableName overrides the default pluralization.
func (Person) TableName() string {
	return "persons"
}
