package models

// Item is the unit of pipeline work: a photo identified by the stable
// content key of its bytes. item_key is the primary key rather than a
// generated ULID, since content identity (not insertion order) is what
// must survive file renames and duplicate discovery.
type Item struct {
	ItemKey   string `gorm:"primarykey;type:varchar(64)" json:"item_key"`
	PrimaryPath string `gorm:"not null;index" json:"primary_path"`
	Size      int64  `gorm:"not null" json:"size"`
	MTime     Time   `json:"mtime"`
	MimeType  string `gorm:"size:128" json:"mime_type"`

	DateTaken    *Time    `json:"date_taken,omitempty"`
	GPSLatitude  *float64 `json:"gps_latitude,omitempty"`
	GPSLongitude *float64 `json:"gps_longitude,omitempty"`

	EXIFExtracted      bool `gorm:"not null;default:false;index" json:"exif_extracted"`
	ThumbnailGenerated bool `gorm:"not null;default:false;index" json:"thumbnail_generated"`
	PerceptualHashed   bool `gorm:"not null;default:false;index" json:"perceptual_hashed"`

	PHash *string `gorm:"size:64" json:"phash,omitempty"`
	AHash *string `gorm:"size:64" json:"ahash,omitempty"`
	DHash *string `gorm:"size:64" json:"dhash,omitempty"`

	LocationCity    *string `json:"location_city,omitempty"`
	LocationCountry *string `json:"location_country,omitempty"`
	LocationAddress *string `json:"location_address,omitempty"`

	FacesDetected   bool    `gorm:"not null;default:false;index" json:"faces_detected"`
	OllamaCaptioned bool    `gorm:"not null;default:false;index" json:"ollama_captioned"`
	Caption         *string `gorm:"type:text" json:"caption,omitempty"`
	Tags            *string `json:"tags,omitempty"`

	MotionPhoto      bool    `gorm:"not null;default:false" json:"motion_photo"`
	MotionVideoPath  *string `json:"motion_video_path,omitempty"`

	Favorite bool `gorm:"not null;default:false;index" json:"favorite"`

	CreatedAt Time `json:"created_at"`
	UpdatedAt Time `json:"updated_at"`

	Paths []ItemPath `gorm:"foreignKey:ItemKey;references:ItemKey" json:"paths,omitempty"`
	Faces []Face     `gorm:"foreignKey:ItemKey;references:ItemKey" json:"faces,omitempty"`
}

// TableName overrides the default pluralization.
func (Item) TableName() string {
	return "items"
}

// ItemPath records a secondary filesystem location for content already
// known under another path — the content key stays stable across
// renames and duplicate copies; only the path set grows.
type ItemPath struct {
	ItemKey   string `gorm:"primarykey;type:varchar(64)" json:"item_key"`
	Path      string `gorm:"primarykey" json:"path"`
	IsPrimary bool   `gorm:"not null;default:false" json:"is_primary"`
}

// TableName overrides the default pluralization.
func (ItemPath) TableName() string {
	return "item_paths"
}
