// Package repository defines data access interfaces for photocurator entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

// FaceEmbedding is a flattened projection of a Face row used for clustering,
// where the full GORM model would be unnecessary overhead.
type FaceEmbedding struct {
	FaceID    models.ULID
	ItemKey   string
	Embedding []byte
	PersonID  *models.ULID
}

// TimedItem is a flattened projection of an Item used for event detection.
type TimedItem struct {
	ItemKey      string
	DateTaken    time.Time
	GPSLatitude  *float64
	GPSLongitude *float64
	City         *string
	Country      *string
}

// ItemRepository persists Item records and their per-stage completion state.
// The pipeline package depends on this only through the narrower
// pipeline.ItemResolver interface (see resolver.go); the full interface here
// is consumed by the stage enrichers, Discovery, Watcher, and Resume.
type ItemRepository interface {
	// Upsert creates a new item record or replaces an existing one wholesale.
	// Used by Discovery when it detects genuinely new content.
	Upsert(ctx context.Context, item *models.Item) error
	// GetByKey retrieves an item by its content key. Returns nil, nil if absent.
	GetByKey(ctx context.Context, key string) (*models.Item, error)
	// FindByPath retrieves an item by one of its known paths. Returns nil, nil if absent.
	FindByPath(ctx context.Context, path string) (*models.ItemPath, *models.Item, error)
	// AddPath registers an additional path for existing content (hardlink/copy/rename).
	AddPath(ctx context.Context, key, path string, isPrimary bool) error
	// RepointPrimaryPath updates which known path is the item's primary one,
	// used when the prior primary path has gone missing on disk.
	RepointPrimaryPath(ctx context.Context, key, newPath string) error
	// ResolvePath returns the current primary path for a key.
	ResolvePath(ctx context.Context, key string) (string, bool, error)
	// StageComplete reports whether the given stage's completion flag is set for key.
	StageComplete(ctx context.Context, stage pipeline.Stage, key string) (bool, error)

	// SetEXIF persists EXIF-derived fields and sets the exif completion flag.
	SetEXIF(ctx context.Context, key string, dateTaken *time.Time, lat, lon *float64) error
	// Coordinates returns the GPS coordinates recorded for key, if any.
	Coordinates(ctx context.Context, key string) (lat, lon *float64, ok bool, err error)
	// SetGeocoding persists reverse-geocoded place fields. GEOCODING is optional
	// and has no completion flag of its own; presence of LocationCity is the guard.
	SetGeocoding(ctx context.Context, key string, city, country, address *string) error
	// SetThumbnailsGenerated sets the thumbnails completion flag.
	SetThumbnailsGenerated(ctx context.Context, key string) error
	// SetMotionVideo records the extracted motion-video path.
	SetMotionVideo(ctx context.Context, key string, path string) error
	// SetMotionPhotoFlag marks an item as containing an embedded motion photo,
	// set during Discovery/Watcher indexing, read by the MOTION stage.
	SetMotionPhotoFlag(ctx context.Context, key string, isMotion bool) error
	// SetHashes persists perceptual hash columns and sets the hashing completion flag.
	SetHashes(ctx context.Context, key string, phash, ahash, dhash *string) error
	// SetFacesDetected sets the faces completion flag.
	SetFacesDetected(ctx context.Context, key string) error
	// SetCaption persists the AI-generated caption/tags and sets the captioned flag.
	SetCaption(ctx context.Context, key string, caption, tags *string) error
	// SetFavorite sets the user-mutable favorite flag.
	SetFavorite(ctx context.Context, key string, favorite bool) error

	// MissingRequiredFlags returns items missing any required-stage completion
	// flag (exif, thumbnails, hashing), for the Resume Coordinator.
	MissingRequiredFlags(ctx context.Context, limit, offset int) ([]*models.Item, error)
	// AllPaths returns every known (key, path) pair, for Discovery's GC pass.
	AllPaths(ctx context.Context) ([]models.ItemPath, error)
	// DeletePath removes one path association; if it was the item's only path,
	// the item itself (and its faces) are removed too.
	DeletePath(ctx context.Context, key, path string) error

	// List returns items ordered by date taken, most recent first.
	List(ctx context.Context, limit, offset int) ([]*models.Item, int64, error)
	// AllTimed returns every item with a known capture timestamp, ascending,
	// for event detection.
	AllTimed(ctx context.Context) ([]TimedItem, error)

	// ClearAll deletes every item (and dependent rows) in FK-safe order.
	ClearAll(ctx context.Context) error
}

// FaceRepository persists detected faces and their person assignments.
type FaceRepository interface {
	// ReplaceForItem deletes any existing faces for an item and inserts the new set.
	ReplaceForItem(ctx context.Context, itemKey string, faces []*models.Face) error
	// AllEmbeddings returns every face's embedding for whole-corpus clustering.
	AllEmbeddings(ctx context.Context) ([]FaceEmbedding, error)
	// AssignPerson sets a face's person_id during clustering.
	AssignPerson(ctx context.Context, faceID models.ULID, personID models.ULID) error
	// ClearPersonAssignments resets all person_id columns to NULL before reclustering.
	ClearPersonAssignments(ctx context.Context) error
}

// PersonRepository persists the clustered identities produced by the FACES
// batch stage.
type PersonRepository interface {
	// Create inserts a new person.
	Create(ctx context.Context, person *models.Person) error
	// GetByID retrieves a person by id. Returns nil, nil if absent.
	GetByID(ctx context.Context, id models.ULID) (*models.Person, error)
	// List returns every person, most photos first.
	List(ctx context.Context) ([]*models.Person, error)
	// SetDisplayName updates the user-editable display name.
	SetDisplayName(ctx context.Context, id models.ULID, name string) error
	// SetMemberPhotoCount updates the cached member count after reclustering.
	SetMemberPhotoCount(ctx context.Context, id models.ULID, count int) error
	// PersonsForFaces returns, for each face id given, the person it currently
	// belongs to (faces with no person are omitted). BatchStoreAdapter's
	// majority vote reads prior assignments from AllEmbeddings instead.
	PersonsForFaces(ctx context.Context, faceIDs []models.ULID) (map[models.ULID]models.ULID, error)
}

// EventRepository persists the time+location clusters produced by the EVENTS
// batch stage. Events are always replaced wholesale, never incrementally updated.
type EventRepository interface {
	// ReplaceAll deletes every event/event_member row and inserts the given
	// set transactionally. membersByIndex maps an index into events to the
	// item keys belonging to that event.
	ReplaceAll(ctx context.Context, events []*models.Event, membersByIndex map[int][]string) error
	// List returns every event, most recent first.
	List(ctx context.Context) ([]*models.Event, error)
	// GetByID retrieves an event with its members preloaded. Returns nil, nil if absent.
	GetByID(ctx context.Context, id models.ULID) (*models.Event, error)
}
