package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/pipeline/stages"
	"github.com/tmattsson/photocurator/pkg/diskslice"
)

const (
	// estimatedFaceEmbeddingSize accounts for a typical 128-float embedding
	// blob plus its ULID/ItemKey overhead.
	estimatedFaceEmbeddingSize = 1200
	// estimatedTimedItemSize covers the small fixed-width event-detection
	// projection (timestamp, optional GPS/place fields).
	estimatedTimedItemSize = 128
)

// batchSpillOptions returns diskslice options for a batch pass's working
// set, named so temp files are distinguishable when inspecting TempDir.
// Libraries large enough to exceed the threshold spill to disk instead of
// growing an unbounded in-process slice for AllEmbeddings/AllTimed.
func batchSpillOptions(name string, estimatedItemSize int) diskslice.Options {
	opts := diskslice.DefaultOptions()
	opts.Name = name
	opts.EstimatedItemSize = estimatedItemSize
	return opts
}

// BatchStoreAdapter satisfies pipeline.BatchStore by running the pure face
// clustering and event detection algorithms in internal/pipeline/stages over
// data read from the Face/Item/Person/Event repositories, then persisting
// the results.
type BatchStoreAdapter struct {
	faces  FaceRepository
	people PersonRepository
	items  ItemRepository
	events EventRepository
}

// NewBatchStoreAdapter creates a BatchStoreAdapter.
func NewBatchStoreAdapter(faces FaceRepository, people PersonRepository, items ItemRepository, events EventRepository) *BatchStoreAdapter {
	return &BatchStoreAdapter{faces: faces, people: people, items: items, events: events}
}

// ClusterFaces implements pipeline.BatchStore.
func (b *BatchStoreAdapter) ClusterFaces(ctx context.Context) error {
	embeddings, err := b.faces.AllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("loading face embeddings: %w", err)
	}
	if len(embeddings) == 0 {
		return nil
	}

	// Face embedding blobs dwarf the repository row in size; buffer them in
	// a DiskSlice so a library with many thousands of faces spills to disk
	// rather than holding every embedding in the process simultaneously.
	buf, err := diskslice.New[FaceEmbedding](batchSpillOptions("face-embeddings", estimatedFaceEmbeddingSize))
	if err != nil {
		return fmt.Errorf("buffering face embeddings: %w", err)
	}
	defer buf.Close()
	if err := buf.AppendSlice(embeddings); err != nil {
		return fmt.Errorf("spilling face embeddings: %w", err)
	}
	embeddings = nil

	priorPerson := make(map[string]string, buf.Len())
	inputs := make([]stages.FaceInput, 0, buf.Len())
	itemByFace := make(map[string]string, buf.Len())
	if err := buf.For(func(_ int, e *FaceEmbedding) bool {
		faceID := e.FaceID.String()
		itemByFace[faceID] = e.ItemKey
		if e.PersonID != nil {
			priorPerson[faceID] = e.PersonID.String()
		}
		inputs = append(inputs, stages.FaceInput{
			FaceID:    faceID,
			ItemKey:   e.ItemKey,
			Embedding: decodeEmbedding(e.Embedding),
		})
		return true
	}); err != nil {
		return fmt.Errorf("iterating buffered face embeddings: %w", err)
	}

	assignments := stages.ClusterFaces(inputs, 0.4, 2)
	groups := stages.GroupClusters(assignments)

	if err := b.faces.ClearPersonAssignments(ctx); err != nil {
		return fmt.Errorf("clearing prior person assignments: %w", err)
	}

	for _, faceIDs := range groups {
		personID, isNew, err := b.resolveClusterPerson(ctx, faceIDs, priorPerson)
		if err != nil {
			return err
		}
		if isNew {
			person := &models.Person{BaseModel: models.BaseModel{ID: personID}}
			if err := b.people.Create(ctx, person); err != nil {
				return fmt.Errorf("creating person: %w", err)
			}
		}

		itemKeys := make(map[string]struct{})
		for _, faceIDStr := range faceIDs {
			faceID, err := models.ParseULID(faceIDStr)
			if err != nil {
				return fmt.Errorf("parsing face id: %w", err)
			}
			if err := b.faces.AssignPerson(ctx, faceID, personID); err != nil {
				return fmt.Errorf("assigning face to person: %w", err)
			}
			itemKeys[itemByFace[faceIDStr]] = struct{}{}
		}

		if err := b.people.SetMemberPhotoCount(ctx, personID, len(itemKeys)); err != nil {
			return fmt.Errorf("updating person member count: %w", err)
		}
	}

	return nil
}

// resolveClusterPerson decides which person a newly-computed cluster belongs
// to: the majority of faces' prior person assignment if any exist, otherwise
// a freshly minted person. isNew indicates the caller must Create the person
// record before assigning.
func (b *BatchStoreAdapter) resolveClusterPerson(ctx context.Context, faceIDs []string, priorPerson map[string]string) (models.ULID, bool, error) {
	votes := make(map[string]int)
	for _, faceID := range faceIDs {
		if personID, ok := priorPerson[faceID]; ok {
			votes[personID]++
		}
	}

	var majority string
	best := 0
	for personID, count := range votes {
		if count > best {
			majority = personID
			best = count
		}
	}

	if majority == "" {
		return models.NewULID(), true, nil
	}

	id, err := models.ParseULID(majority)
	if err != nil {
		return models.ULID{}, false, fmt.Errorf("parsing majority person id: %w", err)
	}
	existing, err := b.people.GetByID(ctx, id)
	if err != nil {
		return models.ULID{}, false, err
	}
	if existing == nil {
		return models.NewULID(), true, nil
	}
	return id, false, nil
}

// DetectEvents implements pipeline.BatchStore.
func (b *BatchStoreAdapter) DetectEvents(ctx context.Context) error {
	timed, err := b.items.AllTimed(ctx)
	if err != nil {
		return fmt.Errorf("loading timed items: %w", err)
	}

	// Same rationale as ClusterFaces: bound peak memory for libraries large
	// enough that every item's timestamp/GPS projection no longer fits
	// comfortably in RAM.
	buf, err := diskslice.New[TimedItem](batchSpillOptions("timed-items", estimatedTimedItemSize))
	if err != nil {
		return fmt.Errorf("buffering timed items: %w", err)
	}
	defer buf.Close()
	if err := buf.AppendSlice(timed); err != nil {
		return fmt.Errorf("spilling timed items: %w", err)
	}
	timed = nil

	inputs := make([]stages.TimedItemInput, 0, buf.Len())
	if err := buf.For(func(_ int, item *TimedItem) bool {
		inputs = append(inputs, stages.TimedItemInput{
			ItemKey:   item.ItemKey,
			Timestamp: item.DateTaken,
			Lat:       item.GPSLatitude,
			Lon:       item.GPSLongitude,
			City:      item.City,
			Country:   item.Country,
		})
		return true
	}); err != nil {
		return fmt.Errorf("iterating buffered timed items: %w", err)
	}

	clusters := stages.DetectEvents(inputs)

	events := make([]*models.Event, 0, len(clusters))
	membersByIndex := make(map[int][]string, len(clusters))
	for idx, cluster := range clusters {
		location := cluster.Location()
		events = append(events, &models.Event{
			Name:             cluster.Name(),
			Start:            cluster.Start(),
			End:              cluster.End(),
			Location:         &location,
			MemberPhotoCount: len(cluster.Items),
		})
		keys := make([]string, 0, len(cluster.Items))
		for _, item := range cluster.Items {
			keys = append(keys, item.ItemKey)
		}
		membersByIndex[idx] = keys
	}

	if err := b.events.ReplaceAll(ctx, events, membersByIndex); err != nil {
		return fmt.Errorf("replacing events: %w", err)
	}
	return nil
}

// decodeEmbedding unpacks a face embedding stored as a contiguous
// little-endian float64 blob, as written by the faces stage.
func decodeEmbedding(data []byte) []float64 {
	n := len(data) / 8
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		out[i] = math.Float64frombits(bits)
	}
	return out
}

// EncodeEmbedding packs a face embedding as a contiguous little-endian
// float64 blob for storage, the inverse of decodeEmbedding. Used by the
// faces stage enricher when persisting newly-detected faces.
func EncodeEmbedding(vec []float64) []byte {
	out := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], math.Float64bits(v))
	}
	return out
}
