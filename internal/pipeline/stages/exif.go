package stages

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

// ItemFileResolver locates the on-disk path for an item key, independent of
// the narrower pipeline.ItemResolver (which only resolves path + stage-complete
// flags). Enrichers need the raw path to open the source file.
type ItemFileResolver interface {
	ResolvePath(ctx context.Context, key string) (path string, ok bool, err error)
}

// EXIFWriter persists the fields extracted from a photo's EXIF metadata.
type EXIFWriter interface {
	SetEXIF(ctx context.Context, key string, dateTaken *time.Time, lat, lon *float64) error
}

// NewEXIFEnricher builds the EXIF extraction stage enricher. It reads
// DateTimeOriginal and GPS coordinates from the image's EXIF block, falling
// back to the file's modification time when no EXIF date is present so every
// item still gets a date_taken for timeline and event grouping.
func NewEXIFEnricher(resolver ItemFileResolver, writer EXIFWriter) pipeline.Enricher {
	return func(ctx context.Context, key string) (pipeline.EnrichOutcome, error) {
		path, ok, err := resolver.ResolvePath(ctx, key)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("resolving path for %s: %w", key, err)
		}
		if !ok {
			return pipeline.EnrichNoop, fmt.Errorf("no path for item %s", key)
		}

		dateTaken, lat, lon := extractEXIF(path)
		if err := writer.SetEXIF(ctx, key, dateTaken, lat, lon); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("saving exif for %s: %w", key, err)
		}
		return pipeline.EnrichSuccess, nil
	}
}

// extractEXIF reads date-taken and GPS coordinates from path's EXIF block.
// Errors opening or decoding are swallowed and treated as "no EXIF data":
// the caller falls back to the filesystem modification time so the item
// still participates in date-based grouping.
func extractEXIF(path string) (dateTaken *time.Time, lat, lon *float64) {
	f, err := os.Open(path)
	if err != nil {
		return fsModTime(path), nil, nil
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return fsModTime(path), nil, nil
	}

	if dt, err := x.DateTime(); err == nil {
		dateTaken = &dt
	}

	if latVal, lonVal, err := x.LatLong(); err == nil {
		lat, lon = &latVal, &lonVal
	}

	if dateTaken == nil {
		dateTaken = fsModTime(path)
	}
	return dateTaken, lat, lon
}

// fsModTime returns path's modification time as a fallback date-taken value.
func fsModTime(path string) *time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	mtime := info.ModTime()
	return &mtime
}
