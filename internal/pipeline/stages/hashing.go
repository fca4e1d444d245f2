package stages

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/corona10/goimagehash"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

// HashWriter persists an item's perceptual hashes.
type HashWriter interface {
	SetHashes(ctx context.Context, key string, phash, ahash, dhash *string) error
}

// NewHashingEnricher builds the Hashing stage enricher. It computes
// perceptual (phash), average (ahash), and difference (dhash) hashes for
// near-duplicate detection, mirroring the original imagehash-based service.
func NewHashingEnricher(resolver ItemFileResolver, writer HashWriter) pipeline.Enricher {
	return func(ctx context.Context, key string) (pipeline.EnrichOutcome, error) {
		path, ok, err := resolver.ResolvePath(ctx, key)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("resolving path for %s: %w", key, err)
		}
		if !ok {
			return pipeline.EnrichNoop, fmt.Errorf("no path for item %s", key)
		}

		f, err := os.Open(path)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		img, _, err := image.Decode(f)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("decoding %s: %w", path, err)
		}

		p, err := goimagehash.PerceptionHash(img)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("computing phash for %s: %w", key, err)
		}
		a, err := goimagehash.AverageHash(img)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("computing ahash for %s: %w", key, err)
		}
		d, err := goimagehash.DifferenceHash(img)
		if err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("computing dhash for %s: %w", key, err)
		}

		phash, ahash, dhash := p.ToString(), a.ToString(), d.ToString()
		if err := writer.SetHashes(ctx, key, &phash, &ahash, &dhash); err != nil {
			return pipeline.EnrichNoop, fmt.Errorf("saving hashes for %s: %w", key, err)
		}
		return pipeline.EnrichSuccess, nil
	}
}
