// Package resume implements the startup Resume Coordinator: it finds items
// missing any required-stage completion flag and re-admits them to the
// pipeline, so a process restart picks back up exactly where it left off.
package resume

import (
	"context"
	"log/slog"
	"time"

	"github.com/tmattsson/photocurator/internal/models"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

// batchSize and yieldInterval match the spec's Resume Coordinator cadence:
// batches of 50 with a 500ms yield between, keeping memory bounded and
// letting workers make progress on admitted items before the next fetch.
const (
	batchSize     = 50
	yieldInterval = 500 * time.Millisecond
)

// ItemSource is the subset of ItemRepository the Resume Coordinator needs.
type ItemSource interface {
	MissingRequiredFlags(ctx context.Context, limit, offset int) ([]*models.Item, error)
}

// Admitter admits an item to the pipeline.
type Admitter interface {
	AddFile(key, path string) pipeline.AdmitOutcome
}

// Coordinator re-admits unfinished items on startup.
type Coordinator struct {
	store  ItemSource
	orch   Admitter
	logger *slog.Logger
}

// New builds a Coordinator.
func New(store ItemSource, orch Admitter, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, orch: orch, logger: logger}
}

// Result summarizes one Run.
type Result struct {
	Admitted int
	Batches  int
}

// Run sweeps the currently-missing set once, paginating in batches of 50
// with a 500ms yield between fetches, re-admitting every item found. Offset
// advances by the batch size on every fetch rather than staying at zero, so
// an item that can never complete (e.g. its backing file is gone) is
// admitted once per Run and does not spin the loop forever; the spec's
// at-least-once delivery model tolerates the rare case where something
// finishes mid-sweep and its slot is skipped on this pass — it is already
// done, and Discovery's cleanup will eventually drop true orphans.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	var result Result
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		items, err := c.store.MissingRequiredFlags(ctx, batchSize, offset)
		if err != nil {
			return result, err
		}
		if len(items) == 0 {
			break
		}
		result.Batches++
		offset += len(items)

		for _, item := range items {
			c.orch.AddFile(item.ItemKey, item.PrimaryPath)
			result.Admitted++
		}

		c.logger.Info("resume coordinator admitted batch",
			slog.Int("batch_size", len(items)), slog.Int("total_admitted", result.Admitted))

		if len(items) < batchSize {
			break
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(yieldInterval):
		}
	}

	c.logger.Info("resume coordinator complete", slog.Int("total_admitted", result.Admitted), slog.Int("batches", result.Batches))
	return result, nil
}
