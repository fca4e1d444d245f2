package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// EnrichOutcome is what a stage's enricher function reports after running.
type EnrichOutcome int

const (
	// EnrichSuccess means the enricher persisted its side effects and set
	// the stage's completion flag.
	EnrichSuccess EnrichOutcome = iota
	// EnrichNoop means the enricher had nothing to do (e.g. item not
	// eligible for this stage) and made no persistent change.
	EnrichNoop
)

// Enricher performs one stage's work for a single item, addressed by its
// content key. Implementations live in internal/pipeline/stages.
type Enricher func(ctx context.Context, key string) (EnrichOutcome, error)

// ItemResolver resolves store-side facts a worker needs before invoking
// its enricher: the item's current path, and whether the stage's
// persistent completion flag is already set.
type ItemResolver interface {
	// ResolvePath returns the item's current primary path, or ok=false if
	// the store has no record for key.
	ResolvePath(ctx context.Context, key string) (path string, ok bool, err error)
	// StageComplete reports the persistent completion flag for stage and key.
	StageComplete(ctx context.Context, stage Stage, key string) (bool, error)
}

// StageWorker is pinned to one stage and repeatedly drains its queue.
type StageWorker struct {
	stage     Stage
	queue     *StageQueue
	orch      *Orchestrator
	resolver  ItemResolver
	enricher  Enricher
	required  bool
	logger    *slog.Logger
}

// NewStageWorker builds a worker for stage. Its required/optional failure
// policy is taken from Required(stage).
func NewStageWorker(stage Stage, orch *Orchestrator, resolver ItemResolver, enricher Enricher, logger *slog.Logger) *StageWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageWorker{
		stage:    stage,
		queue:    orch.Queue(stage),
		orch:     orch,
		resolver: resolver,
		enricher: enricher,
		required: Required(stage),
		logger:   logger,
	}
}

// Run drains the worker's queue until ctx is cancelled. Each Take()
// timeout is an opportunity to observe cancellation, per §4.2 step 1.
func (w *StageWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		key, ok := w.queue.Take()
		if !ok {
			continue
		}
		w.process(ctx, key)
	}
}

// process implements the full per-key worker contract: resolve, mark
// active, fast-path idempotence, invoke the enricher, then finish+route
// per the stage's success/failure policy.
func (w *StageWorker) process(ctx context.Context, key string) {
	path, ok, err := w.resolver.ResolvePath(ctx, key)
	if err != nil || !ok {
		w.logger.Warn("worker: no store record for key, failing without route",
			slog.String("stage", string(w.stage)),
			slog.String("key", key),
		)
		w.queue.Finish(key, Failed)
		return
	}
	w.queue.MarkActive(key, path)

	if complete, err := w.resolver.StageComplete(ctx, w.stage, key); err == nil && complete {
		w.queue.Finish(key, Completed)
		w.orch.RouteNext(key, w.stage)
		return
	}

	start := time.Now()
	outcome, err := w.enricher(ctx, key)
	elapsed := time.Since(start)

	if err != nil {
		w.logger.Warn("worker: enricher failed",
			slog.String("stage", string(w.stage)),
			slog.String("key", key),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed),
		)
		if w.required {
			// Failed, do NOT route: the item is stuck at this stage until
			// a future rescan re-admits it once the persistent flag is
			// still false.
			w.queue.Finish(key, Failed)
			return
		}
		// Optional stages never block downstream progress: advance
		// despite the error.
		w.queue.Finish(key, Completed)
		w.orch.RouteNext(key, w.stage)
		return
	}

	if outcome == EnrichNoop {
		w.logger.Debug("worker: enricher no-op",
			slog.String("stage", string(w.stage)),
			slog.String("key", key),
		)
	}
	w.queue.Finish(key, Completed)
	w.orch.RouteNext(key, w.stage)
}
