package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// maxQuiescenceWaits bounds the Batch Coordinator's quiescence wait at 60
// iterations of its 5-second sleep (5 minutes), guaranteeing progress even
// if an upstream stage is deadlocked or stalled on a slow external
// enricher.
const maxQuiescenceWaits = 60

// BatchStore performs the whole-corpus recomputations the EVENTS stage
// triggers: face clustering followed by event detection.
type BatchStore interface {
	ClusterFaces(ctx context.Context) error
	DetectEvents(ctx context.Context) error
}

// BatchCoordinatorConfig tunes the coordinator's timing. Zero values fall
// back to the spec's defaults.
type BatchCoordinatorConfig struct {
	PollInterval  time.Duration
	Debounce      time.Duration
	DrainTimeout  time.Duration
	QuiesceSleep  time.Duration
}

func (c BatchCoordinatorConfig) withDefaults() BatchCoordinatorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 5 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 500 * time.Millisecond
	}
	if c.QuiesceSleep <= 0 {
		c.QuiesceSleep = 5 * time.Second
	}
	return c
}

// BatchCoordinator is the single logical worker for the terminal EVENTS
// stage. Per-item per-stage processing would make whole-corpus
// recomputation O(N^2); instead it drains EVENTS, waits for the rest of
// the pipeline to go quiet, then runs face clustering and event detection
// once per coherent burst of new items.
type BatchCoordinator struct {
	orch   *Orchestrator
	store  BatchStore
	cfg    BatchCoordinatorConfig
	logger *slog.Logger
}

// NewBatchCoordinator builds a coordinator draining the EVENTS queue of orch.
func NewBatchCoordinator(orch *Orchestrator, store BatchStore, cfg BatchCoordinatorConfig, logger *slog.Logger) *BatchCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchCoordinator{
		orch:   orch,
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Run loops until ctx is cancelled, executing one batch cycle per coherent
// burst of items reaching EVENTS.
func (b *BatchCoordinator) Run(ctx context.Context) {
	queue := b.orch.Queue(Events)
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if queue.Snapshot().Pending == 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.Debounce):
		}

		drained := b.drain(ctx, queue)
		b.waitForQuiescence(ctx, queue)
		if ctx.Err() != nil {
			return
		}

		b.logger.Info("batch coordinator: running batch recomputation",
			slog.Int("drained", drained),
		)

		if err := b.store.ClusterFaces(ctx); err != nil {
			b.logger.Warn("batch coordinator: face clustering failed", slog.String("error", err.Error()))
		}
		if err := b.store.DetectEvents(ctx); err != nil {
			b.logger.Warn("batch coordinator: event detection failed", slog.String("error", err.Error()))
		}
	}
}

// drain repeatedly takes from queue with a short timeout, finishing each
// key as Completed, until the queue is empty for one full timeout.
func (b *BatchCoordinator) drain(ctx context.Context, queue *StageQueue) int {
	drained := 0
	for {
		select {
		case <-ctx.Done():
			return drained
		default:
		}

		key, ok := queue.TakeTimeout(b.cfg.DrainTimeout)
		if !ok {
			return drained
		}
		queue.Finish(key, Completed)
		drained++
	}
}

// waitForQuiescence blocks until every upstream stage reports zero
// pending and zero in-flight, re-draining EVENTS between checks, bounded
// at maxQuiescenceWaits iterations.
func (b *BatchCoordinator) waitForQuiescence(ctx context.Context, queue *StageQueue) {
	upstream := Stages[:len(Stages)-1] // everything but EVENTS itself

	for i := 0; i < maxQuiescenceWaits; i++ {
		quiet := true
		for _, s := range upstream {
			c := b.orch.Queue(s).Snapshot()
			if c.Pending > 0 || c.InFlight > 0 {
				quiet = false
				break
			}
		}
		if quiet {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.QuiesceSleep):
		}
		b.drain(ctx, queue)
	}

	b.logger.Warn("batch coordinator: quiescence wait hit hard cap, proceeding anyway",
		slog.Int("max_waits", maxQuiescenceWaits),
	)
}
