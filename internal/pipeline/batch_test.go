package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeBatchStore struct {
	clusterCalls int32
	detectCalls  int32
}

func (f *fakeBatchStore) ClusterFaces(_ context.Context) error {
	atomic.AddInt32(&f.clusterCalls, 1)
	return nil
}

func (f *fakeBatchStore) DetectEvents(_ context.Context) error {
	atomic.AddInt32(&f.detectCalls, 1)
	return nil
}

func TestBatchCoordinator_RunsClusteringThenDetectionAfterDrain(t *testing.T) {
	orch := NewOrchestrator(10, nil)
	store := &fakeBatchStore{}
	cfg := BatchCoordinatorConfig{
		PollInterval: 10 * time.Millisecond,
		Debounce:     10 * time.Millisecond,
		DrainTimeout: 10 * time.Millisecond,
		QuiesceSleep: 10 * time.Millisecond,
	}
	coord := NewBatchCoordinator(orch, store, cfg, nil)

	orch.Queue(Events).Admit("k1")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	coord.Run(ctx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&store.clusterCalls), int32(1))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&store.detectCalls), int32(1))
	assert.EqualValues(t, 1, orch.Queue(Events).Snapshot().CompletedTotal)
}

func TestBatchCoordinator_SkipsCycleWhenNothingPending(t *testing.T) {
	orch := NewOrchestrator(10, nil)
	store := &fakeBatchStore{}
	cfg := BatchCoordinatorConfig{
		PollInterval: 10 * time.Millisecond,
		Debounce:     10 * time.Millisecond,
		DrainTimeout: 10 * time.Millisecond,
		QuiesceSleep: 10 * time.Millisecond,
	}
	coord := NewBatchCoordinator(orch, store, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	coord.Run(ctx)

	assert.EqualValues(t, 0, atomic.LoadInt32(&store.clusterCalls))
}

func TestBatchCoordinator_WaitsForUpstreamQuiescence(t *testing.T) {
	orch := NewOrchestrator(10, nil)
	store := &fakeBatchStore{}
	cfg := BatchCoordinatorConfig{
		PollInterval: 10 * time.Millisecond,
		Debounce:     10 * time.Millisecond,
		DrainTimeout: 10 * time.Millisecond,
		QuiesceSleep: 20 * time.Millisecond,
	}
	coord := NewBatchCoordinator(orch, store, cfg, nil)

	orch.Queue(Events).Admit("k1")
	orch.Queue(EXIF).Admit("busy") // upstream stage kept non-quiescent

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	coord.Run(ctx)

	// With an upstream stage permanently pending, the batch should not
	// have run yet within this short window.
	assert.EqualValues(t, 0, atomic.LoadInt32(&store.clusterCalls))
}
