package telemetry

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

type fakeSource struct {
	stats pipeline.PipelineStats
}

func (f *fakeSource) Snapshot() pipeline.PipelineStats {
	return f.stats
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScanTracker_BeginResetsAndSetsWalking(t *testing.T) {
	tr := NewScanTracker(nil)
	tr.Advance("stale.jpg")
	tr.Begin()

	state := tr.Snapshot()
	assert.True(t, state.IsScanning)
	assert.Equal(t, PhaseWalking, state.Phase)
	assert.Equal(t, int64(0), state.ProcessedFiles)
	assert.Empty(t, state.CurrentFile)
}

func TestScanTracker_AdvanceIncrementsCounters(t *testing.T) {
	tr := NewScanTracker(nil)
	tr.Begin()
	tr.SetTotalFiles(10)
	tr.SetPhase(PhaseIndexing, 10)

	tr.Advance("a.jpg")
	tr.Advance("b.jpg")

	state := tr.Snapshot()
	assert.Equal(t, int64(2), state.ProcessedFiles)
	assert.Equal(t, int64(2), state.PhaseProgress)
	assert.Equal(t, int64(10), state.PhaseTotal)
	assert.Equal(t, "b.jpg", state.CurrentFile)
}

func TestScanTracker_RequestCancelAndFinish(t *testing.T) {
	tr := NewScanTracker(nil)
	tr.Begin()
	tr.RequestCancel()
	assert.True(t, tr.CancelRequested())

	tr.Finish()
	state := tr.Snapshot()
	assert.False(t, state.IsScanning)
	assert.False(t, state.CancelRequested)
	assert.Equal(t, PhaseIdle, state.Phase)
}

func TestScanTracker_OnChangeFiresOnMutation(t *testing.T) {
	var seen []ScanState
	tr := NewScanTracker(func(s ScanState) { seen = append(seen, s) })

	tr.Begin()
	tr.Advance("a.jpg")

	require.Len(t, seen, 2)
	assert.True(t, seen[0].IsScanning)
	assert.Equal(t, "a.jpg", seen[1].CurrentFile)
}

func TestPublisher_SubscribePipelineDeliversImmediateSnapshot(t *testing.T) {
	source := &fakeSource{stats: pipeline.PipelineStats{
		Status:               pipeline.StatusProcessing,
		TotalFilesDiscovered: 5,
	}}
	pub := NewPublisher(source, NewScanTracker(nil), "", testLogger())

	id, events := pub.SubscribePipeline()
	defer pub.UnsubscribePipeline(id)

	select {
	case snap := <-events:
		assert.Equal(t, pipeline.StatusProcessing, snap.Status)
		assert.Equal(t, int64(5), snap.TotalFilesDiscovered)
	case <-time.After(time.Second):
		t.Fatal("expected immediate snapshot on subscribe")
	}
}

func TestPublisher_SubscribeScanDeliversImmediateSnapshot(t *testing.T) {
	tracker := NewScanTracker(nil)
	tracker.Begin()
	pub := NewPublisher(&fakeSource{}, tracker, "", testLogger())

	id, events := pub.SubscribeScan()
	defer pub.UnsubscribeScan(id)

	select {
	case state := <-events:
		assert.True(t, state.IsScanning)
	case <-time.After(time.Second):
		t.Fatal("expected immediate scan snapshot on subscribe")
	}
}

func TestPublisher_ScanTrackerChangePushesToSubscriber(t *testing.T) {
	tracker := NewScanTracker(nil)
	pub := NewPublisher(&fakeSource{}, tracker, "", testLogger())

	id, events := pub.SubscribeScan()
	defer pub.UnsubscribeScan(id)
	<-events // drain the immediate snapshot

	tracker.Begin()

	select {
	case state := <-events:
		assert.True(t, state.IsScanning)
	case <-time.After(time.Second):
		t.Fatal("expected scan state push after Begin")
	}
}

func TestPublisher_RunBroadcastsPipelineTick(t *testing.T) {
	source := &fakeSource{stats: pipeline.PipelineStats{Status: pipeline.StatusIdle}}
	pub := NewPublisher(source, NewScanTracker(nil), "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)
	defer pub.Stop()

	id, events := pub.SubscribePipeline()
	defer pub.UnsubscribePipeline(id)
	<-events // drain the immediate snapshot

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a periodic pipeline tick within 2s of a 1Hz ticker")
	}
}

func TestPublisher_UnsubscribeClosesChannel(t *testing.T) {
	pub := NewPublisher(&fakeSource{}, NewScanTracker(nil), "", testLogger())
	id, events := pub.SubscribePipeline()
	<-events

	pub.UnsubscribePipeline(id)

	_, ok := <-events
	assert.False(t, ok, "channel should be closed after unsubscribe")
}
