package scheduler

import (
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_EmptyScheduleIsNoop(t *testing.T) {
	s := New(testLogger())
	require.NoError(t, s.Start("", func() {}))
	assert.True(t, s.NextRun().IsZero())
	s.Stop() // must not panic on a scheduler that never started running
}

func TestScheduler_InvalidCronIsRejected(t *testing.T) {
	s := New(testLogger())
	err := s.Start("not a cron expression", func() {})
	assert.Error(t, err)
}

func TestScheduler_FiresRescanOnSchedule(t *testing.T) {
	s := New(testLogger())
	var calls int32
	require.NoError(t, s.Start("* * * * * *", func() { atomic.AddInt32(&calls, 1) }))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, 2*time.Second, 50*time.Millisecond)

	assert.False(t, s.NextRun().IsZero())
}
