package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/internal/telemetry"
)

func TestSSEHandler_PipelineEventsDeliversImmediateSnapshot(t *testing.T) {
	orch := pipeline.NewOrchestrator(10, testLogger())
	pub := telemetry.NewPublisher(orch, telemetry.NewScanTracker(nil), "", testLogger())
	h := NewSSEHandler(pub, testLogger())
	h.heartbeatInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipeline/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.handlePipelineEvents(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "event: pipeline_snapshot")
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var sawConnected bool
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), ":connected") {
			sawConnected = true
		}
	}
	assert.True(t, sawConnected)
}

func TestSSEHandler_ScanEventsDeliversImmediateSnapshot(t *testing.T) {
	tracker := telemetry.NewScanTracker(nil)
	orch := pipeline.NewOrchestrator(10, testLogger())
	pub := telemetry.NewPublisher(orch, tracker, "", testLogger())
	h := NewSSEHandler(pub, testLogger())
	h.heartbeatInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scan/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.handleScanEvents(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "event: scan_state")
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
