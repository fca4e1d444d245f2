package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmattsson/photocurator/internal/telemetry"
)

// SSEHandler streams the Telemetry Publisher's two snapshot kinds over
// Server-Sent Events. Registered directly on the chi router, bypassing
// huma, which has no native SSE streaming support.
type SSEHandler struct {
	pub               *telemetry.Publisher
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewSSEHandler builds an SSEHandler.
func NewSSEHandler(pub *telemetry.Publisher, logger *slog.Logger) *SSEHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEHandler{pub: pub, heartbeatInterval: 30 * time.Second, logger: logger}
}

// RegisterSSE mounts the pipeline and scan-state event streams.
func (h *SSEHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/pipeline/events", h.handlePipelineEvents)
	router.Get("/api/v1/scan/events", h.handleScanEvents)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func (h *SSEHandler) handlePipelineEvents(w http.ResponseWriter, r *http.Request) {
	setSSEHeaders(w)
	id, events := h.pub.SubscribePipeline()
	defer h.pub.UnsubscribePipeline(id)

	rc := http.NewResponseController(w)
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	ctx := r.Context()

	fmt.Fprint(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case snapshot, ok := <-events:
			if !ok {
				return
			}
			if !h.writeEvent(w, rc, "pipeline_snapshot", snapshot) {
				return
			}
		}
	}
}

func (h *SSEHandler) handleScanEvents(w http.ResponseWriter, r *http.Request) {
	setSSEHeaders(w)
	id, events := h.pub.SubscribeScan()
	defer h.pub.UnsubscribeScan(id)

	rc := http.NewResponseController(w)
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	ctx := r.Context()

	fmt.Fprint(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case state, ok := <-events:
			if !ok {
				return
			}
			if !h.writeEvent(w, rc, "scan_state", state) {
				return
			}
		}
	}
}

func (h *SSEHandler) writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal SSE payload", slog.String("event", event), slog.String("error", err.Error()))
		return false
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		h.logger.Debug("SSE write failed, client likely disconnected", slog.String("error", err.Error()))
		return false
	}
	if err := rc.Flush(); err != nil {
		h.logger.Debug("SSE flush failed, client likely disconnected", slog.String("error", err.Error()))
		return false
	}
	return true
}
