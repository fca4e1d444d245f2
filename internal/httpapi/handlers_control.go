package httpapi

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/internal/telemetry"
)

// ControlHandler exposes the pipeline's control surface (spec §6.2): scan
// lifecycle, telemetry snapshots, and per-stage diagnostics.
type ControlHandler struct {
	scan *ScanController
	orch *pipeline.Orchestrator
	pub  *telemetry.Publisher
}

// NewControlHandler builds a ControlHandler.
func NewControlHandler(scan *ScanController, orch *pipeline.Orchestrator, pub *telemetry.Publisher) *ControlHandler {
	return &ControlHandler{scan: scan, orch: orch, pub: pub}
}

// Register wires every control operation onto api.
func (h *ControlHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "triggerScan",
		Method:      "POST",
		Path:        "/api/v1/scan/trigger",
		Summary:     "Trigger a full discovery scan",
		Tags:        []string{"Control"},
	}, h.TriggerScan)

	huma.Register(api, huma.Operation{
		OperationID: "cancelScan",
		Method:      "POST",
		Path:        "/api/v1/scan/cancel",
		Summary:     "Request cancellation of the in-progress scan",
		Tags:        []string{"Control"},
	}, h.CancelScan)

	huma.Register(api, huma.Operation{
		OperationID: "clearIndex",
		Method:      "POST",
		Path:        "/api/v1/index/clear",
		Summary:     "Delete all persisted records and reset the orchestrator",
		Tags:        []string{"Control"},
	}, h.ClearIndex)

	huma.Register(api, huma.Operation{
		OperationID: "pipelineSnapshot",
		Method:      "GET",
		Path:        "/api/v1/pipeline/snapshot",
		Summary:     "Point-in-time pipeline telemetry snapshot",
		Tags:        []string{"Telemetry"},
	}, h.PipelineSnapshot)

	huma.Register(api, huma.Operation{
		OperationID: "scanSnapshot",
		Method:      "GET",
		Path:        "/api/v1/scan/snapshot",
		Summary:     "Point-in-time scan-state snapshot",
		Tags:        []string{"Telemetry"},
	}, h.ScanSnapshot)

	huma.Register(api, huma.Operation{
		OperationID: "queueSnapshot",
		Method:      "GET",
		Path:        "/api/v1/pipeline/queues/{stage}",
		Summary:     "Point-in-time counters for a single stage queue",
		Tags:        []string{"Telemetry"},
	}, h.QueueSnapshot)

	huma.Register(api, huma.Operation{
		OperationID: "clearProcessed",
		Method:      "POST",
		Path:        "/api/v1/pipeline/queues/{stage}/clear_processed",
		Summary:     "Clear a stage's processed-dedup set (diagnostic)",
		Description: "Allows stuck items to be re-admitted without resetting totals.",
		Tags:        []string{"Control"},
	}, h.ClearProcessed)
}

// StatusOutput is the response shape shared by every status-returning
// control operation.
type StatusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// TriggerScanInput is empty; trigger_scan() takes no parameters.
type TriggerScanInput struct{}

// TriggerScan implements trigger_scan().
func (h *ControlHandler) TriggerScan(ctx context.Context, _ *TriggerScanInput) (*StatusOutput, error) {
	out := &StatusOutput{}
	out.Body.Status = h.scan.TriggerScan()
	return out, nil
}

// CancelScanInput is empty; cancel_scan() takes no parameters.
type CancelScanInput struct{}

// CancelScan implements cancel_scan().
func (h *ControlHandler) CancelScan(ctx context.Context, _ *CancelScanInput) (*StatusOutput, error) {
	out := &StatusOutput{}
	out.Body.Status = h.scan.CancelScan()
	return out, nil
}

// ClearIndexInput is empty; clear_index() takes no parameters.
type ClearIndexInput struct{}

// ClearIndex implements clear_index().
func (h *ControlHandler) ClearIndex(ctx context.Context, _ *ClearIndexInput) (*StatusOutput, error) {
	status, err := h.scan.ClearIndex(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to clear index", err)
	}
	out := &StatusOutput{}
	out.Body.Status = status
	return out, nil
}

// PipelineSnapshotInput is empty; pipeline_snapshot() takes no parameters.
type PipelineSnapshotInput struct{}

// PipelineSnapshotOutput wraps the telemetry.PipelineSnapshot body.
type PipelineSnapshotOutput struct {
	Body telemetry.PipelineSnapshot
}

// PipelineSnapshot implements pipeline_snapshot().
func (h *ControlHandler) PipelineSnapshot(ctx context.Context, _ *PipelineSnapshotInput) (*PipelineSnapshotOutput, error) {
	return &PipelineSnapshotOutput{Body: h.pub.Snapshot()}, nil
}

// ScanSnapshotInput is empty; scan_snapshot() takes no parameters.
type ScanSnapshotInput struct{}

// ScanSnapshotOutput wraps the telemetry.ScanState body.
type ScanSnapshotOutput struct {
	Body telemetry.ScanState
}

// ScanSnapshot implements scan_snapshot().
func (h *ControlHandler) ScanSnapshot(ctx context.Context, _ *ScanSnapshotInput) (*ScanSnapshotOutput, error) {
	return &ScanSnapshotOutput{Body: h.pub.ScanSnapshot()}, nil
}

// StageInput identifies a stage path parameter, validated against the
// fixed Stage enum.
type StageInput struct {
	Stage string `path:"stage" doc:"Pipeline stage name" enum:"discovery,exif,geocoding,thumbnails,motion,hashing,faces,captioning,events"`
}

// QueueSnapshotOutput wraps a single stage's counters.
type QueueSnapshotOutput struct {
	Body pipeline.StageCounters
}

// QueueSnapshot implements queue_snapshot(stage).
func (h *ControlHandler) QueueSnapshot(ctx context.Context, input *StageInput) (*QueueSnapshotOutput, error) {
	stage := pipeline.Stage(input.Stage)
	queue := h.orch.Queue(stage)
	if queue == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("unknown stage %q", input.Stage))
	}
	return &QueueSnapshotOutput{Body: queue.Snapshot()}, nil
}

// ClearProcessed implements clear_processed(stage).
func (h *ControlHandler) ClearProcessed(ctx context.Context, input *StageInput) (*StatusOutput, error) {
	stage := pipeline.Stage(input.Stage)
	queue := h.orch.Queue(stage)
	if queue == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("unknown stage %q", input.Stage))
	}
	queue.ClearProcessed()
	out := &StatusOutput{}
	out.Body.Status = "processed_cleared"
	return out, nil
}
