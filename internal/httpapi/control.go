package httpapi

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tmattsson/photocurator/internal/discovery"
	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/internal/repository"
	"github.com/tmattsson/photocurator/internal/telemetry"
)

// Scan status strings returned by the control surface, matching spec §6.2
// literally.
const (
	StatusAlreadyScanning      = "already_scanning"
	StatusScanStarted          = "scan_started"
	StatusNotScanning          = "not_scanning"
	StatusCancelRequested      = "cancel_requested"
	StatusIndexCleared         = "index_cleared"
	StatusCannotClearWhileScan = "cannot_clear_while_scanning"
)

// ScanController owns the one-scan-at-a-time invariant behind trigger_scan/
// cancel_scan/clear_index, driving discovery.Scanner and telemetry.ScanTracker
// together the way cmd wires the rest of the pipeline.
type ScanController struct {
	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc

	scanner   *discovery.Scanner
	tracker   *telemetry.ScanTracker
	photosDir string
	orch      *pipeline.Orchestrator
	items     repository.ItemRepository
	logger    *slog.Logger
}

// NewScanController wires scanner's progress hook to tracker so every
// triggered scan drives live scan-state snapshots.
func NewScanController(scanner *discovery.Scanner, tracker *telemetry.ScanTracker, photosDir string, orch *pipeline.Orchestrator, items repository.ItemRepository, logger *slog.Logger) *ScanController {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ScanController{
		scanner:   scanner,
		tracker:   tracker,
		photosDir: photosDir,
		orch:      orch,
		items:     items,
		logger:    logger.With(slog.String("component", "scan_controller")),
	}
	scanner.SetProgressHook(func(total, processed int, path string) {
		if processed == 0 {
			tracker.SetTotalFiles(int64(total))
			tracker.SetPhase(telemetry.PhaseIndexing, int64(total))
			return
		}
		tracker.Advance(path)
	})
	return c
}

// TriggerScan starts a full Discovery walk in the background unless one is
// already running.
func (c *ScanController) TriggerScan() string {
	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return StatusAlreadyScanning
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.scanning = true
	c.cancel = cancel
	c.mu.Unlock()

	c.tracker.Begin()

	go func() {
		defer func() {
			c.mu.Lock()
			c.scanning = false
			c.cancel = nil
			c.mu.Unlock()
			c.tracker.Finish()
		}()

		stats, err := c.scanner.Scan(ctx, c.photosDir, c.tracker.CancelRequested)
		if err != nil {
			c.logger.Error("scan failed", slog.String("error", err.Error()))
			return
		}
		c.logger.Info("scan completed",
			slog.Int("total", stats.Total),
			slog.Int("new", stats.New),
			slog.Int("updated", stats.Updated),
			slog.Int("skipped", stats.Skipped),
			slog.Int("errors", stats.Errors),
			slog.Int("removed", stats.Removed),
		)
	}()

	return StatusScanStarted
}

// CancelScan requests cooperative cancellation of an in-progress scan.
// Discovery checks the flag between batches, not mid-batch.
func (c *ScanController) CancelScan() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.scanning {
		return StatusNotScanning
	}
	c.tracker.RequestCancel()
	return StatusCancelRequested
}

// ClearIndex deletes every persisted record and resets the orchestrator,
// refusing while a scan is in flight since a concurrent walk would race
// the deletion with new inserts.
func (c *ScanController) ClearIndex(ctx context.Context) (string, error) {
	c.mu.Lock()
	scanning := c.scanning
	c.mu.Unlock()
	if scanning {
		return StatusCannotClearWhileScan, nil
	}

	if err := c.items.ClearAll(ctx); err != nil {
		return "", err
	}
	c.orch.Reset()
	return StatusIndexCleared, nil
}
