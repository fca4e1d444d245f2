package httpapi

import (
	"log/slog"

	"github.com/tmattsson/photocurator/internal/discovery"
	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/internal/repository"
	"github.com/tmattsson/photocurator/internal/telemetry"
)

// Deps bundles everything the API needs to wire its handlers, mirroring
// what cmd/photocurator assembles at startup.
type Deps struct {
	Scanner   *discovery.Scanner
	Tracker   *telemetry.ScanTracker
	PhotosDir string
	Orch      *pipeline.Orchestrator
	Publisher *telemetry.Publisher
	Items     repository.ItemRepository
	Persons   repository.PersonRepository
	Events    repository.EventRepository
	Logger    *slog.Logger
}

// Mount builds the ScanController and every handler, registering REST
// operations on s.API() and SSE routes directly on s.Router().
func Mount(s *Server, deps Deps) *ScanController {
	scan := NewScanController(deps.Scanner, deps.Tracker, deps.PhotosDir, deps.Orch, deps.Items, deps.Logger)

	NewControlHandler(scan, deps.Orch, deps.Publisher).Register(s.API())
	NewReadHandler(deps.Items, deps.Persons, deps.Events).Register(s.API())
	NewSSEHandler(deps.Publisher, deps.Logger).RegisterSSE(s.Router())

	return scan
}
