// Package telemetry implements the Telemetry Publisher: it aggregates the
// pipeline's per-stage counters and the Discovery scan's progress into two
// kinds of broadcast snapshots — pipeline snapshots (1 Hz tick, immediate on
// connect) and scan-state snapshots (on-change push, 30s heartbeat floor) —
// and fans them out to subscribers the way the teacher's progress service
// fans UniversalProgress events out to SSE subscribers.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/tmattsson/photocurator/internal/pipeline"
)

// ScanPhase names the phase of an in-progress Discovery walk.
type ScanPhase string

const (
	PhaseIdle     ScanPhase = "idle"
	PhaseWalking  ScanPhase = "walking"
	PhaseIndexing ScanPhase = "indexing"
	PhaseCleanup  ScanPhase = "cleanup"
)

// ScanState is the scan-state snapshot described by the Telemetry Publisher.
type ScanState struct {
	IsScanning      bool
	CancelRequested bool
	TotalFiles      int64
	ProcessedFiles  int64
	CurrentFile     string
	Phase           ScanPhase
	PhaseProgress   int64
	PhaseTotal      int64
}

// ScanTracker is the mutable, concurrency-safe state behind ScanState. The
// scan-trigger control path (cmd/HTTP API) drives it around a Discovery
// walk; the Publisher reads it on every scan-state tick.
type ScanTracker struct {
	mu       sync.Mutex
	state    ScanState
	onChange func(ScanState)
}

// NewScanTracker builds an idle ScanTracker. onChange, if non-nil, fires
// (without the tracker's lock held) after every mutation, so the Publisher
// can push an immediate scan-state event rather than waiting on its ticker.
func NewScanTracker(onChange func(ScanState)) *ScanTracker {
	return &ScanTracker{
		state:    ScanState{Phase: PhaseIdle},
		onChange: onChange,
	}
}

// Snapshot returns the current scan state.
func (t *ScanTracker) Snapshot() ScanState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Begin marks a scan as started with an as-yet-unknown total file count.
func (t *ScanTracker) Begin() {
	t.mutate(func(s *ScanState) {
		*s = ScanState{IsScanning: true, Phase: PhaseWalking}
	})
}

// SetPhase switches the active phase and resets its progress counters.
func (t *ScanTracker) SetPhase(phase ScanPhase, total int64) {
	t.mutate(func(s *ScanState) {
		s.Phase = phase
		s.PhaseProgress = 0
		s.PhaseTotal = total
	})
}

// Advance records that one more file was processed in the current phase.
func (t *ScanTracker) Advance(currentFile string) {
	t.mutate(func(s *ScanState) {
		s.ProcessedFiles++
		s.PhaseProgress++
		s.CurrentFile = currentFile
	})
}

// SetTotalFiles records the walk's discovered file count once known.
func (t *ScanTracker) SetTotalFiles(total int64) {
	t.mutate(func(s *ScanState) {
		s.TotalFiles = total
	})
}

// RequestCancel flags the in-progress scan for cancellation. Discovery's
// Scan checks this between batches; it does not interrupt in-flight work.
func (t *ScanTracker) RequestCancel() {
	t.mutate(func(s *ScanState) {
		s.CancelRequested = true
	})
}

// CancelRequested reports whether a cancel is pending, for Discovery's
// between-batch check.
func (t *ScanTracker) CancelRequested() bool {
	return t.Snapshot().CancelRequested
}

// Finish marks the scan complete and clears the cancel flag and current file.
func (t *ScanTracker) Finish() {
	t.mutate(func(s *ScanState) {
		s.IsScanning = false
		s.CancelRequested = false
		s.CurrentFile = ""
		s.Phase = PhaseIdle
	})
}

func (t *ScanTracker) mutate(fn func(*ScanState)) {
	t.mu.Lock()
	fn(&t.state)
	snapshot := t.state
	t.mu.Unlock()
	if t.onChange != nil {
		t.onChange(snapshot)
	}
}

// HostStats is the host-resource section folded into every pipeline
// snapshot per the system telemetry extension: process CPU%, RSS, and data
// directory free space, sampled once per tick.
type HostStats struct {
	ProcessCPUPercent float64
	ProcessRSSBytes   uint64
	DataDirFreeBytes  uint64
}

// PipelineSnapshot is the pipeline snapshot extended with the host section.
type PipelineSnapshot struct {
	pipeline.PipelineStats
	Host HostStats
}

// hostSampler samples process and filesystem gauges. A real *process.Process
// handle is expensive to probe on every call for CPUPercent (it needs two
// samples to compute a delta), so the Publisher keeps one alive across ticks.
type hostSampler struct {
	proc    *process.Process
	dataDir string
}

func newHostSampler(dataDir string) *hostSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &hostSampler{dataDir: dataDir}
	}
	return &hostSampler{proc: proc, dataDir: dataDir}
}

func (h *hostSampler) sample(logger *slog.Logger) HostStats {
	var stats HostStats
	if h.proc != nil {
		if pct, err := h.proc.CPUPercent(); err == nil {
			stats.ProcessCPUPercent = pct
		} else {
			logger.Debug("process cpu sample failed", slog.Any("error", err))
		}
		if mem, err := h.proc.MemoryInfo(); err == nil && mem != nil {
			stats.ProcessRSSBytes = mem.RSS
		} else if err != nil {
			logger.Debug("process memory sample failed", slog.Any("error", err))
		}
	}
	if h.dataDir != "" {
		if usage, err := disk.Usage(h.dataDir); err == nil {
			stats.DataDirFreeBytes = usage.Free
		} else {
			logger.Debug("disk usage sample failed", slog.Any("error", err), slog.String("path", h.dataDir))
		}
	}
	return stats
}

// PipelineSource is the subset of Orchestrator the Publisher reads.
type PipelineSource interface {
	Snapshot() pipeline.PipelineStats
}

type pipelineSubscriber struct {
	id     string
	events chan PipelineSnapshot
}

type scanSubscriber struct {
	id     string
	events chan ScanState
}

// Publisher broadcasts pipeline and scan-state snapshots to subscribers,
// grounded on the teacher's progress Service: buffered per-subscriber
// channels (capacity 100), a map keyed by subscriber ID, and a
// lock-held broadcast helper. Photocurator splits the single
// ProgressEvent stream into two independently-cadenced streams because the
// spec gives them different delivery semantics (1 Hz tick vs on-change push).
type Publisher struct {
	mu sync.RWMutex

	pipelineSubs map[string]*pipelineSubscriber
	scanSubs     map[string]*scanSubscriber
	nextID       int

	source  PipelineSource
	scan    *ScanTracker
	sampler *hostSampler
	logger  *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewPublisher builds a Publisher. dataDir is the filesystem path sampled
// for free space (the configured Storage.DataDir).
func NewPublisher(source PipelineSource, scan *ScanTracker, dataDir string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		pipelineSubs: make(map[string]*pipelineSubscriber),
		scanSubs:     make(map[string]*scanSubscriber),
		source:       source,
		scan:         scan,
		sampler:      newHostSampler(dataDir),
		logger:       logger.With(slog.String("component", "telemetry_publisher")),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	scan.onChange = p.broadcastScan
	return p
}

// Run drives the 1 Hz pipeline tick and the scan-state heartbeat floor
// until ctx is cancelled or Stop is called.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.broadcastPipeline()
		case <-heartbeat.C:
			p.broadcastScan(p.scan.Snapshot())
		}
	}
}

// Stop halts Run and waits for it to return.
func (p *Publisher) Stop() {
	close(p.stop)
	<-p.done
}

// SubscribePipeline registers a new pipeline-snapshot subscriber and
// delivers an immediate snapshot on the returned channel before returning.
func (p *Publisher) SubscribePipeline() (id string, events <-chan PipelineSnapshot) {
	p.mu.Lock()
	p.nextID++
	id = "pipeline-" + strconv.Itoa(p.nextID)
	sub := &pipelineSubscriber{id: id, events: make(chan PipelineSnapshot, 100)}
	p.pipelineSubs[id] = sub
	p.mu.Unlock()

	sub.events <- p.buildPipelineSnapshot()
	return id, sub.events
}

// UnsubscribePipeline removes a pipeline subscriber and closes its channel.
func (p *Publisher) UnsubscribePipeline(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.pipelineSubs[id]; ok {
		close(sub.events)
		delete(p.pipelineSubs, id)
	}
}

// SubscribeScan registers a new scan-state subscriber and delivers an
// immediate snapshot before returning.
func (p *Publisher) SubscribeScan() (id string, events <-chan ScanState) {
	p.mu.Lock()
	p.nextID++
	id = "scan-" + strconv.Itoa(p.nextID)
	sub := &scanSubscriber{id: id, events: make(chan ScanState, 100)}
	p.scanSubs[id] = sub
	p.mu.Unlock()

	sub.events <- p.scan.Snapshot()
	return id, sub.events
}

// UnsubscribeScan removes a scan subscriber and closes its channel.
func (p *Publisher) UnsubscribeScan(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.scanSubs[id]; ok {
		close(sub.events)
		delete(p.scanSubs, id)
	}
}

// Snapshot returns a single point-in-time pipeline snapshot, for the
// control surface's pipeline_snapshot() REST operation (as distinct from
// the ticked SubscribePipeline stream).
func (p *Publisher) Snapshot() PipelineSnapshot {
	return p.buildPipelineSnapshot()
}

// ScanSnapshot returns a single point-in-time scan-state snapshot, for the
// control surface's scan_snapshot() REST operation.
func (p *Publisher) ScanSnapshot() ScanState {
	return p.scan.Snapshot()
}

func (p *Publisher) buildPipelineSnapshot() PipelineSnapshot {
	return PipelineSnapshot{
		PipelineStats: p.source.Snapshot(),
		Host:          p.sampler.sample(p.logger),
	}
}

func (p *Publisher) broadcastPipeline() {
	snapshot := p.buildPipelineSnapshot()

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sub := range p.pipelineSubs {
		select {
		case sub.events <- snapshot:
		default:
			p.logger.Warn("dropping pipeline snapshot, subscriber channel full", slog.String("subscriber_id", sub.id))
		}
	}
}

// broadcastScan is ScanTracker's onChange hook, and is also invoked by
// Run's 30s heartbeat ticker so a quiet scan (or an idle pipeline) still
// produces a periodic keepalive for subscribers.
func (p *Publisher) broadcastScan(state ScanState) {
	p.mu.Lock()
	subs := make([]*scanSubscriber, 0, len(p.scanSubs))
	for _, sub := range p.scanSubs {
		subs = append(subs, sub)
	}
	p.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.events <- state:
		default:
			p.logger.Warn("dropping scan snapshot, subscriber channel full", slog.String("subscriber_id", sub.id))
		}
	}
}

