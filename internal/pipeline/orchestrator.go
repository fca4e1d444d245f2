package pipeline

import (
	"log/slog"
	"sync"
	"time"
)

// PipelineStatus is the coarse-grained state reported in a pipeline snapshot.
type PipelineStatus string

const (
	StatusIdle       PipelineStatus = "idle"
	StatusProcessing PipelineStatus = "processing"
	StatusDone       PipelineStatus = "done"
)

// PipelineStats is the telemetry snapshot described by the pipeline's
// Telemetry Publisher.
type PipelineStats struct {
	IsRunning             bool
	Status                PipelineStatus
	TotalFilesDiscovered  int64
	TotalFilesCompleted   int64
	StartTime             time.Time
	CompletedAt           time.Time
	UptimeSeconds         float64
	Queues                map[Stage]StageCounters
	Flow                  map[Stage][]Stage
}

// Orchestrator owns the topology, the per-stage queue map, the global
// discovered counter, and the pipeline's start/completion timestamps and
// liveness flag. It never inspects per-item payloads; that is the stage
// workers' job.
type Orchestrator struct {
	logger *slog.Logger

	queueCapacity int
	queues        map[Stage]*StageQueue

	mu              sync.Mutex
	totalDiscovered int64
	startTime       time.Time
	completedAt     time.Time
	running         bool
}

// NewOrchestrator builds an Orchestrator with one StageQueue per stage.
func NewOrchestrator(queueCapacity int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		logger:        logger,
		queueCapacity: queueCapacity,
		queues:        make(map[Stage]*StageQueue, len(Stages)),
	}
	for _, s := range Stages {
		o.queues[s] = NewStageQueue(s, queueCapacity)
	}
	return o
}

// Queue returns the StageQueue for s.
func (o *Orchestrator) Queue(s Stage) *StageQueue {
	return o.queues[s]
}

// AddFile admits (key, path) to Discovery, marking it active for
// telemetry and incrementing the global discovered counter on acceptance.
func (o *Orchestrator) AddFile(key, path string) AdmitOutcome {
	o.mu.Lock()
	if !o.running {
		o.running = true
		o.startTime = time.Now()
		o.completedAt = time.Time{}
	}
	o.mu.Unlock()

	outcome := o.queues[Discovery].Admit(key)
	if outcome == Accepted {
		o.mu.Lock()
		o.totalDiscovered++
		o.mu.Unlock()
		o.queues[Discovery].MarkActive(key, path)
	}
	return outcome
}

// RouteNext admits key to every successor of fromStage. Admission
// failures for successors are silently absorbed: re-admission is the
// restart path, and Full is transient backpressure retried on next
// discovery.
func (o *Orchestrator) RouteNext(key string, fromStage Stage) {
	for _, s := range Successors(fromStage) {
		outcome := o.queues[s].Admit(key)
		if outcome != Accepted {
			o.logger.Debug("route admission not accepted",
				slog.String("key", key),
				slog.String("from_stage", string(fromStage)),
				slog.String("to_stage", string(s)),
				slog.String("outcome", outcome.String()),
			)
		}
	}
}

// Snapshot returns the current pipeline telemetry snapshot. CompletedAt is
// set only once every queue reports zero pending and zero in-flight and
// total discovered is non-zero; it is cleared whenever any queue becomes
// non-quiescent.
func (o *Orchestrator) Snapshot() PipelineStats {
	queues := make(map[Stage]StageCounters, len(o.queues))
	quiescent := true
	for _, s := range Stages {
		c := o.queues[s].Snapshot()
		queues[s] = c
		if c.Pending > 0 || c.InFlight > 0 {
			quiescent = false
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if quiescent && o.totalDiscovered > 0 && o.completedAt.IsZero() {
		o.completedAt = time.Now()
	} else if !quiescent {
		o.completedAt = time.Time{}
	}

	status := StatusIdle
	if o.totalDiscovered > 0 {
		if !o.completedAt.IsZero() {
			status = StatusDone
		} else {
			status = StatusProcessing
		}
	}

	uptime := 0.0
	if !o.startTime.IsZero() {
		end := time.Now()
		if !o.completedAt.IsZero() {
			end = o.completedAt
		}
		uptime = end.Sub(o.startTime).Seconds()
	}

	flow := make(map[Stage][]Stage, len(Topology))
	for s, succ := range Topology {
		flow[s] = succ
	}

	return PipelineStats{
		IsRunning:            o.running,
		Status:               status,
		TotalFilesDiscovered: o.totalDiscovered,
		TotalFilesCompleted:  queues[Events].CompletedTotal,
		StartTime:            o.startTime,
		CompletedAt:          o.completedAt,
		UptimeSeconds:        uptime,
		Queues:               queues,
		Flow:                 flow,
	}
}

// Reset clears every queue's processed/processing sets and counters, and
// clears total_discovered and the completion time. Required before a
// fresh rescan to prevent stale per-process dedup from masking rework.
func (o *Orchestrator) Reset() {
	for _, s := range Stages {
		o.queues[s].Reset()
	}
	o.mu.Lock()
	o.totalDiscovered = 0
	o.startTime = time.Time{}
	o.completedAt = time.Time{}
	o.running = false
	o.mu.Unlock()
}
