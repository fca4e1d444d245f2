package pipeline

import (
	"sync"
	"time"
)

// AdmitOutcome is the result of admitting a key to a StageQueue.
type AdmitOutcome int

const (
	Accepted AdmitOutcome = iota
	DuplicateProcessed
	DuplicateInFlight
	Full
)

func (o AdmitOutcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case DuplicateProcessed:
		return "duplicate_processed"
	case DuplicateInFlight:
		return "duplicate_in_flight"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// FinishOutcome is the terminal state a key reaches when a worker is done with it.
type FinishOutcome int

const (
	Completed FinishOutcome = iota
	Failed
)

// admitWait is how long admit() waits for channel space before reporting Full.
const admitWait = 5 * time.Second

// takeTimeout is how long take() waits for a key before returning ok=false,
// so worker loops can observe a stop signal between polls.
const takeTimeout = 1 * time.Second

// StageCounters is an instantaneous snapshot of a StageQueue's state.
type StageCounters struct {
	Stage          Stage
	Pending        int
	InFlight       int
	CompletedTotal int64
	FailedTotal    int64
	SkippedTotal   int64
	LastFinishedAt time.Time
	CurrentKey     string
	CurrentPath    string
}

// StageQueue is the bounded FIFO and bookkeeping for a single pipeline
// stage. Admit refuses keys that are in processing or processed, but it
// does not track keys already waiting in the key channel, so a key admitted
// twice before it is taken is queued twice. All set mutations and counter
// updates are serialized by mu. take() blocks without holding mu.
type StageQueue struct {
	stage      Stage
	keyChannel chan string

	mu         sync.Mutex
	processing map[string]bool
	processed  map[string]bool

	completedTotal int64
	failedTotal    int64
	skippedTotal   int64
	lastFinishedAt time.Time
	currentKey     string
	currentPath    string
}

// NewStageQueue creates a StageQueue for stage with the given channel capacity.
func NewStageQueue(stage Stage, capacity int) *StageQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &StageQueue{
		stage:      stage,
		keyChannel: make(chan string, capacity),
		processing: make(map[string]bool),
		processed:  make(map[string]bool),
	}
}

// Admit accepts key unless it is already processed, in flight, or the
// channel stays full for admitWait.
func (q *StageQueue) Admit(key string) AdmitOutcome {
	q.mu.Lock()
	if q.processed[key] {
		q.skippedTotal++
		q.mu.Unlock()
		return DuplicateProcessed
	}
	if q.processing[key] {
		q.mu.Unlock()
		return DuplicateInFlight
	}
	q.mu.Unlock()

	select {
	case q.keyChannel <- key:
		return Accepted
	case <-time.After(admitWait):
		return Full
	}
}

// Take blocks up to takeTimeout for the next key. ok is false on timeout.
func (q *StageQueue) Take() (key string, ok bool) {
	return q.TakeTimeout(takeTimeout)
}

// TakeTimeout is Take with a caller-supplied timeout, used by the Batch
// Coordinator's tighter drain polling interval.
func (q *StageQueue) TakeTimeout(timeout time.Duration) (key string, ok bool) {
	select {
	case key = <-q.keyChannel:
	case <-time.After(timeout):
		return "", false
	}

	q.mu.Lock()
	q.processing[key] = true
	q.mu.Unlock()
	return key, true
}

// Finish removes key from processing, inserts it into processed, and
// updates counters and the matching total.
func (q *StageQueue) Finish(key string, outcome FinishOutcome) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, key)
	q.processed[key] = true

	switch outcome {
	case Completed:
		q.completedTotal++
	case Failed:
		q.failedTotal++
	}
	q.lastFinishedAt = time.Now()

	if q.currentKey == key {
		q.currentKey = ""
		q.currentPath = ""
	}
}

// MarkActive records the key/path currently being worked, for telemetry.
func (q *StageQueue) MarkActive(key, path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.currentKey = key
	q.currentPath = path
}

// Snapshot returns a point-in-time copy of the queue's counters.
func (q *StageQueue) Snapshot() StageCounters {
	q.mu.Lock()
	defer q.mu.Unlock()
	return StageCounters{
		Stage:          q.stage,
		Pending:        len(q.keyChannel),
		InFlight:       len(q.processing),
		CompletedTotal: q.completedTotal,
		FailedTotal:    q.failedTotal,
		SkippedTotal:   q.skippedTotal,
		LastFinishedAt: q.lastFinishedAt,
		CurrentKey:     q.currentKey,
		CurrentPath:    q.currentPath,
	}
}

// Reset clears the processing and processed sets and all counters. Used
// before a fresh rescan so stale per-process dedup does not mask rework;
// the channel itself is left alone (it should already be drained).
func (q *StageQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = make(map[string]bool)
	q.processed = make(map[string]bool)
	q.completedTotal = 0
	q.failedTotal = 0
	q.skippedTotal = 0
	q.lastFinishedAt = time.Time{}
	q.currentKey = ""
	q.currentPath = ""
}

// ClearProcessed clears only the processed set, allowing stuck items to be
// re-admitted without resetting totals. Diagnostic operation exposed via
// the control surface's clear_processed(stage).
func (q *StageQueue) ClearProcessed() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processed = make(map[string]bool)
}
