package ingest

import (
	"context"
	"strconv"
	"sync"
	"time"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// DefaultQueueCapacity bounds outstanding (non-terminal) jobs.
const DefaultQueueCapacity = 32

// DefaultRetention is how long terminal jobs stay observable before
// pruning.
const DefaultRetention = 5 * time.Minute

// Queue is the job-status registry: the only mutable shared state in the
// ingestion engine. Capacity counts non-terminal jobs only, so finished
// work never blocks new submissions. Terminal jobs are retained for the
// configured window so observers can see final states, then pruned.
type Queue struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	capacity  int
	retention time.Duration
}

// entry pairs the observable job record with worker-side control state
// that is never exposed through snapshots.
type entry struct {
	job        Job
	done       chan struct{}
	cancel     context.CancelFunc
	terminalAt time.Time
}

// NewQueue creates a registry with the given capacity and terminal-job
// retention window. Non-positive arguments fall back to defaults.
func NewQueue(capacity int, retention time.Duration) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Queue{
		entries:   make(map[string]*entry),
		capacity:  capacity,
		retention: retention,
	}
}

// Submit registers a queued job. Fails fast with a capacity error when
// non-terminal jobs have reached the configured bound.
func (q *Queue) Submit(job Job, cancel context.CancelFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(time.Now())

	outstanding := 0
	for _, e := range q.entries {
		if !e.job.Terminal() {
			outstanding++
		}
	}
	if outstanding >= q.capacity {
		return qerrors.Capacity("ingestion queue is full").
			WithDetail("capacity", strconv.Itoa(q.capacity))
	}

	q.entries[job.ID] = &entry{
		job:    job.clone(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	return nil
}

// Update replaces a job record as a unit. Transition to a terminal state
// closes the job's done channel and starts the retention clock; further
// updates to a terminal job are ignored.
func (q *Queue) Update(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[job.ID]
	if !ok || e.job.Terminal() {
		return
	}

	e.job = job.clone()
	if e.job.Terminal() {
		e.terminalAt = time.Now()
		close(e.done)
	}
}

// Get returns a copy of the job record.
func (q *Queue) Get(id string) (Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	e, ok := q.entries[id]
	if !ok {
		return Job{}, false
	}
	return e.job.clone(), true
}

// Snapshot returns value copies of all observable jobs. Repeated reads
// are cheap and consistent; callers cannot mutate worker-owned state
// through the result.
func (q *Queue) Snapshot() map[string]Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make(map[string]Job, len(q.entries))
	for id, e := range q.entries {
		out[id] = e.job.clone()
	}
	return out
}

// Done returns a channel closed when the job reaches a terminal state.
// Unknown jobs get a closed channel.
func (q *Queue) Done(id string) <-chan struct{} {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if e, ok := q.entries[id]; ok {
		return e.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Cancel aborts a non-terminal job. Returns false for unknown or already
// terminal jobs.
func (q *Queue) Cancel(id string) bool {
	q.mu.RLock()
	e, ok := q.entries[id]
	var cancel context.CancelFunc
	if ok && !e.job.Terminal() {
		cancel = e.cancel
	}
	q.mu.RUnlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Prune removes terminal jobs older than the retention window.
func (q *Queue) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked(time.Now())
}

func (q *Queue) pruneLocked(now time.Time) {
	for id, e := range q.entries {
		if e.job.Terminal() && now.Sub(e.terminalAt) > q.retention {
			delete(q.entries, id)
		}
	}
}

// Outstanding returns the number of non-terminal jobs.
func (q *Queue) Outstanding() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := 0
	for _, e := range q.entries {
		if !e.job.Terminal() {
			n++
		}
	}
	return n
}
