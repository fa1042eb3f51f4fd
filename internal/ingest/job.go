// Package ingest implements the document ingestion pipeline: a bounded
// job queue, a worker pool driving each document through
// parse→chunk→embed→store phases, and pull-based progress tracking.
package ingest

import (
	"time"
)

// Phase is one ordered stage of document ingestion.
type Phase string

// Ingestion phases in execution order.
const (
	PhaseParsing   Phase = "parsing"
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseStoring   Phase = "storing"
	PhaseComplete  Phase = "complete"
)

// State is the lifecycle state of an ingestion job.
type State string

// Job states.
const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Phase weights for progress reporting. Embedding dominates because it
// is the expensive phase; within it progress advances per batch.
const (
	weightParsing   = 0.10
	weightChunking  = 0.15
	weightEmbedding = 0.60
	weightStoring   = 0.15
)

// Cumulative progress at the start of each phase.
var phaseStart = map[Phase]float64{
	PhaseParsing:   0,
	PhaseChunking:  weightParsing,
	PhaseEmbedding: weightParsing + weightChunking,
	PhaseStoring:   weightParsing + weightChunking + weightEmbedding,
	PhaseComplete:  1.0,
}

// Job is the observable record of one ingestion. Records handed out
// through Get/Snapshot are value copies; only the worker processing a
// job mutates the registry's record, and always as a whole-record
// replacement.
type Job struct {
	// ID is the opaque job identifier.
	ID string

	// Source names the submitted document (file name or logical name).
	Source string

	// DocumentID is the stable identifier of the ingested document.
	DocumentID string

	// Phase is the current ingestion phase.
	Phase Phase

	// State is the lifecycle state.
	State State

	// Progress is 0.0-1.0 and monotonically non-decreasing.
	Progress float64

	// Error holds the failure message for failed jobs.
	Error string

	// ChunkCount is the number of chunks produced, set once chunking
	// completes.
	ChunkCount int

	// Warnings collects non-fatal notes from parsing and chunking.
	Warnings []string

	// StartedAt is when the worker picked the job up.
	StartedAt time.Time

	// CompletedAt is set exactly once, on transition to a terminal
	// state. No field changes after it is set.
	CompletedAt time.Time
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// clone returns a deep copy so registry snapshots never alias
// worker-owned state.
func (j *Job) clone() Job {
	copied := *j
	if j.Warnings != nil {
		copied.Warnings = append([]string(nil), j.Warnings...)
	}
	return copied
}
