package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

func queuedJob(id string) Job {
	return Job{ID: id, Source: id + ".md", Phase: PhaseParsing, State: StateQueued}
}

func TestQueue_CapacityBound(t *testing.T) {
	q := NewQueue(2, time.Minute)

	require.NoError(t, q.Submit(queuedJob("j1"), nil))
	require.NoError(t, q.Submit(queuedJob("j2"), nil))

	err := q.Submit(queuedJob("j3"), nil)
	require.Error(t, err)
	assert.True(t, qerrors.IsCapacity(err))
	assert.True(t, qerrors.IsRetryable(err), "queue-full is backpressure, not failure")
}

func TestQueue_TerminalJobFreesSlot(t *testing.T) {
	q := NewQueue(1, time.Minute)
	require.NoError(t, q.Submit(queuedJob("j1"), nil))
	require.Error(t, q.Submit(queuedJob("j2"), nil))

	done := Job{ID: "j1", State: StateCompleted, Phase: PhaseComplete, Progress: 1, CompletedAt: time.Now()}
	q.Update(done)

	assert.NoError(t, q.Submit(queuedJob("j2"), nil),
		"capacity counts non-terminal jobs only")

	// The finished job is still observable inside the retention window.
	j, ok := q.Get("j1")
	require.True(t, ok)
	assert.Equal(t, StateCompleted, j.State)
}

func TestQueue_SnapshotIsValueCopy(t *testing.T) {
	q := NewQueue(4, time.Minute)
	job := queuedJob("j1")
	job.Warnings = []string{"original"}
	require.NoError(t, q.Submit(job, nil))

	snap := q.Snapshot()
	require.Contains(t, snap, "j1")

	// Mutating the snapshot must not leak into the registry.
	mutated := snap["j1"]
	mutated.State = StateFailed
	mutated.Warnings[0] = "tampered"

	fresh, ok := q.Get("j1")
	require.True(t, ok)
	assert.Equal(t, StateQueued, fresh.State)
	assert.Equal(t, "original", fresh.Warnings[0])
}

func TestQueue_TerminalJobIsImmutable(t *testing.T) {
	q := NewQueue(4, time.Minute)
	require.NoError(t, q.Submit(queuedJob("j1"), nil))

	completedAt := time.Now()
	q.Update(Job{ID: "j1", State: StateFailed, Phase: PhaseEmbedding, Progress: 0.4, Error: "boom", CompletedAt: completedAt})

	// A late update from a confused worker is ignored.
	q.Update(Job{ID: "j1", State: StateCompleted, Phase: PhaseComplete, Progress: 1})

	j, ok := q.Get("j1")
	require.True(t, ok)
	assert.Equal(t, StateFailed, j.State)
	assert.Equal(t, PhaseEmbedding, j.Phase)
	assert.Equal(t, 0.4, j.Progress)
	assert.Equal(t, "boom", j.Error)
}

func TestQueue_DoneClosesOnTerminal(t *testing.T) {
	q := NewQueue(4, time.Minute)
	require.NoError(t, q.Submit(queuedJob("j1"), nil))

	done := q.Done("j1")
	select {
	case <-done:
		t.Fatal("done channel closed before the job finished")
	default:
	}

	q.Update(Job{ID: "j1", State: StateCompleted, Phase: PhaseComplete, Progress: 1, CompletedAt: time.Now()})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after terminal transition")
	}

	// Unknown jobs get an already-closed channel.
	select {
	case <-q.Done("nope"):
	case <-time.After(time.Second):
		t.Fatal("unknown job's done channel should be closed")
	}
}

func TestQueue_RetentionPrunesTerminalJobs(t *testing.T) {
	q := NewQueue(4, 10*time.Millisecond)
	require.NoError(t, q.Submit(queuedJob("gone"), nil))
	require.NoError(t, q.Submit(queuedJob("kept"), nil))

	q.Update(Job{ID: "gone", State: StateCompleted, Phase: PhaseComplete, Progress: 1, CompletedAt: time.Now()})

	time.Sleep(30 * time.Millisecond)
	q.Prune()

	_, ok := q.Get("gone")
	assert.False(t, ok, "terminal job should be pruned after the retention window")

	_, ok = q.Get("kept")
	assert.True(t, ok, "non-terminal jobs are never pruned")
}

func TestQueue_CancelInvokesJobCancel(t *testing.T) {
	q := NewQueue(4, time.Minute)

	cancelled := false
	require.NoError(t, q.Submit(queuedJob("j1"), func() { cancelled = true }))

	assert.True(t, q.Cancel("j1"))
	assert.True(t, cancelled)

	assert.False(t, q.Cancel("nope"))

	q.Update(Job{ID: "j1", State: StateFailed, Phase: PhaseParsing, Error: "cancelled", CompletedAt: time.Now()})
	assert.False(t, q.Cancel("j1"), "terminal jobs cannot be cancelled")
}
