package ingest

import (
	"context"
)

// IngestSync submits a document and blocks until it reaches a terminal
// state or ctx expires. On ctx expiry the job is cancelled and the final
// (Failed) record is returned alongside the context error.
func (e *Engine) IngestSync(ctx context.Context, doc Document) (Job, error) {
	jobID, err := e.Submit(doc)
	if err != nil {
		return Job{}, err
	}

	select {
	case <-e.queue.Done(jobID):
		job, _ := e.queue.Get(jobID)
		return job, nil
	case <-ctx.Done():
		e.Cancel(jobID)
		// The worker observes cancellation and finalizes the record.
		<-e.queue.Done(jobID)
		job, _ := e.queue.Get(jobID)
		return job, ctx.Err()
	}
}
