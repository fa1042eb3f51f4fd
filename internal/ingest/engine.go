package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/quarrydocs/quarry/internal/chunk"
	"github.com/quarrydocs/quarry/internal/embed"
	qerrors "github.com/quarrydocs/quarry/internal/errors"
	"github.com/quarrydocs/quarry/internal/parse"
	"github.com/quarrydocs/quarry/internal/store"
)

// DefaultEmbedBatchSize is how many chunks are embedded per batch.
// Smaller batches move the progress bar more often; larger ones
// amortize request overhead.
const DefaultEmbedBatchSize = 32

// janitorInterval is how often terminal jobs are pruned.
const janitorInterval = 30 * time.Second

// Document is a submission to the ingestion pipeline.
type Document struct {
	// Name is the document name used for parser selection.
	Name string

	// Path is the source path, recorded for provenance.
	Path string

	// Content is the raw document bytes.
	Content []byte
}

// Config configures the ingestion engine.
type Config struct {
	QueueCapacity  int
	Workers        int
	Retention      time.Duration
	EmbedBatchSize int
}

// Deps are the capabilities the engine drives.
type Deps struct {
	Parsers  *parse.Registry
	Splitter chunk.Splitter
	Embedder embed.Embedder
	Vectors  store.VectorStore
	Keywords store.KeywordIndex
	Metadata store.MetadataStore
	Logger   *slog.Logger
}

// Engine owns the ingestion pipeline: the job registry, a bounded worker
// pool, and the phase state machine each document runs through. Phases
// within one job execute strictly in order; across jobs there is no
// ordering guarantee, only the capacity bound.
type Engine struct {
	queue     *Queue
	pool      *ants.Pool
	deps      Deps
	batchSize int

	ctx     context.Context
	cancel  context.CancelFunc
	janitor sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewEngine creates an ingestion engine. Workers defaults to half the
// CPUs, minimum one.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU() / 2
		if cfg.Workers < 1 {
			cfg.Workers = 1
		}
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeInternal, "create worker pool", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		queue:     NewQueue(cfg.QueueCapacity, cfg.Retention),
		pool:      pool,
		deps:      deps,
		batchSize: cfg.EmbedBatchSize,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches the retention janitor. Submissions work without Start;
// only pruning depends on it.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	e.janitor.Add(1)
	go func() {
		defer e.janitor.Done()
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				e.queue.Prune()
			}
		}
	}()
}

// Stop cancels all running jobs and drains the worker pool.
func (e *Engine) Stop() {
	e.cancel()
	e.pool.Release()
	e.janitor.Wait()
}

// Submit validates and enqueues a document for ingestion. Returns the
// job ID, a validation error for bad input, or a capacity error when the
// queue is full.
func (e *Engine) Submit(doc Document) (string, error) {
	if strings.TrimSpace(doc.Name) == "" {
		return "", qerrors.New(qerrors.ErrCodeInvalidInput, "document name is required", nil)
	}
	if len(bytes.TrimSpace(doc.Content)) == 0 {
		return "", qerrors.New(qerrors.ErrCodeEmptyDocument, "document content is empty", nil).
			WithDetail("source", doc.Name)
	}

	jobID := uuid.NewString()
	jobCtx, jobCancel := context.WithCancel(e.ctx)

	job := Job{
		ID:         jobID,
		Source:     doc.Name,
		DocumentID: documentID(doc),
		Phase:      PhaseParsing,
		State:      StateQueued,
	}
	if err := e.queue.Submit(job, jobCancel); err != nil {
		jobCancel()
		return "", err
	}

	// Pool submission can block when all workers are busy; detaching
	// keeps Submit non-blocking. The queue bound already limits
	// outstanding work.
	go func() {
		task := func() { e.process(jobCtx, jobID, doc) }
		if err := e.pool.Submit(task); err != nil {
			e.failJob(jobID, PhaseParsing, qerrors.Cancelled("ingestion engine stopped", err))
		}
	}()

	return jobID, nil
}

// Cancel aborts a non-terminal job. The job transitions to Failed with a
// cancelled error rather than staying Running.
func (e *Engine) Cancel(jobID string) bool {
	return e.queue.Cancel(jobID)
}

// Status returns a copy of a job record.
func (e *Engine) Status(jobID string) (Job, bool) {
	return e.queue.Get(jobID)
}

// Statuses returns a snapshot of all observable jobs.
func (e *Engine) Statuses() map[string]Job {
	return e.queue.Snapshot()
}

// process drives one document through the phase state machine.
func (e *Engine) process(ctx context.Context, jobID string, doc Document) {
	job, ok := e.queue.Get(jobID)
	if !ok {
		return
	}

	logger := e.deps.Logger.With(
		slog.String("job_id", jobID),
		slog.String("source", doc.Name))

	job.State = StateRunning
	job.Phase = PhaseParsing
	job.StartedAt = time.Now()
	e.queue.Update(job)
	logger.Info("ingestion_started")

	// Parsing
	if ctx.Err() != nil {
		e.failJob(jobID, PhaseParsing, ctx.Err())
		return
	}
	parser := e.deps.Parsers.ForFile(doc.Name)
	parsed, err := parser.Parse(bytes.NewReader(doc.Content), doc.Name)
	if err != nil {
		e.failJob(jobID, PhaseParsing, err)
		return
	}
	job.Warnings = append(job.Warnings, parsed.Warnings...)
	job.Phase = PhaseChunking
	job.Progress = phaseStart[PhaseChunking]
	e.queue.Update(job)

	// Chunking
	passages, warnings, err := e.deps.Splitter.Split(ctx, parsed.Text)
	if err != nil {
		e.failJob(jobID, PhaseChunking, err)
		return
	}
	if len(passages) == 0 {
		e.failJob(jobID, PhaseChunking,
			qerrors.New(qerrors.ErrCodeEmptyDocument, "document produced no chunks", nil))
		return
	}
	job.Warnings = append(job.Warnings, warnings...)

	chunks := make([]*store.Chunk, len(passages))
	for i, p := range passages {
		meta := make(map[string]string, len(parsed.Metadata)+1)
		for k, v := range parsed.Metadata {
			meta[k] = v
		}
		meta["source"] = doc.Name
		chunks[i] = &store.Chunk{
			ID:         store.ChunkID(job.DocumentID, i, p.Text),
			DocumentID: job.DocumentID,
			Ordinal:    i,
			Content:    p.Text,
			Metadata:   meta,
		}
	}
	job.ChunkCount = len(chunks)
	job.Phase = PhaseEmbedding
	job.Progress = phaseStart[PhaseEmbedding]
	e.queue.Update(job)

	// Embedding, batched so progress moves smoothly and cancellation is
	// honored between batches.
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += e.batchSize {
		if ctx.Err() != nil {
			e.failJob(jobID, PhaseEmbedding, ctx.Err())
			return
		}
		end := start + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		batch, err := e.deps.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			e.failJob(jobID, PhaseEmbedding, err)
			return
		}
		vectors = append(vectors, batch...)

		job.Progress = phaseStart[PhaseEmbedding] +
			weightEmbedding*float64(end)/float64(len(chunks))
		e.queue.Update(job)
	}

	job.Phase = PhaseStoring
	job.Progress = phaseStart[PhaseStoring]
	e.queue.Update(job)

	// Storing: re-ingestion replaces the previous version of the
	// document across all three stores.
	if ctx.Err() != nil {
		e.failJob(jobID, PhaseStoring, ctx.Err())
		return
	}
	if err := e.storeChunks(ctx, job.DocumentID, doc, chunks, vectors); err != nil {
		e.failJob(jobID, PhaseStoring, err)
		return
	}

	job.Phase = PhaseComplete
	job.State = StateCompleted
	job.Progress = 1.0
	job.CompletedAt = time.Now()
	e.queue.Update(job)
	logger.Info("ingestion_completed",
		slog.Int("chunks", len(chunks)),
		slog.Duration("elapsed", time.Since(job.StartedAt)))
}

func (e *Engine) storeChunks(ctx context.Context, docID string, doc Document, chunks []*store.Chunk, vectors [][]float32) error {
	oldIDs, err := e.deps.Metadata.DeleteByDocument(ctx, docID)
	if err != nil {
		return err
	}
	if len(oldIDs) > 0 {
		if err := e.deps.Vectors.Delete(ctx, oldIDs); err != nil {
			return err
		}
		if err := e.deps.Keywords.Delete(ctx, oldIDs); err != nil {
			return err
		}
	}

	ids := make([]string, len(chunks))
	metas := make([]map[string]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		metas[i] = c.Metadata
	}
	if err := e.deps.Vectors.Upsert(ctx, ids, vectors, metas); err != nil {
		return err
	}
	if err := e.deps.Keywords.Index(ctx, chunks); err != nil {
		return err
	}
	if err := e.deps.Metadata.SaveDocument(ctx, &store.Document{
		ID:         docID,
		Name:       doc.Name,
		SourcePath: doc.Path,
		ChunkCount: len(chunks),
		IngestedAt: time.Now(),
	}); err != nil {
		return err
	}
	return e.deps.Metadata.SaveChunks(ctx, chunks)
}

// failJob transitions a job to Failed with the error recorded.
// Cancellation is reported distinctly from genuine phase failure.
func (e *Engine) failJob(jobID string, phase Phase, cause error) {
	job, ok := e.queue.Get(jobID)
	if !ok || job.Terminal() {
		return
	}

	var final error
	switch {
	case qerrors.IsCancelled(cause):
		final = qerrors.Cancelled("ingestion cancelled", cause)
	case qerrors.IsValidation(cause) || qerrors.IsCapacity(cause):
		final = cause
	default:
		final = qerrors.Phase(string(phase), cause)
	}

	job.State = StateFailed
	job.Error = final.Error()
	job.CompletedAt = time.Now()
	e.queue.Update(job)

	e.deps.Logger.Warn("ingestion_failed",
		slog.String("job_id", jobID),
		slog.String("phase", string(phase)),
		slog.String("error", final.Error()))
}

// RemoveSource deletes an ingested source from all three stores.
// Returns the number of chunks removed; zero when the source was never
// ingested.
func (e *Engine) RemoveSource(ctx context.Context, sourcePath string) (int, error) {
	docID := documentID(Document{Path: sourcePath})
	ids, err := e.deps.Metadata.DeleteByDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := e.deps.Vectors.Delete(ctx, ids); err != nil {
		return 0, err
	}
	if err := e.deps.Keywords.Delete(ctx, ids); err != nil {
		return 0, err
	}
	e.deps.Logger.Info("source_removed",
		slog.String("source", sourcePath),
		slog.Int("chunks", len(ids)))
	return len(ids), nil
}

// documentID derives the stable document identifier from the source
// path, so re-ingesting a source replaces its previous version.
func documentID(doc Document) string {
	src := doc.Path
	if src == "" {
		src = doc.Name
	}
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:8])
}
