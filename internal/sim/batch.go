package sim

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quantlab-io/tradecost/internal/latency"
)

var (
	// ErrShuttingDown is returned by StartBatch after Shutdown begins
	ErrShuttingDown = errors.New("sim: engine is shutting down")
	// ErrQueueFull is returned when the batch queue has no capacity;
	// callers back off and resubmit.
	ErrQueueFull = errors.New("sim: batch queue full")
	// ErrEmptyBatch is returned for batches without variations
	ErrEmptyBatch = errors.New("sim: batch has no variations")
)

type batchJob struct {
	id         string
	base       Request
	variations []Variation
	submitted  time.Time
}

// StartBatch queues one batch built by merging each variation over the
// base request and returns its id immediately. Results arrive later via
// TakeBatchResult; IsBatchRunning reports progress.
func (e *Engine) StartBatch(base Request, variations []Variation) (string, error) {
	if len(variations) == 0 {
		return "", ErrEmptyBatch
	}

	job := &batchJob{
		id:         uuid.NewString(),
		base:       base,
		variations: variations,
		submitted:  time.Now().UTC(),
	}

	e.batchMu.Lock()
	if e.closed {
		e.batchMu.Unlock()
		return "", ErrShuttingDown
	}
	select {
	case e.batchCh <- job:
		e.running[job.id] = true
	default:
		e.batchMu.Unlock()
		return "", ErrQueueFull
	}
	e.batchMu.Unlock()

	log.Info().
		Str("batch_id", job.id).
		Int("variations", len(variations)).
		Msg("batch queued")

	return job.id, nil
}

// IsBatchRunning reports whether the batch is queued or executing
func (e *Engine) IsBatchRunning(id string) bool {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	return e.running[id]
}

// BatchResult returns a completed batch and, when evict is set, removes
// it so repeated polling does not grow the completed map without bound.
func (e *Engine) BatchResult(id string, evict bool) (*BatchResult, bool) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	br, ok := e.batches[id]
	if ok && evict {
		delete(e.batches, id)
	}
	return br, ok
}

// CompletedBatchIDs lists the ids of batches awaiting retrieval
func (e *Engine) CompletedBatchIDs() []string {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	ids := make([]string, 0, len(e.batches))
	for id := range e.batches {
		ids = append(ids, id)
	}
	return ids
}

// runBatches is the dispatcher: batches execute one at a time, each
// fanned out across the worker pool.
func (e *Engine) runBatches() {
	defer e.wg.Done()
	for job := range e.batchCh {
		e.processBatch(job)
	}
}

func (e *Engine) processBatch(job *batchJob) {
	timer := e.latencies.StartTimer(latency.StageBatch)

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]BatchItem, len(job.variations))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, v := range job.variations {
		i, v := i, v
		g.Go(func() error {
			results[i] = BatchItem{
				Variation: v,
				Result:    e.Simulate(v.applyTo(job.base)),
			}
			return nil
		})
	}
	// Simulate reports failures in Result.Error, so the group never
	// carries an error; Wait only synchronizes the pool.
	_ = g.Wait()

	elapsed := timer.Stop()
	completed := time.Now().UTC()

	br := &BatchResult{
		ID:           job.id,
		Count:        len(results),
		SubmittedAt:  job.submitted,
		CompletedAt:  completed,
		ProcessingMs: float64(elapsed.Nanoseconds()) / 1e6,
		Results:      results,
	}

	e.batchMu.Lock()
	e.batches[job.id] = br
	delete(e.running, job.id)
	e.batchMu.Unlock()

	log.Info().
		Str("batch_id", job.id).
		Int("count", br.Count).
		Float64("processing_ms", br.ProcessingMs).
		Msg("batch complete")
}

// Shutdown stops accepting batches, drains the queue, and waits for the
// dispatcher to finish or the context to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.batchMu.Lock()
	if e.closed {
		e.batchMu.Unlock()
		return nil
	}
	e.closed = true
	close(e.batchCh)
	e.batchMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
