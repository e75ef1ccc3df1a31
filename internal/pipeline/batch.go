package pipeline

import (
	"context"
	"sync"

	"medparse/pkg/models"
)

// Batch statuses
const (
	StatusSuccess  = "success"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// BatchResult is the outcome for one document of a batch
type BatchResult struct {
	Index    int
	Filename string
	Result   *models.ParsingResult
	Err      error
	Status   string
}

// ProgressFunc is called after each document with the number of finished
// documents. Calls are serialized.
type ProgressFunc func(done, total int, r BatchResult)

type batchJob struct {
	doc   models.RawDocument
	index int
}

// ProcessBatch processes docs on a bounded worker pool. Results keep the
// order of docs. workers below 1 uses the pipeline default.
func (p *Pipeline) ProcessBatch(ctx context.Context, docs []models.RawDocument, workers int) []BatchResult {
	return p.ProcessBatchWithProgress(ctx, docs, workers, nil)
}

// ProcessBatchWithProgress is ProcessBatch with a progress callback.
func (p *Pipeline) ProcessBatchWithProgress(ctx context.Context, docs []models.RawDocument, workers int, progress ProgressFunc) []BatchResult {
	if workers < 1 {
		workers = p.workers
	}
	if workers > len(docs) {
		workers = len(docs)
	}

	jobs := make(chan batchJob, len(docs))
	results := make([]BatchResult, len(docs))

	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				p.log.Debug().
					Int("worker", workerID).
					Str("file", job.doc.Filename).
					Int("index", job.index+1).
					Msg("Worker processing document")

				r := BatchResult{Index: job.index, Filename: job.doc.Filename}
				r.Result, r.Err = p.Process(ctx, job.doc)
				switch {
				case r.Err != nil:
					r.Status = StatusError
				case r.Result.FallbackMethod:
					r.Status = StatusDegraded
				default:
					r.Status = StatusSuccess
				}
				results[job.index] = r

				mu.Lock()
				done++
				if progress != nil {
					progress(done, len(docs), r)
				}
				mu.Unlock()
			}
		}(w)
	}

	for i, doc := range docs {
		jobs <- batchJob{doc: doc, index: i}
	}
	close(jobs)

	wg.Wait()

	p.log.Info().
		Int("documents", len(docs)).
		Int("workers", workers).
		Msg("Batch completed")

	return results
}
