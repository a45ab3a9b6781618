package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	dompipeline "github.com/kailas-cloud/docingest/internal/domain/pipeline"
)

// DefaultMaxConcurrentDocuments bounds documents processed at once.
const DefaultMaxConcurrentDocuments = 4

// Runner admits documents into a Pipeline with bounded concurrency.
type Runner struct {
	pipeline Pipeline
	sem      *semaphore.Weighted
	history  *History
}

// NewRunner creates a Runner. Non-positive maxConcurrent falls back to the default.
func NewRunner(p Pipeline, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentDocuments
	}
	return &Runner{pipeline: p, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// WithHistory records every finished run, including runs rejected while waiting.
func (r *Runner) WithHistory(h *History) *Runner {
	r.history = h
	return r
}

// Run waits for a free slot and processes one document.
// A context canceled while waiting yields stats in StageError.
func (r *Runner) Run(ctx context.Context, req Request) *dompipeline.Stats {
	stats := r.run(ctx, req)
	if r.history != nil {
		r.history.Add(stats)
	}
	return stats
}

func (r *Runner) run(ctx context.Context, req Request) *dompipeline.Stats {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		stats := dompipeline.NewStats(uuid.NewString(), req.Source.String(), req.Query, time.Now())
		stats.Fail(err, time.Now())
		return stats
	}
	defer r.sem.Release(1)
	return r.pipeline.Run(ctx, req)
}

// RunAll processes documents concurrently and returns their stats in request order.
func (r *Runner) RunAll(ctx context.Context, reqs []Request) []*dompipeline.Stats {
	out := make([]*dompipeline.Stats, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = r.Run(ctx, req)
		}()
	}
	wg.Wait()
	return out
}
