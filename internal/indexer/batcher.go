package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Job is one document to prepare. Load is called from a worker goroutine.
type Job struct {
	DocID    string
	Filename string
	Load     func() ([]byte, error)
}

// Outcome pairs a job with its prepared document or error.
type Outcome struct {
	Job      Job
	Prepared *Prepared
	Err      error
}

// Batcher prepares many documents concurrently with bounded parallelism.
type Batcher struct {
	pipeline    *Pipeline
	concurrency int
	onProgress  ProgressFunc
}

// NewBatcher creates a Batcher with the given concurrency limit.
func NewBatcher(p *Pipeline, concurrency int, onProgress ProgressFunc) *Batcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batcher{
		pipeline:    p,
		concurrency: concurrency,
		onProgress:  onProgress,
	}
}

// PrepareAll runs Prepare for every job. Outcomes are returned in job
// order. Jobs not started before ctx is cancelled report ctx.Err().
func (b *Batcher) PrepareAll(ctx context.Context, jobs []Job) []Outcome {
	total := len(jobs)
	out := make([]Outcome, total)
	if total == 0 {
		return out
	}

	sem := make(chan struct{}, b.concurrency)
	var processed int64
	var wg sync.WaitGroup

	done := func(name string) {
		n := atomic.AddInt64(&processed, 1)
		if b.onProgress != nil {
			b.onProgress(int(n), total, name)
		}
	}

	for i, job := range jobs {
		out[i].Job = job

		select {
		case <-ctx.Done():
			out[i].Err = ctx.Err()
			done(job.Filename)
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-sem }()
			defer done(job.Filename)

			data, err := job.Load()
			if err != nil {
				out[i].Err = fmt.Errorf("read %s: %w", job.Filename, err)
				return
			}
			out[i].Prepared, out[i].Err = b.pipeline.Prepare(ctx, data, job.Filename, job.DocID)
		}(i, job)
	}

	wg.Wait()
	return out
}
