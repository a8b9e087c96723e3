// Package pool executes a transform over chunks with a bounded set of
// workers, isolating per-chunk failures and reassembling output in
// deterministic chunk-index order.
package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// TransformFunc is applied to one chunk's records in isolation. It must not
// share mutable state with other invocations.
type TransformFunc func(ctx context.Context, records model.Snapshot) (model.Snapshot, error)

// Options control one Run invocation.
type Options struct {
	// Concurrency is the number of workers. Values below 1 are treated as 1.
	Concurrency int
	// FailFast cancels outstanding chunks on the first failure and discards
	// already-completed outputs from the result.
	FailFast bool
	// Budget is the optional wall-clock budget for the batch. Zero disables it.
	Budget time.Duration
	// BatchIndex identifies the batch in errors and logs.
	BatchIndex int
	// Pipeline identifies the pipeline in errors and logs.
	Pipeline string
}

// WorkerPool runs batches of chunks. The pool is stateless between batches;
// workers exist only for the duration of one Run call.
type WorkerPool struct{}

// NewWorkerPool creates a WorkerPool.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{}
}

type chunkResult struct {
	index   int
	records model.Snapshot
	err     error
}

// Run executes transform over the chunks with opts.Concurrency workers.
//
// Failure handling: a transform error on one chunk is captured as a
// ChunkFailure and does not abort sibling chunks unless FailFast is set, in
// which case outstanding chunks are cancelled and completed outputs are
// discarded. Cancellation is cooperative and checked at chunk boundaries
// only; in-flight chunks run to completion.
//
// The returned error is non-nil only for batch-level conditions: a
// BatchTimeoutError when the budget expired, or the aggregated chunk errors
// when FailFast tripped. Per-chunk failures under lenient operation are
// reported through BatchResult.Failed with a nil error.
func (p *WorkerPool) Run(ctx context.Context, chunks []model.Chunk, transform TransformFunc, opts Options) (model.BatchResult, error) {
	started := time.Now()

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if len(chunks) == 0 {
		return model.BatchResult{Duration: time.Since(started)}, nil
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if opts.Budget > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Budget)
	} else if opts.FailFast {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	pending := make(chan *model.Chunk, len(chunks))
	for i := range chunks {
		chunks[i].Status = model.ChunkStatusPending
		pending <- &chunks[i]
	}
	close(pending)

	results := make(chan chunkResult, len(chunks))

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range pending {
				// Cooperative cancellation: checked before dispatch, never mid-chunk.
				if runCtx.Err() != nil {
					return
				}

				chunk.Status = model.ChunkStatusRunning
				out, err := transform(runCtx, chunk.Records)
				if err != nil {
					chunk.Status = model.ChunkStatusFailed
					results <- chunkResult{index: chunk.Index, err: exception.NewChunkProcessingError(opts.Pipeline, chunk.Index, err)}
					if opts.FailFast {
						cancel()
					}
					continue
				}
				chunk.Status = model.ChunkStatusDone
				results <- chunkResult{index: chunk.Index, records: out}
			}
		}()
	}

	wg.Wait()
	close(results)

	result := model.BatchResult{Duration: time.Since(started)}
	for r := range results {
		if r.err != nil {
			result.Failed = append(result.Failed, model.ChunkFailure{Index: r.index, Err: r.err})
			continue
		}
		result.Succeeded = append(result.Succeeded, model.ChunkOutput{Index: r.index, Records: r.records})
	}

	// Deterministic reassembly regardless of completion order.
	sort.Slice(result.Succeeded, func(i, j int) bool {
		return result.Succeeded[i].Index < result.Succeeded[j].Index
	})
	sort.Slice(result.Failed, func(i, j int) bool {
		return result.Failed[i].Index < result.Failed[j].Index
	})

	if opts.Budget > 0 && runCtx.Err() == context.DeadlineExceeded && len(result.Succeeded)+len(result.Failed) < len(chunks) {
		logger.Warnf("Batch %d of pipeline %q exceeded its %s budget: %d of %d chunks completed.",
			opts.BatchIndex, opts.Pipeline, opts.Budget, len(result.Succeeded)+len(result.Failed), len(chunks))
		return result, exception.NewBatchTimeoutError(opts.BatchIndex, opts.Budget)
	}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if opts.FailFast && len(result.Failed) > 0 {
		var combined error
		for _, f := range result.Failed {
			combined = multierror.Append(combined, f.Err)
		}
		// Completed outputs are discarded: a fail-fast batch yields nothing.
		result.Succeeded = nil
		return result, combined
	}

	if len(result.Failed) > 0 {
		logger.Warnf("Batch %d of pipeline %q completed with %d failed chunks.", opts.BatchIndex, opts.Pipeline, len(result.Failed))
	}
	return result, nil
}
