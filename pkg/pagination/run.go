package pagination

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxConcurrency caps the number of chunk fetches in flight.
const MaxConcurrency = 8

// Concurrency derives the worker count for a parallel run. A non-positive hint
// defaults to the number of CPUs and a non-positive maxWorkers to
// MaxConcurrency.
func Concurrency(tasks, hint, maxWorkers int) int {
	if hint <= 0 {
		hint = runtime.NumCPU()
	}
	if maxWorkers <= 0 {
		maxWorkers = MaxConcurrency
	}
	n := min(hint, tasks, maxWorkers)
	if n < 1 {
		return 1
	}
	return n
}

// run holds the state of one materialization.
type run struct {
	plan     ChunkPlan
	table    *Table
	fetcher  PageFetcher
	mode     string
	timeout  time.Duration
	progress ProgressFunc
	logEvery int
	logger   zerolog.Logger

	chunks int
	rows   int
}

func newRun(plan ChunkPlan, first *Page, fetcher PageFetcher, mode string) (*run, error) {
	table, err := newTable(first, plan)
	if err != nil {
		return nil, err
	}
	return &run{
		plan:    plan,
		table:   table,
		fetcher: fetcher,
		mode:    mode,
		logger:  zerolog.Nop(),
		chunks:  1,
		rows:    len(first.Rows),
	}, nil
}

// fetch retrieves and validates a single chunk.
func (r *run) fetch(ctx context.Context, task FetchTask) (*Page, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	page, err := r.fetcher.FetchPage(ctx, task.Offset, task.Limit)
	if err != nil {
		chunksTotal.WithLabelValues(r.mode, "error").Inc()
		return nil, &FetchError{Offset: task.Offset, Limit: task.Limit, Err: err}
	}
	if err := validatePage(r.plan, task, page); err != nil {
		chunksTotal.WithLabelValues(r.mode, "error").Inc()
		return nil, err
	}

	chunksTotal.WithLabelValues(r.mode, "success").Inc()
	return page, nil
}

// accept merges a page and reports progress. Only the coordinating goroutine
// calls it.
func (r *run) accept(task FetchTask, page *Page) {
	r.table.merge(task.Offset, page.Rows)
	r.chunks++
	r.rows += len(page.Rows)

	if r.progress != nil {
		r.progress(Progress{
			Chunks:      r.chunks,
			TotalChunks: r.plan.IterationCount + 1,
			Rows:        r.rows,
			TotalRows:   r.plan.TotalCount,
		})
	}
	if r.logEvery > 0 && r.chunks%r.logEvery == 0 {
		r.logger.Info().
			Int("chunks", r.chunks).
			Int("total_chunks", r.plan.IterationCount+1).
			Int("rows", r.rows).
			Msg("Materialization progress")
	}
}

func (r *run) sequential(ctx context.Context) error {
	for _, task := range r.plan.Tasks() {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := r.fetch(ctx, task)
		if err != nil {
			return err
		}
		r.accept(task, page)
	}
	return nil
}

type chunkResult struct {
	task FetchTask
	page *Page
}

func (r *run) parallel(ctx context.Context, concurrency int) error {
	tasks := r.plan.Tasks()
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make(chan chunkResult, concurrency)
	done := make(chan error, 1)

	go func() {
		for i, task := range tasks {
			if gctx.Err() != nil {
				r.logger.Debug().Int("skipped", len(tasks)-i).Msg("Dispatch stopped")
				break
			}
			g.Go(func() error {
				page, err := r.fetch(gctx, task)
				if err != nil {
					return err
				}
				select {
				case results <- chunkResult{task: task, page: page}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		done <- g.Wait()
		close(results)
	}()

	merged := 0
	for res := range results {
		r.accept(res.task, res.page)
		merged++
	}

	if err := <-done; err != nil {
		return err
	}
	if merged != len(tasks) {
		return fmt.Errorf("materialization interrupted after %d of %d chunks: %w",
			merged, len(tasks), context.Cause(ctx))
	}
	return nil
}

// FetchSequential fetches every chunk of plan after first, one at a time, and
// returns the assembled table. The first failure aborts the run.
func FetchSequential(ctx context.Context, plan ChunkPlan, first *Page, fetcher PageFetcher, onProgress ProgressFunc) (*Table, error) {
	r, err := newRun(plan, first, fetcher, modeSequential)
	if err != nil {
		return nil, err
	}
	r.progress = onProgress
	if err := r.sequential(ctx); err != nil {
		return nil, err
	}
	return r.table, nil
}

// FetchParallel fetches every chunk of plan after first with at most
// concurrency fetches in flight. Pages are merged by a single coordinator in
// completion order at their source offset. The first failure cancels the
// remaining fetches; FetchParallel returns only after all started fetches
// have finished.
func FetchParallel(ctx context.Context, plan ChunkPlan, first *Page, fetcher PageFetcher, concurrency int, onProgress ProgressFunc) (*Table, error) {
	r, err := newRun(plan, first, fetcher, modeParallel)
	if err != nil {
		return nil, err
	}
	r.progress = onProgress
	if err := r.parallel(ctx, concurrency); err != nil {
		return nil, err
	}
	return r.table, nil
}
