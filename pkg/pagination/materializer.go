package pagination

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultInitialLimit is the row limit used for the first page.
	DefaultInitialLimit = 1000
	// DefaultMinChunk is the smallest chunk size ComputePlan will derive.
	DefaultMinChunk = 1000
	// DefaultSizeTargetBytes is the payload size each chunk aims for.
	DefaultSizeTargetBytes = 10_000_000
)

// Config holds materializer configuration
type Config struct {
	// MinChunk is the default lower bound for derived chunk sizes
	MinChunk int
	// SizeTargetBytes is the default payload size target per chunk
	SizeTargetBytes int
	// MaxConcurrency caps parallel fetches regardless of the per-call hint
	MaxConcurrency int
	// ChunkTimeout bounds a single chunk fetch (0 = no timeout)
	ChunkTimeout time.Duration
	// LogEvery logs progress after this many chunks (0 = never)
	LogEvery int
}

// DefaultConfig returns the default materializer configuration
func DefaultConfig() Config {
	return Config{
		MinChunk:        DefaultMinChunk,
		SizeTargetBytes: DefaultSizeTargetBytes,
		MaxConcurrency:  MaxConcurrency,
		ChunkTimeout:    60 * time.Second,
		LogEvery:        50,
	}
}

// Options control a single materialization.
type Options struct {
	// Limit is the chunk size to use verbatim. 0 derives it from the first page.
	Limit int
	// Parallel enables the worker pool when more than one chunk remains.
	Parallel bool
	// MinChunk overrides Config.MinChunk when positive.
	MinChunk int
	// SizeTargetBytes overrides Config.SizeTargetBytes when positive.
	SizeTargetBytes int
	// Concurrency is the worker count hint. 0 uses the number of CPUs.
	Concurrency int
	// Progress receives an update after every merged chunk.
	Progress ProgressFunc
}

// Materializer assembles paginated results into tables.
type Materializer struct {
	config Config
	logger zerolog.Logger
}

// New creates a materializer. Zero config fields fall back to defaults.
func New(config Config) *Materializer {
	if config.MinChunk <= 0 {
		config.MinChunk = DefaultMinChunk
	}
	if config.SizeTargetBytes <= 0 {
		config.SizeTargetBytes = DefaultSizeTargetBytes
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = MaxConcurrency
	}

	return &Materializer{
		config: config,
		logger: log.With().Str("component", "materializer").Logger(),
	}
}

// WithLogger returns a copy of the materializer that logs to logger.
func (m *Materializer) WithLogger(logger zerolog.Logger) *Materializer {
	clone := *m
	clone.logger = logger
	return &clone
}

// Materialize assembles the complete result whose first page is first. The
// head of the returned table is always the first page. On success the table
// holds exactly first.TotalCount rows in source order; on failure no table is
// returned.
func (m *Materializer) Materialize(ctx context.Context, first *Page, fetcher PageFetcher, opts Options) (*Table, error) {
	if first != nil && first.TotalCount >= 0 && first.TotalCount == len(first.Rows) {
		rowsTotal.Add(float64(len(first.Rows)))
		materializeDuration.WithLabelValues(modeSinglePage).Observe(0)
		return &Table{Columns: slices.Clone(first.Columns), Rows: slices.Clone(first.Rows)}, nil
	}

	minChunk := m.config.MinChunk
	if opts.MinChunk > 0 {
		minChunk = opts.MinChunk
	}
	sizeTarget := m.config.SizeTargetBytes
	if opts.SizeTargetBytes > 0 {
		sizeTarget = opts.SizeTargetBytes
	}

	plan, err := ComputePlan(first, opts.Limit, minChunk, sizeTarget)
	if err != nil {
		return nil, err
	}

	mode := modeSequential
	if opts.Parallel && plan.IterationCount > 1 {
		mode = modeParallel
	}

	r, err := newRun(plan, first, fetcher, mode)
	if err != nil {
		return nil, err
	}
	r.timeout = m.config.ChunkTimeout
	r.progress = opts.Progress
	r.logEvery = m.config.LogEvery
	r.logger = m.logger

	start := time.Now()
	m.logger.Info().
		Int("total", plan.TotalCount).
		Int("initial_limit", plan.InitialLimit).
		Int("chunk_limit", plan.ChunkLimit).
		Int("iterations", plan.IterationCount).
		Str("mode", mode).
		Msg("Starting materialization")

	if mode == modeParallel {
		workers := Concurrency(plan.IterationCount, opts.Concurrency, m.config.MaxConcurrency)
		err = r.parallel(ctx, workers)
	} else {
		err = r.sequential(ctx)
	}

	duration := time.Since(start)
	if err != nil {
		evt := m.logger.Error().Err(err).Str("mode", mode).Int("chunks_done", r.chunks)
		var fetchErr *FetchError
		var totalErr *InconsistentTotalError
		switch {
		case errors.As(err, &fetchErr):
			evt = evt.Int("offset", fetchErr.Offset).Int("limit", fetchErr.Limit)
		case errors.As(err, &totalErr):
			evt = evt.Int("offset", totalErr.Offset)
		}
		evt.Dur("duration", duration).Msg("Materialization failed")
		return nil, err
	}

	rowsTotal.Add(float64(r.table.Len()))
	materializeDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.logger.Info().
		Int("rows", r.table.Len()).
		Int("chunks", r.chunks).
		Str("mode", mode).
		Dur("duration", duration).
		Msg("Materialization completed")

	return r.table, nil
}

// Materialize runs a materialization with the default configuration.
func Materialize(ctx context.Context, first *Page, fetcher PageFetcher, opts Options) (*Table, error) {
	return New(DefaultConfig()).Materialize(ctx, first, fetcher, opts)
}
