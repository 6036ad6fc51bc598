// Package conjunction detects close approaches between orbiting objects.
//
// A pass filters trajectory samples, groups them by instant and altitude band,
// joins each instant independently on a bounded worker pool, and streams the
// resulting events through a single ordered Sink that persists them as
// immutable chunks. Aggregate later reduces all chunks to one summary row per
// object pair.
//
// Band pruning only compares objects in the same or directly adjacent altitude
// bands, so results are complete only while alt_bin_km >= threshold_km.
package conjunction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/metrics"
)

// RunResult describes a finished (or aborted) detection pass.
type RunResult struct {
	Filter     FilterStats
	Duplicates int
	Timesteps  int // timesteps in the pass
	Processed  int // timesteps whose events reached the sink
	Events     int
	Chunks     []ChunkID
	Complete   bool
	Duration   time.Duration
}

// Progress is a point-in-time view of a running pass.
type Progress struct {
	Running        bool `json:"running"`
	TimestepsTotal int  `json:"timesteps_total"`
	TimestepsDone  int  `json:"timesteps_done"`
	Events         int  `json:"events"`
	Chunks         int  `json:"chunks"`
}

// Engine runs detection passes. An Engine may run several passes
// sequentially; Progress is safe to call concurrently with Run.
type Engine struct {
	cfg    Config
	w      ChunkWriter
	logger *slog.Logger

	running atomic.Bool
	total   atomic.Int64
	done    atomic.Int64
	events  atomic.Int64
	chunks  atomic.Int64
}

// NewEngine validates cfg and returns an engine that persists chunks to w.
func NewEngine(cfg Config, w ChunkWriter, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errors.New("conjunction: nil chunk writer")
	}
	return &Engine{cfg: cfg, w: w, logger: logger}, nil
}

// Config returns the engine's detection parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// Progress returns the state of the current or most recent pass.
func (e *Engine) Progress() Progress {
	return Progress{
		Running:        e.running.Load(),
		TimestepsTotal: int(e.total.Load()),
		TimestepsDone:  int(e.done.Load()),
		Events:         int(e.events.Load()),
		Chunks:         int(e.chunks.Load()),
	}
}

// Run filters samples and runs a full detection pass over them.
func (e *Engine) Run(ctx context.Context, samples []Sample) (*RunResult, error) {
	kept, stats := Filter(samples, e.cfg)
	metrics.AddSamplesDropped("incomplete", stats.Incomplete)
	metrics.AddSamplesDropped("invalid", stats.Invalid)
	metrics.AddSamplesDropped("above_ceiling", stats.AboveCeiling)

	e.logger.Info("samples filtered",
		"input", stats.Input,
		"kept", stats.Kept,
		"incomplete", stats.Incomplete,
		"invalid", stats.Invalid,
		"above_ceiling", stats.AboveCeiling,
		"leo_bound_km", e.cfg.LEOBoundKm,
	)

	ix := BuildIndex(kept, e.cfg.AltBinKm)
	res, err := e.RunIndex(ctx, ix)
	if res != nil {
		res.Filter = stats
	}
	return res, err
}

// joinJob is one timestep handed to a worker.
type joinJob struct {
	step *Timestep
}

// joinBatch is the output of one timestep join.
type joinBatch struct {
	ordinal int
	events  []Event
}

// RunIndex joins every timestep of ix and streams the events to the sink.
//
// Timesteps run on a bounded pool; a single consumer re-sequences finished
// batches by ordinal so chunk contents and numbering do not depend on worker
// scheduling. On cancellation, workers stop taking new timesteps, every batch
// already computed is handed to the sink and the buffer is flushed before Run
// returns the context error.
func (e *Engine) RunIndex(ctx context.Context, ix *Index) (*RunResult, error) {
	start := time.Now()
	workers := e.cfg.workers()

	res := &RunResult{Timesteps: len(ix.Steps)}
	for _, ts := range ix.Steps {
		res.Duplicates += ts.Dropped
	}

	e.running.Store(true)
	defer e.running.Store(false)
	e.total.Store(int64(len(ix.Steps)))
	e.done.Store(0)
	e.events.Store(0)
	e.chunks.Store(0)

	e.logger.Info("detection pass starting",
		"timesteps", len(ix.Steps),
		"samples", ix.Samples(),
		"duplicates_dropped", res.Duplicates,
		"workers", workers,
		"threshold_km", e.cfg.ThresholdKm,
		"alt_bin_km", e.cfg.AltBinKm,
		"flush_every", e.cfg.FlushEvery,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := NewSink(e.w, e.cfg.FlushEvery, e.logger)
	// Persisting what was computed must not depend on the caller's context.
	flushCtx := context.WithoutCancel(ctx)

	// slots bounds the number of timesteps in flight or awaiting re-sequencing.
	slots := make(chan struct{}, workers*2)
	jobs := make(chan joinJob, workers)
	results := make(chan joinBatch, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if runCtx.Err() != nil {
					continue
				}
				results <- e.join(job.step)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, ts := range ix.Steps {
			select {
			case slots <- struct{}{}:
			case <-runCtx.Done():
				return
			}
			select {
			case jobs <- joinJob{step: ts}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int][]Event)
	next := 0
	var sinkErr error

	for batch := range results {
		if sinkErr != nil {
			continue
		}
		pending[batch.ordinal] = batch.events

		for {
			events, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := e.deliver(flushCtx, sink, events); err != nil {
				sinkErr = err
				cancel()
				break
			}
			next++
			<-slots
		}
	}

	if sinkErr != nil {
		e.finish(res, sink, start)
		e.logger.Error("detection pass failed", "error", sinkErr, "buffered_events", sink.Buffered())
		return res, sinkErr
	}

	if err := ctx.Err(); err != nil && next < len(ix.Steps) {
		// Hand over batches that finished out of order, then persist them.
		ordinals := make([]int, 0, len(pending))
		for o := range pending {
			ordinals = append(ordinals, o)
		}
		sort.Ints(ordinals)
		for _, o := range ordinals {
			if derr := e.deliver(flushCtx, sink, pending[o]); derr != nil {
				return e.finish(res, sink, start), derr
			}
		}
		if aerr := sink.Abort(flushCtx); aerr != nil {
			return e.finish(res, sink, start), aerr
		}
		e.finish(res, sink, start)
		e.logger.Warn("detection pass cancelled",
			"timesteps_processed", res.Processed,
			"timesteps", res.Timesteps,
			"chunks", len(res.Chunks),
		)
		return res, fmt.Errorf("detection pass cancelled after %d/%d timesteps: %w", res.Processed, res.Timesteps, err)
	}

	if err := sink.Close(flushCtx); err != nil {
		return e.finish(res, sink, start), err
	}

	e.finish(res, sink, start)
	res.Complete = true
	e.logger.Info("detection pass complete",
		"timesteps", res.Timesteps,
		"events", res.Events,
		"chunks", len(res.Chunks),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Engine) join(ts *Timestep) joinBatch {
	start := time.Now()
	events := JoinTimestep(ts, e.cfg.ThresholdKm)
	metrics.ObserveJoinDuration(time.Since(start))
	return joinBatch{ordinal: ts.Ordinal, events: events}
}

// deliver hands one timestep's events to the sink.
func (e *Engine) deliver(ctx context.Context, sink *Sink, events []Event) error {
	err := sink.Add(ctx, events)

	e.done.Add(1)
	e.events.Add(int64(len(events)))
	e.chunks.Store(int64(len(sink.written)))
	metrics.IncTimestepsProcessed()
	metrics.AddEventsDetected(len(events))

	if len(events) > 0 {
		e.logger.Debug("timestep joined", "events", len(events), "timesteps_processed", sink.Processed())
	}
	return err
}

func (e *Engine) finish(res *RunResult, sink *Sink, start time.Time) *RunResult {
	res.Processed = sink.Processed()
	res.Events = sink.Events()
	res.Chunks = sink.Chunks()
	res.Duration = time.Since(start)
	e.chunks.Store(int64(len(res.Chunks)))
	return res
}
