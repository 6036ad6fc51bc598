package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
	"github.com/amsteele/satellite-conjunction-risk/internal/metrics"
	"github.com/amsteele/satellite-conjunction-risk/internal/tle"
)

// Propagator turns a catalog into trajectory samples over a time grid.
type Propagator struct {
	pool   *WorkerPool
	config PropConfig
	logger *slog.Logger
}

// NewPropagator creates a new propagation orchestrator.
func NewPropagator(config PropConfig, logger *slog.Logger) *Propagator {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	return &Propagator{
		pool:   NewWorkerPool(config.Workers, config.Frame, logger),
		config: config,
		logger: logger,
	}
}

// Run propagates every catalog entry over times and returns the samples in
// time-major order.
func (p *Propagator) Run(ctx context.Context, entries []tle.TLEEntry, times []time.Time) ([]conjunction.Sample, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no catalog entries to propagate")
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("empty time grid")
	}

	p.logger.Info("propagation starting",
		"objects", len(entries),
		"instants", len(times),
		"start", times[0].Format(time.RFC3339),
		"end", times[len(times)-1].Format(time.RFC3339),
		"workers", p.config.Workers,
		"frame", string(p.pool.frame),
	)

	start := time.Now()
	samples, stats, err := p.pool.PropagateGrid(ctx, entries, times)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, stats.Valid, stats.Failed)

	if err != nil {
		return nil, fmt.Errorf("propagating catalog: %w", err)
	}

	p.logger.Info("propagation complete",
		"samples", stats.Samples,
		"valid", stats.Valid,
		"failed", stats.Failed,
		"init_failed", stats.InitFailed,
		"duration_ms", duration.Milliseconds(),
	)
	return samples, nil
}
