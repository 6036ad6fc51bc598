package propagation

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
	"github.com/amsteele/satellite-conjunction-risk/internal/tle"
	"github.com/amsteele/satellite-conjunction-risk/internal/transform"
)

// propagateJob is one object to propagate over the whole grid.
type propagateJob struct {
	index int
	entry tle.TLEEntry
}

// propagateResult summarizes one finished object.
type propagateResult struct {
	noradID int
	valid   int
	failed  int
	initErr error
}

// GridStats counts sample outcomes for a PropagateGrid call.
type GridStats struct {
	Objects    int
	Samples    int
	Valid      int
	Failed     int
	InitFailed int // objects whose element set was rejected
}

// WorkerPool manages a fixed number of goroutines for parallel SGP4 propagation.
type WorkerPool struct {
	workers int
	frame   transform.Frame
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, frame transform.Frame, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if frame == "" {
		frame = transform.FrameTEME
	}
	return &WorkerPool{
		workers: workers,
		frame:   frame,
		logger:  logger,
	}
}

// PropagateGrid propagates every entry to every instant of times. The result
// is ordered by instant, then by entry, and holds exactly len(times)*len(entries)
// samples: a failed propagation yields a sample with NaN coordinates and a
// non-zero error code rather than being dropped.
func (wp *WorkerPool) PropagateGrid(ctx context.Context, entries []tle.TLEEntry, times []time.Time) ([]conjunction.Sample, GridStats, error) {
	stats := GridStats{Objects: len(entries), Samples: len(entries) * len(times)}
	if len(entries) == 0 || len(times) == 0 {
		return nil, stats, nil
	}

	var gmst []float64
	if wp.frame == transform.FrameECEF {
		gmst = transform.GMSTGrid(times)
	}

	out := make([]conjunction.Sample, len(entries)*len(times))
	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := wp.propagateObject(ctx, job, times, gmst, out, len(entries))
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, entry := range entries {
			select {
			case jobs <- propagateJob{index: i, entry: entry}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		stats.Valid += result.valid
		stats.Failed += result.failed
		if result.initErr != nil {
			stats.InitFailed++
			wp.logger.Warn("propagator init failed",
				"norad_id", result.noradID,
				"error", result.initErr,
			)
			continue
		}
		if result.failed > 0 {
			wp.logger.Debug("propagation failed at some instants",
				"norad_id", result.noradID,
				"failed", result.failed,
			)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// propagateObject fills the samples of one entry. Each entry owns a disjoint
// set of slots in out, so workers write without locking.
func (wp *WorkerPool) propagateObject(ctx context.Context, job propagateJob, times []time.Time, gmst []float64, out []conjunction.Sample, stride int) propagateResult {
	id := int64(job.entry.NORADID)
	res := propagateResult{noradID: job.entry.NORADID}

	prop, initErr := NewSGP4Propagator(job.entry.Line1, job.entry.Line2, job.entry.NORADID)
	if initErr != nil {
		res.initErr = initErr
	}

	for ti, t := range times {
		if ti%64 == 0 && ctx.Err() != nil {
			return res
		}
		s := &out[ti*stride+job.index]
		s.Time = t
		s.ObjectID = id

		if initErr != nil {
			failSample(s, CodeInitFailed)
			res.failed++
			continue
		}

		teme, err := prop.Propagate(t)
		if err != nil {
			failSample(s, ErrorCode(err))
			res.failed++
			continue
		}

		pos := [3]float64{teme.X, teme.Y, teme.Z}
		if gmst != nil {
			ecef := transform.TEMEToECEFWithGMST(teme, gmst[ti])
			pos = [3]float64{ecef.X, ecef.Y, ecef.Z}
		}
		s.Position = pos
		s.AltitudeKm = transform.AltitudeKm(pos)
		s.ErrorCode = CodeOK
		res.valid++
	}
	return res
}

func failSample(s *conjunction.Sample, code int) {
	nan := math.NaN()
	s.Position = [3]float64{nan, nan, nan}
	s.AltitudeKm = nan
	s.ErrorCode = code
}
