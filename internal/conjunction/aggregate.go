package conjunction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/metrics"
)

// Summary columns as persisted in pair summary files.
var SummaryColumns = []string{
	"object_id_a", "object_id_b", "n_detections", "min_distance_km",
	"first_time", "last_time", "duration_minutes",
}

// ChunkSource discovers and reads persisted event chunks.
type ChunkSource interface {
	ListChunks(ctx context.Context) ([]ChunkID, error)
	ReadChunk(ctx context.Context, id ChunkID) ([]Event, error)
}

// Status distinguishes an aggregation that found pairs from one that ran
// cleanly over zero events.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNoEvents Status = "no_events"
)

// PairSummary reduces every event of one unordered object pair.
type PairSummary struct {
	ObjectA         int64
	ObjectB         int64
	Detections      int
	MinDistanceKm   float64
	FirstTime       time.Time
	LastTime        time.Time
	DurationMinutes float64
}

// Summary is the result of aggregating a pass.
type Summary struct {
	Status Status
	Pairs  []PairSummary
	Events int
	Chunks int
}

// NoEvents reports whether the pass produced no events at all.
func (s *Summary) NoEvents() bool {
	return s.Status == StatusNoEvents
}

// Reducer accumulates events into per-pair summaries. Events may arrive in any
// order and with either id ordering; the result is the same.
type Reducer struct {
	pairs  map[PairKey]*PairSummary
	events int
}

// NewReducer returns an empty Reducer.
func NewReducer() *Reducer {
	return &Reducer{pairs: make(map[PairKey]*PairSummary)}
}

// Add folds events into the reducer.
func (r *Reducer) Add(events []Event) {
	for _, ev := range events {
		if ev.ObjectA == ev.ObjectB {
			continue
		}
		r.events++
		k := ev.Key()
		t := ev.Time.UTC()

		p, ok := r.pairs[k]
		if !ok {
			r.pairs[k] = &PairSummary{
				ObjectA:       k.A,
				ObjectB:       k.B,
				Detections:    1,
				MinDistanceKm: ev.DistanceKm,
				FirstTime:     t,
				LastTime:      t,
			}
			continue
		}
		p.Detections++
		if ev.DistanceKm < p.MinDistanceKm {
			p.MinDistanceKm = ev.DistanceKm
		}
		if t.Before(p.FirstTime) {
			p.FirstTime = t
		}
		if t.After(p.LastTime) {
			p.LastTime = t
		}
	}
}

// Summary returns the reduced pairs, closest first. Ties are broken by more
// detections first, then by object ids, so the order is fully determined.
func (r *Reducer) Summary() *Summary {
	if r.events == 0 {
		return &Summary{Status: StatusNoEvents}
	}

	pairs := make([]PairSummary, 0, len(r.pairs))
	for _, p := range r.pairs {
		p.DurationMinutes = p.LastTime.Sub(p.FirstTime).Minutes()
		pairs = append(pairs, *p)
	}
	SortPairs(pairs)

	return &Summary{Status: StatusOK, Pairs: pairs, Events: r.events}
}

// SortPairs orders summaries by ascending minimum distance, descending
// detection count, then ascending ids.
func SortPairs(pairs []PairSummary) {
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.MinDistanceKm != b.MinDistanceKm {
			return a.MinDistanceKm < b.MinDistanceKm
		}
		if a.Detections != b.Detections {
			return a.Detections > b.Detections
		}
		if a.ObjectA != b.ObjectA {
			return a.ObjectA < b.ObjectA
		}
		return a.ObjectB < b.ObjectB
	})
}

// Aggregate reads every chunk from src and reduces the events to one summary
// row per object pair. A run with no events yields StatusNoEvents, not an
// error; a chunk that cannot be read is an error.
func Aggregate(ctx context.Context, src ChunkSource, logger *slog.Logger) (*Summary, error) {
	ids, err := src.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing event chunks: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	r := NewReducer()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		events, err := src.ReadChunk(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reading event chunk %s: %w", id, err)
		}
		r.Add(events)
		logger.Debug("event chunk read", "chunk", id.String(), "events", len(events))
	}

	sum := r.Summary()
	sum.Chunks = len(ids)
	metrics.SetPairsSummarized(len(sum.Pairs))

	logger.Info("events aggregated",
		"status", string(sum.Status),
		"chunks", sum.Chunks,
		"events", sum.Events,
		"pairs", len(sum.Pairs),
	)
	return sum, nil
}
