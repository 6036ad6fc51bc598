package conjunction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const earthRadiusKm = 6378.137

var errDiskFull = errors.New("disk full")

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// sample places id on the x axis at roughly the given altitude. The radius is
// kept integral so that test distances are exact.
func sample(t time.Time, id int64, altKm float64) Sample {
	return Sample{
		Time:       t,
		ObjectID:   id,
		Position:   [3]float64{6378 + altKm, 0, 0},
		AltitudeKm: altKm,
	}
}

// randomCloud returns n objects scattered in a cube of side km around a point
// at the given altitude, with altitudes consistent with positions.
func randomCloud(rng *rand.Rand, t time.Time, n int, altKm, side float64) []Sample {
	out := make([]Sample, n)
	for i := range out {
		p := [3]float64{
			earthRadiusKm + altKm + (rng.Float64()-0.5)*side,
			(rng.Float64() - 0.5) * side,
			(rng.Float64() - 0.5) * side,
		}
		r := p[0]*p[0] + p[1]*p[1] + p[2]*p[2]
		out[i] = Sample{
			Time:       t,
			ObjectID:   int64(1000 + i),
			Position:   p,
			AltitudeKm: math.Sqrt(r) - earthRadiusKm,
		}
	}
	return out
}

// bruteForce compares every distinct pair at every instant.
func bruteForce(samples []Sample, threshold, width float64) []Event {
	ix := BuildIndex(samples, width)
	var events []Event
	for _, ts := range ix.Steps {
		type obj struct {
			id  int64
			pos [3]float64
			bin float64
		}
		var objs []obj
		for _, k := range ts.Order {
			b := ts.Bins[k]
			for i := range b.Objects {
				objs = append(objs, obj{b.Objects[i], b.Positions[i], b.ID})
			}
		}
		for i := 0; i < len(objs); i++ {
			for j := i + 1; j < len(objs); j++ {
				sq := squaredDistance(objs[i].pos, objs[j].pos)
				if !within(sq, threshold) {
					continue
				}
				bin := objs[i].bin
				if objs[j].bin < bin {
					bin = objs[j].bin
				}
				events = append(events, newEvent(ts.Time, objs[i].id, objs[j].id, math.Sqrt(sq), bin))
			}
		}
	}
	sortEvents(events)
	return events
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.ObjectA != b.ObjectA {
			return a.ObjectA < b.ObjectA
		}
		return a.ObjectB < b.ObjectB
	})
}

// memStore is an in-memory ChunkWriter and ChunkSource.
type memStore struct {
	mu      sync.Mutex
	chunks  map[ChunkID][]Event
	order   []ChunkID
	failOn  *ChunkID
	onWrite func(id ChunkID)
}

func newMemStore() *memStore {
	return &memStore{chunks: make(map[ChunkID][]Event)}
}

func (m *memStore) WriteChunk(_ context.Context, id ChunkID, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil && *m.failOn == id {
		return errDiskFull
	}
	m.chunks[id] = append([]Event(nil), events...)
	m.order = append(m.order, id)
	if m.onWrite != nil {
		m.onWrite(id)
	}
	return nil
}

func (m *memStore) ListChunks(context.Context) ([]ChunkID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Reverse write order so callers cannot rely on listing order.
	ids := make([]ChunkID, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		ids = append(ids, m.order[i])
	}
	return ids, nil
}

func (m *memStore) ReadChunk(_ context.Context, id ChunkID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[id], nil
}

func (m *memStore) events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Event
	for _, id := range m.order {
		all = append(all, m.chunks[id]...)
	}
	return all
}
