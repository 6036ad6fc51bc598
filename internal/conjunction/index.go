package conjunction

import (
	"math"
	"sort"
	"time"
)

// BinIndex returns the integer altitude band for altitudeKm. Band k covers
// [k*width, (k+1)*width).
func BinIndex(altitudeKm, width float64) int64 {
	return int64(math.Floor(altitudeKm / width))
}

// BinID returns the lower edge, in km, of the band containing altitudeKm.
func BinID(altitudeKm, width float64) float64 {
	return float64(BinIndex(altitudeKm, width)) * width
}

// Bin holds the distinct objects of one altitude band at one instant.
// Objects and Positions are parallel slices in first-seen order.
type Bin struct {
	Index     int64
	ID        float64 // lower edge, km
	Objects   []int64
	Positions [][3]float64
}

// Len returns the number of objects in the bin.
func (b *Bin) Len() int {
	return len(b.Objects)
}

// Timestep groups the samples of one instant by altitude band.
type Timestep struct {
	Ordinal int // position in the pass, 0-based
	Time    time.Time
	Bins    map[int64]*Bin
	Order   []int64 // band indices, ascending
	Dropped int     // duplicate samples discarded
}

// Index is the time -> band -> samples view of a detection pass.
type Index struct {
	Width float64
	Steps []*Timestep // ascending time
}

// Samples returns the number of distinct samples held across all timesteps.
func (ix *Index) Samples() int {
	var n int
	for _, ts := range ix.Steps {
		for _, b := range ts.Bins {
			n += b.Len()
		}
	}
	return n
}

// BuildIndex groups samples by instant and altitude band. Within an instant
// only the first-seen sample of each object is kept, so a repeated object can
// never pair with itself or inflate another pair's detection count.
func BuildIndex(samples []Sample, width float64) *Index {
	byTime := make(map[int64]*Timestep)
	seen := make(map[int64]map[int64]struct{})

	for _, s := range samples {
		t := s.Time.UTC()
		key := t.UnixNano()

		ts, ok := byTime[key]
		if !ok {
			ts = &Timestep{Time: t, Bins: make(map[int64]*Bin)}
			byTime[key] = ts
			seen[key] = make(map[int64]struct{})
		}

		if _, dup := seen[key][s.ObjectID]; dup {
			ts.Dropped++
			continue
		}
		seen[key][s.ObjectID] = struct{}{}

		k := BinIndex(s.AltitudeKm, width)
		b, ok := ts.Bins[k]
		if !ok {
			b = &Bin{Index: k, ID: float64(k) * width}
			ts.Bins[k] = b
		}
		b.Objects = append(b.Objects, s.ObjectID)
		b.Positions = append(b.Positions, s.Position)
	}

	steps := make([]*Timestep, 0, len(byTime))
	for _, ts := range byTime {
		ts.Order = make([]int64, 0, len(ts.Bins))
		for k := range ts.Bins {
			ts.Order = append(ts.Order, k)
		}
		sort.Slice(ts.Order, func(i, j int) bool { return ts.Order[i] < ts.Order[j] })
		steps = append(steps, ts)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Time.Before(steps[j].Time) })
	for i, ts := range steps {
		ts.Ordinal = i
	}

	return &Index{Width: width, Steps: steps}
}
