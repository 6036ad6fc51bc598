package conjunction

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinIndex(t *testing.T) {
	tests := []struct {
		alt   float64
		width float64
		want  int64
		id    float64
	}{
		{0, 50, 0, 0},
		{49.999, 50, 0, 0},
		{50, 50, 1, 50},
		{420.5, 50, 8, 400},
		{-0.1, 50, -1, -50},
		{1999.9, 100, 19, 1900},
	}
	for _, tt := range tests {
		if got := BinIndex(tt.alt, tt.width); got != tt.want {
			t.Errorf("BinIndex(%v, %v) = %d, want %d", tt.alt, tt.width, got, tt.want)
		}
		if got := BinID(tt.alt, tt.width); got != tt.id {
			t.Errorf("BinID(%v, %v) = %v, want %v", tt.alt, tt.width, got, tt.id)
		}
	}
}

func TestJoinTimestepMatchesBruteForce(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		width     float64
		side      float64
		n         int
	}{
		{"single band", 5, 500, 40, 150},
		{"many bands", 5, 10, 60, 200},
		{"width equals threshold", 5, 5, 40, 150},
		{"sparse", 1, 50, 200, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			var samples []Sample
			for step := 0; step < 3; step++ {
				samples = append(samples, randomCloud(rng, t0.Add(time.Duration(step)*time.Minute), tt.n, 420, tt.side)...)
			}

			want := bruteForce(samples, tt.threshold, tt.width)
			require.NotEmpty(t, want)

			var got []Event
			for _, ts := range BuildIndex(samples, tt.width).Steps {
				got = append(got, JoinTimestep(ts, tt.threshold)...)
			}
			sortEvents(got)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("join mismatch (-brute +join):\n%s", diff)
			}
		})
	}
}

func TestJoinTimestepEventInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := randomCloud(rng, t0, 400, 550, 50)
	const threshold = 5.0

	ix := BuildIndex(samples, 50)
	require.Len(t, ix.Steps, 1)
	events := JoinTimestep(ix.Steps[0], threshold)
	require.NotEmpty(t, events)

	seen := make(map[PairKey]bool)
	for _, ev := range events {
		assert.LessOrEqual(t, ev.DistanceKm, threshold)
		assert.Less(t, ev.ObjectA, ev.ObjectB)
		assert.True(t, ev.Time.Equal(t0))
		assert.False(t, seen[ev.Key()], "pair %v reported twice", ev.Key())
		seen[ev.Key()] = true
	}
}

func TestJoinTimestepCrossBandSingleLowerMember(t *testing.T) {
	samples := []Sample{
		sample(t0, 1, 399),
		sample(t0, 2, 401),
		sample(t0, 3, 402),
	}
	ix := BuildIndex(samples, 50)
	events := JoinTimestep(ix.Steps[0], 5)
	sortEvents(events)

	want := []Event{
		{Time: t0, ObjectA: 1, ObjectB: 2, DistanceKm: 2, BinID: 350},
		{Time: t0, ObjectA: 1, ObjectB: 3, DistanceKm: 3, BinID: 350},
		{Time: t0, ObjectA: 2, ObjectB: 3, DistanceKm: 1, BinID: 400},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinTimestepSkipsNonAdjacentBands(t *testing.T) {
	// Same position reported under altitudes two bands apart: only adjacent
	// bands are joined.
	samples := []Sample{
		{Time: t0, ObjectID: 1, Position: [3]float64{7000, 0, 0}, AltitudeKm: 10},
		{Time: t0, ObjectID: 2, Position: [3]float64{7000, 0, 1}, AltitudeKm: 110},
	}
	ix := BuildIndex(samples, 50)
	assert.Empty(t, JoinTimestep(ix.Steps[0], 5))
}

func TestBuildIndexDropsDuplicateObjects(t *testing.T) {
	samples := []Sample{
		sample(t0, 1, 400),
		sample(t0, 2, 401),
		sample(t0, 1, 402), // duplicate, different band position
		sample(t0.Add(time.Minute), 1, 400),
	}
	ix := BuildIndex(samples, 50)
	require.Len(t, ix.Steps, 2)
	assert.Equal(t, 1, ix.Steps[0].Dropped)
	assert.Equal(t, 0, ix.Steps[1].Dropped)
	assert.Equal(t, 3, ix.Samples())

	events := JoinTimestep(ix.Steps[0], 5)
	require.Len(t, events, 1)
	assert.Equal(t, PairKey{1, 2}, events[0].Key())
	assert.Equal(t, 1.0, events[0].DistanceKm)
}

func TestBuildIndexOrdersTimesteps(t *testing.T) {
	samples := []Sample{
		sample(t0.Add(2*time.Minute), 1, 400),
		sample(t0, 1, 400),
		sample(t0.Add(time.Minute).In(time.FixedZone("X", 3600)), 1, 400),
		sample(t0.Add(time.Minute), 2, 400),
	}
	ix := BuildIndex(samples, 50)
	require.Len(t, ix.Steps, 3)
	for i, ts := range ix.Steps {
		assert.Equal(t, i, ts.Ordinal)
		assert.True(t, ts.Time.Equal(t0.Add(time.Duration(i)*time.Minute)))
	}
	assert.Len(t, ix.Steps[1].Bins[8].Objects, 2)
}

func TestJoinTimestepEmptyAndSingle(t *testing.T) {
	assert.Empty(t, JoinTimestep(&Timestep{Time: t0, Bins: map[int64]*Bin{}}, 5))

	ix := BuildIndex([]Sample{sample(t0, 1, 400)}, 50)
	assert.Empty(t, JoinTimestep(ix.Steps[0], 5))
}
