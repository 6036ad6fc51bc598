package conjunction

import "time"

// Event columns as persisted in chunk files.
var EventColumns = []string{"time", "object_id_a", "object_id_b", "distance_km", "bin_id"}

// Event is a single within-threshold detection between two objects at one instant.
// Events built by the joiner always satisfy ObjectA < ObjectB.
type Event struct {
	Time       time.Time
	ObjectA    int64
	ObjectB    int64
	DistanceKm float64
	BinID      float64 // lower altitude band of the pair, km
}

// PairKey identifies an unordered pair of objects.
type PairKey struct {
	A, B int64
}

// CanonicalPair orders two object ids so that A < B.
func CanonicalPair(a, b int64) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// Key returns the canonical pair key for the event regardless of how its
// ids were ordered when it was written.
func (e Event) Key() PairKey {
	return CanonicalPair(e.ObjectA, e.ObjectB)
}

func newEvent(t time.Time, a, b int64, dist, bin float64) Event {
	k := CanonicalPair(a, b)
	return Event{Time: t, ObjectA: k.A, ObjectB: k.B, DistanceKm: dist, BinID: bin}
}
