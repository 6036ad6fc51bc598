package conjunction

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// member is a bin position tagged with its slot in the bin.
type member struct {
	slot int
	pos  [3]float64
}

// Compare returns the signed separation from c along dimension d.
func (m member) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return m.pos[d] - c.(member).pos[d]
}

// Dims returns the number of spatial dimensions.
func (m member) Dims() int { return 3 }

// Distance returns the squared Euclidean distance to c.
func (m member) Distance(c kdtree.Comparable) float64 {
	return squaredDistance(m.pos, c.(member).pos)
}

type members []member

func (m members) Index(i int) kdtree.Comparable         { return m[i] }
func (m members) Len() int                              { return len(m) }
func (m members) Pivot(d kdtree.Dim) int                { return plane{members: m, Dim: d}.Pivot() }
func (m members) Slice(start, end int) kdtree.Interface { return m[start:end] }

// plane orders members along one dimension for tree construction.
type plane struct {
	kdtree.Dim
	members
}

func (p plane) Less(i, j int) bool { return p.members[i].pos[p.Dim] < p.members[j].pos[p.Dim] }
func (p plane) Pivot() int         { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Swap(i, j int)      { p.members[i], p.members[j] = p.members[j], p.members[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.members = p.members[start:end]
	return p
}

func squaredDistance(a, b [3]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return dx*dx + dy*dy + dz*dz
}

// within reports whether a squared separation qualifies for threshold.
func within(sq, threshold float64) bool {
	return sq <= threshold*threshold
}

// binTree is a k-d tree over the positions of one bin.
type binTree struct {
	tree *kdtree.Tree
}

func newBinTree(b *Bin) binTree {
	pts := make(members, len(b.Positions))
	for i, p := range b.Positions {
		pts[i] = member{slot: i, pos: p}
	}
	return binTree{tree: kdtree.New(pts, false)}
}

// radius returns the slots of all tree members within threshold of q,
// ascending. The query is exact: every returned slot satisfies within.
func (t binTree) radius(q [3]float64, threshold float64) []int {
	keep := kdtree.NewDistKeeper(threshold * threshold)
	t.tree.NearestSet(keep, member{slot: -1, pos: q})

	slots := make([]int, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		if !within(c.Dist, threshold) {
			continue
		}
		slots = append(slots, c.Comparable.(member).slot)
	}
	sort.Ints(slots)
	return slots
}

// JoinTimestep finds every within-threshold pair at one instant. Pairs are
// searched inside each band and between each band and the band directly above
// it; bands are visited in ascending order so each adjacent pair of bands is
// joined exactly once. This is complete only while the band width is at least
// the threshold, which Config.Validate enforces.
func JoinTimestep(ts *Timestep, threshold float64) []Event {
	var events []Event
	trees := make(map[int64]binTree, len(ts.Bins))
	treeFor := func(b *Bin) binTree {
		t, ok := trees[b.Index]
		if !ok {
			t = newBinTree(b)
			trees[b.Index] = t
		}
		return t
	}

	for _, k := range ts.Order {
		b := ts.Bins[k]

		if b.Len() >= 2 {
			tree := treeFor(b)
			for i, p := range b.Positions {
				for _, j := range tree.radius(p, threshold) {
					if j <= i {
						continue
					}
					events = appendPair(events, ts.Time, b, i, b, j)
				}
			}
		}

		upper, ok := ts.Bins[k+1]
		if !ok || upper.Len() == 0 || b.Len() == 0 {
			continue
		}
		tree := treeFor(upper)
		for i, p := range b.Positions {
			for _, j := range tree.radius(p, threshold) {
				events = appendPair(events, ts.Time, b, i, upper, j)
			}
		}
	}

	return events
}

func appendPair(events []Event, t time.Time, lower *Bin, i int, other *Bin, j int) []Event {
	a, b := lower.Objects[i], other.Objects[j]
	if a == b {
		return events
	}
	d := math.Sqrt(squaredDistance(lower.Positions[i], other.Positions[j]))
	return append(events, newEvent(t, a, b, d, lower.ID))
}
