package clustering

import (
	"gonum.org/v1/gonum/spatial/kdtree"
)

// feature is a point in (pmra, pmdec, parallax) space that remembers its
// position in the caller's slice; the k-d tree reorders its input.
type feature struct {
	kdtree.Point
	idx int
}

func (f feature) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return f.Point[d] - c.(feature).Point[d]
}

func (f feature) Dims() int { return len(f.Point) }

// Distance returns the squared Euclidean distance.
func (f feature) Distance(c kdtree.Comparable) float64 {
	return f.Point.Distance(c.(feature).Point)
}

type features []feature

func (f features) Index(i int) kdtree.Comparable         { return f[i] }
func (f features) Len() int                              { return len(f) }
func (f features) Pivot(d kdtree.Dim) int                { return plane{Dim: d, features: f}.Pivot() }
func (f features) Slice(start, end int) kdtree.Interface { return f[start:end] }

type plane struct {
	kdtree.Dim
	features
}

func (p plane) Less(i, j int) bool {
	return p.features[i].Point[p.Dim] < p.features[j].Point[p.Dim]
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{Dim: p.Dim, features: p.features[start:end]}
}
func (p plane) Swap(i, j int) {
	p.features[i], p.features[j] = p.features[j], p.features[i]
}

type index struct {
	tree    *kdtree.Tree
	queries []feature
}

func newIndex(points [][3]float64) *index {
	data := make(features, len(points))
	queries := make([]feature, len(points))
	for i, p := range points {
		f := feature{Point: kdtree.Point{p[0], p[1], p[2]}, idx: i}
		data[i] = f
		queries[i] = f
	}
	return &index{tree: kdtree.New(data, false), queries: queries}
}

// radiusNeighbors returns, for each point, the indices of all points within
// eps of it, the point itself included.
func (x *index) radiusNeighbors(eps float64) [][]int {
	out := make([][]int, len(x.queries))
	for i, q := range x.queries {
		keep := kdtree.NewDistKeeper(eps * eps)
		x.tree.NearestSet(keep, q)
		n := make([]int, 0, len(keep.Heap))
		for _, c := range keep.Heap {
			// The keeper seeds its heap with a nil sentinel at the radius.
			if c.Comparable == nil {
				continue
			}
			n = append(n, c.Comparable.(feature).idx)
		}
		out[i] = n
	}
	return out
}
