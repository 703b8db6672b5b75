// Package clustering groups observations by density in kinematic feature space.
package clustering

import (
	"github.com/thebtf/clusterscan/pkg/models"
)

// Default parameters, matching the values the scan has always used.
const (
	DefaultEps        = 0.5
	DefaultMinSamples = 5
)

// DBSCAN is a fixed-radius density clusterer.
//
// A point is a core point when at least MinSamples points (itself included)
// lie within Eps of it. Core points reachable from each other through chains
// of core points share a label; non-core points within Eps of a core point
// join the first cluster that reaches them; everything else is noise.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

// NewDBSCAN returns a DBSCAN with the given parameters, falling back to the
// defaults for non-positive values.
func NewDBSCAN(eps float64, minSamples int) DBSCAN {
	if eps <= 0 {
		eps = DefaultEps
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return DBSCAN{Eps: eps, MinSamples: minSamples}
}

// Fit labels every point. Labels are 0..k-1 for clusters, in order of the
// first core point that seeds them, and models.NoiseLabel for noise.
func (d DBSCAN) Fit(points [][3]float64) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = models.NoiseLabel
	}
	if len(points) == 0 {
		return labels
	}

	neighbors := newIndex(points).radiusNeighbors(d.Eps)
	core := make([]bool, len(points))
	for i, n := range neighbors {
		core[i] = len(n) >= d.MinSamples
	}

	label := 0
	var stack []int
	for i := range points {
		if labels[i] != models.NoiseLabel || !core[i] {
			continue
		}
		p := i
		for {
			if labels[p] == models.NoiseLabel {
				labels[p] = label
				if core[p] {
					for _, n := range neighbors[p] {
						if labels[n] == models.NoiseLabel {
							stack = append(stack, n)
						}
					}
				}
			}
			if len(stack) == 0 {
				break
			}
			p = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}
		label++
	}
	return labels
}

// Score is the fraction of labels that are not noise. It is 0 for an empty
// label set.
func Score(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	return float64(CountClustered(labels)) / float64(len(labels))
}

// CountClustered returns the number of non-noise labels.
func CountClustered(labels []int) int {
	n := 0
	for _, l := range labels {
		if l != models.NoiseLabel {
			n++
		}
	}
	return n
}

// CountClusters returns the number of distinct non-noise labels.
func CountClusters(labels []int) int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l != models.NoiseLabel {
			seen[l] = struct{}{}
		}
	}
	return len(seen)
}
