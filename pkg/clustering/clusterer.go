package clustering

import "github.com/thebtf/clusterscan/pkg/models"

// Result is the outcome of clustering one patch.
type Result struct {
	Labels    []int
	Clustered int
	Total     int
	Clusters  int
	Score     float64
}

// Clusterer labels a patch's observations. Implementations must return one
// label per observation, index aligned.
type Clusterer interface {
	Cluster(obs []models.Observation) Result
}

// Cluster runs DBSCAN over the (pmra, pmdec, parallax) features of obs.
func (d DBSCAN) Cluster(obs []models.Observation) Result {
	labels := d.Fit(models.FeatureMatrix(obs))
	return Result{
		Labels:    labels,
		Clustered: CountClustered(labels),
		Total:     len(labels),
		Clusters:  CountClusters(labels),
		Score:     Score(labels),
	}
}
