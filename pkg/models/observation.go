// Package models contains domain models for clusterscan.
package models

// Observation is a single astrometric catalog row fetched for a patch.
type Observation struct {
	SourceID int64   `json:"source_id"`
	RA       float64 `json:"ra"`       // degrees
	Dec      float64 `json:"dec"`      // degrees
	Parallax float64 `json:"parallax"` // mas, > 0
	PMRA     float64 `json:"pmra"`     // mas/yr
	PMDec    float64 `json:"pmdec"`    // mas/yr
	GMag     float64 `json:"phot_g_mean_mag"`
	BPRP     float64 `json:"bp_rp"`
}

// Features returns the kinematic feature vector used for clustering:
// (pmra, pmdec, parallax), unscaled.
func (o Observation) Features() [3]float64 {
	return [3]float64{o.PMRA, o.PMDec, o.Parallax}
}

// Valid reports whether the observation passes the basic quality filters
// the catalog query applies upstream.
func (o Observation) Valid() bool {
	return o.Parallax > 0
}

// FeatureMatrix builds the feature vectors for a set of observations,
// preserving order.
func FeatureMatrix(obs []Observation) [][3]float64 {
	features := make([][3]float64, len(obs))
	for i, o := range obs {
		features[i] = o.Features()
	}
	return features
}
