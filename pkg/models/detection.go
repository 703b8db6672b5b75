// Package models contains domain models for clusterscan.
package models

import "time"

// NoiseLabel is the cluster label assigned to observations outside every cluster.
const NoiseLabel = -1

// PatchState is the per-patch outcome of a scan step.
type PatchState string

const (
	PatchPending       PatchState = "pending"
	PatchFetched       PatchState = "fetched"
	PatchSkippedSparse PatchState = "skipped-sparse"
	PatchScored        PatchState = "scored"
	PatchAlreadyDone   PatchState = "already-done"
)

// Detection is a patch in which at least one observation was assigned to a cluster.
type Detection struct {
	RA        float64   `json:"ra"`
	Dec       float64   `json:"dec"`
	Score     float64   `json:"probability"`
	Clustered int       `json:"clustered"`
	Total     int       `json:"total"`
	Clusters  int       `json:"clusters"`
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PatchID returns the resumption key of the patch the detection came from.
func (d Detection) PatchID() string {
	return PatchID(d.RA, d.Dec)
}

// PatchData carries everything a sink may need to render a detection:
// the observations and the labels assigned to them, index aligned.
type PatchData struct {
	Patch        Patch
	Observations []Observation
	Labels       []int
}
