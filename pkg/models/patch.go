// Package models contains domain models for clusterscan.
package models

import "fmt"

// Patch is one square region of sky processed as a single clustering unit.
type Patch struct {
	RA        float64 `json:"ra"`
	Dec       float64 `json:"dec"`
	HalfWidth float64 `json:"half_width"` // degrees, also the query radius
}

// ID returns the resumption key for the patch.
func (p Patch) ID() string {
	return PatchID(p.RA, p.Dec)
}

// PatchID renders ra/dec with four fixed decimals joined by an underscore,
// e.g. "12.3400_-5.0000". The ledger relies on this being stable across runs.
func PatchID(ra, dec float64) string {
	return fmt.Sprintf("%.4f_%.4f", ra, dec)
}
