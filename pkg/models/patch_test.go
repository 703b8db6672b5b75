// Package models contains domain models for clusterscan.
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// PatchSuite is a test suite for patch identity.
type PatchSuite struct {
	suite.Suite
}

func TestPatchSuite(t *testing.T) {
	suite.Run(t, new(PatchSuite))
}

// TestPatchID_TableDriven tests the fixed four-decimal rendering.
func (s *PatchSuite) TestPatchID_TableDriven() {
	tests := []struct {
		name     string
		expected string
		ra       float64
		dec      float64
	}{
		{name: "origin", ra: 0, dec: 0, expected: "0.0000_0.0000"},
		{name: "negative dec", ra: 12.34, dec: -5, expected: "12.3400_-5.0000"},
		{name: "rounds to four digits", ra: 1.23456, dec: 2.00004, expected: "1.2346_2.0000"},
		{name: "full circle edge", ra: 350, dec: -90, expected: "350.0000_-90.0000"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.expected, PatchID(tt.ra, tt.dec))
			s.Equal(tt.expected, Patch{RA: tt.ra, Dec: tt.dec}.ID())
		})
	}
}

// TestPatchID_Deterministic re-encodes the same pair many times.
func (s *PatchSuite) TestPatchID_Deterministic() {
	first := PatchID(123.456789, -45.678912)
	for i := 0; i < 100; i++ {
		s.Equal(first, PatchID(123.456789, -45.678912))
	}
}

func TestDetection_PatchID(t *testing.T) {
	d := Detection{RA: 10, Dec: -20}
	assert.Equal(t, "10.0000_-20.0000", d.PatchID())
}

func TestFeatureMatrix(t *testing.T) {
	obs := []Observation{
		{PMRA: 1, PMDec: 2, Parallax: 3},
		{PMRA: -4, PMDec: 5.5, Parallax: 0.1},
	}
	features := FeatureMatrix(obs)
	assert.Equal(t, [][3]float64{{1, 2, 3}, {-4, 5.5, 0.1}}, features)
	assert.True(t, obs[0].Valid())
	assert.False(t, Observation{Parallax: 0}.Valid())
}
