package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// GridSuite is a test suite for sky tiling.
type GridSuite struct {
	suite.Suite
}

func TestGridSuite(t *testing.T) {
	suite.Run(t, new(GridSuite))
}

// TestPatches_Count checks ceil(ra/step) * ceil(dec/step) patches within bounds.
func (s *GridSuite) TestPatches_Count() {
	tests := []struct {
		name string
		ra   Range
		dec  Range
		step float64
	}{
		{name: "unit square", ra: Range{0, 1}, dec: Range{0, 1}, step: 1},
		{name: "uneven split", ra: Range{0, 10}, dec: Range{-5, 5}, step: 3},
		{name: "full sky default", ra: Range{0, 360}, dec: Range{-90, 90}, step: 10},
		{name: "fractional step", ra: Range{10, 11}, dec: Range{20, 20.5}, step: 0.1},
		{name: "empty range", ra: Range{5, 5}, dec: Range{0, 1}, step: 1},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			patches, err := Patches(tt.ra, tt.dec, tt.step)
			s.Require().NoError(err)

			nRA := int(math.Ceil((tt.ra.Max - tt.ra.Min) / tt.step))
			nDec := int(math.Ceil((tt.dec.Max - tt.dec.Min) / tt.step))
			s.Len(patches, nRA*nDec)

			for _, p := range patches {
				s.GreaterOrEqual(p.RA, tt.ra.Min)
				s.Less(p.RA, tt.ra.Max)
				s.GreaterOrEqual(p.Dec, tt.dec.Min)
				s.Less(p.Dec, tt.dec.Max)
				s.InDelta(tt.step/2, p.HalfWidth, 1e-12)
			}
		})
	}
}

// TestPatches_RAMajorOrder checks the declaration order of the loops.
func (s *GridSuite) TestPatches_RAMajorOrder() {
	patches, err := Patches(Range{0, 2}, Range{10, 13}, 1)
	s.Require().NoError(err)

	ids := make([]string, len(patches))
	for i, p := range patches {
		ids[i] = p.ID()
	}
	s.Equal([]string{
		"0.0000_10.0000", "0.0000_11.0000", "0.0000_12.0000",
		"1.0000_10.0000", "1.0000_11.0000", "1.0000_12.0000",
	}, ids)
}

// TestPatches_SinglePatch is the unit-square scenario.
func (s *GridSuite) TestPatches_SinglePatch() {
	patches, err := Patches(Range{0, 1}, Range{0, 1}, 1)
	s.Require().NoError(err)
	s.Require().Len(patches, 1)
	s.Equal("0.0000_0.0000", patches[0].ID())
	s.Equal(0.5, patches[0].HalfWidth)
}

// TestPatches_Deterministic checks ids are reproducible across invocations.
func (s *GridSuite) TestPatches_Deterministic() {
	a, err := Patches(Range{0, 5}, Range{-3, 3}, 0.7)
	s.Require().NoError(err)
	b, err := Patches(Range{0, 5}, Range{-3, 3}, 0.7)
	s.Require().NoError(err)
	s.Equal(a, b)

	seen := make(map[string]bool, len(a))
	for _, p := range a {
		s.False(seen[p.ID()], "duplicate id %s", p.ID())
		seen[p.ID()] = true
	}
}

func TestSteps_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		r    Range
		step float64
	}{
		{name: "zero step", r: Range{0, 1}, step: 0},
		{name: "negative step", r: Range{0, 1}, step: -1},
		{name: "inverted", r: Range{2, 1}, step: 1},
		{name: "nan", r: Range{math.NaN(), 1}, step: 1},
		{name: "inf step", r: Range{0, 1}, step: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Steps(tt.r, tt.step)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}

func TestPatches_WrapsAxisInError(t *testing.T) {
	_, err := Patches(Range{0, 1}, Range{1, 0}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dec:")
}
