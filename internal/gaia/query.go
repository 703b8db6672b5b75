// Package gaia queries the Gaia archive for astrometric observations.
package gaia

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidShape is returned for region shapes other than CIRCLE and BOX.
var ErrInvalidShape = errors.New("invalid shape: must be CIRCLE or BOX")

// Shapes accepted by the region query builder.
const (
	ShapeCircle = "CIRCLE"
	ShapeBox    = "BOX"
)

const (
	sourceTable    = "gaiadr3.gaia_source"
	minimalColumns = "source_id, ra, dec, parallax, pmra, pmdec, phot_g_mean_mag, bp_rp"
)

// QueryParams describes a region query.
type QueryParams struct {
	Shape           string  // CIRCLE or BOX, case-insensitive
	RA              float64 // degrees
	Dec             float64 // degrees
	Size            float64 // circle radius or box edge, degrees
	Limit           int     // TOP n; 0 for no limit
	AllColumns      bool
	OrderByDistance bool
}

// NormalizeShape upper-cases shape and checks it is supported.
func NormalizeShape(shape string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(shape))
	switch s {
	case ShapeCircle, ShapeBox:
		return s, nil
	}
	return "", fmt.Errorf("%w: got %q", ErrInvalidShape, shape)
}

// BuildQuery renders an ADQL query selecting rows inside the region with
// positive parallax and non-null proper motion, magnitude and colour.
func BuildQuery(p QueryParams) (string, error) {
	shape, err := NormalizeShape(p.Shape)
	if err != nil {
		return "", err
	}

	ra, dec, size := num(p.RA), num(p.Dec), num(p.Size)

	var region string
	switch shape {
	case ShapeCircle:
		region = fmt.Sprintf("CIRCLE('ICRS', %s, %s, %s)", ra, dec, size)
	case ShapeBox:
		region = fmt.Sprintf("BOX('ICRS', %s, %s, %s, %s)", ra, dec, size, size)
	}

	columns := minimalColumns
	if p.AllColumns {
		columns = "*"
	}

	var b strings.Builder
	b.WriteString("SELECT")
	if p.Limit > 0 {
		fmt.Fprintf(&b, " TOP %d", p.Limit)
	}
	fmt.Fprintf(&b, "\n%s, DISTANCE(POINT('ICRS', ra, dec), POINT('ICRS', %s, %s)) AS dist", columns, ra, dec)
	fmt.Fprintf(&b, "\nFROM %s", sourceTable)
	fmt.Fprintf(&b, "\nWHERE CONTAINS(POINT('ICRS', ra, dec), %s)=1", region)
	b.WriteString("\nAND parallax > 0")
	b.WriteString("\nAND pmra IS NOT NULL")
	b.WriteString("\nAND pmdec IS NOT NULL")
	b.WriteString("\nAND phot_g_mean_mag IS NOT NULL")
	b.WriteString("\nAND bp_rp IS NOT NULL")
	if p.OrderByDistance {
		b.WriteString("\nORDER BY dist ASC")
	}
	return b.String(), nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
