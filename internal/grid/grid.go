// Package grid tiles a right ascension / declination range into square patches.
//
// Patches step by a constant angular size from each range minimum, excluding
// the maximum, RA in the outer loop and Dec in the inner loop. No correction
// is applied for RA convergence toward the poles, so pole-adjacent rows are
// oversampled on the sphere.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/thebtf/clusterscan/pkg/models"
)

// ErrInvalidRange is returned for empty, inverted or non-finite ranges and
// non-positive step sizes.
var ErrInvalidRange = errors.New("invalid grid range")

// Range is a half-open interval [Min, Max) in degrees.
type Range struct {
	Min float64
	Max float64
}

// Steps returns min, min+step, min+2*step, ... strictly below max.
// Values are computed as min + i*step rather than accumulated, so the
// sequence is identical on every invocation.
func Steps(r Range, step float64) ([]float64, error) {
	if err := validate(r, step); err != nil {
		return nil, err
	}
	n := int(math.Ceil((r.Max - r.Min) / step))
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := r.Min + float64(i)*step
		if v >= r.Max {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// Patches returns the outer product of the RA and Dec steps in RA-major order.
// Every patch has a half-width of step/2.
func Patches(ra, dec Range, step float64) ([]models.Patch, error) {
	raSteps, err := Steps(ra, step)
	if err != nil {
		return nil, fmt.Errorf("ra: %w", err)
	}
	decSteps, err := Steps(dec, step)
	if err != nil {
		return nil, fmt.Errorf("dec: %w", err)
	}

	patches := make([]models.Patch, 0, len(raSteps)*len(decSteps))
	for _, r := range raSteps {
		for _, d := range decSteps {
			patches = append(patches, models.Patch{RA: r, Dec: d, HalfWidth: step / 2})
		}
	}
	return patches, nil
}

func validate(r Range, step float64) error {
	for _, v := range []float64{r.Min, r.Max, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidRange)
		}
	}
	if step <= 0 {
		return fmt.Errorf("%w: step %g must be positive", ErrInvalidRange, step)
	}
	if r.Max < r.Min {
		return fmt.Errorf("%w: max %g below min %g", ErrInvalidRange, r.Max, r.Min)
	}
	return nil
}
