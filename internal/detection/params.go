package detection

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid detection parameters")

// Params tunes the border detector. The zero value is not usable; start from
// DefaultParams.
type Params struct {
	// AngleTolerance is the maximum deviation, in degrees, of each internal
	// angle from 90 for a candidate to qualify.
	AngleTolerance float64 `yaml:"angle_tolerance"`

	// FallbackInset is the fraction of each frame dimension covered by the
	// quadrilateral returned when no candidate qualifies.
	FallbackInset float64 `yaml:"fallback_inset"`

	// WorkingSize caps the longer image dimension before edge detection.
	WorkingSize int `yaml:"working_size"`

	// CannyLow and CannyHigh are hysteresis thresholds on a 0-255 scale.
	CannyLow  int `yaml:"canny_low"`
	CannyHigh int `yaml:"canny_high"`

	// ApproxEpsilon is the polygon simplification tolerance as a fraction of
	// the contour's hull perimeter.
	ApproxEpsilon float64 `yaml:"approx_epsilon"`

	// MinAreaFraction is the smallest candidate area relative to the frame.
	MinAreaFraction float64 `yaml:"min_area_fraction"`

	// MinContourPixels discards edge components smaller than this.
	MinContourPixels int `yaml:"min_contour_pixels"`
}

// DefaultParams returns the detector defaults.
func DefaultParams() Params {
	return Params{
		AngleTolerance:   20,
		FallbackInset:    0.90,
		WorkingSize:      512,
		CannyLow:         40,
		CannyHigh:        100,
		ApproxEpsilon:    0.02,
		MinAreaFraction:  0.05,
		MinContourPixels: 10,
	}
}

// Validate reports the first out-of-range field.
func (p Params) Validate() error {
	switch {
	case p.AngleTolerance <= 0 || p.AngleTolerance >= 90:
		return fmt.Errorf("%w: angle_tolerance %v must be in (0, 90)", ErrInvalidParams, p.AngleTolerance)
	case p.FallbackInset <= 0 || p.FallbackInset > 1:
		return fmt.Errorf("%w: fallback_inset %v must be in (0, 1]", ErrInvalidParams, p.FallbackInset)
	case p.WorkingSize < 64:
		return fmt.Errorf("%w: working_size %d must be at least 64", ErrInvalidParams, p.WorkingSize)
	case p.CannyLow < 0 || p.CannyHigh > 255 || p.CannyLow > p.CannyHigh:
		return fmt.Errorf("%w: canny thresholds %d/%d must satisfy 0 <= low <= high <= 255",
			ErrInvalidParams, p.CannyLow, p.CannyHigh)
	case p.ApproxEpsilon <= 0 || p.ApproxEpsilon >= 0.5:
		return fmt.Errorf("%w: approx_epsilon %v must be in (0, 0.5)", ErrInvalidParams, p.ApproxEpsilon)
	case p.MinAreaFraction < 0 || p.MinAreaFraction >= 1:
		return fmt.Errorf("%w: min_area_fraction %v must be in [0, 1)", ErrInvalidParams, p.MinAreaFraction)
	case p.MinContourPixels < 1:
		return fmt.Errorf("%w: min_contour_pixels %d must be positive", ErrInvalidParams, p.MinContourPixels)
	}
	return nil
}
