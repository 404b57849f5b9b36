package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

// DefaultMinOutputSize is the smallest width and height Commit will produce.
const DefaultMinOutputSize = 32

// RectifiedImage is the perspective-corrected page. The caller owns it; the
// engine keeps no reference once it is returned.
type RectifiedImage struct {
	Image     *image.NRGBA
	Width     int
	Height    int
	Quad      geometry.Quadrilateral
	SessionID string
}

// Encode serializes the page. format is "jpeg" (default) or "png".
func (r *RectifiedImage) Encode(format string, quality int) ([]byte, string, error) {
	f, err := imaging.ParseFormat(format)
	if err != nil {
		return nil, "", err
	}
	return imaging.Encode(r.Image, f, quality)
}

// OutputSize returns the rectified dimensions for quad applied to a w x h
// image: the longer of each pair of opposite edges, rounded to pixels.
func OutputSize(quad geometry.Quadrilateral, w, h int) (int, int) {
	pw, ph := quad.PixelSize(w, h)
	return int(math.Round(pw)), int(math.Round(ph))
}

// Rectify maps quad, given in normalized coordinates of img, onto an
// axis-aligned rectangle.
//
// The quadrilateral must be a convex simple polygon and the output must be
// at least minSize pixels on each side; otherwise ErrDegenerateQuadrilateral
// is returned.
func Rectify(ctx context.Context, img image.Image, quad geometry.Quadrilateral, minSize int) (*image.NRGBA, error) {
	if err := quad.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateQuadrilateral, err)
	}
	if !quad.IsConvex() {
		return nil, fmt.Errorf("%w: quadrilateral is not convex", ErrDegenerateQuadrilateral)
	}

	b := img.Bounds()
	w, h := OutputSize(quad, b.Dx(), b.Dy())
	if w < minSize || h < minSize {
		return nil, fmt.Errorf("%w: output %dx%d below minimum %dx%d",
			ErrDegenerateQuadrilateral, w, h, minSize, minSize)
	}

	dst := [4][2]float64{{0, 0}, {float64(w), 0}, {float64(w), float64(h)}, {0, float64(h)}}
	hm, err := geometry.ComputeHomography(dst, quad.ToPixels(b.Dx(), b.Dy()))
	if err != nil {
		if errors.Is(err, geometry.ErrSingular) {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateQuadrilateral, err)
		}
		return nil, err
	}

	out, err := imaging.Warp(ctx, img, hm, w, h)
	if err != nil {
		return nil, fmt.Errorf("failed to rectify image: %w", err)
	}
	return out, nil
}
