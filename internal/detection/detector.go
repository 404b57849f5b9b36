package detection

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
	imgproc "github.com/ironsheep/docscan-mcp/internal/imaging"
)

// Result is the outcome of a detection pass.
type Result struct {
	// Quad is the detected document outline in normalized coordinates, or the
	// fallback inset when Fallback is true.
	Quad geometry.Quadrilateral `json:"quad"`

	// Fallback reports that no contour qualified.
	Fallback bool `json:"fallback"`

	// Candidates is the number of contours that passed every filter.
	Candidates int `json:"candidates"`

	// Score is the chosen candidate's area as a fraction of the frame
	// (0 on fallback).
	Score float64 `json:"score"`
}

// Detector finds the document quadrilateral in a still.
//
// A Detector holds no per-call state and is safe for concurrent use.
type Detector struct {
	params Params
	logger *zap.Logger
}

// NewDetector validates params and returns a Detector. A nil logger disables
// logging.
func NewDetector(params Params, logger *zap.Logger) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{params: params, logger: logger}, nil
}

// Params returns the detector's configuration.
func (d *Detector) Params() Params {
	return d.params
}

// Detect locates the document in img.
//
// # Algorithm
//
//  1. Downscale so the longer side is at most WorkingSize (box filter)
//  2. Canny edge map followed by a 3x3 dilation to close small gaps
//  3. Contours: 8-connected components of edge pixels in raster scan order
//  4. Per contour: convex hull, then closed Douglas-Peucker simplification
//     with tolerance ApproxEpsilon x hull perimeter
//  5. A candidate qualifies when it has exactly four vertices, is convex,
//     every internal angle is within 90 +/- AngleTolerance degrees and its
//     area is at least MinAreaFraction of the frame
//  6. The largest qualifying candidate wins; equal areas keep the earlier
//     contour
//
// When nothing qualifies the centered FallbackInset quadrilateral is returned
// with Fallback set. The only error is ctx.Err() when ctx is cancelled.
// Output depends only on the pixel values of img.
func (d *Detector) Detect(ctx context.Context, img image.Image) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	fallback := Result{Quad: geometry.Inset(d.params.FallbackInset), Fallback: true}

	bounds := img.Bounds()
	if bounds.Dx() < 3 || bounds.Dy() < 3 {
		return fallback, nil
	}

	edges, err := d.Edges(ctx, img)
	if err != nil {
		return Result{}, err
	}

	width, height := edges.Width, edges.Height
	frameArea := float64(width * height)

	contours := findContours(edges, d.params.MinContourPixels)

	var (
		best       geometry.Quadrilateral
		bestArea   float64
		candidates int
	)
	for i, contour := range contours {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		quad, ok := d.evaluate(contour, frameArea)
		if !ok {
			continue
		}
		candidates++
		if area := quad.Area(); area > bestArea {
			best = quad
			bestArea = area
			d.logger.Debug("candidate accepted",
				zap.Int("contour", i),
				zap.Float64("area_fraction", area/frameArea))
		}
	}

	if candidates == 0 {
		d.logger.Debug("no qualifying contour, using fallback",
			zap.Int("contours", len(contours)),
			zap.Int("edge_pixels", edges.Count()))
		return fallback, nil
	}

	var quad geometry.Quadrilateral
	for i, p := range best {
		quad[i] = geometry.Point{X: p.X / float64(width), Y: p.Y / float64(height)}
	}

	res := Result{
		Quad:       quad.Clamped(),
		Candidates: candidates,
		Score:      bestArea / frameArea,
	}
	d.logger.Debug("document found", zap.Stringer("result", res))
	return res, nil
}

// Edges returns the dilated edge map the detector works on: img downscaled
// to WorkingSize, then Canny with the configured thresholds.
func (d *Detector) Edges(ctx context.Context, img image.Image) (*imgproc.EdgeMap, error) {
	working := d.downscale(img)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	edges := imgproc.Canny(working, d.params.CannyLow, d.params.CannyHigh).Dilate()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

// downscale returns img resized so that its longer side is at most
// WorkingSize. Smaller images are returned unchanged.
func (d *Detector) downscale(img image.Image) image.Image {
	b := img.Bounds()
	size := d.params.WorkingSize
	if b.Dx() <= size && b.Dy() <= size {
		return img
	}
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, size, 0, imaging.Box)
	}
	return imaging.Resize(img, 0, size, imaging.Box)
}

// evaluate reduces a contour to a quadrilateral in working pixel coordinates
// and reports whether it qualifies as a document outline.
func (d *Detector) evaluate(contour []Point, frameArea float64) (geometry.Quadrilateral, bool) {
	hull := convexHull(contour)
	if len(hull) < 4 {
		return geometry.Quadrilateral{}, false
	}

	approx := approxPolygon(hull, d.params.ApproxEpsilon*perimeter(hull))
	if len(approx) != 4 {
		return geometry.Quadrilateral{}, false
	}

	// Edge pixels are sampled at their centres.
	var pts [4]geometry.Point
	for i, p := range approx {
		pts[i] = geometry.Point{X: p.X + 0.5, Y: p.Y + 0.5}
	}
	quad := geometry.OrderCorners(pts)

	if !quad.IsConvex() {
		return geometry.Quadrilateral{}, false
	}
	for _, a := range quad.Angles() {
		if math.Abs(a-90) > d.params.AngleTolerance {
			return geometry.Quadrilateral{}, false
		}
	}
	if quad.Area() < d.params.MinAreaFraction*frameArea {
		return geometry.Quadrilateral{}, false
	}
	return quad, true
}

// String implements fmt.Stringer for log output.
func (r Result) String() string {
	if r.Fallback {
		return fmt.Sprintf("fallback %s", r.Quad)
	}
	return fmt.Sprintf("%s (score %.3f, %d candidates)", r.Quad, r.Score, r.Candidates)
}
