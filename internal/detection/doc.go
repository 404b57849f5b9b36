// Package detection locates the outline of a paper document in a still image.
//
// The detector is a classic contour pipeline:
//
//  1. Edge Detection: Canny on a downscaled copy, then a 3x3 dilation
//  2. Contour Finding: flood-fill groups connected edge pixels
//  3. Polygon Fitting: convex hull plus Douglas-Peucker simplification
//  4. Filtering: four vertices, convex, near-right angles, minimum area
//  5. Selection: the largest surviving candidate
//
// Results are normalized to [0,1] so they can be applied to the full
// resolution still. When no contour qualifies the detector returns a centered
// inset quadrilateral and flags the result as a fallback, so callers always
// have something to present for manual adjustment.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Limitations
//
// The detector works best on a document that contrasts with its background
// and whose four sides are visible. Heavily curled pages, documents touching
// the frame edge and low contrast backgrounds tend to produce the fallback.
package detection
