package detection

import (
	"math"
	"sort"

	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// fpoint is a polygon vertex in continuous pixel coordinates.
type fpoint struct {
	X, Y float64
}

// findContours finds connected components (contours) in a binary edge map.
//
// Uses flood-fill to group connected edge pixels into contours.
// Connectivity is 8-connected (includes diagonals). Contours are returned in
// raster scan order of their first pixel, which makes the output
// deterministic for a given edge map.
//
// Contours smaller than minPixels are discarded as noise.
func findContours(edges *imaging.EdgeMap, minPixels int) [][]Point {
	width, height := edges.Width, edges.Height
	visited := make([]bool, width*height)

	contours := make([][]Point, 0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if edges.Pix[i] && !visited[i] {
				contour := make([]Point, 0)
				floodFill(edges, visited, x, y, &contour)
				if len(contour) >= minPixels {
					contours = append(contours, contour)
				}
			}
		}
	}

	return contours
}

// floodFill performs iterative flood-fill from a starting point.
//
// Uses a stack-based approach (not recursive) to avoid stack overflow
// on large contours. Marks visited pixels and appends them to the contour.
// Uses 8-connectivity (includes diagonal neighbors).
func floodFill(edges *imaging.EdgeMap, visited []bool, startX, startY int, contour *[]Point) {
	width, height := edges.Width, edges.Height
	stack := []Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		i := p.Y*width + p.X
		if visited[i] || !edges.Pix[i] {
			continue
		}

		visited[i] = true
		*contour = append(*contour, p)

		// 8-connected neighbors
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
}

// convexHull returns the hull of pts in counter-clockwise order (in a y-up
// frame) using Andrew's monotone chain. The first vertex is the leftmost
// point, lowest Y first on ties. Collinear points are dropped.
func convexHull(pts []Point) []fpoint {
	if len(pts) < 3 {
		out := make([]fpoint, len(pts))
		for i, p := range pts {
			out[i] = fpoint{float64(p.X), float64(p.Y)}
		}
		return out
	}

	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	turn := func(o, a, b Point) int {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	hull := make([]Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	hull = hull[:len(hull)-1]

	out := make([]fpoint, len(hull))
	for i, p := range hull {
		out[i] = fpoint{float64(p.X), float64(p.Y)}
	}
	return out
}

// perimeter returns the length of the closed polygon.
func perimeter(poly []fpoint) float64 {
	var sum float64
	for i := range poly {
		j := (i + 1) % len(poly)
		sum += math.Hypot(poly[j].X-poly[i].X, poly[j].Y-poly[i].Y)
	}
	return sum
}

// approxPolygon simplifies a closed polygon with Douglas-Peucker.
//
// The ring is split at vertex 0 and the vertex farthest from it, each half is
// simplified independently, and vertices left within eps of the line through
// their neighbours are then removed so the split points do not survive when
// they lie mid-edge.
func approxPolygon(poly []fpoint, eps float64) []fpoint {
	n := len(poly)
	if n < 4 {
		return poly
	}

	far := 0
	best := -1.0
	for i := 1; i < n; i++ {
		d := math.Hypot(poly[i].X-poly[0].X, poly[i].Y-poly[0].Y)
		if d > best {
			best = d
			far = i
		}
	}

	first := douglasPeucker(poly[:far+1], eps)
	second := make([]fpoint, 0, n-far+1)
	second = append(second, poly[far:]...)
	second = append(second, poly[0])
	second = douglasPeucker(second, eps)

	out := make([]fpoint, 0, len(first)+len(second))
	out = append(out, first...)
	out = append(out, second[1:len(second)-1]...)

	return pruneCollinear(out, eps)
}

// douglasPeucker simplifies an open polyline, keeping both endpoints.
func douglasPeucker(pts []fpoint, eps float64) []fpoint {
	if len(pts) < 3 {
		return append([]fpoint(nil), pts...)
	}

	a, b := pts[0], pts[len(pts)-1]
	idx := 0
	maxDist := 0.0
	for i := 1; i < len(pts)-1; i++ {
		if d := segmentDistance(pts[i], a, b); d > maxDist {
			maxDist = d
			idx = i
		}
	}

	if maxDist <= eps {
		return []fpoint{a, b}
	}

	left := douglasPeucker(pts[:idx+1], eps)
	right := douglasPeucker(pts[idx:], eps)
	return append(left[:len(left)-1], right...)
}

// pruneCollinear drops ring vertices closer than eps to the chord joining
// their neighbours until none remain or only three vertices are left.
func pruneCollinear(poly []fpoint, eps float64) []fpoint {
	out := append([]fpoint(nil), poly...)
	for len(out) > 3 {
		removed := false
		for i := 0; i < len(out); i++ {
			prev := out[(i+len(out)-1)%len(out)]
			next := out[(i+1)%len(out)]
			if segmentDistance(out[i], prev, next) <= eps {
				out = append(out[:i], out[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			break
		}
	}
	return out
}

// segmentDistance returns the distance from p to segment a-b.
func segmentDistance(p, a, b fpoint) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
