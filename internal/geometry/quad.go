package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Corner indexes into a Quadrilateral.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// epsilon is the tolerance for coincident points and collinear triples in
// normalized space.
const epsilon = 1e-9

var (
	// ErrInvalidGeometry is the parent of every validation failure.
	ErrInvalidGeometry = errors.New("invalid geometry")

	ErrCoincidentPoints = fmt.Errorf("%w: coincident corners", ErrInvalidGeometry)
	ErrCollinearPoints  = fmt.Errorf("%w: collinear corners", ErrInvalidGeometry)
	ErrSelfIntersecting = fmt.Errorf("%w: self-intersecting edges", ErrInvalidGeometry)
	ErrWinding          = fmt.Errorf("%w: corners out of order", ErrInvalidGeometry)
	ErrCornerIndex      = fmt.Errorf("%w: corner index out of range", ErrInvalidGeometry)
)

// Point is a normalized 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp constrains both coordinates to [0,1].
func Clamp(p Point) Point {
	return Point{X: clampUnit(p.X), Y: clampUnit(p.Y)}
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// cross returns the z component of (b-a) x (c-a).
func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// Quadrilateral holds four corners in TL, TR, BR, BL order.
type Quadrilateral [4]Point

// FullFrame returns the quadrilateral whose corners sit on the image bounds.
func FullFrame() Quadrilateral {
	return Quadrilateral{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
}

// Inset returns a centered axis-aligned quadrilateral covering the given
// fraction of each image dimension. Inset(0.9) leaves a 5% margin on every side.
func Inset(fraction float64) Quadrilateral {
	fraction = clampUnit(fraction)
	m := (1 - fraction) / 2
	return Quadrilateral{{m, m}, {1 - m, m}, {1 - m, 1 - m}, {m, 1 - m}}
}

// Points returns the corners as a slice.
func (q Quadrilateral) Points() []Point {
	return []Point{q[0], q[1], q[2], q[3]}
}

// Clamped returns a copy with every corner clamped to [0,1].
func (q Quadrilateral) Clamped() Quadrilateral {
	for i := range q {
		q[i] = Clamp(q[i])
	}
	return q
}

// SignedArea returns the shoelace area. It is positive for TL, TR, BR, BL order
// in image coordinates.
func (q Quadrilateral) SignedArea() float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		sum += q[i].X*q[j].Y - q[j].X*q[i].Y
	}
	return sum / 2
}

// Area returns the enclosed area.
func (q Quadrilateral) Area() float64 {
	return math.Abs(q.SignedArea())
}

// Angles returns the internal angle at each corner in degrees.
func (q Quadrilateral) Angles() [4]float64 {
	var out [4]float64
	for i := 0; i < 4; i++ {
		prev := q[(i+3)%4]
		next := q[(i+1)%4]
		out[i] = angleAt(prev, q[i], next)
	}
	return out
}

// angleAt returns the angle prev-p-next in degrees.
func angleAt(prev, p, next Point) float64 {
	ax, ay := prev.X-p.X, prev.Y-p.Y
	bx, by := next.X-p.X, next.Y-p.Y
	la := math.Hypot(ax, ay)
	lb := math.Hypot(bx, by)
	if la == 0 || lb == 0 {
		return 0
	}
	c := (ax*bx + ay*by) / (la * lb)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}

// IsConvex reports whether every turn along the corners has the same sign.
func (q Quadrilateral) IsConvex() bool {
	sign := 0
	for i := 0; i < 4; i++ {
		c := cross(q[i], q[(i+1)%4], q[(i+2)%4])
		if math.Abs(c) < epsilon {
			return false
		}
		s := 1
		if c < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if s != sign {
			return false
		}
	}
	return true
}

// Validate checks the simple-polygon invariant.
func (q Quadrilateral) Validate() error {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if Distance(q[i], q[j]) < epsilon {
				return fmt.Errorf("%w: %d and %d", ErrCoincidentPoints, i, j)
			}
		}
	}
	for i := 0; i < 4; i++ {
		if math.Abs(cross(q[(i+3)%4], q[i], q[(i+1)%4])) < epsilon {
			return fmt.Errorf("%w: at corner %d", ErrCollinearPoints, i)
		}
	}
	if segmentsIntersect(q[0], q[1], q[2], q[3]) || segmentsIntersect(q[1], q[2], q[3], q[0]) {
		return ErrSelfIntersecting
	}
	if q.SignedArea() <= 0 {
		return ErrWinding
	}
	return nil
}

// WithCorner returns a copy with corner i replaced by the clamped point.
// The receiver is never modified; on error the zero value is returned.
func (q Quadrilateral) WithCorner(i int, p Point) (Quadrilateral, error) {
	if i < 0 || i > 3 {
		return Quadrilateral{}, fmt.Errorf("%w: %d", ErrCornerIndex, i)
	}
	next := q
	next[i] = Clamp(p)
	if err := next.Validate(); err != nil {
		return Quadrilateral{}, err
	}
	return next, nil
}

// segmentsIntersect reports whether segment p1-p2 touches or crosses p3-p4.
func segmentsIntersect(p1, p2, p3, p4 Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > epsilon && d2 < -epsilon) || (d1 < -epsilon && d2 > epsilon)) &&
		((d3 > epsilon && d4 < -epsilon) || (d3 < -epsilon && d4 > epsilon)) {
		return true
	}
	return (math.Abs(d1) <= epsilon && onSegment(p3, p4, p1)) ||
		(math.Abs(d2) <= epsilon && onSegment(p3, p4, p2)) ||
		(math.Abs(d3) <= epsilon && onSegment(p1, p2, p3)) ||
		(math.Abs(d4) <= epsilon && onSegment(p1, p2, p4))
}

// onSegment assumes p is collinear with a-b.
func onSegment(a, b, p Point) bool {
	return p.X >= math.Min(a.X, b.X)-epsilon && p.X <= math.Max(a.X, b.X)+epsilon &&
		p.Y >= math.Min(a.Y, b.Y)-epsilon && p.Y <= math.Max(a.Y, b.Y)+epsilon
}

// OrderCorners arranges four points as TL, TR, BR, BL.
//
// Points are sorted by angle around their centroid, which in image coordinates
// yields a clockwise walk, then rotated so the corner with the smallest X+Y
// comes first. Ties on X+Y prefer the smaller Y.
func OrderCorners(pts [4]Point) Quadrilateral {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= 4
	cy /= 4

	sorted := pts
	sort.SliceStable(sorted[:], func(i, j int) bool {
		ai := math.Atan2(sorted[i].Y-cy, sorted[i].X-cx)
		aj := math.Atan2(sorted[j].Y-cy, sorted[j].X-cx)
		return ai < aj
	})

	start := 0
	for i := 1; i < 4; i++ {
		si := sorted[i].X + sorted[i].Y
		ss := sorted[start].X + sorted[start].Y
		if si < ss || (si == ss && sorted[i].Y < sorted[start].Y) {
			start = i
		}
	}

	var q Quadrilateral
	for i := 0; i < 4; i++ {
		q[i] = sorted[(start+i)%4]
	}
	return q
}

// PixelSize estimates the rectified output size for an image of w x h pixels:
// the longer of each opposite-edge pair, measured in source pixels.
func (q Quadrilateral) PixelSize(w, h int) (width, height float64) {
	px := q.ToPixels(w, h)
	top := math.Hypot(px[1][0]-px[0][0], px[1][1]-px[0][1])
	bottom := math.Hypot(px[2][0]-px[3][0], px[2][1]-px[3][1])
	left := math.Hypot(px[3][0]-px[0][0], px[3][1]-px[0][1])
	right := math.Hypot(px[2][0]-px[1][0], px[2][1]-px[1][1])
	return math.Max(top, bottom), math.Max(left, right)
}

// ToPixels scales the corners to pixel coordinates of a w x h image.
func (q Quadrilateral) ToPixels(w, h int) [4][2]float64 {
	var out [4][2]float64
	for i, p := range q {
		out[i] = [2]float64{p.X * float64(w), p.Y * float64(h)}
	}
	return out
}

// String implements fmt.Stringer.
func (q Quadrilateral) String() string {
	return fmt.Sprintf("[(%.4f,%.4f) (%.4f,%.4f) (%.4f,%.4f) (%.4f,%.4f)]",
		q[0].X, q[0].Y, q[1].X, q[1].Y, q[2].X, q[2].Y, q[3].X, q[3].Y)
}
