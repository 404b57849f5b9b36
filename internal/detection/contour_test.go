package detection

import (
	"math"
	"testing"

	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

// squareOutline returns an edge map with a one pixel square outline.
func squareOutline(size, lo, hi int) *imaging.EdgeMap {
	edges := imaging.NewEdgeMap(size, size)
	for i := lo; i <= hi; i++ {
		edges.Set(i, lo, true)
		edges.Set(i, hi, true)
		edges.Set(lo, i, true)
		edges.Set(hi, i, true)
	}
	return edges
}

func TestFindContours(t *testing.T) {
	edges := squareOutline(20, 5, 15)
	// An isolated speck below the minimum size.
	edges.Set(1, 1, true)

	contours := findContours(edges, 10)

	if len(contours) != 1 {
		t.Fatalf("Expected 1 contour, got %d", len(contours))
	}
	if len(contours[0]) != 40 {
		t.Errorf("Expected 40 outline pixels, got %d", len(contours[0]))
	}
}

func TestFindContours_ScanOrder(t *testing.T) {
	edges := imaging.NewEdgeMap(30, 30)
	for x := 2; x < 14; x++ {
		edges.Set(x, 20, true)
		edges.Set(x+14, 3, true)
	}

	contours := findContours(edges, 5)
	if len(contours) != 2 {
		t.Fatalf("Expected 2 contours, got %d", len(contours))
	}
	if contours[0][0].Y != 3 || contours[1][0].Y != 20 {
		t.Errorf("contours not in raster order: first starts at %v, second at %v",
			contours[0][0], contours[1][0])
	}
}

func TestFindContours_Empty(t *testing.T) {
	contours := findContours(imaging.NewEdgeMap(20, 20), 1)

	if len(contours) != 0 {
		t.Errorf("Expected 0 contours in empty edge image, got %d", len(contours))
	}
}

func TestFloodFill(t *testing.T) {
	edges := imaging.NewEdgeMap(10, 10)
	visited := make([]bool, 100)

	// Create a small connected region
	edges.Set(5, 5, true)
	edges.Set(6, 5, true)
	edges.Set(5, 6, true)
	edges.Set(6, 6, true)
	edges.Set(7, 7, true) // joins through the diagonal

	var contour []Point
	floodFill(edges, visited, 5, 5, &contour)

	if len(contour) != 5 {
		t.Errorf("Expected 5 points in contour, got %d", len(contour))
	}
	for _, p := range contour {
		if !visited[p.Y*10+p.X] {
			t.Errorf("point %v not marked visited", p)
		}
	}
}

func TestConvexHull(t *testing.T) {
	pts := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 5}, {3, 7}, {5, 0}, {10, 5}}

	hull := convexHull(pts)

	if len(hull) != 4 {
		t.Fatalf("Expected 4 hull vertices, got %d: %v", len(hull), hull)
	}
	if hull[0] != (fpoint{0, 0}) {
		t.Errorf("hull should start at the leftmost point, got %v", hull[0])
	}
	want := map[fpoint]bool{{0, 0}: true, {10, 0}: true, {10, 10}: true, {0, 10}: true}
	for _, p := range hull {
		if !want[p] {
			t.Errorf("unexpected hull vertex %v", p)
		}
	}
}

func TestConvexHull_Degenerate(t *testing.T) {
	if got := convexHull([]Point{{1, 1}, {2, 2}}); len(got) != 2 {
		t.Errorf("Expected 2 points back, got %d", len(got))
	}
	if got := convexHull([]Point{{0, 0}, {1, 1}, {2, 2}, {3, 3}}); len(got) != 2 {
		t.Errorf("collinear input should collapse to 2 vertices, got %d", len(got))
	}
}

func TestApproxPolygon(t *testing.T) {
	// Dense ring around a 100x60 rectangle, starting mid-edge.
	var ring []fpoint
	for x := 50.0; x < 100; x++ {
		ring = append(ring, fpoint{x, 0})
	}
	for y := 0.0; y < 60; y++ {
		ring = append(ring, fpoint{100, y})
	}
	for x := 100.0; x > 0; x-- {
		ring = append(ring, fpoint{x, 60})
	}
	for y := 60.0; y > 0; y-- {
		ring = append(ring, fpoint{0, y})
	}
	for x := 0.0; x < 50; x++ {
		ring = append(ring, fpoint{x, 0})
	}

	got := approxPolygon(ring, 0.02*perimeter(ring))
	if len(got) != 4 {
		t.Fatalf("Expected 4 vertices, got %d: %v", len(got), got)
	}
	corners := map[fpoint]bool{{0, 0}: true, {100, 0}: true, {100, 60}: true, {0, 60}: true}
	for _, p := range got {
		if !corners[p] {
			t.Errorf("unexpected vertex %v", p)
		}
	}
}

func TestApproxPolygon_BeveledCorners(t *testing.T) {
	hull := []fpoint{
		{0, 2}, {2, 0}, {98, 0}, {100, 2}, {100, 58}, {98, 60}, {2, 60}, {0, 58},
	}
	if got := approxPolygon(hull, 0.02*perimeter(hull)); len(got) != 4 {
		t.Errorf("Expected bevels to collapse to 4 vertices, got %d: %v", len(got), got)
	}
}

func TestPerimeter(t *testing.T) {
	square := []fpoint{{0, 0}, {3, 0}, {3, 4}, {0, 4}}
	if got := perimeter(square); got != 14 {
		t.Errorf("perimeter = %v, want 14", got)
	}
}

func TestSegmentDistance(t *testing.T) {
	tests := []struct {
		name    string
		p, a, b fpoint
		want    float64
	}{
		{"perpendicular", fpoint{5, 3}, fpoint{0, 0}, fpoint{10, 0}, 3},
		{"beyond end", fpoint{13, 4}, fpoint{0, 0}, fpoint{10, 0}, 5},
		{"degenerate segment", fpoint{3, 4}, fpoint{0, 0}, fpoint{0, 0}, 5},
	}

	for _, tt := range tests {
		if got := segmentDistance(tt.p, tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: segmentDistance = %v, want %v", tt.name, got, tt.want)
		}
	}
}
