package geometry

import (
	"errors"
	"math"
)

// ErrSingular is returned when four correspondences do not determine a
// unique projective transform.
var ErrSingular = errors.New("singular homography")

// Homography is a row-major 3x3 projective transform with H[8] fixed to 1.
type Homography [9]float64

// ComputeHomography returns H such that H maps each from[i] onto to[i].
//
// The eight unknowns h0..h7 come from the standard direct linear system
//
//	u = (h0*x + h1*y + h2) / (h6*x + h7*y + 1)
//	v = (h3*x + h4*y + h5) / (h6*x + h7*y + 1)
//
// solved with Gaussian elimination and partial pivoting.
func ComputeHomography(from, to [4][2]float64) (Homography, error) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := from[i][0], from[i][1]
		u, v := to[i][0], to[i][1]
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -v * x, -v * y, v}
	}

	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return Homography{}, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]

		for row := 0; row < 8; row++ {
			if row == col {
				continue
			}
			f := a[row][col] / a[col][col]
			if f == 0 {
				continue
			}
			for k := col; k < 9; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h[i] = a[i][8] / a[i][i]
	}
	h[8] = 1
	return h, nil
}

// Apply maps (x, y) through the transform. ok is false when the point lands on
// the line at infinity.
func (h Homography) Apply(x, y float64) (u, v float64, ok bool) {
	w := h[6]*x + h[7]*y + h[8]
	if math.Abs(w) < 1e-12 {
		return 0, 0, false
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w, true
}
