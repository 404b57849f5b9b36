package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// EdgeMap is a binary edge image stored row-major.
//
// A true entry marks an edge pixel. Coordinates are 0-based relative to the
// top-left of the analysed image regardless of the source image's bounds.
type EdgeMap struct {
	Width  int
	Height int
	Pix    []bool
}

// NewEdgeMap allocates an empty edge map.
func NewEdgeMap(width, height int) *EdgeMap {
	return &EdgeMap{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At reports whether (x, y) is an edge pixel. Out-of-range coordinates are
// never edges.
func (m *EdgeMap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Set marks (x, y) as an edge pixel.
func (m *EdgeMap) Set(x, y int, v bool) {
	m.Pix[y*m.Width+x] = v
}

// Count returns the number of edge pixels.
func (m *EdgeMap) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Dilate returns a copy grown by one pixel in every direction (3x3 square
// structuring element). It closes one-pixel gaps in document outlines.
func (m *EdgeMap) Dilate() *EdgeMap {
	out := NewEdgeMap(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Pix[y*m.Width+x] {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := x+dx, y+dy
					if px >= 0 && py >= 0 && px < m.Width && py < m.Height {
						out.Pix[py*m.Width+px] = true
					}
				}
			}
		}
	}
	return out
}

// Image renders the map as a grayscale image with edges in white.
func (m *EdgeMap) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v {
			img.Pix[i] = 255
		}
	}
	return img
}

// Canny performs Canny edge detection on an image.
//
// Parameters:
//   - img: Source image (color or grayscale).
//   - thresholdLow: Low hysteresis threshold (0-255). Typical value: 40.
//   - thresholdHigh: High hysteresis threshold (0-255). Typical value: 100.
//
// # Algorithm
//
//  1. Grayscale conversion with bild's luminance weights
//  2. Gaussian blur (bild, radius 1) to reduce sensor noise
//  3. Sobel gradients, magnitude = sqrt(Gx² + Gy²) on a 0-1 intensity scale
//  4. Non-maximum suppression along the quantised gradient direction
//  5. Hysteresis: pixels above thresholdHigh seed edges which then grow through
//     8-connected pixels above thresholdLow
//
// The result depends only on the pixel values, so repeated calls on the same
// image return identical maps.
func Canny(img image.Image, thresholdLow, thresholdHigh int) *EdgeMap {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	edges := NewEdgeMap(width, height)
	if width < 3 || height < 3 {
		return edges
	}

	if bounds.Min != (image.Point{}) {
		img = toNRGBA(img)
	}
	gray := effect.Grayscale(img)
	blurred := blur.Gaussian(gray, 1.0)
	bb := blurred.Bounds()

	lum := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			lum[y*width+x] = float64(blurred.RGBAAt(x+bb.Min.X, y+bb.Min.Y).R) / 255.0
		}
	}

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			at := func(dx, dy int) float64 {
				px := clamp(x+dx, 0, width-1)
				py := clamp(y+dy, 0, height-1)
				return lum[py*width+px]
			}
			gx := -at(-1, -1) + at(1, -1) - 2*at(-1, 0) + 2*at(1, 0) - at(-1, 1) + at(1, 1)
			gy := -at(-1, -1) - 2*at(0, -1) - at(1, -1) + at(-1, 1) + 2*at(0, 1) + at(1, 1)
			magnitude[y*width+x] = math.Sqrt(gx*gx + gy*gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			angle := direction[i]
			mag := magnitude[i]
			if mag == 0 {
				continue
			}

			var n1, n2 float64
			switch {
			case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
				n1, n2 = magnitude[i-1], magnitude[i+1]
			case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
				n1, n2 = magnitude[i-width-1], magnitude[i+width+1]
			case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
				n1, n2 = magnitude[i-width], magnitude[i+width]
			default:
				n1, n2 = magnitude[i-width+1], magnitude[i+width-1]
			}

			if mag >= n1 && mag >= n2 {
				suppressed[i] = mag
			}
		}
	}

	// Hysteresis
	lowThresh := float64(thresholdLow) / 255.0
	highThresh := float64(thresholdHigh) / 255.0
	stack := make([]int, 0, 1024)
	for i, v := range suppressed {
		if v >= highThresh && !edges.Pix[i] {
			edges.Pix[i] = true
			stack = append(stack, i)
		}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cx, cy := cur%width, cur/width
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := cx+dx, cy+dy
					if nx < 0 || ny < 0 || nx >= width || ny >= height {
						continue
					}
					n := ny*width + nx
					if !edges.Pix[n] && suppressed[n] > 0 && suppressed[n] >= lowThresh {
						edges.Pix[n] = true
						stack = append(stack, n)
					}
				}
			}
		}
	}

	return edges
}

// Grayscale converts an image to luminance using bild. The result keeps bild's
// RGBA layout with equal channels and opaque alpha.
func Grayscale(img image.Image) *image.RGBA {
	return effect.Grayscale(img)
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

