package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
)

// DefaultOverlayColor is the outline colour used when none is configured.
const DefaultOverlayColor = "#00C8FF"

var cornerLabels = [4]string{"TL", "TR", "BR", "BL"}

// OverlayOptions controls how a quadrilateral is drawn over a still.
type OverlayOptions struct {
	// Color is a hex colour such as "#00C8FF". Invalid values fall back to
	// DefaultOverlayColor.
	Color string

	// StrokeWidth is the outline thickness in pixels (default 3).
	StrokeWidth int

	// HandleRadius is the radius of the corner handles in pixels (default 8).
	HandleRadius int

	// ShowLabels draws TL/TR/BR/BL next to each handle.
	ShowLabels bool
}

// OverlayResult contains a base64 encoded preview with the outline drawn in.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Overlay draws quad over img and returns a PNG preview.
func Overlay(img image.Image, quad geometry.Quadrilateral, opts OverlayOptions) (*OverlayResult, error) {
	canvas := DrawOverlay(img, quad, opts)
	encoded, mimeType, err := EncodeBase64(canvas, FormatPNG, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to render overlay: %w", err)
	}
	return &OverlayResult{
		Width:       canvas.Rect.Dx(),
		Height:      canvas.Rect.Dy(),
		ImageBase64: encoded,
		MimeType:    mimeType,
	}, nil
}

// DrawOverlay returns a copy of img with the quadrilateral outline, corner
// handles and optional labels drawn on top. img is not modified.
func DrawOverlay(img image.Image, quad geometry.Quadrilateral, opts OverlayOptions) *image.RGBA {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	result := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	stroke := parseOverlayColor(opts.Color)
	strokeWidth := opts.StrokeWidth
	if strokeWidth <= 0 {
		strokeWidth = 3
	}
	radius := opts.HandleRadius
	if radius <= 0 {
		radius = 8
	}

	// Normalized corners address pixel edges; the last pixel column sits at w-1.
	var px [4]image.Point
	for i, p := range quad.Clamped() {
		px[i] = image.Pt(
			clamp(int(p.X*float64(width)), 0, width-1),
			clamp(int(p.Y*float64(height)), 0, height-1),
		)
	}

	for i := 0; i < 4; i++ {
		drawLine(result, px[i], px[(i+1)%4], strokeWidth, stroke)
	}
	for i := 0; i < 4; i++ {
		fillCircle(result, px[i], radius, stroke)
		fillCircle(result, px[i], radius/2, color.RGBA{255, 255, 255, 255})
	}

	if opts.ShowLabels {
		var cx, cy int
		for _, p := range px {
			cx += p.X
			cy += p.Y
		}
		cx /= 4
		cy /= 4
		for i, p := range px {
			// Nudge the label from the handle toward the centre of the quad.
			lx := p.X + radius + 2
			if p.X > cx {
				lx = p.X - radius - 2 - 14
			}
			ly := p.Y + radius + 2
			if p.Y > cy {
				ly = p.Y - radius - 2 - 13
			}
			drawLabel(result, lx, ly, cornerLabels[i], color.RGBA{255, 255, 255, 255}, color.RGBA{0, 0, 0, 180})
		}
	}

	return result
}

// parseOverlayColor converts a hex string to an opaque RGBA colour.
func parseOverlayColor(hex string) color.RGBA {
	c, err := colorful.Hex(hex)
	if err != nil {
		c, _ = colorful.Hex(DefaultOverlayColor)
	}
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// drawLine draws a thick line using Bresenham's algorithm, stamping a square
// brush of the given width at each step.
func drawLine(img *image.RGBA, a, b image.Point, width int, c color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	half := width / 2
	errAcc := dx + dy
	x, y := a.X, a.Y
	for {
		for oy := -half; oy <= half; oy++ {
			for ox := -half; ox <= half; ox++ {
				setPixel(img, x+ox, y+oy, c)
			}
		}
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * errAcc
		if e2 >= dy {
			errAcc += dy
			x += sx
		}
		if e2 <= dx {
			errAcc += dx
			y += sy
		}
	}
}

func fillCircle(img *image.RGBA, center image.Point, r int, c color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				setPixel(img, center.X+dx, center.Y+dy, c)
			}
		}
	}
}

// drawLabel draws text with basicfont on a filled background box whose
// top-left corner is (x, y).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	labelWidth := font.MeasureString(face, text).Ceil()
	labelHeight := face.Metrics().Height.Ceil()

	for dy := -1; dy <= labelHeight; dy++ {
		for dx := -1; dx <= labelWidth; dx++ {
			setPixel(img, x+dx, y+dy, bg)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Rect) {
		img.SetRGBA(x, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
