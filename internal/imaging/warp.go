package imaging

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
)

// Warp resamples src into a width x height raster.
//
// h maps destination pixel coordinates onto source pixel coordinates (inverse
// mapping). Each destination pixel centre (x+0.5, y+0.5) is projected into the
// source and sampled bilinearly; samples that fall outside the source are
// clamped to the nearest edge pixel. An identity transform with matching size
// reproduces src exactly.
//
// Rows are processed in parallel bands. The returned error is ctx.Err() when
// the context is cancelled before all bands finish.
func Warp(ctx context.Context, src image.Image, h geometry.Homography, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", width, height)
	}
	if src.Bounds().Empty() {
		return nil, fmt.Errorf("source image is empty")
	}

	in := toNRGBA(src)
	out := image.NewNRGBA(image.Rect(0, 0, width, height))

	bands := runtime.GOMAXPROCS(0)
	if bands > height {
		bands = height
	}
	rowsPerBand := (height + bands - 1) / bands

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < height; start += rowsPerBand {
		y0 := start
		y1 := start + rowsPerBand
		if y1 > height {
			y1 = height
		}
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := out.Pix[y*out.Stride : y*out.Stride+width*4]
				for x := 0; x < width; x++ {
					sx, sy, ok := h.Apply(float64(x)+0.5, float64(y)+0.5)
					if !ok {
						continue
					}
					sampleBilinear(in, sx-0.5, sy-0.5, row[x*4:x*4+4])
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// toNRGBA returns src as an NRGBA image anchored at the origin, copying only
// when necessary.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(src)
}

// sampleBilinear writes the interpolated pixel at (fx, fy) into dst, which
// must hold four bytes.
func sampleBilinear(img *image.NRGBA, fx, fy float64, dst []uint8) {
	w := img.Rect.Dx()
	h := img.Rect.Dy()

	fx = math.Max(0, math.Min(fx, float64(w-1)))
	fy = math.Max(0, math.Min(fy, float64(h-1)))

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 >= w {
		x1 = w - 1
	}
	if y1 >= h {
		y1 = h - 1
	}
	ax := fx - float64(x0)
	ay := fy - float64(y0)

	p00 := img.Pix[y0*img.Stride+x0*4:]
	p10 := img.Pix[y0*img.Stride+x1*4:]
	p01 := img.Pix[y1*img.Stride+x0*4:]
	p11 := img.Pix[y1*img.Stride+x1*4:]

	for c := 0; c < 4; c++ {
		top := float64(p00[c])*(1-ax) + float64(p10[c])*ax
		bottom := float64(p01[c])*(1-ax) + float64(p11[c])*ax
		v := top*(1-ay) + bottom*ay
		dst[c] = uint8(math.Max(0, math.Min(255, math.Round(v))))
	}
}
