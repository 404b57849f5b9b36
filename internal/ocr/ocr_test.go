package ocr

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawText draws text on an image using basicfont
func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// createImageWithText renders text and scales it up so Tesseract can read the
// 7x13 glyphs.
func createImageWithText(text string, scale int) *image.RGBA {
	w := len(text)*7 + 40
	h := 40
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	drawText(small, 20, 25, text, color.Black)

	img := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
	for y := 0; y < h*scale; y++ {
		for x := 0; x < w*scale; x++ {
			img.Set(x, y, small.At(x/scale, y/scale))
		}
	}
	return img
}

func TestParseLanguages(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", []string{"eng"}, false},
		{"  ", []string{"eng"}, false},
		{"deu", []string{"deu"}, false},
		{"eng+chi_sim", []string{"eng", "chi_sim"}, false},
		{"eng+", nil, true},
		{"../eng", nil, true},
		{"eng deu", nil, true},
	}

	for _, tt := range tests {
		got, err := parseLanguages(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidLanguage) {
				t.Errorf("parseLanguages(%q) error = %v, want ErrInvalidLanguage", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLanguages(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("parseLanguages(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestExtract_EmptyImage(t *testing.T) {
	if _, err := Extract(image.NewRGBA(image.Rect(0, 0, 0, 0)), "eng"); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Extract error = %v, want ErrEmptyImage", err)
	}
	if _, err := Extract(nil, "eng"); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Extract(nil) error = %v, want ErrEmptyImage", err)
	}
}

func TestExtract_InvalidLanguage(t *testing.T) {
	img := createImageWithText("HELLO", 1)
	if _, err := Extract(img, "eng;rm"); !errors.Is(err, ErrInvalidLanguage) {
		t.Errorf("Extract error = %v, want ErrInvalidLanguage", err)
	}
}

func TestExtract(t *testing.T) {
	img := createImageWithText("HELLO WORLD", 4)

	text, err := Extract(img, "eng")
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			t.Skip("built without cgo")
		}
		t.Skipf("Tesseract not available: %v", err)
	}

	if !strings.Contains(strings.ToUpper(text), "HELLO") {
		t.Errorf("Extract = %q, want it to contain HELLO", text)
	}
	if text != strings.TrimSpace(text) {
		t.Errorf("Extract result not trimmed: %q", text)
	}
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Backend == "" {
		t.Error("Backend should always be set")
	}
	if !info.Available && info.Error == "" {
		t.Error("unavailable backend should report an error")
	}
}
