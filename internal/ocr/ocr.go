package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	imgproc "github.com/ironsheep/docscan-mcp/internal/imaging"
)

// DefaultLanguage is used when no language is given.
const DefaultLanguage = "eng"

var (
	// ErrUnavailable is returned when the binary was built without Tesseract.
	ErrUnavailable = errors.New("ocr unavailable: built without cgo")

	// ErrInvalidLanguage is returned for malformed language codes.
	ErrInvalidLanguage = errors.New("invalid ocr language")

	// ErrEmptyImage is returned for images with no pixels.
	ErrEmptyImage = errors.New("empty image")
)

// Options tunes a recognition run.
type Options struct {
	// Language is a Tesseract language code or a "+" joined list.
	Language string

	// TessdataPrefix overrides the directory holding *.traineddata files.
	TessdataPrefix string
}

// Info describes the OCR backend.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend"`
	Error     string `json:"error,omitempty"`
}

// Extract recognizes the text of img in the given language.
func Extract(img image.Image, language string) (string, error) {
	return ExtractWith(img, Options{Language: language})
}

// ExtractWith recognizes the text of img with explicit options. The image is
// converted to grayscale and handed to Tesseract as PNG.
func ExtractWith(img image.Image, opts Options) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", ErrEmptyImage
	}
	langs, err := parseLanguages(opts.Language)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, imgproc.Grayscale(img)); err != nil {
		return "", fmt.Errorf("failed to encode page for ocr: %w", err)
	}

	text, err := recognize(buf.Bytes(), langs, opts.TessdataPrefix)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// parseLanguages splits a "+" joined language list and checks each code.
func parseLanguages(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{DefaultLanguage}, nil
	}

	parts := strings.Split(s, "+")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
		}
		for _, r := range p {
			if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') && r != '_' {
				return nil, fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
			}
		}
	}
	return parts, nil
}
