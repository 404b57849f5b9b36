package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// Format is an output encoding for rectified pages and previews.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// DefaultJPEGQuality is used when a caller passes a quality outside 1..100.
const DefaultJPEGQuality = 90

// ParseFormat maps user input ("jpg", "JPEG", "png", "") to a Format.
// The empty string selects JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Encode serializes img in the given format. quality applies to JPEG only.
// It returns the encoded bytes and their content type.
func Encode(img image.Image, format Format, quality int) ([]byte, string, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case FormatJPEG, "":
		format = FormatJPEG
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return nil, "", fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), format.ContentType(), nil
}

// EncodeBase64 encodes img and returns the base64 payload with its content type.
func EncodeBase64(img image.Image, format Format, quality int) (string, string, error) {
	data, contentType, err := Encode(img, format, quality)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(data), contentType, nil
}
