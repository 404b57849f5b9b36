//go:build cgo

package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

func recognize(pngData []byte, languages []string, tessdataPrefix string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(tessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(languages...); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(pngData); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return text, nil
}

// GetInfo reports the linked Tesseract version.
func GetInfo() Info {
	client := gosseract.NewClient()
	defer client.Close()

	version := client.Version()
	if version == "" {
		return Info{Backend: "gosseract", Error: "tesseract did not report a version"}
	}
	return Info{Available: true, Version: version, Backend: "gosseract"}
}
