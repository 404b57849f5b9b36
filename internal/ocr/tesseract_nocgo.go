//go:build !cgo

package ocr

func recognize([]byte, []string, string) (string, error) {
	return "", ErrUnavailable
}

// GetInfo reports that no OCR backend is linked.
func GetInfo() Info {
	return Info{Backend: "none", Error: ErrUnavailable.Error()}
}
