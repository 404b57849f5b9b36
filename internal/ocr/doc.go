// Package ocr extracts plain text from a rectified page using Tesseract.
//
// The text is treated as an opaque string: it is stored next to the document
// and never interpreted. Recognition uses gosseract/v2 and is only compiled
// when cgo is enabled. Without cgo every call returns ErrUnavailable, so the
// rest of the module builds and runs on pure Go toolchains.
//
// Tesseract and the language data must be installed on the host:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Language codes follow Tesseract ("eng", "deu", "chi_sim"); several can be
// joined with "+", as in "eng+deu".
package ocr
