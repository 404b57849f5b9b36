package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore keeps document bytes on disk below a root directory, laid out as
// <owner>/<document id><ext>.
type BlobStore struct {
	root string
}

// NewBlobStore creates root if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &BlobStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (b *BlobStore) Root() string {
	return b.root
}

// Put writes data and returns its path relative to the root.
func (b *BlobStore) Put(owner, id, ext string, data []byte) (string, error) {
	if err := checkSegment("owner", owner); err != nil {
		return "", err
	}
	if err := checkSegment("id", id); err != nil {
		return "", err
	}
	if ext != "" && (!strings.HasPrefix(ext, ".") || strings.ContainsAny(ext, `/\`)) {
		return "", fmt.Errorf("%w: extension %q", ErrInvalidPath, ext)
	}

	rel := filepath.ToSlash(filepath.Join(owner, id+ext))
	full, err := b.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create owner directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return rel, nil
}

// Get reads the blob at rel.
func (b *BlobStore) Get(rel string) ([]byte, error) {
	full, err := b.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: blob %s", ErrNotFound, rel)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob at rel. Missing blobs are not an error.
func (b *BlobStore) Delete(rel string) error {
	full, err := b.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// resolve maps a relative blob path to an absolute path inside the root.
func (b *BlobStore) resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	full := filepath.Join(b.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, b.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the blob root", ErrInvalidPath, rel)
	}
	return full, nil
}

// checkSegment rejects values that are not a single path element.
func checkSegment(kind, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("%w: %s %q", ErrInvalidPath, kind, s)
	}
	return nil
}
