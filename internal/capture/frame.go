package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

// PixelFormat names the in-memory layout of a frame.
type PixelFormat string

const (
	PixelFormatRGBA  PixelFormat = "rgba"
	PixelFormatNRGBA PixelFormat = "nrgba"
	PixelFormatGray  PixelFormat = "gray"
	PixelFormatYCbCr PixelFormat = "ycbcr"
	PixelFormatOther PixelFormat = "other"
)

// PixelFormatOf reports the pixel format of img.
func PixelFormatOf(img image.Image) PixelFormat {
	switch img.(type) {
	case *image.RGBA:
		return PixelFormatRGBA
	case *image.NRGBA:
		return PixelFormatNRGBA
	case *image.Gray:
		return PixelFormatGray
	case *image.YCbCr:
		return PixelFormatYCbCr
	default:
		return PixelFormatOther
	}
}

// Frame is a raster produced by a FrameSource.
type Frame struct {
	Image     image.Image
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp time.Time

	// Seq increases each time the source produces a new frame.
	Seq uint64
}

// NewFrame wraps img with its dimensions and format.
func NewFrame(img image.Image, seq uint64) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:     img,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    PixelFormatOf(img),
		Timestamp: time.Now(),
		Seq:       seq,
	}
}

// FrameSource produces frames on demand.
//
// GetFrame returns ErrNoFrameAvailable when the source has not produced a
// frame yet. Implementations must be safe for concurrent use.
type FrameSource interface {
	GetFrame(ctx context.Context) (*Frame, error)
}

// StaticSource holds the most recently pushed image. It stands in for a camera
// whose frames are delivered by another component.
type StaticSource struct {
	mu    sync.RWMutex
	frame *Frame
	seq   uint64
}

// NewStaticSource returns an empty source.
func NewStaticSource() *StaticSource {
	return &StaticSource{}
}

// Push replaces the current frame.
func (s *StaticSource) Push(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.frame = NewFrame(img, s.seq)
}

// Reset drops the current frame.
func (s *StaticSource) Reset() {
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
}

// GetFrame implements FrameSource.
func (s *StaticSource) GetFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, ErrNoFrameAvailable
	}
	f := *s.frame
	return &f, nil
}

// FileSource reads a single image file on every call.
type FileSource struct {
	path  string
	cache *imaging.ImageCache
}

// NewFileSource returns a source for path. A nil cache allocates a private one.
func NewFileSource(path string, cache *imaging.ImageCache) *FileSource {
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	return &FileSource{path: path, cache: cache}
}

// GetFrame implements FrameSource. A missing file is reported as
// ErrNoFrameAvailable. The file is decoded on every call.
func (s *FileSource) GetFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoFrameAvailable, s.path)
		}
		return nil, fmt.Errorf("failed to stat frame: %w", err)
	}
	img, err := decodeReleased(s.cache, s.path)
	if err != nil {
		return nil, err
	}
	return NewFrame(img, 1), nil
}

// decodeReleased decodes path through cache without leaving it cached, so the
// frame is the only reference to the pixels and Commit or Retake frees them.
func decodeReleased(cache *imaging.ImageCache, path string) (image.Image, error) {
	cache.Evict(path)
	img, err := cache.Load(path)
	cache.Evict(path)
	return img, err
}

// DirectorySource serves the newest image file in a directory, the way a
// tethered camera or phone upload folder delivers stills.
//
// The newest file is the one with the latest modification time; equal times
// prefer the lexically greater name so the choice is stable.
type DirectorySource struct {
	dir   string
	cache *imaging.ImageCache

	mu      sync.Mutex
	current string
	modTime time.Time
	seq     uint64
}

// NewDirectorySource returns a source watching dir. A nil cache allocates a
// private one.
func NewDirectorySource(dir string, cache *imaging.ImageCache) *DirectorySource {
	if cache == nil {
		cache = imaging.NewImageCache()
	}
	return &DirectorySource{dir: dir, cache: cache}
}

// GetFrame implements FrameSource.
func (s *DirectorySource) GetFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: directory %s does not exist", ErrNoFrameAvailable, s.dir)
		}
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var (
		newest  string
		newestT time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || !imaging.IsImageFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		t := info.ModTime()
		if newest == "" || t.After(newestT) || (t.Equal(newestT) && entry.Name() > newest) {
			newest = entry.Name()
			newestT = t
		}
	}
	if newest == "" {
		return nil, ErrNoFrameAvailable
	}

	path := filepath.Join(s.dir, newest)

	s.mu.Lock()
	if path != s.current || !newestT.Equal(s.modTime) {
		s.current = path
		s.modTime = newestT
		s.seq++
	}
	seq := s.seq
	s.mu.Unlock()

	img, err := decodeReleased(s.cache, path)
	if err != nil {
		return nil, err
	}
	frame := NewFrame(img, seq)
	frame.Timestamp = newestT
	return frame, nil
}
