package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// createTestImage creates a solid color test image
func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createDocumentImage draws a white axis-aligned document covering the given
// fraction of a dark frame.
func createDocumentImage(width, height int, fraction float64) *image.RGBA {
	img := createTestImage(width, height, color.RGBA{25, 25, 30, 255})
	m := (1 - fraction) / 2
	x0, x1 := int(m*float64(width)), int((1-m)*float64(width))
	y0, y1 := int(m*float64(height)), int((1-m)*float64(height))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

// blockingDetector holds Detect until released or cancelled.
type blockingDetector struct {
	started chan struct{}
	release chan struct{}
	result  detection.Result
}

func newBlockingDetector() *blockingDetector {
	return &blockingDetector{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		result:  detection.Result{Quad: geometry.Inset(0.5)},
	}
}

func (d *blockingDetector) Detect(ctx context.Context, _ image.Image) (detection.Result, error) {
	d.started <- struct{}{}
	select {
	case <-ctx.Done():
		return detection.Result{}, ctx.Err()
	case <-d.release:
		return d.result, nil
	}
}

func newTestEngine(t *testing.T, img image.Image, opts Options) (*Engine, *StaticSource) {
	t.Helper()
	src := NewStaticSource()
	if img != nil {
		src.Push(img)
	}
	e, err := NewEngine(src, opts)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e, src
}

// reviewing returns an engine in Reviewing with quad set.
func reviewing(t *testing.T, img image.Image, quad geometry.Quadrilateral) *Engine {
	t.Helper()
	e, _ := newTestEngine(t, img, Options{})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if _, err := e.DetectBorders(ctx, false); err != nil {
		t.Fatalf("DetectBorders failed: %v", err)
	}
	if _, err := e.SetQuadrilateral(quad); err != nil {
		t.Fatalf("SetQuadrilateral failed: %v", err)
	}
	return e
}

func currentQuad(t *testing.T, e *Engine) geometry.Quadrilateral {
	t.Helper()
	s, ok := e.Session()
	if !ok || s.Quad == nil {
		t.Fatalf("session has no quadrilateral: %+v", s)
	}
	return *s.Quad
}

func TestNewEngine_RequiresSource(t *testing.T) {
	if _, err := NewEngine(nil, Options{}); err == nil {
		t.Error("NewEngine(nil) should fail")
	}
}

func TestCapture_NoFrameAvailable(t *testing.T) {
	e, _ := newTestEngine(t, nil, Options{})

	_, err := e.Capture(context.Background())
	if !errors.Is(err, ErrNoFrameAvailable) {
		t.Fatalf("Capture error = %v, want ErrNoFrameAvailable", err)
	}
	if e.State() != Live {
		t.Errorf("State = %s, want live", e.State())
	}
	if _, ok := e.Session(); ok {
		t.Error("failed capture created a session")
	}
}

func TestCapture_StartsFreshSession(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(320, 240, 0.8), Options{})

	s, err := e.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if s.State != Captured {
		t.Errorf("State = %s, want captured", s.State)
	}
	if s.ID == "" || s.Quad != nil {
		t.Errorf("unexpected session: %+v", s)
	}
	if s.Width != 320 || s.Height != 240 {
		t.Errorf("dimensions = %dx%d, want 320x240", s.Width, s.Height)
	}
}

func TestDetectBorders_CentralDocument(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(640, 480, 0.8), Options{})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	quad, err := e.DetectBorders(ctx, true)
	if err != nil {
		t.Fatalf("DetectBorders failed: %v", err)
	}
	if quad == nil {
		t.Fatal("DetectBorders returned nil quadrilateral")
	}

	want := geometry.Inset(0.8)
	for i := range want {
		if math.Abs(quad[i].X-want[i].X) > 0.05 || math.Abs(quad[i].Y-want[i].Y) > 0.05 {
			t.Errorf("corner %d = %v, want within 0.05 of %v", i, quad[i], want[i])
		}
	}
	if e.State() != Reviewing {
		t.Errorf("State = %s, want reviewing", e.State())
	}
	if s, _ := e.Session(); s.Fallback {
		t.Error("session marked as fallback")
	}
}

func TestDetectBorders_Deterministic(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(640, 480, 0.7), Options{})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	first, err := e.DetectBorders(ctx, true)
	if err != nil {
		t.Fatalf("DetectBorders failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		next, err := e.DetectBorders(ctx, true)
		if err != nil {
			t.Fatalf("DetectBorders failed: %v", err)
		}
		if *next != *first {
			t.Fatalf("run %d: got %s, want %s", i, next, first)
		}
	}
}

func TestDetectBorders_Fallback(t *testing.T) {
	e, _ := newTestEngine(t, createTestImage(640, 480, color.RGBA{90, 90, 90, 255}), Options{})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	quad, err := e.DetectBorders(ctx, true)
	if err != nil {
		t.Fatalf("DetectBorders failed: %v", err)
	}
	if *quad != geometry.Inset(0.9) {
		t.Errorf("quad = %s, want %s", quad, geometry.Inset(0.9))
	}
	if s, _ := e.Session(); !s.Fallback {
		t.Error("session not marked as fallback")
	}
}

func TestDetectBorders_Disabled(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(320, 240, 0.8), Options{})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	quad, err := e.DetectBorders(ctx, false)
	if err != nil || quad != nil {
		t.Fatalf("DetectBorders(false) = %v, %v; want nil, nil", quad, err)
	}
	if e.State() != Reviewing {
		t.Errorf("State = %s, want reviewing", e.State())
	}

	// Manual flow starts from the full frame.
	got, err := e.AdjustCorner(geometry.BottomRight, geometry.Point{X: 0.9, Y: 0.95})
	if err != nil {
		t.Fatalf("AdjustCorner failed: %v", err)
	}
	want := geometry.Quadrilateral{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0.9, Y: 0.95}, {X: 0, Y: 1}}
	if got != want {
		t.Errorf("quad = %s, want %s", got, want)
	}
}

func TestDetectBorders_InvalidState(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(320, 240, 0.8), Options{})

	if _, err := e.DetectBorders(context.Background(), true); !errors.Is(err, ErrInvalidState) {
		t.Errorf("DetectBorders in live error = %v, want ErrInvalidState", err)
	}
}

func TestAdjustCorner(t *testing.T) {
	base := geometry.Inset(0.8)

	tests := []struct {
		name  string
		index int
		point geometry.Point
		want  geometry.Point
	}{
		{"move top left", geometry.TopLeft, geometry.Point{X: 0.05, Y: 0.12}, geometry.Point{X: 0.05, Y: 0.12}},
		{"move bottom right", geometry.BottomRight, geometry.Point{X: 0.97, Y: 0.8}, geometry.Point{X: 0.97, Y: 0.8}},
		{"clamped", geometry.TopRight, geometry.Point{X: 1.4, Y: -0.2}, geometry.Point{X: 1, Y: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := reviewing(t, createDocumentImage(200, 200, 0.8), base)

			got, err := e.AdjustCorner(tt.index, tt.point)
			if err != nil {
				t.Fatalf("AdjustCorner failed: %v", err)
			}
			if got[tt.index] != tt.want {
				t.Errorf("corner = %v, want %v", got[tt.index], tt.want)
			}
			if diff := cmp.Diff(got, currentQuad(t, e), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("session quad differs from returned quad (-returned +session):\n%s", diff)
			}
		})
	}
}

func TestAdjustCorner_RejectsSelfIntersection(t *testing.T) {
	base := geometry.Inset(0.8)
	e := reviewing(t, createDocumentImage(200, 200, 0.8), base)
	before, _ := e.Session()

	_, err := e.AdjustCorner(geometry.TopLeft, geometry.Point{X: 1, Y: 0.5})
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("AdjustCorner error = %v, want ErrInvalidGeometry", err)
	}
	if got := currentQuad(t, e); got != base {
		t.Errorf("quad changed to %s after rejected edit", got)
	}
	after, _ := e.Session()
	if after.Version != before.Version || after.State != Reviewing {
		t.Errorf("rejected edit changed session: before %+v after %+v", before, after)
	}
}

func TestAdjustCorner_IndexOutOfRange(t *testing.T) {
	e := reviewing(t, createDocumentImage(200, 200, 0.8), geometry.Inset(0.8))

	for _, i := range []int{-1, 4, 10} {
		if _, err := e.AdjustCorner(i, geometry.Point{X: 0.5, Y: 0.5}); !errors.Is(err, ErrCornerIndex) {
			t.Errorf("AdjustCorner(%d) error = %v, want ErrCornerIndex", i, err)
		}
	}
}

func TestAdjustCorner_InvalidState(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(200, 200, 0.8), Options{})
	p := geometry.Point{X: 0.2, Y: 0.2}

	if _, err := e.AdjustCorner(0, p); !errors.Is(err, ErrInvalidState) {
		t.Errorf("AdjustCorner in live error = %v, want ErrInvalidState", err)
	}
	if _, err := e.Capture(context.Background()); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if _, err := e.AdjustCorner(0, p); !errors.Is(err, ErrInvalidState) {
		t.Errorf("AdjustCorner in captured error = %v, want ErrInvalidState", err)
	}
}

func TestAdjustCorner_RejectedWhileDetecting(t *testing.T) {
	det := newBlockingDetector()
	e, _ := newTestEngine(t, createDocumentImage(200, 200, 0.8), Options{Detector: det})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	results := e.DetectBordersAsync(ctx, true)
	<-det.started

	if e.State() != Detecting {
		t.Fatalf("State = %s, want detecting", e.State())
	}
	if _, err := e.AdjustCorner(0, geometry.Point{X: 0.1, Y: 0.1}); !errors.Is(err, ErrDetectionInProgress) {
		t.Errorf("AdjustCorner error = %v, want ErrDetectionInProgress", err)
	}
	if _, err := e.Commit(ctx); !errors.Is(err, ErrDetectionInProgress) {
		t.Errorf("Commit error = %v, want ErrDetectionInProgress", err)
	}
	if _, err := e.DetectBorders(ctx, true); !errors.Is(err, ErrDetectionInProgress) {
		t.Errorf("second DetectBorders error = %v, want ErrDetectionInProgress", err)
	}

	close(det.release)
	res := <-results
	if res.Err != nil {
		t.Fatalf("detection failed: %v", res.Err)
	}
	if *res.Quad != geometry.Inset(0.5) {
		t.Errorf("quad = %s, want %s", res.Quad, geometry.Inset(0.5))
	}

	if _, err := e.AdjustCorner(0, geometry.Point{X: 0.2, Y: 0.2}); err != nil {
		t.Errorf("AdjustCorner after detection failed: %v", err)
	}
}

func TestRetake_CancelsDetection(t *testing.T) {
	det := newBlockingDetector()
	e, _ := newTestEngine(t, createDocumentImage(200, 200, 0.8), Options{Detector: det})
	ctx := context.Background()
	first, err := e.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	results := e.DetectBordersAsync(ctx, true)
	<-det.started
	e.Retake()

	select {
	case res := <-results:
		if !errors.Is(res.Err, ErrDetectionCancelled) {
			t.Errorf("detection error = %v, want ErrDetectionCancelled", res.Err)
		}
		if res.Quad != nil {
			t.Errorf("cancelled detection returned %s", res.Quad)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("detection was not cancelled")
	}

	if e.State() != Live {
		t.Errorf("State = %s, want live", e.State())
	}

	next, err := e.Capture(ctx)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if next.ID == first.ID {
		t.Error("new capture reused the session ID")
	}
	if next.Quad != nil {
		t.Errorf("new session has quad %s", next.Quad)
	}
}

func TestCapture_SupersedesDetection(t *testing.T) {
	det := newBlockingDetector()
	e, _ := newTestEngine(t, createDocumentImage(200, 200, 0.8), Options{Detector: det})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	results := e.DetectBordersAsync(ctx, true)
	<-det.started

	s, err := e.Capture(ctx)
	if err != nil {
		t.Fatalf("second Capture failed: %v", err)
	}

	res := <-results
	if !errors.Is(res.Err, ErrDetectionCancelled) {
		t.Errorf("detection error = %v, want ErrDetectionCancelled", res.Err)
	}
	after, _ := e.Session()
	if after.ID != s.ID || after.State != Captured || after.Quad != nil {
		t.Errorf("stale detection touched the new session: %+v", after)
	}
}

func TestDetectBorders_CallerCancelled(t *testing.T) {
	det := newBlockingDetector()
	e, _ := newTestEngine(t, createDocumentImage(200, 200, 0.8), Options{Detector: det})
	if _, err := e.Capture(context.Background()); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	results := e.DetectBordersAsync(ctx, true)
	<-det.started
	cancel()

	res := <-results
	if !errors.Is(res.Err, ErrDetectionCancelled) {
		t.Errorf("detection error = %v, want ErrDetectionCancelled", res.Err)
	}
	if e.State() != Captured {
		t.Errorf("State = %s, want captured", e.State())
	}
}

func TestCommit_IdentityQuad(t *testing.T) {
	src := createDocumentImage(320, 240, 0.6)
	e := reviewing(t, src, geometry.FullFrame())

	out, err := e.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if out.Width != 320 || out.Height != 240 {
		t.Fatalf("dimensions = %dx%d, want 320x240", out.Width, out.Height)
	}
	for _, p := range []image.Point{{0, 0}, {160, 120}, {96, 72}, {319, 239}} {
		r1, g1, b1, _ := src.At(p.X, p.Y).RGBA()
		r2, g2, b2, _ := out.Image.At(p.X, p.Y).RGBA()
		if r1>>8 != r2>>8 || g1>>8 != g2>>8 || b1>>8 != b2>>8 {
			t.Errorf("pixel %v differs after identity rectification", p)
		}
	}
	if e.State() != Rectified {
		t.Errorf("State = %s, want rectified", e.State())
	}
	s, _ := e.Session()
	if out.SessionID != s.ID {
		t.Errorf("SessionID = %s, want %s", out.SessionID, s.ID)
	}
	if _, err := e.Overlay(imaging.OverlayOptions{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("still not released after commit: %v", err)
	}
}

func TestCommit_CoincidentCorners(t *testing.T) {
	e := reviewing(t, createDocumentImage(320, 240, 0.8), geometry.Inset(0.8))

	// Corner edits cannot produce this shape, so plant it directly.
	bad := geometry.Quadrilateral{{X: 0.1, Y: 0.1}, {X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.9}, {X: 0.1, Y: 0.9}}
	e.mu.Lock()
	e.current.quad = &bad
	e.mu.Unlock()

	_, err := e.Commit(context.Background())
	if !errors.Is(err, ErrDegenerateQuadrilateral) {
		t.Fatalf("Commit error = %v, want ErrDegenerateQuadrilateral", err)
	}
	if e.State() != Reviewing {
		t.Errorf("State = %s, want reviewing", e.State())
	}
	if got := currentQuad(t, e); got != bad {
		t.Errorf("quad changed to %s", got)
	}
}

func TestCommit_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		quad geometry.Quadrilateral
	}{
		{"too small", geometry.Inset(0.04)},
		{"concave", geometry.Quadrilateral{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.1}, {X: 0.5, Y: 0.4}, {X: 0.1, Y: 0.9}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := reviewing(t, createDocumentImage(640, 480, 0.8), tt.quad)

			if _, err := e.Commit(context.Background()); !errors.Is(err, ErrDegenerateQuadrilateral) {
				t.Fatalf("Commit error = %v, want ErrDegenerateQuadrilateral", err)
			}
			if e.State() != Reviewing {
				t.Errorf("State = %s, want reviewing", e.State())
			}
		})
	}
}

func TestCommit_NoQuadrilateral(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(200, 200, 0.8), Options{})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if _, err := e.DetectBorders(ctx, false); err != nil {
		t.Fatalf("DetectBorders failed: %v", err)
	}

	if _, err := e.Commit(ctx); !errors.Is(err, ErrNoQuadrilateral) {
		t.Errorf("Commit error = %v, want ErrNoQuadrilateral", err)
	}
}

func TestCommit_AfterDetection(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(640, 480, 0.8), Options{})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if _, err := e.DetectBorders(ctx, true); err != nil {
		t.Fatalf("DetectBorders failed: %v", err)
	}

	out, err := e.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	// The document is 512x384 in the source; detection lands within a few
	// pixels of its outline.
	if math.Abs(float64(out.Width-512)) > 20 || math.Abs(float64(out.Height-384)) > 20 {
		t.Errorf("dimensions = %dx%d, want about 512x384", out.Width, out.Height)
	}
	if c := out.Image.NRGBAAt(out.Width/2, out.Height/2); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Errorf("centre pixel = %v, want white", c)
	}
}

func TestRetake_FromEveryState(t *testing.T) {
	ctx := context.Background()
	steps := map[State]func(*Engine) error{
		Live:     func(*Engine) error { return nil },
		Captured: func(e *Engine) error { _, err := e.Capture(ctx); return err },
		Reviewing: func(e *Engine) error {
			if _, err := e.Capture(ctx); err != nil {
				return err
			}
			_, err := e.DetectBorders(ctx, false)
			return err
		},
		Rectified: func(e *Engine) error {
			if _, err := e.Capture(ctx); err != nil {
				return err
			}
			if _, err := e.DetectBorders(ctx, false); err != nil {
				return err
			}
			if _, err := e.SetQuadrilateral(geometry.FullFrame()); err != nil {
				return err
			}
			_, err := e.Commit(ctx)
			return err
		},
	}

	for state, setup := range steps {
		t.Run(state.String(), func(t *testing.T) {
			e, _ := newTestEngine(t, createDocumentImage(100, 100, 0.8), Options{})
			if err := setup(e); err != nil {
				t.Fatalf("setup failed: %v", err)
			}
			if e.State() != state {
				t.Fatalf("setup reached %s, want %s", e.State(), state)
			}
			e.Retake()
			if e.State() != Live {
				t.Errorf("State after Retake = %s, want live", e.State())
			}
			if _, ok := e.Session(); ok {
				t.Error("session survived Retake")
			}
		})
	}
}

func TestSetQuadrilateral(t *testing.T) {
	e := reviewing(t, createDocumentImage(200, 200, 0.8), geometry.Inset(0.8))

	bowtie := geometry.Quadrilateral{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	if _, err := e.SetQuadrilateral(bowtie); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("SetQuadrilateral error = %v, want ErrInvalidGeometry", err)
	}
	if got := currentQuad(t, e); got != geometry.Inset(0.8) {
		t.Errorf("quad changed to %s", got)
	}

	got, err := e.SetQuadrilateral(geometry.Quadrilateral{{X: -0.1, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1.2}, {X: 0, Y: 1}})
	if err != nil {
		t.Fatalf("SetQuadrilateral failed: %v", err)
	}
	if got != geometry.FullFrame() {
		t.Errorf("quad = %s, want clamped full frame", got)
	}
}

func TestOverlay(t *testing.T) {
	e := reviewing(t, createDocumentImage(120, 90, 0.8), geometry.Inset(0.8))

	res, err := e.Overlay(imaging.OverlayOptions{ShowLabels: true})
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	if res.Width != 120 || res.Height != 90 || res.ImageBase64 == "" {
		t.Errorf("unexpected overlay: %dx%d, %d bytes", res.Width, res.Height, len(res.ImageBase64))
	}
}

func TestRectifiedImage_Encode(t *testing.T) {
	e := reviewing(t, createDocumentImage(100, 80, 0.8), geometry.FullFrame())
	out, err := e.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	data, contentType, err := out.Encode("png", 0)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if contentType != "image/png" || len(data) == 0 {
		t.Errorf("Encode = %d bytes of %s", len(data), contentType)
	}
	if _, _, err := out.Encode("tiff", 0); err == nil {
		t.Error("Encode should reject unsupported formats")
	}
}

func TestOutputSize(t *testing.T) {
	w, h := OutputSize(geometry.FullFrame(), 640, 480)
	if w != 640 || h != 480 {
		t.Errorf("OutputSize = %dx%d, want 640x480", w, h)
	}
}

func TestEdges(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(320, 240, 0.8), Options{})
	ctx := context.Background()

	if _, err := e.Edges(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Edges in Live error = %v, want ErrInvalidState", err)
	}

	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	edges, err := e.Edges(ctx)
	if err != nil {
		t.Fatalf("Edges failed: %v", err)
	}
	if edges.Width != 320 || edges.Height != 240 || edges.Count() == 0 {
		t.Errorf("unexpected edge map %dx%d with %d edges", edges.Width, edges.Height, edges.Count())
	}
	if e.State() != Captured {
		t.Errorf("Edges changed state to %s", e.State())
	}

	// Detectors without an edge map are reported, not assumed.
	blocking, _ := newTestEngine(t, createTestImage(64, 64, color.White), Options{Detector: newBlockingDetector()})
	if _, err := blocking.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if _, err := blocking.Edges(ctx); !errors.Is(err, ErrNoEdgeMap) {
		t.Errorf("Edges error = %v, want ErrNoEdgeMap", err)
	}
}

// gatedRectify replaces the engine's resampler with one that waits for
// release, so tests can act while Commit is running.
func gatedRectify(e *Engine) (started <-chan struct{}, release chan<- struct{}) {
	startedCh := make(chan struct{})
	releaseCh := make(chan struct{})
	e.rectify = func(ctx context.Context, img image.Image, quad geometry.Quadrilateral, minSize int) (*image.NRGBA, error) {
		close(startedCh)
		<-releaseCh
		return Rectify(ctx, img, quad, minSize)
	}
	return startedCh, releaseCh
}

func TestCommit_DoesNotHoldLock(t *testing.T) {
	e, _ := newTestEngine(t, createDocumentImage(320, 240, 0.8), Options{})
	ctx := context.Background()
	if _, err := e.Capture(ctx); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if _, err := e.DetectBorders(ctx, true); err != nil {
		t.Fatalf("DetectBorders failed: %v", err)
	}

	started, release := gatedRectify(e)
	done := make(chan error, 1)
	go func() {
		_, err := e.Commit(ctx)
		done <- err
	}()
	<-started

	stateCh := make(chan State, 1)
	go func() { stateCh <- e.State() }()
	select {
	case st := <-stateCh:
		if st != Reviewing {
			t.Errorf("state during commit = %s, want reviewing", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("State blocked while Commit was resampling")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if e.State() != Rectified {
		t.Errorf("state = %s, want rectified", e.State())
	}
}

func TestCommit_SessionChanged(t *testing.T) {
	tests := []struct {
		name      string
		change    func(t *testing.T, e *Engine)
		wantState State
	}{
		{
			name:      "retake",
			change:    func(t *testing.T, e *Engine) { e.Retake() },
			wantState: Live,
		},
		{
			name: "corner edit",
			change: func(t *testing.T, e *Engine) {
				if _, err := e.AdjustCorner(0, geometry.Point{X: 0.05, Y: 0.05}); err != nil {
					t.Errorf("AdjustCorner during commit failed: %v", err)
				}
			},
			wantState: Reviewing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, createDocumentImage(320, 240, 0.8), Options{})
			ctx := context.Background()
			if _, err := e.Capture(ctx); err != nil {
				t.Fatalf("Capture failed: %v", err)
			}
			if _, err := e.DetectBorders(ctx, true); err != nil {
				t.Fatalf("DetectBorders failed: %v", err)
			}

			started, release := gatedRectify(e)
			done := make(chan error, 1)
			go func() {
				_, err := e.Commit(ctx)
				done <- err
			}()
			<-started
			tt.change(t, e)
			close(release)

			if err := <-done; !errors.Is(err, ErrSessionChanged) {
				t.Errorf("Commit error = %v, want ErrSessionChanged", err)
			}
			if e.State() != tt.wantState {
				t.Errorf("state = %s, want %s", e.State(), tt.wantState)
			}
		})
	}
}
