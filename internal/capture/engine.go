package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/docscan-mcp/internal/detection"
	"github.com/ironsheep/docscan-mcp/internal/geometry"
	"github.com/ironsheep/docscan-mcp/internal/imaging"
)

// BorderDetector finds the document quadrilateral in a still.
// *detection.Detector is the production implementation.
type BorderDetector interface {
	Detect(ctx context.Context, img image.Image) (detection.Result, error)
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Detector runs border detection. Defaults to a detection.Detector with
	// detection.DefaultParams.
	Detector BorderDetector

	// MinOutputSize is the smallest rectified width and height.
	MinOutputSize int

	Logger *zap.Logger
}

// Session is a snapshot of the active capture session.
type Session struct {
	ID         string                  `json:"id"`
	Version    uint64                  `json:"version"`
	State      State                   `json:"state"`
	Quad       *geometry.Quadrilateral `json:"quad,omitempty"`
	Width      int                     `json:"width"`
	Height     int                     `json:"height"`
	Fallback   bool                    `json:"fallback"`
	FrameSeq   uint64                  `json:"frame_seq"`
	CapturedAt time.Time               `json:"captured_at"`
}

// DetectionResult is delivered by DetectBordersAsync.
type DetectionResult struct {
	Quad *geometry.Quadrilateral
	Err  error
}

// session is the engine-owned state of one capture.
type session struct {
	id         string
	version    uint64
	frame      *Frame
	quad       *geometry.Quadrilateral
	fallback   bool
	width      int
	height     int
	frameSeq   uint64
	capturedAt time.Time

	// stateBeforeDetect is restored when the caller abandons detection.
	stateBeforeDetect State
}

// Engine drives the border capture and correction workflow for a single
// active session.
//
// All methods are safe for concurrent use. Border detection runs on its own
// goroutine and is cancelled when the session is retaken or replaced; a
// result that arrives for a superseded session is discarded.
type Engine struct {
	source    FrameSource
	detector  BorderDetector
	minOutput int
	logger    *zap.Logger
	rectify   func(ctx context.Context, img image.Image, quad geometry.Quadrilateral, minSize int) (*image.NRGBA, error)

	mu      sync.Mutex
	state   State
	current *session

	// detectGen identifies the in-flight detection. Any change of session
	// bumps it so late results can be recognised.
	detectGen    uint64
	cancelDetect context.CancelFunc
}

// NewEngine returns an engine in the Live state pulling frames from source.
func NewEngine(source FrameSource, opts Options) (*Engine, error) {
	if source == nil {
		return nil, errors.New("frame source is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	detector := opts.Detector
	if detector == nil {
		d, err := detection.NewDetector(detection.DefaultParams(), logger)
		if err != nil {
			return nil, err
		}
		detector = d
	}
	minOutput := opts.MinOutputSize
	if minOutput <= 0 {
		minOutput = DefaultMinOutputSize
	}
	return &Engine{
		source:    source,
		detector:  detector,
		minOutput: minOutput,
		logger:    logger,
		rectify:   Rectify,
		state:     Live,
	}, nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Session returns a snapshot of the active session. ok is false in Live.
func (e *Engine) Session() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Session{State: e.state}, false
	}
	return e.snapshotLocked(), true
}

// Capture pulls a frame from the engine's source and starts a new session.
func (e *Engine) Capture(ctx context.Context) (Session, error) {
	return e.CaptureFrom(ctx, e.source)
}

// CaptureFrom pulls a frame from src and starts a new session.
//
// Any existing session is replaced and its in-flight detection cancelled.
// When src has no frame the error wraps ErrNoFrameAvailable and the engine is
// left as it was.
func (e *Engine) CaptureFrom(ctx context.Context, src FrameSource) (Session, error) {
	frame, err := src.GetFrame(ctx)
	if err != nil {
		if errors.Is(err, ErrNoFrameAvailable) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("failed to capture frame: %w", err)
	}
	if frame == nil || frame.Image == nil || frame.Width == 0 || frame.Height == 0 {
		return Session{}, ErrNoFrameAvailable
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.abortDetectionLocked()
	e.current = &session{
		id:         uuid.NewString(),
		version:    1,
		frame:      frame,
		width:      frame.Width,
		height:     frame.Height,
		frameSeq:   frame.Seq,
		capturedAt: time.Now(),
	}
	e.state = Captured

	e.logger.Info("frame captured",
		zap.String("session", e.current.id),
		zap.Int("width", frame.Width),
		zap.Int("height", frame.Height),
		zap.String("format", string(frame.Format)),
		zap.Uint64("seq", frame.Seq))

	return e.snapshotLocked(), nil
}

// DetectBorders runs border detection on the captured still.
//
// With enabled false no detection happens: the session moves to Reviewing
// without a quadrilateral and nil is returned. Otherwise the session moves to
// Detecting while the detector runs on its own goroutine, then to Reviewing
// with the detected (or fallback) quadrilateral.
//
// ErrDetectionCancelled is returned when the session was retaken or replaced
// while detection ran, or when ctx was cancelled; in the latter case the
// session returns to its previous state.
func (e *Engine) DetectBorders(ctx context.Context, enabled bool) (*geometry.Quadrilateral, error) {
	e.mu.Lock()
	if err := e.checkDetectableLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	s := e.current
	if !enabled {
		s.quad = nil
		s.fallback = false
		s.version++
		e.state = Reviewing
		e.logger.Info("detection skipped", zap.String("session", s.id))
		e.mu.Unlock()
		return nil, nil
	}

	dctx, cancel := context.WithCancel(ctx)
	e.detectGen++
	gen := e.detectGen
	e.cancelDetect = cancel
	s.stateBeforeDetect = e.state
	s.version++
	e.state = Detecting
	img := s.frame.Image
	id := s.id
	e.mu.Unlock()

	done := make(chan struct{})
	var (
		result detection.Result
		err    error
	)
	go func() {
		defer close(done)
		result, err = e.detector.Detect(dctx, img)
	}()
	<-done
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.id != id || e.detectGen != gen || e.state != Detecting {
		e.logger.Debug("discarding stale detection result", zap.String("session", id))
		return nil, ErrDetectionCancelled
	}
	e.cancelDetect = nil

	if err != nil {
		e.state = s.stateBeforeDetect
		s.version++
		return nil, fmt.Errorf("%w: %v", ErrDetectionCancelled, err)
	}

	quad := result.Quad
	s.quad = &quad
	s.fallback = result.Fallback
	s.version++
	e.state = Reviewing

	e.logger.Info("borders detected",
		zap.String("session", id),
		zap.Bool("fallback", result.Fallback),
		zap.Int("candidates", result.Candidates),
		zap.Float64("score", result.Score),
		zap.Stringer("quad", quad))

	out := quad
	return &out, nil
}

// DetectBordersAsync runs DetectBorders on a new goroutine. The channel
// receives exactly one result and is then closed.
func (e *Engine) DetectBordersAsync(ctx context.Context, enabled bool) <-chan DetectionResult {
	ch := make(chan DetectionResult, 1)
	go func() {
		defer close(ch)
		quad, err := e.DetectBorders(ctx, enabled)
		ch <- DetectionResult{Quad: quad, Err: err}
	}()
	return ch
}

// AdjustCorner moves one corner of the session's quadrilateral.
//
// The point is clamped to [0,1] before validation. An edit that breaks the
// simple polygon invariant is rejected with an error wrapping
// ErrInvalidGeometry and the previous quadrilateral is kept. When detection
// was skipped the edit starts from the full frame.
func (e *Engine) AdjustCorner(index int, p geometry.Point) (geometry.Quadrilateral, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkEditableLocked(); err != nil {
		return geometry.Quadrilateral{}, err
	}

	base := geometry.FullFrame()
	if e.current.quad != nil {
		base = *e.current.quad
	}
	next, err := base.WithCorner(index, p)
	if err != nil {
		e.logger.Debug("corner edit rejected",
			zap.String("session", e.current.id),
			zap.Int("index", index),
			zap.Error(err))
		return geometry.Quadrilateral{}, err
	}

	e.current.quad = &next
	e.current.version++
	return next, nil
}

// SetQuadrilateral replaces all four corners at once, with the same rules as
// AdjustCorner.
func (e *Engine) SetQuadrilateral(q geometry.Quadrilateral) (geometry.Quadrilateral, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkEditableLocked(); err != nil {
		return geometry.Quadrilateral{}, err
	}

	next := q.Clamped()
	if err := next.Validate(); err != nil {
		return geometry.Quadrilateral{}, err
	}

	e.current.quad = &next
	e.current.version++
	return next, nil
}

// Commit rectifies the still using the session's quadrilateral.
//
// On success the session moves to Rectified and releases the still. A
// quadrilateral that is not convex, has coincident or collinear corners, or
// would produce an image smaller than the minimum size yields
// ErrDegenerateQuadrilateral and the session stays in Reviewing.
//
// The still is resampled without holding the engine lock. If the session is
// edited, retaken or replaced meanwhile the result is dropped and
// ErrSessionChanged returned.
func (e *Engine) Commit(ctx context.Context) (*RectifiedImage, error) {
	e.mu.Lock()
	if err := e.checkEditableLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	s := e.current
	if s.quad == nil {
		e.mu.Unlock()
		return nil, ErrNoQuadrilateral
	}
	quad := *s.quad
	img := s.frame.Image
	version := s.version
	e.mu.Unlock()

	out, err := e.rectify(ctx, img, quad, e.minOutput)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != s || s.version != version || e.state != Reviewing {
		e.logger.Debug("discarding stale commit", zap.String("session", s.id))
		return nil, ErrSessionChanged
	}
	if err != nil {
		e.logger.Info("commit rejected", zap.String("session", s.id), zap.Error(err))
		return nil, err
	}

	s.frame = nil
	s.version++
	e.state = Rectified

	e.logger.Info("page rectified",
		zap.String("session", s.id),
		zap.Int("width", out.Rect.Dx()),
		zap.Int("height", out.Rect.Dy()))

	return &RectifiedImage{
		Image:     out,
		Width:     out.Rect.Dx(),
		Height:    out.Rect.Dy(),
		Quad:      quad,
		SessionID: s.id,
	}, nil
}

// Retake discards the session and returns to Live. It always succeeds.
func (e *Engine) Retake() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.abortDetectionLocked()
	if e.current != nil {
		e.logger.Info("session discarded", zap.String("session", e.current.id))
	}
	e.current = nil
	e.state = Live
}

// Overlay renders the still with the session's quadrilateral drawn on top.
// Without a quadrilateral the full frame outline is drawn.
func (e *Engine) Overlay(opts imaging.OverlayOptions) (*imaging.OverlayResult, error) {
	e.mu.Lock()
	if e.current == nil || e.current.frame == nil {
		state := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: no still in state %s", ErrInvalidState, state)
	}
	img := e.current.frame.Image
	quad := geometry.FullFrame()
	if e.current.quad != nil {
		quad = *e.current.quad
	}
	e.mu.Unlock()

	return imaging.Overlay(img, quad, opts)
}

// EdgeSource is implemented by detectors that can expose their edge map.
type EdgeSource interface {
	Edges(ctx context.Context, img image.Image) (*imaging.EdgeMap, error)
}

// Edges returns the detector's edge map of the still, for tuning thresholds.
// It does not change the session.
func (e *Engine) Edges(ctx context.Context) (*imaging.EdgeMap, error) {
	src, ok := e.detector.(EdgeSource)
	if !ok {
		return nil, ErrNoEdgeMap
	}

	e.mu.Lock()
	if e.current == nil || e.current.frame == nil {
		state := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: no still in state %s", ErrInvalidState, state)
	}
	img := e.current.frame.Image
	e.mu.Unlock()

	return src.Edges(ctx, img)
}

func (e *Engine) checkDetectableLocked() error {
	switch e.state {
	case Captured, Reviewing:
		return nil
	case Detecting:
		return ErrDetectionInProgress
	default:
		return fmt.Errorf("%w: cannot detect borders in state %s", ErrInvalidState, e.state)
	}
}

func (e *Engine) checkEditableLocked() error {
	switch e.state {
	case Reviewing:
		return nil
	case Detecting:
		return ErrDetectionInProgress
	default:
		return fmt.Errorf("%w: operation requires %s, session is %s", ErrInvalidState, Reviewing, e.state)
	}
}

// abortDetectionLocked cancels any in-flight detection and invalidates its
// result.
func (e *Engine) abortDetectionLocked() {
	e.detectGen++
	if e.cancelDetect != nil {
		e.cancelDetect()
		e.cancelDetect = nil
	}
}

func (e *Engine) snapshotLocked() Session {
	s := e.current
	out := Session{
		ID:         s.id,
		Version:    s.version,
		State:      e.state,
		Width:      s.width,
		Height:     s.height,
		Fallback:   s.fallback,
		FrameSeq:   s.frameSeq,
		CapturedAt: s.capturedAt,
	}
	if s.quad != nil {
		q := *s.quad
		out.Quad = &q
	}
	return out
}
