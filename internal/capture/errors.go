package capture

import (
	"errors"
	"fmt"

	"github.com/ironsheep/docscan-mcp/internal/geometry"
)

var (
	// ErrNoFrameAvailable means the frame source has not produced a frame.
	ErrNoFrameAvailable = errors.New("no frame available")

	// ErrInvalidGeometry is returned for a rejected corner edit. The session
	// keeps its previous quadrilateral.
	ErrInvalidGeometry = geometry.ErrInvalidGeometry

	// ErrCornerIndex is returned for a corner index outside 0..3.
	ErrCornerIndex = geometry.ErrCornerIndex

	// ErrDegenerateQuadrilateral is returned by Commit when the quadrilateral
	// cannot produce a useful image.
	ErrDegenerateQuadrilateral = errors.New("degenerate quadrilateral")

	// ErrDetectionCancelled is returned when a detection result belongs to a
	// session that has since been retaken or replaced. Callers drop it.
	ErrDetectionCancelled = errors.New("detection cancelled")

	// ErrInvalidState is returned for an operation the current state does not
	// allow.
	ErrInvalidState = errors.New("invalid state")

	// ErrDetectionInProgress rejects edits while detection runs.
	ErrDetectionInProgress = fmt.Errorf("%w: detection in progress", ErrInvalidState)

	// ErrNoQuadrilateral is returned by Commit before any corners are set.
	ErrNoQuadrilateral = errors.New("no quadrilateral")

	// ErrSessionChanged is returned by Commit when the session was edited,
	// retaken or replaced while the page was being rectified.
	ErrSessionChanged = fmt.Errorf("%w: session changed during commit", ErrInvalidState)

	// ErrNoEdgeMap is returned by Edges when the detector cannot expose one.
	ErrNoEdgeMap = errors.New("detector does not expose an edge map")
)
