// Package capture implements the border capture and correction engine.
//
// An Engine owns at most one capture session and moves it through
//
//	Live -> Captured -> (Detecting) -> Reviewing -> Rectified
//
// Capture pulls a still from a FrameSource. DetectBorders optionally runs the
// border detector, which proposes a quadrilateral in normalized coordinates.
// AdjustCorner and SetQuadrilateral let a caller correct it, and Commit warps
// the enclosed region onto an upright rectangle. Retake discards the session
// from any state.
//
// Detection runs on its own goroutine and is cancelled by Retake or a new
// Capture. Results that arrive for a superseded session are dropped and
// reported as ErrDetectionCancelled. Corner edits are rejected with
// ErrDetectionInProgress rather than queued while detection runs.
//
// Every error leaves the engine in a usable state: a rejected edit keeps the
// previous quadrilateral and a rejected commit stays in Reviewing.
package capture
