package types

import "fmt"

// Error kinds surfaced in the AppState error slot.
const (
	ErrKindModelLoad        = "model_load"
	ErrKindCameraAccess     = "camera_access"
	ErrKindDetectionRuntime = "detection_runtime"
	ErrKindRender           = "render"
)

// ModelLoadError reports the specific model whose load failed. Loading
// halts at the first failure, so there is exactly one of these per
// failed load attempt.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("model %q failed to load: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// CameraAccessError reports a denied or failed camera acquisition.
// The session stays inactive; retry is user-initiated.
type CameraAccessError struct {
	Err error
}

func (e *CameraAccessError) Error() string {
	return fmt.Sprintf("camera access failed: %v", e.Err)
}

func (e *CameraAccessError) Unwrap() error { return e.Err }

// DetectionRuntimeError is a non-fatal per-tick inference failure.
// It is logged only and must never reach the AppState error slot.
type DetectionRuntimeError struct {
	FrameSeq uint64
	Err      error
}

func (e *DetectionRuntimeError) Error() string {
	return fmt.Sprintf("detection failed on frame %d: %v", e.FrameSeq, e.Err)
}

func (e *DetectionRuntimeError) Unwrap() error { return e.Err }

// RenderError reports an unavailable or failed overlay surface.
// Fatal to the current tick only; the cycle continues.
type RenderError struct {
	Reason string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("overlay render failed: %s", e.Reason)
}
