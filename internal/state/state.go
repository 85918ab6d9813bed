// Package state aggregates what the UI layer observes: model-load
// progress, camera status, derived detection stats, and the single
// active error. It only merges what producers publish; no component
// mutates another component's slice, which is what lets the UI be a
// stateless view over one consistent snapshot.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/visiona/moodcam/internal/types"
)

// ErrorInfo is the user-visible form of the active error.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	// Model names the failing model for model_load errors
	Model string `json:"model,omitempty"`
}

// Snapshot is one consistent view of the aggregate state.
type Snapshot struct {
	FaceCount              int        `json:"face_count"`
	DominantMood           string     `json:"dominant_mood"`
	LoadingProgressPercent float64    `json:"loading_progress_percent"`
	ModelsReady            bool       `json:"models_ready"`
	CameraActive           bool       `json:"camera_active"`
	ActiveError            *ErrorInfo `json:"active_error,omitempty"`
	LastDetectionSeq       uint64     `json:"last_detection_seq"`
	LastDetectionAt        time.Time  `json:"last_detection_at"`
}

// AppState is the sole merge point for component-published events.
type AppState struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New creates an AppState with mood "none" and nothing loaded.
func New() *AppState {
	return &AppState{
		snap: Snapshot{DominantMood: string(types.ExpressionNone)},
	}
}

// SetModelProgress records the registry's progress step.
func (s *AppState) SetModelProgress(loaded, total int, percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LoadingProgressPercent = percent
	if loaded < total {
		s.snap.ModelsReady = false
	}
}

// SetModelsReady records readiness; true only after the final model
// loaded.
func (s *AppState) SetModelsReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ModelsReady = ready
}

// SetCameraActive records the camera session status.
func (s *AppState) SetCameraActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CameraActive = active
}

// ApplyDetection merges a fresh detection result: face count and
// dominant mood are fully rederived, never merged with the previous
// tick.
func (s *AppState) ApplyDetection(result *types.DetectionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.FaceCount = len(result.Faces)
	s.snap.DominantMood = string(result.DominantMood())
	s.snap.LastDetectionSeq = result.FrameSeq
	s.snap.LastDetectionAt = result.Timestamp
}

// SetError publishes a fatal error into the single active-error slot,
// overwriting any previous one. Non-fatal DetectionRuntimeErrors are
// rejected here by construction: they must never replace a
// user-visible error banner, or transient inference hiccups would make
// it flicker.
func (s *AppState) SetError(err error) {
	if err == nil {
		return
	}

	var runtimeErr *types.DetectionRuntimeError
	if errors.As(err, &runtimeErr) {
		return
	}

	info := &ErrorInfo{Message: err.Error()}
	var (
		loadErr   *types.ModelLoadError
		camErr    *types.CameraAccessError
		renderErr *types.RenderError
	)
	switch {
	case errors.As(err, &loadErr):
		info.Kind = types.ErrKindModelLoad
		info.Model = loadErr.Model
	case errors.As(err, &camErr):
		info.Kind = types.ErrKindCameraAccess
	case errors.As(err, &renderErr):
		info.Kind = types.ErrKindRender
	default:
		info.Kind = "internal"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ActiveError = info
}

// ClearError empties the active-error slot unconditionally.
func (s *AppState) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ActiveError = nil
}

// ClearErrorKind empties the active-error slot only when it holds an
// error of the given kind, so one subsystem's successful retry cannot
// wipe another subsystem's banner.
func (s *AppState) ClearErrorKind(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.ActiveError != nil && s.snap.ActiveError.Kind == kind {
		s.snap.ActiveError = nil
	}
}

// Snapshot returns a consistent copy of the aggregate state.
func (s *AppState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snap
	if snap.ActiveError != nil {
		e := *snap.ActiveError
		snap.ActiveError = &e
	}
	return snap
}
