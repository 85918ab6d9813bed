package state

import (
	"errors"
	"testing"
	"time"

	"github.com/visiona/moodcam/internal/types"
)

// TestApplyDetectionRederives validates that face count and mood are
// fully rederived from each result, never merged with the previous one.
func TestApplyDetectionRederives(t *testing.T) {
	s := New()

	ts := time.Now()
	s.ApplyDetection(&types.DetectionResult{
		Faces: []types.Face{
			{Expressions: types.Expressions{types.ExpressionHappy: 0.8}},
			{Expressions: types.Expressions{types.ExpressionSad: 0.9}},
		},
		FrameSeq:  7,
		Timestamp: ts,
	})

	snap := s.Snapshot()
	if snap.FaceCount != 2 {
		t.Errorf("face count = %d, want 2", snap.FaceCount)
	}
	if snap.DominantMood != string(types.ExpressionHappy) {
		t.Errorf("dominant mood = %q, want %q (primary face)", snap.DominantMood, types.ExpressionHappy)
	}
	if snap.LastDetectionSeq != 7 {
		t.Errorf("last detection seq = %d, want 7", snap.LastDetectionSeq)
	}

	// A later empty result resets everything, nothing lingers
	s.ApplyDetection(&types.DetectionResult{FrameSeq: 8})
	snap = s.Snapshot()
	if snap.FaceCount != 0 {
		t.Errorf("face count after empty result = %d, want 0", snap.FaceCount)
	}
	if snap.DominantMood != string(types.ExpressionNone) {
		t.Errorf("dominant mood after empty result = %q, want %q", snap.DominantMood, types.ExpressionNone)
	}
}

// TestInitialSnapshot validates the zero state the UI sees before any
// component has published.
func TestInitialSnapshot(t *testing.T) {
	snap := New().Snapshot()
	if snap.DominantMood != string(types.ExpressionNone) {
		t.Errorf("initial mood = %q, want %q", snap.DominantMood, types.ExpressionNone)
	}
	if snap.ModelsReady || snap.CameraActive {
		t.Error("fresh state reports ready or active")
	}
	if snap.ActiveError != nil {
		t.Error("fresh state carries an active error")
	}
}

// TestErrorSlotClassification validates the single active-error slot:
// each fatal error kind is classified, a newer error overwrites an
// older one, and ClearError empties the slot.
func TestErrorSlotClassification(t *testing.T) {
	s := New()

	s.SetError(&types.ModelLoadError{Model: "face_expression", Err: errors.New("manifest missing")})
	snap := s.Snapshot()
	if snap.ActiveError == nil {
		t.Fatal("no active error after SetError")
	}
	if snap.ActiveError.Kind != types.ErrKindModelLoad {
		t.Errorf("kind = %q, want %q", snap.ActiveError.Kind, types.ErrKindModelLoad)
	}
	if snap.ActiveError.Model != "face_expression" {
		t.Errorf("model = %q, want %q", snap.ActiveError.Model, "face_expression")
	}

	// Overwrite, not accumulate
	s.SetError(&types.CameraAccessError{Err: errors.New("device busy")})
	snap = s.Snapshot()
	if snap.ActiveError.Kind != types.ErrKindCameraAccess {
		t.Errorf("kind after overwrite = %q, want %q", snap.ActiveError.Kind, types.ErrKindCameraAccess)
	}
	if snap.ActiveError.Model != "" {
		t.Errorf("model field leaked across overwrite: %q", snap.ActiveError.Model)
	}

	s.SetError(&types.RenderError{Reason: "surface not mounted"})
	if got := s.Snapshot().ActiveError.Kind; got != types.ErrKindRender {
		t.Errorf("kind = %q, want %q", got, types.ErrKindRender)
	}

	s.ClearError()
	if s.Snapshot().ActiveError != nil {
		t.Error("active error survived ClearError")
	}
}

// TestRuntimeErrorNeverSurfaced validates that non-fatal detection
// runtime errors cannot occupy the error slot, and cannot displace a
// fatal one already there.
func TestRuntimeErrorNeverSurfaced(t *testing.T) {
	s := New()

	s.SetError(&types.DetectionRuntimeError{FrameSeq: 3, Err: errors.New("backend hiccup")})
	if s.Snapshot().ActiveError != nil {
		t.Error("runtime error occupied the error slot")
	}

	s.SetError(&types.CameraAccessError{Err: errors.New("denied")})
	s.SetError(&types.DetectionRuntimeError{FrameSeq: 4, Err: errors.New("backend hiccup")})
	snap := s.Snapshot()
	if snap.ActiveError == nil || snap.ActiveError.Kind != types.ErrKindCameraAccess {
		t.Error("runtime error displaced a fatal camera error")
	}
}

// TestClearErrorKindScoped validates that a subsystem's recovery
// clears only its own error kind: a successful model-load retry must
// not wipe a camera error banner, and vice versa.
func TestClearErrorKindScoped(t *testing.T) {
	s := New()
	s.SetError(&types.CameraAccessError{Err: errors.New("denied")})

	s.ClearErrorKind(types.ErrKindModelLoad)
	if s.Snapshot().ActiveError == nil {
		t.Fatal("model-load recovery wiped a camera error")
	}

	s.ClearErrorKind(types.ErrKindCameraAccess)
	if s.Snapshot().ActiveError != nil {
		t.Error("camera error survived its own recovery")
	}

	s.SetError(&types.ModelLoadError{Model: "face_expression", Err: errors.New("manifest missing")})
	s.ClearErrorKind(types.ErrKindCameraAccess)
	if s.Snapshot().ActiveError == nil {
		t.Fatal("camera recovery wiped a model-load error")
	}
	s.ClearErrorKind(types.ErrKindModelLoad)
	if s.Snapshot().ActiveError != nil {
		t.Error("model-load error survived its own recovery")
	}
}

// TestSnapshotErrorIsolated validates that mutating a snapshot's error
// does not reach the shared state.
func TestSnapshotErrorIsolated(t *testing.T) {
	s := New()
	s.SetError(&types.RenderError{Reason: "surface not mounted"})

	snap := s.Snapshot()
	snap.ActiveError.Message = "tampered"

	if got := s.Snapshot().ActiveError.Message; got == "tampered" {
		t.Error("snapshot mutation leaked into shared state")
	}
}

// TestSetModelProgress validates the progress pass-through.
func TestSetModelProgress(t *testing.T) {
	s := New()
	s.SetModelProgress(2, 4, 50)
	snap := s.Snapshot()
	if snap.LoadingProgressPercent != 50 {
		t.Errorf("progress = %v, want 50", snap.LoadingProgressPercent)
	}
	if snap.ModelsReady {
		t.Error("models reported ready mid-load")
	}
}
