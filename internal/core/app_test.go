package core

import (
	"context"
	"testing"
	"time"

	"github.com/visiona/moodcam/internal/analyzer"
	"github.com/visiona/moodcam/internal/camera"
	"github.com/visiona/moodcam/internal/detect"
	"github.com/visiona/moodcam/internal/overlay"
	"github.com/visiona/moodcam/internal/state"
	"github.com/visiona/moodcam/internal/types"
)

type stubAnalyzer struct{}

func (stubAnalyzer) LoadModel(ctx context.Context, name string) error { return nil }

func (stubAnalyzer) Detect(ctx context.Context, frame *types.Frame, opts analyzer.Options) (*types.DetectionResult, error) {
	return &types.DetectionResult{InputWidth: opts.InputSize, InputHeight: opts.InputSize}, nil
}

func (stubAnalyzer) Close() error { return nil }

// TestStopCameraCancelsCycle validates that stopping the camera always
// ends the detection cycle, even when the session's cancel hook is not
// bound: the cycle must never outlive the stream it reads from.
func TestStopCameraCancelsCycle(t *testing.T) {
	a := &App{
		appState: state.New(),
		session:  camera.NewSession(),
	}
	a.scheduler = detect.New(detect.Config{
		Period:   time.Hour, // never ticks during the test
		Analyzer: stubAnalyzer{},
		Frames:   a.session,
		Renderer: overlay.NewRenderer(),
		State:    a.appState,
		Ready:    func() bool { return true },
	})

	src := camera.NewMockSource(camera.Constraints{Width: 64, Height: 48, FPS: 5})
	if err := a.session.Start(context.Background(), src); err != nil {
		t.Fatalf("session start failed: %v", err)
	}
	a.appState.SetCameraActive(true)

	// Cycle running with no hook bound, as if a stop raced the start
	if err := a.scheduler.Begin(context.Background()); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}

	if err := a.StopCamera(); err != nil {
		t.Fatalf("StopCamera() failed: %v", err)
	}
	if a.scheduler.Running() {
		t.Error("detection cycle survived StopCamera")
	}
	if a.appState.Snapshot().CameraActive {
		t.Error("camera still reported active after StopCamera")
	}
}
