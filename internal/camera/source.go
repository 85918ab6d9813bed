// Package camera owns acquisition and release of the camera frame
// source and the video surface it feeds. The surface is a single-slot
// latest-frame mailbox: new frames overwrite unconsumed ones, nothing
// is ever queued.
package camera

import (
	"context"

	"github.com/visiona/moodcam/internal/types"
)

// Constraints fix the capture parameters requested from the device.
type Constraints struct {
	// Device is the V4L2 device path; empty selects the first device
	// that grants access (front-facing preference on laptop hardware,
	// where /dev/video0 is the user-facing camera).
	Device string
	Width  int
	Height int
	FPS    int
}

// FrameSource produces frames from a camera device or a synthetic
// generator. Implementations own their device handle exclusively and
// must release it on Stop.
type FrameSource interface {
	// Start begins capture. It returns an error when the device cannot
	// be acquired (denied, missing, or busy).
	Start(ctx context.Context) error
	// Frames returns the capture channel; closed after Stop.
	Frames() <-chan types.Frame
	// Stop halts capture and releases the device. Idempotent.
	Stop() error
}

// SourceStats describes capture-side counters.
type SourceStats struct {
	FramesEmitted uint64
	FramesDropped uint64
	FPSReal       float64
	Resolution    string
	IsRunning     bool
}
