// Package analyzer defines the consumed face-analysis capability and
// its production implementation, a worker subprocess spoken to over
// length-prefixed MsgPack. The capability is a black box: accuracy and
// performance of the inference itself are out of scope here.
package analyzer

import (
	"context"

	"github.com/visiona/moodcam/internal/types"
)

// Options shape a single detection request.
type Options struct {
	// InputSize is the model input resolution the frame is resized to;
	// face coordinates in the result are expressed in this space
	InputSize int
	// ScoreThreshold is the minimum detection confidence
	ScoreThreshold float64
}

// Analyzer is the face-analysis capability. LoadModel calls are issued
// sequentially by the model registry; Detect calls are issued
// single-flight by the detection scheduler. Implementations may rely
// on both.
type Analyzer interface {
	// LoadModel loads one named model from the configured asset base.
	LoadModel(ctx context.Context, name string) error
	// Detect runs the full analysis (boxes, landmarks, expressions,
	// descriptors) against one frame.
	Detect(ctx context.Context, frame *types.Frame, opts Options) (*types.DetectionResult, error)
	// Close releases the capability.
	Close() error
}
