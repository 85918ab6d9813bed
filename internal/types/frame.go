package types

import "time"

// Frame represents a single video frame captured from the camera.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the source
	Seq uint64
	// Timestamp is when the frame was captured
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains the raw frame bytes in PixelFormat layout
	Data []byte
	// PixelFormat identifies the byte layout ("YUYV", "RGB24", ...)
	PixelFormat string
	// TraceID is a unique identifier for tracing a frame across the pipeline
	TraceID string
}

// FrameMeta contains frame metadata without the raw data.
type FrameMeta struct {
	Seq         uint64
	Timestamp   time.Time
	Width       int
	Height      int
	PixelFormat string
}

// Meta returns the frame's metadata without the pixel payload.
func (f *Frame) Meta() FrameMeta {
	return FrameMeta{
		Seq:         f.Seq,
		Timestamp:   f.Timestamp,
		Width:       f.Width,
		Height:      f.Height,
		PixelFormat: f.PixelFormat,
	}
}
