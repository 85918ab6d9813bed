package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/google/uuid"

	"github.com/visiona/moodcam/internal/types"
)

// fourcc for V4L2_PIX_FMT_YUYV ('Y','U','Y','V' little-endian)
const pixelFormatYUYV = webcam.PixelFormat(0x56595559)

// defaultDevices are probed in order when no device is configured.
// /dev/video0 is the user-facing camera on typical laptop hardware.
var defaultDevices = []string{"/dev/video0", "/dev/video1", "/dev/video2"}

// V4L2Source captures frames from a local camera device via V4L2.
type V4L2Source struct {
	constraints Constraints

	cam    *webcam.Webcam
	format string
	width  int
	height int

	framesCh chan types.Frame
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu            sync.Mutex
	seq           uint64
	framesEmitted uint64
	framesDropped uint64
	isRunning     bool
	startTime     time.Time
}

// NewV4L2Source creates a V4L2 camera source for the given constraints.
func NewV4L2Source(c Constraints) *V4L2Source {
	return &V4L2Source{
		constraints: c,
		framesCh:    make(chan types.Frame, 4),
		stopCh:      make(chan struct{}),
	}
}

// Start opens the device, negotiates the capture format at the fixed
// resolution, and begins streaming. Denial or hardware failure is
// returned without retry; retry is user-initiated.
func (v *V4L2Source) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.isRunning {
		v.mu.Unlock()
		return fmt.Errorf("camera source already running")
	}
	v.mu.Unlock()

	cam, device, err := v.openDevice()
	if err != nil {
		return err
	}

	format, width, height, err := negotiateFormat(cam, v.constraints)
	if err != nil {
		cam.Close()
		return err
	}

	if v.constraints.FPS > 0 {
		if err := cam.SetFramerate(float32(v.constraints.FPS)); err != nil {
			// Not all drivers support rate control; capture rate then
			// follows the driver default.
			slog.Warn("camera framerate not applied",
				"device", device,
				"fps", v.constraints.FPS,
				"error", err,
			)
		}
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return fmt.Errorf("failed to start streaming on %s: %w", device, err)
	}

	v.mu.Lock()
	v.cam = cam
	v.format = format
	v.width = width
	v.height = height
	v.isRunning = true
	v.startTime = time.Now()
	v.mu.Unlock()

	slog.Info("camera source started",
		"device", device,
		"format", format,
		"width", width,
		"height", height,
	)

	v.wg.Add(1)
	go v.captureLoop(ctx)

	return nil
}

// openDevice opens the configured device, or probes the default list
// when none is configured.
func (v *V4L2Source) openDevice() (*webcam.Webcam, string, error) {
	if v.constraints.Device != "" {
		cam, err := webcam.Open(v.constraints.Device)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open camera device %s: %w", v.constraints.Device, err)
		}
		return cam, v.constraints.Device, nil
	}

	var lastErr error
	for _, device := range defaultDevices {
		cam, err := webcam.Open(device)
		if err == nil {
			return cam, device, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("no camera device available: %w", lastErr)
}

// negotiateFormat requests YUYV at the constrained resolution, falling
// back to whatever format the driver offers first.
func negotiateFormat(cam *webcam.Webcam, c Constraints) (string, int, int, error) {
	formats := cam.GetSupportedFormats()

	pick := pixelFormatYUYV
	name, ok := formats[pixelFormatYUYV]
	if !ok {
		for f, n := range formats {
			pick, name = f, n
			break
		}
		if name == "" {
			return "", 0, 0, fmt.Errorf("camera reports no supported pixel formats")
		}
	}

	_, w, h, err := cam.SetImageFormat(pick, uint32(c.Width), uint32(c.Height))
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to set image format %s %dx%d: %w", name, c.Width, c.Height, err)
	}
	return name, int(w), int(h), nil
}

// Frames returns the frames channel
func (v *V4L2Source) Frames() <-chan types.Frame {
	return v.framesCh
}

// Stop stops all underlying capture, releases the device handle, and
// closes the frames channel. Idempotent.
func (v *V4L2Source) Stop() error {
	v.mu.Lock()
	if !v.isRunning {
		v.mu.Unlock()
		return nil
	}
	v.isRunning = false
	cam := v.cam
	v.cam = nil
	v.mu.Unlock()

	close(v.stopCh)
	v.wg.Wait()

	if cam != nil {
		if err := cam.StopStreaming(); err != nil {
			slog.Warn("camera stop streaming failed", "error", err)
		}
		if err := cam.Close(); err != nil {
			slog.Warn("camera close failed", "error", err)
		}
	}
	close(v.framesCh)

	slog.Info("camera source stopped",
		"frames_emitted", v.framesEmitted,
		"frames_dropped", v.framesDropped,
	)
	return nil
}

// Stats returns capture counters
func (v *V4L2Source) Stats() SourceStats {
	v.mu.Lock()
	defer v.mu.Unlock()

	var fpsReal float64
	if v.framesEmitted > 0 {
		if elapsed := time.Since(v.startTime).Seconds(); elapsed > 0 {
			fpsReal = float64(v.framesEmitted) / elapsed
		}
	}
	return SourceStats{
		FramesEmitted: v.framesEmitted,
		FramesDropped: v.framesDropped,
		FPSReal:       fpsReal,
		Resolution:    fmt.Sprintf("%dx%d", v.width, v.height),
		IsRunning:     v.isRunning,
	}
}

func (v *V4L2Source) captureLoop(ctx context.Context) {
	defer v.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.stopCh:
			return
		default:
		}

		v.mu.Lock()
		cam := v.cam
		v.mu.Unlock()
		if cam == nil {
			return
		}

		err := cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			slog.Error("camera frame wait failed", "error", err)
			return
		}

		buf, err := cam.ReadFrame()
		if err != nil {
			slog.Error("camera frame read failed", "error", err)
			return
		}
		if len(buf) == 0 {
			continue
		}

		// ReadFrame reuses the driver buffer; copy before handing off
		data := make([]byte, len(buf))
		copy(data, buf)

		frame := v.createFrame(data)
		select {
		case v.framesCh <- frame:
			v.mu.Lock()
			v.framesEmitted++
			v.mu.Unlock()
		default:
			v.mu.Lock()
			v.framesDropped++
			v.mu.Unlock()
		}
	}
}

func (v *V4L2Source) createFrame(data []byte) types.Frame {
	v.mu.Lock()
	seq := v.seq
	v.seq++
	width, height, format := v.width, v.height, v.format
	v.mu.Unlock()

	return types.Frame{
		Seq:         seq,
		Timestamp:   time.Now(),
		Width:       width,
		Height:      height,
		Data:        data,
		PixelFormat: format,
		TraceID:     uuid.New().String(),
	}
}
