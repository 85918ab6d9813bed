package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visiona/moodcam/internal/types"
)

// MockSource generates synthetic frames for tests and camera-less demos
type MockSource struct {
	width  int
	height int
	fps    int

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

// NewMockSource creates a synthetic frame source honoring the given
// constraints.
func NewMockSource(c Constraints) *MockSource {
	return &MockSource{
		width:    c.Width,
		height:   c.Height,
		fps:      c.FPS,
		framesCh: make(chan types.Frame, 4),
		stopCh:   make(chan struct{}),
	}
}

// Start begins generating frames
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("mock source already running")
	}
	m.isRunning = true
	m.startTime = time.Now()
	m.mu.Unlock()

	slog.Info("mock camera source starting",
		"width", m.width,
		"height", m.height,
		"fps", m.fps,
	)

	m.wg.Add(1)
	go m.generateFrames(ctx)

	return nil
}

// Frames returns the frames channel
func (m *MockSource) Frames() <-chan types.Frame {
	return m.framesCh
}

// Stop stops the source
func (m *MockSource) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	close(m.framesCh)

	slog.Info("mock camera source stopped",
		"frames_emitted", m.framesEmitted,
		"duration", time.Since(m.startTime),
	)
	return nil
}

// Stats returns capture counters
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fpsReal float64
	if m.framesEmitted > 0 {
		if elapsed := time.Since(m.startTime).Seconds(); elapsed > 0 {
			fpsReal = float64(m.framesEmitted) / elapsed
		}
	}
	return SourceStats{
		FramesEmitted: m.framesEmitted,
		FramesDropped: m.framesDropped,
		FPSReal:       fpsReal,
		Resolution:    fmt.Sprintf("%dx%d", m.width, m.height),
		IsRunning:     m.isRunning,
	}
}

func (m *MockSource) generateFrames(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(m.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			frame := m.createFrame()
			select {
			case m.framesCh <- frame:
				m.mu.Lock()
				m.framesEmitted++
				m.mu.Unlock()
			default:
				// Consumer slow: drop, never queue
				m.mu.Lock()
				m.framesDropped++
				m.mu.Unlock()
			}
		}
	}
}

// createFrame creates a mid-gray RGB24 frame
func (m *MockSource) createFrame() types.Frame {
	m.mu.Lock()
	seq := m.seq
	m.seq++
	m.mu.Unlock()

	data := make([]byte, m.width*m.height*3)
	for i := range data {
		data[i] = 0x80
	}

	return types.Frame{
		Seq:         seq,
		Timestamp:   time.Now(),
		Width:       m.width,
		Height:      m.height,
		Data:        data,
		PixelFormat: "RGB24",
		TraceID:     uuid.New().String(),
	}
}
