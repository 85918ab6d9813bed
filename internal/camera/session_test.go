package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/visiona/moodcam/internal/types"
)

// recordingSource is a FrameSource that records lifecycle events into a
// shared ordered log, for asserting teardown ordering.
type recordingSource struct {
	mu       sync.Mutex
	log      *[]string
	frames   chan types.Frame
	startErr error
	stopped  bool

	startEntered chan struct{} // closed when Start is entered
	startGate    chan struct{} // when non-nil, Start blocks here
}

func newRecordingSource(log *[]string) *recordingSource {
	return &recordingSource{log: log, frames: make(chan types.Frame, 4)}
}

func (r *recordingSource) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, event)
}

func (r *recordingSource) Start(ctx context.Context) error {
	if r.startEntered != nil {
		close(r.startEntered)
	}
	if r.startGate != nil {
		<-r.startGate
	}
	if r.startErr != nil {
		return r.startErr
	}
	r.record("source_start")
	return nil
}

func (r *recordingSource) Frames() <-chan types.Frame { return r.frames }

func (r *recordingSource) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()
	r.record("source_stop")
	close(r.frames)
	return nil
}

func (r *recordingSource) emit(seq uint64) {
	r.frames <- types.Frame{Seq: seq, Width: 64, Height: 48, PixelFormat: "RGB24"}
}

// TestStopOrdering validates the teardown contract: the detection
// cycle is cancelled strictly before the source stops, so no tick can
// observe a half-released device.
func TestStopOrdering(t *testing.T) {
	var log []string
	var logMu sync.Mutex
	src := newRecordingSource(&log)

	s := NewSession()
	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	s.BindCycle(func() {
		logMu.Lock()
		log = append(log, "cycle_cancel")
		logMu.Unlock()
	})

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	want := []string{"source_start", "cycle_cancel", "source_stop"}
	if len(log) != len(want) {
		t.Fatalf("event log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("event log = %v, want %v", log, want)
		}
	}
}

// TestStopIdempotent validates that repeated Stop is safe and the
// cycle cancel runs exactly once.
func TestStopIdempotent(t *testing.T) {
	var log []string
	src := newRecordingSource(&log)

	s := NewSession()
	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	cancels := 0
	s.BindCycle(func() { cancels++ })

	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop() failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("third Stop() failed: %v", err)
	}

	if cancels != 1 {
		t.Errorf("cycle cancelled %d times, want 1", cancels)
	}
	if s.Active() {
		t.Error("session active after Stop")
	}
}

// TestFrameMailbox validates the latest-frame surface: each captured
// frame overwrites the previous one and Frame always returns the
// freshest, never a queue.
func TestFrameMailbox(t *testing.T) {
	var log []string
	src := newRecordingSource(&log)

	s := NewSession()
	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer s.Stop()

	if s.Frame() != nil {
		t.Error("Frame() non-nil before any frame arrived")
	}

	src.emit(1)
	src.emit(2)
	src.emit(3)

	// Wait for the pump to drain the channel
	deadline := time.Now().Add(time.Second)
	for s.FramesSeen() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("pump saw %d frames, want 3", s.FramesSeen())
		}
		time.Sleep(time.Millisecond)
	}

	frame := s.Frame()
	if frame == nil {
		t.Fatal("Frame() nil after frames arrived")
	}
	if frame.Seq != 3 {
		t.Errorf("surface frame seq = %d, want 3 (latest overwrites)", frame.Seq)
	}
}

// TestFrameNilAfterStop validates that the surface is cleared on stop.
func TestFrameNilAfterStop(t *testing.T) {
	var log []string
	src := newRecordingSource(&log)

	s := NewSession()
	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	src.emit(1)
	deadline := time.Now().Add(time.Second)
	for s.FramesSeen() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("pump never saw the frame")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if s.Frame() != nil {
		t.Error("Frame() non-nil after Stop")
	}
}

// TestStartRefusesOverlap validates exclusive stream ownership: while
// one acquisition is in progress a second Start is refused, only one
// source ever streams, and Stop afterwards returns promptly with
// nothing leaked.
func TestStartRefusesOverlap(t *testing.T) {
	var log []string
	first := newRecordingSource(&log)
	first.startEntered = make(chan struct{})
	first.startGate = make(chan struct{})
	second := newRecordingSource(&log)

	s := NewSession()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background(), first) }()
	<-first.startEntered

	// Acquisition of the first source is still in flight
	err := s.Start(context.Background(), second)
	if err == nil {
		t.Error("overlapping Start() accepted during acquisition")
	}
	var camErr *types.CameraAccessError
	if !errors.As(err, &camErr) {
		t.Errorf("overlap error type = %T, want *types.CameraAccessError", err)
	}

	close(first.startGate)
	if err := <-errCh; err != nil {
		t.Fatalf("first Start() failed: %v", err)
	}
	if !s.Active() {
		t.Fatal("session inactive after Start")
	}

	starts := 0
	for _, event := range log {
		if event == "source_start" {
			starts++
		}
	}
	if starts != 1 {
		t.Errorf("source starts = %d, want 1 (log %v)", starts, log)
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return; a stream leaked past teardown")
	}
	if s.Active() {
		t.Error("session active after Stop")
	}
}

// TestStartDenied validates the acquisition failure contract: the
// session stays inactive and the error is a CameraAccessError.
func TestStartDenied(t *testing.T) {
	var log []string
	src := newRecordingSource(&log)
	src.startErr = errors.New("permission denied")

	s := NewSession()
	err := s.Start(context.Background(), src)
	if err == nil {
		t.Fatal("Start() succeeded, want denial")
	}
	var camErr *types.CameraAccessError
	if !errors.As(err, &camErr) {
		t.Fatalf("error type = %T, want *types.CameraAccessError", err)
	}
	if s.Active() {
		t.Error("session active after denied Start")
	}
}
