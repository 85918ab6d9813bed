package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/visiona/moodcam/internal/types"
)

// Session owns the camera stream and the video surface it feeds. The
// surface is a single-slot latest-frame mailbox: the pump goroutine
// overwrites it on every captured frame and readers take a snapshot,
// so the detection cycle always sees the freshest frame and nothing is
// queued.
//
// Exactly one component writes each shared resource: the session writes
// the surface, the detection cycle only reads it.
type Session struct {
	mu          sync.Mutex
	source      FrameSource
	latest      *types.Frame
	active      bool
	starting    bool
	cancelCycle func()
	framesSeen  uint64

	pumpWG sync.WaitGroup
}

// NewSession creates an inactive camera session.
func NewSession() *Session {
	return &Session{}
}

// Start acquires the stream from src and binds it to the video
// surface. On failure the session stays inactive and a
// CameraAccessError is returned; retry is user-initiated. A second
// Start while acquisition is in progress is refused: the session owns
// at most one stream, ever.
func (s *Session) Start(ctx context.Context, src FrameSource) error {
	// The starting flag holds the acquisition slot across the blocking
	// src.Start call so a concurrent Start cannot double-acquire the
	// device and leak a stream Stop would never release
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}
	if s.starting {
		s.mu.Unlock()
		return &types.CameraAccessError{Err: fmt.Errorf("camera acquisition already in progress")}
	}
	s.starting = true
	s.mu.Unlock()

	if err := src.Start(ctx); err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		return &types.CameraAccessError{Err: err}
	}

	s.mu.Lock()
	s.starting = false
	s.source = src
	s.active = true
	s.latest = nil
	s.mu.Unlock()

	s.pumpWG.Add(1)
	go s.pump(src.Frames())

	slog.Info("camera session started")
	return nil
}

// pump moves frames from the source into the surface mailbox,
// overwriting the previous frame (drop, never queue).
func (s *Session) pump(frames <-chan types.Frame) {
	defer s.pumpWG.Done()

	for frame := range frames {
		f := frame
		s.mu.Lock()
		if s.active {
			s.latest = &f
			s.framesSeen++
		}
		s.mu.Unlock()
	}
}

// Frame returns a snapshot of the current surface frame, or nil when
// no frame has arrived yet or the session is inactive.
func (s *Session) Frame() *types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	return s.latest
}

// Active reports whether a stream is currently bound.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// FramesSeen returns the number of frames pumped into the surface.
func (s *Session) FramesSeen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesSeen
}

// BindCycle registers the active detection cycle's cancel function.
// Stop invokes it before tearing down the stream so no tick observes a
// half-released device. Passing nil clears the binding.
func (s *Session) BindCycle(cancel func()) {
	s.mu.Lock()
	s.cancelCycle = cancel
	s.mu.Unlock()
}

// Stop releases everything the session owns. Idempotent. Ordering is
// part of the contract: the detection cycle is cancelled first, then
// capture stops and the device is released, then the surface binding
// is cleared and the session goes inactive.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancelCycle
	s.cancelCycle = nil
	source := s.source
	s.source = nil
	s.active = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if source != nil {
		err = source.Stop()
	}
	s.pumpWG.Wait()

	s.mu.Lock()
	s.latest = nil
	s.mu.Unlock()

	slog.Info("camera session stopped")
	return err
}
