// Package detect drives the periodic detection cycle.
//
// The cycle runs at a fixed wall-clock period with single-flight
// discipline: a tick whose predecessor's inference is still
// outstanding is skipped, never queued. Inference latency routinely
// exceeds the tick period, and overlapping calls would race on the
// shared overlay and state. This is a correctness requirement, not an
// optimization.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiona/moodcam/internal/analyzer"
	"github.com/visiona/moodcam/internal/types"
)

// DefaultPeriod is the fixed tick period of the detection cycle.
const DefaultPeriod = 100 * time.Millisecond

// FrameProvider supplies the current frame from the camera surface.
// The scheduler only reads; it never mutates the surface.
type FrameProvider interface {
	Frame() *types.Frame
	Active() bool
}

// Renderer consumes each detection result as a visual side effect.
type Renderer interface {
	Render(result *types.DetectionResult, displayW, displayH int) error
}

// Publisher receives each detection result for state aggregation.
type Publisher interface {
	ApplyDetection(result *types.DetectionResult)
	SetError(err error)
}

// Config wires a scheduler.
type Config struct {
	Period   time.Duration // 0 means DefaultPeriod
	Analyzer analyzer.Analyzer
	Frames   FrameProvider
	Renderer Renderer
	State    Publisher
	// Ready gates Begin: detection may only run once the models are
	// loaded
	Ready func() bool
	// Options forwarded to every analyzer call
	Options analyzer.Options
	// Display size the overlay is scaled to
	DisplayWidth  int
	DisplayHeight int
	// OnResult, when set, observes each published result (used for
	// event emission). Never called after Cancel.
	OnResult func(result *types.DetectionResult)
}

// Stats are the cycle's operational counters.
type Stats struct {
	Ticks        uint64  `json:"ticks"`
	SkippedTicks uint64  `json:"skipped_ticks"`
	Detections   uint64  `json:"detections"`
	Failures     uint64  `json:"failures"`
	RenderErrors uint64  `json:"render_errors"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	Running      bool    `json:"running"`
}

// Scheduler owns the cancellable cycle task handle. Cancel releases it
// deterministically; nothing relies on incidental cleanup ordering.
type Scheduler struct {
	cfg    Config
	period time.Duration

	// inFlight is the single-flight guard: at most one inference call
	// is outstanding per scheduler at any time
	inFlight atomic.Bool

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	analyzeWG sync.WaitGroup

	ticks        atomic.Uint64
	skipped      atomic.Uint64
	detections   atomic.Uint64
	failures     atomic.Uint64
	renderErrors atomic.Uint64
	latencyMS    atomic.Uint64
}

// New creates a scheduler; Begin starts the cycle.
func New(cfg Config) *Scheduler {
	period := cfg.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Scheduler{cfg: cfg, period: period}
}

// Begin starts the periodic cycle. It refuses to start unless the
// models are ready and the camera is active, and refuses to start a
// second cycle on a running scheduler.
func (s *Scheduler) Begin(ctx context.Context) error {
	if s.cfg.Ready != nil && !s.cfg.Ready() {
		return fmt.Errorf("cannot begin detection: models not ready")
	}
	if !s.cfg.Frames.Active() {
		return fmt.Errorf("cannot begin detection: camera not active")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("detection cycle already running")
	}

	cctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(cctx, s.done)

	slog.Info("detection cycle started",
		"period", s.period,
		"input_size", s.cfg.Options.InputSize,
		"score_threshold", s.cfg.Options.ScoreThreshold,
	)
	return nil
}

// Cancel stops the periodic timer and drops any further scheduling.
// An inference call already running is allowed to complete, but its
// result is discarded rather than rendered. Idempotent.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done
	// Wait out any in-flight inference so that after Cancel returns,
	// no render or state publish attributable to this cycle can occur
	s.analyzeWG.Wait()

	slog.Info("detection cycle cancelled",
		"ticks", s.ticks.Load(),
		"skipped", s.skipped.Load(),
		"detections", s.detections.Load(),
	)
}

// Running reports whether a cycle is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick performs one cycle iteration. The busy flag is checked first:
// if the previous inference has not completed, this tick is skipped.
func (s *Scheduler) tick(ctx context.Context) {
	s.ticks.Add(1)

	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return
	}

	frame := s.cfg.Frames.Frame()
	if frame == nil {
		// No frame on the surface yet
		s.inFlight.Store(false)
		return
	}

	s.analyzeWG.Add(1)
	go s.analyze(ctx, frame)
}

// analyze runs one inference call and publishes its result. The cancel
// token is checked after the call returns: a late result from a dead
// cycle is discarded, never rendered and never published.
func (s *Scheduler) analyze(ctx context.Context, frame *types.Frame) {
	defer s.analyzeWG.Done()
	defer s.inFlight.Store(false)

	started := time.Now()
	result, err := s.cfg.Analyzer.Detect(ctx, frame, s.cfg.Options)

	if ctx.Err() != nil {
		slog.Debug("discarding late detection result",
			"frame_seq", frame.Seq,
			"trace_id", frame.TraceID,
		)
		return
	}

	if err != nil {
		// Non-fatal: logged only, never surfaced to the error banner
		s.failures.Add(1)
		runtimeErr := &types.DetectionRuntimeError{FrameSeq: frame.Seq, Err: err}
		slog.Warn("detection tick failed",
			"frame_seq", frame.Seq,
			"trace_id", frame.TraceID,
			"error", runtimeErr,
		)
		return
	}

	s.detections.Add(1)
	s.latencyMS.Add(uint64(time.Since(started).Milliseconds()))

	if err := s.cfg.Renderer.Render(result, s.cfg.DisplayWidth, s.cfg.DisplayHeight); err != nil {
		// Fatal to this tick only; the cycle continues next tick
		s.renderErrors.Add(1)
		s.cfg.State.SetError(err)
		slog.Warn("overlay render failed",
			"frame_seq", frame.Seq,
			"error", err,
		)
	}

	s.cfg.State.ApplyDetection(result)

	if s.cfg.OnResult != nil {
		s.cfg.OnResult(result)
	}
}

// Stats returns the cycle counters.
func (s *Scheduler) Stats() Stats {
	detections := s.detections.Load()
	var avg float64
	if detections > 0 {
		avg = float64(s.latencyMS.Load()) / float64(detections)
	}
	return Stats{
		Ticks:        s.ticks.Load(),
		SkippedTicks: s.skipped.Load(),
		Detections:   detections,
		Failures:     s.failures.Load(),
		RenderErrors: s.renderErrors.Load(),
		AvgLatencyMS: avg,
		Running:      s.Running(),
	}
}
