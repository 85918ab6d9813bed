// Package core wires the pipeline together: model registry, camera
// session, detection scheduler, overlay renderer, app state, and the
// UI-facing HTTP surface.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/visiona/moodcam/internal/analyzer"
	"github.com/visiona/moodcam/internal/camera"
	"github.com/visiona/moodcam/internal/config"
	"github.com/visiona/moodcam/internal/detect"
	"github.com/visiona/moodcam/internal/emitter"
	"github.com/visiona/moodcam/internal/models"
	"github.com/visiona/moodcam/internal/overlay"
	"github.com/visiona/moodcam/internal/state"
	"github.com/visiona/moodcam/internal/types"
)

// App is the service orchestrator
type App struct {
	cfg *config.Config

	// Core components
	appState  *state.AppState
	session   *camera.Session
	registry  *models.Registry
	analyzer  *analyzer.Proc
	renderer  *overlay.Renderer
	scheduler *detect.Scheduler
	emitter   *emitter.MQTTEmitter
	httpSrv   *http.Server

	// Lifecycle management
	mu        sync.RWMutex
	started   time.Time
	isRunning bool
	runCtx    context.Context
	wg        sync.WaitGroup

	// Serializes user-initiated model load attempts (one per retry)
	loadMu sync.Mutex
}

// NewApp creates the service from a configuration file
func NewApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"camera_device", cfg.Camera.Device,
		"models", cfg.Models.Names,
	)

	proc, err := analyzer.NewProc(analyzer.ProcConfig{
		Command:  cfg.Models.Command,
		Args:     cfg.Models.Args,
		BasePath: cfg.Models.BasePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	a := &App{
		cfg:      cfg,
		appState: state.New(),
		session:  camera.NewSession(),
		analyzer: proc,
		renderer: overlay.NewRenderer(),
		emitter:  emitter.NewMQTTEmitter(cfg),
	}

	a.registry = models.New(a.buildDescriptors(), a.appState.SetModelProgress)

	a.scheduler = detect.New(detect.Config{
		Period:   time.Duration(cfg.Detection.PeriodMS) * time.Millisecond,
		Analyzer: proc,
		Frames:   a.session,
		Renderer: a.renderer,
		State:    a.appState,
		Ready:    a.registry.Ready,
		Options: analyzer.Options{
			InputSize:      cfg.Detection.InputSize,
			ScoreThreshold: cfg.Detection.ScoreThreshold,
		},
		DisplayWidth:  cfg.Detection.DisplayWidth,
		DisplayHeight: cfg.Detection.DisplayHeight,
		OnResult:      a.emitDetection,
	})

	return a, nil
}

// buildDescriptors derives the ordered model descriptor list from the
// configured names. Order determines load sequence and progress.
func (a *App) buildDescriptors() []models.Descriptor {
	descriptors := make([]models.Descriptor, 0, len(a.cfg.Models.Names))
	for _, name := range a.cfg.Models.Names {
		name := name
		descriptors = append(descriptors, models.Descriptor{
			Name: name,
			Load: func(ctx context.Context) error {
				return a.analyzer.LoadModel(ctx, name)
			},
		})
	}
	return descriptors
}

// Run starts the service and blocks until the context is cancelled
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.isRunning {
		a.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	a.isRunning = true
	a.started = time.Now()
	a.runCtx = ctx
	a.mu.Unlock()

	slog.Info("moodcam service starting", "instance_id", a.cfg.InstanceID)

	// The overlay surface exists for the whole service lifetime
	a.renderer.Mount(a.cfg.Detection.DisplayWidth, a.cfg.Detection.DisplayHeight)

	if err := a.analyzer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start analyzer: %w", err)
	}

	if a.emitter.Enabled() {
		if err := a.emitter.Connect(); err != nil {
			// The pipeline is useful without a broker; keep running
			slog.Warn("mqtt connect failed, continuing without emitter", "error", err)
		}
	}

	// Initial load attempt; a failure is surfaced to the UI with a
	// retry action rather than killing the daemon
	if err := a.LoadModels(ctx); err != nil {
		slog.Error("initial model load failed, awaiting user retry", "error", err)
	}

	if a.cfg.Camera.AutoStart {
		if err := a.StartCamera(); err != nil {
			slog.Error("camera auto-start failed, awaiting user retry", "error", err)
		}
	}

	a.wg.Add(1)
	go a.statsLoop(ctx)

	if a.emitter.Enabled() {
		a.wg.Add(1)
		go a.healthLoop(ctx)
	}

	slog.Info("moodcam service running")

	<-ctx.Done()
	slog.Info("moodcam service run loop exiting")
	return nil
}

// LoadModels runs the full sequential load sequence. Invoked at
// startup and again on the user's explicit retry; every invocation
// restarts progress from zero.
func (a *App) LoadModels(ctx context.Context) error {
	a.loadMu.Lock()
	defer a.loadMu.Unlock()

	a.appState.SetModelsReady(false)

	// Check the asset layout up front when the base is a local
	// directory; remote bases are the analyzer's concern
	if info, err := os.Stat(a.cfg.Models.BasePath); err == nil && info.IsDir() {
		if err := models.VerifyLayout(a.cfg.Models.BasePath, a.registry.Descriptors()); err != nil {
			a.appState.SetError(err)
			return err
		}
	}

	if err := a.registry.LoadAll(ctx); err != nil {
		a.appState.SetError(err)
		return err
	}

	a.appState.SetModelsReady(true)
	a.appState.ClearErrorKind(types.ErrKindModelLoad)

	a.maybeBeginDetection()
	return nil
}

// StartCamera acquires the camera stream. On denial the session stays
// inactive, the error is surfaced, and retry is user-initiated.
func (a *App) StartCamera() error {
	a.mu.RLock()
	ctx := a.runCtx
	a.mu.RUnlock()
	if ctx == nil {
		return fmt.Errorf("service not running")
	}

	if a.session.Active() {
		return nil
	}

	src := a.buildSource()
	if err := a.session.Start(ctx, src); err != nil {
		a.appState.SetCameraActive(false)
		a.appState.SetError(err)
		return err
	}

	a.appState.SetCameraActive(true)
	a.appState.ClearErrorKind(types.ErrKindCameraAccess)

	a.maybeBeginDetection()
	return nil
}

// StopCamera tears down the session: the detection cycle is cancelled
// first, then capture stops and the device is released. Idempotent.
func (a *App) StopCamera() error {
	err := a.session.Stop()
	// The bound hook normally cancels the cycle; cancel directly too so
	// a cycle begun concurrently with this stop cannot outlive the
	// stream. Cancel is idempotent.
	a.scheduler.Cancel()
	a.appState.SetCameraActive(false)
	return err
}

// buildSource constructs the frame source for the configured device.
func (a *App) buildSource() camera.FrameSource {
	constraints := camera.Constraints{
		Device: a.cfg.Camera.Device,
		Width:  a.cfg.Camera.Width,
		Height: a.cfg.Camera.Height,
		FPS:    a.cfg.Camera.FPS,
	}
	if a.cfg.Camera.Device == "mock" {
		constraints.Device = ""
		return camera.NewMockSource(constraints)
	}
	return camera.NewV4L2Source(constraints)
}

// maybeBeginDetection starts the cycle only once the models are ready
// and the camera is active. Anything else is a refused no-op.
func (a *App) maybeBeginDetection() {
	if !a.registry.Ready() || !a.session.Active() || a.scheduler.Running() {
		return
	}

	a.mu.RLock()
	ctx := a.runCtx
	a.mu.RUnlock()

	// Bind before Begin so a stop racing this start always finds the
	// cancel hook; Cancel on a not-yet-running scheduler is a no-op
	a.session.BindCycle(a.scheduler.Cancel)
	if err := a.scheduler.Begin(ctx); err != nil {
		a.session.BindCycle(nil)
		slog.Warn("detection cycle not started", "error", err)
	}
}

// emitDetection forwards a published result to the MQTT emitter.
func (a *App) emitDetection(result *types.DetectionResult) {
	if !a.emitter.Enabled() {
		return
	}
	event := emitter.NewDetectionEvent(a.cfg.InstanceID, result)
	if err := a.emitter.PublishDetection(event); err != nil {
		slog.Debug("detection event not published", "error", err)
	}
}

// statsLoop logs pipeline stats periodically
func (a *App) statsLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			schedStats := a.scheduler.Stats()
			renders, renderErrors := a.renderer.Stats()
			slog.Debug("pipeline stats",
				"frames_seen", a.session.FramesSeen(),
				"ticks", schedStats.Ticks,
				"skipped_ticks", schedStats.SkippedTicks,
				"detections", schedStats.Detections,
				"failures", schedStats.Failures,
				"avg_latency_ms", schedStats.AvgLatencyMS,
				"renders", renders,
				"render_errors", renderErrors,
			)
		}
	}
}

// healthLoop publishes health over MQTT periodically
func (a *App) healthLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := a.healthPayload()
			if err != nil {
				slog.Error("failed to build health payload", "error", err)
				continue
			}
			if err := a.emitter.PublishHealth(payload); err != nil {
				slog.Debug("health not published", "error", err)
			}
		}
	}
}

// HTTPPort returns the configured HTTP port.
func (a *App) HTTPPort() string {
	return a.cfg.HTTP.Port
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (a *App) ShutdownTimeout() time.Duration {
	timeout := time.Duration(a.cfg.ShutdownTimeoutS) * time.Second
	if timeout == 0 {
		return 5 * time.Second
	}
	return timeout
}

// Shutdown performs graceful shutdown of all components
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if !a.isRunning {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	slog.Info("shutting down moodcam service")

	// Shutdown sequence (order is important):
	// 1. Cancel the detection cycle so no further render or state
	//    publish can occur
	a.scheduler.Cancel()

	// 2. Release the camera (cycle is already dead)
	if err := a.session.Stop(); err != nil {
		slog.Error("failed to stop camera session", "error", err)
	}

	// 3. Stop the HTTP surface
	a.stopHTTPServer(ctx)

	// 4. Stop the analyzer process
	if err := a.analyzer.Close(); err != nil {
		slog.Error("failed to stop analyzer", "error", err)
	}

	// 5. Wait for remaining goroutines
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown timeout waiting for goroutines")
	}

	// 6. Disconnect MQTT last
	if err := a.emitter.Disconnect(); err != nil {
		slog.Error("failed to disconnect mqtt", "error", err)
	}

	a.renderer.Unmount()

	a.mu.Lock()
	uptime := time.Since(a.started)
	a.isRunning = false
	a.mu.Unlock()

	slog.Info("moodcam service shutdown complete", "uptime", uptime)
	return nil
}
