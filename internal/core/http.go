package core

import (
	"context"
	"encoding/json"
	"image/png"
	"log/slog"
	"net/http"
	"time"
)

// StateResponse is the GET /state payload: the AppState snapshot plus
// pipeline detail for the stats panel.
type StateResponse struct {
	Snapshot interface{} `json:"snapshot"`
	Pipeline interface{} `json:"pipeline"`
}

// healthStatus derives the overall status from component states:
// healthy when the pipeline is fully up, degraded when the process
// serves but models, camera, or an active error keep detection down.
func (a *App) healthStatus() string {
	snap := a.appState.Snapshot()
	if snap.ModelsReady && snap.CameraActive && snap.ActiveError == nil {
		return "healthy"
	}
	return "degraded"
}

// healthPayload builds the periodic MQTT health message.
func (a *App) healthPayload() ([]byte, error) {
	a.mu.RLock()
	uptime := time.Since(a.started).Seconds()
	a.mu.RUnlock()

	snap := a.appState.Snapshot()
	return json.Marshal(map[string]interface{}{
		"status":        a.healthStatus(),
		"instance_id":   a.cfg.InstanceID,
		"uptime_s":      int64(uptime),
		"models_ready":  snap.ModelsReady,
		"camera_active": snap.CameraActive,
		"scheduler":     a.scheduler.Stats(),
	})
}

// StartHTTPServer starts the UI-facing HTTP surface (non-blocking).
func (a *App) StartHTTPServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/state", a.handleState)
	mux.HandleFunc("/overlay", a.handleOverlay)
	mux.HandleFunc("/camera/start", a.handleCameraStart)
	mux.HandleFunc("/camera/stop", a.handleCameraStop)
	mux.HandleFunc("/models/load", a.handleModelsLoad)

	a.mu.Lock()
	a.httpSrv = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	srv := a.httpSrv
	a.mu.Unlock()

	go func() {
		slog.Info("http server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
		}
	}()
	return nil
}

func (a *App) stopHTTPServer(ctx context.Context) {
	a.mu.Lock()
	srv := a.httpSrv
	a.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
}

// handleHealth implements the liveness contract: 200 whenever the
// process is serving, with the derived component status in the body.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := a.appState.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        a.healthStatus(),
		"models_ready":  snap.ModelsReady,
		"camera_active": snap.CameraActive,
	})
}

// handleState serves the aggregate snapshot the UI observes.
func (a *App) handleState(w http.ResponseWriter, r *http.Request) {
	renders, renderErrors := a.renderer.Stats()
	resp := StateResponse{
		Snapshot: a.appState.Snapshot(),
		Pipeline: map[string]interface{}{
			"scheduler":     a.scheduler.Stats(),
			"frames_seen":   a.session.FramesSeen(),
			"renders":       renders,
			"render_errors": renderErrors,
			"load_phase":    a.registry.Phase().String(),
			"failed_model":  a.registry.FailedModel(),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleOverlay serves the current overlay surface as PNG.
func (a *App) handleOverlay(w http.ResponseWriter, r *http.Request) {
	surface := a.renderer.Surface()
	if surface == nil {
		http.Error(w, "overlay surface not mounted", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, surface); err != nil {
		slog.Error("failed to encode overlay", "error", err)
	}
}

// handleCameraStart is the user's explicit start/retry action.
func (a *App) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.StartCamera(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a.appState.Snapshot())
}

func (a *App) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.StopCamera(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a.appState.Snapshot())
}

// handleModelsLoad is the user's explicit retry of the whole load
// sequence. The daemon never retries on its own.
func (a *App) handleModelsLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.LoadModels(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a.appState.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
