// Package models implements the analysis-model load sequence.
//
// Models load sequentially, in declaration order, because progress
// reporting is count-based (100*k/N after the k-th success) and must be
// monotonic and deterministic. Loading halts at the first failure and
// reports that model's name; a later LoadAll restarts from zero, there
// is no partial resume.
package models

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/visiona/moodcam/internal/types"
)

// Phase is the registry's position in its load state sequence.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseLoading
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Descriptor names one loadable model and the capability call that
// loads it. The descriptor list is immutable and ordered; order
// determines both load sequence and progress increments.
type Descriptor struct {
	Name string
	Load func(ctx context.Context) error
}

// ProgressFunc observes each progress step: loaded models so far, the
// total count, and the derived percentage.
type ProgressFunc func(loaded, total int, percent float64)

// Registry drives the sequential model load sequence
type Registry struct {
	descriptors []Descriptor
	onProgress  ProgressFunc

	mu          sync.Mutex
	phase       Phase
	loaded      int
	failedModel string
	loading     bool
}

// New creates a registry over an ordered descriptor list. onProgress
// may be nil.
func New(descriptors []Descriptor, onProgress ProgressFunc) *Registry {
	return &Registry{
		descriptors: descriptors,
		onProgress:  onProgress,
	}
}

// LoadAll loads every model sequentially, in list order. On the first
// failure loading halts immediately, remaining models are never
// attempted, and the returned error names the failing model. Calling
// LoadAll again re-derives state from scratch. It is not safe to call
// concurrently with itself; overlapping invocations are refused.
func (r *Registry) LoadAll(ctx context.Context) error {
	r.mu.Lock()
	if r.loading {
		r.mu.Unlock()
		return fmt.Errorf("model load already in progress")
	}
	r.loading = true
	r.phase = PhaseLoading
	r.loaded = 0
	r.failedModel = ""
	total := len(r.descriptors)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.loading = false
		r.mu.Unlock()
	}()

	r.reportProgress(0, total)

	started := time.Now()
	for i, desc := range r.descriptors {
		slog.Info("loading model",
			"model", desc.Name,
			"index", i+1,
			"total", total,
		)

		if err := desc.Load(ctx); err != nil {
			r.mu.Lock()
			r.phase = PhaseFailed
			r.failedModel = desc.Name
			r.mu.Unlock()

			slog.Error("model load failed, halting sequence",
				"model", desc.Name,
				"loaded", i,
				"total", total,
				"error", err,
			)
			return &types.ModelLoadError{Model: desc.Name, Err: err}
		}

		r.mu.Lock()
		r.loaded = i + 1
		r.mu.Unlock()
		r.reportProgress(i+1, total)
	}

	r.mu.Lock()
	r.phase = PhaseReady
	r.mu.Unlock()

	slog.Info("all models loaded",
		"count", total,
		"duration", time.Since(started),
	)
	return nil
}

func (r *Registry) reportProgress(loaded, total int) {
	if r.onProgress == nil {
		return
	}
	percent := 0.0
	if total > 0 {
		percent = 100 * float64(loaded) / float64(total)
	}
	r.onProgress(loaded, total, percent)
}

// Descriptors returns the ordered descriptor list.
func (r *Registry) Descriptors() []Descriptor {
	return r.descriptors
}

// Ready reports whether every model loaded successfully.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase == PhaseReady
}

// Phase returns the current load phase.
func (r *Registry) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Progress returns the loaded count, total count, and percentage.
func (r *Registry) Progress() (loaded, total int, percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total = len(r.descriptors)
	loaded = r.loaded
	if total > 0 {
		percent = 100 * float64(loaded) / float64(total)
	}
	return loaded, total, percent
}

// FailedModel returns the name of the model that halted loading, or ""
// when no failure is recorded.
func (r *Registry) FailedModel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failedModel
}

// VerifyLayout checks the on-disk model asset layout: one weights
// manifest per named model under dir. It only applies when the assets
// are served from a local directory; remote base URIs are the
// analyzer's concern.
func VerifyLayout(dir string, descriptors []Descriptor) error {
	for _, desc := range descriptors {
		manifest := filepath.Join(dir, desc.Name+"_model-weights_manifest.json")
		if _, err := os.Stat(manifest); err != nil {
			return fmt.Errorf("model %q missing weights manifest %s: %w", desc.Name, manifest, err)
		}
	}
	return nil
}
