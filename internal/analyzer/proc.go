package analyzer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visiona/moodcam/internal/types"
)

const (
	// writeTimeout bounds stdin writes so a hung worker cannot stall
	// the caller indefinitely
	writeTimeout = 2 * time.Second
	// stopTimeout bounds graceful shutdown before the worker process
	// is force-killed
	stopTimeout = 2 * time.Second
)

// ProcConfig configures the analyzer worker subprocess.
type ProcConfig struct {
	// Command launches the worker (wrapper script activating its runtime)
	Command string
	Args    []string
	// BasePath is the model asset base passed with each load call
	BasePath string
}

// Proc bridges to the analyzer worker process: requests go down stdin,
// responses come back on stdout, both as 4-byte big-endian
// length-prefixed MsgPack. Worker stderr is relayed into slog.
//
// Callers serialize requests by contract (the registry serializes
// loads, the scheduler is single-flight); Proc additionally guards the
// write path with a mutex and matches responses by echoed sequence
// number so an abandoned request cannot poison the next one.
type Proc struct {
	cfg ProcConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	isActive atomic.Bool

	reqMu  sync.Mutex
	seq    atomic.Uint64
	respCh chan *wireResponse
}

// NewProc creates an analyzer bridge; Start spawns the process.
func NewProc(cfg ProcConfig) (*Proc, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("analyzer command is required")
	}
	return &Proc{
		cfg:    cfg,
		respCh: make(chan *wireResponse, 4),
	}, nil
}

// Start spawns the worker process and its reader goroutines.
func (p *Proc) Start(ctx context.Context) error {
	if p.isActive.Load() {
		return fmt.Errorf("analyzer already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.cmd = exec.CommandContext(p.ctx, p.cfg.Command, p.cfg.Args...)

	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	p.stdin = stdin

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	p.stdout = stdout

	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	p.stderr = stderr

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start analyzer process: %w", err)
	}

	p.isActive.Store(true)

	p.wg.Add(3)
	go p.readResponses()
	go p.logStderr()
	go p.waitProcess()

	slog.Info("analyzer process started",
		"command", p.cfg.Command,
		"pid", p.cmd.Process.Pid,
	)
	return nil
}

// LoadModel asks the worker to load one named model from the asset
// base. Consumed sequentially by the model registry.
func (p *Proc) LoadModel(ctx context.Context, name string) error {
	resp, err := p.call(ctx, &wireRequest{
		Op:    "load",
		Model: name,
		Base:  p.cfg.BasePath,
	})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("analyzer rejected model %q: %s", name, resp.Error)
	}
	return nil
}

// Detect runs the full analysis against one frame.
func (p *Proc) Detect(ctx context.Context, frame *types.Frame, opts Options) (*types.DetectionResult, error) {
	resp, err := p.call(ctx, &wireRequest{
		Op:          "detect",
		FrameData:   frame.Data,
		Width:       frame.Width,
		Height:      frame.Height,
		PixelFormat: frame.PixelFormat,
		FrameSeq:    frame.Seq,
		Options: &wireOptions{
			InputSize:      opts.InputSize,
			ScoreThreshold: opts.ScoreThreshold,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("analyzer error: %s", resp.Error)
	}

	result := resp.toResult(frame.Seq)
	result.Timestamp = time.Now()
	return result, nil
}

// call performs one request/response exchange. Responses are matched
// by sequence number; stale responses from abandoned requests are
// discarded.
func (p *Proc) call(ctx context.Context, req *wireRequest) (*wireResponse, error) {
	if !p.isActive.Load() {
		return nil, fmt.Errorf("analyzer not running")
	}

	p.reqMu.Lock()
	defer p.reqMu.Unlock()

	req.Seq = p.seq.Add(1)
	payload, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	if err := p.writeWithTimeout(payload); err != nil {
		return nil, err
	}

	for {
		select {
		case resp, ok := <-p.respCh:
			if !ok {
				return nil, fmt.Errorf("analyzer stream closed")
			}
			if resp.Seq != req.Seq {
				slog.Debug("discarding stale analyzer response",
					"got_seq", resp.Seq,
					"want_seq", req.Seq,
				)
				continue
			}
			return resp, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.ctx.Done():
			return nil, fmt.Errorf("analyzer shutting down")
		}
	}
}

// writeWithTimeout writes one framed message, bounding the write so a
// hung worker surfaces as an error instead of a stall.
func (p *Proc) writeWithTimeout(payload []byte) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- writeFrame(p.stdin, payload)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to write to analyzer: %w", err)
		}
		return nil
	case <-time.After(writeTimeout):
		return fmt.Errorf("analyzer stdin write timeout (worker may be hung)")
	case <-p.ctx.Done():
		return fmt.Errorf("analyzer context cancelled during write")
	}
}

// readResponses reads framed responses from worker stdout.
func (p *Proc) readResponses() {
	defer p.wg.Done()

	for {
		payload, err := readFrame(p.stdout)
		if err != nil {
			if err == io.EOF {
				slog.Debug("analyzer stdout closed")
			} else {
				slog.Error("failed to read analyzer response", "error", err)
			}
			close(p.respCh)
			return
		}

		resp, err := decodeResponse(payload)
		if err != nil {
			slog.Error("failed to decode analyzer response",
				"error", err,
				"payload_length", len(payload),
				"action", "check analyzer logs in stderr",
			)
			continue
		}

		select {
		case p.respCh <- resp:
		case <-p.ctx.Done():
			return
		}
	}
}

// logStderr relays worker stderr into slog, mapping log levels.
func (p *Proc) logStderr() {
	defer p.wg.Done()

	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]") || strings.Contains(line, "[CRITICAL]"):
			slog.Error("analyzer worker error", "log", line)
		case strings.Contains(line, "[WARNING]") || strings.Contains(line, "[WARN]"):
			slog.Warn("analyzer worker warning", "log", line)
		default:
			slog.Debug("analyzer worker log", "log", line)
		}
	}
}

// waitProcess reaps the worker process so it never becomes a zombie.
func (p *Proc) waitProcess() {
	defer p.wg.Done()

	if p.cmd == nil || p.cmd.Process == nil {
		return
	}

	err := p.cmd.Wait()
	if err != nil {
		select {
		case <-p.ctx.Done():
			slog.Debug("analyzer process exited (shutdown)", "pid", p.cmd.Process.Pid)
		default:
			slog.Error("analyzer process exited unexpectedly",
				"pid", p.cmd.Process.Pid,
				"error", err,
			)
		}
		return
	}
	slog.Info("analyzer process exited cleanly", "pid", p.cmd.Process.Pid)
}

// Close stops the worker, force-killing it if graceful shutdown
// exceeds the stop timeout. Idempotent.
func (p *Proc) Close() error {
	if !p.isActive.Load() {
		return nil
	}
	p.isActive.Store(false)

	slog.Info("stopping analyzer process")

	if p.cancel != nil {
		p.cancel()
	}
	if p.stdin != nil {
		p.stdin.Close()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		slog.Warn("analyzer stop timeout, force killing process")
		if p.cmd != nil && p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil {
				slog.Error("failed to kill analyzer process", "error", err)
			}
		}
	}

	slog.Info("analyzer process stopped")
	return nil
}
