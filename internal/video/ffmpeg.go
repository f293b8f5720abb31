package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	osfs "github.com/hack-pad/hackpadfs/os"
)

// FFmpeg runs the ffmpeg binary against a temporary directory workspace.
type FFmpeg struct {
	Binary string
	logger *slog.Logger

	mu         sync.Mutex
	loaded     bool
	dir        string
	ws         *Workspace
	cancel     context.CancelFunc
	onLog      func(LogEvent)
	onProgress func(Progress)
}

func NewFFmpeg(logger *slog.Logger) *FFmpeg {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{Binary: "ffmpeg", logger: logger}
}

// Load probes the binary and creates the workspace. Loading twice is a
// no-op.
func (e *FFmpeg) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}

	bin, err := exec.LookPath(e.Binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", e.Binary, err)
	}
	if out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-version").CombinedOutput(); err != nil {
		return fmt.Errorf("probe %s: %v, output: %s", bin, err, strings.TrimSpace(string(out)))
	}

	dir, err := os.MkdirTemp("", "scenereel_")
	if err != nil {
		return fmt.Errorf("create encoder workspace: %w", err)
	}
	fsys := osfs.NewFS()
	root, err := fsys.FromOSPath(dir)
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("map workspace path: %w", err)
	}
	ws, err := NewWorkspace(fsys, root)
	if err != nil {
		os.RemoveAll(dir)
		return err
	}

	e.Binary = bin
	e.dir = dir
	e.ws = ws
	e.loaded = true
	e.logger.Debug("encoder loaded", "binary", bin, "workspace", dir)
	return nil
}

func (e *FFmpeg) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *FFmpeg) workspace() (*Workspace, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	return e.ws, nil
}

func (e *FFmpeg) WriteFile(name string, data []byte) error {
	ws, err := e.workspace()
	if err != nil {
		return err
	}
	return ws.WriteFile(name, data)
}

func (e *FFmpeg) ReadFile(name string) ([]byte, error) {
	ws, err := e.workspace()
	if err != nil {
		return nil, err
	}
	return ws.ReadFile(name)
}

func (e *FFmpeg) DeleteFile(name string) error {
	ws, err := e.workspace()
	if err != nil {
		return err
	}
	return ws.DeleteFile(name)
}

func (e *FFmpeg) OnLog(fn func(LogEvent)) {
	e.mu.Lock()
	e.onLog = fn
	e.mu.Unlock()
}

func (e *FFmpeg) OnProgress(fn func(Progress)) {
	e.mu.Lock()
	e.onProgress = fn
	e.mu.Unlock()
}

// Exec runs ffmpeg in the workspace directory. Progress is read from
// -progress on stdout, diagnostics from stderr. A cancelled ctx, a
// Terminate or a signal kill all yield ErrAborted and unload the encoder.
func (e *FFmpeg) Exec(ctx context.Context, args []string) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	dir, bin := e.dir, e.Binary
	onLog, onProgress := e.onLog, e.onProgress
	e.mu.Unlock()
	defer cancel()

	full := append([]string{"-y", "-hide_banner", "-nostats", "-progress", "pipe:1"}, args...)
	cmd := exec.CommandContext(runCtx, bin, full...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe error: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if runCtx.Err() != nil {
			e.Terminate()
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	var wg sync.WaitGroup
	var tail lineTail
	wg.Add(2)
	go func() {
		defer wg.Done()
		readProgress(stdout, func(p Progress) {
			if onProgress != nil {
				onProgress(p)
			}
		})
	}()
	go func() {
		defer wg.Done()
		readLog(stderr, func(ev LogEvent) {
			tail.add(ev.Message)
			if onLog != nil {
				onLog(ev)
			}
		})
	}()
	wg.Wait()
	err = cmd.Wait()

	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if runCtx.Err() != nil || (errors.As(err, &exitErr) && exitErr.ExitCode() == -1) {
		e.Terminate()
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	return fmt.Errorf("ffmpeg error: %v, output: %s", err, tail.String())
}

// Terminate kills a running job, removes the workspace and unloads.
func (e *FFmpeg) Terminate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if !e.loaded {
		return
	}
	e.loaded = false
	e.ws = nil
	if err := os.RemoveAll(e.dir); err != nil {
		e.logger.Warn("cannot remove encoder workspace", "dir", e.dir, "err", err)
	}
	e.dir = ""
	e.logger.Debug("encoder terminated")
}

// lineTail keeps the last few stderr lines for error messages.
type lineTail struct {
	mu    sync.Mutex
	lines []string
}

const tailLines = 8

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > tailLines {
		t.lines = t.lines[len(t.lines)-tailLines:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// drain keeps a pipe from blocking the child when nobody reads it.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
