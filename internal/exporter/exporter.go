// Package exporter renders a timeline offline, frame by frame, and encodes
// the frames into a video file.
//
// A run walks Idle → Initializing → Sampling → Encoding → Finalizing →
// Cleanup → Done and always returns a Result; failures are reported, not
// panicked. Every frame is produced by one Executor job that sets the
// timeline position, renders and captures, so the captured pixels always
// match the sampled position.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ivlev/scenereel/internal/config"
	"github.com/ivlev/scenereel/internal/loop"
	"github.com/ivlev/scenereel/internal/raster"
	"github.com/ivlev/scenereel/internal/scene"
	"github.com/ivlev/scenereel/internal/system"
	"github.com/ivlev/scenereel/internal/timeline"
	"github.com/ivlev/scenereel/internal/video"
)

// OutputFile is the encoder's output name inside its workspace.
const OutputFile = "output.mp4"

// TotalFrames is floor(duration·fps). Non-positive inputs give 0.
func TotalFrames(duration float64, fps int) int {
	if fps <= 0 || duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0
	}
	return int(math.Floor(duration * float64(fps)))
}

// PadWidth is the digit count of total; frame indices are padded to it so
// names sort in capture order.
func PadWidth(total int) int {
	if total < 1 {
		return 1
	}
	return len(strconv.Itoa(total))
}

// FrameName returns e.g. frame007.jpeg for i=7, width=3.
func FrameName(i, width int, ext string) string {
	return fmt.Sprintf("frame%0*d.%s", width, i, ext)
}

// FramePattern is the encoder input pattern matching FrameName.
func FramePattern(width int, ext string) string {
	return fmt.Sprintf("frame%%0%dd.%s", width, ext)
}

// Target is the scene an exporter samples.
type Target struct {
	State    *scene.State
	Sequence *timeline.Sequence
	// Executor runs jobs on the goroutine that owns State and Sequence.
	Executor loop.Executor
}

type Exporter struct {
	Config *config.Config
	Target Target

	Encoder video.Encoder
	Saver   Saver

	// Build and BenchmarkLog feed the performance report.
	Build        string
	BenchmarkLog string

	logger  *slog.Logger
	running atomic.Bool
	stage   atomic.Int32
	onStage func(Stage)
}

func New(cfg *config.Config, target Target, enc video.Encoder, saver Saver, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if target.Executor == nil {
		target.Executor = loop.Inline{}
	}
	return &Exporter{
		Config:       cfg,
		Target:       target,
		Encoder:      enc,
		Saver:        saver,
		BenchmarkLog: "benchmark.log",
		logger:       logger,
	}
}

// Stage reports the current stage.
func (x *Exporter) Stage() Stage { return Stage(x.stage.Load()) }

// OnStage registers fn to observe stage transitions. Set it before Run.
func (x *Exporter) OnStage(fn func(Stage)) { x.onStage = fn }

func (x *Exporter) setStage(s Stage) {
	x.stage.Store(int32(s))
	x.logger.Debug("export stage", "stage", s.String())
	if x.onStage != nil {
		x.onStage(s)
	}
}

// Running reports whether a run is in flight.
func (x *Exporter) Running() bool { return x.running.Load() }

// Run performs one export. A call made while another is in flight returns
// Busy at once and touches nothing.
func (x *Exporter) Run(ctx context.Context) (res Result) {
	if !x.running.CompareAndSwap(false, true) {
		return Result{Kind: Busy, Err: ErrBusy}
	}
	defer x.running.Store(false)
	defer x.setStage(Idle)
	defer func() {
		if r := recover(); r != nil {
			res = Result{Kind: Failed, Frames: res.Frames, Err: fmt.Errorf("export panicked: %v", r)}
			x.logger.Error("export failed", "err", res.Err)
		}
	}()

	start := time.Now()
	cfg := x.Config

	// 1. Initializing
	x.setStage(Initializing)
	if err := x.Encoder.Load(ctx); err != nil {
		x.logger.Warn("encoder load failed", "err", err)
	}
	if !x.Encoder.Loaded() {
		x.logger.Error("encoder not ready, nothing exported")
		return Result{Kind: EncoderNotReady, Err: video.ErrNotLoaded}
	}
	x.Encoder.OnLog(func(ev video.LogEvent) {
		x.logger.Debug("encoder", "type", ev.Type, "msg", ev.Message)
	})
	x.Encoder.OnProgress(func(p video.Progress) {
		x.logger.Debug("encoder progress", "frame", p.Frame, "fps", p.FPS, "time", p.OutTime, "speed", p.Speed)
	})

	// 2-3. Sampling
	x.setStage(Sampling)
	samplingStart := time.Now()
	restore, duration, err := x.prepare(ctx)
	if restore != nil {
		defer restore()
	}
	if err != nil {
		return x.fail(err, 0)
	}
	total := TotalFrames(duration, cfg.FPS)
	dw, dh := cfg.ExportSize()
	x.logger.Info("export started",
		"duration", duration, "fps", cfg.FPS, "frames", total,
		"size", fmt.Sprintf("%dx%d", dw, dh), "codec", cfg.VideoEncoder)
	if total == 0 {
		return x.fail(ErrNoFrames, 0)
	}
	written, err := x.sample(ctx, total, dw, dh)
	if err != nil {
		x.setStage(Cleanup)
		x.cleanup(written)
		return x.fail(err, len(written))
	}
	samplingTime := time.Since(samplingStart)

	// 4-6. Encoding, Finalizing, Cleanup
	encodeStart := time.Now()
	data, res := x.encode(ctx, written, PadWidth(total))
	encodeTime := time.Since(encodeStart)
	if res.Kind != Success {
		return res
	}

	// 7. Done
	x.setStage(Done)
	path, err := x.Saver.Save(cfg.OutputName, data)
	if err != nil {
		return x.fail(fmt.Errorf("save artifact: %w", err), total)
	}
	x.logger.Info("export finished", "path", path, "frames", total, "bytes", len(data), "elapsed", time.Since(start).Round(time.Millisecond))

	if cfg.ShowStats {
		x.report(system.Report{
			Build:       x.Build,
			Frames:      total,
			Sampling:    samplingTime,
			Encoding:    encodeTime,
			Total:       time.Since(start),
			ProjectPath: cfg.ProjectState,
		})
	}
	return Result{Kind: Success, Data: data, Path: path, Frames: total}
}

// prepare pauses playback and rewinds to 0. restore puts the playhead and
// play state back; it is non-nil whenever the rewind happened.
func (x *Exporter) prepare(ctx context.Context) (restore func(), duration float64, err error) {
	seq := x.Target.Sequence
	var (
		wasPlaying bool
		position   float64
	)
	err = x.Target.Executor.Do(ctx, func() {
		duration = seq.Length()
		wasPlaying = seq.Playing()
		position = seq.Position()
		seq.Pause()
		seq.SetPosition(0)
	})
	if err != nil {
		return nil, 0, err
	}
	restore = func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := x.Target.Executor.Do(rctx, func() {
			seq.SetPosition(position)
			if wasPlaying {
				seq.Play()
			}
		})
		if err != nil && !errors.Is(err, loop.ErrStopped) {
			x.logger.Warn("cannot restore playback", "err", err)
		}
	}
	return restore, duration, nil
}

// sample captures frames 0..total-1 at i/fps on an offscreen renderer of
// dw x dh device pixels and writes each one into the encoder workspace as
// soon as it is captured. It returns the names written so far, in capture
// order, even on error.
func (x *Exporter) sample(ctx context.Context, total, dw, dh int) ([]string, error) {
	cfg := x.Config
	fps := float64(cfg.FPS)
	ext := cfg.FrameExt()
	width := PadWidth(total)
	rend := raster.New(dw, dh, 1)
	state := x.Target.State

	written := make([]string, 0, total)
	for i := 0; i < total; i++ {
		t := float64(i) / fps
		var (
			data []byte
			cerr error
		)
		err := x.Target.Executor.Do(ctx, func() {
			x.Target.Sequence.SetPosition(t)
			cam := state.Camera
			aspect := cam.Aspect
			state.Resize(dw, dh)
			rend.Render(state)
			cam.Aspect = aspect
			cam.UpdateProjectionMatrix()
			data, cerr = rend.Capture(ext, cfg.JPEGQuality)
		})
		if err != nil {
			return written, err
		}
		if cerr != nil {
			return written, fmt.Errorf("capture frame %d: %w", i, cerr)
		}
		name := FrameName(i, width, ext)
		if err := x.Encoder.WriteFile(name, data); err != nil {
			return written, fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, name)
		if (i+1)%100 == 0 || i+1 == total {
			x.logger.Info("frames sampled", "done", i+1, "total", total)
		}
	}
	return written, nil
}

// encode runs the encoder over the frames already in the workspace and
// reads the output back. The frames and the output are deleted before it
// returns.
func (x *Exporter) encode(ctx context.Context, frames []string, width int) (data []byte, res Result) {
	cfg := x.Config
	enc := x.Encoder
	written := append(frames[:len(frames):len(frames)], OutputFile)
	defer func() {
		x.setStage(Cleanup)
		x.cleanup(written)
	}()

	x.setStage(Encoding)
	args := video.BuildArgs(video.Params{
		FPS:     cfg.FPS,
		Pattern: FramePattern(width, cfg.FrameExt()),
		Codec:   cfg.VideoEncoder,
		Quality: cfg.Quality,
		Output:  OutputFile,
	})
	x.logger.Debug("running encoder", "args", args)
	if err := enc.Exec(ctx, args); err != nil {
		return nil, x.fail(err, len(frames))
	}

	x.setStage(Finalizing)
	if !enc.Loaded() {
		x.logger.Error("encoder unloaded before output could be read")
		return nil, Result{Kind: EncoderNotReady, Frames: len(frames), Err: video.ErrNotLoaded}
	}
	data, err := enc.ReadFile(OutputFile)
	if err != nil {
		return nil, x.fail(fmt.Errorf("read %s: %w", OutputFile, err), len(frames))
	}
	return data, Result{Kind: Success, Frames: len(frames)}
}

func (x *Exporter) cleanup(names []string) {
	for _, name := range names {
		err := x.Encoder.DeleteFile(name)
		switch {
		case err == nil:
		case errors.Is(err, video.ErrNotLoaded):
			// the workspace went away with the encoder
			return
		default:
			x.logger.Warn("cannot delete workspace file", "file", name, "err", err)
		}
	}
	x.logger.Debug("workspace cleaned", "files", len(names))
}

// fail classifies err into a Result and logs it.
func (x *Exporter) fail(err error, frames int) Result {
	kind := Failed
	switch {
	case errors.Is(err, video.ErrAborted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = EncodeAborted
	case errors.Is(err, video.ErrNotLoaded):
		kind = EncoderNotReady
	}
	x.logger.Error("export failed", "kind", kind.String(), "err", err)
	return Result{Kind: kind, Frames: frames, Err: err}
}

func (x *Exporter) report(r system.Report) {
	r.Stats = system.Snapshot(200 * time.Millisecond)
	fmt.Print(r.String())
	if x.BenchmarkLog == "" {
		return
	}
	if err := system.AppendBenchmark(x.BenchmarkLog, r); err != nil {
		x.logger.Warn("cannot write benchmark log", "path", x.BenchmarkLog, "err", err)
	}
}
