package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scenereel/internal/config"
	"github.com/ivlev/scenereel/internal/director"
	"github.com/ivlev/scenereel/internal/exporter"
	"github.com/ivlev/scenereel/internal/loop"
	"github.com/ivlev/scenereel/internal/preview"
	"github.com/ivlev/scenereel/internal/raster"
	"github.com/ivlev/scenereel/internal/system"
	"github.com/ivlev/scenereel/internal/timeline"
	"github.com/ivlev/scenereel/internal/video"
)

// buildVersion is set with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

const projectDir = "input/project"

const usage = `usage: scenereel <export|live|tour> [flags]

  export  render the timeline offline and encode it to a video file
  live    play the scene in a browser preview with export on demand
  tour    write a project state with a camera tour over the scene
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	mode := os.Args[1]
	if mode != "export" && mode != "live" && mode != "tour" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	def := config.Default()
	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	configPtr := fs.String("config", "", "YAML config file (defaults apply to missing fields)")
	variantPtr := fs.String("variant", def.Variant, "scene variant: knot, planes")
	projectPtr := fs.String("project", "", "project state JSON (default: newest file in "+projectDir+"/)")
	fpsPtr := fs.Int("fps", def.FPS, "export frame rate")
	widthPtr := fs.Int("width", def.Width, "width")
	heightPtr := fs.Int("height", def.Height, "height")
	dprPtr := fs.Float64("dpr", def.PixelRatio, "device pixel ratio, capped at 2")
	outputPtr := fs.String("output", def.OutputDir, "directory the video is saved to")
	formatPtr := fs.String("format", def.Format, "frame capture format: jpeg, png")
	qualityPtr := fs.Int("quality", 0, "video quality (0 = auto; x264 CRF, NVENC CQ, VideoToolbox bitrate = Q*100k)")
	encoderPtr := fs.String("encoder", def.VideoEncoder, "video codec, or auto to probe for hardware H.264")
	addrPtr := fs.String("addr", def.PreviewAddr, "live preview listen address")
	watchPtr := fs.Bool("watch", def.Watch, "reload the project state when it changes (live)")
	statsPtr := fs.Bool("stats", false, "print a performance report and append to benchmark.log")
	durationPtr := fs.Float64("duration", 0, "tour length in seconds (0 = longest dwell per stop)")
	verbosePtr := fs.Bool("v", false, "debug logging")
	_ = fs.Parse(os.Args[2:])

	level := slog.LevelInfo
	if *verbosePtr {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))
	slog.SetDefault(logger)

	system.InitResourceLimits(logger)
	for _, d := range []string{projectDir, "output"} {
		_ = os.MkdirAll(d, 0o755)
	}

	cfg := def
	baseDir := ""
	if *configPtr != "" {
		var err error
		cfg, err = config.Load(*configPtr)
		if err != nil {
			logger.Error("config", "err", err)
			os.Exit(1)
		}
		baseDir = filepath.Dir(*configPtr)
	}

	// Flags given on the command line win over the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "variant":
			cfg.Variant = *variantPtr
		case "project":
			cfg.ProjectState = *projectPtr
		case "fps":
			cfg.FPS = *fpsPtr
		case "width":
			cfg.Width = *widthPtr
		case "height":
			cfg.Height = *heightPtr
		case "dpr":
			cfg.PixelRatio = *dprPtr
		case "output":
			cfg.OutputDir = *outputPtr
		case "format":
			cfg.Format = *formatPtr
		case "quality":
			cfg.Quality = *qualityPtr
		case "encoder":
			cfg.VideoEncoder = *encoderPtr
		case "addr":
			cfg.PreviewAddr = *addrPtr
		case "watch":
			cfg.Watch = *watchPtr
		case "stats":
			cfg.ShowStats = *statsPtr
		}
	})
	if cfg.ProjectState == "" {
		if latest, err := system.FindLatestProjectState(projectDir); err == nil {
			cfg.ProjectState = latest
			logger.Info("project state selected", "path", latest)
		}
	}

	if cfg.VideoEncoder == "auto" {
		cfg.VideoEncoder = system.GetBestH264Encoder()
		if cfg.VideoEncoder != "libx264" {
			logger.Info("hardware encoder detected", "encoder", cfg.VideoEncoder)
		}
		if !isSet(fs, "quality") {
			cfg.Quality = system.DefaultQuality(cfg.VideoEncoder)
		}
	}
	if isSet(fs, "quality") && cfg.Quality == 0 {
		cfg.Quality = system.DefaultQuality(cfg.VideoEncoder)
	}

	if err := expandPlanes(cfg, baseDir); err != nil {
		logger.Error("planes", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch mode {
	case "export":
		err = runExport(ctx, cfg, baseDir, logger)
	case "live":
		err = runLive(ctx, cfg, baseDir, logger)
	case "tour":
		err = runTour(ctx, cfg, baseDir, *durationPtr, logger)
	}
	if err != nil {
		logger.Error(mode+" failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func newExporter(cfg *config.Config, s *session, exec loop.Executor, logger *slog.Logger) *exporter.Exporter {
	x := exporter.New(cfg, exporter.Target{
		State:    s.state,
		Sequence: s.sheet.Sequence(),
		Executor: exec,
	}, video.NewFFmpeg(logger), exporter.FileSaver{Dir: cfg.OutputDir}, logger)
	x.Build = buildVersion
	return x
}

func runExport(ctx context.Context, cfg *config.Config, baseDir string, logger *slog.Logger) error {
	s, err := newSession(ctx, cfg, baseDir, logger)
	if err != nil {
		return err
	}
	defer s.bindings.Close()

	x := newExporter(cfg, s, loop.Inline{}, logger)
	defer x.Encoder.Terminate()

	res := x.Run(ctx)
	if !res.OK() {
		return fmt.Errorf("%s: %w", res.Kind, res.Err)
	}
	logger.Info("video saved", "path", res.Path, "frames", res.Frames)
	return nil
}

func runLive(ctx context.Context, cfg *config.Config, baseDir string, logger *slog.Logger) error {
	s, err := newSession(ctx, cfg, baseDir, logger)
	if err != nil {
		return err
	}
	defer s.bindings.Close()

	renderer := raster.New(cfg.Width, cfg.Height, cfg.EffectivePixelRatio())
	seq := s.sheet.Sequence()
	seq.Play()

	var srv *preview.Server
	lp := loop.New(s.state, renderer, seq, loop.Options{
		FPS:    cfg.FPS,
		Logger: logger,
		Presenter: func(r *raster.Renderer) {
			srv.Presenter()(r)
		},
	})
	x := newExporter(cfg, s, lp, logger)
	defer x.Encoder.Terminate()

	srv = preview.New(preview.Options{
		Resize:      lp.Resize,
		Export:      x.Run,
		JPEGQuality: cfg.JPEGQuality,
		Logger:      logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	reload := &deferredReload{
		exec:  lp,
		busy:  func() bool { return x.Stage() != exporter.Idle },
		apply: s.project.Reload,
	}
	reported := func(err error) {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, loop.ErrStopped) {
			logger.Warn("reload not applied", "err", err)
		}
	}
	x.OnStage(func(st exporter.Stage) {
		if st == exporter.Idle && reload.Pending() {
			logger.Info("applying project state held back during export")
			reported(reload.Flush(ctx))
		}
	})

	g.Go(func() error { return lp.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.PreviewAddr) })
	if cfg.Watch && cfg.ProjectState != "" {
		g.Go(func() error {
			return timeline.Watch(ctx, cfg.ProjectState, func(st *timeline.State) {
				reported(reload.Reload(ctx, st))
			}, logger)
		})
	}

	start := time.Now()
	err = g.Wait()
	logger.Info("live session ended", "frames", lp.Drawn(), "elapsed", time.Since(start).Round(time.Second))
	return err
}

func runTour(ctx context.Context, cfg *config.Config, baseDir string, duration float64, logger *slog.Logger) error {
	// The tour replaces the camera animation, so start from the defaults.
	c := *cfg
	c.ProjectState = ""
	s, err := newSession(ctx, &c, baseDir, logger)
	if err != nil {
		return err
	}
	defer s.bindings.Close()

	plan, err := director.New(s.state.Camera).Plan(director.StopsFromScene(s.state), duration)
	if err != nil {
		return err
	}
	st, err := plan.State(cfg.SheetName)
	if err != nil {
		return err
	}
	path := director.StatePath(projectDir, time.Now())
	if err := timeline.WriteStateFile(path, st); err != nil {
		return err
	}
	logger.Info("tour written", "path", path, "shots", len(plan.Shots), "length", plan.Length, "dwell", plan.Dwell)
	return nil
}
