package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/ivlev/scenereel/internal/binding"
	"github.com/ivlev/scenereel/internal/config"
	"github.com/ivlev/scenereel/internal/loop"
	"github.com/ivlev/scenereel/internal/raster"
	"github.com/ivlev/scenereel/internal/scene"
	"github.com/ivlev/scenereel/internal/timeline"
	"github.com/ivlev/scenereel/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder keeps its workspace in memory and records every call.
type fakeEncoder struct {
	t        *testing.T
	ws       *video.Workspace
	loadable bool
	loaded   bool

	writes  []string
	deletes []string
	args    []string
	atExec  []string

	execErr     error
	unloadAfter bool
	onExec      func()
}

func newFake(t *testing.T) *fakeEncoder {
	t.Helper()
	return &fakeEncoder{t: t, loadable: true, ws: newWS(t)}
}

func newWS(t *testing.T) *video.Workspace {
	t.Helper()
	fsys, err := mem.NewFS()
	require.NoError(t, err)
	ws, err := video.NewWorkspace(fsys, "ffmpeg")
	require.NoError(t, err)
	return ws
}

func (f *fakeEncoder) Load(context.Context) error {
	if !f.loadable {
		return errors.New("wasm core unavailable")
	}
	f.loaded = true
	return nil
}

func (f *fakeEncoder) Loaded() bool { return f.loaded }

func (f *fakeEncoder) WriteFile(name string, data []byte) error {
	if !f.loaded {
		return video.ErrNotLoaded
	}
	f.writes = append(f.writes, name)
	return f.ws.WriteFile(name, data)
}

func (f *fakeEncoder) ReadFile(name string) ([]byte, error) {
	if !f.loaded {
		return nil, video.ErrNotLoaded
	}
	return f.ws.ReadFile(name)
}

func (f *fakeEncoder) DeleteFile(name string) error {
	if !f.loaded {
		return video.ErrNotLoaded
	}
	f.deletes = append(f.deletes, name)
	return f.ws.DeleteFile(name)
}

func (f *fakeEncoder) Exec(ctx context.Context, args []string) error {
	f.args = args
	files, err := f.ws.Files()
	require.NoError(f.t, err)
	f.atExec = files
	if f.onExec != nil {
		f.onExec()
	}
	if f.execErr != nil {
		if errors.Is(f.execErr, video.ErrAborted) {
			f.Terminate()
		}
		return f.execErr
	}
	if err := f.ws.WriteFile(args[len(args)-1], []byte("mp4:"+fmt.Sprint(len(files)))); err != nil {
		return err
	}
	if f.unloadAfter {
		f.Terminate()
	}
	return nil
}

func (f *fakeEncoder) OnLog(func(video.LogEvent))      {}
func (f *fakeEncoder) OnProgress(func(video.Progress)) {}

// Terminate drops the workspace the way the real encoder removes its dir.
func (f *fakeEncoder) Terminate() {
	f.loaded = false
	files, _ := f.ws.Files()
	for _, name := range files {
		_ = f.ws.DeleteFile(name)
	}
}

func (f *fakeEncoder) remaining(t *testing.T) []string {
	t.Helper()
	files, err := f.ws.Files()
	require.NoError(t, err)
	return files
}

// recordingExecutor notes the playhead after each job.
type recordingExecutor struct {
	seq       *timeline.Sequence
	positions []float64
}

func (r *recordingExecutor) Do(ctx context.Context, fn func()) error {
	if err := (loop.Inline{}).Do(ctx, fn); err != nil {
		return err
	}
	r.positions = append(r.positions, r.seq.Position())
	return nil
}

type memSaver struct {
	name string
	data []byte
}

func (s *memSaver) Save(name string, data []byte) (string, error) {
	s.name, s.data = name, data
	return "mem://" + name, nil
}

type harness struct {
	x     *Exporter
	enc   *fakeEncoder
	exec  *recordingExecutor
	seq   *timeline.Sequence
	saver *memSaver
}

func setup(t *testing.T, length float64, fps int) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Width, cfg.Height = 16, 12
	cfg.FPS = fps
	cfg.VideoEncoder = "libx264"

	st := &timeline.State{SheetsByID: map[string]timeline.SheetState{
		"Animated scene": {Sequence: &timeline.SequenceState{Length: length}},
	}}
	seq := timeline.NewProject("test", st, nil).Sheet("Animated scene").Sequence()
	ex := &recordingExecutor{seq: seq}
	enc := newFake(t)
	saver := &memSaver{}
	x := New(cfg, Target{State: scene.BuildKnot(1), Sequence: seq, Executor: ex}, enc, saver, nil)
	x.BenchmarkLog = ""
	return &harness{x: x, enc: enc, exec: ex, seq: seq, saver: saver}
}

func TestTotalFrames(t *testing.T) {
	tests := []struct {
		duration float64
		fps      int
		want     int
	}{
		{1.5, 2, 3},
		{10, 30, 300},
		{0, 30, 0},
		{0.01, 30, 0},
		{-1, 30, 0},
		{1, 0, 0},
		{3.3, 10, 33},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalFrames(tt.duration, tt.fps), "%v@%d", tt.duration, tt.fps)
	}
}

func TestFrameNames(t *testing.T) {
	assert.Equal(t, "frame0.jpeg", FrameName(0, PadWidth(3), "jpeg"))
	assert.Equal(t, "frame07.png", FrameName(7, PadWidth(10), "png"))
	assert.Equal(t, "frame%02d.png", FramePattern(2, "png"))

	widths := map[int]int{9: 1, 10: 2, 99: 2, 100: 3, 100000: 6}
	for total, w := range widths {
		assert.Equal(t, w, PadWidth(total), "total %d", total)
	}
}

func TestFrameNamesSortInCaptureOrder(t *testing.T) {
	for _, total := range []int{9, 10, 11, 99, 100, 101, 1000, 100000} {
		w := PadWidth(total)
		names := make([]string, total)
		for i := range names {
			names[i] = FrameName(i, w, "jpeg")
		}
		assert.True(t, sort.StringsAreSorted(names), "total %d", total)
	}
}

func TestRunSuccess(t *testing.T) {
	h := setup(t, 1.5, 2)
	var stages []Stage
	h.x.OnStage(func(s Stage) { stages = append(stages, s) })

	res := h.x.Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, Success, res.Kind)
	assert.Equal(t, 3, res.Frames)
	assert.Equal(t, []byte("mp4:3"), res.Data)
	assert.Equal(t, "mem://animation.mp4", res.Path)
	assert.Equal(t, res.Data, h.saver.data)

	assert.Equal(t, []string{"frame0.jpeg", "frame1.jpeg", "frame2.jpeg"}, h.enc.writes)
	assert.Equal(t, h.enc.writes, h.enc.atExec, "all frames are in the workspace before the encoder runs")
	assert.Equal(t, []string{"frame0.jpeg", "frame1.jpeg", "frame2.jpeg", OutputFile}, h.enc.deletes)
	assert.Empty(t, h.enc.remaining(t))

	assert.Equal(t, []string{
		"-framerate", "2", "-i", "frame%01d.jpeg", "-c:v", "libx264", "-an",
		"-pix_fmt", "yuv420p", "-movflags", "+faststart", "-crf", "23", "-preset", "medium",
		OutputFile,
	}, h.enc.args)

	// prepare, three frames, restore
	require.Len(t, h.exec.positions, 5)
	assert.Equal(t, []float64{0, 0.5, 1.0}, h.exec.positions[1:4])

	assert.Equal(t, []Stage{Initializing, Sampling, Encoding, Finalizing, Cleanup, Done, Idle}, stages)
	assert.Equal(t, Idle, h.x.Stage())
	assert.False(t, h.x.Running())
}

func TestRunCapturesDecodableFrames(t *testing.T) {
	h := setup(t, 1, 1)
	var first []byte
	h.enc.onExec = func() {
		var err error
		first, err = h.enc.ws.ReadFile("frame0.jpeg")
		require.NoError(t, err)
	}
	res := h.x.Run(context.Background())
	require.True(t, res.OK(), res.Err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 12, cfg.Height)
}

func TestRunEncoderNotLoaded(t *testing.T) {
	h := setup(t, 1.5, 2)
	h.enc.loadable = false

	res := h.x.Run(context.Background())
	assert.Equal(t, EncoderNotReady, res.Kind)
	assert.ErrorIs(t, res.Err, video.ErrNotLoaded)
	assert.Empty(t, res.Data)
	assert.Empty(t, h.enc.writes, "no frame files are written")
	assert.Empty(t, h.exec.positions, "nothing is sampled")
	assert.Nil(t, h.saver.data)
}

func TestRunEncodeAborted(t *testing.T) {
	h := setup(t, 2, 3)
	h.enc.execErr = fmt.Errorf("%w: signal: killed", video.ErrAborted)

	res := h.x.Run(context.Background())
	assert.Equal(t, EncodeAborted, res.Kind)
	assert.ErrorIs(t, res.Err, video.ErrAborted)
	assert.Empty(t, res.Data)
	assert.Len(t, h.enc.writes, 6)
	assert.Empty(t, h.enc.remaining(t))
	assert.Nil(t, h.saver.data)
	assert.False(t, h.x.Running())
}

func TestRunEncodeFailedCleansUp(t *testing.T) {
	h := setup(t, 1, 4)
	h.enc.execErr = errors.New("ffmpeg error: exit status 1")

	res := h.x.Run(context.Background())
	assert.Equal(t, Failed, res.Kind)
	assert.Equal(t, []string{"frame0.jpeg", "frame1.jpeg", "frame2.jpeg", "frame3.jpeg", OutputFile}, h.enc.deletes)
	assert.Empty(t, h.enc.remaining(t))
}

func TestRunEncoderUnloadedBeforeRead(t *testing.T) {
	h := setup(t, 1, 2)
	h.enc.unloadAfter = true

	res := h.x.Run(context.Background())
	assert.Equal(t, EncoderNotReady, res.Kind)
	assert.Empty(t, res.Data)
	assert.Nil(t, h.saver.data)
}

func TestRunBusy(t *testing.T) {
	h := setup(t, 1, 2)
	var nested Result
	h.enc.onExec = func() {
		nested = h.x.Run(context.Background())
	}

	res := h.x.Run(context.Background())
	assert.True(t, res.OK())
	assert.Equal(t, Busy, nested.Kind)
	assert.ErrorIs(t, nested.Err, ErrBusy)
	assert.Len(t, h.enc.writes, 2, "the nested call wrote nothing")
}

func TestRunTooShort(t *testing.T) {
	h := setup(t, 0.2, 2)
	res := h.x.Run(context.Background())
	assert.Equal(t, Failed, res.Kind)
	assert.ErrorIs(t, res.Err, ErrNoFrames)
	assert.Empty(t, h.enc.writes)
}

func TestRunCancelledWhileSampling(t *testing.T) {
	h := setup(t, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	h.x.Target.Executor = executorFunc(func(c context.Context, fn func()) error {
		n++
		if n == 3 {
			cancel()
		}
		return loop.Inline{}.Do(c, fn)
	})

	res := h.x.Run(ctx)
	assert.Equal(t, EncodeAborted, res.Kind)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, []string{"frame0.jpeg"}, h.enc.writes, "frames are written as they are captured")
	assert.Equal(t, h.enc.writes, h.enc.deletes)
	assert.Empty(t, h.enc.remaining(t))
	assert.Nil(t, h.enc.args, "the encoder never ran")
}

func TestRunWritesEachFrameBeforeNextCapture(t *testing.T) {
	h := setup(t, 2, 2)
	var seen []int
	h.x.Target.Executor = executorFunc(func(c context.Context, fn func()) error {
		seen = append(seen, len(h.enc.writes))
		return loop.Inline{}.Do(c, fn)
	})

	res := h.x.Run(context.Background())
	require.True(t, res.OK(), res.Err)
	// prepare, four frames, restore
	assert.Equal(t, []int{0, 0, 1, 2, 3, 4}, seen)
}

func TestRunFramesHaveEvenSize(t *testing.T) {
	h := setup(t, 1, 1)
	h.x.Config.Width, h.x.Config.Height, h.x.Config.PixelRatio = 15, 9, 1.5
	var first []byte
	h.enc.onExec = func() {
		var err error
		first, err = h.enc.ws.ReadFile("frame0.jpeg")
		require.NoError(t, err)
	}

	res := h.x.Run(context.Background())
	require.True(t, res.OK(), res.Err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, 22, cfg.Width)
	assert.Equal(t, 14, cfg.Height)
	assert.Contains(t, h.enc.args, "yuv420p")
}

type executorFunc func(context.Context, func()) error

func (f executorFunc) Do(ctx context.Context, fn func()) error { return f(ctx, fn) }

func TestRunRestoresPlayback(t *testing.T) {
	h := setup(t, 1, 2)
	h.seq.Play()
	h.seq.SetPosition(0.7)

	res := h.x.Run(context.Background())
	require.True(t, res.OK())
	assert.True(t, h.seq.Playing())
	assert.Equal(t, 0.7, h.seq.Position())
}

func TestRunWritesBenchmark(t *testing.T) {
	h := setup(t, 1, 1)
	h.x.Config.ShowStats = true
	h.x.Build = "test"
	h.x.BenchmarkLog = filepath.Join(t.TempDir(), "benchmark.log")

	res := h.x.Run(context.Background())
	require.True(t, res.OK())
	data, err := os.ReadFile(h.x.BenchmarkLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Build: test")
	assert.Contains(t, string(data), "Frames: 1")
}

func TestFileSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := FileSaver{Dir: dir}.Save("animation.mp4", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "animation.mp4"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "encode aborted", EncodeAborted.String())
	assert.Equal(t, "cleanup", Cleanup.String())
}

// steppedBackground holds the scene background red, green, then blue for
// half a second each.
const steppedBackground = `{"sheetsById": {"Animated scene": {"sequence": {
  "length": 1.5,
  "tracksByObject": {"Scene": {
    "trackIdByPropPath": {"[\"background\"]": "bg"},
    "trackData": {"bg": {"type": "BasicKeyframedTrack", "keyframes": [
      {"id": "r", "position": 0, "connectedRight": false, "value": {"r": 1, "g": 0, "b": 0, "a": 1}},
      {"id": "g", "position": 0.5, "connectedRight": false, "value": {"r": 0, "g": 1, "b": 0, "a": 1}},
      {"id": "b", "position": 1, "connectedRight": false, "value": {"r": 0, "g": 0, "b": 1, "a": 1}}
    ]}}
  }}
}}}}`

func TestRunThroughLiveLoopCapturesBoundValues(t *testing.T) {
	st, err := timeline.ReadState(strings.NewReader(steppedBackground))
	require.NoError(t, err)
	sheet := timeline.NewProject("test", st, nil).Sheet("Animated scene")
	state := scene.BuildKnot(32.0 / 24.0)
	b, err := binding.BindKnot(sheet, state)
	require.NoError(t, err)
	defer b.Close()

	seq := sheet.Sequence()
	seq.Play()
	ticks := make(chan time.Time)
	lp := loop.New(state, raster.New(8, 8, 1), seq, loop.Options{Ticks: ticks})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- lp.Run(ctx) }()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ticks <- time.Now():
			}
		}
	}()
	require.Eventually(t, func() bool { return lp.Drawn() > 5 }, 2*time.Second, time.Millisecond)

	cfg := config.Default()
	cfg.Width, cfg.Height = 32, 24
	cfg.FPS = 2
	cfg.Format = config.FormatPNG
	cfg.VideoEncoder = "libx264"
	enc := newFake(t)
	frames := map[string]color.RGBA{}
	enc.onExec = func() {
		for _, name := range enc.writes {
			data, err := enc.ws.ReadFile(name)
			require.NoError(t, err)
			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			frames[name] = color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
		}
	}
	x := New(cfg, Target{State: state, Sequence: seq, Executor: lp}, enc, &memSaver{}, nil)
	x.BenchmarkLog = ""

	drawnBefore := lp.Drawn()
	res := x.Run(ctx)
	require.True(t, res.OK(), res.Err)
	assert.Equal(t, map[string]color.RGBA{
		"frame0.png": {R: 255, A: 255},
		"frame1.png": {G: 255, A: 255},
		"frame2.png": {B: 255, A: 255},
	}, frames)
	var playing bool
	require.NoError(t, lp.Do(ctx, func() { playing = seq.Playing() }))
	assert.True(t, playing, "playback resumes after the export")
	require.Eventually(t, func() bool { return lp.Drawn() > drawnBefore+5 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
