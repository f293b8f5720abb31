// Package loop runs the live render loop.
//
// The loop goroutine is the control goroutine of a live session: it is the
// only goroutine that touches scene state, the timeline and the renderer.
// Other goroutines reach it through Do and Resize.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ivlev/scenereel/internal/config"
	"github.com/ivlev/scenereel/internal/raster"
	"github.com/ivlev/scenereel/internal/scene"
	"github.com/ivlev/scenereel/internal/timeline"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("render loop stopped")

// Executor runs fn on the control goroutine and waits for it to finish.
// fn never overlaps a live draw.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Inline is the Executor of a headless session: the caller already is the
// control goroutine, so fn runs in place.
type Inline struct{}

func (Inline) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

// Viewport is a resize request in logical pixels.
type Viewport struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	DPR    float64 `json:"dpr"`
}

// Presenter receives the renderer after each live draw. It runs on the
// loop goroutine and must copy anything it keeps.
type Presenter func(r *raster.Renderer)

type Options struct {
	FPS       int
	Presenter Presenter
	Logger    *slog.Logger

	// Ticks overrides the refresh clock. Each value received triggers one
	// draw. Nil uses a ticker at FPS.
	Ticks <-chan time.Time
}

type job struct {
	fn   func()
	done chan struct{}
}

type Loop struct {
	state    *scene.State
	renderer *raster.Renderer
	sequence *timeline.Sequence
	opts     Options
	logger   *slog.Logger

	jobs    chan job
	stopped chan struct{}

	mu      sync.Mutex
	pending *Viewport
	drawn   uint64
}

// New creates a loop drawing state with renderer. sequence may be nil for
// a scene without a timeline.
func New(state *scene.State, renderer *raster.Renderer, sequence *timeline.Sequence, opts Options) *Loop {
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		state:    state,
		renderer: renderer,
		sequence: sequence,
		opts:     opts,
		logger:   logger,
		jobs:     make(chan job),
		stopped:  make(chan struct{}),
	}
}

// Run draws on every tick until ctx is cancelled. Cancellation is the
// normal way to stop and is not reported as an error.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)

	ticks := l.opts.Ticks
	if ticks == nil {
		t := time.NewTicker(time.Second / time.Duration(l.opts.FPS))
		defer t.Stop()
		ticks = t.C
	}

	l.logger.Debug("render loop started", "fps", l.opts.FPS)
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("render loop stopped", "frames", l.Drawn())
			return nil
		case j := <-l.jobs:
			j.fn()
			close(j.done)
		case now, ok := <-ticks:
			if !ok {
				return nil
			}
			if l.sequence != nil && !last.IsZero() {
				l.sequence.Advance(now.Sub(last))
			}
			last = now
			l.draw()
		}
	}
}

func (l *Loop) draw() {
	l.applyResize()
	l.renderer.Render(l.state)
	if l.opts.Presenter != nil {
		l.opts.Presenter(l.renderer)
	}
	l.mu.Lock()
	l.drawn++
	l.mu.Unlock()
}

// Drawn counts live draws, excluding renders done inside Do.
func (l *Loop) Drawn() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drawn
}

// Resize queues a viewport change. It is applied on the loop goroutine
// before the next live draw; later requests replace earlier ones.
func (l *Loop) Resize(v Viewport) {
	if v.Width <= 0 || v.Height <= 0 {
		return
	}
	l.mu.Lock()
	l.pending = &v
	l.mu.Unlock()
}

func (l *Loop) applyResize() {
	l.mu.Lock()
	v := l.pending
	l.pending = nil
	l.mu.Unlock()
	if v == nil {
		return
	}
	Apply(l.state, l.renderer, *v)
	l.logger.Debug("viewport resized", "width", v.Width, "height", v.Height, "dpr", v.DPR)
}

// Apply resizes state and renderer for v. Callers must be on the control
// goroutine.
func Apply(state *scene.State, renderer *raster.Renderer, v Viewport) {
	state.Resize(v.Width, v.Height)
	renderer.SetSize(v.Width, v.Height)
	renderer.SetPixelRatio(config.ClampPixelRatio(v.DPR))
}

// Do runs fn on the loop goroutine between two draws and waits for it.
// It blocks until the loop picks the job up, ctx is done or the loop
// exits.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	j := job{fn: fn, done: make(chan struct{})}
	select {
	case l.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}
	<-j.done
	return nil
}
