package loop

import (
	"context"
	"testing"
	"time"

	"github.com/ivlev/scenereel/internal/raster"
	"github.com/ivlev/scenereel/internal/scene"
	"github.com/ivlev/scenereel/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	loop   *Loop
	state  *scene.State
	rend   *raster.Renderer
	seq    *timeline.Sequence
	ticks  chan time.Time
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, present Presenter) *harness {
	t.Helper()
	h := &harness{
		state: scene.BuildKnot(1),
		rend:  raster.New(32, 32, 1),
		seq:   timeline.NewProject("t", nil, nil).Sheet("s").Sequence(),
		ticks: make(chan time.Time),
		done:  make(chan error, 1),
	}
	h.loop = New(h.state, h.rend, h.seq, Options{FPS: 30, Presenter: present, Ticks: h.ticks})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

// sync waits until every tick sent so far has been drawn.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.loop.Do(context.Background(), func() {}))
}

func TestLoopDrawsAndPresents(t *testing.T) {
	presented := 0
	h := start(t, func(r *raster.Renderer) { presented++ })

	t0 := time.Now()
	for i := 0; i < 3; i++ {
		h.ticks <- t0.Add(time.Duration(i) * time.Second / 30)
	}
	h.sync(t)
	assert.Equal(t, uint64(3), h.loop.Drawn())
	assert.Equal(t, uint64(3), h.rend.Frames())

	var p int
	require.NoError(t, h.loop.Do(context.Background(), func() { p = presented }))
	assert.Equal(t, 3, p)
}

func TestResizeAppliedBeforeNextDraw(t *testing.T) {
	h := start(t, nil)
	h.loop.Resize(Viewport{Width: 200, Height: 100, DPR: 3})

	var w, hgt int
	require.NoError(t, h.loop.Do(context.Background(), func() { w, hgt = h.rend.Size() }))
	assert.Equal(t, 32, w, "not applied until a draw")

	h.ticks <- time.Now()
	var aspect float64
	require.NoError(t, h.loop.Do(context.Background(), func() {
		w, hgt = h.rend.Size()
		aspect = h.state.Camera.Aspect
	}))
	assert.Equal(t, 400, w, "pixel ratio clamped to 2")
	assert.Equal(t, 200, hgt)
	assert.Equal(t, 2.0, aspect)
}

func TestResizeIgnoresEmptyViewport(t *testing.T) {
	h := start(t, nil)
	h.loop.Resize(Viewport{Width: 0, Height: 10, DPR: 1})
	h.ticks <- time.Now()
	h.sync(t)
	w, _ := h.rend.Size()
	assert.Equal(t, 32, w)
}

func TestLoopAdvancesPlayingSequence(t *testing.T) {
	h := start(t, nil)
	require.NoError(t, h.loop.Do(context.Background(), h.seq.Play))

	t0 := time.Now()
	h.ticks <- t0
	h.ticks <- t0.Add(500 * time.Millisecond)
	h.ticks <- t0.Add(1250 * time.Millisecond)

	var pos float64
	require.NoError(t, h.loop.Do(context.Background(), func() { pos = h.seq.Position() }))
	assert.InDelta(t, 1.25, pos, 1e-9)
}

func TestLoopPausedSequenceStays(t *testing.T) {
	h := start(t, nil)
	t0 := time.Now()
	h.ticks <- t0
	h.ticks <- t0.Add(time.Second)

	var pos float64
	require.NoError(t, h.loop.Do(context.Background(), func() { pos = h.seq.Position() }))
	assert.Equal(t, 0.0, pos)
}

func TestDoAfterStop(t *testing.T) {
	h := start(t, nil)
	h.cancel()
	require.NoError(t, <-h.done)
	h.done <- nil // keep cleanup from blocking

	err := h.loop.Do(context.Background(), func() { t.Error("ran after stop") })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestDoRespectsContext(t *testing.T) {
	l := New(scene.BuildKnot(1), raster.New(8, 8, 1), nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Do(ctx, func() { t.Error("ran without a loop") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInline(t *testing.T) {
	ran := false
	require.NoError(t, Inline{}.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Inline{}.Do(ctx, func() { t.Error("ran") }), context.Canceled)
}

func TestApply(t *testing.T) {
	s := scene.BuildKnot(1)
	r := raster.New(10, 10, 1)
	Apply(s, r, Viewport{Width: 30, Height: 10, DPR: 1.5})
	w, hgt := r.Size()
	assert.Equal(t, 45, w)
	assert.Equal(t, 15, hgt)
	assert.Equal(t, 3.0, s.Camera.Aspect)
}
