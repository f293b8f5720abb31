package main

import (
	"context"
	"sync"

	"github.com/ivlev/scenereel/internal/loop"
	"github.com/ivlev/scenereel/internal/timeline"
)

// deferredReload applies project state reloads on the control goroutine.
// While busy reports true the newest state is held back, so one export
// never samples two project states; Flush applies it afterwards.
type deferredReload struct {
	exec  loop.Executor
	busy  func() bool
	apply func(*timeline.State)

	mu      sync.Mutex
	pending *timeline.State
}

func (d *deferredReload) Reload(ctx context.Context, st *timeline.State) error {
	return d.exec.Do(ctx, func() {
		if d.busy() {
			d.mu.Lock()
			d.pending = st
			d.mu.Unlock()
			return
		}
		d.apply(st)
	})
}

// Flush applies a held-back state, if any.
func (d *deferredReload) Flush(ctx context.Context) error {
	d.mu.Lock()
	st := d.pending
	d.pending = nil
	d.mu.Unlock()
	if st == nil {
		return nil
	}
	return d.Reload(ctx, st)
}

// Pending reports whether a state is waiting for Flush.
func (d *deferredReload) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
